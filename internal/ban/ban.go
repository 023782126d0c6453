// Package ban holds the in-memory set of banned address digests.
package ban

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Source yields the digests of every active ban.
type Source interface {
	LoadBans(ctx context.Context) ([]string, error)
}

// Registry answers "is this address banned" without storing addresses.
type Registry struct {
	salt []byte

	mu      sync.RWMutex
	digests map[string]struct{}
}

// NewRegistry creates an empty registry hashing with the given salt.
func NewRegistry(salt string) *Registry {
	return &Registry{
		salt:    []byte(salt),
		digests: make(map[string]struct{}),
	}
}

// Digest returns the salted hex digest for an address.
func (r *Registry) Digest(ip string) string {
	h, _ := blake2b.New256(nil)
	h.Write(r.salt)
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))
}

// Check hashes the address and reports whether the digest is banned.
func (r *Registry) Check(ip string) (digest string, banned bool) {
	digest = r.Digest(ip)

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, banned = r.digests[digest]
	return digest, banned
}

// Add marks a digest as banned.
func (r *Registry) Add(digest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests[digest] = struct{}{}
}

// Len returns the number of banned digests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.digests)
}

// Load replaces the set with the contents of src.
func (r *Registry) Load(ctx context.Context, src Source) error {
	digests, err := src.LoadBans(ctx)
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}

	next := make(map[string]struct{}, len(digests))
	for _, d := range digests {
		next[d] = struct{}{}
	}

	r.mu.Lock()
	r.digests = next
	r.mu.Unlock()
	return nil
}
