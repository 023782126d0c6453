// Package geo resolves client addresses to a coarse location.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/vovakirdan/counselchat/internal/config"
)

// ErrUnknownLocation is returned when no range covers the address.
var ErrUnknownLocation = errors.New("unknown location")

// Location is where an address is believed to be.
type Location struct {
	City    string
	Country string
}

// Locator resolves an address. Implementations may block.
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

type entry struct {
	prefix netip.Prefix
	loc    Location
}

// Table is a static Locator backed by CIDR ranges. The most specific
// matching range wins.
type Table struct {
	entries []entry
}

var _ Locator = (*Table)(nil)

// NewTable parses the configured ranges.
func NewTable(entries []config.GeoEntry) (*Table, error) {
	t := &Table{}
	for _, e := range entries {
		p, err := netip.ParsePrefix(strings.TrimSpace(e.CIDR))
		if err != nil {
			return nil, fmt.Errorf("geo table entry %q: %w", e.CIDR, err)
		}
		t.entries = append(t.entries, entry{
			prefix: p.Masked(),
			loc:    Location{City: e.City, Country: strings.ToUpper(e.Country)},
		})
	}
	return t, nil
}

// Locate returns the location of the longest matching prefix.
func (t *Table) Locate(ctx context.Context, ip string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Location{}, fmt.Errorf("parse address: %w", err)
	}
	addr = addr.Unmap()

	best := -1
	var loc Location
	for _, e := range t.entries {
		if e.prefix.Contains(addr) && e.prefix.Bits() > best {
			best = e.prefix.Bits()
			loc = e.loc
		}
	}
	if best < 0 {
		return Location{}, ErrUnknownLocation
	}
	return loc, nil
}

// Policy decides whether a country may use the service.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy builds a policy from country codes. An empty list allows everyone.
func NewPolicy(countries []string) Policy {
	p := Policy{}
	if len(countries) == 0 {
		return p
	}
	p.allowed = make(map[string]struct{}, len(countries))
	for _, c := range countries {
		p.allowed[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return p
}

// Allowed reports whether country is inside the allow-list.
func (p Policy) Allowed(country string) bool {
	if p.allowed == nil {
		return true
	}
	_, ok := p.allowed[strings.ToUpper(country)]
	return ok
}

// Restricted reports whether any allow-list is configured.
func (p Policy) Restricted() bool { return p.allowed != nil }
