package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/counselchat/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAccessCode is returned for unknown, used or canceled invite codes.
	ErrInvalidAccessCode = errors.New("invalid access code")
	// ErrAccessCodeRequired is returned for anonymous sign-in when access codes are mandatory.
	ErrAccessCodeRequired = errors.New("access code required")
)

// Credentials are what a client presents at sign-in. Username and Password
// select a counselor login; AccessCode selects an invite; neither means an
// anonymous guest.
type Credentials struct {
	Username   string
	Password   string
	AccessCode string
}

// Account is the outcome of a successful sign-in.
type Account struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	IsAdmin              bool   `json:"isAdmin"`
	CanGenerateBanCode   bool   `json:"canGenerateBanCode"`
	AllowPauseAutoScroll bool   `json:"allowPauseAutoScroll"`
	HideTypingMessage    bool   `json:"hideTypingMessage"`
	AccessCode           string `json:"accessCode,omitempty"`
}

// Service authenticates accounts and issues resume tokens.
type Service struct {
	counselors        store.CounselorStore
	invites           store.InviteStore
	jwtConfig         *JWTConfig
	requireAccessCode bool
	now               func() time.Time
}

// NewService creates a new authentication service.
func NewService(counselors store.CounselorStore, invites store.InviteStore, jwtConfig *JWTConfig, requireAccessCode bool) *Service {
	return &Service{
		counselors:        counselors,
		invites:           invites,
		jwtConfig:         jwtConfig,
		requireAccessCode: requireAccessCode,
		now:               time.Now,
	}
}

// Authenticate resolves credentials to an Account.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Account, error) {
	username := strings.TrimSpace(creds.Username)
	switch {
	case username != "":
		return s.counselor(ctx, username, creds.Password)
	case strings.TrimSpace(creds.AccessCode) != "":
		return s.invite(ctx, strings.TrimSpace(creds.AccessCode))
	case s.requireAccessCode:
		return Account{}, ErrAccessCodeRequired
	default:
		return Account{ID: "guest"}, nil
	}
}

func (s *Service) counselor(ctx context.Context, username, password string) (Account, error) {
	c, err := s.counselors.GetCounselorByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, fmt.Errorf("lookup counselor: %w", err)
	}

	if errPwd := ComparePassword(c.PasswordHash, password); errPwd != nil {
		return Account{}, ErrInvalidCredentials
	}

	return Account{
		ID:                   fmt.Sprintf("counselor:%d", c.ID),
		Name:                 c.Username,
		IsAdmin:              true,
		CanGenerateBanCode:   c.CanGenerateBanCode,
		AllowPauseAutoScroll: c.AllowPauseAutoScroll,
		HideTypingMessage:    c.HideTypingMessage,
	}, nil
}

func (s *Service) invite(ctx context.Context, code string) (Account, error) {
	inv, err := s.invites.GetInvite(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Account{}, ErrInvalidAccessCode
		}
		return Account{}, fmt.Errorf("lookup invite: %w", err)
	}
	if inv.Status != store.InviteStatusPending {
		return Account{}, ErrInvalidAccessCode
	}

	return Account{
		ID:         "invite:" + inv.Token,
		Name:       inv.Name,
		AccessCode: inv.Token,
	}, nil
}

// IssueResumeToken signs a resume token for a signed-in client.
func (s *Service) IssueResumeToken(clientID string, acc Account) (string, error) {
	return IssueResumeToken(s.jwtConfig, clientID, acc.ID, acc.IsAdmin, s.now())
}

// ParseResumeToken validates a token produced by IssueResumeToken.
func (s *Service) ParseResumeToken(token string) (*ResumeClaims, error) {
	return ParseResumeToken(s.jwtConfig, token)
}
