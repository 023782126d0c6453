package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Counselor is a privileged account able to manage rooms.
type Counselor struct {
	ID                   int64
	Username             string
	PasswordHash         string
	CanGenerateBanCode   bool
	AllowPauseAutoScroll bool
	HideTypingMessage    bool
	CreatedAt            time.Time
}

// Ban is a salted address digest that may not connect.
type Ban struct {
	Digest    string
	Reason    string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// InviteStatus defines the lifecycle of an invite.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusUsed     InviteStatus = "used"
	InviteStatusCanceled InviteStatus = "canceled"
)

// Invite lets a guest sign in with an access code for a scheduled chat.
type Invite struct {
	Token         string       `json:"token"`
	Name          string       `json:"name"`
	CounselorName string       `json:"counselorName"`
	StartsAt      time.Time    `json:"startsAt"`
	Status        InviteStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Report is a complaint about a chat participant.
type Report struct {
	ID         int64     `json:"id"`
	ClientName string    `json:"clientName"`
	RoomName   string    `json:"roomName"`
	Reason     string    `json:"reason"`
	ReportedBy string    `json:"reportedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChatStats is one row of chat statistics.
type ChatStats struct {
	ID        int64
	ClientID  string
	RoomID    string
	Gender    string
	Age       int
	City      string
	Country   string
	StartedAt time.Time
	Duration  *time.Duration
}

// ScreeningAnswer is one answer given at sign-in.
type ScreeningAnswer struct {
	ClientID string
	Question string
	Answer   string
}

// CounselorStore handles counselor accounts.
type CounselorStore interface {
	// CreateCounselor stores a counselor with an already hashed password.
	CreateCounselor(ctx context.Context, c *Counselor) (*Counselor, error)

	// GetCounselorByUsername retrieves a counselor by username.
	GetCounselorByUsername(ctx context.Context, username string) (*Counselor, error)
}

// BanStore handles bans and single-use ban codes.
type BanStore interface {
	// LoadBans returns the digests of every unexpired ban.
	LoadBans(ctx context.Context) ([]string, error)

	// AddBan stores a ban; a nil expiry bans forever.
	AddBan(ctx context.Context, ban *Ban) error

	// PurgeExpiredBans deletes expired bans and returns how many were removed.
	PurgeExpiredBans(ctx context.Context, now time.Time) (int64, error)

	// CreateBanCode stores a fresh single-use ban code.
	CreateBanCode(ctx context.Context, code, createdBy string) error

	// ConsumeBanCode marks the code used. Returns ErrNotFound if it is unknown or spent.
	ConsumeBanCode(ctx context.Context, code string) error
}

// InviteStore handles scheduled-chat invites.
type InviteStore interface {
	CreateInvite(ctx context.Context, inv *Invite) error
	GetInvite(ctx context.Context, token string) (*Invite, error)
	ListInvites(ctx context.Context) ([]*Invite, error)
}

// ReportStore handles abuse reports.
type ReportStore interface {
	CreateReport(ctx context.Context, r *Report) error
	ListReports(ctx context.Context, limit int) ([]*Report, error)
}

// StatsStore records telemetry about chats. Callers treat it as best-effort.
type StatsStore interface {
	// RecordStats inserts a chat row and returns its id.
	RecordStats(ctx context.Context, s *ChatStats) (int64, error)

	// RecordChatDuration sets the duration of a previously recorded chat.
	RecordChatDuration(ctx context.Context, statsID int64, d time.Duration) error

	// RecordScreening stores the screening answers of a client.
	RecordScreening(ctx context.Context, answers []ScreeningAnswer) error
}

// Store aggregates all storage interfaces.
type Store interface {
	CounselorStore
	BanStore
	InviteStore
	ReportStore
	StatsStore

	// Close closes the underlying database connection.
	Close() error
}
