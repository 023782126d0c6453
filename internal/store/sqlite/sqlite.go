package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/counselchat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// Migrate applies Schema to db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== CounselorStore implementation ====

// CreateCounselor stores a counselor with an already hashed password.
func (s *SQLiteStore) CreateCounselor(ctx context.Context, c *store.Counselor) (*store.Counselor, error) {
	query := `
		INSERT INTO counselors (username, password_hash, can_generate_ban_code, allow_pause_auto_scroll, hide_typing_message)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.Username, c.PasswordHash, c.CanGenerateBanCode, c.AllowPauseAutoScroll, c.HideTypingMessage)
	if err != nil {
		return nil, fmt.Errorf("insert counselor: %w", err)
	}
	return s.GetCounselorByUsername(ctx, c.Username)
}

// GetCounselorByUsername retrieves a counselor by username.
func (s *SQLiteStore) GetCounselorByUsername(ctx context.Context, username string) (*store.Counselor, error) {
	query := `
		SELECT id, username, password_hash, can_generate_ban_code, allow_pause_auto_scroll, hide_typing_message, created_at
		FROM counselors
		WHERE username = ?
	`
	var c store.Counselor
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&c.ID,
		&c.Username,
		&c.PasswordHash,
		&c.CanGenerateBanCode,
		&c.AllowPauseAutoScroll,
		&c.HideTypingMessage,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("counselor %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query counselor: %w", err)
	}
	return &c, nil
}

// ==== BanStore implementation ====

// LoadBans returns the digests of every unexpired ban.
func (s *SQLiteStore) LoadBans(ctx context.Context) ([]string, error) {
	query := `
		SELECT digest FROM bans
		WHERE expires_at IS NULL OR expires_at > ?
	`
	rows, err := s.db.QueryContext(ctx, query, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var digests []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

// AddBan stores a ban, replacing an earlier one for the same digest.
func (s *SQLiteStore) AddBan(ctx context.Context, ban *store.Ban) error {
	query := `
		INSERT INTO bans (digest, reason, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET reason = excluded.reason, expires_at = excluded.expires_at
	`
	var expires any
	if ban.ExpiresAt != nil {
		expires = ban.ExpiresAt.UTC()
	}
	if _, err := s.db.ExecContext(ctx, query, ban.Digest, ban.Reason, expires); err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

// PurgeExpiredBans deletes bans whose expiry has passed.
func (s *SQLiteStore) PurgeExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge bans: %w", err)
	}
	return result.RowsAffected()
}

// CreateBanCode stores a fresh single-use ban code.
func (s *SQLiteStore) CreateBanCode(ctx context.Context, code, createdBy string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ban_codes (code, created_by) VALUES (?, ?)`, code, createdBy)
	if err != nil {
		return fmt.Errorf("insert ban code: %w", err)
	}
	return nil
}

// ConsumeBanCode marks an unused code as used.
func (s *SQLiteStore) ConsumeBanCode(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE ban_codes SET used = 1 WHERE code = ? AND used = 0`, code)
	if err != nil {
		return fmt.Errorf("consume ban code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume ban code: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ban code: %w", store.ErrNotFound)
	}
	return nil
}

// ==== InviteStore implementation ====

// CreateInvite stores an invite.
func (s *SQLiteStore) CreateInvite(ctx context.Context, inv *store.Invite) error {
	status := inv.Status
	if status == "" {
		status = store.InviteStatusPending
	}
	query := `
		INSERT INTO invites (token, name, counselor_name, starts_at, status)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		inv.Token, inv.Name, inv.CounselorName, inv.StartsAt.UTC(), string(status)); err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// GetInvite retrieves an invite by token.
func (s *SQLiteStore) GetInvite(ctx context.Context, token string) (*store.Invite, error) {
	query := `
		SELECT token, name, counselor_name, starts_at, status, created_at
		FROM invites
		WHERE token = ?
	`
	inv, err := scanInvite(s.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invite: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query invite: %w", err)
	}
	return inv, nil
}

// ListInvites returns all invites ordered by start time.
func (s *SQLiteStore) ListInvites(ctx context.Context) ([]*store.Invite, error) {
	query := `
		SELECT token, name, counselor_name, starts_at, status, created_at
		FROM invites
		ORDER BY starts_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query invites: %w", err)
	}
	defer rows.Close()

	var invites []*store.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvite(row scanner) (*store.Invite, error) {
	var (
		inv    store.Invite
		status string
	)
	if err := row.Scan(&inv.Token, &inv.Name, &inv.CounselorName, &inv.StartsAt, &status, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Status = store.InviteStatus(status)
	return &inv, nil
}

// ==== ReportStore implementation ====

// CreateReport stores an abuse report.
func (s *SQLiteStore) CreateReport(ctx context.Context, r *store.Report) error {
	query := `
		INSERT INTO reports (client_name, room_name, reason, reported_by)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, r.ClientName, r.RoomName, r.Reason, r.ReportedBy)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// ListReports returns the most recent reports first.
func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]*store.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, client_name, room_name, reason, reported_by, created_at
		FROM reports
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []*store.Report
	for rows.Next() {
		var r store.Report
		if err := rows.Scan(&r.ID, &r.ClientName, &r.RoomName, &r.Reason, &r.ReportedBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

// ==== StatsStore implementation ====

// RecordStats inserts a chat row and returns its id.
func (s *SQLiteStore) RecordStats(ctx context.Context, st *store.ChatStats) (int64, error) {
	query := `
		INSERT INTO stats (client_id, room_id, gender, age, city, country, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		st.ClientID, st.RoomID, st.Gender, st.Age, st.City, st.Country, st.StartedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert stats: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// RecordChatDuration sets the duration of a recorded chat.
func (s *SQLiteStore) RecordChatDuration(ctx context.Context, statsID int64, d time.Duration) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE stats SET duration_ms = ? WHERE id = ?`, d.Milliseconds(), statsID)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("stats %d: %w", statsID, store.ErrNotFound)
	}
	return nil
}

// GetStats retrieves one stats row.
func (s *SQLiteStore) GetStats(ctx context.Context, statsID int64) (*store.ChatStats, error) {
	query := `
		SELECT id, client_id, room_id, gender, age, city, country, started_at, duration_ms
		FROM stats
		WHERE id = ?
	`
	var (
		st         store.ChatStats
		durationMS sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, statsID).Scan(
		&st.ID, &st.ClientID, &st.RoomID, &st.Gender, &st.Age, &st.City, &st.Country, &st.StartedAt, &durationMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("stats %d: %w", statsID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if durationMS.Valid {
		d := time.Duration(durationMS.Int64) * time.Millisecond
		st.Duration = &d
	}
	return &st, nil
}

// RecordScreening stores screening answers in one transaction.
func (s *SQLiteStore) RecordScreening(ctx context.Context, answers []store.ScreeningAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO screenings (client_id, question, answer) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare screening insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range answers {
		if _, err := stmt.ExecContext(ctx, a.ClientID, a.Question, a.Answer); err != nil {
			return fmt.Errorf("insert screening: %w", err)
		}
	}
	return tx.Commit()
}
