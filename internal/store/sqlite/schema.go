package sqlite

// Schema creates every table the server uses. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS counselors (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	username                TEXT NOT NULL UNIQUE,
	password_hash           TEXT NOT NULL,
	can_generate_ban_code   BOOLEAN NOT NULL DEFAULT 0,
	allow_pause_auto_scroll BOOLEAN NOT NULL DEFAULT 0,
	hide_typing_message     BOOLEAN NOT NULL DEFAULT 0,
	created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bans (
	digest     TEXT PRIMARY KEY,
	reason     TEXT NOT NULL DEFAULT '',
	expires_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ban_codes (
	code       TEXT PRIMARY KEY,
	created_by TEXT NOT NULL,
	used       BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invites (
	token          TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	counselor_name TEXT NOT NULL DEFAULT '',
	starts_at      DATETIME NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reports (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	client_name TEXT NOT NULL,
	room_name   TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	reported_by TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stats (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id   TEXT NOT NULL,
	room_id     TEXT NOT NULL,
	gender      TEXT NOT NULL DEFAULT '',
	age         INTEGER NOT NULL DEFAULT 0,
	city        TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS screenings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id  TEXT NOT NULL,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bans_expires ON bans(expires_at);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at DESC);
`
