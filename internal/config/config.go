package config

import "time"

// GeoEntry maps a network range to a location for the static geo table.
type GeoEntry struct {
	CIDR    string `mapstructure:"cidr" yaml:"cidr"`
	City    string `mapstructure:"city" yaml:"city"`
	Country string `mapstructure:"country" yaml:"country"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// Heartbeat and reconnect tuning. Client timeout is half the reconnect
	// interval; a session is dropped after attempts*interval of silence.
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	BanSalt           string        `mapstructure:"ban_salt" yaml:"ban_salt"`
	BanCloseGrace     time.Duration `mapstructure:"ban_close_grace" yaml:"ban_close_grace"`
	BanReloadSchedule string        `mapstructure:"ban_reload_schedule" yaml:"ban_reload_schedule"`
	BanPurgeSchedule  string        `mapstructure:"ban_purge_schedule" yaml:"ban_purge_schedule"`

	GeoAllowedCountries []string   `mapstructure:"geo_allowed_countries" yaml:"geo_allowed_countries"`
	GeoTable            []GeoEntry `mapstructure:"geo_table" yaml:"geo_table"`

	RequireAccessCode   bool   `mapstructure:"require_access_code" yaml:"require_access_code"`
	RoomFullRedirectURL string `mapstructure:"room_full_redirect_url" yaml:"room_full_redirect_url"`
	MaxInboundPerMinute int    `mapstructure:"max_inbound_per_minute" yaml:"max_inbound_per_minute"`
	MaxMessageBytes     int64  `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		LogLevel:             "info",
		LogFormat:            "console",
		DatabasePath:         "counselchat.db",
		JWTSecret:            "change-me",
		JWTIssuer:            "counselchat",
		JWTAudience:          "counselchat",
		ReconnectInterval:    20 * time.Second,
		MaxReconnectAttempts: 5,
		SweepInterval:        time.Second,
		BanSalt:              "change-me",
		BanCloseGrace:        2 * time.Second,
		BanReloadSchedule:    "@every 5m",
		BanPurgeSchedule:     "@daily",
		MaxInboundPerMinute:  600,
		MaxMessageBytes:      1 << 16,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.ReconnectInterval != 0 {
		c.ReconnectInterval = other.ReconnectInterval
	}
	if other.MaxReconnectAttempts != 0 {
		c.MaxReconnectAttempts = other.MaxReconnectAttempts
	}
}
