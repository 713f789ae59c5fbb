// Package config defines the configuration of one lazywhale process and
// converts its strategy section into validated engine parameters.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. Fields are populated from a
// TOML or YAML file and then optionally overridden by LAZYWHALE_*
// environment variables.
type Config struct {
	Strategy  StrategyConfig  `toml:"strategy" yaml:"strategy"`
	Venue     VenueConfig     `toml:"venue" yaml:"venue"`
	Paper     PaperConfig     `toml:"paper" yaml:"paper"`
	Executor  ExecutorConfig  `toml:"executor" yaml:"executor"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Postgres  PostgresConfig  `toml:"postgres" yaml:"postgres"`
	Redis     RedisConfig     `toml:"redis" yaml:"redis"`
	S3        S3Config        `toml:"s3" yaml:"s3"`
	Archive   ArchiveConfig   `toml:"archive" yaml:"archive"`
	Recorder  RecorderConfig  `toml:"recorder" yaml:"recorder"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Notify    NotifyConfig    `toml:"notify" yaml:"notify"`
	Pyroscope PyroscopeConfig `toml:"pyroscope" yaml:"pyroscope"`

	Mode          string   `toml:"mode" yaml:"mode"`
	LogLevel      string   `toml:"log_level" yaml:"log_level"`
	CycleInterval duration `toml:"cycle_interval" yaml:"cycle_interval"`
	// AlertAfter is the number of consecutive failed cycles that raises an
	// alert; every further multiple alerts again.
	AlertAfter int `toml:"alert_after" yaml:"alert_after"`
}

// StrategyConfig holds the ladder parameters. Prices and amounts are
// decimal strings so no float ever touches them.
type StrategyConfig struct {
	Market            string `toml:"market" yaml:"market"`
	RangeBot          string `toml:"range_bot" yaml:"range_bot"`
	RangeTop          string `toml:"range_top" yaml:"range_top"`
	IncrementCoef     string `toml:"increment_coef" yaml:"increment_coef"`
	Amount            string `toml:"amount" yaml:"amount"`
	OrdersPerInterval int    `toml:"orders_per_interval" yaml:"orders_per_interval"`
	MinOrderAmount    string `toml:"min_order_amount" yaml:"min_order_amount"`
	FeeCoef           string `toml:"fee_coef" yaml:"fee_coef"`
	SpreadBot         string `toml:"spread_bot" yaml:"spread_bot"`
	// SpreadTop may be left empty; it is then derived from SpreadBot and
	// SpreadGap.
	SpreadTop       string           `toml:"spread_top" yaml:"spread_top"`
	SpreadGap       int              `toml:"spread_gap" yaml:"spread_gap"`
	NbBuyToDisplay  int              `toml:"nb_buy_to_display" yaml:"nb_buy_to_display"`
	NbSellToDisplay int              `toml:"nb_sell_to_display" yaml:"nb_sell_to_display"`
	StopAtBot       bool             `toml:"stop_at_bot" yaml:"stop_at_bot"`
	StopAtTop       bool             `toml:"stop_at_top" yaml:"stop_at_top"`
	ProfitsAlloc    string           `toml:"profits_alloc" yaml:"profits_alloc"`
	Allocation      AllocationConfig `toml:"allocation" yaml:"allocation"`
}

// AllocationConfig selects the per-interval amount policy. MinAmount,
// MaxAmount and StartIndex apply to the linear and curved policies.
type AllocationConfig struct {
	Kind       string `toml:"kind" yaml:"kind"`
	MinAmount  string `toml:"min_amount" yaml:"min_amount"`
	MaxAmount  string `toml:"max_amount" yaml:"max_amount"`
	StartIndex int    `toml:"start_index" yaml:"start_index"`
}

// VenueConfig holds the exchange connector settings. The API secret is
// either inline or an encrypted file written by lwkey.
type VenueConfig struct {
	Kind                string   `toml:"kind" yaml:"kind"`
	BaseURL             string   `toml:"base_url" yaml:"base_url"`
	Timeout             duration `toml:"timeout" yaml:"timeout"`
	APIKey              string   `toml:"api_key" yaml:"api_key"`
	APISecret           string   `toml:"api_secret" yaml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path" yaml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password" yaml:"secret_password"`
	Passphrase          string   `toml:"passphrase" yaml:"passphrase"`
}

// PaperConfig seeds the simulated venue.
type PaperConfig struct {
	StartPrice   string `toml:"start_price" yaml:"start_price"`
	BaseBalance  string `toml:"base_balance" yaml:"base_balance"`
	QuoteBalance string `toml:"quote_balance" yaml:"quote_balance"`
	Volatility   string `toml:"volatility" yaml:"volatility"`
	Seed         uint64 `toml:"seed" yaml:"seed"`
}

// ExecutorConfig tunes venue retries and throttling.
type ExecutorConfig struct {
	MaxAttempts   int      `toml:"max_attempts" yaml:"max_attempts"`
	Backoff       duration `toml:"backoff" yaml:"backoff"`
	RateLimit     int      `toml:"rate_limit" yaml:"rate_limit"`
	RateWindow    duration `toml:"rate_window" yaml:"rate_window"`
	ConfirmWindow duration `toml:"confirm_window" yaml:"confirm_window"`
}

// StoreConfig holds the local state directory.
type StoreConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// PostgresConfig enables the database mirror when DSN is set.
type PostgresConfig struct {
	DSN           string `toml:"dsn" yaml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig enables the market lock, the shared rate limiter and the
// signal bus when Addr or URL is set.
type RedisConfig struct {
	Addr       string   `toml:"addr" yaml:"addr"`
	URL        string   `toml:"url" yaml:"url"`
	Password   string   `toml:"password" yaml:"password"`
	DB         int      `toml:"db" yaml:"db"`
	PoolSize   int      `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int      `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled" yaml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl" yaml:"lock_ttl"`
	// Bus routes cycle reports through Redis pub/sub instead of straight
	// to the websocket hub.
	Bus bool `toml:"bus" yaml:"bus"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" || r.URL != "" }

// S3Config enables the archive when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// ArchiveConfig schedules the S3 uploads.
type ArchiveConfig struct {
	EventsCron   string `toml:"events_cron" yaml:"events_cron"`
	SnapshotCron string `toml:"snapshot_cron" yaml:"snapshot_cron"`
	// Day is the UTC day (YYYY-MM-DD) the archive mode uploads; empty
	// means yesterday.
	Day string `toml:"day" yaml:"day"`
}

// RecorderConfig enables the SQLite cycle history when Path is set.
type RecorderConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
	Addr        string   `toml:"addr" yaml:"addr"`
	APIKey      string   `toml:"api_key" yaml:"api_key"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit" yaml:"rate_limit"`
	RateWindow  duration `toml:"rate_window" yaml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	SlackWebhookURL   string `toml:"slack_webhook_url" yaml:"slack_webhook_url"`
	MinSeverity       string `toml:"min_severity" yaml:"min_severity"`
}

// PyroscopeConfig enables continuous profiling when ServerAddress is set.
type PyroscopeConfig struct {
	ServerAddress string `toml:"server_address" yaml:"server_address"`
	AppName       string `toml:"app_name" yaml:"app_name"`
}

// duration is a wrapper around time.Duration that decodes strings like
// "5s" or "2m" from both TOML and YAML.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Defaults returns a Config populated with the values used when a key is
// absent from the file.
func Defaults() Config {
	return Config{
		Strategy: StrategyConfig{
			OrdersPerInterval: 1,
			MinOrderAmount:    "0.001",
			FeeCoef:           "1",
			SpreadGap:         2,
			NbBuyToDisplay:    5,
			NbSellToDisplay:   5,
			ProfitsAlloc:      "0",
			Allocation:        AllocationConfig{Kind: "constant"},
		},
		Venue: VenueConfig{
			Kind:    "paper",
			Timeout: duration{10 * time.Second},
		},
		Paper: PaperConfig{
			BaseBalance:  "100",
			QuoteBalance: "10",
			Volatility:   "0.002",
			Seed:         1,
		},
		Executor: ExecutorConfig{
			MaxAttempts:   3,
			Backoff:       duration{500 * time.Millisecond},
			RateLimit:     10,
			RateWindow:    duration{time.Second},
			ConfirmWindow: duration{time.Minute},
		},
		Store: StoreConfig{Dir: "data"},
		Postgres: PostgresConfig{
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Archive: ArchiveConfig{
			EventsCron:   "15 0 * * *",
			SnapshotCron: "*/30 * * * *",
		},
		Server: ServerConfig{
			Enabled:    true,
			Addr:       ":8080",
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{MinSeverity: "warning"},
		Pyroscope: PyroscopeConfig{
			AppName: "lazywhale",
		},
		Mode:          "paper",
		LogLevel:      "info",
		CycleInterval: duration{5 * time.Second},
		AlertAfter:    10,
	}
}

// Validate checks the configuration for obvious errors and returns a single
// error listing every problem found, or nil.
func (c *Config) Validate() error {
	var errs []string

	switch c.Mode {
	case "run", "paper", "archive":
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, paper, archive)", c.Mode))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.CycleInterval.Duration <= 0 {
		errs = append(errs, "cycle_interval must be > 0")
	}
	if c.AlertAfter < 1 {
		errs = append(errs, "alert_after must be >= 1")
	}

	// Ladder rules are checked by the engine parameters themselves.
	if _, err := c.StrategyParams(); err != nil {
		errs = append(errs, "strategy: "+err.Error())
	}

	if c.Mode == "run" {
		if c.Venue.Kind != "rest" {
			errs = append(errs, fmt.Sprintf("venue: kind must be rest for mode run, got %q", c.Venue.Kind))
		}
		if c.Venue.BaseURL == "" {
			errs = append(errs, "venue: base_url must not be empty for mode run")
		}
		if c.Venue.APIKey == "" {
			errs = append(errs, "venue: api_key must not be empty for mode run")
		}
		if c.Venue.APISecret == "" && c.Venue.EncryptedSecretPath == "" {
			errs = append(errs, "venue: either api_secret or encrypted_secret_path must be set for mode run")
		}
	}
	if c.Venue.EncryptedSecretPath != "" && c.Venue.SecretPassword == "" {
		errs = append(errs, "venue: secret_password is required when encrypted_secret_path is set")
	}

	if c.Executor.MaxAttempts < 1 {
		errs = append(errs, "executor: max_attempts must be >= 1")
	}
	if c.Executor.RateLimit < 0 {
		errs = append(errs, "executor: rate_limit must be >= 0")
	}

	if strings.TrimSpace(c.Store.Dir) == "" {
		errs = append(errs, "store: dir must not be empty")
	}

	if c.Postgres.DSN != "" {
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled() && c.Redis.LockTTL.Duration < time.Second {
		errs = append(errs, "redis: lock_ttl must be >= 1s")
	}
	if c.Redis.Bus && !c.Redis.Enabled() {
		errs = append(errs, "redis: bus requires addr or url")
	}

	if c.Mode == "archive" && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty for mode archive")
	}
	if c.Archive.Day != "" {
		if _, err := time.Parse(time.DateOnly, c.Archive.Day); err != nil {
			errs = append(errs, fmt.Sprintf("archive: day %q is not YYYY-MM-DD", c.Archive.Day))
		}
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty when enabled")
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required with telegram_token")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
