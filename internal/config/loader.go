package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a TOML (or, for .yaml/.yml files, YAML) configuration file at
// path, merges it on top of the built-in defaults, applies LAZYWHALE_*
// environment variable overrides, and returns the final Config. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LAZYWHALE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the file.
func applyEnvOverrides(cfg *Config) {
	// ── Strategy ──
	setStr(&cfg.Strategy.Market, "LAZYWHALE_STRATEGY_MARKET")
	setStr(&cfg.Strategy.Amount, "LAZYWHALE_STRATEGY_AMOUNT")
	setStr(&cfg.Strategy.SpreadBot, "LAZYWHALE_STRATEGY_SPREAD_BOT")
	setStr(&cfg.Strategy.SpreadTop, "LAZYWHALE_STRATEGY_SPREAD_TOP")
	setInt(&cfg.Strategy.NbBuyToDisplay, "LAZYWHALE_STRATEGY_NB_BUY_TO_DISPLAY")
	setInt(&cfg.Strategy.NbSellToDisplay, "LAZYWHALE_STRATEGY_NB_SELL_TO_DISPLAY")
	setBool(&cfg.Strategy.StopAtBot, "LAZYWHALE_STRATEGY_STOP_AT_BOT")
	setBool(&cfg.Strategy.StopAtTop, "LAZYWHALE_STRATEGY_STOP_AT_TOP")

	// ── Venue ──
	setStr(&cfg.Venue.Kind, "LAZYWHALE_VENUE_KIND")
	setStr(&cfg.Venue.BaseURL, "LAZYWHALE_VENUE_BASE_URL")
	setStr(&cfg.Venue.APIKey, "LAZYWHALE_VENUE_API_KEY")
	setStr(&cfg.Venue.APISecret, "LAZYWHALE_VENUE_API_SECRET")
	setStr(&cfg.Venue.EncryptedSecretPath, "LAZYWHALE_VENUE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Venue.SecretPassword, "LAZYWHALE_VENUE_SECRET_PASSWORD")
	setStr(&cfg.Venue.Passphrase, "LAZYWHALE_VENUE_PASSPHRASE")

	// ── Store ──
	setStr(&cfg.Store.Dir, "LAZYWHALE_STORE_DIR")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LAZYWHALE_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "LAZYWHALE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LAZYWHALE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LAZYWHALE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LAZYWHALE_REDIS_ADDR")
	setStr(&cfg.Redis.URL, "LAZYWHALE_REDIS_URL")
	setStr(&cfg.Redis.Password, "LAZYWHALE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LAZYWHALE_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "LAZYWHALE_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "LAZYWHALE_REDIS_LOCK_TTL")
	setBool(&cfg.Redis.Bus, "LAZYWHALE_REDIS_BUS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LAZYWHALE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LAZYWHALE_S3_REGION")
	setStr(&cfg.S3.Bucket, "LAZYWHALE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LAZYWHALE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LAZYWHALE_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "LAZYWHALE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.Archive.Day, "LAZYWHALE_ARCHIVE_DAY")

	// ── Recorder ──
	setStr(&cfg.Recorder.Path, "LAZYWHALE_RECORDER_PATH")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LAZYWHALE_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "LAZYWHALE_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "LAZYWHALE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "LAZYWHALE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LAZYWHALE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LAZYWHALE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LAZYWHALE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.SlackWebhookURL, "LAZYWHALE_NOTIFY_SLACK_WEBHOOK_URL")
	setStr(&cfg.Notify.MinSeverity, "LAZYWHALE_NOTIFY_MIN_SEVERITY")

	// ── Pyroscope ──
	setStr(&cfg.Pyroscope.ServerAddress, "LAZYWHALE_PYROSCOPE_SERVER_ADDRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LAZYWHALE_MODE")
	setStr(&cfg.LogLevel, "LAZYWHALE_LOG_LEVEL")
	setDuration(&cfg.CycleInterval, "LAZYWHALE_CYCLE_INTERVAL")
	setInt(&cfg.AlertAfter, "LAZYWHALE_ALERT_AFTER")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
