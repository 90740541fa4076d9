// Package config provides a typed, enumerated configuration struct
// constructed once at startup, replacing the teacher's TOML-file
// configuration with the env-var-only process boundary spec.md §6.4
// requires.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/ehmo/sovi/internal/domain"
)

// Config holds all process configuration, loaded from environment
// variables and validated before use.
type Config struct {
	MasterKeyB64 string `env:"SOVI_MASTER_KEY,required" validate:"required"`
	DatabaseURL  string `env:"SOVI_DATABASE_URL,required" validate:"required"`

	OpsHost string `env:"SOVI_OPS_HOST" envDefault:"127.0.0.1"`
	OpsPort int    `env:"SOVI_OPS_PORT" envDefault:"9090" validate:"gte=1,lte=65535"`

	IdleInterval     int `env:"SOVI_IDLE_INTERVAL_SECONDS" envDefault:"30" validate:"gt=0"`
	CooldownInterval int `env:"SOVI_COOLDOWN_INTERVAL_SECONDS" envDefault:"30" validate:"gt=0"`
	SessionBudget    int `env:"SOVI_SESSION_BUDGET_SECONDS" envDefault:"2700" validate:"gt=0"`
	WarmingBudget    int `env:"SOVI_WARMING_BUDGET_SECONDS" envDefault:"1800" validate:"gt=0"`
	InstallLoginBudget int `env:"SOVI_INSTALL_LOGIN_BUDGET_SECONDS" envDefault:"900" validate:"gt=0"`
	ShutdownGrace    int `env:"SOVI_SHUTDOWN_GRACE_SECONDS" envDefault:"30" validate:"gt=0"`
	ProbeBackoffInitial int `env:"SOVI_PROBE_BACKOFF_INITIAL_SECONDS" envDefault:"60" validate:"gt=0"`
	ProbeBackoffMax     int `env:"SOVI_PROBE_BACKOFF_MAX_SECONDS" envDefault:"900" validate:"gt=0"`

	DBMaxOpenConns int `env:"SOVI_DB_MAX_OPEN_CONNS" envDefault:"10" validate:"gt=0"`
	DBMaxIdleConns int `env:"SOVI_DB_MAX_IDLE_CONNS" envDefault:"2" validate:"gt=0"`

	GestureTimeoutSeconds int `env:"SOVI_AGENT_GESTURE_TIMEOUT_SECONDS" envDefault:"10" validate:"gt=0"`
	ReadTimeoutSeconds    int `env:"SOVI_AGENT_READ_TIMEOUT_SECONDS" envDefault:"60" validate:"gt=0"`

	// CAPTCHA/IMAP/SMS are optional — absence only gates the creation runner
	// (spec.md §9 Open Question 1, resolved as non-fatal; see DESIGN.md).
	CaptchaAPIURL string `env:"SOVI_CAPTCHA_API_URL"`
	CaptchaAPIKey string `env:"SOVI_CAPTCHA_API_KEY"`

	IMAPHost     string `env:"SOVI_IMAP_HOST"`
	IMAPPort     int    `env:"SOVI_IMAP_PORT" envDefault:"993"`
	IMAPUser     string `env:"SOVI_IMAP_USER"`
	IMAPPassword string `env:"SOVI_IMAP_PASSWORD"`

	SMSAPIURL string `env:"SOVI_SMS_API_URL"`
	SMSAPIKey string `env:"SOVI_SMS_API_KEY"`

	SlackBotToken    string `env:"SOVI_SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SOVI_SLACK_ALERT_CHANNEL"`

	// Install sources point the session/creation runners at wherever a
	// fresh app binary is fetched from for the uninstall/reinstall step
	// (§4.4) — an internal app-store mirror or a pinned IPA, supplied
	// externally per spec.md §4.4's own phrasing.
	TikTokInstallSource    string `env:"SOVI_TIKTOK_INSTALL_SOURCE"`
	InstagramInstallSource string `env:"SOVI_INSTAGRAM_INSTALL_SOURCE"`

	// HeartbeatStaleAfterSeconds bounds how long a device may go without
	// a heartbeat (touched every scheduler iteration, §4.3 step 1)
	// before health.Checker's device_heartbeats check flags it.
	HeartbeatStaleAfterSeconds int `env:"SOVI_HEARTBEAT_STALE_AFTER_SECONDS" envDefault:"300" validate:"gt=0"`

	LogLevel string `env:"SOVI_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

// InstallSources returns the platform→source map for the session and
// creation runners' app-reset step.
func (c *Config) InstallSources() map[domain.Platform]string {
	return map[domain.Platform]string{
		domain.PlatformTikTok:    c.TikTokInstallSource,
		domain.PlatformInstagram: c.InstagramInstallSource,
	}
}

// Load reads and validates configuration from the environment. A
// missing master key or database URL is a fatal startup error per
// spec.md §6.4; everything else has a sane default.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// HasCreationCollaborators reports whether CAPTCHA, IMAP, and SMS are
// all configured — the account creation runner's precondition (§4.7).
func (c *Config) HasCreationCollaborators() bool {
	return c.CaptchaAPIURL != "" && c.CaptchaAPIKey != "" &&
		c.IMAPHost != "" && c.IMAPUser != "" && c.IMAPPassword != "" &&
		c.SMSAPIURL != "" && c.SMSAPIKey != ""
}

// HasSlack reports whether the notify.Notifier should be enabled.
func (c *Config) HasSlack() bool {
	return c.SlackBotToken != "" && c.SlackAlertChannel != ""
}

// OpsAddr returns the listen address for the ops-only HTTP surface.
func (c *Config) OpsAddr() string {
	return fmt.Sprintf("%s:%d", c.OpsHost, c.OpsPort)
}
