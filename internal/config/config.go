// Package config defines server configuration: a single YAML file
// (default path: config.yaml) with credential-bearing fields
// overridable via TRADECORE_* environment variables.
//
// Grounded on the teacher's internal/config/config.go for the struct-
// of-structs shape and yaml.v3 file parsing, and on
// 0xtitan6-polymarket-mm's internal/config/config.go for the viper-based
// env-layering (SetEnvPrefix/SetEnvKeyReplacer/AutomaticEnv), adopted
// here because the teacher's hand-rolled per-field ApplyEnv doesn't
// scale to this spec's several independent credential sets (one broker
// adapter config per account group, plus webhook per-source secrets).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration. Maps directly to the
// YAML file structure.
type Config struct {
	Bind        string `yaml:"bind"`
	Mode        string `yaml:"mode"` // "dev" or "prod"
	TradingMode string `yaml:"trading_mode"` // "paper" or "live"
	LogLevel    string `yaml:"log_level"`

	Instruments []InstrumentConfig          `yaml:"instruments"`
	Webhook     WebhookConfig               `yaml:"webhook"`
	Accounts    map[string]AccountConfig    `yaml:"accounts"`
	Paper       PaperConfig                 `yaml:"paper"`
	Sandbox     map[string]SandboxConfig    `yaml:"sandbox"`
	Hub         HubConfig                   `yaml:"hub"`
	Ledger      LedgerConfig                `yaml:"ledger"`
	API         APIConfig                   `yaml:"api"`
	Telegram    TelegramConfig              `yaml:"telegram"`
}

// InstrumentConfig seeds one registry.Registry entry.
type InstrumentConfig struct {
	Symbol       string  `yaml:"symbol"`
	AssetClass   string  `yaml:"asset_class"`
	TickSize     float64 `yaml:"tick_size"`
	Multiplier   float64 `yaml:"multiplier"`
	OpenHourUTC  int     `yaml:"open_hour_utc"`
	CloseHourUTC int     `yaml:"close_hour_utc"`
}

// WebhookConfig controls the inbound signal receiver (C6).
type WebhookConfig struct {
	Sources    map[string]WebhookSourceConfig `yaml:"sources"`
	DedupTTL   time.Duration                  `yaml:"dedup_ttl"`
	SweepEvery time.Duration                  `yaml:"sweep_every"`
}

// WebhookSourceConfig is one signal source's HMAC secret and rate
// limit. Secret is overridable via TRADECORE_WEBHOOK_SOURCES_<NAME>_SECRET.
type WebhookSourceConfig struct {
	Secret          string `yaml:"secret"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// AccountConfig is one funded account's rule limits plus which
// destination (paper engine or a named sandbox/live adapter) its
// orders route to.
type AccountConfig struct {
	Destination             string   `yaml:"destination"` // "paper" or a key into Sandbox
	MaxDailyLoss            float64  `yaml:"max_daily_loss"`
	TrailingDrawdown        float64  `yaml:"trailing_drawdown"`
	MaxContracts            float64  `yaml:"max_contracts"`
	ProfitTarget            *float64 `yaml:"profit_target"`
	MinTradingDays          *int     `yaml:"min_trading_days"`
	RestrictedSymbols       []string `yaml:"restricted_symbols"`
	AllowOvernight          bool     `yaml:"allow_overnight"`
	AllowNewsTrading        bool     `yaml:"allow_news_trading"`
	OpenHourUTC             int      `yaml:"open_hour_utc"`
	CloseHourUTC            int      `yaml:"close_hour_utc"`
	RiskPct                 float64  `yaml:"risk_pct"`
}

// PaperConfig controls the paper-trading engine (C3).
type PaperConfig struct {
	InitialBalance                  float64       `yaml:"initial_balance"`
	BuyingPowerMultiplier           float64       `yaml:"buying_power_multiplier"`
	CommissionPerSide               float64       `yaml:"commission_per_side"`
	SlippageBps                     float64       `yaml:"slippage_bps"`
	PartialFillProbability          float64       `yaml:"partial_fill_probability"`
	RejectOnInsufficientBuyingPower bool          `yaml:"reject_on_insufficient_buying_power"`
	MarketHoursOnly                 bool          `yaml:"market_hours_only"`
	TickInterval                    time.Duration `yaml:"tick_interval"`
	WalkBps                         float64       `yaml:"walk_bps"`
	SpreadBps                       float64       `yaml:"spread_bps"`
}

// SandboxConfig is one sandbox/live BrokerAdapter connection.
// CredentialsRef and APIKey are overridable via
// TRADECORE_SANDBOX_<NAME>_CREDENTIALS_REF / _API_KEY.
type SandboxConfig struct {
	BaseURL         string `yaml:"base_url"`
	CredentialsRef  string `yaml:"credentials_ref"`
	APIKey          string `yaml:"api_key"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// HubConfig controls the broadcast hub (C8).
type HubConfig struct {
	// ClientBufferSize is validated but not read by the hub, whose
	// per-client outbound buffer is fixed at 1024 frames.
	ClientBufferSize  int           `yaml:"client_buffer_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LedgerConfig controls the append-only alert ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// APIConfig controls the HTTP/WS transport server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TelegramConfig controls the operator notifier. BotToken is
// overridable via TRADECORE_TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Default returns the baseline configuration applied before a YAML
// file and env overrides are layered on top.
func Default() Config {
	return Config{
		Bind:        ":8080",
		Mode:        "dev",
		TradingMode: "paper",
		LogLevel:    "info",
		Webhook: WebhookConfig{
			Sources:    map[string]WebhookSourceConfig{},
			DedupTTL:   10 * time.Minute,
			SweepEvery: time.Minute,
		},
		Accounts: map[string]AccountConfig{},
		Paper: PaperConfig{
			InitialBalance:                  50000,
			BuyingPowerMultiplier:           1,
			CommissionPerSide:               0,
			SlippageBps:                     5,
			PartialFillProbability:          0,
			RejectOnInsufficientBuyingPower: true,
			MarketHoursOnly:                 false,
			TickInterval:                    time.Second,
			WalkBps:                         5,
			SpreadBps:                       4,
		},
		Sandbox: map[string]SandboxConfig{},
		Hub: HubConfig{
			ClientBufferSize:  64,
			HeartbeatInterval: 15 * time.Second,
		},
		Ledger: LedgerConfig{
			Path: "tradecore.db",
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

// LoadFile parses the YAML file at path over the defaults, then layers
// environment overrides for credential-bearing fields on top via
// ApplyEnv.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config.LoadFile: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config.LoadFile: parse %q: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv layers TRADECORE_*-prefixed environment variables over the
// config's credential and secret fields, using viper's automatic-env
// binding rather than a hand-written per-field os.Getenv chain, since
// the number of independently-credentialed subsystems (per-source
// webhook secrets, per-sandbox credentials, the Telegram bot token)
// grows with the number of configured accounts and sources.
func (c *Config) ApplyEnv() {
	v := viper.New()
	v.SetEnvPrefix("TRADECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if val := v.GetString("TELEGRAM_BOT_TOKEN"); val != "" {
		c.Telegram.BotToken = val
	}
	if val := v.GetString("TELEGRAM_CHAT_ID"); val != "" {
		c.Telegram.ChatID = val
	}
	for name, src := range c.Webhook.Sources {
		key := "WEBHOOK_SOURCES_" + strings.ToUpper(name) + "_SECRET"
		if val := v.GetString(key); val != "" {
			src.Secret = val
			c.Webhook.Sources[name] = src
		}
	}
	for name, sb := range c.Sandbox {
		refKey := "SANDBOX_" + strings.ToUpper(name) + "_CREDENTIALS_REF"
		keyKey := "SANDBOX_" + strings.ToUpper(name) + "_API_KEY"
		if val := v.GetString(refKey); val != "" {
			sb.CredentialsRef = val
		}
		if val := v.GetString(keyKey); val != "" {
			sb.APIKey = val
		}
		c.Sandbox[name] = sb
	}
	if val := strings.TrimSpace(os.Getenv("TRADECORE_MODE")); val != "" {
		c.Mode = strings.ToLower(val)
	}
	if val := strings.TrimSpace(os.Getenv("TRADECORE_TRADING_MODE")); val != "" {
		c.TradingMode = strings.ToLower(val)
	}
}
