// Package config loads daemon settings from defaults, an optional YAML
// file (CONFIG_FILE) and environment variables, in that order of
// precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"xau-signal/internal/indicator"
	"xau-signal/internal/logger"
	"xau-signal/internal/marketdata"
	"xau-signal/internal/risk"
	"xau-signal/internal/strategy"
)

// Default symbols per feed. Binance has no gold futures, so PAX Gold stands in.
const (
	DefaultSymbol        = "GC=F"
	DefaultBinanceSymbol = "PAXGUSDT"
)

// Feed and store backend names.
const (
	FeedYahoo   = "yahoo"
	FeedBinance = "binance"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds all daemon configuration.
type Config struct {
	// Market data
	Symbol         string `yaml:"symbol"`
	Interval       string `yaml:"interval"`
	Lookback       string `yaml:"lookback"`
	Feed           string `yaml:"feed"`
	BinanceBaseURL string `yaml:"binance_base_url"`
	NewsLimit      int    `yaml:"news_limit"`

	// Indicators and classification
	EMAFast    int                 `yaml:"ema_fast"`
	EMASlow    int                 `yaml:"ema_slow"`
	RSILength  int                 `yaml:"rsi_length"`
	Strategy   string              `yaml:"strategy"`
	Thresholds strategy.Thresholds `yaml:"thresholds"`

	Risk risk.Params `yaml:"risk"`

	// Loop cadence
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
	FetchTimeoutSeconds int  `yaml:"fetch_timeout_seconds"`
	SkipWhenClosed      bool `yaml:"skip_when_closed"`

	Store  StoreConfig  `yaml:"store"`
	Notify NotifyConfig `yaml:"notify"`

	HTTPAddr   string `yaml:"http_addr"`
	TOTPSecret string `yaml:"totp_secret"`
	WorkerID   string `yaml:"worker_id"`
	LogLevel   string `yaml:"log_level"`
}

// StoreConfig selects and configures the history table backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Sheet         string `yaml:"sheet"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	BreakerFailures     int `yaml:"breaker_failures"`
	BreakerResetSeconds int `yaml:"breaker_reset_seconds"`
}

// NotifyConfig lists alert targets. Empty values disable a target.
type NotifyConfig struct {
	Log            bool   `yaml:"log"`
	WebhookURL     string `yaml:"webhook_url"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// Default returns the configuration used when nothing is set: GC=F on
// 15m bars over 7 days, EMA 20/50, RSI 14, trend+oscillator, a 60s
// poll and a SQLite history table at data/signals.db.
func Default() Config {
	return Config{
		Symbol:    DefaultSymbol,
		Interval:  "15m",
		Lookback:  "7d",
		Feed:      FeedYahoo,
		NewsLimit: 5,

		EMAFast:    20,
		EMASlow:    50,
		RSILength:  14,
		Strategy:   strategy.NameTrendOscillator,
		Thresholds: strategy.DefaultThresholds(),

		Risk: risk.DefaultParams(),

		PollIntervalSeconds: 60,
		FetchTimeoutSeconds: 15,

		Store: StoreConfig{
			Backend:             StoreSQLite,
			Sheet:               "history",
			SQLitePath:          "data/signals.db",
			RedisAddr:           "localhost:6379",
			BreakerFailures:     5,
			BreakerResetSeconds: 30,
		},
		Notify: NotifyConfig{Log: true},

		HTTPAddr: ":8080",
		LogLevel: "info",
	}
}

// Load builds the configuration and validates it. A missing worker id is
// filled with a random UUID so concurrent instances stay distinguishable.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if cfg.Feed == FeedBinance && cfg.Symbol == DefaultSymbol {
		cfg.Symbol = DefaultBinanceSymbol
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	c.Symbol = getEnv("SYMBOL", c.Symbol)
	c.Interval = getEnv("INTERVAL", c.Interval)
	c.Lookback = getEnv("LOOKBACK", c.Lookback)
	c.Feed = getEnv("FEED", c.Feed)
	c.BinanceBaseURL = getEnv("BINANCE_BASE_URL", c.BinanceBaseURL)
	c.Strategy = getEnv("STRATEGY", c.Strategy)
	c.Risk.Mode = risk.TargetMode(getEnv("TARGET_MODE", string(c.Risk.Mode)))

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Sheet = getEnv("STORE_SHEET", c.Store.Sheet)
	c.Store.SQLitePath = getEnv("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("REDIS_PASSWORD", c.Store.RedisPassword)

	c.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.TOTPSecret = getEnv("REFRESH_TOTP_SECRET", c.TOTPSecret)
	c.WorkerID = getEnv("WORKER_ID", c.WorkerID)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	return errors.Join(
		envInt("NEWS_LIMIT", &c.NewsLimit),
		envInt("EMA_FAST", &c.EMAFast),
		envInt("EMA_SLOW", &c.EMASlow),
		envInt("RSI_LENGTH", &c.RSILength),
		envInt("POLL_INTERVAL_SECONDS", &c.PollIntervalSeconds),
		envInt("FETCH_TIMEOUT_SECONDS", &c.FetchTimeoutSeconds),
		envInt("REDIS_DB", &c.Store.RedisDB),
		envInt("STORE_BREAKER_FAILURES", &c.Store.BreakerFailures),
		envInt("STORE_BREAKER_RESET_SECONDS", &c.Store.BreakerResetSeconds),
		envFloat("BUY_RSI_CEILING", &c.Thresholds.BuyRSICeiling),
		envFloat("SELL_RSI_FLOOR", &c.Thresholds.SellRSIFloor),
		envFloat("PATTERN_RSI_UPPER", &c.Thresholds.PatternRSIUpper),
		envFloat("PATTERN_RSI_LOWER", &c.Thresholds.PatternRSILower),
		envFloat("BALANCE", &c.Risk.Balance),
		envFloat("RISK_PCT", &c.Risk.RiskPct),
		envFloat("SL_DISTANCE", &c.Risk.SLDistance),
		envFloat("TP_DISTANCE", &c.Risk.TPDistance),
		envFloat("TP_SL_RATIO", &c.Risk.TPSLRatio),
		envBool("SKIP_WHEN_CLOSED", &c.SkipWhenClosed),
		envBool("NOTIFY_LOG", &c.Notify.Log),
	)
}

// Validate rejects out-of-domain settings. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if _, err := marketdata.BarCount(c.Interval, c.Lookback); err != nil {
		errs = append(errs, fmt.Errorf("interval/lookback: %w", err))
	}
	switch c.Feed {
	case FeedYahoo:
	case FeedBinance:
		if strings.ContainsAny(c.Symbol, "=^.") {
			errs = append(errs, fmt.Errorf("symbol %q is a Yahoo ticker, binance feed needs a spot pair such as %s", c.Symbol, DefaultBinanceSymbol))
		}
	default:
		errs = append(errs, fmt.Errorf("feed %q (want %s or %s)", c.Feed, FeedYahoo, FeedBinance))
	}
	if err := c.IndicatorConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"buy_rsi_ceiling", c.Thresholds.BuyRSICeiling},
		{"sell_rsi_floor", c.Thresholds.SellRSIFloor},
		{"pattern_rsi_upper", c.Thresholds.PatternRSIUpper},
		{"pattern_rsi_lower", c.Thresholds.PatternRSILower},
	} {
		if math.IsNaN(th.v) || math.IsInf(th.v, 0) {
			errs = append(errs, fmt.Errorf("%s must be finite, got %v", th.name, th.v))
		}
	}
	if _, err := strategy.New(c.Strategy, c.Thresholds); err != nil {
		errs = append(errs, err)
	}
	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_seconds must be > 0, got %d", c.PollIntervalSeconds))
	}
	if c.FetchTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout_seconds must be > 0, got %d", c.FetchTimeoutSeconds))
	}
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("store backend %q (want memory, sqlite or redis)", c.Store.Backend))
	}
	if c.Store.BreakerFailures <= 0 || c.Store.BreakerResetSeconds <= 0 {
		errs = append(errs, errors.New("store breaker failures and reset seconds must be > 0"))
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, errors.New("telegram needs both bot token and chat id"))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IndicatorConfig returns the indicator periods.
func (c *Config) IndicatorConfig() indicator.Config {
	return indicator.Config{EMAFast: c.EMAFast, EMASlow: c.EMASlow, RSI: c.RSILength}
}

// PollInterval returns the loop cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FetchTimeout returns the per-request feed bound.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// BreakerReset returns how long the store breaker stays open.
func (c *Config) BreakerReset() time.Duration {
	return time.Duration(c.Store.BreakerResetSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("config: %s=%q: not a finite number", key, v)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = b
	return nil
}
