package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"exbitrage/internal/exchange"
	"exbitrage/internal/logger"
	"exbitrage/internal/transport"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

type Config struct {
	Environment Environment `yaml:"environment"`
	// Debug routes traffic through the local intercepting proxy. Never allowed in production.
	Debug         bool                   `yaml:"debug"`
	FailurePolicy exchange.FailurePolicy `yaml:"failure_policy"`
	HTTP          HTTPConfig             `yaml:"http"`
	Logging       LoggingConfig          `yaml:"logging"`
	Bitkub        BitkubConfig           `yaml:"bitkub"`
	Satang        SatangConfig           `yaml:"satang"`
	Arbitrage     ArbitrageConfig        `yaml:"arbitrage"`
	State         StateConfig            `yaml:"state"`
	Observability ObservabilityConfig    `yaml:"observability"`
}

type HTTPConfig struct {
	TimeoutSec        int64   `yaml:"timeout_sec"`
	UserAgent         string  `yaml:"user_agent"`
	ProxyURL          string  `yaml:"proxy_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type BitkubConfig struct {
	RestBaseURL string `yaml:"rest_base_url"`
	WSBaseURL   string `yaml:"ws_base_url"`
	Symbol      string `yaml:"symbol"`
}

type SatangConfig struct {
	RestBaseURL string `yaml:"rest_base_url"`
	Pair        string `yaml:"pair"`
}

type ArbitrageConfig struct {
	IntervalSec int64 `yaml:"interval_sec"`
	DepthLimit  int   `yaml:"depth_limit"`
	// MinSpread travels on every snapshot; Snapshot.Opportunity compares against it.
	MinSpread Decimal `yaml:"min_spread"`
}

// StateConfig enables snapshot persistence for the coordinator. Empty Dir disables it.
type StateConfig struct {
	Dir          string `yaml:"dir"`
	Journal      bool   `yaml:"journal"`
	LockTakeover *bool  `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type ObservabilityConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

type AlertsConfig struct {
	QueueSize     int   `yaml:"queue_size"`
	DropReportSec int64 `yaml:"drop_report_sec"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes a single strict YAML document and applies defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, err
	}
	if err := dec.Decode(new(yaml.Node)); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.normalize()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) normalize() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	c.FailurePolicy = exchange.FailurePolicy(strings.ToLower(strings.TrimSpace(string(c.FailurePolicy))))
	c.HTTP.UserAgent = strings.TrimSpace(c.HTTP.UserAgent)
	c.HTTP.ProxyURL = strings.TrimSpace(c.HTTP.ProxyURL)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Output = strings.TrimSpace(c.Logging.Output)
	c.Bitkub.RestBaseURL = strings.TrimRight(strings.TrimSpace(c.Bitkub.RestBaseURL), "/")
	c.Bitkub.WSBaseURL = strings.TrimRight(strings.TrimSpace(c.Bitkub.WSBaseURL), "/")
	c.Bitkub.Symbol = strings.ToUpper(strings.TrimSpace(c.Bitkub.Symbol))
	c.Satang.RestBaseURL = strings.TrimRight(strings.TrimSpace(c.Satang.RestBaseURL), "/")
	c.Satang.Pair = strings.ToLower(strings.TrimSpace(c.Satang.Pair))
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = exchange.PolicyFor(c.Debug)
	}
	if c.HTTP.TimeoutSec == 0 {
		c.HTTP.TimeoutSec = int64(transport.DefaultTimeout / time.Second)
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = transport.DefaultUserAgent
	}
	if c.HTTP.ProxyURL == "" {
		c.HTTP.ProxyURL = transport.DefaultDebugProxy
	}
	if c.HTTP.RequestsPerSecond > 0 && c.HTTP.Burst == 0 {
		c.HTTP.Burst = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
		if c.Debug {
			c.Logging.Level = "debug"
		}
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
	if c.Bitkub.RestBaseURL == "" {
		c.Bitkub.RestBaseURL = "https://api.bitkub.com/api"
	}
	if c.Bitkub.WSBaseURL == "" {
		c.Bitkub.WSBaseURL = "wss://api.bitkub.com/websocket-api"
	}
	if c.Bitkub.Symbol == "" {
		c.Bitkub.Symbol = "THB_BTC"
	}
	if c.Satang.RestBaseURL == "" {
		c.Satang.RestBaseURL = "https://api.satang.pro/api"
	}
	if c.Satang.Pair == "" {
		c.Satang.Pair = "btc_thb"
	}
	if c.Arbitrage.IntervalSec == 0 {
		c.Arbitrage.IntervalSec = 10
	}
	if c.Arbitrage.DepthLimit == 0 {
		c.Arbitrage.DepthLimit = 10
	}
	if c.State.LockTakeover == nil {
		takeover := true
		c.State.LockTakeover = &takeover
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
	if c.Observability.Alerts.QueueSize == 0 {
		c.Observability.Alerts.QueueSize = 128
	}
	if c.Observability.Alerts.DropReportSec == 0 {
		c.Observability.Alerts.DropReportSec = 60
	}
}

func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("environment must be development or production")
	}
	if c.Debug && c.Environment == EnvProduction {
		return fmt.Errorf("debug mode is not allowed in production")
	}
	if _, err := exchange.ParseFailurePolicy(string(c.FailurePolicy)); err != nil {
		return err
	}
	if c.HTTP.TimeoutSec < 1 || c.HTTP.TimeoutSec > 120 {
		return fmt.Errorf("http.timeout_sec must be between 1 and 120")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.HTTP.Burst < 0 {
		return fmt.Errorf("http.burst must be >= 0")
	}
	if c.Debug {
		if err := validateURL(c.HTTP.ProxyURL, "http", "https"); err != nil {
			return fmt.Errorf("http.proxy_url %v", err)
		}
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be json or text")
	}
	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging.max_age_days must be >= 0")
	}
	if err := validateURL(c.Bitkub.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("bitkub.rest_base_url %v", err)
	}
	if err := validateURL(c.Bitkub.WSBaseURL, "ws", "wss"); err != nil {
		return fmt.Errorf("bitkub.ws_base_url %v", err)
	}
	if !isValidPair(c.Bitkub.Symbol) {
		return fmt.Errorf("bitkub.symbol must look like THB_BTC")
	}
	if err := validateURL(c.Satang.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("satang.rest_base_url %v", err)
	}
	if !isValidPair(c.Satang.Pair) {
		return fmt.Errorf("satang.pair must look like btc_thb")
	}
	if c.Arbitrage.IntervalSec < 1 || c.Arbitrage.IntervalSec > 3600 {
		return fmt.Errorf("arbitrage.interval_sec must be between 1 and 3600")
	}
	if c.Arbitrage.DepthLimit < 1 || c.Arbitrage.DepthLimit > 1000 {
		return fmt.Errorf("arbitrage.depth_limit must be between 1 and 1000")
	}
	if c.Arbitrage.MinSpread.Cmp(decimal.Zero) < 0 {
		return fmt.Errorf("arbitrage.min_spread must be >= 0")
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	if c.Observability.Alerts.QueueSize < 1 {
		return fmt.Errorf("observability.alerts.queue_size must be >= 1")
	}
	if c.Observability.Alerts.DropReportSec < 0 || c.Observability.Alerts.DropReportSec > 3600 {
		return fmt.Errorf("observability.alerts.drop_report_sec must be between 0 and 3600")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	return nil
}

// TransportOptions builds the per-client HTTP settings. Each exchange client
// gets its own transport from these.
func (c Config) TransportOptions(log *logger.Log) transport.Options {
	opts := transport.Options{
		Timeout:           time.Duration(c.HTTP.TimeoutSec) * time.Second,
		UserAgent:         c.HTTP.UserAgent,
		Debug:             c.Debug,
		RequestsPerSecond: c.HTTP.RequestsPerSecond,
		Burst:             c.HTTP.Burst,
		Logger:            log,
	}
	if c.Debug {
		opts.ProxyURL = c.HTTP.ProxyURL
	}
	return opts
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.Arbitrage.IntervalSec) * time.Second
}

// isValidPair accepts BASE_QUOTE style pairs in either case.
func isValidPair(v string) bool {
	if len(v) < 3 || len(v) > 20 {
		return false
	}
	sep := strings.IndexByte(v, '_')
	if sep <= 0 || sep == len(v)-1 || strings.Count(v, "_") != 1 {
		return false
	}
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
