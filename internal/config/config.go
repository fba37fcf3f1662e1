package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// Config holds all configuration for the trigger monitor.
// Values are loaded from environment variables; see the serve command help for the full list.
type Config struct {
	RPCURL           string `json:"rpc_url"`
	ContractAddress  string `json:"contract_address"`
	WorkerPrivateKey string `json:"-"`
	ChainID          int64  `json:"chain_id"`
	PriceDecimals    int32  `json:"price_decimals"`

	// MonitoredFeeds is "SYMBOL:index,..."; FeedsFile is a YAML feed list and wins when set.
	MonitoredFeeds string        `json:"monitored_feeds"`
	FeedsFile      string        `json:"feeds_file,omitempty"`
	Feeds          []domain.Feed `json:"-"`
	feedsErr       error

	CycleSchedule string `json:"cycle_schedule"`
	Timezone      string `json:"timezone,omitempty"`

	ExecutionTimeout    time.Duration `json:"-"`
	ExecutionTimeoutStr string        `json:"execution_timeout"`
	StartGuardTTL       time.Duration `json:"-"`
	StartGuardTTLStr    string        `json:"start_guard_ttl"`

	MaxRetries          int           `json:"max_retries"`
	RetryDelay          time.Duration `json:"-"`
	RetryDelayStr       string        `json:"retry_delay"`
	RecoveryInterval    time.Duration `json:"-"`
	RecoveryIntervalStr string        `json:"recovery_interval"`
	RPCTimeout          time.Duration `json:"-"`
	RPCTimeoutStr       string        `json:"rpc_timeout"`
	ReceiptTimeout      time.Duration `json:"-"`
	ReceiptTimeoutStr   string        `json:"receipt_timeout"`

	ScanConcurrency   int `json:"scan_concurrency"`
	OracleConcurrency int `json:"oracle_concurrency"`

	// ResilienceMode: "halt" stops cycling on exhaustion, "breaker" opens a per-operation circuit.
	ResilienceMode            string        `json:"resilience_mode"`
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	HTTPAddr               string        `json:"http_addr"`
	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`
	MetricsEnabled         bool          `json:"metrics_enabled"`
	MetricsPath            string        `json:"metrics_path"`

	EventBusBufferSize      int           `json:"eventbus_buffer_size"`
	RecorderDrainTimeout    time.Duration `json:"-"`
	RecorderDrainTimeoutStr string        `json:"recorder_drain_timeout"`

	RedisAddr           string        `json:"redis_addr,omitempty"`
	DatabaseURL         string        `json:"database_url,omitempty"`
	AMQPURL             string        `json:"amqp_url,omitempty"`
	AMQPExchange        string        `json:"amqp_exchange"`
	NotifyWebhookURL    string        `json:"notify_webhook_url,omitempty"`
	NotifyWebhookSecret string        `json:"-"`
	NotifyTimeout       time.Duration `json:"-"`
	NotifyTimeoutStr    string        `json:"notify_timeout"`

	LeaderElectionEnabled bool  `json:"leader_election_enabled"`
	LeaderLockKey         int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval        time.Duration `json:"-"`
	LeaderRetryIntervalStr     string        `json:"leader_retry_interval"`
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// LoadEnvFile loads variables from the given .env files without overriding
// the process environment. Missing files are ignored.
func LoadEnvFile(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables with defaults.
// Parse errors are reported by Validate.
func Load() Config {
	cfg := Config{
		RPCURL:           os.Getenv("RPC_URL"),
		ContractAddress:  os.Getenv("TRIGGER_CONTRACT_ADDRESS"),
		WorkerPrivateKey: os.Getenv("WORKER_PRIVATE_KEY"),
		MonitoredFeeds:   os.Getenv("MONITORED_FEEDS"),
		FeedsFile:        os.Getenv("FEEDS_FILE"),
		CycleSchedule:    envOr("CYCLE_SCHEDULE", "30s"),
		Timezone:         os.Getenv("CYCLE_TIMEZONE"),

		ExecutionTimeoutStr:        envOr("EXECUTION_TIMEOUT", "1h"),
		StartGuardTTLStr:           envOr("START_GUARD_TTL", "5m"),
		RetryDelayStr:              envOr("RETRY_DELAY", "5s"),
		RecoveryIntervalStr:        envOr("RECOVERY_INTERVAL", "30s"),
		RPCTimeoutStr:              envOr("RPC_TIMEOUT", "10s"),
		ReceiptTimeoutStr:          envOr("RECEIPT_TIMEOUT", "2m"),
		CircuitBreakerCooldownStr:  envOr("CIRCUIT_BREAKER_COOLDOWN", "2m"),
		HTTPShutdownTimeoutStr:     envOr("HTTP_SHUTDOWN_TIMEOUT", "10s"),
		RecorderDrainTimeoutStr:    envOr("RECORDER_DRAIN_TIMEOUT", "10s"),
		NotifyTimeoutStr:           envOr("NOTIFY_WEBHOOK_TIMEOUT", "10s"),
		LeaderRetryIntervalStr:     envOr("LEADER_RETRY_INTERVAL", "5s"),
		LeaderHeartbeatIntervalStr: envOr("LEADER_HEARTBEAT_INTERVAL", "2s"),

		ResilienceMode: envOr("RESILIENCE_MODE", "halt"),
		MetricsEnabled: os.Getenv("METRICS_ENABLED") != "false",
		MetricsPath:    envOr("METRICS_PATH", "/metrics"),

		RedisAddr:           os.Getenv("REDIS_ADDR"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AMQPURL:             os.Getenv("AMQP_URL"),
		AMQPExchange:        envOr("AMQP_EXCHANGE", "trigger.transitions"),
		NotifyWebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookSecret: os.Getenv("NOTIFY_WEBHOOK_SECRET"),

		LeaderElectionEnabled: os.Getenv("LEADER_ELECTION_ENABLED") == "true",

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "json"),
	}

	cfg.ChainID = int64(envInt("CHAIN_ID", 0))
	cfg.PriceDecimals = int32(envInt("PRICE_DECIMALS", 8))
	cfg.MaxRetries = envInt("MAX_RETRIES", 3)
	cfg.ScanConcurrency = envInt("SCAN_CONCURRENCY", 8)
	cfg.OracleConcurrency = envInt("ORACLE_CONCURRENCY", 4)
	cfg.CircuitBreakerThreshold = envInt("CIRCUIT_BREAKER_THRESHOLD", 5)
	cfg.EventBusBufferSize = envInt("EVENTBUS_BUFFER_SIZE", 256)
	cfg.LeaderLockKey = int64(envInt("LEADER_LOCK_KEY", 728380))

	// Support PORT as fallback for HTTP_ADDR.
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}

	// Parse durations; validation is handled separately by Validate().
	for _, d := range cfg.durations() {
		if v, err := time.ParseDuration(*d.raw); err == nil {
			*d.dst = v
		}
	}

	cfg.Feeds, cfg.feedsErr = loadFeeds(cfg.MonitoredFeeds, cfg.FeedsFile)
	return cfg
}

type durationField struct {
	env string
	raw *string
	dst *time.Duration
}

func (c *Config) durations() []durationField {
	return []durationField{
		{"EXECUTION_TIMEOUT", &c.ExecutionTimeoutStr, &c.ExecutionTimeout},
		{"START_GUARD_TTL", &c.StartGuardTTLStr, &c.StartGuardTTL},
		{"RETRY_DELAY", &c.RetryDelayStr, &c.RetryDelay},
		{"RECOVERY_INTERVAL", &c.RecoveryIntervalStr, &c.RecoveryInterval},
		{"RPC_TIMEOUT", &c.RPCTimeoutStr, &c.RPCTimeout},
		{"RECEIPT_TIMEOUT", &c.ReceiptTimeoutStr, &c.ReceiptTimeout},
		{"CIRCUIT_BREAKER_COOLDOWN", &c.CircuitBreakerCooldownStr, &c.CircuitBreakerCooldown},
		{"HTTP_SHUTDOWN_TIMEOUT", &c.HTTPShutdownTimeoutStr, &c.HTTPShutdownTimeout},
		{"RECORDER_DRAIN_TIMEOUT", &c.RecorderDrainTimeoutStr, &c.RecorderDrainTimeout},
		{"NOTIFY_WEBHOOK_TIMEOUT", &c.NotifyTimeoutStr, &c.NotifyTimeout},
		{"LEADER_RETRY_INTERVAL", &c.LeaderRetryIntervalStr, &c.LeaderRetryInterval},
		{"LEADER_HEARTBEAT_INTERVAL", &c.LeaderHeartbeatIntervalStr, &c.LeaderHeartbeatInterval},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.WithField("component", "config").Warnf("invalid %s %q, using default %d", key, s, def)
		return def
	}
	return n
}

// ParseFeeds parses "BTC:0,ETH:1".
func ParseFeeds(s string) ([]domain.Feed, error) {
	var feeds []domain.Feed
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, idx, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(sym) == "" {
			return nil, fmt.Errorf("feed %q: want SYMBOL:index", part)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(idx), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("feed %q: invalid index: %w", part, err)
		}
		feeds = append(feeds, domain.Feed{Symbol: strings.TrimSpace(sym), Index: uint32(n)})
	}
	return feeds, nil
}

type feedFile struct {
	Feeds []domain.Feed `yaml:"feeds"`
}

// ReadFeedsFile reads a YAML document with a top-level feeds list.
func ReadFeedsFile(path string) ([]domain.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}
	var f feedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}
	for _, feed := range f.Feeds {
		if feed.Symbol == "" {
			return nil, fmt.Errorf("feeds file: index %d has no symbol", feed.Index)
		}
	}
	return f.Feeds, nil
}

func loadFeeds(list, file string) ([]domain.Feed, error) {
	if file != "" {
		return ReadFeedsFile(file)
	}
	return ParseFeeds(list)
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	type plain Config
	masked := struct {
		plain
		WorkerPrivateKey    string        `json:"worker_private_key"`
		NotifyWebhookSecret string        `json:"notify_webhook_secret,omitempty"`
		DatabaseURL         string        `json:"database_url,omitempty"`
		AMQPURL             string        `json:"amqp_url,omitempty"`
		Feeds               []domain.Feed `json:"feeds"`
	}{
		plain:               plain(c),
		WorkerPrivateKey:    maskSecret(c.WorkerPrivateKey),
		NotifyWebhookSecret: maskSecret(c.NotifyWebhookSecret),
		DatabaseURL:         maskSecret(c.DatabaseURL),
		AMQPURL:             maskSecret(c.AMQPURL),
		Feeds:               c.Feeds,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://", "amqp://", "amqps://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
