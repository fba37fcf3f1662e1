package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/cron"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	return validate(cfg, true)
}

// ValidateReadOnly is Validate without the signing key requirement, for
// commands that never submit transactions.
func ValidateReadOnly(cfg Config) error {
	return validate(cfg, false)
}

func validate(cfg Config, signing bool) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.RPCURL == "" {
		add("RPC_URL", "required")
	} else if u, err := url.Parse(cfg.RPCURL); err != nil || u.Scheme == "" {
		add("RPC_URL", "invalid URL %q", cfg.RPCURL)
	}

	if cfg.ContractAddress == "" {
		add("TRIGGER_CONTRACT_ADDRESS", "required")
	} else if !common.IsHexAddress(cfg.ContractAddress) {
		add("TRIGGER_CONTRACT_ADDRESS", "not a hex address: %q", cfg.ContractAddress)
	}

	if signing {
		if cfg.WorkerPrivateKey == "" {
			add("WORKER_PRIVATE_KEY", "required")
		} else if _, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.WorkerPrivateKey, "0x")); err != nil {
			add("WORKER_PRIVATE_KEY", "invalid key")
		}
	}

	field := "MONITORED_FEEDS"
	if cfg.FeedsFile != "" {
		field = "FEEDS_FILE"
	}
	if cfg.feedsErr != nil {
		add(field, "%v", cfg.feedsErr)
	} else if len(cfg.Feeds) == 0 {
		add(field, "at least one feed required")
	} else {
		seen := make(map[uint32]string, len(cfg.Feeds))
		for _, f := range cfg.Feeds {
			if prev, ok := seen[f.Index]; ok && prev != f.Symbol {
				add(field, "index %d used by %s and %s", f.Index, prev, f.Symbol)
			}
			seen[f.Index] = f.Symbol
		}
	}

	if _, err := cron.NewParser().Parse(cfg.CycleSchedule, cfg.Timezone); err != nil {
		add("CYCLE_SCHEDULE", "%v", err)
	}

	for _, d := range cfg.durations() {
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			add(d.env, "invalid duration: %v", err)
		} else if v <= 0 {
			add(d.env, "must be positive")
		}
	}

	if cfg.MaxRetries < 1 {
		add("MAX_RETRIES", "must be at least 1")
	}
	if cfg.PriceDecimals < 0 || cfg.PriceDecimals > 36 {
		add("PRICE_DECIMALS", "must be between 0 and 36")
	}
	if cfg.ChainID < 0 {
		add("CHAIN_ID", "must not be negative")
	}
	if cfg.ScanConcurrency < 1 {
		add("SCAN_CONCURRENCY", "must be positive")
	}
	if cfg.OracleConcurrency < 1 {
		add("ORACLE_CONCURRENCY", "must be positive")
	}
	if cfg.EventBusBufferSize < 1 {
		add("EVENTBUS_BUFFER_SIZE", "must be positive")
	}

	switch cfg.ResilienceMode {
	case "halt":
	case "breaker":
		if cfg.CircuitBreakerThreshold < 1 {
			add("CIRCUIT_BREAKER_THRESHOLD", "must be positive in breaker mode")
		}
	default:
		add("RESILIENCE_MODE", "must be 'halt' or 'breaker', got %q", cfg.ResilienceMode)
	}

	if cfg.NotifyWebhookURL != "" && cfg.NotifyWebhookSecret == "" {
		add("NOTIFY_WEBHOOK_SECRET", "required when NOTIFY_WEBHOOK_URL is set")
	}
	if cfg.LeaderElectionEnabled && cfg.DatabaseURL == "" {
		add("DATABASE_URL", "required when LEADER_ELECTION_ENABLED=true")
	}
	if cfg.LeaderLockKey <= 0 {
		add("LEADER_LOCK_KEY", "must be positive")
	}

	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		add("LOG_LEVEL", "%v", err)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		add("LOG_FORMAT", "must be 'json' or 'text', got %q", cfg.LogFormat)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
