package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xGF/hyper-trigger-sub000/internal/config"
	"github.com/0xGF/hyper-trigger-sub000/internal/telemetry"
)

type rootOptions struct {
	envFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "trigger-monitor",
		Short: "Watches oracle prices and drives price triggers through execution",
		Long: `trigger-monitor scans the trigger registry contract, reads oracle prices
and moves triggers whose condition holds through start, complete or fail.

Configuration is read from the environment. A .env file is loaded first
when present; it never overrides variables already set.

Required:
  RPC_URL                   Ledger JSON-RPC endpoint
  TRIGGER_CONTRACT_ADDRESS  Trigger registry contract
  WORKER_PRIVATE_KEY        Hex key used to sign transitions
  MONITORED_FEEDS           Feeds as SYMBOL:index,... (or FEEDS_FILE, YAML)

Cycle:
  CYCLE_SCHEDULE            Period ("30s") or cron expression (default: "30s")
  EXECUTION_TIMEOUT         Executing triggers older than this are failed (default: "1h")
  START_GUARD_TTL           Hold on an unconfirmed start (default: "5m")
  MAX_RETRIES / RETRY_DELAY Attempts per ledger call and delay between (default: 3, "5s")
  RECOVERY_INTERVAL         Probe period while halted (default: "30s")
  RESILIENCE_MODE           "halt" or "breaker" (default: "halt")

Optional sinks: REDIS_ADDR, DATABASE_URL, AMQP_URL, NOTIFY_WEBHOOK_URL.
Leader election: LEADER_ELECTION_ENABLED=true with DATABASE_URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(opts.envFile); err != nil {
				return &exitError{code: exitInvalidConfig, err: err}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newInspectCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadConfig loads and validates configuration and sets up logging.
func loadConfig(readOnly bool) (config.Config, error) {
	cfg := config.Load()

	validate := config.Validate
	if readOnly {
		validate = config.ValidateReadOnly
	}
	if err := validate(cfg); err != nil {
		return cfg, &exitError{code: exitInvalidConfig, err: fmt.Errorf("configuration error: %w", err)}
	}
	if err := telemetry.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return cfg, &exitError{code: exitInvalidConfig, err: err}
	}
	return cfg, nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration (no connections made)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Validate(config.Load()); err != nil {
				return &exitError{code: exitInvalidConfig, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
			return nil
		},
	}
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print effective configuration as JSON (secrets masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Load().MaskedJSON()
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trigger-monitor version %s (commit: %s)\n", version, commit)
		},
	}
}
