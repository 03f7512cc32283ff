package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/trajeval/internal/config"
	"github.com/signalnine/trajeval/internal/diag"
)

var (
	cfgFile      string
	flagLogLevel string
	flagEnvFile  string
)

// Set by the root command before any subcommand runs.
var (
	cfg      *config.Config
	logger   *zap.Logger
	reporter diag.Reporter
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "trajeval",
		Short:             "Evaluate recorded web-agent trajectories",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file exported before the config is read")
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newRescoreCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newExportCmd())
	return root
}

// setup loads the env file and config and builds the logger. The default
// config path may be absent; an explicit --config must exist.
func setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		return err
	}

	var err error
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadOrDefault(cfgFile)
	}
	if err != nil {
		return err
	}

	if flagEnvFile == "" && cfg.Secrets.EnvFile != "" {
		if err := config.LoadEnvFile(cfg.Secrets.EnvFile); err != nil {
			return err
		}
		if err := config.ApplyEnv(cfg); err != nil {
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid config after %s: %w", cfg.Secrets.EnvFile, err)
		}
	}

	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger, err = diag.NewLogger(level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	reporter = diag.NewZap(logger)
	return nil
}
