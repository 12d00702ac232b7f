// Package cmd defines and implements the CLI commands for the cse-daily executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cse-daily-fetcher/internal/config"
	"github.com/JakeFAU/cse-daily-fetcher/internal/logging"
)

// envKeyType is the key for storing the runtime environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what every subcommand needs: validated config and a logger.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "cse-daily",
		Short: "Downloads the Colombo Stock Exchange daily report.",
		Long: `cse-daily fetches the CSE daily report page, locates the current report
inside whatever layout the site is serving, and saves the PDF as
CSE_Daily_YYYY_MM_DD.pdf without ever overwriting an earlier download.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before the subcommand's RunE: load config, build the logger and
		// stash both in the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.Build(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := resolveEnv(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().Bool("dev", true, "development (console) logging")
	cmd.PersistentFlags().String("output-dir", "downloads", "directory reports are saved to")
	cmd.PersistentFlags().String("disambiguator", "time", "suffix for colliding filenames: time or counter")
	cmd.PersistentFlags().String("timezone", "UTC", "IANA zone for fallback dates")

	cmd.AddCommand(newDownloadCmd(), newInspectCmd(), newVerifyCmd(), newHistoryCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	if ctx == nil {
		return nil, errors.New("runtime environment not initialized")
	}
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("runtime environment not initialized")
	}
	return e, nil
}

// Execute is the main entry point.
func Execute() {
	executed, err := newRootCmd().ExecuteC()
	if err == nil {
		return
	}
	logger := zap.NewExample()
	if executed != nil {
		if e, envErr := resolveEnv(executed.Context()); envErr == nil {
			logger = e.logger
		}
	}
	logger.Fatal("command failed", zap.Error(err))
}
