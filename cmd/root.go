// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/observability"
)

var (
	cfgFile  string
	urlFlag  string
	headless bool

	cfg *config.Config
)

// rootCmd represents the base command. Running lancet with no subcommand
// opens the live dashboard.
var rootCmd = &cobra.Command{
	Use:   "lancet",
	Short: "Lancet is a live terminal dashboard for autonomous security scans.",
	// Version is dynamically set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Runs before any command, setting up config and logging.
		loaded, err := config.Load(cfgFile)
		if err != nil {
			// Initialize a fallback logger so the failure is recorded.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "lancet"})
			return fmt.Errorf("failed to load config: %w", err)
		}
		if urlFlag != "" {
			loaded.Gateway.URL = urlFlag
			if err := loaded.Validate(); err != nil {
				return err
			}
		}
		cfg = loaded

		// The TUI owns the terminal, so logs go to the rotating file;
		// headless mode frees stderr for console output.
		if headless {
			observability.InitializeHeadless(cfg.Logger)
		} else {
			observability.InitializeLogger(cfg.Logger)
		}

		observability.GetLogger().Info("Starting lancet.",
			zap.String("version", Version),
			zap.String("url", cfg.Gateway.URL))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

// Execute runs the root command under ctx. The caller owns process exit.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed.", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./lancet.yaml)")
	rootCmd.Flags().StringVarP(&urlFlag, "url", "u", "", "websocket endpoint of the run bridge (overrides config)")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "follow the run as plain text instead of the TUI")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
