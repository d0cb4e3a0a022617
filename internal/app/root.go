package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/config"
	"github.com/blackwell-systems/datapkg/internal/observability"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var (
	flagVerbose  bool
	flagRegistry string
	flagDataDir  string
	flagEnvFile  string

	// RootCmd is the root command for datapkg
	RootCmd = &cobra.Command{
		Use:   "datapkg",
		Short: "Build, share and install content-addressed data packages",
		Long: `datapkg manages data packages: it builds them from a manifest, keeps
them in a local content-addressed store, and pushes them to or installs
them from a package registry.

Every installed package is verified against its SHA-256 hash before it
becomes visible, and installs never leave a half-written package behind.

Quick Start:
  1. datapkg login
  2. datapkg build acme/widget build.yml
  3. datapkg push acme/widget
  4. datapkg install acme/widget   # on another machine

Configuration is read from ~/.config/datapkg/config, a .env file, and
DATAPKG_* environment variables (DATAPKG_URL, DATAPKG_DATA_DIR,
DATAPKG_STORE_PATH, DATAPKG_TIMEOUT, DATAPKG_SENTRY_DSN).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	RootCmd.PersistentFlags().StringVar(&flagRegistry, "registry", "", "registry URL (default: $DATAPKG_URL or "+config.DefaultRegistryURL+")")
	RootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: $DATAPKG_DATA_DIR or ~/.local/share/datapkg)")
	RootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file to load")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command and returns the subcommand that ran.
func Execute(ctx context.Context) (*cobra.Command, error) {
	return RootCmd.ExecuteContextC(ctx)
}

// setup runs before every subcommand: logging first, so configuration
// problems can be logged, then error reporting.
func setup(cmd *cobra.Command, args []string) error {
	observability.SetupLogging(cmd.ErrOrStderr(), flagVerbose)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := observability.InitSentry(cfg.SentryDSN, Version); err != nil {
		// Reporting is optional; a bad DSN must not block the command.
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: error reporting disabled: %v\n", err)
	}
	return nil
}

// loadConfig resolves configuration with command-line flags applied last.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{EnvFile: flagEnvFile})
	if err != nil {
		return nil, err
	}
	if flagRegistry != "" {
		cfg.RegistryURL = flagRegistry
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg, nil
}

// dispatch builds a Dispatcher for the cobra command's streams and runs c.
func dispatch(cmd *cobra.Command, c Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := NewDispatcher(cfg,
		WithIO(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()),
		WithProgress(cmd.ErrOrStderr() == os.Stderr),
	)
	if err != nil {
		return err
	}
	return d.Run(cmd.Context(), c)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the datapkg version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "datapkg %s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
