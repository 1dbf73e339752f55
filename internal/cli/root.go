// Package cli implements userdatactl, the administration tool of the
// userdata store.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/storage"
	"github.com/mcoot/userdata/internal/storage/gormstore"
)

var (
	cfg    *Config
	client *Client
	logger *zap.Logger

	// prompter answers password prompts; tests replace it
	prompter gormstore.Prompter = gormstore.NewTerminalPrompter()
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "userdatactl",
		Short: "Administration tool for the userdata store",
		Long: `userdatactl manages the userdata store directly.

It bootstraps the schema, manages users, games, remote and managed players,
reconciles containers, and checks the health of a running server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = config.LogConfig{Dev: cfg.Verbose, Level: logLevel()}.Logger()
			if err != nil {
				return err
			}
			client = NewClient(cfg.ServerURL)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Config file (env: USERDATA_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&cfg.Driver, "db-driver", "", "Database driver: sqlite, postgres")
	rootCmd.PersistentFlags().StringVar(&cfg.DSN, "db-dsn", "", "Database DSN")
	rootCmd.PersistentFlags().StringVar(&cfg.Prefix, "prefix", "", "Table prefix")
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: USERDATA_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newGameCmd())
	rootCmd.AddCommand(newPlayerCmd())
	rootCmd.AddCommand(newManagedCmd())
	rootCmd.AddCommand(newContainerCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func logLevel() string {
	if cfg.Verbose {
		return "debug"
	}
	return "warn"
}

// loadConfig reads the shared configuration and applies the flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loaded, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	if flagChanged(cmd, "db-driver") {
		loaded.DB.Driver = cfg.Driver
	}
	if flagChanged(cmd, "db-dsn") {
		loaded.DB.DSN = cfg.DSN
	}
	if flagChanged(cmd, "prefix") {
		loaded.DB.Prefix = cfg.Prefix
	}
	return loaded, nil
}

// withStore opens the store for the duration of fn
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st storage.Engine, loaded *config.Config) error) error {
	loaded, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := gormstore.New(loaded.DB.Store(), nil, prompter, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := commandContext(cmd)
	if err := st.Connect(ctx, false); err != nil {
		return fmt.Errorf("connecting to %s: %w", loaded.DB.Driver, err)
	}
	return fn(ctx, st, loaded)
}

// commandContext returns cmd's context, or Background when it has none
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// output returns the formatter for cmd
func output(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout())
}

// passwordFlag returns the password flag value, or nil so the store
// prompts for it
func passwordFlag(cmd *cobra.Command, value string) *string {
	if !flagChanged(cmd, "password") {
		return nil
	}
	return &value
}

// optionalString returns &value when the named flag was given
func optionalString(cmd *cobra.Command, name, value string) *string {
	if !flagChanged(cmd, name) {
		return nil
	}
	return &value
}

func promptPassword(prompt string) (string, error) {
	return prompter.Password(prompt)
}
