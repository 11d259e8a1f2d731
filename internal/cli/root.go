// Package cli - командный интерфейс оператора schemactl.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"storekeeper/internal/adapter/notify"
	"storekeeper/internal/app"
	"storekeeper/internal/config"
	"storekeeper/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	DB        string // overrides DB_PATH
	SchemaDir string // overrides SCHEMA_DIR
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the schemactl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "schemactl",
		Short: "Schema lifecycle tool for the storekeeper embedded store",
		Long: `schemactl inspects and maintains the structure of the embedded SQLite store:
startup procedure, verification with self-repair, column synchronization,
migration scaffolding, backups and heuristic bootstrap.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "store file (overrides DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.SchemaDir, "schema-dir", "", "declaration sources directory (overrides SCHEMA_DIR)")

	cmd.AddCommand(
		NewStartupCommand(opts),
		NewStatusCommand(opts),
		NewVerifyCommand(opts),
		NewSyncCommand(opts),
		NewStatsCommand(opts),
		NewHealthCommand(opts),
		NewBackupCommand(opts),
		NewMigrationCommand(opts),
		NewBootstrapCommand(opts),
	)
	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// loadConfig reads configuration and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.DB != "" {
		cfg.DB.Path = o.DB
	}
	if o.SchemaDir != "" {
		cfg.Schema.Dir = o.SchemaDir
	}
	cfg.Log.ConsoleLevel = "warn"
	if o.Verbose {
		cfg.Log.ConsoleLevel = "debug"
	}
	return cfg, nil
}

// session is an opened store for one command.
type session struct {
	cfg config.Config
	app *app.App
	log *slog.Logger
}

func (s *session) Close() {
	_ = s.app.Close()
	_ = logger.Close(s.log)
}

// open loads configuration and opens the store. Operators are not notified
// from the CLI.
func (o *RootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log := app.NewLogger(cfg, "schemactl", cmd.ErrOrStderr())

	a, err := app.New(cmd.Context(), cfg, log, app.WithNotifier(notify.Nop{}))
	if err != nil {
		_ = logger.Close(log)
		return nil, err
	}
	return &session{cfg: cfg, app: a, log: log}, nil
}
