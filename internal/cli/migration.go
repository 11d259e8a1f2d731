package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storekeeper/internal/schema"
)

// NewMigrationCommand scaffolds a migration file with the next free number for today.
func NewMigrationCommand(opts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "new-migration <description>",
		Short: "Create an empty migration file",
		Long: `Create migrations/migration_<y>_<m>_<d>_<n>_<description>.sql under the schema
directory, where n is the next free sequence number for today.`,
		Example: "  schemactl new-migration --schema-dir db add merchant rating",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				root := cfg.Schema.Dir
				if root == "" {
					root = "db"
				}
				dir = filepath.Join(root, "migrations")
			}

			path, v, err := schema.NewMigrationFile(dir, strings.Join(args, " "), time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot create migration", err)
			}
			data := map[string]string{"path": path, "version": v.String()}
			return opts.formatter(cmd).Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "%s (version %s)\n", path, v)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default <schema-dir>/migrations)")
	return cmd
}
