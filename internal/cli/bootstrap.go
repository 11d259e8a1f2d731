package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"storekeeper/internal/heuristic"
)

// NewBootstrapCommand prints or applies the heuristically inferred structure.
func NewBootstrapCommand(opts *RootOptions) *cobra.Command {
	var (
		source string
		output string
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Infer table structure from SQL found in source files",
		Long: `Scan *.go, *.py and *.sql files for INSERT, UPDATE and SELECT statements,
merge the referenced columns into the built-in baseline and print the result as DDL.
With --apply the tables and indexes are created in the store.

Types are guessed from column names. Review the output before relying on it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if source == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				source = cfg.Schema.HeuristicsSource
			}
			if source == "" {
				source = "."
			}

			if !apply {
				a, err := heuristic.New(nil, os.DirFS(source))
				if err != nil {
					return bootstrapError(err)
				}
				ddl := a.Model().Render()
				if output != "" {
					if err := os.WriteFile(output, []byte(ddl), 0o644); err != nil {
						return err
					}
					return opts.formatter(cmd).Success(map[string]string{"path": output}, func(w io.Writer) {
						fmt.Fprintf(w, "written %s\n", output)
					})
				}
				return opts.formatter(cmd).Success(map[string]string{"ddl": ddl}, func(w io.Writer) {
					fmt.Fprint(w, ddl)
				})
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := heuristic.New(s.app.Pool(), os.DirFS(source), heuristic.WithLogger(s.log))
			if err != nil {
				return bootstrapError(err)
			}
			ctx := cmd.Context()
			tablesErr := a.CreateAllTables(ctx)
			if err := a.CreateAllIndexes(ctx); err != nil {
				return err
			}
			tables, err := s.app.Pool().ListTables(ctx)
			if err != nil {
				return err
			}
			text := func(w io.Writer) {
				fmt.Fprintf(w, "store has %d tables after bootstrap\n", len(tables))
			}
			if tablesErr != nil {
				return opts.formatter(cmd).Failure(tables, text,
					WrapExitError(ExitFailure, "some tables could not be created", tablesErr))
			}
			return opts.formatter(cmd).Success(tables, text)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "directory to scan (default SCHEMA_HEURISTICS_SOURCE or .)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write DDL to file instead of stdout")
	cmd.Flags().BoolVar(&apply, "apply", false, "create the inferred tables and indexes in the store")
	return cmd
}

func bootstrapError(err error) error {
	if errors.Is(err, heuristic.ErrDisabled) {
		return WrapExitError(ExitCommandError, "bootstrap unavailable", err)
	}
	return err
}
