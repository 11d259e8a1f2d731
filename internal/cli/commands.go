package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"storekeeper/internal/schema"
	"storekeeper/internal/schema/synchronizer"
)

// NewStartupCommand runs the startup procedure once.
func NewStartupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "startup",
		Short: "Bring the store to the code version (fresh install, migrate or verify)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rep, err := s.app.Startup(cmd.Context())
			return reportOutput(opts.formatter(cmd), rep, err)
		},
	}
}

// NewVerifyCommand checks required tables and self-repairs drift.
func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify required tables and repair structural drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rep, err := s.app.Controller().Verify(cmd.Context())
			return reportOutput(opts.formatter(cmd), rep, err)
		},
	}
}

func reportOutput(f *OutputFormatter, rep *schema.Report, err error) error {
	text := func(w io.Writer) { fmt.Fprintln(w, rep.Summary()) }
	if err != nil {
		if rep == nil {
			return err
		}
		return f.Failure(rep, text, err)
	}
	return f.Success(rep, text)
}

// NewStatusCommand shows versions, pending units and history without changes.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored and code versions, pending migrations and history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.app.Controller().Status(cmd.Context())
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(st, func(w io.Writer) { printStatus(w, st) })
		},
	}
}

func printStatus(w io.Writer, st *schema.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "state:\t%s\n", st.State)
	fmt.Fprintf(tw, "stored version:\t%s\n", dash(st.Stored))
	fmt.Fprintf(tw, "code version:\t%s\n", st.Target)
	fmt.Fprintf(tw, "pending:\t%s\n", dash(strings.Join(st.Pending, ", ")))
	fmt.Fprintf(tw, "missing tables:\t%s\n", dash(strings.Join(st.Missing, ", ")))
	fmt.Fprintf(tw, "pool:\t%d live / %d ceiling\n", st.Pool.Live, st.Pool.Ceiling)
	fmt.Fprintf(tw, "history:\t%d entries\n", len(st.History))
	for _, h := range st.History {
		fmt.Fprintf(tw, "\t%s  %s\n", h.AppliedAt.Format(time.DateTime), h.Name)
	}
	_ = tw.Flush()
}

// NewSyncCommand runs the column synchronizer.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Add declared columns missing from live tables",
		Long: `Compare ADD COLUMN declarations from the sync sources with the live store
and add what is missing. Existing columns are never dropped, renamed or altered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			f := opts.formatter(cmd)
			plan, res, err := s.app.Controller().Sync(cmd.Context(), dryRun)
			if dryRun {
				if err != nil {
					return err
				}
				return f.Success(plan, func(w io.Writer) { printPlan(w, plan) })
			}
			text := func(w io.Writer) { printResult(w, res) }
			if err != nil {
				return f.Failure(res, text, WrapExitError(ExitFailure, "synchronization finished with errors", err))
			}
			return f.Success(res, text)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report missing columns")
	return cmd
}

func printPlan(w io.Writer, plan synchronizer.Plan) {
	if len(plan.Missing) == 0 {
		fmt.Fprintf(w, "structure is in sync (%d declared columns present)\n", plan.Present)
	} else {
		fmt.Fprintf(w, "missing columns: %d\n", len(plan.Missing))
		for _, d := range plan.Missing {
			fmt.Fprintf(w, "  %s;  -- %s\n", d.Statement(), d.Source)
		}
	}
	printAbsent(w, plan.AbsentTables)
}

func printResult(w io.Writer, res synchronizer.Result) {
	fmt.Fprintf(w, "columns added: %d, already present: %d, tolerated: %d\n",
		len(res.Added), res.Present, res.Tolerated)
	for _, d := range res.Added {
		fmt.Fprintf(w, "  + %s.%s %s\n", d.Table, d.Column, d.Definition)
	}
	printAbsent(w, res.AbsentTables)
}

func printAbsent(w io.Writer, tables []string) {
	if len(tables) > 0 {
		fmt.Fprintf(w, "declared tables absent from the store: %s\n", strings.Join(tables, ", "))
	}
}

// NewStatsCommand prints row counts per table.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts per table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.app.Controller().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(stats, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
				var total int64
				for _, st := range stats {
					fmt.Fprintf(tw, "%s\t%d\t\n", st.Table, st.Rows)
					total += st.Rows
				}
				fmt.Fprintf(tw, "total\t%d\t\n", total)
				_ = tw.Flush()
			})
		},
	}
}

// NewHealthCommand pings the store.
func NewHealthCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the store answers queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.app.Pool().HealthCheck(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "store is unhealthy", err)
			}
			stats := s.app.Pool().Stats()
			return opts.formatter(cmd).Success(stats, func(w io.Writer) {
				fmt.Fprintf(w, "ok: %s (%d/%d connections)\n", s.cfg.DB.Path, stats.Live, stats.Ceiling)
			})
		},
	}
}

// NewBackupCommand copies the store into BACKUP_DIR.
func NewBackupCommand(opts *RootOptions) *cobra.Command {
	var (
		dir  string
		keep int
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a consistent copy of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if dir == "" {
				dir = s.cfg.Backup.Dir
			}
			if !cmd.Flags().Changed("keep") {
				keep = s.cfg.Backup.Keep
			}
			path, err := s.app.Pool().Backup(cmd.Context(), dir, keep)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(map[string]string{"path": path}, func(w io.Writer) {
				fmt.Fprintln(w, path)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (default BACKUP_DIR)")
	cmd.Flags().IntVar(&keep, "keep", 0, "backups to keep, 0 keeps all (default BACKUP_KEEP)")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
