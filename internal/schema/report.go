package schema

import (
	"fmt"
	"strings"
	"time"
)

// Report описывает один проход автомата версий.
type Report struct {
	RunID         string        `json:"run_id"`
	InitialState  State         `json:"initial_state"`
	StoredVersion string        `json:"stored_version,omitempty"`
	TargetVersion string        `json:"target_version"`
	FinalVersion  string        `json:"final_version,omitempty"`
	Declared      []UnitResult  `json:"declared,omitempty"`
	Units         []UnitResult  `json:"units,omitempty"`
	Reset         bool          `json:"reset,omitempty"`
	BackupPath    string        `json:"backup_path,omitempty"`
	AutoMigrated  bool          `json:"auto_migrated,omitempty"`
	Heuristic     bool          `json:"heuristic,omitempty"`
	Repaired      bool          `json:"repaired,omitempty"`
	ColumnsAdded  []string      `json:"columns_added,omitempty"`
	Seeded        int64         `json:"seeded,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Err           string        `json:"error,omitempty"`
}

// UnitsWith возвращает имена миграций с указанным исходом.
func (r *Report) UnitsWith(outcome Outcome) []string {
	var out []string
	for _, u := range r.Units {
		if u.Outcome == outcome {
			out = append(out, u.Name)
		}
	}
	return out
}

// Tolerated - суммарное число инструкций, пропущенных как "уже существует".
func (r *Report) Tolerated() int {
	n := 0
	for _, u := range append(append([]UnitResult(nil), r.Declared...), r.Units...) {
		n += u.Tolerated
	}
	return n
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Summary - короткое текстовое описание для уведомлений и CLI.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema startup %s\n", r.RunID)
	fmt.Fprintf(&b, "state: %s", r.InitialState)
	if r.StoredVersion != "" {
		fmt.Fprintf(&b, " (stored %s)", r.StoredVersion)
	}
	fmt.Fprintf(&b, "\nversion: %s\n", orDash(r.FinalVersion))

	if applied := r.UnitsWith(OutcomeApplied); len(applied) > 0 {
		fmt.Fprintf(&b, "applied: %s\n", strings.Join(applied, ", "))
	}
	if skipped := r.UnitsWith(OutcomeAlreadyRecorded); len(skipped) > 0 {
		fmt.Fprintf(&b, "already applied: %d\n", len(skipped))
	}
	if n := r.Tolerated(); n > 0 {
		fmt.Fprintf(&b, "tolerated statements: %d\n", n)
	}
	if r.Reset {
		b.WriteString("unversioned store was reset\n")
	}
	if r.AutoMigrated {
		b.WriteString("no migration units found, declared schema re-applied\n")
	}
	if r.Repaired {
		b.WriteString("structural drift repaired\n")
	}
	if len(r.ColumnsAdded) > 0 {
		fmt.Fprintf(&b, "columns added: %s\n", strings.Join(r.ColumnsAdded, ", "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	if r.Err != "" {
		fmt.Fprintf(&b, "error: %s\n", r.Err)
	}
	fmt.Fprintf(&b, "took %s", r.Duration.Round(time.Millisecond))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
