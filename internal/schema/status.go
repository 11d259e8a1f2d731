package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"storekeeper/internal/platform/sqlite"
)

// Status - состояние хранилища без изменений в нём.
type Status struct {
	Detection
	Pending []string       `json:"pending"`
	Missing []string       `json:"missing_tables"`
	History []HistoryEntry `json:"history"`
	Pool    sqlite.Stats   `json:"pool"`
}

// Status собирает версию, ожидающие миграции, журнал и недостающие таблицы.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	det, err := c.Detect(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{Detection: det, Pool: c.pool.Stats()}

	if st.History, err = c.history.List(ctx); err != nil {
		return nil, err
	}
	recorded := make(map[string]bool, len(st.History))
	for _, h := range st.History {
		recorded[h.Name] = true
	}

	from := ZeroVersion
	if det.Stored != "" {
		from = MustParseVersion(det.Stored)
	}
	for _, u := range c.src.Ledger().Between(from, c.target) {
		if !recorded[u.Name] {
			st.Pending = append(st.Pending, u.Name)
		}
	}

	if st.Missing, err = c.missingTables(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// TableStat - число строк в таблице.
type TableStat struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Stats возвращает число строк во всех пользовательских таблицах.
func (c *Controller) Stats(ctx context.Context) ([]TableStat, error) {
	tables, err := c.pool.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TableStat, 0, len(tables))
	for _, t := range tables {
		n, err := c.pool.CountRows(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, TableStat{Table: t, Rows: n})
	}
	return out, nil
}

var unsafeDescription = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// NewMigrationFile создаёт в dir пустую миграцию со следующим свободным номером за день now.
// Возвращает путь к файлу и версию миграции.
func NewMigrationFile(dir, description string, now time.Time) (string, Version, error) {
	desc := strings.Trim(unsafeDescription.ReplaceAllString(strings.TrimSpace(description), "_"), "_")
	if desc == "" {
		return "", Version{}, fmt.Errorf("migration description is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", Version{}, fmt.Errorf("create migrations dir: %w", err)
	}
	ledger, err := DiscoverLedger(os.DirFS(dir), ".")
	if err != nil {
		return "", Version{}, err
	}

	y, m, d := now.Date()
	next := 1
	for _, u := range ledger.Units() {
		if u.Version.part(0) == y && u.Version.part(1) == int(m) && u.Version.part(2) == d {
			next = max(next, u.Version.part(3)+1)
		}
	}

	v := Version{parts: []int{y, int(m), d, next}}
	name := fmt.Sprintf("migration_%d_%02d_%02d_%d_%s.sql", y, int(m), d, next, desc)
	content := fmt.Sprintf(`-- %s
-- %s
-- version: %s
-- created: %s
--
-- Statements run one by one; "already exists" errors are tolerated.
-- Scripts with triggers, BEGIN/COMMIT or PRAGMA foreign_keys run as a single script.
-- Optional preconditions:
--   -- @requires table:<name>
--   -- @requires column:<table>.<column>

`, name, description, v, now.Format(time.RFC3339))

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", Version{}, fmt.Errorf("create migration file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return "", Version{}, fmt.Errorf("write migration file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", Version{}, err
	}
	return path, v, nil
}

