package schema

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storekeeper/internal/platform/sqlite"
)

const historyDDL = `CREATE TABLE IF NOT EXISTS migration_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    migration_name TEXT UNIQUE NOT NULL,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// HistoryEntry - запись журнала применённых миграций.
type HistoryEntry struct {
	Name      string    `json:"name"`
	AppliedAt time.Time `json:"applied_at"`
}

// History - журнал применённых миграций только на добавление.
type History struct {
	pool *sqlite.Pool
}

// NewHistory создаёт журнал поверх пула.
func NewHistory(pool *sqlite.Pool) *History {
	return &History{pool: pool}
}

func (h *History) ensure(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, historyDDL); err != nil {
		return fmt.Errorf("ensure migration_history: %w", err)
	}
	return nil
}

// Applied сообщает, записана ли миграция в журнал.
func (h *History) Applied(ctx context.Context, name string) (bool, error) {
	if err := h.ensure(ctx); err != nil {
		return false, err
	}
	var n int
	err := h.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM migration_history WHERE migration_name = ?", []any{name}, &n)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return n > 0, nil
}

// Record добавляет миграцию в журнал. Повторная запись не ошибка.
func (h *History) Record(ctx context.Context, name string) error {
	if err := h.ensure(ctx); err != nil {
		return err
	}
	if _, err := h.pool.Exec(ctx,
		"INSERT OR IGNORE INTO migration_history (migration_name) VALUES (?)", name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

// List возвращает журнал в порядке применения.
func (h *History) List(ctx context.Context) ([]HistoryEntry, error) {
	ok, err := h.pool.TableExists(ctx, "migration_history")
	if err != nil || !ok {
		return nil, err
	}

	var entries []HistoryEntry
	err = h.pool.Query(ctx,
		"SELECT migration_name, applied_at FROM migration_history ORDER BY id",
		func(rows *sql.Rows) error {
			var (
				e  HistoryEntry
				at sql.NullString
			)
			if err := rows.Scan(&e.Name, &at); err != nil {
				return err
			}
			e.AppliedAt = parseTimestamp(at.String)
			entries = append(entries, e)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list migration history: %w", err)
	}
	return entries, nil
}

// parseTimestamp разбирает CURRENT_TIMESTAMP SQLite (UTC).
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
