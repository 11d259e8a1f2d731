package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// TestStore - файловое хранилище для тестов с удобными хелперами.
type TestStore struct {
	Pool *Pool
	Path string
}

// TestOptions возвращает настройки для тестов: ретраи без реального ожидания,
// тихий логгер и небольшой потолок пула.
func TestOptions() Options {
	opts := DefaultOptions()
	opts.MaxConns = 4
	opts.BusyTimeout = 0
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Retry.After = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return opts
}

// NewTestStore создаёт хранилище во временном каталоге теста.
// Пул закрывается автоматически после завершения теста.
func NewTestStore(t *testing.T, mutators ...func(*Options)) *TestStore {
	t.Helper()
	return OpenTestStore(t, filepath.Join(t.TempDir(), "store.db"), mutators...)
}

// OpenTestStore открывает пул для существующего пути (например, для имитации рестарта).
func OpenTestStore(t *testing.T, path string, mutators ...func(*Options)) *TestStore {
	t.Helper()

	opts := TestOptions()
	for _, m := range mutators {
		m(&opts)
	}

	pool, err := Open(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
	})

	return &TestStore{Pool: pool, Path: path}
}

// Exec выполняет SQL команду и проверяет отсутствие ошибок.
func (ts *TestStore) Exec(t *testing.T, query string, args ...any) {
	t.Helper()
	if _, err := ts.Pool.Exec(context.Background(), query, args...); err != nil {
		t.Fatalf("Failed to execute query: %v", err)
	}
}

// MustSeedData выполняет набор инструкций и падает при ошибке.
func (ts *TestStore) MustSeedData(t *testing.T, queries ...string) {
	t.Helper()
	for _, query := range queries {
		ts.Exec(t, query)
	}
}

// TableExists проверяет существование таблицы.
func (ts *TestStore) TableExists(t *testing.T, table string) bool {
	t.Helper()
	ok, err := ts.Pool.TableExists(context.Background(), table)
	if err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	return ok
}

// Columns возвращает имена колонок таблицы в порядке объявления.
func (ts *TestStore) Columns(t *testing.T, table string) []string {
	t.Helper()
	shape, err := ts.Pool.ListColumns(context.Background(), table)
	if err != nil {
		t.Fatalf("Failed to list columns: %v", err)
	}
	return shape.Names()
}

// CountRows возвращает количество строк в таблице.
func (ts *TestStore) CountRows(t *testing.T, table string) int64 {
	t.Helper()
	n, err := ts.Pool.CountRows(context.Background(), table)
	if err != nil {
		t.Fatalf("Failed to count rows in table %s: %v", table, err)
	}
	return n
}

// QueryString возвращает первую колонку первой строки как строку.
func (ts *TestStore) QueryString(t *testing.T, query string, args ...any) string {
	t.Helper()
	var v sql.NullString
	if err := ts.Pool.QueryRow(context.Background(), query, args, &v); err != nil {
		t.Fatalf("Failed to query %q: %v", query, err)
	}
	return v.String
}

// Structure возвращает отсортированный набор "таблица.колонка тип" для сравнения схем.
// Порядок колонок не учитывается: колонки, добавленные ALTER TABLE, идут в конце.
func (ts *TestStore) Structure(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	tables, err := ts.Pool.ListTables(ctx)
	if err != nil {
		t.Fatalf("Failed to list tables: %v", err)
	}

	var out []string
	for _, table := range tables {
		shape, err := ts.Pool.ListColumns(ctx, table)
		if err != nil {
			t.Fatalf("Failed to list columns: %v", err)
		}
		for _, c := range shape.Columns {
			out = append(out, fmt.Sprintf("%s.%s %s", table, c.Name, c.Type))
		}
	}
	sort.Strings(out)
	return out
}
