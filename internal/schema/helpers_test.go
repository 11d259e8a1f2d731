package schema

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"storekeeper/internal/platform/sqlite"
)

// Минимальная декларативная схема для тестов автомата
const testPrimary = `
CREATE TABLE IF NOT EXISTS system_config (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    config_key TEXT UNIQUE NOT NULL,
    config_value TEXT,
    description TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS merchants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL UNIQUE,
    name TEXT NOT NULL,
    status TEXT DEFAULT 'pending'
);
CREATE TABLE IF NOT EXISTS orders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    merchant_id INTEGER NOT NULL,
    price INTEGER
);
CREATE INDEX IF NOT EXISTS idx_orders_merchant ON orders(merchant_id);
`

const testManifest = `
primary: schema.sql
sync:
  - schema.sql
  - schema_extended.sql
seeds:
  - seed.sql
required_tables:
  - system_config
  - merchants
  - orders
records:
  - table: system_config
    values:
      config_key: greeting
      config_value: hello
`

const testExtended = `
ALTER TABLE merchants ADD COLUMN status TEXT DEFAULT 'pending';
ALTER TABLE orders ADD COLUMN price INTEGER;
`

const testSeed = `INSERT OR IGNORE INTO merchants (chat_id, name) VALUES (1, 'seed');`

// testFS возвращает набор источников с основной схемой и дополнительными файлами.
func testFS(extra map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{
		"schema/manifest.yaml":       {Data: []byte(testManifest)},
		"schema/schema.sql":          {Data: []byte(testPrimary)},
		"schema/schema_extended.sql": {Data: []byte(testExtended)},
		"schema/seed.sql":            {Data: []byte(testSeed)},
	}
	for name, text := range extra {
		if text == "" {
			delete(fsys, name)
			continue
		}
		fsys[name] = &fstest.MapFile{Data: []byte(text)}
	}
	return fsys
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestController собирает автомат с тихим логгером и фиксированными часами.
func newTestController(t *testing.T, store *sqlite.TestStore, fsys fstest.MapFS, mutators ...func(*Options)) *Controller {
	t.Helper()

	src, err := LoadSources(fsys)
	require.NoError(t, err)

	start := time.Date(2025, 9, 28, 12, 0, 0, 0, time.UTC)
	opts := Options{
		TargetVersion: "2025.01.01.3",
		Logger:        quietLogger(),
		Now:           func() time.Time { return start },
	}
	for _, m := range mutators {
		m(&opts)
	}

	c, err := NewController(store.Pool, src, opts)
	require.NoError(t, err)
	return c
}

func newTestApplier(store *sqlite.TestStore) *applier {
	return &applier{pool: store.Pool, log: quietLogger()}
}

func storedVersion(t *testing.T, store *sqlite.TestStore) string {
	t.Helper()
	v, ok, err := NewVersionStore(store.Pool).Get(context.Background())
	require.NoError(t, err)
	if !ok {
		return ""
	}
	return v.String()
}

func historyNames(t *testing.T, store *sqlite.TestStore) []string {
	t.Helper()
	entries, err := NewHistory(store.Pool).List(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// recordingObserver запоминает события автомата.
type recordingObserver struct {
	mu        sync.Mutex
	states    []string
	units     map[string]string
	tolerated int
	columns   []string
	repairs   int
	resets    int
	finished  int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{units: map[string]string{}}
}

func (o *recordingObserver) StateDetected(state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) UnitFinished(unit, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.units[unit] = outcome
}

func (o *recordingObserver) StatementTolerated(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tolerated++
}

func (o *recordingObserver) ColumnAdded(table, column string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.columns = append(o.columns, table+"."+column)
}

func (o *recordingObserver) SelfRepaired() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.repairs++
}

func (o *recordingObserver) HardReset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets++
}

func (o *recordingObserver) StartupFinished(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
}
