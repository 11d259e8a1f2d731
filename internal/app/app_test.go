package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeeper/internal/config"
	"storekeeper/internal/heuristic"
	"storekeeper/internal/platform/logger"
	"storekeeper/internal/schema"
	"storekeeper/internal/shared"
)

type recordingNotifier struct {
	texts []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	var cfg config.Config
	cfg.Env = "dev"
	cfg.DB.Path = filepath.Join(dir, "data", "database.db")
	cfg.DB.MaxConns = 4
	cfg.DB.CacheSize = 10000
	cfg.Schema.BackupBeforeReset = true
	cfg.Backup.Dir = filepath.Join(dir, "backups")
	cfg.Backup.Keep = 2
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, logger.Discard(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_StartupWithEmbeddedSources(t *testing.T) {
	rec := &recordingNotifier{}
	a := newTestApp(t, testConfig(t), WithNotifier(rec))
	ctx := context.Background()

	rep, err := a.Startup(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.StateNoVersion, rep.InitialState)
	assert.Equal(t, schema.CurrentVersion, rep.FinalVersion)

	require.Len(t, rec.texts, 1)
	assert.Contains(t, rec.texts[0], "state: NoVersion")

	// Метрики видят обнаруженное состояние и открытые слоты
	w := httptest.NewRecorder()
	a.Metrics().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `storekeeper_schema_state{state="NoVersion"} 1`)
	assert.Contains(t, w.Body.String(), "storekeeper_pool_slots_opened_total")

	rep, err = a.Startup(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.StateVersionedCurrent, rep.InitialState)
}

func TestApp_Backup(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, WithNotifier(&recordingNotifier{}))
	ctx := context.Background()

	_, err := a.Startup(ctx)
	require.NoError(t, err)

	path, err := a.Backup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, cfg.Backup.Dir, filepath.Dir(path))
}

func TestApp_SchemaDirOverridesEmbedded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schema.Dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Schema.Dir, "schema"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Schema.Dir, "schema", "manifest.yaml"), []byte(`
primary: schema.sql
required_tables: [kv]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Schema.Dir, "schema", "schema.sql"),
		[]byte("CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT);"), 0o644))

	a := newTestApp(t, cfg, WithNotifier(&recordingNotifier{}))
	_, err := a.Startup(context.Background())
	require.NoError(t, err)

	tables, err := a.Pool().ListTables(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tables, "kv")
	assert.NotContains(t, tables, "merchants")
}

func TestApp_HeuristicBootstrap(t *testing.T) {
	if !heuristic.Enabled {
		t.Skip("heuristic analyzer compiled out")
	}
	cfg := testConfig(t)
	cfg.Schema.Heuristics = true
	cfg.Schema.HeuristicsSource = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Schema.HeuristicsSource, "reviews.py"),
		[]byte(`db.execute("INSERT INTO reviews (merchant_id, rating, comment) VALUES (?, ?, ?)")`), 0o644))

	a := newTestApp(t, cfg, WithSources(fstest.MapFS{}), WithNotifier(&recordingNotifier{}))
	rep, err := a.Startup(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Heuristic)

	ok, err := a.Pool().TableExists(context.Background(), "reviews")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApp_MissingPrimaryWithoutHeuristicsFails(t *testing.T) {
	a := newTestApp(t, testConfig(t), WithSources(fstest.MapFS{}), WithNotifier(&recordingNotifier{}))

	_, err := a.Startup(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsUnrecoverable(err))
	assert.Equal(t, 3, ExitCode(err))
}

func TestApp_ServeWithoutHTTPStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Verify.Schedule = "@every 1h"
	a := newTestApp(t, cfg, WithNotifier(&recordingNotifier{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve не завершился после отмены")
	}
}

func TestApp_ServeCanceledBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Verify.Schedule = "@every 1h"
	cfg.Backup.Schedule = "@every 1h"
	a := newTestApp(t, cfg, WithNotifier(&recordingNotifier{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Serve(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))
}

func TestApp_ServeRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Schedule = "every night"
	a := newTestApp(t, cfg, WithNotifier(&recordingNotifier{}))

	assert.Error(t, a.Serve(context.Background()))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode(context.Canceled))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 2, ExitCode(shared.MarkKind(errors.New("bad env"), shared.KindValidation)))
	assert.Equal(t, 3, ExitCode(shared.Unrecoverable(errors.New("disk"), "open store")))
}
