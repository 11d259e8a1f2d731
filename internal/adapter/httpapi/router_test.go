package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeeper/internal/platform/logger"
	"storekeeper/internal/platform/sqlite"
	"storekeeper/internal/schema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePool struct{ err error }

func (f fakePool) HealthCheck(context.Context) error { return f.err }

type fakeSchema struct {
	st  *schema.Status
	err error
}

func (f fakeSchema) Status(context.Context) (*schema.Status, error) { return f.st, f.err }

func currentStatus() *schema.Status {
	return &schema.Status{
		Detection: schema.Detection{
			State:  schema.StateVersionedCurrent,
			Stored: "2025.09.28.1",
			Target: "2025.09.28.1",
		},
		History: []schema.HistoryEntry{
			{Name: "migration_2025_09_16_15_merchant_channel_fields.sql", AppliedAt: time.Date(2025, 9, 16, 10, 0, 0, 0, time.UTC)},
		},
		Pool: sqlite.Stats{Ceiling: 10, Live: 1, Idle: 1},
	}
}

func newRouter(pool fakePool, sch fakeSchema, metrics http.Handler) *gin.Engine {
	return NewRouter(Deps{Pool: pool, Schema: sch, Metrics: metrics, Logger: logger.Discard()})
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealthz(t *testing.T) {
	w, body := get(t, newRouter(fakePool{}, fakeSchema{}, nil), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = get(t, newRouter(fakePool{err: errors.New("sqlite: pool is closed")}, fakeSchema{}, nil), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "sqlite: pool is closed", body["error"])
}

func TestSchema(t *testing.T) {
	w, body := get(t, newRouter(fakePool{}, fakeSchema{st: currentStatus()}, nil), "/schema")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "VersionedCurrent", body["state"])
	assert.Equal(t, "2025.09.28.1", body["stored_version"])
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, []any{}, body["pending"])
	assert.NotContains(t, body, "history")

	pool := body["pool"].(map[string]any)
	assert.Equal(t, float64(10), pool["ceiling"])
}

func TestSchema_NotReadyWithMissingTables(t *testing.T) {
	st := currentStatus()
	st.Missing = []string{"orders"}

	_, body := get(t, newRouter(fakePool{}, fakeSchema{st: st}, nil), "/schema")
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, []any{"orders"}, body["missing_tables"])
}

func TestSchema_Error(t *testing.T) {
	w, body := get(t, newRouter(fakePool{}, fakeSchema{err: errors.New("database is locked")}, nil), "/schema")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "database is locked", body["error"])
}

func TestHistory(t *testing.T) {
	w, body := get(t, newRouter(fakePool{}, fakeSchema{st: currentStatus()}, nil), "/schema/history")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	entries := body["entries"].([]any)
	first := entries[0].(map[string]any)
	assert.Equal(t, "migration_2025_09_16_15_merchant_channel_fields.sql", first["name"])

	_, body = get(t, newRouter(fakePool{}, fakeSchema{st: &schema.Status{}}, nil), "/schema/history")
	assert.Equal(t, []any{}, body["entries"])
}

func TestMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("storekeeper_pool_slots_live 1\n"))
	})

	w, _ := get(t, newRouter(fakePool{}, fakeSchema{}, metrics), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storekeeper_pool_slots_live")

	w, _ = get(t, newRouter(fakePool{}, fakeSchema{}, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", newRouter(fakePool{}, fakeSchema{}, nil), logger.Discard())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("сервер не остановился")
	}
}
