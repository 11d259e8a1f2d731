package schema

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeeper/internal/platform/sqlite"
)

func TestStatus_EmptyStore(t *testing.T) {
	store := sqlite.NewTestStore(t)
	c := newTestController(t, store, ledgerFS(nil))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateNoVersion, st.State)
	assert.Equal(t, []string{unitInit, unitChannel, unitStatus}, st.Pending)
	assert.Equal(t, []string{"system_config", "merchants", "orders"}, st.Missing)
	assert.Empty(t, st.History)
	assert.Equal(t, 4, st.Pool.Ceiling)

	// Status ничего не создаёт
	assert.False(t, store.TableExists(t, "migration_history"))
}

func TestStatus_LegacyStore(t *testing.T) {
	store := sqlite.NewTestStore(t)
	seedLegacyStore(t, store)
	c := newTestController(t, store, ledgerFS(nil))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateVersionedStale, st.State)
	assert.Equal(t, "2025.01.01.1", st.Stored)
	assert.Equal(t, []string{unitChannel, unitStatus}, st.Pending)
	assert.Empty(t, st.Missing)
	require.Len(t, st.History, 1)
	assert.Equal(t, unitInit, st.History[0].Name)
}

func TestStats(t *testing.T) {
	store := sqlite.NewTestStore(t)
	c := newTestController(t, store, ledgerFS(nil))
	ctx := context.Background()

	_, err := c.Startup(ctx)
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)

	rows := map[string]int64{}
	for _, s := range stats {
		rows[s.Table] = s.Rows
	}
	assert.Equal(t, int64(1), rows["merchants"])
	assert.Equal(t, int64(0), rows["orders"])
	assert.Equal(t, int64(3), rows["migration_history"])
	// greeting + schema_version
	assert.Equal(t, int64(2), rows["system_config"])
	assert.NotContains(t, rows, "sqlite_sequence")
}

func TestNewMigrationFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "migration_2025_09_28_1_existing.sql"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "migration_2025_09_27_7_yesterday.sql"), nil, 0o644))

	now := time.Date(2025, 9, 28, 15, 4, 5, 0, time.UTC)

	path, v, err := NewMigrationFile(dir, "add order price!", now)
	require.NoError(t, err)
	assert.Equal(t, "migration_2025_09_28_2_add_order_price.sql", filepath.Base(path))
	assert.Equal(t, "2025.09.28.2", v.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-- migration_2025_09_28_2_add_order_price.sql\n"))
	assert.Contains(t, string(data), "-- version: 2025.09.28.2")
	assert.Contains(t, string(data), "@requires")

	// Созданный файл распознаётся журналом
	u, ok := ParseUnitName(filepath.Base(path))
	require.True(t, ok)
	assert.True(t, u.Version.Equal(v))

	path, _, err = NewMigrationFile(dir, "города", now)
	require.NoError(t, err)
	assert.Equal(t, "migration_2025_09_28_3_города.sql", filepath.Base(path))

	// Новый день начинается с 1
	path, _, err = NewMigrationFile(dir, "next", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "migration_2025_09_29_1_next.sql", filepath.Base(path))
}

func TestNewMigrationFile_EmptyDescription(t *testing.T) {
	_, _, err := NewMigrationFile(t.TempDir(), " !!! ", time.Now())
	assert.Error(t, err)
}

func TestReport_Summary(t *testing.T) {
	rep := &Report{
		RunID:         "run-1",
		InitialState:  StateVersionedStale,
		StoredVersion: "2025.01.01.1",
		FinalVersion:  "2025.01.01.3",
		Units: []UnitResult{
			{Name: unitInit, Outcome: OutcomeAlreadyRecorded},
			{Name: unitChannel, Outcome: OutcomeApplied, Tolerated: 1},
			{Name: unitStatus, Outcome: OutcomeApplied},
		},
		Repaired:     true,
		ColumnsAdded: []string{"orders.price"},
		Warnings:     []string{"seed seed.sql: boom"},
		Duration:     1500 * time.Millisecond,
	}

	want := `schema startup run-1
state: VersionedStale (stored 2025.01.01.1)
version: 2025.01.01.3
applied: migration_2025_01_01_2_channel.sql, migration_2025_01_01_3_orders_status.sql
already applied: 1
tolerated statements: 1
structural drift repaired
columns added: orders.price
warning: seed seed.sql: boom
took 1.5s`
	assert.Equal(t, want, rep.Summary())

	failed := &Report{RunID: "run-2", InitialState: StateNoVersion, Err: "boom"}
	assert.Contains(t, failed.Summary(), "version: -\n")
	assert.Contains(t, failed.Summary(), "error: boom\n")
}
