package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeeper/internal/platform/sqlite"
)

func TestHistory_RecordAndList(t *testing.T) {
	store := sqlite.NewTestStore(t)
	ctx := context.Background()
	h := NewHistory(store.Pool)

	// Журнала ещё нет: список пуст, таблица не создаётся
	entries, err := h.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, store.TableExists(t, "migration_history"))

	applied, err := h.Applied(ctx, "migration_2025_01_01_1_a.sql")
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, h.Record(ctx, "migration_2025_01_01_1_a.sql"))
	require.NoError(t, h.Record(ctx, "migration_2025_01_01_2_b.sql"))
	// Повторная запись не дублирует
	require.NoError(t, h.Record(ctx, "migration_2025_01_01_1_a.sql"))

	applied, err = h.Applied(ctx, "migration_2025_01_01_1_a.sql")
	require.NoError(t, err)
	assert.True(t, applied)

	entries, err = h.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "migration_2025_01_01_1_a.sql", entries[0].Name)
	assert.Equal(t, "migration_2025_01_01_2_b.sql", entries[1].Name)
	assert.WithinDuration(t, time.Now().UTC(), entries[0].AppliedAt, time.Minute)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 9, 28, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, want, parseTimestamp("2025-09-28 10:30:00"))
	assert.True(t, want.Equal(parseTimestamp("2025-09-28T10:30:00Z")))
	assert.True(t, parseTimestamp("garbage").IsZero())
}
