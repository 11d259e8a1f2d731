package sqlite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeeper/internal/shared"
	"storekeeper/pkg/retry"
)

func TestOpen_RejectsInMemoryAndBadCeiling(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, ":memory:", TestOptions())
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	opts := TestOptions()
	opts.MaxConns = 0
	_, err = Open(ctx, t.TempDir()+"/x.db", opts)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestOpen_UnreachablePathIsUnrecoverable(t *testing.T) {
	// Каталог вместо файла: открыть как БД нельзя
	dir := t.TempDir()
	_, err := Open(context.Background(), dir, TestOptions())
	require.Error(t, err)
	assert.True(t, shared.IsUnrecoverable(err), "got %v", err)
}

func TestPool_PragmasAppliedPerConnection(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	err := store.Pool.WithSlot(ctx, func(s *Slot) error {
		checks := map[string]string{
			"PRAGMA journal_mode": "wal",
			"PRAGMA foreign_keys": "1",
			"PRAGMA cache_size":   "10000",
			"PRAGMA temp_store":   "2",
			"PRAGMA synchronous":  "1",
		}
		for pragma, want := range checks {
			var got string
			if err := s.QueryRowContext(ctx, pragma).Scan(&got); err != nil {
				return err
			}
			assert.Equal(t, want, got, pragma)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestPool_ReusesIdleSlot(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	s1, err := store.Pool.Acquire(ctx)
	require.NoError(t, err)
	id := s1.ID()
	store.Pool.Release(s1, true)

	s2, err := store.Pool.Acquire(ctx)
	require.NoError(t, err)
	defer store.Pool.Release(s2, true)

	assert.Equal(t, id, s2.ID(), "свободный слот должен переиспользоваться")
	assert.Equal(t, 1, store.Pool.Stats().Live)
}

func TestPool_UnhealthyReleaseClosesSlot(t *testing.T) {
	var closed int32
	store := NewTestStore(t, func(o *Options) {
		o.Hooks.OnSlotClose = func() { atomic.AddInt32(&closed, 1) }
	})
	ctx := context.Background()

	s, err := store.Pool.Acquire(ctx)
	require.NoError(t, err)
	store.Pool.Release(s, false)

	st := store.Pool.Stats()
	assert.Equal(t, 0, st.Live)
	assert.Equal(t, 0, st.Idle)
	assert.Equal(t, int32(1), atomic.LoadInt32(&closed))

	// Повторный возврат игнорируется
	store.Pool.Release(s, true)
	assert.Equal(t, 0, store.Pool.Stats().Idle)
}

func TestPool_LiveCountNeverExceedsCeiling(t *testing.T) {
	const ceiling = 3
	store := NewTestStore(t, func(o *Options) { o.MaxConns = ceiling })
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		maxLive int64
		maxUsed int64
	)
	observe := func(v int, max *int64) {
		for {
			cur := atomic.LoadInt64(max)
			if int64(v) <= cur || atomic.CompareAndSwapInt64(max, cur, int64(v)) {
				return
			}
		}
	}

	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				s, err := store.Pool.Acquire(ctx)
				if !assert.NoError(t, err) {
					return
				}
				st := store.Pool.Stats()
				observe(st.Live, &maxLive)
				observe(st.InUse, &maxUsed)

				var one int
				assert.NoError(t, s.QueryRowContext(ctx, "SELECT 1").Scan(&one))
				store.Pool.Release(s, i%5 != 0)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxLive, int64(ceiling))
	assert.LessOrEqual(t, maxUsed, int64(ceiling))
	assert.LessOrEqual(t, store.Pool.Stats().Live, ceiling)
}

func TestPool_AcquireRespectsContext(t *testing.T) {
	store := NewTestStore(t, func(o *Options) { o.MaxConns = 1 })
	ctx := context.Background()

	s, err := store.Pool.Acquire(ctx)
	require.NoError(t, err)
	defer store.Pool.Release(s, true)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Pool.Acquire(cctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_PurgeAndClose(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	s, err := store.Pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Error(t, store.Pool.Purge(), "purge с занятым слотом должен падать")

	store.Pool.Release(s, true)
	require.NoError(t, store.Pool.Purge())
	assert.Equal(t, Stats{Ceiling: 4}, store.Pool.Stats())

	require.NoError(t, store.Pool.Close())
	_, err = store.Pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ExecRetriesLockContentionThenFails(t *testing.T) {
	var retries int32
	store := NewTestStore(t, func(o *Options) {
		o.Hooks.OnLockRetry = func(int, error) { atomic.AddInt32(&retries, 1) }
	})
	store.Exec(t, "CREATE TABLE t (id INTEGER)")
	ctx := context.Background()

	// Второй пул удерживает блокировку записи
	other := OpenTestStore(t, store.Path)
	holder, err := other.Pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = holder.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	defer func() {
		_, _ = holder.ExecContext(ctx, "ROLLBACK")
		other.Pool.Release(holder, true)
	}()

	_, err = store.Pool.Exec(ctx, "INSERT INTO t VALUES (1)")
	require.Error(t, err)
	assert.True(t, shared.IsTransientLock(err), "got %v", err)

	var exceeded *retry.RetriesExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 3, exceeded.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&retries))
}

func TestPool_ExecSucceedsWhenLockReleasedBetweenAttempts(t *testing.T) {
	ctx := context.Background()
	var (
		holder *Slot
		other  *TestStore
	)
	store := NewTestStore(t, func(o *Options) {
		o.Hooks.OnLockRetry = func(attempt int, _ error) {
			if attempt == 1 && holder != nil {
				_, _ = holder.ExecContext(ctx, "ROLLBACK")
				other.Pool.Release(holder, true)
				holder = nil
			}
		}
	})
	store.Exec(t, "CREATE TABLE t (id INTEGER)")

	other = OpenTestStore(t, store.Path)
	var err error
	holder, err = other.Pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = holder.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)

	n, err := store.Pool.Exec(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), store.CountRows(t, "t"))
}

func TestPool_NonLockErrorsAreNotRetried(t *testing.T) {
	var retries int32
	store := NewTestStore(t, func(o *Options) {
		o.Hooks.OnLockRetry = func(int, error) { atomic.AddInt32(&retries, 1) }
	})

	_, err := store.Pool.Exec(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.Equal(t, shared.KindUnknown, shared.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&retries))

	// Слот после синтаксической ошибки остаётся в пуле
	assert.Equal(t, 1, store.Pool.Stats().Idle)
}

func TestPool_QueryRowNotFound(t *testing.T) {
	store := NewTestStore(t)
	store.Exec(t, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")

	var v string
	err := store.Pool.QueryRow(context.Background(), "SELECT v FROM kv WHERE k = ?", []any{"missing"}, &v)
	assert.True(t, shared.IsNotFound(err))
}

func TestPool_HealthCheck(t *testing.T) {
	store := NewTestStore(t)
	assert.NoError(t, store.Pool.HealthCheck(context.Background()))
}
