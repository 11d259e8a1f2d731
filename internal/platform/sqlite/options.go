package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер

	"storekeeper/pkg/retry"
)

// TxLockMode определяет режим блокировки транзакций SQLite
type TxLockMode string

const (
	// TxLockDeferred - откладывает блокировку до первого чтения/записи (по умолчанию SQLite)
	TxLockDeferred TxLockMode = "DEFERRED"
	// TxLockImmediate - немедленно захватывает RESERVED блокировку для избежания SQLITE_BUSY при записи
	TxLockImmediate TxLockMode = "IMMEDIATE"
)

// Hooks содержит необязательные хуки для наблюдаемости пула.
type Hooks struct {
	OnSlotOpen  func()
	OnSlotClose func()
	OnAcquire   func(wait time.Duration)
	OnLockRetry func(attempt int, err error)
}

// Options содержит настройки пула соединений.
type Options struct {
	// MaxConns - потолок живых соединений (idle + занятые)
	MaxConns int
	// PingTimeout - таймаут открытия физического соединения
	PingTimeout time.Duration
	// WALMode - журнал в режиме write-ahead log
	WALMode bool
	// Synchronous - уровень синхронизации (OFF, NORMAL, FULL)
	Synchronous string
	// CacheSize - размер кэша страниц (PRAGMA cache_size)
	CacheSize int
	// TempStoreMemory - временные таблицы и индексы в памяти
	TempStoreMemory bool
	// ForeignKeys - включить проверку внешних ключей
	ForeignKeys bool
	// BusyTimeout - ожидание драйвера при SQLITE_BUSY до возврата ошибки
	BusyTimeout time.Duration
	// TxLockMode - режим блокировки для Transaction и RunScript
	TxLockMode TxLockMode
	// Retry - ретраи при конкуренции за блокировку
	Retry retry.Config
	// Logger - логгер пула (по умолчанию slog.Default)
	Logger *slog.Logger
	// Hooks - хуки для метрик
	Hooks Hooks
}

// DefaultOptions возвращает настройки по умолчанию для встроенного хранилища бота.
func DefaultOptions() Options {
	return Options{
		MaxConns:        10,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		Synchronous:     "NORMAL",
		CacheSize:       10000,
		TempStoreMemory: true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
		TxLockMode:      TxLockImmediate, // ранний захват блокировки, ретраи срабатывают на BEGIN
		Retry:           retry.DefaultConfig(),
	}
}

// pragmas возвращает список PRAGMA, применяемых один раз на физическое соединение.
// busy_timeout идёт первым, чтобы переключение журнала могло подождать блокировку.
func (o Options) pragmas() []string {
	out := make([]string, 0, 6)
	out = append(out, fmt.Sprintf("PRAGMA busy_timeout = %d", o.BusyTimeout.Milliseconds()))
	if o.WALMode {
		out = append(out, "PRAGMA journal_mode = WAL")
	}
	if o.Synchronous != "" {
		out = append(out, "PRAGMA synchronous = "+o.Synchronous)
	}
	if o.CacheSize != 0 {
		out = append(out, fmt.Sprintf("PRAGMA cache_size = %d", o.CacheSize))
	}
	if o.TempStoreMemory {
		out = append(out, "PRAGMA temp_store = MEMORY")
	}
	if o.ForeignKeys {
		out = append(out, "PRAGMA foreign_keys = ON")
	} else {
		out = append(out, "PRAGMA foreign_keys = OFF")
	}
	return out
}

// openSlot открывает новое физическое соединение и применяет PRAGMA настройки.
// Каждый слот держит собственный *sql.DB с единственным соединением, так что
// настройки применяются ровно один раз на физическое соединение.
func openSlot(ctx context.Context, path string, opts Options, id uint64) (*Slot, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	openCtx := ctx
	if opts.PingTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
	}

	conn, err := db.Conn(openCtx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	if err := conn.PingContext(openCtx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	for _, pragma := range opts.pragmas() {
		if _, err := conn.ExecContext(openCtx, pragma); err != nil {
			_ = conn.Close()
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return &Slot{id: id, conn: conn, db: db, opened: time.Now()}, nil
}
