package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"storekeeper/internal/shared"
	"storekeeper/pkg/retry"
)

// ErrPoolClosed возвращается при обращении к закрытому пулу.
var ErrPoolClosed = errors.New("sqlite: pool is closed")

// Querier объединяет методы выполнения запросов, общие для слота и транзакции.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Убедимся на этапе компиляции, что типы реализуют интерфейс
var (
	_ Querier = (*Slot)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Slot - одно физическое соединение с хранилищем.
// В каждый момент принадлежит не более чем одному вызывающему.
type Slot struct {
	id     uint64
	conn   *sql.Conn
	db     *sql.DB
	opened time.Time
	inUse  bool
}

// ID возвращает порядковый номер физического соединения.
func (s *Slot) ID() uint64 { return s.id }

// ExecContext выполняет запрос без возврата строк.
func (s *Slot) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, query, args...)
}

// QueryContext выполняет запрос, возвращающий строки.
func (s *Slot) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext выполняет запрос, возвращающий не более одной строки.
func (s *Slot) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, query, args...)
}

func (s *Slot) close() error {
	return errors.Join(s.conn.Close(), s.db.Close())
}

// Stats - снимок состояния пула.
type Stats struct {
	Ceiling int `json:"ceiling"`
	Live    int `json:"live"`
	Idle    int `json:"idle"`
	InUse   int `json:"in_use"`
}

// Pool - ограниченный пул соединений с файлом SQLite.
// Создаётся явно процессом при старте и передаётся зависимым компонентам.
type Pool struct {
	path string
	opts Options
	log  *slog.Logger

	// gate держит по токену на каждый занятый слот; ёмкость равна потолку.
	gate chan struct{}

	mu     sync.Mutex
	idle   []*Slot
	live   int
	inUse  int
	nextID uint64
	closed bool
}

// Open создаёт пул для файла path и проверяет, что соединение открывается.
// Ошибка открытия помечается как shared.KindUnrecoverable.
func Open(ctx context.Context, path string, opts Options) (*Pool, error) {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return nil, shared.MarkKind(fmt.Errorf("sqlite: pool needs a file path, got %q", path), shared.KindValidation)
	}
	if opts.MaxConns <= 0 {
		return nil, shared.MarkKind(fmt.Errorf("sqlite: MaxConns must be positive, got %d", opts.MaxConns), shared.KindValidation)
	}
	if opts.TxLockMode == "" {
		opts.TxLockMode = TxLockDeferred
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}

	// Создаем директорию для БД если её нет
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, shared.Unrecoverable(err, "create store directory")
		}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Pool{
		path: path,
		opts: opts,
		log:  log.With("component", "sqlite_pool"),
		gate: make(chan struct{}, opts.MaxConns),
	}

	s, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	p.Release(s, true)

	p.log.Debug("pool opened", "path", path, "ceiling", opts.MaxConns)
	return p, nil
}

// Path возвращает путь к файлу хранилища.
func (p *Pool) Path() string { return p.path }

// Acquire возвращает слот: свободный из пула или новое физическое соединение.
// Блокируется, пока число занятых слотов равно потолку.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	start := time.Now()
	select {
	case p.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		<-p.gate
		return nil, ErrPoolClosed
	}

	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		s.inUse = true
		p.inUse++
		p.observeAcquire(start)
		return s, nil
	}

	// Открываем новое соединение под мьютексом: свободных слотов нет,
	// значит live == inUse < потолка.
	p.nextID++
	s, err := openSlot(ctx, p.path, p.opts, p.nextID)
	if err != nil {
		<-p.gate
		return nil, shared.Unrecoverable(err, "open connection")
	}
	s.inUse = true
	p.live++
	p.inUse++
	if h := p.opts.Hooks.OnSlotOpen; h != nil {
		h()
	}
	p.log.Debug("connection opened", "slot", s.id, "live", p.live)
	p.observeAcquire(start)
	return s, nil
}

func (p *Pool) observeAcquire(start time.Time) {
	if h := p.opts.Hooks.OnAcquire; h != nil {
		h(time.Since(start))
	}
}

// Release возвращает слот в пул, если он исправен и пул не закрыт, иначе закрывает его.
func (p *Pool) Release(s *Slot, healthy bool) {
	if s == nil {
		return
	}

	p.mu.Lock()
	if !s.inUse {
		p.mu.Unlock()
		p.log.Warn("release of a slot that is not in use", "slot", s.id)
		return
	}
	s.inUse = false
	p.inUse--

	keep := healthy && !p.closed && len(p.idle) < cap(p.gate)
	if keep {
		p.idle = append(p.idle, s)
	} else {
		p.live--
	}
	p.mu.Unlock()

	<-p.gate

	if !keep {
		p.discard(s)
	}
}

func (p *Pool) discard(s *Slot) {
	if err := s.close(); err != nil {
		p.log.Warn("failed to close connection", "slot", s.id, "error", err)
	}
	if h := p.opts.Hooks.OnSlotClose; h != nil {
		h()
	}
	p.log.Debug("connection closed", "slot", s.id)
}

// WithSlot захватывает слот, выполняет fn и возвращает слот в пул.
// Слот считается неисправным, если fn вернула ошибку уровня соединения.
func (p *Pool) WithSlot(ctx context.Context, fn func(s *Slot) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	err = fn(s)
	p.Release(s, healthyAfter(err))
	return err
}

// Stats возвращает снимок состояния пула.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Ceiling: cap(p.gate), Live: p.live, Idle: len(p.idle), InUse: p.inUse}
}

// Purge закрывает все свободные соединения. Требует, чтобы занятых слотов не было:
// после Purge файл хранилища можно удалить.
func (p *Pool) Purge() error {
	p.mu.Lock()
	if p.inUse > 0 {
		n := p.inUse
		p.mu.Unlock()
		return fmt.Errorf("sqlite: %d connections still in use", n)
	}
	idle := p.idle
	p.idle = nil
	p.live -= len(idle)
	p.mu.Unlock()

	for _, s := range idle {
		p.discard(s)
	}
	return nil
}

// Close закрывает пул. Занятые слоты закрываются при возврате.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.live -= len(idle)
	p.mu.Unlock()

	var errs []error
	for _, s := range idle {
		errs = append(errs, s.close())
		if h := p.opts.Hooks.OnSlotClose; h != nil {
			h()
		}
	}
	return errors.Join(errs...)
}

// HealthCheck проверяет, что хранилище отвечает на простой запрос.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var one int
	if err := p.QueryRow(ctx, "SELECT 1", nil, &one); err != nil {
		return shared.Wrap(err, "health check")
	}
	return nil
}

// withRetry повторяет fn при конкуренции за блокировку.
// Исчерпанные попытки помечаются как shared.KindTransientLock.
func (p *Pool) withRetry(ctx context.Context, fn retry.RetryableFunc, retryable retry.IsRetryableFunc) error {
	cfg := p.opts.Retry
	userHook := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, next time.Duration) {
		p.log.Debug("lock contention, retrying", "attempt", attempt, "delay", next, "error", err)
		if h := p.opts.Hooks.OnLockRetry; h != nil {
			h(attempt, err)
		}
		if userHook != nil {
			userHook(attempt, err, next)
		}
	}
	return Classify(retry.Do(ctx, cfg, fn, retryable))
}

// Exec выполняет одну инструкцию без возврата строк и возвращает число затронутых строк.
// Конкуренция за блокировку повторяется; остальные ошибки возвращаются как есть,
// классифицированные через Classify.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := p.withRetry(ctx, func(ctx context.Context) error {
		return p.WithSlot(ctx, func(s *Slot) error {
			res, err := s.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			affected, _ = res.RowsAffected()
			return nil
		})
	}, IsLockError)
	return affected, err
}

// Query выполняет запрос и вызывает scan для каждой строки.
// Ретрай возможен только до первой прочитанной строки.
func (p *Pool) Query(ctx context.Context, query string, scan func(rows *sql.Rows) error, args ...any) error {
	scanned := false
	return p.withRetry(ctx, func(ctx context.Context) error {
		return p.WithSlot(ctx, func(s *Slot) error {
			rows, err := s.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				scanned = true
				if err := scan(rows); err != nil {
					return err
				}
			}
			return rows.Err()
		})
	}, func(err error) bool { return !scanned && IsLockError(err) })
}

// QueryRow выполняет запрос и сканирует первую строку в dest.
// Отсутствие строк возвращается как shared.KindNotFound.
func (p *Pool) QueryRow(ctx context.Context, query string, args []any, dest ...any) error {
	err := p.withRetry(ctx, func(ctx context.Context) error {
		return p.WithSlot(ctx, func(s *Slot) error {
			return s.QueryRowContext(ctx, query, args...).Scan(dest...)
		})
	}, IsLockError)
	if errors.Is(err, sql.ErrNoRows) {
		return shared.MarkKind(err, shared.KindNotFound)
	}
	return err
}
