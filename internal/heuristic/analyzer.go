package heuristic

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"storekeeper/internal/platform/sqlite"
	"storekeeper/internal/shared"
)

// ErrDisabled - анализатор исключён из сборки тегом noheuristics.
var ErrDisabled = errors.New("heuristic analyzer is disabled in this build")

// Option настраивает Analyzer.
type Option func(*Analyzer)

// WithLogger задаёт логгер.
func WithLogger(log *slog.Logger) Option {
	return func(a *Analyzer) { a.log = log }
}

// WithBaseline заменяет базовую модель.
func WithBaseline(tables []*Table) Option {
	return func(a *Analyzer) { a.baseline = tables }
}

// Analyzer создаёт выведенную структуру в хранилище.
type Analyzer struct {
	pool     *sqlite.Pool
	log      *slog.Logger
	baseline []*Table
	model    *Model
}

// New анализирует src и возвращает анализатор, готовый создать структуру.
func New(pool *sqlite.Pool, src fs.FS, opts ...Option) (*Analyzer, error) {
	if !Enabled {
		return nil, ErrDisabled
	}

	a := &Analyzer{pool: pool, log: slog.Default(), baseline: Baseline()}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "heuristic")

	model, err := Analyze(src, a.baseline)
	if err != nil {
		return nil, fmt.Errorf("analyze sources: %w", err)
	}
	a.model = model

	inferred := 0
	for _, t := range model.Tables {
		if t.Inferred {
			inferred++
		}
	}
	a.log.Info("structure inferred", "tables", len(model.Tables), "inferred_tables", inferred)
	return a, nil
}

// Model возвращает выведенную модель.
func (a *Analyzer) Model() *Model { return a.model }

// CreateAllTables создаёт таблицы модели. Таблицы без колонок пропускаются,
// сбой одной таблицы не мешает остальным.
func (a *Analyzer) CreateAllTables(ctx context.Context) error {
	var errs []error
	created := 0
	for _, t := range a.model.Tables {
		stmt := t.CreateStatement()
		if stmt == "" {
			a.log.Debug("no columns inferred, table skipped", "table", t.Name)
			continue
		}
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			if abortive(err) {
				return err
			}
			a.log.Warn("failed to create table", "table", t.Name, "error", err)
			errs = append(errs, fmt.Errorf("table %s: %w", t.Name, err))
			continue
		}
		created++
	}
	a.log.Info("heuristic tables created", "count", created, "failed", len(errs))
	return errors.Join(errs...)
}

// CreateAllIndexes создаёт индексы, которых ещё нет. Ошибки отдельных
// индексов только логируются.
func (a *Analyzer) CreateAllIndexes(ctx context.Context) error {
	created := 0
	for _, t := range a.model.Tables {
		if len(t.Indexes) == 0 {
			continue
		}
		existing, err := a.pool.ListIndexes(ctx, t.Name)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(existing))
		for _, name := range existing {
			have[name] = true
		}

		for _, ix := range t.Indexes {
			if have[ix.Name] {
				a.log.Debug("index already exists", "index", ix.Name)
				continue
			}
			_, err := a.pool.Exec(ctx, ix.Statement())
			switch {
			case err == nil:
				created++
			case shared.IsAlreadyExists(err):
				a.log.Debug("index already exists", "index", ix.Name)
			case abortive(err):
				return err
			default:
				a.log.Warn("failed to create index", "index", ix.Name, "error", err)
			}
		}
	}
	a.log.Info("heuristic indexes created", "count", created)
	return nil
}

func abortive(err error) bool {
	return shared.IsCanceled(err) || shared.IsTimeout(err) || shared.IsTransientLock(err)
}
