// Package synchronizer добавляет в живое хранилище колонки, объявленные
// инструкциями ALTER TABLE ... ADD COLUMN в декларативных источниках.
// Пакет только добавляет: удаление, переименование и смена типа не выполняются.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"storekeeper/internal/platform/sqlite"
)

const ident = "[\"`\\[]?(\\w+)[\"`\\]]?"

// addColumnPattern покрывает ADD COLUMN и краткую форму ADD, с кавычками вокруг имён и без.
var addColumnPattern = regexp.MustCompile(
	`(?i)\bALTER\s+TABLE\s+` + ident + `\s+ADD\s+(?:COLUMN\s+)?` + ident + `(?:[ \t]+([^;\n]*))?`)

// Source - именованный текст декларативного источника.
type Source struct {
	Name string
	Text string
}

// Declaration - объявленная колонка с полным определением (тип, DEFAULT и т.д.).
type Declaration struct {
	Table      string `json:"table"`
	Column     string `json:"column"`
	Definition string `json:"definition"`
	Source     string `json:"source"`
}

// Statement возвращает инструкцию добавления колонки.
func (d Declaration) Statement() string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", sqlite.QuoteIdent(d.Table), sqlite.QuoteIdent(d.Column))
	if d.Definition != "" {
		stmt += " " + d.Definition
	}
	return stmt
}

// Parse собирает объявления колонок из источников.
// Для одной пары (таблица, колонка) побеждает последнее объявление;
// порядок результата - порядок первого появления.
func Parse(sources ...Source) []Declaration {
	var (
		out   []Declaration
		index = map[string]int{}
	)
	for _, src := range sources {
		for _, m := range addColumnPattern.FindAllStringSubmatch(sqlite.CleanScript(src.Text), -1) {
			d := Declaration{
				Table:      m[1],
				Column:     m[2],
				Definition: strings.TrimSpace(m[3]),
				Source:     src.Name,
			}
			key := strings.ToLower(d.Table + "." + d.Column)
			if i, ok := index[key]; ok {
				out[i] = d
				continue
			}
			index[key] = len(out)
			out = append(out, d)
		}
	}
	return out
}

// Plan - расхождение объявлений и живой структуры.
type Plan struct {
	// Missing - объявленные колонки, которых нет в живых таблицах
	Missing []Declaration `json:"missing"`
	// Present - число объявленных колонок, которые уже есть
	Present int `json:"present"`
	// AbsentTables - объявленные таблицы, которых нет в хранилище
	AbsentTables []string `json:"absent_tables,omitempty"`
}

// Result - итог синхронизации.
type Result struct {
	Added        []Declaration `json:"added"`
	Present      int           `json:"present"`
	Tolerated    int           `json:"tolerated"`
	AbsentTables []string      `json:"absent_tables,omitempty"`
}

// Synchronizer сравнивает объявления с живой структурой и добавляет недостающее.
type Synchronizer struct {
	pool    *sqlite.Pool
	log     *slog.Logger
	onAdded func(table, column string)
}

// Option настраивает Synchronizer.
type Option func(*Synchronizer)

// WithLogger задаёт логгер.
func WithLogger(log *slog.Logger) Option {
	return func(s *Synchronizer) { s.log = log }
}

// WithAddedHook вызывается после каждой добавленной колонки.
func WithAddedHook(fn func(table, column string)) Option {
	return func(s *Synchronizer) { s.onAdded = fn }
}

// New создаёт синхронизатор.
func New(pool *sqlite.Pool, opts ...Option) *Synchronizer {
	s := &Synchronizer{pool: pool, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "synchronizer")
	return s
}

// Plan вычисляет недостающие колонки без изменений в хранилище.
func (s *Synchronizer) Plan(ctx context.Context, decls []Declaration) (Plan, error) {
	var (
		plan   Plan
		shapes = map[string]sqlite.TableShape{}
		absent = map[string]bool{}
	)
	for _, d := range decls {
		key := strings.ToLower(d.Table)
		shape, seen := shapes[key]
		if !seen {
			var err error
			shape, err = s.pool.ListColumns(ctx, d.Table)
			if err != nil {
				return Plan{}, err
			}
			shapes[key] = shape
		}

		switch {
		case len(shape.Columns) == 0:
			if !absent[key] {
				absent[key] = true
				plan.AbsentTables = append(plan.AbsentTables, d.Table)
			}
		case shape.Has(d.Column):
			plan.Present++
		default:
			plan.Missing = append(plan.Missing, d)
		}
	}
	return plan, nil
}

// Run добавляет недостающие колонки. "Уже существует" считается успехом;
// прочие ошибки не прерывают проход и возвращаются вместе.
func (s *Synchronizer) Run(ctx context.Context, decls []Declaration) (Result, error) {
	plan, err := s.Plan(ctx, decls)
	if err != nil {
		return Result{}, err
	}

	res := Result{Present: plan.Present, AbsentTables: plan.AbsentTables}
	for _, table := range plan.AbsentTables {
		s.log.Warn("declared table is absent, skipping", "table", table)
	}

	var errs []error
	for _, d := range plan.Missing {
		_, err := s.pool.Exec(ctx, d.Statement())
		switch {
		case err == nil:
			res.Added = append(res.Added, d)
			s.log.Info("column added", "table", d.Table, "column", d.Column, "source", d.Source)
			if s.onAdded != nil {
				s.onAdded(d.Table, d.Column)
			}
		case sqlite.IsAlreadyExistsError(err):
			res.Tolerated++
			s.log.Debug("column already exists", "table", d.Table, "column", d.Column)
		default:
			s.log.Error("failed to add column", "table", d.Table, "column", d.Column, "error", err)
			errs = append(errs, fmt.Errorf("add %s.%s: %w", d.Table, d.Column, err))
		}
	}

	s.log.Info("synchronization finished",
		"added", len(res.Added), "present", res.Present, "tolerated", res.Tolerated, "failed", len(errs))
	return res, errors.Join(errs...)
}
