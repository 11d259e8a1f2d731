package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storekeeper/internal/platform/sqlite"
	"storekeeper/internal/shared"
)

// Outcome - исход применения набора инструкций.
type Outcome string

const (
	// OutcomeApplied - инструкции выполнены (часть могла быть пропущена как "уже существует")
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyRecorded - миграция уже есть в журнале, не выполнялась
	OutcomeAlreadyRecorded Outcome = "skipped"
	// OutcomeNotApplicable - предусловия не выполнены, миграция записана без выполнения
	OutcomeNotApplicable Outcome = "not_applicable"
	// OutcomeFailed - ни одна инструкция не выполнена и есть настоящие ошибки
	OutcomeFailed Outcome = "failed"
)

// UnitResult - итог применения одной миграции или декларативного источника.
type UnitResult struct {
	Name      string   `json:"name"`
	Outcome   Outcome  `json:"outcome"`
	Compound  bool     `json:"compound,omitempty"`
	Executed  int      `json:"executed"`
	Tolerated int      `json:"tolerated"`
	Failed    int      `json:"failed"`
	Unmet     []string `json:"unmet,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// UnitError - миграция не применена; версия не продвигается.
type UnitError struct {
	Unit   string
	Result UnitResult
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// IsCompound сообщает, что скрипт нельзя делить на инструкции:
// он определяет триггеры, сам управляет транзакциями или переключает foreign_keys.
func IsCompound(script string) bool {
	return sqlite.IsTriggerDefinition(script) ||
		sqlite.HasTransactionControl(script) ||
		sqlite.HasForeignKeyPragma(script)
}

// applier выполняет тексты миграций и декларативных источников.
type applier struct {
	pool       *sqlite.Pool
	log        *slog.Logger
	onTolerate func(name string)
}

// execute выполняет скрипт name. Составные скрипты выполняются целиком через
// RunScript и не допускают ошибок. Остальные делятся на инструкции; ошибки
// "уже существует" считаются успехом. Скрипт считается применённым, если хотя бы
// одна инструкция выполнена или все ошибки допустимы.
func (a *applier) execute(ctx context.Context, name, raw string) (UnitResult, error) {
	res := UnitResult{Name: name}

	pre, err := ParsePreconditions(raw)
	if err != nil {
		return a.fail(res, err)
	}
	if len(pre) > 0 {
		unmet, err := unmetPreconditions(ctx, a.pool, pre)
		if err != nil {
			return a.fail(res, err)
		}
		if len(unmet) > 0 {
			for _, p := range unmet {
				res.Unmet = append(res.Unmet, p.String())
			}
			res.Outcome = OutcomeNotApplicable
			a.log.Info("preconditions not met, skipping execution", "unit", name, "unmet", res.Unmet)
			return res, nil
		}
	}

	script := sqlite.CleanScript(raw)
	if IsCompound(script) {
		res.Compound = true
		if err := a.pool.RunScript(ctx, script); err != nil {
			res.Failed = 1
			return a.fail(res, err)
		}
		res.Executed = 1
		res.Outcome = OutcomeApplied
		return res, nil
	}

	var errs []error
	for _, stmt := range sqlite.SplitStatements(script) {
		_, err := a.pool.Exec(ctx, stmt)
		switch {
		case err == nil:
			res.Executed++
		case shared.IsAlreadyExists(err):
			res.Tolerated++
			a.log.Debug("structure already exists, statement tolerated", "unit", name, "statement", preview(stmt), "error", err)
			if a.onTolerate != nil {
				a.onTolerate(name)
			}
		case shared.IsTransientLock(err), shared.IsCanceled(err), shared.IsTimeout(err):
			// Исчерпанные ретраи и отмена прерывают применение целиком
			res.Failed++
			return a.fail(res, err)
		default:
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", preview(stmt), err))
			a.log.Warn("statement failed", "unit", name, "statement", preview(stmt), "error", err)
		}
	}

	if res.Executed > 0 || res.Failed == 0 {
		res.Outcome = OutcomeApplied
		return res, nil
	}
	return a.fail(res, errors.Join(errs...))
}

func (a *applier) fail(res UnitResult, err error) (UnitResult, error) {
	res.Outcome = OutcomeFailed
	if len(res.Errors) == 0 {
		res.Errors = []string{err.Error()}
	}
	return res, err
}

func preview(stmt string) string {
	r := []rune(strings.Join(strings.Fields(stmt), " "))
	if len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return string(r)
}
