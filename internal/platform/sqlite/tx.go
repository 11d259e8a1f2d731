package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Statement - одна параметризованная инструкция для Transaction.
type Statement struct {
	SQL  string
	Args []any
}

// Transaction выполняет инструкции в одной транзакции.
// При первой ошибке транзакция откатывается и ошибка возвращается.
// Конкуренция за блокировку повторяет транзакцию целиком.
func (p *Pool) Transaction(ctx context.Context, stmts []Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	return p.withRetry(ctx, func(ctx context.Context) error {
		return p.WithSlot(ctx, func(s *Slot) error {
			return p.withinTx(ctx, s, func() error {
				for i, st := range stmts {
					if _, err := s.ExecContext(ctx, st.SQL, st.Args...); err != nil {
						return fmt.Errorf("statement %d: %w", i+1, err)
					}
				}
				return nil
			})
		})
	}, IsLockError)
}

// RunScript выполняет многооператорный скрипт встроенным в драйвер механизмом.
// Перед выполнением удаляются комментарии. Если скрипт не управляет транзакциями
// и не трогает foreign_keys, он оборачивается в транзакцию и выполняется атомарно
// (с ретраями). Иначе скрипт выполняется как есть, один раз.
func (p *Pool) RunScript(ctx context.Context, raw string) error {
	script := CleanScript(raw)
	if strings.TrimSpace(script) == "" {
		return nil
	}

	if HasTransactionControl(script) || HasForeignKeyPragma(script) {
		return Classify(p.WithSlot(ctx, func(s *Slot) error {
			return p.runOpaque(ctx, s, script)
		}))
	}

	return p.withRetry(ctx, func(ctx context.Context) error {
		return p.WithSlot(ctx, func(s *Slot) error {
			return p.withinTx(ctx, s, func() error {
				_, err := s.ExecContext(ctx, script)
				return err
			})
		})
	}, IsLockError)
}

// runOpaque выполняет скрипт без обёртки. Если скрипт оборвался внутри своей
// транзакции, она откатывается; настройка foreign_keys восстанавливается,
// чтобы слот вернулся в пул в исходной конфигурации.
func (p *Pool) runOpaque(ctx context.Context, s *Slot, script string) error {
	_, err := s.ExecContext(ctx, script)
	if err != nil {
		// Ошибка "no transaction is active" здесь ожидаема и не важна
		_, _ = s.ExecContext(ctx, "ROLLBACK")
	}

	fk := "PRAGMA foreign_keys = OFF"
	if p.opts.ForeignKeys {
		fk = "PRAGMA foreign_keys = ON"
	}
	if _, restoreErr := s.ExecContext(ctx, fk); restoreErr != nil {
		return errors.Join(err, fmt.Errorf("failed to restore foreign_keys: %w", restoreErr))
	}
	return err
}

// withinTx открывает транзакцию вручную с настроенным режимом блокировки.
func (p *Pool) withinTx(ctx context.Context, s *Slot, fn func() error) error {
	if _, err := s.ExecContext(ctx, "BEGIN "+string(p.opts.TxLockMode)); err != nil {
		return err
	}

	if err := fn(); err != nil {
		if _, rbErr := s.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if _, err := s.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = s.ExecContext(ctx, "ROLLBACK")
		return err
	}
	return nil
}
