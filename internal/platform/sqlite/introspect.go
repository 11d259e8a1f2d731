package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column описывает колонку живой таблицы.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	Default    sql.NullString
	PrimaryKey bool
}

// TableShape - снимок колонок таблицы. Вычисляется заново при каждом вызове.
type TableShape struct {
	Name    string
	Columns []Column
}

// Has сообщает, есть ли колонка с указанным именем (без учёта регистра, как в SQLite).
func (t TableShape) Has(column string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// Names возвращает имена колонок в порядке объявления.
func (t TableShape) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ListTables возвращает пользовательские таблицы в алфавитном порядке.
func (p *Pool) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := p.Query(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
		func(rows *sql.Rows) error {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			tables = append(tables, name)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// ListColumns возвращает колонки таблицы. Для отсутствующей таблицы список пуст.
func (p *Pool) ListColumns(ctx context.Context, table string) (TableShape, error) {
	shape := TableShape{Name: table}
	err := p.Query(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`,
		func(rows *sql.Rows) error {
			var (
				c       Column
				notNull int
				pk      int
			)
			if err := rows.Scan(&c.Name, &c.Type, &notNull, &c.Default, &pk); err != nil {
				return err
			}
			c.NotNull = notNull != 0
			c.PrimaryKey = pk != 0
			shape.Columns = append(shape.Columns, c)
			return nil
		}, table)
	if err != nil {
		return TableShape{}, fmt.Errorf("list columns of %s: %w", table, err)
	}
	return shape, nil
}

// ListIndexes возвращает имена индексов таблицы, исключая автоматические.
// Пустое имя таблицы означает все индексы хранилища.
func (p *Pool) ListIndexes(ctx context.Context, table string) ([]string, error) {
	query := "SELECT name FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%'"
	var args []any
	if table != "" {
		query += " AND tbl_name = ?"
		args = append(args, table)
	}
	query += " ORDER BY name"

	var names []string
	err := p.Query(ctx, query, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return names, nil
}

// TableExists проверяет существование таблицы.
func (p *Pool) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := p.QueryRow(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE",
		[]any{table}, &count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return count > 0, nil
}

// CountRows возвращает количество строк в таблице.
func (p *Pool) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := p.QueryRow(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(table), nil, &count); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, err)
	}
	return count, nil
}

// QuoteIdent экранирует идентификатор для подстановки в SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
