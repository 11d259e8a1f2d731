package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"storekeeper/internal/platform/sqlite"
)

// requiresPattern: "-- @requires table:<имя>" или "-- @requires column:<таблица>.<колонка>".
var requiresPattern = regexp.MustCompile(`(?im)^\s*--\s*@requires\s+(table|column):(\w+)(?:\.(\w+))?\s*$`)

// Precondition - структура, без которой применять набор инструкций бессмысленно
// (например, миграция старой схемы на новой установке).
type Precondition struct {
	Table  string
	Column string
}

func (p Precondition) String() string {
	if p.Column != "" {
		return "column:" + p.Table + "." + p.Column
	}
	return "table:" + p.Table
}

// ParsePreconditions извлекает директивы @requires из текста скрипта.
func ParsePreconditions(script string) ([]Precondition, error) {
	var out []Precondition
	for _, m := range requiresPattern.FindAllStringSubmatch(script, -1) {
		kind := strings.ToLower(m[1])
		switch {
		case kind == "table" && m[3] == "":
			out = append(out, Precondition{Table: m[2]})
		case kind == "column" && m[3] != "":
			out = append(out, Precondition{Table: m[2], Column: m[3]})
		default:
			return nil, fmt.Errorf("malformed @requires directive %q", strings.TrimSpace(m[0]))
		}
	}
	return out, nil
}

// unmetPreconditions возвращает директивы, которые не выполняются в живой структуре.
func unmetPreconditions(ctx context.Context, pool *sqlite.Pool, pre []Precondition) ([]Precondition, error) {
	var unmet []Precondition
	for _, p := range pre {
		shape, err := pool.ListColumns(ctx, p.Table)
		if err != nil {
			return nil, err
		}
		switch {
		case len(shape.Columns) == 0:
			unmet = append(unmet, p)
		case p.Column != "" && !shape.Has(p.Column):
			unmet = append(unmet, p)
		}
	}
	return unmet, nil
}
