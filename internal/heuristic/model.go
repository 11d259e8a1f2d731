package heuristic

import (
	"fmt"
	"sort"
	"strings"
)

// Column - колонка выведенной таблицы.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
	Unique     bool
	// Default - SQL литерал как есть: 'pending', 0, CURRENT_TIMESTAMP
	Default string
	// Inferred - колонка найдена в коде, а не в базовой модели
	Inferred bool
}

// Definition возвращает определение колонки для CREATE TABLE.
func (c Column) Definition() string {
	var b strings.Builder
	b.WriteString(c.Name + " " + c.Type)
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		if strings.EqualFold(c.Type, "INTEGER") {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	if c.NotNull && !c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT " + c.Default)
	}
	return b.String()
}

// Index - индекс по одной или нескольким колонкам.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// Statement возвращает CREATE INDEX.
func (ix Index) Statement() string {
	kind := "INDEX"
	if ix.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, ix.Name, ix.Table, strings.Join(ix.Columns, ", "))
}

// Table - выведенная таблица.
type Table struct {
	Name        string
	Columns     []Column
	Indexes     []Index
	ForeignKeys []string
	// Inferred - таблицы нет в базовой модели
	Inferred bool
}

// NewTable создаёт пустую таблицу.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// Has сообщает, что колонка уже объявлена.
func (t *Table) Has(column string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// Add добавляет колонку, если её ещё нет.
func (t *Table) Add(c Column) *Table {
	if !t.Has(c.Name) {
		t.Columns = append(t.Columns, c)
	}
	return t
}

// Index добавляет индекс с именем idx_<таблица>_<колонки>.
func (t *Table) Index(unique bool, columns ...string) *Table {
	t.Indexes = append(t.Indexes, Index{
		Name:    "idx_" + t.Name + "_" + strings.Join(columns, "_"),
		Table:   t.Name,
		Columns: columns,
		Unique:  unique,
	})
	return t
}

// References добавляет ограничение внешнего ключа.
func (t *Table) References(constraint string) *Table {
	t.ForeignKeys = append(t.ForeignKeys, constraint)
	return t
}

// CreateStatement возвращает CREATE TABLE IF NOT EXISTS или "", если колонок нет.
func (t *Table) CreateStatement() string {
	if len(t.Columns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(t.Columns)+len(t.ForeignKeys))
	for _, c := range t.Columns {
		lines = append(lines, "    "+c.Definition())
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, "    "+fk)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", t.Name, strings.Join(lines, ",\n"))
}

func (t *Table) clone() *Table {
	c := *t
	c.Columns = append([]Column(nil), t.Columns...)
	c.Indexes = append([]Index(nil), t.Indexes...)
	c.ForeignKeys = append([]string(nil), t.ForeignKeys...)
	return &c
}

// Model - объединение базовой модели и выведенных из кода таблиц.
// Порядок: базовые таблицы в порядке объявления, затем выведенные по имени.
type Model struct {
	Tables []*Table
}

// Table возвращает таблицу по имени или nil.
func (m *Model) Table(name string) *Table {
	for _, t := range m.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// Merge объединяет базовую модель с выведенными таблицами. Колонки базовой
// модели не меняются, выведенные добавляются в конец.
func Merge(baseline []*Table, inferred map[string]*Table) *Model {
	m := &Model{}
	for _, t := range baseline {
		m.Tables = append(m.Tables, t.clone())
	}

	names := make([]string, 0, len(inferred))
	for name := range inferred {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		src := inferred[name]
		if base := m.Table(name); base != nil {
			for _, c := range src.Columns {
				base.Add(c)
			}
			continue
		}
		t := src.clone()
		t.Inferred = true
		m.Tables = append(m.Tables, t)
	}
	return m
}

// Render возвращает DDL модели. Вывод детерминирован.
func (m *Model) Render() string {
	var b strings.Builder
	b.WriteString("-- Structure inferred by the heuristic analyzer.\n")
	b.WriteString("-- Review before use: types are guessed from column names.\n")

	for _, t := range m.Tables {
		b.WriteString("\n")
		stmt := t.CreateStatement()
		if stmt == "" {
			fmt.Fprintf(&b, "-- %s: referenced, no columns inferred\n", t.Name)
			continue
		}
		if t.Inferred {
			fmt.Fprintf(&b, "-- %s (inferred)\n", t.Name)
		} else {
			fmt.Fprintf(&b, "-- %s\n", t.Name)
		}
		b.WriteString(stmt + ";\n")
		for _, ix := range t.Indexes {
			b.WriteString(ix.Statement() + ";\n")
		}
	}
	return b.String()
}
