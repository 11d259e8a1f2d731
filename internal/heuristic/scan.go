package heuristic

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
)

var (
	insertPattern = regexp.MustCompile(`(?is)INSERT\s+(?:OR\s+\w+\s+)?INTO\s+(\w+)\s*\((.*?)\)\s*VALUES`)
	updatePattern = regexp.MustCompile(`(?is)UPDATE\s+(\w+)\s+SET\s+(.*?)\s+WHERE`)
	selectPattern = regexp.MustCompile(`(?i)SELECT\s+.*?\s+FROM\s+(\w+)`)
	identPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// scannedExtensions - файлы, в которых ищутся SQL запросы.
var scannedExtensions = map[string]bool{".go": true, ".py": true, ".sql": true}

// reservedNames не бывают именами таблиц в найденных запросах.
var reservedNames = map[string]bool{
	"select": true, "set": true, "where": true, "values": true, "from": true,
	"into": true, "table": true, "or": true, "pragma_table_info": true,
}

// Scanner собирает таблицы и колонки из текстов запросов.
type Scanner struct {
	tables map[string]*Table
	files  int
}

// NewScanner создаёт пустой сканер.
func NewScanner() *Scanner {
	return &Scanner{tables: make(map[string]*Table)}
}

// ScanFS просматривает fsys в лексикографическом порядке путей.
func (s *Scanner) ScanFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !scannedExtensions[path.Ext(p)] {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		s.files++
		s.Scan(string(data))
		return nil
	})
}

// Scan извлекает таблицы и колонки из одного текста.
func (s *Scanner) Scan(content string) {
	for _, m := range insertPattern.FindAllStringSubmatch(content, -1) {
		s.addColumns(m[1], strings.Split(m[2], ","))
	}

	for _, m := range updatePattern.FindAllStringSubmatch(content, -1) {
		var cols []string
		for _, assignment := range strings.Split(m[2], ",") {
			name, _, _ := strings.Cut(assignment, "=")
			cols = append(cols, name)
		}
		s.addColumns(m[1], cols)
	}

	for _, m := range selectPattern.FindAllStringSubmatch(content, -1) {
		s.table(m[1])
	}
}

// Tables возвращает найденные таблицы по имени.
func (s *Scanner) Tables() map[string]*Table {
	return s.tables
}

// Files - число просмотренных файлов.
func (s *Scanner) Files() int { return s.files }

func (s *Scanner) table(name string) *Table {
	name = strings.ToLower(name)
	if !validTable(name) {
		return nil
	}
	t, ok := s.tables[name]
	if !ok {
		t = NewTable(name)
		s.tables[name] = t
	}
	return t
}

func (s *Scanner) addColumns(table string, columns []string) {
	t := s.table(table)
	if t == nil {
		return
	}
	for _, c := range columns {
		c = strings.Trim(strings.TrimSpace(c), "`\"[]")
		if !identPattern.MatchString(c) {
			continue
		}
		t.Add(Column{Name: c, Type: InferType(c), Inferred: true})
	}
}

func validTable(name string) bool {
	return identPattern.MatchString(name) &&
		!reservedNames[name] &&
		!strings.HasPrefix(name, "sqlite_")
}

// Analyze просматривает fsys и объединяет найденное с базовой моделью.
func Analyze(fsys fs.FS, baseline []*Table) (*Model, error) {
	s := NewScanner()
	if err := s.ScanFS(fsys); err != nil {
		return nil, err
	}
	return Merge(baseline, s.Tables()), nil
}
