package schema

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
)

// unitNamePattern: migration_<год>_<месяц>_<день>_<номер>_<описание>.sql
var unitNamePattern = regexp.MustCompile(`^migration_(\d{4})_(\d{1,2})_(\d{1,2})_(\d+)_(.*)\.sql$`)

// Unit - неизменяемый именованный набор структурных изменений.
type Unit struct {
	// Name - имя файла, ключ в migration_history
	Name        string
	Version     Version
	Description string
	path        string
}

// ParseUnitName извлекает версию из имени файла миграции.
func ParseUnitName(name string) (Unit, bool) {
	m := unitNamePattern.FindStringSubmatch(name)
	if m == nil {
		return Unit{}, false
	}
	nums := make([]int, 4)
	for i := range nums {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Unit{}, false
		}
		nums[i] = n
	}
	v := Version{parts: nums}
	v.raw = v.String()
	return Unit{Name: name, Version: v, Description: m[5]}, true
}

// Ledger - журнал миграций, обнаруженный в каталоге.
type Ledger struct {
	fsys  fs.FS
	units []Unit
}

// DiscoverLedger читает каталог dir и возвращает миграции в порядке версий.
// Отсутствующий каталог означает пустой журнал. Файлы с неподходящими
// именами пропускаются.
func DiscoverLedger(fsys fs.FS, dir string) (*Ledger, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if isNotExist(err) {
			return &Ledger{fsys: fsys}, nil
		}
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	l := &Ledger{fsys: fsys}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		u, ok := ParseUnitName(e.Name())
		if !ok {
			continue
		}
		u.path = path.Join(dir, e.Name())
		l.units = append(l.units, u)
	}

	// Числовой порядок: 16_15 идёт после 16_2
	sort.SliceStable(l.units, func(i, j int) bool {
		if c := l.units[i].Version.Compare(l.units[j].Version); c != 0 {
			return c < 0
		}
		return l.units[i].Name < l.units[j].Name
	})
	return l, nil
}

// Units возвращает все миграции журнала.
func (l *Ledger) Units() []Unit {
	return append([]Unit(nil), l.units...)
}

// Between возвращает миграции с версией в полуинтервале (from, to].
func (l *Ledger) Between(from, to Version) []Unit {
	var out []Unit
	for _, u := range l.units {
		if from.Less(u.Version) && u.Version.Compare(to) <= 0 {
			out = append(out, u)
		}
	}
	return out
}

// Latest возвращает версию последней миграции или нулевую.
func (l *Ledger) Latest() Version {
	if len(l.units) == 0 {
		return ZeroVersion
	}
	return l.units[len(l.units)-1].Version
}

// Read возвращает текст миграции.
func (l *Ledger) Read(u Unit) (string, error) {
	data, err := fs.ReadFile(l.fsys, u.path)
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", u.Name, err)
	}
	return string(data), nil
}
