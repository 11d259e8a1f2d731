package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// CurrentVersion - версия структуры, которую ожидает код.
// Меняется вместе с добавлением файла миграции.
const CurrentVersion = "2025.09.28.1"

// ZeroVersion - начало журнала миграций при свежей установке.
var ZeroVersion = Version{}

// Version - версия вида YYYY.MM.DD.N, сравниваемая покомпонентно как числа.
// Недостающие компоненты считаются нулями: 2025.9.3 == 2025.09.03.0.
type Version struct {
	parts []int
	raw   string
}

// ParseVersion разбирает версию. Пустая строка и "0" дают нулевую версию.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, nil
	}
	fields := strings.Split(s, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: component %q is not a non-negative integer", s, f)
		}
		parts[i] = n
	}
	return Version{parts: parts, raw: s}, nil
}

// MustParseVersion - ParseVersion для констант.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare возвращает -1, 0 или 1.
func (v Version) Compare(other Version) int {
	n := max(len(v.parts), len(other.parts))
	for i := 0; i < n; i++ {
		a, b := v.part(i), other.part(i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (v Version) part(i int) int {
	if i < len(v.parts) {
		return v.parts[i]
	}
	return 0
}

// Less сообщает, что v строго меньше other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal сравнивает версии с учётом выравнивания нулями.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// IsZero сообщает, что все компоненты версии нулевые.
func (v Version) IsZero() bool { return v.Compare(ZeroVersion) == 0 }

// String возвращает исходную запись версии, либо канонический вид YYYY.MM.DD.N.
func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	return fmt.Sprintf("%d.%02d.%02d.%d", v.part(0), v.part(1), v.part(2), v.part(3))
}
