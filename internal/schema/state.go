package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storekeeper/internal/shared"
)

// State - состояние хранилища относительно версии, ожидаемой кодом.
type State string

const (
	StateNoVersion        State = "NoVersion"
	StateVersionedStale   State = "VersionedStale"
	StateVersionedCurrent State = "VersionedCurrent"
)

// Detection - результат чтения версии при входе в автомат.
type Detection struct {
	State  State  `json:"state"`
	Stored string `json:"stored_version,omitempty"`
	Target string `json:"target_version"`
	// Ahead - сохранённая версия новее кода (откат бинарника)
	Ahead bool `json:"ahead,omitempty"`
}

// MismatchError - версия совпадает, но обязательных таблиц нет.
type MismatchError struct {
	Missing []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("structural mismatch: missing tables %s", strings.Join(e.Missing, ", "))
}

// Is связывает ошибку с shared.ErrStructuralMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == shared.ErrStructuralMismatch
}

// Bootstrapper выводит структуру эвристически, когда основного источника нет.
type Bootstrapper interface {
	CreateAllTables(ctx context.Context) error
	CreateAllIndexes(ctx context.Context) error
}

// Observer получает события автомата (метрики).
type Observer interface {
	StateDetected(state string)
	UnitFinished(unit, outcome string)
	StatementTolerated(unit string)
	ColumnAdded(table, column string)
	SelfRepaired()
	HardReset()
	StartupFinished(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) StateDetected(string) {}
func (nopObserver) UnitFinished(string, string) {}
func (nopObserver) StatementTolerated(string) {}
func (nopObserver) ColumnAdded(string, string) {}
func (nopObserver) SelfRepaired() {}
func (nopObserver) HardReset() {}
func (nopObserver) StartupFinished(time.Duration) {}
