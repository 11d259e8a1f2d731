package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"storekeeper/internal/shared"
	"storekeeper/pkg/retry"
)

// Фразы используются только когда драйвер не отдал код ошибки.
var lockPhrases = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"sqlite_locked",
}

// alreadyExistsPattern покрывает сообщения SQLite о том, что объект уже создан.
var alreadyExistsPattern = regexp.MustCompile(`(?i)duplicate column name|(?:table|index|trigger|view) \S+ already exists`)

// driverCode возвращает первичный код ошибки SQLite, если он доступен.
func driverCode(err error) (int, bool) {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() & 0xff, true
	}
	return 0, false
}

// IsLockError сообщает, вызвана ли ошибка конкуренцией за блокировку.
// Сначала проверяется код драйвера (SQLITE_BUSY, SQLITE_LOCKED), подстроки - только без кода.
func IsLockError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := driverCode(err); ok {
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range lockPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// IsAlreadyExistsError сообщает, что целевая структура уже существует.
// SQLite отдаёт такие ошибки с общим кодом SQLITE_ERROR, поэтому код сужает класс,
// а различает их текст сообщения. Ошибки с другим кодом сюда не попадают.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := driverCode(err); ok && code != sqlite3.SQLITE_ERROR {
		return false
	}
	return alreadyExistsPattern.MatchString(err.Error())
}

// Classify помечает ошибку видом из shared по таксономии хранилища.
// Уже классифицированные ошибки возвращаются без изменений.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if shared.KindOf(err) != shared.KindUnknown {
		return err
	}

	var exceeded *retry.RetriesExceededError
	switch {
	case errors.As(err, &exceeded):
		if IsLockError(exceeded.LastError) {
			return shared.MarkKind(err, shared.KindTransientLock)
		}
		return err
	case IsLockError(err):
		return shared.MarkKind(err, shared.KindTransientLock)
	case IsAlreadyExistsError(err):
		return shared.MarkKind(err, shared.KindAlreadyExists)
	}
	return err
}

// healthyAfter решает, можно ли вернуть слот в пул после ошибки.
// Ошибки уровня инструкции (синтаксис, ограничения, "уже существует") соединение не портят.
func healthyAfter(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsLockError(err) {
		return false
	}
	if code, ok := driverCode(err); ok {
		switch code {
		case sqlite3.SQLITE_ERROR, sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_RANGE:
			return true
		}
		return false
	}
	return true
}
