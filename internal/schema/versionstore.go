package schema

import (
	"context"
	"fmt"

	"storekeeper/internal/platform/sqlite"
	"storekeeper/internal/shared"
)

const (
	versionKey         = "schema_version"
	versionDescription = "database schema version"
)

const systemConfigDDL = `CREATE TABLE IF NOT EXISTS system_config (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    config_key TEXT UNIQUE NOT NULL,
    config_value TEXT,
    description TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// VersionStore хранит версию структуры в таблице system_config.
type VersionStore struct {
	pool *sqlite.Pool
}

// NewVersionStore создаёт хранилище версии.
func NewVersionStore(pool *sqlite.Pool) *VersionStore {
	return &VersionStore{pool: pool}
}

// Get возвращает сохранённую версию. ok=false, если таблицы или записи нет.
func (s *VersionStore) Get(ctx context.Context) (v Version, ok bool, err error) {
	exists, err := s.pool.TableExists(ctx, "system_config")
	if err != nil {
		return Version{}, false, err
	}
	if !exists {
		return Version{}, false, nil
	}

	var raw string
	err = s.pool.QueryRow(ctx,
		"SELECT config_value FROM system_config WHERE config_key = ?", []any{versionKey}, &raw)
	if shared.IsNotFound(err) {
		return Version{}, false, nil
	}
	if err != nil {
		return Version{}, false, fmt.Errorf("read schema version: %w", err)
	}

	v, err = ParseVersion(raw)
	if err != nil {
		return Version{}, false, shared.Unrecoverable(err, "stored schema version is corrupt")
	}
	return v, true, nil
}

// Set записывает версию. Версия не может уменьшаться.
func (s *VersionStore) Set(ctx context.Context, v Version) error {
	current, ok, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if ok && v.Less(current) {
		return shared.MarkKind(
			fmt.Errorf("schema version cannot move backwards: %s -> %s", current, v),
			shared.KindValidation)
	}

	if _, err := s.pool.Exec(ctx, systemConfigDDL); err != nil {
		return fmt.Errorf("ensure system_config: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		"INSERT OR REPLACE INTO system_config (config_key, config_value, description) VALUES (?, ?, ?)",
		versionKey, v.String(), versionDescription)
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}
