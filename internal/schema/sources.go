package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"path"

	"storekeeper/internal/schema/synchronizer"
)

const (
	schemaDir    = "schema"
	migrationDir = "migrations"
	manifestFile = "manifest.yaml"
)

// Sources - декларативные источники и журнал миграций.
// Ожидаемая раскладка: schema/*.sql, schema/manifest.yaml, migrations/migration_*.sql.
type Sources struct {
	fsys     fs.FS
	manifest Manifest
	ledger   *Ledger
}

// LoadSources читает манифест и обнаруживает журнал миграций.
func LoadSources(fsys fs.FS) (*Sources, error) {
	m := DefaultManifest()
	data, err := fs.ReadFile(fsys, path.Join(schemaDir, manifestFile))
	switch {
	case err == nil:
		if m, err = ParseManifest(data); err != nil {
			return nil, err
		}
	case !isNotExist(err):
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	ledger, err := DiscoverLedger(fsys, migrationDir)
	if err != nil {
		return nil, err
	}
	return &Sources{fsys: fsys, manifest: m, ledger: ledger}, nil
}

// Manifest возвращает разобранный манифест.
func (s *Sources) Manifest() Manifest { return s.manifest }

// Ledger возвращает журнал миграций.
func (s *Sources) Ledger() *Ledger { return s.ledger }

// Read возвращает текст источника из каталога schema. ok=false, если файла нет.
func (s *Sources) Read(name string) (text string, ok bool, err error) {
	data, err := fs.ReadFile(s.fsys, path.Join(schemaDir, name))
	if err != nil {
		if isNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read schema source %s: %w", name, err)
	}
	return string(data), true, nil
}

// SyncSources возвращает источники синхронизатора в порядке манифеста.
func (s *Sources) SyncSources() ([]synchronizer.Source, error) {
	var out []synchronizer.Source
	for _, name := range s.manifest.Sync {
		text, ok, err := s.Read(name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, synchronizer.Source{Name: name, Text: text})
		}
	}
	return out, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
