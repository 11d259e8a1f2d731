package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest описывает источники объявлений структуры и обязательные данные.
type Manifest struct {
	// Primary - основной декларативный источник (CREATE ... IF NOT EXISTS)
	Primary string `yaml:"primary"`
	// Extensions - необязательные источники, применяемые после основного
	Extensions []string `yaml:"extensions"`
	// Sync - источники, из которых синхронизатор собирает ADD COLUMN
	Sync []string `yaml:"sync"`
	// Seeds - скрипты начальных данных (должны быть идемпотентны)
	Seeds []string `yaml:"seeds"`
	// RequiredTables - таблицы, наличие которых проверяет верификация
	RequiredTables []string `yaml:"required_tables"`
	// Records - обязательные записи, вставляемые через INSERT OR IGNORE
	Records []SeedRecord `yaml:"records"`
}

// SeedRecord - одна обязательная строка таблицы.
type SeedRecord struct {
	Table  string            `yaml:"table"`
	Values map[string]string `yaml:"values"`
}

// DefaultRequiredTables - таблицы, без которых хранилище считается неполным.
var DefaultRequiredTables = []string{
	"merchants", "orders", "binding_codes", "button_configs",
	"activity_logs", "fsm_states", "system_config",
	"auto_reply_triggers", "auto_reply_messages", "auto_reply_daily_stats",
	"cities", "districts", "keywords", "merchant_keywords",
	"posting_time_slots", "posting_channels",
}

// DefaultManifest используется, если в источниках нет manifest.yaml.
func DefaultManifest() Manifest {
	return Manifest{
		Primary:        "schema.sql",
		Extensions:     []string{"schema_auto_reply.sql"},
		Sync:           []string{"schema.sql", "schema_extended.sql", "schema_auto_reply.sql"},
		Seeds:          []string{"schema_templates.sql"},
		RequiredTables: append([]string(nil), DefaultRequiredTables...),
	}
}

// ParseManifest разбирает manifest.yaml. Незаданные поля берутся из DefaultManifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}

	def := DefaultManifest()
	if m.Primary == "" {
		m.Primary = def.Primary
	}
	if m.Sync == nil {
		m.Sync = def.Sync
	}
	if m.RequiredTables == nil {
		m.RequiredTables = def.RequiredTables
	}
	for i, r := range m.Records {
		if r.Table == "" || len(r.Values) == 0 {
			return Manifest{}, fmt.Errorf("parse manifest: record %d needs table and values", i+1)
		}
	}
	return m, nil
}
