// Package db содержит декларативные источники схемы и журнал миграций,
// встроенные в бинарник. Каталог с той же раскладкой можно подключить
// вместо них через SCHEMA_DIR.
package db

import "embed"

// FS: schema/*.sql, schema/manifest.yaml, migrations/migration_*.sql
//
//go:embed schema/*.sql schema/manifest.yaml migrations/*.sql
var FS embed.FS
