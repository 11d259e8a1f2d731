// Package sqlite - менеджер соединений встроенного хранилища.
//
// Основные возможности:
// - Ограниченный пул физических соединений с явным потолком
// - PRAGMA настройки один раз на физическое соединение (WAL, synchronous, cache_size, temp_store, foreign_keys)
// - Ретраи с экспоненциальной задержкой при конкуренции за блокировку
// - Классификация ошибок драйвера по кодам SQLite с запасным разбором текста
// - Атомарное выполнение многооператорных скриптов
// - Интроспекция: таблицы, колонки, индексы
// - Резервные копии через VACUUM INTO и удаление файлов хранилища
// - Тестовые хелперы
//
// # Быстрый старт
//
//	ctx := context.Background()
//	pool, err := sqlite.Open(ctx, "data/database.db", sqlite.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
// # Выполнение запросов
//
//	n, err := pool.Exec(ctx, "UPDATE system_config SET config_value = ? WHERE config_key = ?", v, k)
//	if shared.IsTransientLock(err) {
//		// три попытки исчерпаны
//	}
//
//	err = pool.Transaction(ctx, []sqlite.Statement{
//		{SQL: "INSERT INTO cities (name) VALUES (?)", Args: []any{"Yangon"}},
//		{SQL: "INSERT INTO districts (city_id, name) VALUES (last_insert_rowid(), ?)", Args: []any{"Kamayut"}},
//	})
//
// Скрипты с триггерами или собственным BEGIN/COMMIT выполняются без обёртки:
//
//	err = pool.RunScript(ctx, schemaSQL)
//
// # Выделенный слот
//
//	err = pool.WithSlot(ctx, func(s *sqlite.Slot) error {
//		_, err := s.ExecContext(ctx, "PRAGMA optimize")
//		return err
//	})
//
// # Тестирование
//
//	func TestSomething(t *testing.T) {
//		store := sqlite.NewTestStore(t)
//		store.MustSeedData(t, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
//	}
package sqlite
