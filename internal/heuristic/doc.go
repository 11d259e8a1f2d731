// Package heuristic выводит структуру хранилища по тексту кода, когда
// основного декларативного источника нет.
//
// Анализатор просматривает файлы *.go, *.py и *.sql, находит INSERT, UPDATE и
// SELECT, собирает таблицы и колонки и назначает колонкам типы по именам.
// Результат объединяется с базовой моделью основных таблиц.
//
// Это вспомогательное средство начальной загрузки, а не источник истины.
// Сборка с тегом noheuristics исключает его: New возвращает ErrDisabled.
//
//	a, err := heuristic.New(pool, os.DirFS("handlers"), heuristic.WithLogger(log))
//	if errors.Is(err, heuristic.ErrDisabled) {
//		// без эвристик
//	}
//	fmt.Println(a.Model().Render())
package heuristic
