package heuristic

import (
	"slices"
	"strings"
)

var (
	identifierColumns = []string{"id", "merchant_id", "user_id", "chat_id", "order_id", "trigger_id", "message_id"}
	timeMarkers       = []string{"timestamp", "created_at", "updated_at", "expires_at", "date"}
	booleanMarkers    = []string{"is_", "has_", "enabled", "active"}
	countMarkers      = []string{"count", "num_", "total_", "amount"}
	enumColumns       = []string{"status", "type", "category", "region"}
	titleColumns      = []string{"title", "subject"}
	contentMarkers    = []string{"content", "description", "details", "data"}
)

// InferType назначает тип колонке по её имени. Правила проверяются по порядку,
// первое совпадение побеждает.
func InferType(column string) string {
	name := strings.ToLower(column)

	switch {
	case slices.Contains(identifierColumns, name) || strings.HasSuffix(name, "_id"):
		return "INTEGER"
	case containsAny(name, timeMarkers):
		return "TIMESTAMP"
	case containsAny(name, booleanMarkers):
		return "BOOLEAN"
	case containsAny(name, countMarkers):
		return "INTEGER"
	case slices.Contains(enumColumns, name):
		return "VARCHAR(50)"
	case strings.Contains(name, "name") || slices.Contains(titleColumns, name):
		return "VARCHAR(255)"
	case containsAny(name, contentMarkers):
		return "TEXT"
	}
	return "TEXT"
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
