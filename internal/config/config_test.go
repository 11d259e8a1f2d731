package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp уводит тест из каталога с возможным .env файлом.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", c.Env)
	assert.Equal(t, "data/database.db", c.DB.Path)
	assert.Equal(t, 10, c.DB.MaxConns)
	assert.Equal(t, 30*time.Second, c.DB.BusyTimeout)
	assert.Equal(t, 10000, c.DB.CacheSize)
	assert.True(t, c.Schema.BackupBeforeReset)
	assert.False(t, c.Schema.Heuristics)
	assert.Equal(t, 7, c.Backup.Keep)
	assert.Equal(t, "0 */15 * * * *", c.Verify.Schedule)
	assert.Empty(t, c.Backup.Schedule)
	assert.Empty(t, c.HTTP.Addr)
	assert.False(t, c.Notifications())
}

func TestLoad_FromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENV", "dev")
	t.Setenv("DB_PATH", "/var/lib/storekeeper/store.db")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_BUSY_TIMEOUT", "5s")
	t.Setenv("SCHEMA_HEURISTICS", "true")
	t.Setenv("SCHEMA_HEURISTICS_SOURCE", "./database")
	t.Setenv("BACKUP_SCHEDULE", "0 0 3 * * *")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "1001, 1002,")
	t.Setenv("LOG_CONSOLE_LEVEL", "DEBUG")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", c.Env)
	assert.Equal(t, "/var/lib/storekeeper/store.db", c.DB.Path)
	assert.Equal(t, 4, c.DB.MaxConns)
	assert.Equal(t, 5*time.Second, c.DB.BusyTimeout)
	assert.True(t, c.Schema.Heuristics)
	assert.Equal(t, "0 0 3 * * *", c.Backup.Schedule)
	assert.Equal(t, []int64{1001, 1002}, c.Telegram.AdminIDs)
	assert.Equal(t, "debug", c.Log.ConsoleLevel)
	assert.True(t, c.Notifications())
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad env":              {"ENV": "staging"},
		"zero ceiling":         {"DB_MAX_CONNS": "0"},
		"not a number":         {"DB_MAX_CONNS": "ten"},
		"bad duration":         {"DB_BUSY_TIMEOUT": "soon"},
		"bad bool":             {"SCHEMA_HEURISTICS": "maybe"},
		"heuristics no source": {"SCHEMA_HEURISTICS": "1"},
		"bad admin id":         {"ADMIN_IDS": "1,two"},
		"bad log level":        {"LOG_FILE_LEVEL": "trace"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
