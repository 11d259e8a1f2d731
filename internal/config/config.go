package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	DB  struct {
		Path        string        `validate:"required"`
		MaxConns    int           `validate:"min=1,max=64"`
		BusyTimeout time.Duration `validate:"min=0"`
		CacheSize   int
	}
	Schema struct {
		// Dir - каталог с schema/ и migrations/; пусто - встроенные источники
		Dir               string
		Heuristics        bool
		HeuristicsSource  string `validate:"required_if=Heuristics true"`
		BackupBeforeReset bool
	}
	Backup struct {
		Dir      string
		Keep     int    `validate:"min=0"`
		Schedule string
	}
	Verify struct {
		Schedule string
	}
	Telegram struct {
		Token    string
		AdminIDs []int64
	}
	HTTP struct {
		Addr string
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
		MaxSizeMB    int `validate:"min=1"`
		MaxBackups   int `validate:"min=0"`
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		c   Config
		err error
		p   parser
	)
	c.Env = getenv("ENV", "prod")

	c.DB.Path = getenv("DB_PATH", "data/database.db")
	c.DB.MaxConns = p.int("DB_MAX_CONNS", 10)
	c.DB.BusyTimeout = p.duration("DB_BUSY_TIMEOUT", 30*time.Second)
	c.DB.CacheSize = p.int("DB_CACHE_SIZE", 10000)

	c.Schema.Dir = os.Getenv("SCHEMA_DIR")
	c.Schema.Heuristics = p.bool("SCHEMA_HEURISTICS", false)
	c.Schema.HeuristicsSource = os.Getenv("SCHEMA_HEURISTICS_SOURCE")
	c.Schema.BackupBeforeReset = p.bool("BACKUP_BEFORE_RESET", true)

	c.Backup.Dir = getenv("BACKUP_DIR", "data/backups")
	c.Backup.Keep = p.int("BACKUP_KEEP", 7)
	c.Backup.Schedule = os.Getenv("BACKUP_SCHEDULE")
	c.Verify.Schedule = getenv("VERIFY_SCHEDULE", "0 */15 * * * *")

	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.AdminIDs = p.ids("ADMIN_IDS")

	c.HTTP.Addr = os.Getenv("HTTP_ADDR")

	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/storekeeper.log")
	c.Log.MaxSizeMB = p.int("LOG_MAX_SIZE_MB", 5)
	c.Log.MaxBackups = p.int("LOG_MAX_BACKUPS", 3)

	if p.err != nil {
		return Config{}, p.err
	}
	if err = validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Notifications reports whether startup reports should be sent to Telegram.
func (c Config) Notifications() bool {
	return c.Telegram.Token != "" && len(c.Telegram.AdminIDs) > 0
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// parser запоминает первую ошибку разбора.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) ids(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			p.fail(key, v, err)
			return nil
		}
		out = append(out, id)
	}
	return out
}
