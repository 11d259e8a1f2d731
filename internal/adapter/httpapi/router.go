// Package httpapi - HTTP поверхность процесса: здоровье хранилища,
// состояние схемы, журнал миграций и метрики.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storekeeper/internal/schema"
)

// healthTimeout ограничивает проверку пула в /healthz.
const healthTimeout = 2 * time.Second

// Pinger проверяет доступность хранилища.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// StatusSource отдаёт состояние схемы без изменений в хранилище.
type StatusSource interface {
	Status(ctx context.Context) (*schema.Status, error)
}

// Deps - зависимости роутера. Metrics может быть nil.
type Deps struct {
	Pool    Pinger
	Schema  StatusSource
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter собирает gin-роутер.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	h := &handlers{deps: d}
	r.GET("/healthz", h.health)
	r.GET("/schema", h.schema)
	r.GET("/schema/history", h.history)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	return r
}

type handlers struct {
	deps Deps
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.deps.Pool.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// schemaResponse - состояние схемы без журнала.
type schemaResponse struct {
	schema.Detection
	Pending []string `json:"pending"`
	Missing []string `json:"missing_tables"`
	Pool    any      `json:"pool"`
	Ready   bool     `json:"ready"`
}

func (h *handlers) schema(c *gin.Context) {
	st, ok := h.status(c)
	if !ok {
		return
	}
	resp := schemaResponse{
		Detection: st.Detection,
		Pending:   nonNil(st.Pending),
		Missing:   nonNil(st.Missing),
		Pool:      st.Pool,
		Ready:     st.State == schema.StateVersionedCurrent && len(st.Missing) == 0,
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) history(c *gin.Context) {
	st, ok := h.status(c)
	if !ok {
		return
	}
	entries := st.History
	if entries == nil {
		entries = []schema.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *handlers) status(c *gin.Context) (*schema.Status, bool) {
	st, err := h.deps.Schema.Status(c.Request.Context())
	if err != nil {
		h.deps.Logger.Error("failed to read schema status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return st, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
