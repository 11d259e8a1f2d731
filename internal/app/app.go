package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-telegram/bot"

	"storekeeper/db"
	"storekeeper/internal/adapter/httpapi"
	"storekeeper/internal/adapter/notify"
	"storekeeper/internal/adapter/scheduler"
	"storekeeper/internal/config"
	"storekeeper/internal/heuristic"
	"storekeeper/internal/platform/httpclient"
	"storekeeper/internal/platform/logger"
	"storekeeper/internal/platform/metrics"
	"storekeeper/internal/platform/sqlite"
	"storekeeper/internal/schema"
	"storekeeper/internal/shared"
)

// Jobs run by the scheduler.
const (
	JobVerify = "verify"
	JobBackup = "backup"
)

var _ schema.Observer = (*metrics.Metrics)(nil)

// App wires application components around one store.
type App struct {
	cfg        config.Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	pool       *sqlite.Pool
	controller *schema.Controller
	notifier   notify.Notifier
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	sources  fs.FS
	notifier notify.Notifier
	now      func() time.Time
}

// WithSources replaces the declaration sources (embedded db.FS or SCHEMA_DIR by default).
func WithSources(fsys fs.FS) Option {
	return func(o *options) { o.sources = fsys }
}

// WithNotifier replaces the operator notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock sets the clock used for reports.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.Config, name string, console io.Writer) *slog.Logger {
	return logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          name,
		Console:      console,
		MaxSizeMB:    cfg.Log.MaxSizeMB,
		MaxBackups:   cfg.Log.MaxBackups,
	})
}

// New opens the store and builds the version controller. Nothing is changed
// in the store until Startup is called.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := metrics.New()

	poolOpts := sqlite.DefaultOptions()
	poolOpts.MaxConns = cfg.DB.MaxConns
	poolOpts.BusyTimeout = cfg.DB.BusyTimeout
	poolOpts.CacheSize = cfg.DB.CacheSize
	poolOpts.Logger = log
	poolOpts.Hooks = m.PoolHooks()

	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
		return nil, shared.Unrecoverable(err, "create store directory")
	}
	pool, err := sqlite.Open(ctx, cfg.DB.Path, poolOpts)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: m, pool: pool, notifier: o.notifier}
	if err := a.build(o); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(o options) error {
	fsys := o.sources
	if fsys == nil {
		fsys = SourcesFS(a.cfg)
	}
	src, err := schema.LoadSources(fsys)
	if err != nil {
		return shared.Unrecoverable(err, "load schema sources")
	}

	copts := schema.Options{
		BackupBeforeReset: a.cfg.Schema.BackupBeforeReset,
		BackupDir:         a.cfg.Backup.Dir,
		BackupKeep:        a.cfg.Backup.Keep,
		Observer:          a.metrics,
		Logger:            a.log,
		Now:               o.now,
	}
	if a.cfg.Schema.Heuristics {
		boot, err := heuristic.New(a.pool, os.DirFS(a.cfg.Schema.HeuristicsSource), heuristic.WithLogger(a.log))
		switch {
		case errors.Is(err, heuristic.ErrDisabled):
			a.log.Warn("heuristic bootstrap requested but compiled out")
		case err != nil:
			return fmt.Errorf("heuristic analyzer: %w", err)
		default:
			copts.Bootstrapper = boot
		}
	}

	if a.controller, err = schema.NewController(a.pool, src, copts); err != nil {
		return err
	}

	if a.notifier == nil {
		a.notifier = a.newNotifier()
	}
	return nil
}

func (a *App) newNotifier() notify.Notifier {
	if !a.cfg.Notifications() {
		return notify.Nop{}
	}
	client := httpclient.New(
		httpclient.WithLogger(a.log.With("component", "telegram")),
		httpclient.WithRetries(3, 500*time.Millisecond),
	)
	n, err := notify.NewTelegram(a.cfg.Telegram.Token, a.cfg.Telegram.AdminIDs,
		bot.WithHTTPClient(time.Minute, client))
	if err != nil {
		a.log.Warn("telegram notifications disabled", "error", err)
		return notify.Nop{}
	}
	return n
}

// SourcesFS returns SCHEMA_DIR when configured, the embedded sources otherwise.
func SourcesFS(cfg config.Config) fs.FS {
	if cfg.Schema.Dir != "" {
		return os.DirFS(cfg.Schema.Dir)
	}
	return db.FS
}

// Pool returns the connection manager.
func (a *App) Pool() *sqlite.Pool { return a.pool }

// Controller returns the version controller.
func (a *App) Controller() *schema.Controller { return a.controller }

// Metrics returns the collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Close releases the pool.
func (a *App) Close() error {
	return a.pool.Close()
}

// Startup brings the store to the code version and notifies operators.
func (a *App) Startup(ctx context.Context) (*schema.Report, error) {
	rep, err := a.controller.Startup(ctx)
	notify.Startup(ctx, a.notifier, a.log, rep)
	return rep, err
}

// Backup copies the store into BACKUP_DIR with retention.
func (a *App) Backup(ctx context.Context) (string, error) {
	path, err := a.pool.Backup(ctx, a.cfg.Backup.Dir, a.cfg.Backup.Keep)
	a.metrics.BackupFinished(err)
	return path, err
}

// Serve runs the HTTP surface and maintenance jobs until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	if ctx.Err() != nil {
		// сигнал пришёл во время запуска
		return nil
	}
	sched := scheduler.New(ctx, scheduler.Config{
		Logger: a.log,
		Hooks:  scheduler.JobHooks{OnJobFinish: a.metrics.JobFinished},
	})
	jobs := []scheduler.Job{
		{
			Name:     JobVerify,
			Schedule: a.cfg.Verify.Schedule,
			Timeout:  time.Minute,
			Run: func(ctx context.Context) error {
				_, err := a.controller.Verify(ctx)
				return err
			},
		},
		{
			Name:     JobBackup,
			Schedule: a.cfg.Backup.Schedule,
			Timeout:  10 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := a.Backup(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			if errors.Is(err, scheduler.ErrStopped) {
				return nil
			}
			return err
		}
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sched.Stop(stopCtx)
	}()

	if a.cfg.HTTP.Addr == "" {
		a.log.Info("http surface disabled")
		<-ctx.Done()
		return nil
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Pool:    a.pool,
		Schema:  a.controller,
		Metrics: a.metrics.Handler(),
		Logger:  a.log,
	})
	return httpapi.Serve(ctx, a.cfg.HTTP.Addr, router, a.log)
}

// Run is the long-running process: startup procedure, then HTTP surface and
// maintenance until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return shared.MarkKind(err, shared.KindValidation)
	}
	log := NewLogger(cfg, "storekeeper", nil)
	defer func() { _ = logger.Close(log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
	}()

	if _, err := a.Startup(ctx); err != nil {
		return err
	}

	log.Info("storekeeper running", "http", a.cfg.HTTP.Addr)
	if err := a.Serve(ctx); err != nil {
		return err
	}
	log.Info("storekeeper stopped")
	return nil
}

// ExitCode maps a Run error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil, shared.IsCanceled(err):
		return 0
	case shared.IsValidation(err):
		return 2
	case shared.IsUnrecoverable(err):
		return 3
	default:
		return 1
	}
}
