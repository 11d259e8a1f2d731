package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc представляет функцию задачи планировщика.
type JobFunc func(ctx context.Context) error

// Job - периодическая задача обслуживания хранилища.
type Job struct {
	// Name - имя задачи для логов и метрик.
	Name string
	// Schedule - cron-выражение с секундами или дескриптор ("@every 15m").
	// Пустое расписание отключает задачу.
	Schedule string
	// Timeout - максимальное время выполнения (необязательно).
	Timeout time.Duration
	Run     JobFunc
}

// ErrStopped возвращается при добавлении задачи в остановленный планировщик.
var ErrStopped = errors.New("scheduler stopped")

// JobHooks содержит необязательные хуки для наблюдаемости.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, duration time.Duration, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger *slog.Logger
	Hooks  JobHooks
}

// Scheduler запускает задачи по cron-расписанию. Выполнения одной задачи
// никогда не перекрываются: тик во время работы пропускается.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	hooks  JobHooks

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	jobs      map[string]cron.EntryID
	startOnce sync.Once
	stopOnce  sync.Once
}

// New создаёт планировщик. Родительский контекст ограничивает жизнь всех задач.
func New(parent context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parent)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		hooks:  cfg.Hooks,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add регистрирует задачу. Задача с пустым расписанием пропускается,
// повторное имя заменяет прежнюю запись.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("invalid job: name and run are required")
	}
	if job.Schedule == "" {
		s.logger.Debug("job disabled", "job", job.Name)
		return nil
	}
	if s.ctx.Err() != nil {
		return ErrStopped
	}

	id, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	if prev, ok := s.jobs[job.Name]; ok {
		s.cron.Remove(prev)
	}
	s.jobs[job.Name] = id
	s.mu.Unlock()

	s.logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Jobs возвращает имена зарегистрированных задач и время их следующего запуска.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.jobs))
	for name, id := range s.jobs {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// Start запускает планировщик. Повторный вызов ничего не делает.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач,
// но не дольше дедлайна ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(job Job) {
	if s.ctx.Err() != nil {
		return
	}
	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(job.Name)
	}

	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.safeRun(ctx, job)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(job.Name, duration, err)
	}
	if err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err, "duration", duration)
		return
	}
	s.logger.Debug("job completed", "job", job.Name, "duration", duration)
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}

// cronLogger адаптер для интеграции cron logger с slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
