// Package metrics - prometheus коллекторы хранилища: пул соединений,
// ретраи блокировок, применение миграций и самовосстановление.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storekeeper/internal/platform/sqlite"
)

const namespace = "storekeeper"

// Metrics содержит собственный реестр, чтобы тесты и несколько экземпляров
// в одном процессе не конфликтовали в глобальном реестре.
type Metrics struct {
	registry *prometheus.Registry

	slotsLive       prometheus.Gauge
	slotsOpened     prometheus.Counter
	acquireWait     prometheus.Histogram
	lockRetries     prometheus.Counter
	units           *prometheus.CounterVec
	tolerated       prometheus.Counter
	columnsAdded    *prometheus.CounterVec
	selfRepairs     prometheus.Counter
	hardResets      prometheus.Counter
	schemaState     *prometheus.GaugeVec
	startupDuration prometheus.Histogram
	backups         *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

// New создаёт и регистрирует все коллекторы.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		slotsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "slots_live",
			Help: "Live physical connections (idle and in use).",
		}),
		slotsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "slots_opened_total",
			Help: "Physical connections opened and configured.",
		}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pool", Name: "acquire_wait_seconds",
			Help:    "Time spent waiting for a connection slot.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		lockRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "lock_retries_total",
			Help: "Retries caused by lock contention.",
		}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "schema", Name: "units_total",
			Help: "Migration units by outcome.",
		}, []string{"outcome"}),
		tolerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "schema", Name: "tolerated_statements_total",
			Help: "Statements that failed because the structure already existed.",
		}),
		columnsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "schema", Name: "columns_added_total",
			Help: "Columns added by the synchronizer.",
		}, []string{"table"}),
		selfRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "schema", Name: "self_repairs_total",
			Help: "Self-repair passes triggered by structural drift.",
		}),
		hardResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "schema", Name: "hard_resets_total",
			Help: "Unversioned stores removed before a fresh install.",
		}),
		schemaState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "schema", Name: "state",
			Help: "Last detected version state.",
		}, []string{"state"}),
		startupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "schema", Name: "startup_duration_seconds",
			Help:    "Duration of the startup procedure.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "backups_total",
			Help: "Backups by result.",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "jobs_total",
			Help: "Maintenance job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_duration_seconds",
			Help:    "Maintenance job duration.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.slotsLive, m.slotsOpened, m.acquireWait, m.lockRetries,
		m.units, m.tolerated, m.columnsAdded, m.selfRepairs, m.hardResets,
		m.schemaState, m.startupDuration, m.backups,
		m.jobs, m.jobDuration,
	)
	return m
}

// Registry возвращает реестр (для тестов и дополнительных коллекторов).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдаёт метрики в формате prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PoolHooks связывает хуки пула с коллекторами.
func (m *Metrics) PoolHooks() sqlite.Hooks {
	return sqlite.Hooks{
		OnSlotOpen: func() {
			m.slotsLive.Inc()
			m.slotsOpened.Inc()
		},
		OnSlotClose: func() { m.slotsLive.Dec() },
		OnAcquire: func(wait time.Duration) {
			m.acquireWait.Observe(wait.Seconds())
		},
		OnLockRetry: func(int, error) { m.lockRetries.Inc() },
	}
}

// UnitFinished учитывает исход применения миграции (applied, skipped, deferred).
func (m *Metrics) UnitFinished(_ string, outcome string) {
	m.units.WithLabelValues(outcome).Inc()
}

// StatementTolerated учитывает инструкцию, пропущенную как "уже существует".
func (m *Metrics) StatementTolerated(string) { m.tolerated.Inc() }

// ColumnAdded учитывает колонку, добавленную синхронизатором.
func (m *Metrics) ColumnAdded(table, _ string) {
	m.columnsAdded.WithLabelValues(table).Inc()
}

// SelfRepaired учитывает проход самовосстановления.
func (m *Metrics) SelfRepaired() { m.selfRepairs.Inc() }

// HardReset учитывает удаление хранилища без версии.
func (m *Metrics) HardReset() { m.hardResets.Inc() }

// StateDetected оставляет единственную серию для обнаруженного состояния.
func (m *Metrics) StateDetected(state string) {
	m.schemaState.Reset()
	m.schemaState.WithLabelValues(state).Set(1)
}

// StartupFinished фиксирует длительность процедуры запуска.
func (m *Metrics) StartupFinished(d time.Duration) {
	m.startupDuration.Observe(d.Seconds())
}

// BackupFinished учитывает результат резервного копирования.
func (m *Metrics) BackupFinished(err error) {
	m.backups.WithLabelValues(result(err)).Inc()
}

// JobFinished учитывает выполнение задачи обслуживания.
func (m *Metrics) JobFinished(job string, d time.Duration, err error) {
	m.jobs.WithLabelValues(job, result(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
