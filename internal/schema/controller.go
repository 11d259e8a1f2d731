package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storekeeper/internal/platform/sqlite"
	"storekeeper/internal/schema/synchronizer"
	"storekeeper/internal/shared"
)

// Options настраивает Controller.
type Options struct {
	// TargetVersion - версия, которую ожидает код (по умолчанию CurrentVersion)
	TargetVersion string
	// BackupBeforeReset - копия хранилища без версии перед его удалением
	BackupBeforeReset bool
	BackupDir         string
	BackupKeep        int
	// Bootstrapper - эвристический вывод структуры, если основного источника нет (nil - выключен)
	Bootstrapper Bootstrapper
	Observer     Observer
	Logger       *slog.Logger
	Now          func() time.Time
}

// Controller - автомат версий структуры хранилища.
// Процедуры выполняются строго последовательно.
type Controller struct {
	pool     *sqlite.Pool
	src      *Sources
	target   Version
	opts     Options
	log      *slog.Logger
	obs      Observer
	history  *History
	versions *VersionStore
	sync     *synchronizer.Synchronizer
	apply    *applier

	mu sync.Mutex
}

// NewController создаёт автомат версий.
func NewController(pool *sqlite.Pool, src *Sources, opts Options) (*Controller, error) {
	if opts.TargetVersion == "" {
		opts.TargetVersion = CurrentVersion
	}
	target, err := ParseVersion(opts.TargetVersion)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindValidation)
	}
	if target.IsZero() {
		return nil, shared.MarkKind(errors.New("target version must be positive"), shared.KindValidation)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	log := opts.Logger.With("component", "schema")
	c := &Controller{
		pool:     pool,
		src:      src,
		target:   target,
		opts:     opts,
		log:      log,
		obs:      opts.Observer,
		history:  NewHistory(pool),
		versions: NewVersionStore(pool),
	}
	c.sync = synchronizer.New(pool,
		synchronizer.WithLogger(opts.Logger),
		synchronizer.WithAddedHook(c.obs.ColumnAdded))
	c.apply = &applier{pool: pool, log: log, onTolerate: c.obs.StatementTolerated}
	return c, nil
}

// Target возвращает версию, которую ожидает код.
func (c *Controller) Target() Version { return c.target }

// Sources возвращает источники объявлений.
func (c *Controller) Sources() *Sources { return c.src }

// Detect читает сохранённую версию и определяет состояние, ничего не меняя.
func (c *Controller) Detect(ctx context.Context) (Detection, error) {
	det := Detection{Target: c.target.String()}

	stored, ok, err := c.versions.Get(ctx)
	if err != nil {
		return det, err
	}
	switch {
	case !ok:
		det.State = StateNoVersion
	case stored.Equal(c.target):
		det.State = StateVersionedCurrent
		det.Stored = stored.String()
	default:
		det.State = StateVersionedStale
		det.Stored = stored.String()
		det.Ahead = c.target.Less(stored)
	}
	return det, nil
}

// Startup приводит хранилище к версии кода и возвращает отчёт.
// Ошибка всегда помечена shared.KindUnrecoverable (кроме отмены контекста):
// процесс должен остановиться, версия при этом не продвигается.
func (c *Controller) Startup(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := c.newReport()
	log := c.log.With("run_id", rep.RunID)

	det, err := c.Detect(ctx)
	if err != nil {
		return c.finish(log, rep, err)
	}
	rep.InitialState = det.State
	rep.StoredVersion = det.Stored
	c.obs.StateDetected(string(det.State))
	log.Info("schema state detected", "state", det.State, "version", det.Stored, "target", det.Target)

	switch det.State {
	case StateNoVersion:
		err = c.freshInstall(ctx, log, rep)
	case StateVersionedStale:
		if det.Ahead {
			// Версия не уменьшается: только проверка структуры
			log.Warn("stored schema version is ahead of code, verifying only",
				"version", det.Stored, "target", det.Target)
			rep.warn("stored version %s is ahead of code version %s", det.Stored, det.Target)
			rep.FinalVersion = det.Stored
			err = c.verifyAndRepair(ctx, log, rep)
			if err == nil {
				c.seed(ctx, log, rep)
			}
		} else {
			err = c.migrate(ctx, log, rep, MustParseVersion(det.Stored))
		}
	case StateVersionedCurrent:
		rep.FinalVersion = det.Stored
		err = c.verifyAndRepair(ctx, log, rep)
		if err == nil {
			c.seed(ctx, log, rep)
		}
	}

	return c.finish(log, rep, err)
}

// Verify проверяет обязательные таблицы и при расхождении выполняет самовосстановление.
func (c *Controller) Verify(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := c.newReport()
	log := c.log.With("run_id", rep.RunID)

	det, err := c.Detect(ctx)
	if err != nil {
		return c.finish(log, rep, err)
	}
	rep.InitialState = det.State
	rep.StoredVersion = det.Stored
	rep.FinalVersion = det.Stored
	if det.State == StateNoVersion {
		return c.finish(log, rep, errors.New("store is not initialized, run startup first"))
	}
	return c.finish(log, rep, c.verifyAndRepair(ctx, log, rep))
}

func (c *Controller) newReport() *Report {
	return &Report{
		RunID:         uuid.NewString(),
		TargetVersion: c.target.String(),
		StartedAt:     c.opts.Now(),
	}
}

func (c *Controller) finish(log *slog.Logger, rep *Report, err error) (*Report, error) {
	rep.Duration = c.opts.Now().Sub(rep.StartedAt)
	c.obs.StartupFinished(rep.Duration)

	if err != nil {
		if !shared.IsCanceled(err) && !shared.IsTimeout(err) {
			err = shared.MarkKind(err, shared.KindUnrecoverable)
		}
		rep.Err = err.Error()
		log.Error("schema procedure failed", "state", rep.InitialState, "error", err, "duration", rep.Duration)
		return rep, err
	}

	log.Info("schema ready",
		"state", rep.InitialState,
		"version", rep.FinalVersion,
		"applied", len(rep.UnitsWith(OutcomeApplied)),
		"skipped", len(rep.UnitsWith(OutcomeAlreadyRecorded)),
		"tolerated", rep.Tolerated(),
		"repaired", rep.Repaired,
		"reset", rep.Reset,
		"duration", rep.Duration)
	return rep, nil
}

// freshInstall: сброс хранилища без версии, декларативная схема, журнал миграций
// от нуля, начальные данные, проверка и запись версии.
func (c *Controller) freshInstall(ctx context.Context, log *slog.Logger, rep *Report) error {
	tables, err := c.pool.ListTables(ctx)
	if err != nil {
		return err
	}
	if len(tables) > 0 {
		if err := c.hardReset(ctx, log, rep, tables); err != nil {
			return err
		}
	}

	if err := c.assertDeclared(ctx, log, rep); err != nil {
		return err
	}
	if err := c.walkLedger(ctx, log, rep, ZeroVersion); err != nil {
		return err
	}
	c.synchronize(ctx, log, rep)
	c.seed(ctx, log, rep)

	if err := c.verify(ctx); err != nil {
		return fmt.Errorf("fresh install verification: %w", err)
	}
	if err := c.versions.Set(ctx, c.target); err != nil {
		return err
	}
	rep.FinalVersion = c.target.String()
	log.Info("fresh install completed", "version", rep.FinalVersion)
	return nil
}

// hardReset удаляет хранилище, в котором есть таблицы, но нет версии.
func (c *Controller) hardReset(ctx context.Context, log *slog.Logger, rep *Report, tables []string) error {
	log.Warn("unversioned store with existing tables, resetting", "tables", tables)

	if c.opts.BackupBeforeReset {
		path, err := c.pool.Backup(ctx, c.opts.BackupDir, c.opts.BackupKeep)
		if err != nil {
			return fmt.Errorf("backup before reset: %w", err)
		}
		rep.BackupPath = path
	}

	if err := c.pool.Purge(); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	if err := sqlite.RemoveStoreFiles(c.pool.Path()); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	rep.Reset = true
	c.obs.HardReset()
	log.Info("store files removed", "path", c.pool.Path())
	return nil
}

// migrate применяет миграции из интервала (stored, target] и записывает версию.
// Если миграций нет, заново применяется декларативная схема.
func (c *Controller) migrate(ctx context.Context, log *slog.Logger, rep *Report, stored Version) error {
	units := c.src.Ledger().Between(stored, c.target)
	if len(units) == 0 {
		log.Info("no migration units between versions, re-applying declared schema",
			"from", stored, "to", c.target)
		rep.AutoMigrated = true
		if err := c.assertDeclared(ctx, log, rep); err != nil {
			return err
		}
	} else if err := c.walkLedger(ctx, log, rep, stored); err != nil {
		return err
	}

	if err := c.versions.Set(ctx, c.target); err != nil {
		return err
	}
	rep.FinalVersion = c.target.String()
	log.Info("schema version advanced", "from", stored, "to", c.target)

	c.synchronize(ctx, log, rep)
	c.seed(ctx, log, rep)
	return c.verifyAndRepair(ctx, log, rep)
}

// walkLedger применяет миграции (from, target] по возрастанию версий.
// Первая неудачная миграция останавливает проход.
func (c *Controller) walkLedger(ctx context.Context, log *slog.Logger, rep *Report, from Version) error {
	for _, u := range c.src.Ledger().Between(from, c.target) {
		res, err := c.applyUnit(ctx, log, u)
		rep.Units = append(rep.Units, res)
		c.obs.UnitFinished(u.Name, string(res.Outcome))
		if err != nil {
			return err
		}
	}
	return nil
}

// applyUnit применяет миграцию, если её нет в журнале, и записывает её
// в журнал только после полного завершения.
func (c *Controller) applyUnit(ctx context.Context, log *slog.Logger, u Unit) (UnitResult, error) {
	applied, err := c.history.Applied(ctx, u.Name)
	if err != nil {
		return UnitResult{Name: u.Name, Outcome: OutcomeFailed}, err
	}
	if applied {
		log.Debug("migration already applied", "unit", u.Name)
		return UnitResult{Name: u.Name, Outcome: OutcomeAlreadyRecorded}, nil
	}

	text, err := c.src.Ledger().Read(u)
	if err != nil {
		return UnitResult{Name: u.Name, Outcome: OutcomeFailed}, err
	}

	res, err := c.apply.execute(ctx, u.Name, text)
	if err != nil {
		log.Error("migration failed", "unit", u.Name, "executed", res.Executed, "failed", res.Failed, "error", err)
		return res, &UnitError{Unit: u.Name, Result: res, Err: err}
	}

	if err := c.history.Record(ctx, u.Name); err != nil {
		return res, err
	}
	log.Info("migration applied",
		"unit", u.Name,
		"outcome", res.Outcome,
		"executed", res.Executed,
		"tolerated", res.Tolerated,
		"failed", res.Failed)
	return res, nil
}

// assertDeclared выполняет основной декларативный источник и расширения.
// Без основного источника используется эвристический вывод, если он включён.
func (c *Controller) assertDeclared(ctx context.Context, log *slog.Logger, rep *Report) error {
	m := c.src.Manifest()

	text, ok, err := c.src.Read(m.Primary)
	if err != nil {
		return err
	}
	if !ok {
		return c.bootstrap(ctx, log, rep, m.Primary)
	}
	if err := c.executeDeclared(ctx, log, rep, m.Primary, text); err != nil {
		return err
	}

	for _, name := range m.Extensions {
		text, ok, err := c.src.Read(name)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug("extension source not present, skipping", "source", name)
			continue
		}
		if err := c.executeDeclared(ctx, log, rep, name, text); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) executeDeclared(ctx context.Context, log *slog.Logger, rep *Report, name, text string) error {
	res, err := c.apply.execute(ctx, name, text)
	rep.Declared = append(rep.Declared, res)
	if err != nil {
		return fmt.Errorf("declared schema %s: %w", name, err)
	}
	log.Info("declared schema applied", "source", name, "executed", res.Executed, "tolerated", res.Tolerated)
	return nil
}

func (c *Controller) bootstrap(ctx context.Context, log *slog.Logger, rep *Report, primary string) error {
	if c.opts.Bootstrapper == nil {
		return shared.Unrecoverable(
			fmt.Errorf("primary schema source %s is missing", primary), "assert declared schema")
	}

	log.Warn("primary schema source is missing, inferring structure heuristically", "source", primary)
	rep.Heuristic = true
	rep.warn("primary schema source %s missing, structure inferred heuristically", primary)
	if err := c.opts.Bootstrapper.CreateAllTables(ctx); err != nil {
		return fmt.Errorf("heuristic tables: %w", err)
	}
	if err := c.opts.Bootstrapper.CreateAllIndexes(ctx); err != nil {
		return fmt.Errorf("heuristic indexes: %w", err)
	}
	return nil
}

// verify возвращает *MismatchError, если обязательных таблиц нет.
func (c *Controller) verify(ctx context.Context) error {
	missing, err := c.missingTables(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &MismatchError{Missing: missing}
	}
	return nil
}

func (c *Controller) missingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range c.src.Manifest().RequiredTables {
		ok, err := c.pool.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

// verifyAndRepair: при расхождении заново применяет декларативную схему,
// запускает синхронизатор и проверяет ещё раз.
func (c *Controller) verifyAndRepair(ctx context.Context, log *slog.Logger, rep *Report) error {
	err := c.verify(ctx)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		return err
	}

	log.Warn("structural drift detected, self-repairing", "missing", mismatch.Missing)
	rep.Repaired = true
	c.obs.SelfRepaired()

	if err := c.assertDeclared(ctx, log, rep); err != nil {
		return fmt.Errorf("self-repair: %w", err)
	}
	c.synchronize(ctx, log, rep)

	if err := c.verify(ctx); err != nil {
		return fmt.Errorf("self-repair did not restore structure: %w", err)
	}
	log.Info("self-repair completed")
	return nil
}

// synchronize добавляет недостающие колонки. Ошибки не прерывают процедуру:
// их последствия обнаружит проверка.
func (c *Controller) synchronize(ctx context.Context, log *slog.Logger, rep *Report) {
	srcs, err := c.src.SyncSources()
	if err != nil {
		log.Warn("failed to read synchronizer sources", "error", err)
		rep.warn("synchronizer sources: %v", err)
		return
	}
	res, err := c.sync.Run(ctx, synchronizer.Parse(srcs...))
	for _, d := range res.Added {
		rep.ColumnsAdded = append(rep.ColumnsAdded, d.Table+"."+d.Column)
	}
	if err != nil {
		log.Warn("synchronization finished with errors", "error", err)
		rep.warn("synchronizer: %v", err)
	}
}

// Sync запускает синхронизатор отдельно. dryRun возвращает только план.
func (c *Controller) Sync(ctx context.Context, dryRun bool) (synchronizer.Plan, synchronizer.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	srcs, err := c.src.SyncSources()
	if err != nil {
		return synchronizer.Plan{}, synchronizer.Result{}, err
	}
	decls := synchronizer.Parse(srcs...)
	if dryRun {
		plan, err := c.sync.Plan(ctx, decls)
		return plan, synchronizer.Result{}, err
	}
	res, err := c.sync.Run(ctx, decls)
	return synchronizer.Plan{}, res, err
}

// seed выполняет скрипты начальных данных и вставляет обязательные записи.
// Ошибки попадают в отчёт как предупреждения.
func (c *Controller) seed(ctx context.Context, log *slog.Logger, rep *Report) {
	m := c.src.Manifest()

	for _, name := range m.Seeds {
		text, ok, err := c.src.Read(name)
		if err != nil || !ok {
			if err != nil {
				rep.warn("seed %s: %v", name, err)
			}
			continue
		}
		res, err := c.apply.execute(ctx, name, text)
		if err != nil {
			log.Warn("seed script failed", "source", name, "error", err)
			rep.warn("seed %s: %v", name, err)
			continue
		}
		log.Debug("seed script executed", "source", name, "outcome", res.Outcome)
	}

	for _, rec := range m.Records {
		n, err := c.insertRecord(ctx, rec)
		if err != nil {
			log.Warn("seed record failed", "table", rec.Table, "error", err)
			rep.warn("seed record %s: %v", rec.Table, err)
			continue
		}
		rep.Seeded += n
	}
}

func (c *Controller) insertRecord(ctx context.Context, rec SeedRecord) (int64, error) {
	ok, err := c.pool.TableExists(ctx, rec.Table)
	if err != nil || !ok {
		return 0, err
	}

	cols := make([]string, 0, len(rec.Values))
	for col := range rec.Values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = sqlite.QuoteIdent(col)
		args[i] = rec.Values[col]
	}
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		sqlite.QuoteIdent(rec.Table),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	return c.pool.Exec(ctx, query, args...)
}
