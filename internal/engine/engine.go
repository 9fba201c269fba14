package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/timelogbot/internal/domain"
	"github.com/roach88/timelogbot/internal/metrics"
	"github.com/roach88/timelogbot/internal/milestone"
	"github.com/roach88/timelogbot/internal/page"
)

// Aggregator summarizes the time entries of one project.
// Implemented by aggregate.Aggregator.
type Aggregator interface {
	Aggregate(ctx context.Context, project string) (domain.Aggregate, []domain.TimeEntry, error)
}

// StateStore persists milestone state. Implemented by store.Store.
type StateStore interface {
	Load(ctx context.Context, project string) (domain.MilestoneState, error)
	Save(ctx context.Context, project string, state domain.MilestoneState, crossed []domain.Milestone, runID string, now time.Time) error
	RecordDelivery(ctx context.Context, project string, milestones []domain.Milestone, deliveryErr error, now time.Time) error
}

// WikiStore reads and writes the report page of a wiki space.
// ReadPage returns domain.ErrPageNotFound when the page does not exist;
// WritePage creates it in that case.
type WikiStore interface {
	ReadPage(ctx context.Context, space string) (string, error)
	WritePage(ctx context.Context, space, text string) error
}

// Dispatcher sends milestone notifications. Implemented by notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, agg domain.Aggregate, res milestone.Result) error
}

// DefaultConcurrency is the default number of projects processed at once.
const DefaultConcurrency = 4

// Engine runs one sync over a fixed list of projects.
//
// Thread-safety model:
//   - Run(): may be called repeatedly, but runs must not overlap
//   - per-project work touches only that project's state row and page
type Engine struct {
	aggregator Aggregator
	store      StateStore
	wiki       WikiStore
	dispatcher Dispatcher
	merger     page.Merger

	clock       Clock
	runIDs      RunIDGenerator
	logger      *slog.Logger
	metrics     *metrics.Recorder
	names       domain.NameNormalizer
	retry       RetryConfig
	concurrency int
	spacePrefix string
	dryRun      bool
	force       bool
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the clock used for "today". Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRunIDGenerator sets the run id generator. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records run metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithRetry sets the retry policy for transport failures.
func WithRetry(cfg RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithConcurrency bounds how many projects are processed at once.
// Values below 1 select DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithSpacePrefix sets the prefix prepended to a project name to form its
// wiki space name (e.g. "NBIS ").
func WithSpacePrefix(prefix string) Option {
	return func(e *Engine) { e.spacePrefix = prefix }
}

// WithSeparator sets the page separator. Default: page.DefaultSeparator.
func WithSeparator(sep string) Option {
	return func(e *Engine) { e.merger = page.NewMerger(sep) }
}

// WithNameNormalizer sets how project names are canonicalised.
func WithNameNormalizer(n domain.NameNormalizer) Option {
	return func(e *Engine) { e.names = n }
}

// WithDryRun disables every side effect: no state is saved and no page is
// written. The dispatcher is still called, so pair it with a logging
// notifier.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// WithForce writes pages even when the merged text is unchanged.
func WithForce(force bool) Option {
	return func(e *Engine) { e.force = force }
}

// New creates an Engine from its collaborators.
//
// Options can be passed to configure the engine (e.g., WithConcurrency).
func New(agg Aggregator, st StateStore, wiki WikiStore, disp Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		aggregator:  agg,
		store:       st,
		wiki:        wiki,
		dispatcher:  disp,
		merger:      page.NewMerger(""),
		clock:       SystemClock{},
		runIDs:      UUIDv7Generator{},
		logger:      slog.Default(),
		retry:       DefaultRetryConfig(),
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.retry.ApplyDefaults()
	if e.concurrency < 1 {
		e.concurrency = DefaultConcurrency
	}
	return e
}

// Run processes every project once and returns the run report.
//
// The returned error joins all project failures; it is nil only when every
// project succeeded. A failing project never stops the others. The report
// lists projects in input order. Duplicate names (after normalization) are
// processed once.
func (e *Engine) Run(ctx context.Context, projects []string) (*Report, error) {
	runID := e.runIDs.Generate()
	logger := e.logger.With("run_id", runID)

	names := e.dedupe(projects)
	report := &Report{
		RunID:    runID,
		Started:  e.clock.Now(),
		DryRun:   e.dryRun,
		Projects: make([]ProjectResult, len(names)),
	}

	logger.Info("sync starting", "projects", len(names), "dry_run", e.dryRun, "force", e.force)

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, name := range names {
		g.Go(func() error {
			// Each goroutine owns report.Projects[i]; no other shared state.
			report.Projects[i] = e.processProject(ctx, runID, logger.With("project", name), name)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = e.clock.Now()
	e.metrics.RunFinished(float64(report.Finished.Unix()))

	failures := report.Failures()
	for _, f := range failures {
		if f.Err != nil {
			logger.Error("project failed", "project", f.Project, "error", f.Err)
		}
		if f.NotifyErr != nil {
			logger.Error("notification failed", "project", f.Project, "error", f.NotifyErr)
		}
	}
	logger.Info("sync finished",
		"projects", len(names),
		"failed", len(failures),
		"duration", report.Finished.Sub(report.Started),
	)

	return report, report.Err()
}

func (e *Engine) dedupe(projects []string) []string {
	seen := make(map[string]bool, len(projects))
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		name := e.names.Normalize(p)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// processProject runs aggregate → evaluate → persist → notify → merge for
// one project. It never panics on collaborator errors; every failure ends
// up in the returned result.
func (e *Engine) processProject(ctx context.Context, runID string, logger *slog.Logger, name string) ProjectResult {
	res := ProjectResult{Project: name}
	defer func() {
		outcome := metrics.OutcomeOK
		if res.Failed() {
			outcome = metrics.OutcomeFailed
		}
		e.metrics.ProjectDone(outcome)
	}()

	// 1. Aggregate
	var (
		agg     domain.Aggregate
		entries []domain.TimeEntry
	)
	err := retry(ctx, e.retry, logger, "aggregate", func(ctx context.Context) error {
		var err error
		agg, entries, err = e.aggregator.Aggregate(ctx, name)
		return err
	})
	if err != nil {
		code := ErrCodeSource
		switch {
		case errors.Is(err, domain.ErrInvalidEntry):
			code = ErrCodeData
		case domain.IsTransportError(err):
			code = ErrCodeTransport
		}
		res.Err = newSyncError(code, name, "aggregate", err)
		return res
	}
	res.Hours = agg.TotalHours
	res.Entries = entries
	e.metrics.ProjectHours(name, agg.TotalHours)
	logger.Debug("aggregated", "hours", agg.TotalHours, "entries", agg.EntryCount, "created", agg.CreationDate)

	// 2. Evaluate
	stored, err := e.store.Load(ctx, name)
	if err != nil {
		res.Err = newSyncError(ErrCodePersistence, name, "load_state", err)
		return res
	}
	now := e.clock.Now()
	eval := milestone.Evaluate(agg, stored, now)
	res.Crossed = eval.Crossed

	// 3. Persist before anything leaves the process.
	if !e.dryRun {
		if err := e.store.Save(ctx, name, eval.State, eval.Crossed, runID, now); err != nil {
			res.Err = newSyncError(ErrCodePersistence, name, "save_state", err)
			return res
		}
	}

	// 4. Notify, exactly one attempt.
	if eval.Fired() {
		e.metrics.MilestonesFired(eval.Crossed)
		logger.Info("milestones crossed", "milestones", eval.Crossed)

		deliveryErr := e.dispatcher.Dispatch(ctx, agg, eval)
		if deliveryErr != nil {
			res.NotifyErr = newSyncError(ErrCodeNotify, name, "notify", deliveryErr)
			e.metrics.NotificationFailed()
		} else {
			res.Notified = true
		}
		if !e.dryRun {
			if err := e.store.RecordDelivery(ctx, name, eval.Crossed, deliveryErr, e.clock.Now()); err != nil {
				logger.Warn("could not record delivery outcome", "error", err)
			}
		}
	}

	// 5. Merge and write the page.
	if err := e.updatePage(ctx, logger, name, agg, &res); err != nil {
		res.Err = err
	}
	return res
}

func (e *Engine) updatePage(ctx context.Context, logger *slog.Logger, name string, agg domain.Aggregate, res *ProjectResult) error {
	space := e.spacePrefix + name

	var existing string
	err := retry(ctx, e.retry, logger, "read_page", func(ctx context.Context) error {
		var err error
		existing, err = e.wiki.ReadPage(ctx, space)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrPageNotFound):
		existing = ""
		logger.Info("page not found, creating", "space", space)
	case err != nil:
		return newSyncError(wikiCode(err), name, "read_page", err)
	}

	merged := e.merger.Merge(existing, page.Render(agg))
	if merged == existing && !e.force {
		res.PageUnchanged = true
		logger.Debug("page unchanged, skipping write", "space", space)
		return nil
	}
	if e.dryRun {
		logger.Info("dry-run: not writing page", "space", space, "bytes", len(merged))
		return nil
	}

	err = retry(ctx, e.retry, logger, "write_page", func(ctx context.Context) error {
		return e.wiki.WritePage(ctx, space, merged)
	})
	if err != nil {
		return newSyncError(wikiCode(err), name, "write_page", err)
	}
	res.PageWritten = true
	logger.Info("page updated", "space", space)
	return nil
}

func wikiCode(err error) SyncErrorCode {
	if domain.IsTransportError(err) {
		return ErrCodeTransport
	}
	return ErrCodeWiki
}
