package bootstrap

import (
	"context"
	stdErrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"binstrap/internal/archive"
	"binstrap/internal/cache"
	"binstrap/internal/data"
	apperrors "binstrap/internal/errors"
	"binstrap/internal/errors/logging"
	"binstrap/internal/expose"
	"binstrap/internal/fetcher"
	"binstrap/internal/integrity"
	"binstrap/internal/logger"
	"binstrap/internal/platform"
	"binstrap/internal/progress"

	"github.com/google/uuid"
)

const maxDefaultWorkers = 32

// DefaultWorkers is the pool size used when none is configured.
func DefaultWorkers() int {
	return min(maxDefaultWorkers, runtime.NumCPU()+4)
}

// Options configures an Orchestrator.
type Options struct {
	OutputDir string
	Platform  platform.Platform
	// Workers bounds concurrent descriptors. Default: DefaultWorkers().
	Workers int
}

// Orchestrator runs descriptors through the pipeline.
type Orchestrator struct {
	store     *cache.Store
	fetcher   fetcher.Fetcher
	planner   expose.Planner
	platform  platform.Platform
	workers   int
	log       logger.Logger
	board     *progress.Board
	ledger    data.Repository
	linkerOpt []expose.InstallerOption
}

// Option customises Orchestrator construction.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithBoard renders transfers and overall progress on board.
func WithBoard(board *progress.Board) Option {
	return func(o *Orchestrator) {
		o.board = board
	}
}

// WithLedger records each run in repo.
func WithLedger(repo data.Repository) Option {
	return func(o *Orchestrator) {
		o.ledger = repo
	}
}

// WithInstallerOptions forwards options to the per-run installer.
func WithInstallerOptions(opts ...expose.InstallerOption) Option {
	return func(o *Orchestrator) {
		o.linkerOpt = append(o.linkerOpt, opts...)
	}
}

// New builds an Orchestrator.
func New(store *cache.Store, f fetcher.Fetcher, opts Options, options ...Option) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	o := &Orchestrator{
		store:    store,
		fetcher:  f,
		planner:  expose.Planner{Platform: opts.Platform, OutputDir: opts.OutputDir},
		platform: opts.Platform,
		workers:  workers,
		log:      logger.NewStandardLogger(logger.WithLevel(logger.LevelError)),
	}
	for _, opt := range options {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Run attempts every descriptor exactly once and reports the outcome of each.
// A failing descriptor never stops its siblings.
func (o *Orchestrator) Run(ctx context.Context, descriptors []Descriptor) *Report {
	trace := logger.TraceFromContext(ctx)
	if trace.RunID == "" {
		trace.RunID = uuid.NewString()
		ctx = logger.ContextWithTrace(ctx, trace)
	}

	report := &Report{
		RunID:     trace.RunID,
		Platform:  o.platform.Name,
		StartedAt: time.Now(),
		Results:   make([]Result, len(descriptors)),
	}
	o.log.InfoContext(ctx, "bootstrap started",
		logger.Int("descriptors", len(descriptors)),
		logger.Int("workers", o.workers),
		logger.String("platform", o.platform.Name),
	)

	installer := expose.NewInstaller(o.platform, o.linkerOpt...)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < min(o.workers, len(descriptors)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				report.Results[idx] = o.runSafe(ctx, installer, descriptors[idx])
				if o.board != nil {
					o.board.Step()
				}
			}
		}()
	}
	for i := range descriptors {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = time.Now()
	o.finish(ctx, report)
	return report
}

func (o *Orchestrator) finish(ctx context.Context, report *Report) {
	for _, f := range report.Failures() {
		logging.Error(ctx, o.log, "descriptor failed", f.Err)
	}
	o.log.InfoContext(ctx, "bootstrap finished",
		logger.Int("succeeded", report.Succeeded()),
		logger.Int("failed", len(report.Results)-report.Succeeded()),
		logger.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if o.ledger == nil {
		return
	}
	if err := o.ledger.RecordRun(ctx, report.Record()); err != nil {
		o.log.WarnContext(ctx, "failed to record run", logger.Error(err))
	}
}

// runSafe runs one task and turns a panic into a failed result for that
// descriptor.
func (o *Orchestrator) runSafe(ctx context.Context, installer *expose.Installer, desc Descriptor) (res Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.SystemError(apperrors.CodeSystemGeneric, "task panicked", fmt.Errorf("%v", r))
			res = Result{
				Descriptor: desc,
				State:      StateFailed,
				Err:        tag(err, "Run", desc.URL, ""),
				Duration:   time.Since(started),
			}
		}
	}()
	return o.runTask(ctx, installer, desc)
}

// runTask drives one descriptor to DONE or FAILED.
func (o *Orchestrator) runTask(ctx context.Context, installer *expose.Installer, desc Descriptor) Result {
	ctx = logger.ContextWithTrace(ctx, logger.TraceFromContext(ctx).WithURL(desc.URL))
	started := time.Now()
	st := newTracker()
	res := Result{Descriptor: desc, State: StatePending}

	fail := func(op string, err error) Result {
		res.Err = tag(err, op, desc.URL, "")
		_ = st.advance(StateFailed)
		res.State = st.state
		res.Duration = time.Since(started)
		return res
	}
	step := func(to State) error {
		if err := st.advance(to); err != nil {
			return apperrors.SystemError(apperrors.CodeSystemGeneric, "invalid task state", err)
		}
		res.State = to
		return nil
	}

	digest, err := integrity.ParseDigest(desc.ExpectedHash)
	if err != nil {
		return fail("ParseDigest", err)
	}

	unlock := o.store.Lock(desc.URL)
	defer unlock()

	if err := step(StateFetching); err != nil {
		return fail("Fetch", err)
	}
	lookup, err := o.store.Lookup(ctx, desc.URL, digest)
	if err != nil {
		return fail("Lookup", err)
	}
	res.CachePath = lookup.Path

	refresh := false
	if lookup.Status == cache.Hit {
		res.Source = SourceCache
		o.log.DebugContext(ctx, "using cached copy", logger.String("path", lookup.Path), logger.Any("ledger", lookup.Ledger))
		if err := step(StateVerifying); err != nil {
			return fail("Verify", err)
		}
	} else {
		n, err := o.download(ctx, desc, digest, st, &res)
		if err != nil {
			return fail("Fetch", err)
		}
		res.Source = SourceNetwork
		res.Bytes = n
		refresh = true
	}

	if err := step(StateExpanding); err != nil {
		return fail("Expand", err)
	}
	artifact, err := archive.Expand(res.CachePath, refresh)
	if err != nil {
		return fail("Expand", err)
	}

	if err := step(StateExposing); err != nil {
		return fail("Expose", err)
	}
	members := artifact.Members()
	var exposureErrs []error
	for _, rule := range desc.Rules() {
		exp := o.exposeOne(ctx, installer, members, rule, desc)
		if exp.Err != nil {
			exposureErrs = append(exposureErrs, exp.Err)
		}
		res.Exposures = append(res.Exposures, exp)
	}

	res.Duration = time.Since(started)
	if len(exposureErrs) > 0 {
		res.Err = stdErrors.Join(exposureErrs...)
		_ = st.advance(StateFailed)
		res.State = st.state
		return res
	}

	if err := step(StateDone); err != nil {
		return fail("Expose", err)
	}
	o.log.InfoContext(ctx, "descriptor ready",
		logger.String("source", string(res.Source)),
		logger.Int("exposures", len(res.Exposures)),
		logger.Duration("elapsed", res.Duration),
	)
	return res
}

// download fetches desc into a staged file, verifies it and commits it.
func (o *Orchestrator) download(ctx context.Context, desc Descriptor, digest integrity.Digest, st *tracker, res *Result) (int64, error) {
	staged, err := o.store.Stage(desc.URL)
	if err != nil {
		return 0, err
	}
	defer staged.Discard()

	var sink progress.Sink = progress.NoopSink{}
	if o.board != nil {
		sink = o.board.Transfer(filepath.Base(staged.Final()))
	}

	fetched, err := o.fetcher.Fetch(ctx, fetcher.Request{URL: desc.URL, Headers: desc.Headers}, staged, sink)
	if err != nil {
		return 0, err
	}

	if err := st.advance(StateVerifying); err != nil {
		return 0, err
	}
	res.State = StateVerifying
	if err := integrity.VerifyDigest(staged.Name(), digest); err != nil {
		return 0, err
	}

	p, err := staged.Commit(ctx, digest)
	if err != nil {
		return 0, err
	}
	res.CachePath = p
	o.log.DebugContext(ctx, "download committed",
		logger.String("path", p),
		logger.Int64("bytes", fetched.Written),
		logger.Int("attempts", fetched.Attempts),
	)
	return fetched.Written, nil
}

func (o *Orchestrator) exposeOne(ctx context.Context, installer *expose.Installer, members []string, rule expose.Rule, desc Descriptor) ExposureResult {
	exp := ExposureResult{Name: rule.Name}

	target, err := o.planner.Plan(members, rule, desc.UseShortcut)
	if err != nil {
		exp.Err = tag(err, "Plan", desc.URL, rule.Name)
		return exp
	}
	exp.Target = target

	outcome, err := installer.Install(target, desc.UseShortcut)
	if err != nil {
		exp.Err = tag(err, "Install", desc.URL, rule.Name)
		return exp
	}
	exp.Outcome = outcome

	if outcome.Action != expose.ActionUnchanged {
		o.log.DebugContext(ctx, "exposure installed",
			logger.String("exposure", rule.Name),
			logger.String("destination", target.Destination),
			logger.String("action", string(outcome.Action)),
			logger.String("method", string(outcome.Method)),
		)
	}
	return exp
}

// tag attaches the descriptor URL, and the exposure name when set, to err.
func tag(err error, op, url, exposure string) error {
	appErr := apperrors.Annotate(err, "bootstrap", op).WithField("url", url)
	if exposure != "" {
		appErr.WithField("exposure", exposure)
	}
	return appErr
}
