// Package app wires settings, logging, the cache, the ledger and the
// bootstrap pipeline into the CLI commands.
package app

import (
	"context"
	stdErrors "errors"
	"io"
	"os"

	"github.com/google/uuid"

	"binstrap/internal/bootstrap"
	"binstrap/internal/cache"
	"binstrap/internal/config"
	"binstrap/internal/data"
	apperrors "binstrap/internal/errors"
	"binstrap/internal/errors/logging"
	"binstrap/internal/fetcher"
	"binstrap/internal/logger"
	"binstrap/internal/platform"
	"binstrap/internal/progress"
	"binstrap/internal/ui"
)

// App owns the resources shared by a single CLI invocation.
type App struct {
	settings *config.Settings
	platform platform.Platform
	stdout   io.Writer
	live     *bool

	opener     fetcher.BucketOpener
	httpClient fetcher.HTTPClient

	log     *logger.ColoredLogger
	logFile io.WriteCloser
	ledger  *data.SQLiteRepository
	store   *cache.Store
	printer *ui.Printer
	console *ui.Console
}

// Option customizes an App.
type Option func(*App)

// WithLiveProgress forces in-place progress redrawing on or off.
func WithLiveProgress(live bool) Option {
	return func(a *App) {
		a.live = &live
	}
}

// WithBucketOpener overrides how non-HTTP buckets are opened.
func WithBucketOpener(open fetcher.BucketOpener) Option {
	return func(a *App) {
		a.opener = open
	}
}

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client fetcher.HTTPClient) Option {
	return func(a *App) {
		a.httpClient = client
	}
}

// New builds an App. Resources are opened lazily by each command.
func New(settings *config.Settings, stdout io.Writer, opts ...Option) *App {
	if stdout == nil {
		stdout = os.Stdout
	}
	a := &App{
		settings: settings,
		platform: platform.ForName(settings.Platform),
		stdout:   stdout,
		printer:  ui.NewPrinter(stdout),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Platform returns the platform descriptors are selected for.
func (a *App) Platform() platform.Platform {
	return a.platform
}

// open prepares logging, the ledger and the cache. Console log lines go to
// console, which during a run is the progress board's writer.
func (a *App) open(ctx context.Context, console io.Writer) error {
	if a.store != nil {
		return nil
	}

	level, _ := logger.ParseLevel(a.settings.Log.Level)
	opts := []logger.Option{logger.WithLevel(level), logger.WithOutput(console)}
	if a.settings.Log.File != "" {
		file, err := logger.OpenRotatingFile(logger.FileOptions{
			Path:       a.settings.Log.File,
			MaxSizeMB:  a.settings.Log.MaxSizeMB,
			MaxBackups: a.settings.Log.MaxBackups,
			Compress:   a.settings.Log.Compress,
		})
		if err != nil {
			return apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to open log file", err).
				WithModule("app").
				WithOperation("open").
				WithField("path", a.settings.Log.File)
		}
		a.logFile = file
		opts = append(opts, logger.WithFileTee(file))
	}
	a.log = logger.NewColoredLogger(a.stdout, opts...)
	a.console = ui.NewConsole(a.log, a.stdout)

	ledger, err := data.OpenSQLite(a.settings.LedgerPath)
	if err == nil {
		err = ledger.Bootstrap(ctx)
		if err != nil {
			ledger.Close()
		}
	}
	if err != nil {
		a.log.WarnContext(ctx, "ledger unavailable, continuing without it",
			logger.String("path", a.settings.LedgerPath),
			logger.Error(err),
		)
	} else {
		a.ledger = ledger
	}

	var repo data.Repository
	if a.ledger != nil {
		repo = a.ledger
	}
	store, err := cache.NewStore(a.settings.CacheDir, repo, a.log)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

// Close releases the ledger and the log file.
func (a *App) Close() error {
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return stdErrors.Join(errs...)
}

func (a *App) newFetcher() fetcher.Fetcher {
	retry := fetcher.Retry{MaxRetries: a.settings.MaxRetries, Backoff: a.settings.Backoff}
	httpOpts := []fetcher.HTTPOption{
		fetcher.WithRetry(retry),
		fetcher.WithLogger(a.log),
		fetcher.WithUserAgent(a.settings.UserAgent),
	}
	if a.httpClient != nil {
		httpOpts = append(httpOpts, fetcher.WithHTTPClient(a.httpClient))
	}
	return fetcher.Router{
		HTTP: fetcher.NewHTTPFetcher(a.settings.Timeout, httpOpts...),
		Blob: fetcher.NewBlobFetcher(a.opener, retry, a.log),
	}
}

// Bootstrap installs every asset the manifests list for the current platform
// and prints the run summary.
func (a *App) Bootstrap(ctx context.Context, manifests []string) (*bootstrap.Report, error) {
	if len(manifests) == 0 {
		manifests = a.settings.Manifests
	}
	manifest, err := config.LoadManifests(manifests...)
	if err != nil {
		return nil, err
	}
	descriptors := manifest.Descriptors(a.platform)

	board := progress.NewBoard(progress.NewGate(), progress.Options{
		Output: a.stdout,
		Total:  len(descriptors),
		Live:   a.live,
	})
	defer board.Close()

	if err := a.open(ctx, board.Writer(a.stdout)); err != nil {
		return nil, err
	}

	ctx = logger.ContextWithTrace(ctx, logger.TraceContext{RunID: uuid.NewString()})
	if len(descriptors) == 0 {
		a.log.WarnContext(ctx, "manifest lists no files for this platform",
			logger.String("platform", a.platform.Name),
			logger.Any("keys", a.platform.Keys()),
		)
	}

	workers := a.settings.Workers
	if workers <= 0 {
		workers = bootstrap.DefaultWorkers()
	}
	orchestrator := bootstrap.New(a.store, a.newFetcher(), bootstrap.Options{
		OutputDir: a.settings.OutputDir,
		Platform:  a.platform,
		Workers:   workers,
	},
		bootstrap.WithLogger(a.log),
		bootstrap.WithBoard(board),
		bootstrap.WithLedger(a.ledgerRepo()),
	)

	report := orchestrator.Run(ctx, descriptors)
	board.Close()

	a.printer.PrintSummary(report)
	return report, nil
}

// Status prints the cache location, the cached artifacts and recent runs.
func (a *App) Status(ctx context.Context, limit int) error {
	if err := a.open(ctx, a.stdout); err != nil {
		return err
	}
	a.console.WriteLine("platform: %s", a.platform.Name)
	a.console.WriteLine("cache:    %s", a.store.Root())
	a.console.WriteLine("output:   %s", a.settings.OutputDir)
	if a.ledger == nil {
		return apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "ledger unavailable", nil).
			WithModule("app").
			WithOperation("Status").
			WithField("path", a.settings.LedgerPath)
	}

	artifacts, err := a.ledger.ListArtifacts(ctx)
	if err != nil {
		return apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to list artifacts", err).
			WithModule("app").
			WithOperation("Status")
	}
	runs, err := a.ledger.RecentRuns(ctx, limit)
	if err != nil {
		return apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to list runs", err).
			WithModule("app").
			WithOperation("Status")
	}

	a.printer.PrintArtifacts(artifacts)
	a.printer.PrintSeparator("-", 72)
	a.printer.PrintHistory(runs)
	return nil
}

// Clean empties the cache after confirm agrees. A nil confirm skips the
// question.
func (a *App) Clean(ctx context.Context, confirm func(label string) (bool, error)) (int, error) {
	if err := a.open(ctx, a.stdout); err != nil {
		return 0, err
	}
	if confirm != nil {
		ok, err := confirm("Remove every cached download under " + a.store.Root())
		if err != nil {
			return 0, err
		}
		if !ok {
			a.console.WriteLine("aborted")
			return 0, nil
		}
	}

	n, err := a.store.Clean(ctx)
	if err != nil {
		logging.Error(ctx, a.log, "cache clean failed", err)
		return n, err
	}
	a.console.Success("removed %d cache entries", n)
	return n, nil
}

func (a *App) ledgerRepo() data.Repository {
	if a.ledger == nil {
		return nil
	}
	return a.ledger
}
