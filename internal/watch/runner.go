package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docscope/internal/config"
	"git.home.luguber.info/inful/docscope/internal/logfields"
	"git.home.luguber.info/inful/docscope/internal/metrics"
	"git.home.luguber.info/inful/docscope/internal/pipeline"
	"git.home.luguber.info/inful/docscope/internal/source"
)

// Runner ties watcher, debouncer, scheduler, and pipeline together for watch
// mode. Builds run one at a time in the debouncer's goroutine; bursts that
// arrive mid-build coalesce into a single follow-up.
type Runner struct {
	cfg       *config.Config
	src       *source.FSSource
	pipe      *pipeline.Pipeline
	recorder  metrics.Recorder
	publisher *Publisher
	logger    *slog.Logger
}

// NewRunner assembles watch mode. publisher may be nil.
func NewRunner(cfg *config.Config, src *source.FSSource, pipe *pipeline.Pipeline, recorder metrics.Recorder, publisher *Publisher, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, src: src, pipe: pipe, recorder: recorder, publisher: publisher, logger: logger}
}

// Run performs an initial full build and then rebuilds on change until ctx is
// canceled. The initial build's scope conflicts are fatal; conflicts arising
// later keep the watcher alive so the author can fix and resave.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.pipe.Build(ctx); err != nil {
		return err
	}

	requests := make(chan Request, 64)
	debouncer, err := NewDebouncer(DebouncerConfig{
		QuietWindow: r.cfg.Watch.QuietWindow,
		MaxDelay:    r.cfg.Watch.MaxDelay,
	})
	if err != nil {
		return err
	}
	watcher, err := NewWatcher(r.src, requests, r.logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return debouncer.Run(gctx, requests, r.rebuild) })

	if r.cfg.Watch.FullRebuildInterval > 0 {
		scheduler, err := r.startScheduler(requests)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return scheduler.Shutdown()
		})
	}

	r.logger.Info("Watching for changes",
		logfields.Path(r.src.Root),
		slog.Duration("quiet_window", r.cfg.Watch.QuietWindow),
		slog.Duration("max_delay", r.cfg.Watch.MaxDelay))

	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// startScheduler arranges a periodic full rebuild request, a safety net for
// edits the watcher missed (network filesystems, editor quirks).
func (r *Runner) startScheduler(requests chan<- Request) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(r.cfg.Watch.FullRebuildInterval),
		gocron.NewTask(func() {
			select {
			case requests <- Request{Full: true, Reason: "periodic", RequestedAt: time.Now()}:
			default:
			}
		}),
		gocron.WithName("periodic-full-rebuild"),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule periodic rebuild: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

// rebuild is the debouncer's fire callback.
func (r *Runner) rebuild(ctx context.Context, batch Batch) {
	invalidated := 0
	if batch.Full {
		// Manifest or periodic: drop everything, including the manifest entry.
		invalidated += len(r.pipe.Store().Invalidate(pipeline.ManifestKey()))
	}
	for _, key := range batch.Keys {
		invalidated += len(r.pipe.Store().Invalidate(key))
	}
	r.recorder.IncInvalidations(invalidated)
	r.logger.Info("Rebuilding",
		slog.String("cause", batch.Cause),
		logfields.Count(batch.Count),
		slog.Int("invalidated", invalidated))

	sum, err := r.pipe.Build(ctx)
	if err != nil {
		r.logger.Error("Rebuild failed", logfields.Error(err))
		if sum == nil {
			return
		}
	}
	if r.publisher != nil && sum != nil {
		r.publisher.PublishSummary(ctx, sum)
	}
}
