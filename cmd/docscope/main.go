package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docscope/internal/config"
	"git.home.luguber.info/inful/docscope/internal/logfields"
	"git.home.luguber.info/inful/docscope/internal/metrics"
	"git.home.luguber.info/inful/docscope/internal/pipeline"
	"git.home.luguber.info/inful/docscope/internal/source"
	"git.home.luguber.info/inful/docscope/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docscope.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Output string `short:"o" help:"Override output directory"`
	} `cmd:"" help:"Build all output variants once"`

	Check struct{} `cmd:"" help:"Validate content and report diagnostics without writing outputs"`

	Watch struct{} `cmd:"" help:"Build, then rebuild incrementally as content changes"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI)

	if ctx.Command() == "init" {
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("Wrote", CLI.Config)
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger(CLI.Verbose)
	slog.SetDefault(logger)

	var exitErr error
	switch ctx.Command() {
	case "build":
		if CLI.Build.Output != "" {
			cfg.Output.Directory = CLI.Build.Output
		}
		exitErr = runBuild(cfg, logger, true)
	case "check":
		exitErr = runBuild(cfg, logger, false)
	case "watch":
		exitErr = runWatch(cfg, logger)
	default:
		exitErr = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if exitErr != nil {
		logger.Error("Command failed", logfields.Error(exitErr))
		os.Exit(1)
	}
}

// newSource syncs the git source when configured and returns the filesystem
// source the pipeline reads from.
func newSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*source.FSSource, error) {
	if g := cfg.Content.Git; g != nil {
		syncer := source.NewGitSyncer(g.URL, g.Branch, cfg.Content.Root, logger)
		if err := syncer.Sync(ctx); err != nil {
			return nil, err
		}
	}
	src := source.NewFSSource(cfg.Content.Root, cfg.Content.FragmentsDir, cfg.Content.Manifest)
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return src, nil
}

// runBuild runs one build. With emitOutputs false (check command) validation
// still runs in full; outputs go to a throwaway directory.
func runBuild(cfg *config.Config, logger *slog.Logger, emitOutputs bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := newSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if !emitOutputs {
		tmp, err := os.MkdirTemp("", "docscope-check-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		cfg.Output.Directory = filepath.Join(tmp, "out")
	}

	pipe := pipeline.New(cfg, src, pipeline.WithLogger(logger))
	sum, err := pipe.Build(ctx)
	if sum != nil {
		printDiagnostics(sum)
	}
	if err != nil {
		return err
	}
	if sum.Failed() {
		return fmt.Errorf("build failed: %d document(s) with hard failures", len(sum.FailedDocs))
	}
	return nil
}

func runWatch(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := newSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		registry := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, registry, logger); err != nil {
				logger.Error("Metrics endpoint failed", logfields.Error(err))
			}
		}()
	}

	var publisher *watch.Publisher
	if cfg.NATS.Enabled {
		publisher, err = watch.NewPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	pipe := pipeline.New(cfg, src, pipeline.WithLogger(logger), pipeline.WithRecorder(recorder))
	runner := watch.NewRunner(cfg, src, pipe, recorder, publisher, logger)
	return runner.Run(ctx)
}

func printDiagnostics(sum *pipeline.Summary) {
	for _, c := range sum.Conflicts {
		fmt.Fprintln(os.Stderr, "conflict:", c.Error())
	}
	docs := make([]string, 0, len(sum.Diagnostics))
	for doc := range sum.Diagnostics {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	for _, doc := range docs {
		for _, d := range sum.Diagnostics[doc] {
			fmt.Fprintln(os.Stderr, d.String())
		}
	}
}
