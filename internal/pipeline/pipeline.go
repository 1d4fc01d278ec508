// Package pipeline orchestrates a build: manifest load, document load, scope
// resolution, validation, and artifact emission, with an event bus for
// observers. A build either fails globally (scope conflicts, manifest errors)
// or per document (structural failures), never partially within a document.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docscope/internal/config"
	"git.home.luguber.info/inful/docscope/internal/document"
	"git.home.luguber.info/inful/docscope/internal/emit"
	docerrors "git.home.luguber.info/inful/docscope/internal/errors"
	"git.home.luguber.info/inful/docscope/internal/logfields"
	"git.home.luguber.info/inful/docscope/internal/metrics"
	"git.home.luguber.info/inful/docscope/internal/navigation"
	"git.home.luguber.info/inful/docscope/internal/scope"
	"git.home.luguber.info/inful/docscope/internal/sdk"
	"git.home.luguber.info/inful/docscope/internal/source"
	"git.home.luguber.info/inful/docscope/internal/store"
	"git.home.luguber.info/inful/docscope/internal/util/sets"
	"git.home.luguber.info/inful/docscope/internal/validate"
)

// Cache key prefixes; one namespace per value kind.
const (
	keyManifest = "manifest"
	docPrefix   = "doc:"
	fragPrefix  = "fragment:"
)

// DocKey returns the cache key for a document.
func DocKey(key document.Key) string { return docPrefix + key }

// FragmentKey returns the cache key for a fragment.
func FragmentKey(key string) string { return fragPrefix + key }

// ManifestKey returns the cache key for the navigation manifest.
func ManifestKey() string { return keyManifest }

// Outcome labels for a completed build.
const (
	OutcomeSuccess = "success"
	OutcomeWarning = "warning"
	OutcomeFailed  = "failed"
)

// Summary is the result of one build.
type Summary struct {
	BuildID   string
	Started   time.Time
	Duration  time.Duration
	Documents int
	Artifacts int
	// Diagnostics maps each document to its findings, failing docs included.
	Diagnostics map[document.Key][]validate.Diagnostic
	// Conflicts is non-empty only for globally failed builds.
	Conflicts []scope.Conflict
	// FailedDocs lists documents that produced no output, sorted.
	FailedDocs []document.Key
	// StaleSkipped lists documents whose writes were rejected because the
	// source changed mid-build.
	StaleSkipped []document.Key
	Outcome      string
}

// Failed reports whether the build must exit non-zero.
func (s *Summary) Failed() bool { return s.Outcome == OutcomeFailed }

// Pipeline wires the build stages together. Safe for repeated Build calls;
// watch mode reuses one pipeline across rebuilds so the store stays warm.
type Pipeline struct {
	cfg      *config.Config
	src      *source.FSSource
	store    *store.Store
	emitter  *emit.Emitter
	bus      *Bus
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBus attaches an event bus.
func WithBus(b *Bus) Option { return func(p *Pipeline) { p.bus = b } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// New creates a pipeline over the given source and config.
func New(cfg *config.Config, src *source.FSSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		src:      src,
		store:    store.New(store.NewTracker()),
		emitter:  emit.NewEmitter(cfg.Output.Directory, cfg.Output.SDKPrefix, nil),
		bus:      NewBus(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.emitter.Logger = p.logger
	return p
}

// Store exposes the pipeline's cache for watch-mode invalidation.
func (p *Pipeline) Store() *store.Store { return p.store }

// Bus exposes the event bus for subscribers.
func (p *Pipeline) Bus() *Bus { return p.bus }

// Build runs one full pass. The returned Summary is always non-nil when err
// is nil; a globally failed build returns both a summary and an error.
func (p *Pipeline) Build(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{
		BuildID:     uuid.NewString()[:8],
		Started:     start,
		Diagnostics: make(map[document.Key][]validate.Diagnostic),
	}
	log := p.logger.With(logfields.BuildID(sum.BuildID))
	log.Info("Build started")
	_ = p.bus.Publish(BuildStarted{BuildID: sum.BuildID, Full: true})

	manifest, err := p.loadManifest(ctx)
	if err != nil {
		return p.finish(sum, start, OutcomeFailed, log), docerrors.ManifestError(err)
	}

	docs, loadErrs := p.loadDocuments(ctx, manifest)
	sum.Documents = len(docs)
	p.recorder.SetDocumentsTracked(len(manifest.DocKeys()))

	// Scope resolution is global: any conflict fails the build before a
	// single artifact is written.
	resolveStart := time.Now()
	decls, conflicts := scope.BuildDeclarations(docs)
	tree, treeConflicts := scope.Resolve(manifest, decls)
	conflicts = append(conflicts, treeConflicts...)
	p.recorder.ObserveStageDuration("resolve", time.Since(resolveStart))
	if len(conflicts) > 0 {
		sum.Conflicts = conflicts
		for _, c := range conflicts {
			log.Error("Scope conflict", logfields.Document(string(c.Doc)), logfields.Error(c))
		}
		return p.finish(sum, start, OutcomeFailed, log), docerrors.ScopeResolutionFailed(len(conflicts))
	}

	if p.cfg.Output.Clean {
		if err := p.emitter.Clean(); err != nil {
			return p.finish(sum, start, OutcomeFailed, log), err
		}
	}

	validator := &validate.Validator{
		Universe:         manifest.Universe,
		Tree:             tree,
		Fragments:        &fragmentSource{p: p},
		StrictReferences: p.cfg.StrictReferences,
	}

	// The whole corpus is expanded before any link is checked: anchors
	// contributed by embedded fragments are part of a document's anchor set,
	// so the index must be built from post-splice trees.
	expanded := p.expandDocuments(ctx, sum, docs, validator, log)
	validator.Index = anchorIndex(expanded)

	p.processDocuments(ctx, sum, docs, expanded, loadErrs, tree, validator, log)

	outcome := OutcomeSuccess
	if len(sum.FailedDocs) > 0 {
		outcome = OutcomeFailed
	} else if hasWarnings(sum.Diagnostics) {
		outcome = OutcomeWarning
	}
	return p.finish(sum, start, outcome, log), nil
}

func (p *Pipeline) finish(sum *Summary, start time.Time, outcome string, log *slog.Logger) *Summary {
	sum.Duration = time.Since(start)
	sum.Outcome = outcome
	p.recorder.ObserveBuildDuration(sum.Duration)
	p.recorder.IncBuildOutcome(outcome)
	_ = p.bus.Publish(BuildCompleted{BuildID: sum.BuildID, Summary: sum, Duration: sum.Duration})
	log.Info("Build completed",
		slog.String("outcome", outcome),
		logfields.Count(sum.Artifacts),
		logfields.DurationMS(float64(sum.Duration.Milliseconds())))
	return sum
}

func (p *Pipeline) loadManifest(ctx context.Context) (*navigation.Manifest, error) {
	e, err := p.store.Get(ctx, ManifestKey(), func(context.Context) (any, error) {
		return navigation.Load(p.src.ManifestPath())
	})
	if err != nil {
		return nil, err
	}
	return e.Value.(*navigation.Manifest), nil
}

// loadDocuments parses every document under the content root in parallel.
// Parse failures are per-document: they are returned, not raised.
func (p *Pipeline) loadDocuments(ctx context.Context, manifest *navigation.Manifest) (map[document.Key]*document.Document, map[document.Key]error) {
	stageStart := time.Now()
	defer func() { p.recorder.ObserveStageDuration("load", time.Since(stageStart)) }()

	keys, err := p.src.ListDocuments()
	if err != nil {
		return nil, map[document.Key]error{"": err}
	}

	var mu sync.Mutex
	docs := make(map[document.Key]*document.Document, len(keys))
	loadErrs := make(map[document.Key]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, key := range keys {
		g.Go(func() error {
			e, err := p.store.Get(gctx, DocKey(key), func(context.Context) (any, error) {
				// Fresh parse: recompute this entry's dependency edges. The
				// universe comes from the manifest, so every document depends
				// on it; a manifest change cascades to the whole corpus.
				p.store.Tracker().Begin(DocKey(key))
				p.store.Tracker().Record(DocKey(key), ManifestKey())
				raw, err := p.src.ReadDocument(key)
				if err != nil {
					return nil, err
				}
				doc, err := document.Parse(key, raw, manifest.Universe)
				if err != nil {
					return nil, docerrors.DocumentParseError(key, err)
				}
				return doc, nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				loadErrs[key] = err
				return nil
			}
			docs[key] = e.Value.(*document.Document)
			return nil
		})
	}
	_ = g.Wait()
	return docs, loadErrs
}

// expandDocuments runs the fragment splice for every loaded document in
// parallel, recording fragment dependency edges as it goes.
func (p *Pipeline) expandDocuments(ctx context.Context, sum *Summary, docs map[document.Key]*document.Document, validator *validate.Validator, log *slog.Logger) map[document.Key]*validate.Expanded {
	stageStart := time.Now()
	defer func() { p.recorder.ObserveStageDuration("expand", time.Since(stageStart)) }()

	var mu sync.Mutex
	expanded := make(map[document.Key]*validate.Expanded, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for key, doc := range docs {
		g.Go(func() error {
			exp, err := validator.Expand(gctx, doc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.FailedDocs = append(sum.FailedDocs, key)
				log.Error("Expansion failed", logfields.Document(string(key)), logfields.Error(err))
				p.recorder.IncDocumentResult(metrics.ResultFailed)
				return nil
			}
			expanded[key] = exp
			return nil
		})
	}
	_ = g.Wait()
	return expanded
}

// processDocuments validates and emits every document in parallel.
func (p *Pipeline) processDocuments(ctx context.Context, sum *Summary, docs map[document.Key]*document.Document, expanded map[document.Key]*validate.Expanded, loadErrs map[document.Key]error, tree *scope.ScopedTree, validator *validate.Validator, log *slog.Logger) {
	stageStart := time.Now()
	defer func() { p.recorder.ObserveStageDuration("process", time.Since(stageStart)) }()

	var mu sync.Mutex
	for key, err := range loadErrs {
		sum.FailedDocs = append(sum.FailedDocs, key)
		log.Error("Document failed to load", logfields.Document(string(key)), logfields.Error(err))
		p.recorder.IncDocumentResult(metrics.ResultFailed)
	}

	keys := make([]document.Key, 0, len(expanded))
	for key := range expanded {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, key := range keys {
		doc := docs[key]
		exp := expanded[key]
		g.Go(func() error {
			res := validator.Finish(doc, exp)

			failed := validate.HasFailures(res.Diagnostics)
			mu.Lock()
			if len(res.Diagnostics) > 0 {
				sum.Diagnostics[key] = res.Diagnostics
			}
			if failed {
				sum.FailedDocs = append(sum.FailedDocs, key)
			}
			mu.Unlock()
			for _, d := range res.Diagnostics {
				p.recorder.IncDiagnostic(string(d.Code), string(d.Severity))
			}
			_ = p.bus.Publish(DocumentProcessed{BuildID: sum.BuildID, Doc: key, Diagnostics: res.Diagnostics, Failed: failed})
			if failed {
				p.recorder.IncDocumentResult(metrics.ResultFailed)
				return nil
			}

			written, err := p.emitDocument(doc, res, tree)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.FailedDocs = append(sum.FailedDocs, key)
				log.Error("Emit failed", logfields.Document(string(key)), logfields.Error(err))
				p.recorder.IncDocumentResult(metrics.ResultFailed)
			case written < 0:
				sum.StaleSkipped = append(sum.StaleSkipped, key)
				log.Warn("Skipped stale write", logfields.Document(string(key)))
			default:
				sum.Artifacts += written
				if len(res.Diagnostics) > 0 {
					p.recorder.IncDocumentResult(metrics.ResultWarning)
				} else {
					p.recorder.IncDocumentResult(metrics.ResultSuccess)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(sum.FailedDocs)
	sort.Strings(sum.StaleSkipped)
}

// emitDocument derives and writes artifacts for one validated document.
// Returns the artifact count, or -1 when the write was rejected as stale.
func (p *Pipeline) emitDocument(doc *document.Document, res *validate.Result, tree *scope.ScopedTree) (int, error) {
	effScope := effectiveScope(doc, tree)
	artifacts, err := p.emitter.Artifacts(doc, res, effScope)
	if err != nil {
		return 0, err
	}
	// Stale-write rejection: the source may have changed while this build
	// was in flight. Re-hash the file as it is on disk now; if it no longer
	// matches the snapshot this output was computed from, drop the write and
	// let the next build pick up the new content.
	raw, err := p.src.ReadDocument(doc.Key)
	if err != nil || document.Fingerprint(raw) != doc.Fingerprint {
		return -1, nil
	}
	if err := p.emitter.Write(artifacts); err != nil {
		return 0, err
	}
	return len(artifacts), nil
}

// effectiveScope is the manifest-resolved scope when the document is in the
// tree, otherwise its own declaration.
func effectiveScope(doc *document.Document, tree *scope.ScopedTree) sets.Set[sdk.SDK] {
	if s, ok := tree.DocScope(doc.Key); ok {
		return s
	}
	return doc.DeclaredSDKs
}

func hasWarnings(diags map[document.Key][]validate.Diagnostic) bool {
	for _, ds := range diags {
		if len(ds) > 0 {
			return true
		}
	}
	return false
}

// fragmentSource resolves fragments through the store, recording the
// dependency edge from the including document as it goes.
type fragmentSource struct {
	p *Pipeline
}

func (f *fragmentSource) Fragment(ctx context.Context, includer document.Key, key string) (*document.Fragment, error) {
	f.p.store.Tracker().Record(DocKey(includer), FragmentKey(key))
	e, err := f.p.store.Get(ctx, FragmentKey(key), func(context.Context) (any, error) {
		raw, err := f.p.src.ReadFragment(key)
		if err != nil {
			return nil, err
		}
		return document.ParseFragment(key, raw)
	})
	if err != nil {
		return nil, err
	}
	frag, ok := e.Value.(*document.Fragment)
	if !ok {
		return nil, fmt.Errorf("cache entry %s holds %T, not a fragment", FragmentKey(key), e.Value)
	}
	return frag, nil
}

// anchorIndex answers anchor lookups from the post-splice corpus, so links
// resolve against anchors contributed by embedded fragments too.
type anchorIndex map[document.Key]*validate.Expanded

func (i anchorIndex) Anchors(key document.Key) (sets.Set[string], bool) {
	exp, ok := i[key]
	if !ok {
		return nil, false
	}
	return exp.Anchors, true
}
