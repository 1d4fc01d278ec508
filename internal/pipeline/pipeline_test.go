package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docscope/internal/config"
	"git.home.luguber.info/inful/docscope/internal/document"
	"git.home.luguber.info/inful/docscope/internal/navigation"
	"git.home.luguber.info/inful/docscope/internal/scope"
	"git.home.luguber.info/inful/docscope/internal/source"
	"git.home.luguber.info/inful/docscope/internal/validate"
)

const testManifest = `sdks: [go, python, java]
navigation:
  - title: Open
    href: open
  - title: Server
    sdk: [go, python]
    children:
      - title: Deploy
        href: server/deploy
`

const openDoc = `---
title: Open
---

# Open Guide

{{% embed note %}}

See [deploy](server/deploy#deploy).
`

const deployDoc = `---
title: Deploy
---

# Deploy

{{% sdk go %}}

Go steps.

{{% /sdk %}}
`

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func fixtureTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"docs.yml":         testManifest,
		"open.md":          openDoc,
		"server/deploy.md": deployDoc,
		"snippets/note.md": "A shared note.\n",
	})
	return root
}

func newTestPipeline(t *testing.T, root string) (*Pipeline, string) {
	t.Helper()
	out := t.TempDir()
	cfg := &config.Config{}
	cfg.Content.Root = root
	cfg.Content.FragmentsDir = "snippets"
	cfg.Content.Manifest = "docs.yml"
	cfg.Output.Directory = out
	cfg.Output.SDKPrefix = "sdks"

	src := source.NewFSSource(root, "snippets", "docs.yml")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, src, WithLogger(logger)), out
}

func TestBuildEndToEnd(t *testing.T) {
	p, out := newTestPipeline(t, fixtureTree(t))

	sum, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, sum.Outcome)
	assert.Equal(t, 2, sum.Documents)
	assert.Equal(t, 4, sum.Artifacts, "one plain page, one stub, two variants")
	assert.Empty(t, sum.FailedDocs)
	assert.Empty(t, sum.Diagnostics)

	openOut, err := os.ReadFile(filepath.Join(out, "open.md"))
	require.NoError(t, err)
	assert.Contains(t, string(openOut), "A shared note.", "embedded fragment is spliced in")
	assert.Contains(t, string(openOut), "sdk-link", "links to restricted pages carry target scope")

	_, err = os.Stat(filepath.Join(out, "server", "deploy.html"))
	assert.NoError(t, err, "restricted pages get a selector stub")

	goVariant, err := os.ReadFile(filepath.Join(out, "sdks", "go", "server", "deploy.md"))
	require.NoError(t, err)
	assert.Contains(t, string(goVariant), "Go steps.")

	pyVariant, err := os.ReadFile(filepath.Join(out, "sdks", "python", "server", "deploy.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(pyVariant), "Go steps.")
}

func TestLinksResolveAgainstSplicedAnchors(t *testing.T) {
	root := fixtureTree(t)
	writeFiles(t, root, map[string]string{
		"server/deploy.md":     "---\ntitle: Deploy\n---\n\n# Deploy\n\n{{% embed rollback %}}\n",
		"snippets/rollback.md": "## Rollback\n\nRevert the release.\n",
		"open.md":              "---\ntitle: Open\n---\n\n# Open Guide\n\nSee [rollback](server/deploy#rollback).\n",
	})
	p, _ := newTestPipeline(t, root)

	sum, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, sum.Outcome)
	assert.Empty(t, sum.Diagnostics,
		"anchors contributed by embedded fragments are visible to cross-document links")
}

func TestBuildWarningOnBrokenLink(t *testing.T) {
	root := fixtureTree(t)
	writeFiles(t, root, map[string]string{
		"open.md": "---\ntitle: Open\n---\n\n# Open Guide\n\nSee [gone](nowhere).\n",
	})
	p, out := newTestPipeline(t, root)

	sum, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, sum.Outcome)
	assert.NotEmpty(t, sum.Diagnostics["open"])
	assert.Empty(t, sum.FailedDocs)

	// Warnings never suppress output.
	_, err = os.Stat(filepath.Join(out, "open.md"))
	assert.NoError(t, err)
}

func TestBuildFailsOnScopeConflict(t *testing.T) {
	root := fixtureTree(t)
	writeFiles(t, root, map[string]string{
		"server/deploy.md": "---\ntitle: Deploy\nsdks: [java]\n---\n\n# Deploy\n",
	})
	p, out := newTestPipeline(t, root)

	sum, err := p.Build(context.Background())
	require.Error(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, OutcomeFailed, sum.Outcome)
	assert.True(t, sum.Failed())
	assert.Len(t, sum.Conflicts, 1)
	assert.Zero(t, sum.Artifacts)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "a conflicting build writes nothing")
}

func TestBuildFailsWithoutManifest(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"open.md": "# Open\n"})
	p, _ := newTestPipeline(t, root)

	sum, err := p.Build(context.Background())
	require.Error(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, OutcomeFailed, sum.Outcome)
}

func TestParseFailureIsPerDocument(t *testing.T) {
	root := fixtureTree(t)
	writeFiles(t, root, map[string]string{
		"server/deploy.md": "---\ntitle: Deploy\n---\n\n# Deploy\n\n{{% sdk go %}}\n\nnever closed\n",
	})
	p, out := newTestPipeline(t, root)

	sum, err := p.Build(context.Background())
	require.NoError(t, err, "per-document failures do not abort the build")
	assert.Equal(t, OutcomeFailed, sum.Outcome)
	assert.Equal(t, []document.Key{"server/deploy"}, sum.FailedDocs)

	// The healthy document still ships.
	_, statErr := os.Stat(filepath.Join(out, "open.md"))
	assert.NoError(t, statErr)
}

func TestInvalidationCascadesFromFragmentAndManifest(t *testing.T) {
	p, _ := newTestPipeline(t, fixtureTree(t))
	_, err := p.Build(context.Background())
	require.NoError(t, err)

	require.NotNil(t, p.Store().Peek(DocKey("open")), "documents stay cached between builds")

	invalidated := p.Store().Invalidate(FragmentKey("note"))
	assert.Contains(t, invalidated, DocKey("open"), "fragment edits reach their includers")
	assert.NotContains(t, invalidated, DocKey("server/deploy"))

	// Rebuild to repopulate, then drop the manifest: everything goes.
	_, err = p.Build(context.Background())
	require.NoError(t, err)
	invalidated = p.Store().Invalidate(ManifestKey())
	assert.Contains(t, invalidated, DocKey("open"))
	assert.Contains(t, invalidated, DocKey("server/deploy"))
}

func TestBusObservesBuildLifecycle(t *testing.T) {
	p, _ := newTestPipeline(t, fixtureTree(t))

	var mu sync.Mutex
	counts := map[string]int{}
	count := func(name string) Handler {
		// DocumentProcessed is published from parallel workers.
		return func(Event) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			return nil
		}
	}
	p.Bus().Subscribe(EventBuildStarted, count(EventBuildStarted))
	p.Bus().Subscribe(EventDocumentProcessed, count(EventDocumentProcessed))
	p.Bus().Subscribe(EventBuildCompleted, count(EventBuildCompleted))

	_, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[EventBuildStarted])
	assert.Equal(t, 1, counts[EventBuildCompleted])
	assert.Equal(t, 2, counts[EventDocumentProcessed])
}

func TestEmitRejectsStaleWrite(t *testing.T) {
	root := fixtureTree(t)
	p, out := newTestPipeline(t, root)

	manifest, err := navigation.Load(filepath.Join(root, "docs.yml"))
	require.NoError(t, err)
	tree, conflicts := scope.Resolve(manifest, scope.Declarations{})
	require.Empty(t, conflicts)

	raw, err := p.src.ReadDocument("open")
	require.NoError(t, err)
	doc, err := document.Parse("open", raw, manifest.Universe)
	require.NoError(t, err)

	// The file changes after the snapshot was taken but before the write.
	writeFiles(t, root, map[string]string{"open.md": "---\ntitle: Open\n---\n\nEdited.\n"})

	written, err := p.emitDocument(doc, &validate.Result{Blocks: doc.Blocks}, tree)
	require.NoError(t, err)
	assert.Equal(t, -1, written, "stale snapshots are dropped, not written")

	_, statErr := os.Stat(filepath.Join(out, "open.md"))
	assert.True(t, os.IsNotExist(statErr))
}
