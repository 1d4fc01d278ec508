package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "docscope.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "output:\n  clean: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "./docs", cfg.Content.Root)
	assert.Equal(t, "snippets", cfg.Content.FragmentsDir)
	assert.Equal(t, "docs.yml", cfg.Content.Manifest)
	assert.Equal(t, "./build", cfg.Output.Directory)
	assert.Equal(t, "sdks", cfg.Output.SDKPrefix)
	assert.True(t, cfg.Output.Clean)
	assert.Equal(t, 400*time.Millisecond, cfg.Watch.QuietWindow)
	assert.Equal(t, 5*time.Second, cfg.Watch.MaxDelay)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.StrictReferences)
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
content:
  root: ./content
  fragments_dir: shared
  manifest: nav.yml
output:
  directory: ./public
  sdk_prefix: clients
watch:
  quiet_window: 1s
  max_delay: 10s
  full_rebuild_interval: 5m
strict_references: true
`))
	require.NoError(t, err)
	assert.Equal(t, "./content", cfg.Content.Root)
	assert.Equal(t, "shared", cfg.Content.FragmentsDir)
	assert.Equal(t, "nav.yml", cfg.Content.Manifest)
	assert.Equal(t, "clients", cfg.Output.SDKPrefix)
	assert.Equal(t, time.Second, cfg.Watch.QuietWindow)
	assert.Equal(t, 5*time.Minute, cfg.Watch.FullRebuildInterval)
	assert.True(t, cfg.StrictReferences)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCS_ROOT", "/srv/docs")
	cfg, err := Load(writeConfig(t, "content:\n  root: ${DOCS_ROOT}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs", cfg.Content.Root)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "content: [not a mapping\n"))
	assert.Error(t, err)
}

func TestValidateRejectsMaxDelayBelowQuietWindow(t *testing.T) {
	_, err := Load(writeConfig(t, "watch:\n  quiet_window: 2s\n  max_delay: 1s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_delay")
}

func TestValidateRequiresGitURL(t *testing.T) {
	_, err := Load(writeConfig(t, "content:\n  git:\n    branch: main\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content.git.url")
}

func TestMetricsAndNATSDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "metrics:\n  enabled: true\nnats:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.Equal(t, ":9477", cfg.Metrics.Listen)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "docscope.diagnostics", cfg.NATS.Subject)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "docscope.yaml")
	require.NoError(t, Init(p, false))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "./docs", cfg.Content.Root)
	assert.True(t, cfg.Output.Clean)

	err = Init(p, false)
	require.Error(t, err, "refuses to clobber without --force")
	assert.NoError(t, Init(p, true))
}
