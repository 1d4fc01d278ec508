// Package config loads and validates the docscope configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Content Content `yaml:"content"`
	Output  Output  `yaml:"output"`
	Watch   Watch   `yaml:"watch"`
	Metrics Metrics `yaml:"metrics"`
	NATS    NATS    `yaml:"nats"`
	Logging Logging `yaml:"logging"`

	// StrictReferences promotes reference diagnostics (broken links, missing
	// anchors) to hard failures for every document that does not override the
	// behavior in its frontmatter.
	StrictReferences bool `yaml:"strict_references"`
}

// Content describes where authored content lives.
type Content struct {
	// Root is the directory holding authored documents.
	Root string `yaml:"root"`
	// FragmentsDir holds reusable snippets, relative to Root unless absolute.
	FragmentsDir string `yaml:"fragments_dir"`
	// Manifest is the navigation manifest path (docs.yml).
	Manifest string `yaml:"manifest"`
	// Git optionally syncs Root from a git repository before building.
	Git *GitSource `yaml:"git,omitempty"`
}

// GitSource configures an optional git-backed content source.
type GitSource struct {
	URL    string `yaml:"url"`
	Branch string `yaml:"branch,omitempty"`
}

// Output represents output configuration
type Output struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"` // Clean output directory before build
	// SDKPrefix is the path prefix under which per-SDK variants are nested.
	SDKPrefix string `yaml:"sdk_prefix,omitempty"`
}

// Watch configures watch mode behavior.
type Watch struct {
	// QuietWindow is how long the file tree must be quiet before a rebuild.
	QuietWindow time.Duration `yaml:"quiet_window"`
	// MaxDelay bounds how long a rebuild can be postponed by a busy tree.
	MaxDelay time.Duration `yaml:"max_delay"`
	// FullRebuildInterval schedules periodic from-scratch rebuilds (0 = off).
	FullRebuildInterval time.Duration `yaml:"full_rebuild_interval"`
}

// Metrics configures the optional Prometheus endpoint (watch mode only).
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// NATS configures the optional diagnostics publisher (watch mode only).
type NATS struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Logging selects log level and output format.
type Logging struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// .env values fill the process environment before ${VAR} expansion below.
	// Missing files are fine; an explicit file that fails to parse is not.
	_ = godotenv.Load(".env", ".env.local")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Content.Root == "" {
		c.Content.Root = "./docs"
	}
	if c.Content.FragmentsDir == "" {
		c.Content.FragmentsDir = "snippets"
	}
	if c.Content.Manifest == "" {
		c.Content.Manifest = "docs.yml"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./build"
	}
	if c.Output.SDKPrefix == "" {
		c.Output.SDKPrefix = "sdks"
	}
	if c.Watch.QuietWindow <= 0 {
		c.Watch.QuietWindow = 400 * time.Millisecond
	}
	if c.Watch.MaxDelay <= 0 {
		c.Watch.MaxDelay = 5 * time.Second
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9477"
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			c.NATS.URL = "nats://127.0.0.1:4222"
		}
		if c.NATS.Subject == "" {
			c.NATS.Subject = "docscope.diagnostics"
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Content.Git != nil && c.Content.Git.URL == "" {
		return fmt.Errorf("content.git.url is required when a git source is configured")
	}
	if c.Watch.MaxDelay < c.Watch.QuietWindow {
		return fmt.Errorf("watch.max_delay (%s) must be >= watch.quiet_window (%s)",
			c.Watch.MaxDelay, c.Watch.QuietWindow)
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Content: Content{
			Root:         "./docs",
			FragmentsDir: "snippets",
			Manifest:     "docs.yml",
		},
		Output: Output{
			Directory: "./build",
			Clean:     true,
			SDKPrefix: "sdks",
		},
		Watch: Watch{
			QuietWindow: 400 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
