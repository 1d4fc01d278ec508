// Package emit turns validated content trees into output artifacts: plain
// Markdown for unrestricted documents, and for restricted documents a landing
// stub plus one Markdown variant per SDK in the document's scope.
package emit

import (
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docscope/internal/content"
	"git.home.luguber.info/inful/docscope/internal/document"
	"git.home.luguber.info/inful/docscope/internal/logfields"
	"git.home.luguber.info/inful/docscope/internal/sdk"
	"git.home.luguber.info/inful/docscope/internal/util/sets"
	"git.home.luguber.info/inful/docscope/internal/validate"
)

// Artifact is one output file, addressed relative to the output root.
type Artifact struct {
	// Path is slash-separated and relative to the output directory.
	Path    string
	Content []byte
}

// Emitter derives and writes artifacts. SDKPrefix is the directory under the
// output root that holds per-SDK variant trees, e.g. "sdks/go/guides/auth.md".
type Emitter struct {
	OutDir    string
	SDKPrefix string
	Logger    *slog.Logger
}

// NewEmitter creates an emitter rooted at outDir.
func NewEmitter(outDir, sdkPrefix string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{OutDir: outDir, SDKPrefix: sdkPrefix, Logger: logger}
}

// Artifacts derives every output file for one validated document. scope is the
// document's effective resolved scope (nil = unrestricted). The returned
// slice is deterministic: core/stub first, then variants in SDK order.
func (e *Emitter) Artifacts(doc *document.Document, res *validate.Result, scope sets.Set[sdk.SDK]) ([]Artifact, error) {
	if scope == nil {
		return []Artifact{{
			Path:    doc.Key + ".md",
			Content: renderDocument(doc.Frontmatter, res.Blocks, nil),
		}}, nil
	}

	targets := sets.Sorted(scope)
	stub, err := renderStub(doc, targets, e.SDKPrefix)
	if err != nil {
		return nil, fmt.Errorf("stub for %s: %w", doc.Key, err)
	}
	artifacts := []Artifact{{Path: doc.Key + ".html", Content: stub}}
	for _, target := range targets {
		variant := validate.FilterForSDK(res.Blocks, target)
		artifacts = append(artifacts, Artifact{
			Path:    path.Join(e.SDKPrefix, string(target), doc.Key+".md"),
			Content: renderDocument(doc.Frontmatter, variant, []sdk.SDK{target}),
		})
	}
	return artifacts, nil
}

// Write persists artifacts under the output root, creating parent directories
// as needed. Writes go through a temp file and rename so a crash never leaves
// a half-written artifact behind.
func (e *Emitter) Write(artifacts []Artifact) error {
	for _, a := range artifacts {
		dst := filepath.Join(e.OutDir, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create output dir for %s: %w", a.Path, err)
		}
		tmp := dst + ".tmp"
		if err := os.WriteFile(tmp, a.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", a.Path, err)
		}
		if err := os.Rename(tmp, dst); err != nil {
			return fmt.Errorf("finalize %s: %w", a.Path, err)
		}
		e.Logger.Debug("Wrote artifact", logfields.Path(a.Path), logfields.Count(len(a.Content)))
	}
	return nil
}

// Clean removes the output directory tree. Called before a full build when
// output.clean is set.
func (e *Emitter) Clean() error {
	if err := os.RemoveAll(e.OutDir); err != nil {
		return fmt.Errorf("clean output dir: %w", err)
	}
	return nil
}

// renderDocument emits the frontmatter header followed by the rendered body.
// Variant outputs carry their SDK target in the header so downstream renderers
// do not have to infer it from the path.
func renderDocument(fm document.Frontmatter, blocks []content.Node, variant []sdk.SDK) []byte {
	header := outputFrontmatter{
		Title:       fm.Title,
		Description: fm.Description,
	}
	for _, id := range variant {
		header.SDK = string(id)
	}
	raw, err := yaml.Marshal(header)
	if err != nil {
		// Frontmatter is plain strings; marshaling cannot fail in practice.
		raw = []byte("title: " + fm.Title + "\n")
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(raw)
	b.WriteString("---\n\n")
	b.WriteString(RenderMarkdown(blocks))
	return []byte(b.String())
}

type outputFrontmatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	SDK         string `yaml:"sdk,omitempty"`
}

var stubTemplate = template.Must(template.New("stub").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="robots" content="noindex">
</head>
<body>
<h1>{{.Title}}</h1>
<p>This page is specific to the following SDKs:</p>
<ul>
{{- range .Variants}}
<li><a href="{{.Href}}">{{.Label}}</a></li>
{{- end}}
</ul>
</body>
</html>
`))

type stubVariant struct {
	Label string
	Href  string
}

type stubData struct {
	Title    string
	Variants []stubVariant
}

// renderStub builds the landing page that stands in for a restricted document
// at its core path and points readers to the per-SDK variants.
func renderStub(doc *document.Document, targets []sdk.SDK, sdkPrefix string) ([]byte, error) {
	data := stubData{Title: doc.Frontmatter.Title}
	if data.Title == "" {
		data.Title = doc.Key
	}
	depth := strings.Count(doc.Key, "/")
	up := strings.Repeat("../", depth)
	for _, target := range targets {
		data.Variants = append(data.Variants, stubVariant{
			Label: string(target),
			Href:  up + path.Join(sdkPrefix, string(target), doc.Key+".md"),
		})
	}
	var b strings.Builder
	if err := stubTemplate.Execute(&b, data); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
