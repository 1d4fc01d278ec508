// Package document models parsed documents and fragments: frontmatter,
// content tree, anchors, and a canonical content fingerprint. Values are
// immutable once built; reprocessing always produces a fresh value.
package document

import (
	"bytes"
	"fmt"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docscope/internal/content"
	"git.home.luguber.info/inful/docscope/internal/sdk"
	"git.home.luguber.info/inful/docscope/internal/util/sets"
)

// Key identifies a document or fragment by its path-like key, e.g.
// "guides/quickstart". Keys have no extension and use forward slashes.
type Key = string

// Frontmatter is the typed YAML header of a document.
type Frontmatter struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description,omitempty"`
	SDKs        []string `yaml:"sdks,omitempty"`
	// StrictLinks overrides the corpus-wide strict_references setting for
	// this document when present.
	StrictLinks *bool `yaml:"strict_links,omitempty"`
}

// Document is one authored page.
type Document struct {
	Key         Key
	Frontmatter Frontmatter
	Blocks      []content.Node
	// Anchors holds the parse-time heading anchor ids, document order, all
	// branches. Ids are provisional: the validator re-derives them once
	// fragments are spliced in, so the document and its fragments share one
	// id namespace.
	Anchors sets.Set[string]
	// DeclaredSDKs is the parsed frontmatter sdks field; nil when the
	// document is unrestricted, empty (non-nil) when the field was present
	// but named no recognized SDK — the resolver rejects that case.
	DeclaredSDKs sets.Set[sdk.SDK]
	// UnknownSDKs lists declared identifiers outside the universe.
	UnknownSDKs []string
	// Fingerprint is the canonical content hash used for cache identity and
	// stale-write rejection.
	Fingerprint string
}

// Fragment is a reusable snippet. Fragments carry no frontmatter and no SDK
// scope of their own.
type Fragment struct {
	Key         Key
	Blocks      []content.Node
	Fingerprint string
}

// ContentFingerprint returns the canonical content hash of the document.
func (d *Document) ContentFingerprint() string { return d.Fingerprint }

// ContentFingerprint returns the canonical content hash of the fragment.
func (f *Fragment) ContentFingerprint() string { return f.Fingerprint }

// Parse builds a Document from raw file content.
func Parse(key Key, raw []byte, universe *sdk.Universe) (*Document, error) {
	fmRaw, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", key, err)
	}

	var fm Frontmatter
	if len(fmRaw) > 0 {
		if err := yaml.Unmarshal(fmRaw, &fm); err != nil {
			return nil, fmt.Errorf("document %s: invalid frontmatter: %w", key, err)
		}
	}

	parsed, err := content.ParseBody(body)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", key, err)
	}

	doc := &Document{
		Key:         key,
		Frontmatter: fm,
		Blocks:      parsed.Blocks,
		Anchors:     sets.New(parsed.Anchors...),
		Fingerprint: mdfp.CalculateFingerprintFromParts(string(fmRaw), string(body)),
	}
	if fm.SDKs != nil {
		declared, unknown := universe.ParseList(fm.SDKs)
		doc.DeclaredSDKs = declared
		doc.UnknownSDKs = unknown
	}
	return doc, nil
}

// ParseFragment builds a Fragment from raw file content. Fragments have no
// frontmatter; a YAML header is rejected rather than silently swallowed.
func ParseFragment(key Key, raw []byte) (*Fragment, error) {
	if fmRaw, _, err := splitFrontmatter(raw); err != nil {
		return nil, fmt.Errorf("fragment %s: %w", key, err)
	} else if len(fmRaw) > 0 {
		return nil, fmt.Errorf("fragment %s: fragments must not carry frontmatter", key)
	}

	parsed, err := content.ParseBody(raw)
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", key, err)
	}
	return &Fragment{
		Key:         key,
		Blocks:      parsed.Blocks,
		Fingerprint: mdfp.CalculateFingerprintFromParts("", string(raw)),
	}, nil
}

// Fingerprint computes the canonical content hash of raw file content without
// a full parse. Used for stale-write rejection: the hash of the file as it is
// on disk now, compared to the hash the build snapshot was computed from.
func Fingerprint(raw []byte) string {
	fmRaw, body, err := splitFrontmatter(raw)
	if err != nil {
		// Unparseable content can never match a parsed snapshot.
		return mdfp.CalculateFingerprintFromParts("", string(raw))
	}
	return mdfp.CalculateFingerprintFromParts(string(fmRaw), string(body))
}

var fmDelim = []byte("---\n")

// splitFrontmatter separates a leading `---` YAML block from the body.
// Returns nil frontmatter when the document has none.
func splitFrontmatter(raw []byte) (frontmatter, body []byte, err error) {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, fmDelim) {
		return nil, normalized, nil
	}
	rest := normalized[len(fmDelim):]
	if bytes.HasPrefix(rest, fmDelim) { // empty frontmatter: "---\n---\n"
		return nil, rest[len(fmDelim):], nil
	}
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		return nil, nil, fmt.Errorf("frontmatter opened but never closed")
	}
	return rest[:end+1], rest[end+len("\n---\n"):], nil
}
