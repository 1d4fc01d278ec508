// Package validate walks a document's content tree against the scoped
// manifest: it splices embedded fragments, validates and rewrites
// cross-document links, evaluates conditional SDK blocks, and enforces
// heading-id uniqueness. All passes are pure transforms over the immutable
// content tree; diagnostics are collected, never thrown.
package validate

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/docscope/internal/content"
	"git.home.luguber.info/inful/docscope/internal/document"
	"git.home.luguber.info/inful/docscope/internal/scope"
	"git.home.luguber.info/inful/docscope/internal/sdk"
	"git.home.luguber.info/inful/docscope/internal/util/sets"
)

// FragmentResolver fetches a fragment by key. Implementations are expected to
// record the dependency edge from the including document as a side effect.
type FragmentResolver interface {
	Fragment(ctx context.Context, includer document.Key, key string) (*document.Fragment, error)
}

// DocIndex answers existence and anchor questions about the whole corpus.
type DocIndex interface {
	// Anchors returns the anchor set of a document and whether it exists.
	Anchors(key document.Key) (sets.Set[string], bool)
}

// Validator holds the corpus-wide context shared by every document.
type Validator struct {
	Universe  *sdk.Universe
	Tree      *scope.ScopedTree
	Fragments FragmentResolver
	Index     DocIndex
	// StrictReferences is the corpus default for reference diagnostic
	// severity; per-document frontmatter overrides it.
	StrictReferences bool
}

// Result is the validated tree for one document plus its diagnostics.
type Result struct {
	Blocks          []content.Node
	Diagnostics     []Diagnostic
	HasConditionals bool
	// DocScope is the document's own resolved scope (nil = unrestricted).
	DocScope sets.Set[sdk.SDK]
}

// Expanded is one document's assembled tree: fragments spliced in and heading
// anchors assigned across the whole. Anchors is the post-splice id set; link
// validation for the corpus must resolve against these, not against the
// parse-time anchors of the bare document.
type Expanded struct {
	Blocks      []content.Node
	Anchors     sets.Set[string]
	Diagnostics []Diagnostic
}

// Expand runs the splice pass (embedding depth is capped at 1) and assigns
// heading anchors on the assembled tree. The document and its fragments share
// one id namespace: a generated slug that repeats across the splice boundary
// disambiguates with a counter, explicit ids are claimed verbatim.
func (v *Validator) Expand(ctx context.Context, doc *document.Document) (*Expanded, error) {
	exp := &Expanded{}
	blocks, err := v.expandEmbeds(ctx, doc, doc.Blocks, v.referenceSeverity(doc), &exp.Diagnostics)
	if err != nil {
		return nil, err
	}
	blocks, anchors := content.ReassignAnchors(blocks)
	exp.Blocks = blocks
	exp.Anchors = sets.New(anchors...)
	return exp, nil
}

// Validate runs every pass for one document and returns the core tree.
// Per-SDK variant trees are derived afterwards with FilterForSDK. The
// pipeline expands the whole corpus first and calls Finish so cross-document
// links see post-splice anchors; Validate is the single-document composition.
func (v *Validator) Validate(ctx context.Context, doc *document.Document) (*Result, error) {
	exp, err := v.Expand(ctx, doc)
	if err != nil {
		return nil, err
	}
	return v.Finish(doc, exp), nil
}

// Finish runs the post-expansion passes over an expanded document.
func (v *Validator) Finish(doc *document.Document, exp *Expanded) *Result {
	res := &Result{}
	refSeverity := v.referenceSeverity(doc)

	manifestScope, inManifest := v.Tree.DocScope(doc.Key)
	if !inManifest {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Code:     CodeDocMissingFromManifest,
			Doc:      doc.Key,
			Message:  "document is not referenced by the navigation manifest",
			Severity: SeverityWarning,
		})
	}
	res.Diagnostics = append(res.Diagnostics, exp.Diagnostics...)

	// Pass 2: link validation and SDK-aware rewriting.
	blocks := v.validateLinks(doc, exp.Blocks, exp.Anchors, refSeverity, res)

	// Pass 3: conditional-block filter validation.
	content.WalkBlocks(blocks, func(n content.Node) {
		cond, ok := n.(*content.Conditional)
		if !ok {
			return
		}
		res.HasConditionals = true
		v.checkConditional(doc, cond, manifestScope, inManifest, res)
	})

	// Pass 4: heading-id uniqueness on the fully expanded tree. Generated
	// slugs are counter-disambiguated at assignment, so only explicit {#id}
	// collisions can remain. Apparent duplicates across conditional branches
	// are not real duplicates, since only one branch survives in any rendered
	// variant.
	if !res.HasConditionals {
		seen := sets.New[string]()
		content.WalkBlocks(blocks, func(n content.Node) {
			h, ok := n.(*content.Heading)
			if !ok {
				return
			}
			if seen.Has(h.ID) {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					Code:     CodeDuplicateHeadingID,
					Doc:      doc.Key,
					Message:  fmt.Sprintf("duplicate heading id %q", h.ID),
					Severity: SeverityFailure,
				})
			}
			seen.Add(h.ID)
		})
	}

	res.Blocks = blocks
	res.DocScope = doc.DeclaredSDKs
	return res
}

func (v *Validator) referenceSeverity(doc *document.Document) Severity {
	strict := v.StrictReferences
	if doc.Frontmatter.StrictLinks != nil {
		strict = *doc.Frontmatter.StrictLinks
	}
	if strict {
		return SeverityFailure
	}
	return SeverityWarning
}

// expandEmbeds splices fragment trees in place of embed nodes. An embed found
// inside an already-spliced fragment is a hard failure.
func (v *Validator) expandEmbeds(ctx context.Context, doc *document.Document, blocks []content.Node, refSeverity Severity, diags *[]Diagnostic) ([]content.Node, error) {
	var expand func(nodes []content.Node) ([]content.Node, error)
	expand = func(nodes []content.Node) ([]content.Node, error) {
		out := make([]content.Node, 0, len(nodes))
		for _, n := range nodes {
			switch b := n.(type) {
			case *content.Embed:
				frag, err := v.Fragments.Fragment(ctx, doc.Key, b.Fragment)
				if err != nil {
					*diags = append(*diags, Diagnostic{
						Code:     CodeFragmentNotFound,
						Doc:      doc.Key,
						Message:  fmt.Sprintf("embedded fragment %q: %v", b.Fragment, err),
						Severity: refSeverity,
					})
					continue
				}
				if nested := findEmbed(frag.Blocks); nested != "" {
					*diags = append(*diags, Diagnostic{
						Code:     CodeFragmentInFragment,
						Doc:      doc.Key,
						Message:  fmt.Sprintf("fragment %q embeds %q; fragments must not embed fragments", b.Fragment, nested),
						Severity: SeverityFailure,
					})
					continue
				}
				out = append(out, frag.Blocks...)
			case *content.Conditional:
				children, err := expand(b.Children)
				if err != nil {
					return nil, err
				}
				out = append(out, &content.Conditional{SDKs: b.SDKs, Negated: b.Negated, Children: children})
			case *content.Blockquote:
				children, err := expand(b.Children)
				if err != nil {
					return nil, err
				}
				out = append(out, &content.Blockquote{Children: children})
			case *content.List:
				items := make([][]content.Node, len(b.Items))
				for i, item := range b.Items {
					expanded, err := expand(item)
					if err != nil {
						return nil, err
					}
					items[i] = expanded
				}
				out = append(out, &content.List{Ordered: b.Ordered, Start: b.Start, Items: items})
			default:
				out = append(out, n)
			}
		}
		return out, nil
	}
	return expand(blocks)
}

func findEmbed(blocks []content.Node) string {
	var found string
	content.WalkBlocks(blocks, func(n content.Node) {
		if e, ok := n.(*content.Embed); ok && found == "" {
			found = e.Fragment
		}
	})
	return found
}

// validateLinks resolves every internal link against the corpus index and
// rewrites links to restricted documents into SDK-aware links.
func (v *Validator) validateLinks(doc *document.Document, blocks []content.Node, selfAnchors sets.Set[string], refSeverity Severity, res *Result) []content.Node {
	return content.MapInlines(blocks, func(in content.Inline) content.Inline {
		link, ok := in.(*content.Link)
		if !ok || link.External {
			return in
		}

		// Same-document anchor link.
		if link.Target == "" {
			if link.Anchor != "" && !selfAnchors.Has(link.Anchor) {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					Code:     CodeLinkHashNotFound,
					Doc:      doc.Key,
					Message:  fmt.Sprintf("anchor #%s not found in this document", link.Anchor),
					Severity: refSeverity,
				})
			}
			return in
		}

		target := NormalizeKey(link.Target)
		anchors, exists := v.Index.Anchors(target)
		if !exists {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:     CodeLinkDocNotFound,
				Doc:      doc.Key,
				Message:  fmt.Sprintf("link target %q does not exist", target),
				Severity: refSeverity,
			})
			return in
		}
		if link.Anchor != "" && !anchors.Has(link.Anchor) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:     CodeLinkHashNotFound,
				Doc:      doc.Key,
				Message:  fmt.Sprintf("anchor #%s not found in %q", link.Anchor, target),
				Severity: refSeverity,
			})
		}

		rewritten := &content.Link{
			Target:   target,
			Anchor:   link.Anchor,
			Children: link.Children,
		}
		if targetScope, ok := v.Tree.DocScope(target); ok && targetScope != nil {
			// The rendering layer routes the reader to the right variant.
			rewritten.SDKs = sets.Sorted(targetScope)
		}
		return rewritten
	})
}

// checkConditional validates one conditional block's filter against the
// universe, the document's own scope, and the manifest scope.
func (v *Validator) checkConditional(doc *document.Document, cond *content.Conditional, manifestScope sets.Set[sdk.SDK], inManifest bool, res *Result) {
	for _, id := range cond.SDKs {
		if !v.Universe.Contains(id) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:     CodeUnknownSDKFilter,
				Doc:      doc.Key,
				Message:  fmt.Sprintf("conditional block references unknown sdk %q", id),
				Severity: SeverityFailure,
			})
			continue
		}
		if doc.DeclaredSDKs != nil && !doc.DeclaredSDKs.Has(id) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:     CodeSDKNotInFrontmatter,
				Doc:      doc.Key,
				Message:  fmt.Sprintf("conditional block references sdk %q outside the document's declared scope [%s]", id, sdk.Format(doc.DeclaredSDKs)),
				Severity: SeverityFailure,
			})
		}
		if inManifest && manifestScope != nil && !manifestScope.Has(id) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:     CodeSDKNotInManifest,
				Doc:      doc.Key,
				Message:  fmt.Sprintf("conditional block references sdk %q outside the manifest scope [%s]", id, sdk.Format(manifestScope)),
				Severity: SeverityFailure,
			})
		}
	}
}

// FilterForSDK derives the variant tree for one SDK target: conditional
// blocks whose filter matches are unwrapped into their children, the rest are
// removed. Pure function; the input tree is not modified.
func FilterForSDK(blocks []content.Node, target sdk.SDK) []content.Node {
	out := make([]content.Node, 0, len(blocks))
	for _, n := range blocks {
		switch b := n.(type) {
		case *content.Conditional:
			if conditionalMatches(b, target) {
				out = append(out, FilterForSDK(b.Children, target)...)
			}
		case *content.Blockquote:
			out = append(out, &content.Blockquote{Children: FilterForSDK(b.Children, target)})
		case *content.List:
			items := make([][]content.Node, len(b.Items))
			for i, item := range b.Items {
				items[i] = FilterForSDK(item, target)
			}
			out = append(out, &content.List{Ordered: b.Ordered, Start: b.Start, Items: items})
		default:
			out = append(out, n)
		}
	}
	return out
}

func conditionalMatches(c *content.Conditional, target sdk.SDK) bool {
	member := false
	for _, id := range c.SDKs {
		if id == target {
			member = true
			break
		}
	}
	return member != c.Negated
}

// NormalizeKey canonicalizes a link destination to a document key: leading
// "./" and "/" stripped, ".md" suffix dropped, backslashes normalized.
func NormalizeKey(target string) document.Key {
	k := strings.ReplaceAll(target, "\\", "/")
	k = strings.TrimPrefix(k, "./")
	k = strings.TrimPrefix(k, "/")
	k = strings.TrimSuffix(k, "/")
	k = strings.TrimSuffix(k, ".md")
	return k
}
