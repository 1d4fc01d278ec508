package content

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/docscope/internal/sdk"
)

// Directive paragraphs. Embeds and conditional markers are authored as
// shortcode-style paragraphs so they survive any CommonMark renderer:
//
//	{{% embed snippets/install %}}
//	{{% sdk go,python %}} ... {{% /sdk %}}
//	{{% sdk not java %}} ... {{% /sdk %}}
var (
	embedRe     = regexp.MustCompile(`^\{\{%\s*embed\s+(\S+)\s*%\}\}$`)
	sdkOpenRe   = regexp.MustCompile(`^\{\{%\s*sdk\s+(not\s+)?([a-z0-9_,\- ]+?)\s*%\}\}$`)
	sdkCloseRe  = regexp.MustCompile(`^\{\{%\s*/sdk\s*%\}\}$`)
	directiveRe = regexp.MustCompile(`^\{\{%.*%\}\}$`)
)

// ParseResult is the outcome of parsing one Markdown body.
type ParseResult struct {
	Blocks []Node
	// Anchors lists every heading anchor id in document order, across all
	// conditional branches.
	Anchors []string
}

// ErrUnbalancedConditional reports sdk marker pairing problems.
type ErrUnbalancedConditional struct {
	Detail string
}

func (e *ErrUnbalancedConditional) Error() string {
	return "unbalanced sdk conditional markers: " + e.Detail
}

// ErrMalformedDirective reports a shortcode-style paragraph that matches no
// known directive.
type ErrMalformedDirective struct {
	Text string
}

func (e *ErrMalformedDirective) Error() string {
	return fmt.Sprintf("malformed directive %q", e.Text)
}

// ParseBody parses a Markdown body (frontmatter already removed) into the
// content tree and assigns heading anchor ids.
func ParseBody(body []byte) (*ParseResult, error) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))

	flat, err := convertBlocks(root, body)
	if err != nil {
		return nil, err
	}

	blocks, err := groupConditionals(flat)
	if err != nil {
		return nil, err
	}

	anchors := assignAnchors(blocks)
	return &ParseResult{Blocks: blocks, Anchors: anchors}, nil
}

func convertBlocks(parent gmast.Node, source []byte) ([]Node, error) {
	var out []Node
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *gmast.Heading:
			inlines := convertInlines(v, source)
			out = append(out, &Heading{Level: v.Level, Children: inlines})
		case *gmast.Paragraph:
			node, err := paragraphOrDirective(v, source)
			if err != nil {
				return nil, err
			}
			out = append(out, node)
		case *gmast.TextBlock:
			out = append(out, &Paragraph{Children: convertInlines(v, source)})
		case *gmast.FencedCodeBlock:
			info := ""
			if v.Info != nil {
				info = string(v.Info.Segment.Value(source))
			}
			out = append(out, &CodeBlock{Info: info, Literal: blockLines(v, source)})
		case *gmast.CodeBlock:
			out = append(out, &CodeBlock{Literal: blockLines(v, source)})
		case *gmast.List:
			list := &List{Ordered: v.IsOrdered(), Start: v.Start}
			for item := v.FirstChild(); item != nil; item = item.NextSibling() {
				children, err := convertBlocks(item, source)
				if err != nil {
					return nil, err
				}
				list.Items = append(list.Items, children)
			}
			out = append(out, list)
		case *gmast.Blockquote:
			children, err := convertBlocks(v, source)
			if err != nil {
				return nil, err
			}
			out = append(out, &Blockquote{Children: children})
		case *gmast.ThematicBreak:
			out = append(out, &ThematicBreak{})
		case *gmast.HTMLBlock:
			out = append(out, &HTMLBlock{Literal: blockLines(v, source)})
		default:
			// Unknown block kinds degrade to a paragraph of their text.
			out = append(out, &Paragraph{Children: convertInlines(v, source)})
		}
	}
	return out, nil
}

// paragraphOrDirective recognizes directive paragraphs; everything else is a
// plain paragraph. Directive markers are returned as marker nodes and paired
// up afterwards by groupConditionals.
func paragraphOrDirective(p *gmast.Paragraph, source []byte) (Node, error) {
	inlines := convertInlines(p, source)
	trimmed := strings.TrimSpace(InlineText(inlines))

	if m := embedRe.FindStringSubmatch(trimmed); m != nil {
		return &Embed{Fragment: m[1]}, nil
	}
	if m := sdkOpenRe.FindStringSubmatch(strings.ToLower(trimmed)); m != nil {
		filter, _ := splitFilter(m[2])
		return &conditionalOpen{sdks: filter, negated: m[1] != ""}, nil
	}
	if sdkCloseRe.MatchString(trimmed) {
		return &conditionalClose{}, nil
	}
	if directiveRe.MatchString(trimmed) {
		return nil, &ErrMalformedDirective{Text: trimmed}
	}
	return &Paragraph{Children: inlines}, nil
}

func splitFilter(raw string) ([]sdk.SDK, bool) {
	var out []sdk.SDK
	for _, f := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, sdk.SDK(f))
		}
	}
	return out, len(out) > 0
}

// Marker nodes only exist between convertBlocks and groupConditionals.
type conditionalOpen struct {
	sdks    []sdk.SDK
	negated bool
}
type conditionalClose struct{}

func (*conditionalOpen) blockNode()  {}
func (*conditionalClose) blockNode() {}

// groupConditionals nests the blocks between paired sdk markers into
// Conditional nodes. Markers may nest; pairing is strictly lexical.
func groupConditionals(flat []Node) ([]Node, error) {
	type frame struct {
		open   *conditionalOpen
		blocks []Node
	}
	stack := []frame{{}}

	push := func(n Node) {
		top := &stack[len(stack)-1]
		top.blocks = append(top.blocks, n)
	}

	for _, n := range flat {
		switch v := n.(type) {
		case *conditionalOpen:
			stack = append(stack, frame{open: v})
		case *conditionalClose:
			if len(stack) == 1 {
				return nil, &ErrUnbalancedConditional{Detail: "close marker without matching open"}
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			push(&Conditional{SDKs: top.open.sdks, Negated: top.open.negated, Children: top.blocks})
		default:
			push(n)
		}
	}
	if len(stack) != 1 {
		return nil, &ErrUnbalancedConditional{Detail: "open marker never closed"}
	}
	return stack[0].blocks, nil
}

// explicitIDRe matches a trailing {#custom-id} heading override.
var explicitIDRe = regexp.MustCompile(`\s*\{#([A-Za-z][A-Za-z0-9_\-]*)\}\s*$`)

// assignAnchors gives every heading an anchor id in document order. Explicit
// overrides are honored and removed from the rendered heading text; generated
// slugs are counter-disambiguated within the document.
func assignAnchors(blocks []Node) []string {
	alloc := NewAnchorAllocator()
	var anchors []string

	WalkBlocks(blocks, func(n Node) {
		h, ok := n.(*Heading)
		if !ok {
			return
		}
		txt := InlineText(h.Children)
		if m := explicitIDRe.FindStringSubmatch(txt); m != nil {
			h.ID = m[1]
			h.Explicit = true
			h.Children = stripExplicitID(h.Children)
			alloc.Claim(h.ID)
		} else {
			h.ID = alloc.Allocate(Slugify(txt))
		}
		anchors = append(anchors, h.ID)
	})
	return anchors
}

// ReassignAnchors re-derives every heading anchor across an assembled tree,
// returning a new tree and the ids in document order. Parse-time ids are
// provisional: once fragments are spliced in, the document and its fragments
// share one id namespace, so generated slugs are re-allocated with one counter
// across the whole tree while explicit ids are claimed verbatim. Heading nodes
// are copied, never mutated; spliced fragment trees stay shareable.
func ReassignAnchors(blocks []Node) ([]Node, []string) {
	alloc := NewAnchorAllocator()
	var anchors []string
	rebuilt := MapBlocks(blocks, func(n Node) (Node, bool) {
		h, ok := n.(*Heading)
		if !ok {
			return nil, true
		}
		id := h.ID
		if h.Explicit {
			alloc.Claim(id)
		} else {
			id = alloc.Allocate(Slugify(InlineText(h.Children)))
		}
		anchors = append(anchors, id)
		return &Heading{Level: h.Level, ID: id, Explicit: h.Explicit, Children: h.Children}, false
	})
	return rebuilt, anchors
}

// stripExplicitID removes the {#id} suffix from the heading's trailing text.
func stripExplicitID(inlines []Inline) []Inline {
	if len(inlines) == 0 {
		return inlines
	}
	out := append([]Inline(nil), inlines...)
	if t, ok := out[len(out)-1].(*Text); ok {
		stripped := explicitIDRe.ReplaceAllString(t.Value, "")
		if strings.TrimSpace(stripped) == "" {
			return out[:len(out)-1]
		}
		out[len(out)-1] = &Text{Value: strings.TrimRight(stripped, " ")}
	}
	return out
}

func convertInlines(parent gmast.Node, source []byte) []Inline {
	var out []Inline
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *gmast.Text:
			val := string(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				val += "\n"
			}
			out = append(out, &Text{Value: val})
		case *gmast.String:
			out = append(out, &Text{Value: string(v.Value)})
		case *gmast.CodeSpan:
			out = append(out, &CodeSpan{Literal: nodeText(v, source)})
		case *gmast.Emphasis:
			out = append(out, &Emphasis{Level: v.Level, Children: convertInlines(v, source)})
		case *gmast.Link:
			out = append(out, newLink(string(v.Destination), convertInlines(v, source)))
		case *gmast.AutoLink:
			url := string(v.URL(source))
			out = append(out, newLink(url, []Inline{&Text{Value: url}}))
		case *gmast.Image:
			out = append(out, &Image{Destination: string(v.Destination), Alt: nodeText(v, source)})
		default:
			if txt := nodeText(v, source); txt != "" {
				out = append(out, &Text{Value: txt})
			}
		}
	}
	return out
}

// newLink classifies a destination as external (scheme/protocol-relative/
// pure-anchor handled by the validator as same-document) or internal, and
// splits the internal form doc/key#anchor.
func newLink(dest string, children []Inline) *Link {
	if isExternal(dest) {
		return &Link{Target: dest, External: true, Children: children}
	}
	target, anchor, _ := strings.Cut(dest, "#")
	return &Link{Target: target, Anchor: anchor, Children: children}
}

func isExternal(dest string) bool {
	if strings.HasPrefix(dest, "//") {
		return true
	}
	if i := strings.Index(dest, "://"); i > 0 {
		return true
	}
	return strings.HasPrefix(dest, "mailto:") || strings.HasPrefix(dest, "tel:")
}

// nodeText collects the raw source text under an inline node.
func nodeText(n gmast.Node, source []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(child gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if t, ok := child.(*gmast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
		if s, ok := child.(*gmast.String); ok {
			b.Write(s.Value)
		}
		return gmast.WalkContinue, nil
	})
	return b.String()
}

// blockLines concatenates the raw source lines of a block node.
func blockLines(n gmast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}
