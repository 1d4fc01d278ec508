// Package content models parsed document bodies as a closed tagged-variant
// tree. Trees are immutable by convention: every transform is a map/fold that
// returns a new tree, never an in-place mutation.
package content

import (
	"git.home.luguber.info/inful/docscope/internal/sdk"
)

// Node is a block-level content node.
type Node interface{ blockNode() }

// Inline is an inline-level content node.
type Inline interface{ inlineNode() }

// Heading is a section heading. ID is the anchor id: an explicit override
// when the text carried a {#id} suffix, else a generated slug. Generated ids
// are re-derived after fragment splice (see ReassignAnchors).
type Heading struct {
	Level    int
	ID       string
	Explicit bool // ID came from an explicit {#id} override
	Children []Inline
}

// Paragraph is a run of inline content.
type Paragraph struct {
	Children []Inline
}

// CodeBlock is a fenced or indented code block.
type CodeBlock struct {
	Info    string
	Literal string
}

// List is an ordered or unordered list.
type List struct {
	Ordered bool
	Start   int
	Items   [][]Node
}

// Blockquote wraps nested block content.
type Blockquote struct {
	Children []Node
}

// ThematicBreak is a horizontal rule.
type ThematicBreak struct{}

// HTMLBlock is raw block HTML, passed through untouched.
type HTMLBlock struct {
	Literal string
}

// Embed references a reusable fragment by key. The validator splices the
// fragment's tree in place of this node.
type Embed struct {
	Fragment string
}

// Conditional is a content region visible only for a subset of SDKs.
// Negated inverts the filter ("every SDK except these").
type Conditional struct {
	SDKs     []sdk.SDK
	Negated  bool
	Children []Node
}

func (*Heading) blockNode()       {}
func (*Paragraph) blockNode()     {}
func (*CodeBlock) blockNode()     {}
func (*List) blockNode()          {}
func (*Blockquote) blockNode()    {}
func (*ThematicBreak) blockNode() {}
func (*HTMLBlock) blockNode()     {}
func (*Embed) blockNode()         {}
func (*Conditional) blockNode()   {}

// Text is a plain text run.
type Text struct {
	Value string
}

// CodeSpan is inline code.
type CodeSpan struct {
	Literal string
}

// Emphasis is emphasized inline content; Level 1 renders as *x*, 2 as **x**.
type Emphasis struct {
	Level    int
	Children []Inline
}

// Link is a document link. Internal links carry a document key in Target and
// an optional Anchor; External links keep the full destination in Target.
// SDKs is populated by the validator when the target document is restricted,
// so the rendering layer can route readers to the right variant.
type Link struct {
	Target   string
	Anchor   string
	External bool
	SDKs     []sdk.SDK
	Children []Inline
}

// Image is an inline image reference.
type Image struct {
	Destination string
	Alt         string
}

func (*Text) inlineNode()     {}
func (*CodeSpan) inlineNode() {}
func (*Emphasis) inlineNode() {}
func (*Link) inlineNode()     {}
func (*Image) inlineNode()    {}

// MapBlocks rebuilds a block list by applying fn to every node, recursing into
// containers. fn returning (nil, false) drops the node; returning a node and
// false replaces it without descending further; (nil, true) keeps the node and
// descends into its children.
func MapBlocks(nodes []Node, fn func(Node) (Node, bool)) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		replacement, descend := fn(n)
		if !descend {
			if replacement != nil {
				out = append(out, replacement)
			}
			continue
		}
		switch v := n.(type) {
		case *Blockquote:
			out = append(out, &Blockquote{Children: MapBlocks(v.Children, fn)})
		case *Conditional:
			out = append(out, &Conditional{
				SDKs:     v.SDKs,
				Negated:  v.Negated,
				Children: MapBlocks(v.Children, fn),
			})
		case *List:
			items := make([][]Node, len(v.Items))
			for i, item := range v.Items {
				items[i] = MapBlocks(item, fn)
			}
			out = append(out, &List{Ordered: v.Ordered, Start: v.Start, Items: items})
		default:
			out = append(out, n)
		}
	}
	return out
}

// WalkBlocks visits every block node depth-first, containers before children.
func WalkBlocks(nodes []Node, visit func(Node)) {
	for _, n := range nodes {
		visit(n)
		switch v := n.(type) {
		case *Blockquote:
			WalkBlocks(v.Children, visit)
		case *Conditional:
			WalkBlocks(v.Children, visit)
		case *List:
			for _, item := range v.Items {
				WalkBlocks(item, visit)
			}
		}
	}
}

// MapInlines rebuilds the inline content of every block by applying fn to each
// inline node (recursing through emphasis). Block structure is preserved.
func MapInlines(nodes []Node, fn func(Inline) Inline) []Node {
	return MapBlocks(nodes, func(n Node) (Node, bool) {
		switch v := n.(type) {
		case *Heading:
			return &Heading{Level: v.Level, ID: v.ID, Explicit: v.Explicit, Children: mapInlineList(v.Children, fn)}, false
		case *Paragraph:
			return &Paragraph{Children: mapInlineList(v.Children, fn)}, false
		default:
			return nil, true
		}
	})
}

func mapInlineList(inlines []Inline, fn func(Inline) Inline) []Inline {
	out := make([]Inline, 0, len(inlines))
	for _, in := range inlines {
		if em, ok := in.(*Emphasis); ok {
			out = append(out, fn(&Emphasis{Level: em.Level, Children: mapInlineList(em.Children, fn)}))
			continue
		}
		out = append(out, fn(in))
	}
	return out
}

// InlineText flattens inline content to plain text (link labels included,
// markup dropped). Used for slugs and diagnostics.
func InlineText(inlines []Inline) string {
	var out string
	for _, in := range inlines {
		switch v := in.(type) {
		case *Text:
			out += v.Value
		case *CodeSpan:
			out += v.Literal
		case *Emphasis:
			out += InlineText(v.Children)
		case *Link:
			out += InlineText(v.Children)
		case *Image:
			out += v.Alt
		}
	}
	return out
}
