package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docscope/internal/sdk"
)

func TestParseBodyBasicBlocks(t *testing.T) {
	body := []byte(`# Overview

Some *text* with a [link](guides/auth#tokens).

` + "```go\nfmt.Println(\"hi\")\n```" + `

- one
- two
`)
	res, err := ParseBody(body)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 4)

	h, ok := res.Blocks[0].(*Heading)
	require.True(t, ok)
	assert.Equal(t, 1, h.Level)
	assert.Equal(t, "overview", h.ID)
	assert.False(t, h.Explicit)

	p, ok := res.Blocks[1].(*Paragraph)
	require.True(t, ok)
	var link *Link
	for _, in := range p.Children {
		if l, isLink := in.(*Link); isLink {
			link = l
		}
	}
	require.NotNil(t, link)
	assert.Equal(t, "guides/auth", link.Target)
	assert.Equal(t, "tokens", link.Anchor)
	assert.False(t, link.External)

	cb, ok := res.Blocks[2].(*CodeBlock)
	require.True(t, ok)
	assert.Equal(t, "go", cb.Info)
	assert.Equal(t, "fmt.Println(\"hi\")\n", cb.Literal)

	list, ok := res.Blocks[3].(*List)
	require.True(t, ok)
	assert.False(t, list.Ordered)
	assert.Len(t, list.Items, 2)
}

func TestParseBodyExplicitHeadingID(t *testing.T) {
	res, err := ParseBody([]byte("## Install the SDK {#install}\n"))
	require.NoError(t, err)

	h := res.Blocks[0].(*Heading)
	assert.Equal(t, "install", h.ID)
	assert.True(t, h.Explicit)
	assert.Equal(t, "Install the SDK", InlineText(h.Children))
	assert.Equal(t, []string{"install"}, res.Anchors)
}

func TestParseBodyDuplicateSlugsDisambiguated(t *testing.T) {
	res, err := ParseBody([]byte("## Setup\n\n## Setup\n\n## Setup\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"setup", "setup-2", "setup-3"}, res.Anchors)
}

func TestParseBodyEmbedDirective(t *testing.T) {
	res, err := ParseBody([]byte("Intro.\n\n{{% embed install/go %}}\n\nOutro.\n"))
	require.NoError(t, err)
	require.Len(t, res.Blocks, 3)

	e, ok := res.Blocks[1].(*Embed)
	require.True(t, ok)
	assert.Equal(t, "install/go", e.Fragment)
}

func TestParseBodyConditionals(t *testing.T) {
	body := []byte(`{{% sdk go,python %}}

## Shared setup

{{% sdk go %}}

Go only.

{{% /sdk %}}

{{% /sdk %}}
`)
	res, err := ParseBody(body)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)

	outer, ok := res.Blocks[0].(*Conditional)
	require.True(t, ok)
	assert.Equal(t, []sdk.SDK{"go", "python"}, outer.SDKs)
	assert.False(t, outer.Negated)
	require.Len(t, outer.Children, 2)

	inner, ok := outer.Children[1].(*Conditional)
	require.True(t, ok)
	assert.Equal(t, []sdk.SDK{"go"}, inner.SDKs)
}

func TestParseBodyNegatedConditional(t *testing.T) {
	res, err := ParseBody([]byte("{{% sdk not java %}}\n\nEveryone but Java.\n\n{{% /sdk %}}\n"))
	require.NoError(t, err)

	c := res.Blocks[0].(*Conditional)
	assert.True(t, c.Negated)
	assert.Equal(t, []sdk.SDK{"java"}, c.SDKs)
}

func TestParseBodyUnbalancedConditionals(t *testing.T) {
	_, err := ParseBody([]byte("{{% sdk go %}}\n\nnever closed\n"))
	var unbalanced *ErrUnbalancedConditional
	require.ErrorAs(t, err, &unbalanced)

	_, err = ParseBody([]byte("{{% /sdk %}}\n"))
	require.ErrorAs(t, err, &unbalanced)
}

func TestParseBodyMalformedDirective(t *testing.T) {
	_, err := ParseBody([]byte("{{% smurf go %}}\n"))
	var malformed *ErrMalformedDirective
	require.ErrorAs(t, err, &malformed)
}

func TestParseBodyExternalLinks(t *testing.T) {
	res, err := ParseBody([]byte("[site](https://example.com) and [mail](mailto:a@b.c) and [anchor](#here)\n"))
	require.NoError(t, err)

	p := res.Blocks[0].(*Paragraph)
	var links []*Link
	for _, in := range p.Children {
		if l, ok := in.(*Link); ok {
			links = append(links, l)
		}
	}
	require.Len(t, links, 3)
	assert.True(t, links[0].External)
	assert.True(t, links[1].External)
	assert.False(t, links[2].External)
	assert.Equal(t, "", links[2].Target)
	assert.Equal(t, "here", links[2].Anchor)
}

func TestMapBlocksDropAndReplace(t *testing.T) {
	blocks := []Node{
		&Paragraph{Children: []Inline{&Text{Value: "keep"}}},
		&Embed{Fragment: "x"},
		&Conditional{SDKs: []sdk.SDK{"go"}, Children: []Node{&Embed{Fragment: "y"}}},
	}
	out := MapBlocks(blocks, func(n Node) (Node, bool) {
		if _, ok := n.(*Embed); ok {
			return nil, false // drop embeds
		}
		return nil, true
	})
	require.Len(t, out, 2)
	cond := out[1].(*Conditional)
	assert.Empty(t, cond.Children)
	// Input not mutated.
	assert.Len(t, blocks[2].(*Conditional).Children, 1)
}

func TestReassignAnchorsAcrossAssembledTree(t *testing.T) {
	// Two independently parsed parts, as after a fragment splice: each got
	// its own parse-time ids, so the slugs collide.
	docPart, err := ParseBody([]byte("## Setup\n"))
	require.NoError(t, err)
	fragPart, err := ParseBody([]byte("## Setup\n\n## Custom {#custom}\n"))
	require.NoError(t, err)
	assembled := append(append([]Node{}, docPart.Blocks...), fragPart.Blocks...)

	rebuilt, anchors := ReassignAnchors(assembled)
	assert.Equal(t, []string{"setup", "setup-2", "custom"}, anchors)

	var ids []string
	WalkBlocks(rebuilt, func(n Node) {
		if h, ok := n.(*Heading); ok {
			ids = append(ids, h.ID)
		}
	})
	assert.Equal(t, []string{"setup", "setup-2", "custom"}, ids)

	// Input headings keep their parse-time ids; spliced fragments are shared
	// between documents and must never be mutated.
	assert.Equal(t, "setup", docPart.Blocks[0].(*Heading).ID)
	assert.Equal(t, "setup", fragPart.Blocks[0].(*Heading).ID)
}
