package validate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docscope/internal/content"
	"git.home.luguber.info/inful/docscope/internal/document"
	"git.home.luguber.info/inful/docscope/internal/navigation"
	"git.home.luguber.info/inful/docscope/internal/scope"
	"git.home.luguber.info/inful/docscope/internal/sdk"
	"git.home.luguber.info/inful/docscope/internal/util/sets"
)

type fakeFragments map[string]*document.Fragment

func (f fakeFragments) Fragment(_ context.Context, _ document.Key, key string) (*document.Fragment, error) {
	if frag, ok := f[key]; ok {
		return frag, nil
	}
	return nil, fmt.Errorf("no such fragment %q", key)
}

type fakeIndex map[document.Key]sets.Set[string]

func (f fakeIndex) Anchors(key document.Key) (sets.Set[string], bool) {
	anchors, ok := f[key]
	return anchors, ok
}

const testManifest = `
sdks: [go, python, java]
navigation:
  - title: Open
    href: open
  - title: Server
    sdk: [go, python]
    children:
      - title: Deploy
        href: server/deploy
`

func newTestValidator(t *testing.T, frags fakeFragments, idx fakeIndex, strict bool) *Validator {
	t.Helper()
	m, err := navigation.Parse([]byte(testManifest))
	require.NoError(t, err)
	tree, conflicts := scope.Resolve(m, scope.Declarations{})
	require.Empty(t, conflicts)
	if idx == nil {
		idx = fakeIndex{}
	}
	return &Validator{
		Universe:         m.Universe,
		Tree:             tree,
		Fragments:        frags,
		Index:            idx,
		StrictReferences: strict,
	}
}

func parseDoc(t *testing.T, key, raw string) *document.Document {
	t.Helper()
	u, err := sdk.NewUniverse([]string{"go", "python", "java"})
	require.NoError(t, err)
	doc, err := document.Parse(key, []byte(raw), u)
	require.NoError(t, err)
	return doc
}

func parseFrag(t *testing.T, key, raw string) *document.Fragment {
	t.Helper()
	frag, err := document.ParseFragment(key, []byte(raw))
	require.NoError(t, err)
	return frag
}

func diagCodes(diags []Diagnostic) []Code {
	codes := make([]Code, len(diags))
	for i, d := range diags {
		codes[i] = d.Code
	}
	return codes
}

func TestValidateCleanDocument(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, false)
	doc := parseDoc(t, "open", "# Overview\n\nPlain text.\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.False(t, res.HasConditionals)
}

func TestValidateWarnsWhenNotInManifest(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, false)
	doc := parseDoc(t, "orphan", "# Orphan\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CodeDocMissingFromManifest, res.Diagnostics[0].Code)
	assert.Equal(t, SeverityWarning, res.Diagnostics[0].Severity)
}

func TestExpandEmbedsSplicesFragment(t *testing.T) {
	frags := fakeFragments{
		"install": parseFrag(t, "install", "## Install {#install}\n\nRun the installer.\n"),
	}
	v := newTestValidator(t, frags, nil, false)
	doc := parseDoc(t, "open", "# Guide\n\n{{% embed install %}}\n\n[jump](#install)\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics, "spliced anchors satisfy same-document links")

	// The embed node is gone; fragment blocks are inline.
	var sawEmbed bool
	content.WalkBlocks(res.Blocks, func(n content.Node) {
		if _, ok := n.(*content.Embed); ok {
			sawEmbed = true
		}
	})
	assert.False(t, sawEmbed)
	require.Len(t, res.Blocks, 4)
}

func TestExpandEmbedsMissingFragment(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, false)
	doc := parseDoc(t, "open", "{{% embed ghost %}}\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CodeFragmentNotFound, res.Diagnostics[0].Code)
	assert.Equal(t, SeverityWarning, res.Diagnostics[0].Severity, "reference errors default to warnings")
}

func TestExpandEmbedsNestedFragmentIsFailure(t *testing.T) {
	frags := fakeFragments{
		"outer": parseFrag(t, "outer", "Text.\n\n{{% embed inner %}}\n"),
	}
	v := newTestValidator(t, frags, nil, false)
	doc := parseDoc(t, "open", "{{% embed outer %}}\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CodeFragmentInFragment, res.Diagnostics[0].Code)
	assert.Equal(t, SeverityFailure, res.Diagnostics[0].Severity, "splice depth is capped at one")
}

func TestSplicedHeadingSlugsDisambiguate(t *testing.T) {
	frags := fakeFragments{
		"install": parseFrag(t, "install", "## Install\n\nRun the installer.\n"),
	}
	v := newTestValidator(t, frags, nil, false)
	doc := parseDoc(t, "open", "## Install\n\n{{% embed install %}}\n\n[second](#install-2)\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics,
		"a document heading and a spliced fragment heading sharing a slug get counters, not a collision")

	var ids []string
	content.WalkBlocks(res.Blocks, func(n content.Node) {
		if h, ok := n.(*content.Heading); ok {
			ids = append(ids, h.ID)
		}
	})
	assert.Equal(t, []string{"install", "install-2"}, ids)
}

func TestExpandReportsPostSpliceAnchors(t *testing.T) {
	frags := fakeFragments{
		"rollback": parseFrag(t, "rollback", "## Rollback\n\nRevert the release.\n"),
	}
	v := newTestValidator(t, frags, nil, false)
	doc := parseDoc(t, "server/deploy", "# Deploy\n\n{{% embed rollback %}}\n")

	exp, err := v.Expand(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, exp.Anchors.Has("deploy"))
	assert.True(t, exp.Anchors.Has("rollback"),
		"fragment-contributed anchors belong to the including document")
}

func TestValidateLinksTargets(t *testing.T) {
	idx := fakeIndex{
		"open":          sets.New("overview"),
		"server/deploy": sets.New("steps"),
	}
	v := newTestValidator(t, fakeFragments{}, idx, false)
	doc := parseDoc(t, "open", `# Overview

[good](server/deploy#steps) [bad-doc](missing) [bad-anchor](server/deploy#nope)
`)
	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Code{CodeLinkDocNotFound, CodeLinkHashNotFound}, diagCodes(res.Diagnostics))
}

func TestValidateSameDocAnchor(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, false)
	doc := parseDoc(t, "open", "# Overview\n\n[ok](#overview) [broken](#missing)\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CodeLinkHashNotFound, res.Diagnostics[0].Code)
}

func TestStrictReferencesPromoteToFailure(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, true)
	doc := parseDoc(t, "open", "[bad](missing)\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, SeverityFailure, res.Diagnostics[0].Severity)
	assert.True(t, HasFailures(res.Diagnostics))
}

func TestFrontmatterOverridesStrictness(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, true)
	doc := parseDoc(t, "open", "---\nstrict_links: false\n---\n\n[bad](missing)\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, SeverityWarning, res.Diagnostics[0].Severity, "per-document override wins")
}

func TestLinksToRestrictedDocsGetSDKs(t *testing.T) {
	idx := fakeIndex{"server/deploy": sets.New[string]()}
	v := newTestValidator(t, fakeFragments{}, idx, false)
	doc := parseDoc(t, "open", "[deploy](server/deploy)\n")

	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)

	var link *content.Link
	content.WalkBlocks(res.Blocks, func(n content.Node) {
		if p, ok := n.(*content.Paragraph); ok {
			for _, in := range p.Children {
				if l, isLink := in.(*content.Link); isLink {
					link = l
				}
			}
		}
	})
	require.NotNil(t, link)
	assert.Equal(t, []sdk.SDK{"go", "python"}, link.SDKs, "manifest scope of the target, sorted")
}

func TestConditionalChecks(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, false)

	t.Run("unknown sdk", func(t *testing.T) {
		doc := parseDoc(t, "open", "{{% sdk ruby %}}\n\nx\n\n{{% /sdk %}}\n")
		res, err := v.Validate(context.Background(), doc)
		require.NoError(t, err)
		assert.Contains(t, diagCodes(res.Diagnostics), CodeUnknownSDKFilter)
		assert.True(t, HasFailures(res.Diagnostics))
	})

	t.Run("outside frontmatter scope", func(t *testing.T) {
		doc := parseDoc(t, "open", "---\nsdks: [go]\n---\n\n{{% sdk python %}}\n\nx\n\n{{% /sdk %}}\n")
		res, err := v.Validate(context.Background(), doc)
		require.NoError(t, err)
		assert.Contains(t, diagCodes(res.Diagnostics), CodeSDKNotInFrontmatter)
	})

	t.Run("outside manifest scope", func(t *testing.T) {
		doc := parseDoc(t, "server/deploy", "{{% sdk java %}}\n\nx\n\n{{% /sdk %}}\n")
		res, err := v.Validate(context.Background(), doc)
		require.NoError(t, err)
		assert.Contains(t, diagCodes(res.Diagnostics), CodeSDKNotInManifest)
	})

	t.Run("valid filter", func(t *testing.T) {
		doc := parseDoc(t, "server/deploy", "{{% sdk go %}}\n\nx\n\n{{% /sdk %}}\n")
		res, err := v.Validate(context.Background(), doc)
		require.NoError(t, err)
		assert.Empty(t, res.Diagnostics)
		assert.True(t, res.HasConditionals)
	})
}

func TestDuplicateHeadingIDs(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, false)

	doc := parseDoc(t, "open", "## A {#dup}\n\n## B {#dup}\n")
	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, diagCodes(res.Diagnostics), CodeDuplicateHeadingID)
	assert.True(t, HasFailures(res.Diagnostics))
}

func TestDuplicateHeadingsAcrossConditionalBranchesAllowed(t *testing.T) {
	v := newTestValidator(t, fakeFragments{}, nil, false)
	doc := parseDoc(t, "open", `{{% sdk go %}}

## Setup {#setup}

{{% /sdk %}}

{{% sdk python %}}

## Setup {#setup}

{{% /sdk %}}
`)
	res, err := v.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.NotContains(t, diagCodes(res.Diagnostics), CodeDuplicateHeadingID,
		"only one branch survives per rendered variant")
}

func TestFilterForSDK(t *testing.T) {
	blocks := []content.Node{
		&content.Paragraph{Children: []content.Inline{&content.Text{Value: "always"}}},
		&content.Conditional{SDKs: []sdk.SDK{"go"}, Children: []content.Node{
			&content.Paragraph{Children: []content.Inline{&content.Text{Value: "go only"}}},
		}},
		&content.Conditional{SDKs: []sdk.SDK{"java"}, Negated: true, Children: []content.Node{
			&content.Paragraph{Children: []content.Inline{&content.Text{Value: "not java"}}},
		}},
	}

	goVariant := FilterForSDK(blocks, "go")
	require.Len(t, goVariant, 3, "matching conditionals unwrap into their children")

	javaVariant := FilterForSDK(blocks, "java")
	require.Len(t, javaVariant, 1, "non-matching and negated-match both drop")

	pyVariant := FilterForSDK(blocks, "python")
	require.Len(t, pyVariant, 2)

	// Input tree is untouched.
	assert.Len(t, blocks, 3)
	assert.Len(t, blocks[1].(*content.Conditional).Children, 1)
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"./guides/auth.md": "guides/auth",
		"/guides/auth":     "guides/auth",
		"guides/auth/":     "guides/auth",
		`guides\auth.md`:   "guides/auth",
		"plain":            "plain",
	}
	for in, want := range cases {
		assert.Equal(t, document.Key(want), NormalizeKey(in), "NormalizeKey(%q)", in)
	}
}
