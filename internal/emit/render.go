package emit

import (
	"fmt"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/docscope/internal/content"
	"git.home.luguber.info/inful/docscope/internal/sdk"
)

// RenderMarkdown serializes a content tree back to Markdown. Conditional
// blocks that survived filtering are re-emitted with their markers so the
// rendering layer downstream can still see them (core outputs); SDK-variant
// trees have no conditionals left by construction.
func RenderMarkdown(blocks []content.Node) string {
	var b strings.Builder
	renderBlocks(&b, blocks, "")
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderBlocks(b *strings.Builder, blocks []content.Node, indent string) {
	for _, n := range blocks {
		switch v := n.(type) {
		case *content.Heading:
			b.WriteString(indent)
			b.WriteString(strings.Repeat("#", v.Level))
			b.WriteByte(' ')
			b.WriteString(renderInlines(v.Children))
			if v.Explicit {
				b.WriteString(" {#" + v.ID + "}")
			}
			b.WriteString("\n\n")
		case *content.Paragraph:
			writeIndented(b, renderInlines(v.Children), indent)
			b.WriteString("\n")
		case *content.CodeBlock:
			b.WriteString(indent + "```" + v.Info + "\n")
			writeIndented(b, strings.TrimRight(v.Literal, "\n"), indent)
			b.WriteString(indent + "```\n\n")
		case *content.List:
			for i, item := range v.Items {
				marker := "- "
				if v.Ordered {
					start := v.Start
					if start == 0 {
						start = 1
					}
					marker = strconv.Itoa(start+i) + ". "
				}
				var item0 strings.Builder
				renderBlocks(&item0, item, "")
				lines := strings.Split(strings.TrimRight(item0.String(), "\n"), "\n")
				for j, line := range lines {
					if j == 0 {
						b.WriteString(indent + marker + line + "\n")
					} else if line == "" {
						b.WriteString("\n")
					} else {
						b.WriteString(indent + strings.Repeat(" ", len(marker)) + line + "\n")
					}
				}
			}
			b.WriteString("\n")
		case *content.Blockquote:
			var inner strings.Builder
			renderBlocks(&inner, v.Children, "")
			for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
				b.WriteString(indent + "> " + line + "\n")
			}
			b.WriteString("\n")
		case *content.ThematicBreak:
			b.WriteString(indent + "---\n\n")
		case *content.HTMLBlock:
			b.WriteString(v.Literal)
			b.WriteString("\n")
		case *content.Embed:
			b.WriteString(indent + "{{% embed " + v.Fragment + " %}}\n\n")
		case *content.Conditional:
			marker := "{{% sdk "
			if v.Negated {
				marker += "not "
			}
			marker += joinSDKs(v.SDKs) + " %}}"
			b.WriteString(indent + marker + "\n\n")
			renderBlocks(b, v.Children, indent)
			b.WriteString(indent + "{{% /sdk %}}\n\n")
		}
	}
}

func writeIndented(b *strings.Builder, text, indent string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString(indent + line + "\n")
	}
}

func renderInlines(inlines []content.Inline) string {
	var b strings.Builder
	for _, in := range inlines {
		switch v := in.(type) {
		case *content.Text:
			b.WriteString(v.Value)
		case *content.CodeSpan:
			b.WriteString("`" + v.Literal + "`")
		case *content.Emphasis:
			stars := strings.Repeat("*", v.Level)
			b.WriteString(stars + renderInlines(v.Children) + stars)
		case *content.Link:
			b.WriteString(renderLink(v))
		case *content.Image:
			b.WriteString("![" + v.Alt + "](" + v.Destination + ")")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderLink emits plain Markdown for ordinary links and the sdk-link
// shortcode for links whose target is SDK-restricted.
func renderLink(l *content.Link) string {
	label := renderInlines(l.Children)
	dest := l.Target
	if l.Anchor != "" {
		dest += "#" + l.Anchor
	}
	if len(l.SDKs) == 0 {
		return "[" + label + "](" + dest + ")"
	}
	return fmt.Sprintf(`{{< sdk-link href=%q sdks=%q >}}%s{{< /sdk-link >}}`,
		dest, joinSDKs(l.SDKs), label)
}

func joinSDKs(ids []sdk.SDK) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}
	return strings.Join(strs, ",")
}
