package lesson

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainText strips markdown from md and collapses whitespace. Concept labels
// are authored as markdown but are sent to the text-generation service as
// plain words.
func PlainText(md string) string {
	if !strings.ContainsAny(md, "*_`#[]<>!|~\\") {
		return strings.Join(strings.Fields(md), " ")
	}
	source := []byte(md)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var parts []string
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || node.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				parts = append(parts, string(seg.Value(source)))
			}
			return ast.WalkSkipChildren, nil
		}
		if node.FirstChild() != nil && node.FirstChild().Type() == ast.TypeInline {
			parts = append(parts, extractText(node, source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// extractText concatenates the inline text beneath node.
func extractText(node ast.Node, source []byte) string {
	var sb strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			sb.Write(c.Segment.Value(source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(c.Value)
		default:
			sb.WriteString(extractText(child, source))
		}
	}
	return sb.String()
}
