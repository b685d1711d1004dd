// Package markdown extracts the heading structure of markdown documents.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Heading is one entry of a document outline.
type Heading struct {
	Depth int    // 1 for top-level entries
	Title string // Heading text without markers
	Path  string // Hierarchy: "# Doc Title > ## Section Name"
	// Setext is set for headings written as a line underlined with
	// "===" or "---" rather than with leading "#" markers.
	Setext bool
}

// Outliner parses markdown with goldmark and walks its table of contents.
type Outliner struct {
	md goldmark.Markdown
}

// NewOutliner creates an Outliner configured with auto heading IDs.
func NewOutliner() *Outliner {
	return &Outliner{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
	}
}

// Outline returns the document headings in document order.
func (o *Outliner) Outline(source []byte) ([]Heading, error) {
	doc := o.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(6),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var out []Heading
	walk(tree.Items, nil, setextIDs(doc, source), &out)
	return out, nil
}

// FirstHeading returns the text of the first "#" heading in source, or ""
// if there is none. Setext headings are skipped.
func (o *Outliner) FirstHeading(source []byte) string {
	headings, err := o.Outline(source)
	if err != nil {
		return ""
	}
	for _, h := range headings {
		if h.Title != "" && !h.Setext {
			return h.Title
		}
	}
	return ""
}

func walk(items toc.Items, ancestors []string, setext map[string]bool, out *[]Heading) {
	for _, item := range items {
		title := strings.TrimSpace(string(item.Title))
		current := append(append([]string(nil), ancestors...), title)
		*out = append(*out, Heading{
			Depth:  len(current),
			Title:  title,
			Path:   formatHeaderPath(current),
			Setext: setext[string(item.ID)],
		})
		if len(item.Items) > 0 {
			walk(item.Items, current, setext, out)
		}
	}
}

// setextIDs returns the auto-generated IDs of headings whose source line
// does not start with "#".
func setextIDs(doc ast.Node, source []byte) map[string]bool {
	ids := make(map[string]bool)
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		heading := n.(*ast.Heading)
		if heading.Lines().Len() == 0 || isATX(source, heading.Lines().At(0).Start) {
			return ast.WalkContinue, nil
		}
		if id, ok := heading.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				ids[string(b)] = true
			}
		}
		return ast.WalkContinue, nil
	})
	return ids
}

// isATX reports whether the line holding offset begins with "#" after
// indentation.
func isATX(source []byte, offset int) bool {
	start := offset
	for start > 0 && source[start-1] != '\n' {
		start--
	}
	line := strings.TrimLeft(string(source[start:offset]), " \t")
	return strings.HasPrefix(line, "#")
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}
