// Package parser builds document trees from Markdown sources.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

// MaxSummaryRunes bounds the summary derived from a section's text.
const MaxSummaryRunes = 200

// ParseMarkdown builds a tree from heading levels. The root is titled after name
// and holds any text before the first heading; each heading opens a node nested
// under the nearest heading of a lower level. Ids are positional.
func ParseMarkdown(r io.Reader, name string) (*tree.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type entry struct {
		node  *tree.Node
		level int
	}

	root := &tree.Node{ID: tree.RootID, Title: docTitle(name)}
	stack := []entry{{node: root, level: 0}}

	var section bytes.Buffer
	flush := func() {
		t := strings.TrimSpace(section.String())
		section.Reset()
		if t == "" {
			return
		}
		top := stack[len(stack)-1].node
		if top.Text != "" {
			top.Text += "\n\n" + t
		} else {
			top.Text = t
		}
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			if t := blockText(n, src); t != "" {
				if section.Len() > 0 {
					section.WriteString("\n\n")
				}
				section.WriteString(t)
			}
			continue
		}

		flush()
		node := &tree.Node{Title: inlineText(h, src)}
		for len(stack) > 1 && stack[len(stack)-1].level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, node)
		stack = append(stack, entry{node: node, level: h.Level})
	}
	flush()

	root.Walk(func(n *tree.Node, _ int) bool {
		n.Summary = Summarize(n.Text, MaxSummaryRunes)
		return true
	})
	tree.AssignIDs(root)
	return root, nil
}

func docTitle(name string) string {
	base := filepath.Base(name)
	for _, ext := range []string{".md", ".markdown"} {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// blockText returns the plain text of a block. Code blocks keep their raw lines.
func blockText(n ast.Node, src []byte) string {
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	case ast.KindThematicBreak:
		return ""
	}

	if c := n.FirstChild(); c != nil && c.Type() == ast.TypeInline {
		return inlineText(n, src)
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := blockText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// inlineText concatenates the text leaves under n.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			buf.Write(v.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(v.Value)
		case *ast.CodeSpan:
			for cc := v.FirstChild(); cc != nil; cc = cc.NextSibling() {
				if t, ok := cc.(*ast.Text); ok {
					buf.Write(t.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			buf.Write(v.URL(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(buf.String()), " ")
}

// Summarize returns the leading sentences of text that fit in limit runes.
// A first sentence longer than limit is cut at a word boundary.
func Summarize(text string, limit int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if flat == "" || limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(flat) <= limit {
		return flat
	}

	var out string
	for _, s := range sentences(flat) {
		next := s
		if out != "" {
			next = out + " " + s
		}
		if utf8.RuneCountInString(next) > limit {
			break
		}
		out = next
	}
	if out != "" {
		return out
	}
	return truncateWords(flat, limit)
}

// sentences splits on terminal punctuation followed by whitespace.
func sentences(s string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(s)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, strings.TrimSpace(string(runes[start:i+1])))
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func truncateWords(s string, limit int) string {
	const ellipsis = "..."
	runes := []rune(s)
	cut := limit - len(ellipsis)
	if cut <= 0 {
		return string(runes[:limit])
	}
	end := cut
	for end > 0 && !unicode.IsSpace(runes[end]) {
		end--
	}
	if end == 0 {
		end = cut
	}
	return strings.TrimSpace(string(runes[:end])) + ellipsis
}
