// Package render converts step content to HTML for the dashboard.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Markdown renders CommonMark with GitHub extensions. Raw HTML in the source
// is omitted and javascript: style links are dropped, so the output is safe
// to embed in the dashboard. A Markdown is safe for concurrent use.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a renderer.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.DefinitionList,
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

// RenderSafe converts markdown source to sanitized HTML.
func (m *Markdown) RenderSafe(source string) (string, error) {
	if source == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// Fence wraps content in a fenced code block with the given info string. The
// fence is longer than any backtick run inside content.
func Fence(info, content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	fence := strings.Repeat("`", max(3, longest+1))

	var b strings.Builder
	b.WriteString(fence)
	b.WriteString(info)
	b.WriteByte('\n')
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	b.WriteByte('\n')
	return b.String()
}
