// Package render draws the displayed document on a terminal. It is the View
// the preview client notifies after every change to the page.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/conneroisu/livepreview/internal/docpath"
	"github.com/conneroisu/livepreview/internal/page"
)

// Format selects how the content region is printed.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatMarkdown, "md", "":
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want markdown or html)", s)
	}
}

// Terminal prints the document body to a writer.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	md     *converter.Converter
	policy *bluemonday.Policy
	// ClearScreen emits an ANSI clear before every frame.
	ClearScreen bool
}

// NewTerminal creates a terminal view.
func NewTerminal(w io.Writer, format Format) *Terminal {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Globally()
	policy.AllowAttrs("data-lang").OnElements("pre")

	return &Terminal{
		w:      w,
		format: format,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: policy,
	}
}

// Body converts the document body of p to the terminal format.
func (t *Terminal) Body(p *page.Page) (string, error) {
	src := p.BuiltContentHTML()
	if t.format == FormatHTML {
		return t.policy.Sanitize(src), nil
	}

	origin := p.Origin()
	out, err := t.md.ConvertString(src, converter.WithDomain(origin.Scheme+"://"+origin.Host))
	if err != nil {
		return "", fmt.Errorf("converting document to markdown: %w", err)
	}

	return out, nil
}

// Header is the one-line status printed above the body.
func Header(p *page.Page) string {
	var b strings.Builder
	b.WriteString("── ")
	b.WriteString(docpath.Canonical(p.Location()))
	if words, ok := p.WordCount(); ok && words != "" {
		fmt.Fprintf(&b, " · %s words", words)
	}
	b.WriteString(" ──")

	return b.String()
}

// Render prints the current state of p. Conversion failures are printed in
// place of the body.
func (t *Terminal) Render(ctx context.Context, p *page.Page) {
	body, err := t.Body(p)
	if err != nil {
		body = "error: " + err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ClearScreen {
		fmt.Fprint(t.w, "\033[H\033[2J")
	}
	fmt.Fprintln(t.w, Header(p))
	fmt.Fprintln(t.w, strings.TrimRight(body, "\n"))
	fmt.Fprintln(t.w)
}
