package enhance

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func region(t *testing.T, markup string) *html.Node {
	t.Helper()
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	require.NoError(t, err)
	for _, n := range nodes {
		ctx.AppendChild(n)
	}
	return ctx
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		require.NoError(t, html.Render(&buf, c))
	}
	return buf.String()
}

func TestCodeBlocks(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		blocks int
	}{
		{
			name:   "commonmark class is kept",
			in:     `<pre><code class="language-go">x := 1</code></pre>`,
			want:   `<pre data-lang="go"><code class="language-go">x := 1</code></pre>`,
			blocks: 1,
		},
		{
			name:   "pandoc class moves to code",
			in:     `<pre class="sourceCode rust"><code>fn main() {}</code></pre>`,
			want:   `<pre class="sourceCode rust" data-lang="rust"><code class="language-rust">fn main() {}</code></pre>`,
			blocks: 1,
		},
		{
			name:   "lang prefix",
			in:     `<pre><code class="lang-sh">ls</code></pre>`,
			want:   `<pre data-lang="sh"><code class="lang-sh language-sh">ls</code></pre>`,
			blocks: 1,
		},
		{
			name:   "no language left alone",
			in:     `<pre><code>plain</code></pre>`,
			want:   `<pre><code>plain</code></pre>`,
			blocks: 0,
		},
		{
			name:   "inline code ignored",
			in:     `<p><code class="language-go">x</code></p>`,
			want:   `<p><code class="language-go">x</code></p>`,
			blocks: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enh := &CodeBlocks{}
			root := region(t, tt.in)
			enh.Enhance(root)
			out := render(t, root)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, tt.blocks, strings.Count(out, "data-lang="))
		})
	}
}

func TestCodeBlocksDefaultLanguage(t *testing.T) {
	enh := &CodeBlocks{DefaultLanguage: "text"}
	root := region(t, `<pre><code>plain</code></pre>`)
	enh.Enhance(root)
	assert.Equal(t, `<pre data-lang="text"><code class="language-text">plain</code></pre>`, render(t, root))
}

func TestCodeBlocksIdempotent(t *testing.T) {
	enh := &CodeBlocks{}
	root := region(t, `<div class="sourceCode"><pre class="go"><code>x</code></pre></div>`)
	enh.Enhance(root)
	first := render(t, root)
	enh.Enhance(root)
	assert.Equal(t, first, render(t, root))
}

func TestCodeBlocksScopedToRegion(t *testing.T) {
	doc := region(t, `<section id="a"><pre><code class="language-go">a</code></pre></section>`+
		`<section id="b"><pre><code class="language-go">b</code></pre></section>`)

	enh := &CodeBlocks{}
	enh.Enhance(doc.FirstChild)

	out := render(t, doc)
	assert.Equal(t, 1, strings.Count(out, "data-lang="))
	assert.Contains(t, out, `<section id="b"><pre><code class="language-go">b</code></pre></section>`)
}
