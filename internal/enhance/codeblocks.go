// Package enhance implements the post-render pass the client runs on a region
// after its markup was replaced.
//
// The pass normalizes code blocks so downstream highlighters and the Markdown
// view see one convention. Markdown compilers disagree on where the language
// of a fenced block goes: CommonMark renderers emit
// <pre><code class="language-go">, pandoc emits <pre class="sourceCode go">
// or <div class="sourceCode"><pre class="go">. CodeBlocks copies the
// language onto the <code> element as language-<lang> and marks the block
// with data-lang.
package enhance

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// pandoc adds these classes next to the language name.
var ignoredClasses = map[string]bool{
	"sourceCode":   true,
	"numberSource": true,
	"numberLines":  true,
	"highlight":    true,
}

// CodeBlocks tags code blocks with their language.
type CodeBlocks struct {
	// DefaultLanguage is applied to blocks that declare none. Empty leaves
	// them untouched.
	DefaultLanguage string
}

// Enhance rewrites every <pre><code> block below region.
func (c *CodeBlocks) Enhance(region *html.Node) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Pre {
			if code := firstElementChild(n, atom.Code); code != nil {
				c.tag(n, code)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(region)
}

func (c *CodeBlocks) tag(pre, code *html.Node) {
	lang := languageOf(code)
	if lang == "" {
		lang = languageOf(pre)
	}
	if lang == "" {
		lang = c.DefaultLanguage
	}
	if lang == "" {
		return
	}

	if !hasClass(code, "language-"+lang) {
		addClass(code, "language-"+lang)
	}
	setAttr(pre, "data-lang", lang)
}

// languageOf finds the language a node declares, either as language-x /
// lang-x or as a bare pandoc class name.
func languageOf(n *html.Node) string {
	var bare string
	for _, class := range classes(n) {
		switch {
		case strings.HasPrefix(class, "language-"):
			return strings.TrimPrefix(class, "language-")
		case strings.HasPrefix(class, "lang-"):
			return strings.TrimPrefix(class, "lang-")
		case bare == "" && !ignoredClasses[class]:
			bare = class
		}
	}
	if v, ok := getAttr(n, "data-lang"); ok && v != "" {
		return v
	}

	return bare
}

func firstElementChild(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func classes(n *html.Node) []string {
	v, _ := getAttr(n, "class")
	return strings.Fields(v)
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, class string) {
	existing := classes(n)
	setAttr(n, "class", strings.Join(append(existing, class), " "))
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
