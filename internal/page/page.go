// Package page holds the rendering surface of the preview client: the parsed
// host page and handles to the regions the client is allowed to replace.
//
// Region handles are resolved in exactly one place, Rebind. Any operation that
// swaps a region wholesale calls Rebind before returning, because the swap may
// have destroyed the nodes the old handles pointed at (the built-content and
// word-count regions live inside the contents region).
//
// A Page is not safe for concurrent use. The preview client confines it to its
// event loop.
package page

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	perrors "github.com/conneroisu/livepreview/internal/errors"
)

// Element identifiers the host page is expected to carry.
const (
	IDContents     = "contents"
	IDBuiltContent = "built-content"
	IDWordCount    = "word-count"
	IDSidebar      = "sidebar"
)

// Enhancer is the post-render hook run on a region root after its markup was
// replaced. Implementations must only touch the subtree they are given.
type Enhancer interface {
	Enhance(region *html.Node)
}

// Page is the rendering surface of one displayed document.
type Page struct {
	doc      *html.Node
	origin   *url.URL
	location string
	title    string

	contents *html.Node
	built    *html.Node
	words    *html.Node
	sidebar  *html.Node

	enhancer Enhancer
	version  uint64
}

// Parse reads a full host page served for location by origin. The page must
// carry the contents and sidebar regions.
func Parse(r io.Reader, origin *url.URL, location string) (*Page, error) {
	p, err := parse(r, origin, location)
	if err != nil {
		return nil, err
	}
	if err := p.Rebind(); err != nil {
		return nil, err
	}

	return p, nil
}

// Load builds the page for whatever a full navigation to location returned.
// HTML without the host regions is shown as served with no region bound, and
// any other media type is shown as preformatted text. On such a page every
// region update fails with ErrCodeMissingRegion; see Bound.
func Load(body []byte, contentType string, origin *url.URL, location string) (*Page, error) {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil || (media != "text/html" && media != "application/xhtml+xml") {
		return plain(string(body), origin, location)
	}

	p, err := parse(bytes.NewReader(body), origin, location)
	if err != nil {
		return nil, err
	}
	// Missing regions leave their handles nil.
	_ = p.Rebind()
	if p.title == "" {
		p.title = location
	}

	return p, nil
}

func plain(text string, origin *url.URL, location string) (*Page, error) {
	src := "<!DOCTYPE html><html><head><title>" + html.EscapeString(location) + "</title></head>" +
		"<body><pre>" + html.EscapeString(text) + "</pre></body></html>"

	return parse(strings.NewReader(src), origin, location)
}

func parse(r io.Reader, origin *url.URL, location string) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, perrors.NewInternalError(perrors.ErrCodeParseFailed, "cannot parse host page", err).WithPath(location)
	}

	p := &Page{
		doc:      doc,
		origin:   origin,
		location: location,
	}
	if t := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		p.title = textOf(t)
	}

	return p, nil
}

// Rebind re-resolves every region handle against the current tree. The
// contents and sidebar regions are required; built-content and word-count are
// optional, and updates fall back to the contents region when built-content
// is absent.
func (p *Page) Rebind() error {
	p.contents = getElementByID(p.doc, IDContents)
	p.sidebar = getElementByID(p.doc, IDSidebar)
	p.built = nil
	p.words = nil
	if p.contents != nil {
		p.built = getElementByID(p.contents, IDBuiltContent)
		p.words = getElementByID(p.contents, IDWordCount)
	}

	if p.contents == nil {
		return perrors.NewInternalError(perrors.ErrCodeMissingRegion, "host page has no #"+IDContents+" region", nil)
	}
	if p.sidebar == nil {
		return perrors.NewInternalError(perrors.ErrCodeMissingRegion, "host page has no #"+IDSidebar+" region", nil)
	}

	return nil
}

// Bound reports whether the contents and sidebar regions are present. Pushes
// and in-app loads need a bound page.
func (p *Page) Bound() bool {
	return p.contents != nil && p.sidebar != nil
}

// SetEnhancer installs the post-render hook. A nil enhancer disables it.
func (p *Page) SetEnhancer(e Enhancer) {
	p.enhancer = e
}

// Origin returns the scheme and host the page was served from.
func (p *Page) Origin() *url.URL {
	u := *p.origin
	return &u
}

// Location returns the path shown in the address bar. It may be
// percent-encoded.
func (p *Page) Location() string {
	return p.location
}

// SetLocation updates the address bar without touching the content.
func (p *Page) SetLocation(path string) {
	if p.location != path {
		p.location = path
		p.version++
	}
}

// Title returns the document title.
func (p *Page) Title() string {
	return p.title
}

// SetTitle updates the document title, including the <title> element when
// the page has one.
func (p *Page) SetTitle(title string) {
	p.title = title
	p.version++
	if t := findFirst(p.doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		setText(t, title)
	}
}

// ReplaceContents swaps the whole contents region for fragment, rebinds the
// nested regions and runs the enhancer on the contents region. If fragment
// cannot be parsed the page is left untouched.
func (p *Page) ReplaceContents(fragment string) error {
	if err := p.replaceChildren(p.contents, fragment); err != nil {
		return err
	}
	if err := p.Rebind(); err != nil {
		return err
	}
	p.enhance(p.contents)

	return nil
}

// ReplaceBuiltContent swaps the rendered document body (the target of a
// content push) and runs the enhancer on that region only.
func (p *Page) ReplaceBuiltContent(fragment string) error {
	target := p.builtTarget()
	if err := p.replaceChildren(target, fragment); err != nil {
		return err
	}
	p.enhance(target)

	return nil
}

// SetWordCount writes n into the word-count region. It reports false when the
// page has no such region.
func (p *Page) SetWordCount(n int) bool {
	if p.words == nil {
		return false
	}
	setText(p.words, strconv.Itoa(n))
	p.version++

	return true
}

// ReplaceSidebar swaps the sidebar listing.
func (p *Page) ReplaceSidebar(fragment string) error {
	return p.replaceChildren(p.sidebar, fragment)
}

// ReplaceDocument swaps the whole page for a freshly loaded one, as a full
// reload would. The enhancer is kept.
func (p *Page) ReplaceDocument(next *Page) {
	p.doc = next.doc
	p.origin = next.origin
	p.location = next.location
	p.title = next.title
	p.contents = next.contents
	p.built = next.built
	p.words = next.words
	p.sidebar = next.sidebar
	p.version++
	p.enhance(p.contents)
}

// EnhanceContents runs the enhancer over the whole contents region, as done
// once after the initial page load.
func (p *Page) EnhanceContents() {
	p.enhance(p.contents)
}

// Version increases with every change to the page. Observers compare versions
// to decide whether to redraw.
func (p *Page) Version() uint64 {
	return p.version
}

// ContentsHTML returns the inner markup of the contents region.
func (p *Page) ContentsHTML() string {
	return innerHTML(p.contents)
}

// BuiltContentHTML returns the inner markup of the region content pushes
// write to, or of the whole body on a page without regions.
func (p *Page) BuiltContentHTML() string {
	if target := p.builtTarget(); target != nil {
		return innerHTML(target)
	}
	return innerHTML(findFirst(p.doc, func(n *html.Node) bool { return n.DataAtom == atom.Body }))
}

// SidebarHTML returns the inner markup of the sidebar region.
func (p *Page) SidebarHTML() string {
	return innerHTML(p.sidebar)
}

// WordCount returns the text of the word-count region and whether the region
// exists.
func (p *Page) WordCount() (string, bool) {
	if p.words == nil {
		return "", false
	}
	return textOf(p.words), true
}

// SidebarLinks returns the href of every link in the sidebar, in document
// order.
func (p *Page) SidebarLinks() []string {
	var links []string
	walk(p.sidebar, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return
		}
		if href, ok := attr(n, "href"); ok && href != "" {
			links = append(links, href)
		}
	})

	return links
}

// Render writes the whole page.
func (p *Page) Render(w io.Writer) error {
	return html.Render(w, p.doc)
}

func (p *Page) builtTarget() *html.Node {
	if p.built != nil {
		return p.built
	}
	return p.contents
}

func (p *Page) enhance(region *html.Node) {
	if p.enhancer != nil && region != nil {
		p.enhancer.Enhance(region)
	}
}

// replaceChildren parses fragment in the context of region and swaps it in
// only once parsing succeeded.
func (p *Page) replaceChildren(region *html.Node, fragment string) error {
	if region == nil {
		err := perrors.NewInternalError(perrors.ErrCodeMissingRegion, "region is not bound", nil).WithPath(p.location)
		err.Recoverable = true
		return err
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), region)
	if err != nil {
		return perrors.NewInternalError(perrors.ErrCodeParseFailed, "cannot parse fragment", err)
	}

	for c := region.FirstChild; c != nil; {
		next := c.NextSibling
		region.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		region.AppendChild(n)
	}
	p.version++

	return nil
}

func getElementByID(root *html.Node, id string) *html.Node {
	return findFirst(root, func(n *html.Node) bool {
		v, ok := attr(n, "id")
		return ok && v == id
	})
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}

	return nil
}

func walk(root *html.Node, visit func(*html.Node)) {
	if root == nil {
		return
	}
	visit(root)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func innerHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}

	return buf.String()
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})

	return b.String()
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
