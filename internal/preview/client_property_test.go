//go:build property

package preview

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/livepreview/internal/docpath"
	"github.com/conneroisu/livepreview/internal/logging"
	"github.com/conneroisu/livepreview/internal/page"
	"github.com/conneroisu/livepreview/internal/protocol"
	"github.com/conneroisu/livepreview/internal/testutils"
)

func propertyPage(location string) *page.Page {
	origin, _ := url.Parse("http://localhost:8080")
	src := testutils.HostPage(location, testutils.SidebarFragment("/a"), testutils.ContentsFragment("<p>before</p>", 1))
	p, err := page.Parse(strings.NewReader(src), origin, (&url.URL{Path: location}).EscapedPath())
	if err != nil {
		panic(err)
	}
	return p
}

func bareClient() *Client {
	return &Client{logger: logging.NopLogger{}, ctx: context.Background()}
}

func TestPushProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	segment := gen.RegexMatch(`[a-z ]{1,6}`)
	paths := gen.SliceOfN(3, segment).Map(func(segs []string) string {
		return "/" + strings.Join(segs, "/")
	})

	properties.Property("a push for another document leaves the contents untouched", prop.ForAll(
		func(shown, pushed string) bool {
			if docpath.Same(shown, pushed) {
				return true
			}
			p := propertyPage(shown)
			before := p.ContentsHTML()

			msg := protocol.Message{Action: protocol.ActionUpdateContent, Path: pushed, Content: protocol.Payload{HTML: "<p>other</p>"}}
			if err := bareClient().apply(p, msg); err != nil {
				return false
			}
			return p.ContentsHTML() == before
		},
		paths, paths,
	))

	properties.Property("a push for the shown document is delivered in any encoding", prop.ForAll(
		func(shown string, encode bool, words int) bool {
			p := propertyPage(shown)
			pushed := shown
			if encode {
				pushed = (&url.URL{Path: shown}).EscapedPath()
			}

			msg := protocol.Message{Action: protocol.ActionUpdateContent, Path: pushed, Content: protocol.Payload{HTML: "<p>new</p>", WordCount: &words}}
			if err := bareClient().apply(p, msg); err != nil {
				return false
			}
			count, _ := p.WordCount()
			return p.BuiltContentHTML() == "<p>new</p>" && count == strconv.Itoa(words)
		},
		paths, gen.Bool(), gen.IntRange(0, 100000),
	))

	properties.TestingRun(t)
}
