package testutils

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidebarFragmentSortsAndEscapes(t *testing.T) {
	out := SidebarFragment("/b.md", "/a b.md")
	assert.Equal(t,
		`<div class="file"><a href="/a%20b.md">/a b.md</a></div><div class="file"><a href="/b.md">/b.md</a></div>`,
		out)
}

func TestServerServesPagesAndContents(t *testing.T) {
	srv := NewServer(t)
	srv.SetDocument("/docs/intro", "<h1>Intro</h1>", 1)

	resp, err := http.Get(srv.URL + "/.contents/docs/intro")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ContentsFragment("<h1>Intro</h1>", 1), string(body))

	resp, err = http.Get(srv.URL + "/.contents/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.PageURL("/docs/intro"))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `<nav id="sidebar">`)
	assert.Contains(t, string(body), `<title>/docs/intro</title>`)

	assert.Equal(t, []string{"/.contents/docs/intro", "/.contents/missing", "/docs/intro"}, srv.Requests())
}
