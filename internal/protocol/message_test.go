package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/conneroisu/livepreview/internal/errors"
)

func TestDecodeContentShapes(t *testing.T) {
	t.Run("bare string", func(t *testing.T) {
		msg, err := Decode([]byte(`{"action":"update-content","path":"/a/b","content":"<p>x</p>"}`))
		require.NoError(t, err)
		assert.Equal(t, ActionUpdateContent, msg.Action)
		assert.Equal(t, "/a/b", msg.Path)
		assert.Equal(t, "<p>x</p>", msg.Content.HTML)
		assert.Nil(t, msg.Content.WordCount)
	})

	t.Run("structured record", func(t *testing.T) {
		msg, err := Decode([]byte(`{"action":"update-content","path":"/a/b","content":{"contents":"<p>y</p>","word_count":42}}`))
		require.NoError(t, err)
		assert.Equal(t, "<p>y</p>", msg.Content.HTML)
		require.NotNil(t, msg.Content.WordCount)
		assert.Equal(t, 42, *msg.Content.WordCount)
	})

	t.Run("record without word count", func(t *testing.T) {
		msg, err := Decode([]byte(`{"action":"update-content","path":"/a","content":{"contents":""}}`))
		require.NoError(t, err)
		assert.Equal(t, "", msg.Content.HTML)
		assert.Nil(t, msg.Content.WordCount)
	})

	t.Run("sidebar without path", func(t *testing.T) {
		msg, err := Decode([]byte(`{"action":"update-sidebar","content":"<div class=\"file\"><a href=\"/x\">x</a></div>"}`))
		require.NoError(t, err)
		assert.Equal(t, ActionUpdateSidebar, msg.Action)
		assert.Empty(t, msg.Path)
		assert.Contains(t, msg.Content.HTML, `href="/x"`)
	})
}

func TestDecodeUnknownAction(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"reload-styles","content":12}`))
	require.NoError(t, err)
	assert.False(t, msg.Known())
	assert.Equal(t, Action("reload-styles"), msg.Action)
}

func TestDecodeMalformed(t *testing.T) {
	frames := map[string]string{
		"not json":            `update-content`,
		"array":               `["update-content"]`,
		"no action":           `{"path":"/a","content":"x"}`,
		"content missing":     `{"action":"update-content","path":"/a"}`,
		"content null":        `{"action":"update-content","path":"/a","content":null}`,
		"path missing":        `{"action":"update-content","content":"x"}`,
		"record w/o contents": `{"action":"update-content","path":"/a","content":{"word_count":3}}`,
		"number content":      `{"action":"update-sidebar","content":3}`,
		"bad word count":      `{"action":"update-content","path":"/a","content":{"contents":"x","word_count":"many"}}`,
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)

			var pe *perrors.PreviewError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, perrors.ErrorTypeProtocol, pe.Type)
			assert.Equal(t, perrors.ErrCodeMalformedPush, pe.Code)
		})
	}
}

func TestEncodeDecodeBothRevisions(t *testing.T) {
	words := 7
	structured := Message{Action: ActionUpdateContent, Path: "/notes/café.md", Content: Payload{HTML: "<p>hi</p>", WordCount: &words}}
	raw, err := Encode(structured)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"word_count":7`)

	back, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, structured, back)

	bare := Message{Action: ActionUpdateSidebar, Content: Payload{HTML: "<a href=\"/a\">a</a>"}}
	raw, err = Encode(bare)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"path"`)

	back, err = Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, bare, back)
}
