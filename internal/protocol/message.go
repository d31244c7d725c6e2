// Package protocol decodes the frames the preview server pushes over the
// update channel.
//
// A frame is a JSON object {action, path?, content}. The content field has
// changed shape across server revisions: older servers send the rendered HTML
// as a bare string, newer ones send {contents, word_count}. The server does
// not advertise which one it speaks, so Decode inspects the JSON value itself
// and normalizes both shapes into a Payload.
package protocol

import (
	"bytes"
	"encoding/json"

	perrors "github.com/conneroisu/livepreview/internal/errors"
)

// Action names the kind of update a frame carries.
type Action string

const (
	// ActionUpdateContent replaces the rendered body of one document.
	ActionUpdateContent Action = "update-content"
	// ActionUpdateSidebar replaces the global document listing.
	ActionUpdateSidebar Action = "update-sidebar"
)

// Payload is the normalized rendered content of a frame.
type Payload struct {
	HTML string
	// WordCount is nil when the server sent a bare HTML string or omitted
	// the field.
	WordCount *int
}

// Message is a decoded push frame.
type Message struct {
	Action  Action
	Path    string
	Content Payload
}

// Known reports whether the action is one this client understands.
func (m Message) Known() bool {
	return m.Action == ActionUpdateContent || m.Action == ActionUpdateSidebar
}

type wireMessage struct {
	Action  Action          `json:"action"`
	Path    *string         `json:"path,omitempty"`
	Content json.RawMessage `json:"content"`
}

type wireRecord struct {
	Contents  *string `json:"contents"`
	WordCount *int    `json:"word_count"`
}

// Decode parses one raw frame. Unknown actions decode successfully so the
// caller can ignore them; their content is not inspected.
func Decode(raw []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "frame is not a JSON object", err)
	}
	if wire.Action == "" {
		return Message{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "frame has no action", nil)
	}

	msg := Message{Action: wire.Action}
	if !msg.Known() {
		return msg, nil
	}

	if msg.Action == ActionUpdateContent {
		if wire.Path == nil {
			return Message{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "update-content frame has no path", nil)
		}
		msg.Path = *wire.Path
	}

	payload, err := decodePayload(wire.Content)
	if err != nil {
		return Message{}, err
	}
	msg.Content = payload

	return msg, nil
}

func decodePayload(raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "frame has no content", nil)
	}

	switch trimmed[0] {
	case '"':
		var html string
		if err := json.Unmarshal(trimmed, &html); err != nil {
			return Payload{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "content string is invalid", err)
		}
		return Payload{HTML: html}, nil
	case '{':
		var record wireRecord
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return Payload{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "content record is invalid", err)
		}
		if record.Contents == nil {
			return Payload{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "content record has no contents field", nil)
		}
		return Payload{HTML: *record.Contents, WordCount: record.WordCount}, nil
	default:
		return Payload{}, perrors.NewProtocolError(perrors.ErrCodeMalformedPush, "content is neither a string nor a record", nil)
	}
}

// Encode produces the wire form of a message. Messages with a word count use
// the record shape, others the bare string shape. Test servers use it to
// speak either revision.
func Encode(m Message) ([]byte, error) {
	out := map[string]interface{}{"action": m.Action}
	if m.Action == ActionUpdateContent {
		out["path"] = m.Path
	}
	if m.Content.WordCount != nil {
		out["content"] = map[string]interface{}{
			"contents":   m.Content.HTML,
			"word_count": *m.Content.WordCount,
		}
	} else {
		out["content"] = m.Content.HTML
	}

	return json.Marshal(out)
}
