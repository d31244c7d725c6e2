// Package internal contains the implementation packages of livepreview.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - preview: the client; an event loop that owns the page and applies pushes
//   - channel: the websocket update channel with heartbeat and reconnect
//   - protocol: decoding of pushed frames
//   - navigation: in-app navigation with sequence-numbered loads
//   - history: session history behind back and forward
//   - page: the parsed host page and its replaceable regions
//   - enhance: post-render hooks run on replaced regions
//   - docpath: canonical document paths and the reserved "/." namespace
//   - render: terminal output of the displayed document
//   - config, logging, errors, version: ambient support
//
// # Data Flow
//
// The server pushes frames over the channel. The client decodes each one and
// posts it to its event loop, which updates the page when the frame concerns
// the displayed document. Navigation fetches a document body over HTTP and
// posts the result to the same loop; a result older than the latest request
// is dropped. After every change the loop asks the view to redraw.
package internal
