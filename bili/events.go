// Package bili speaks the Bilibili live danmu websocket protocol: binary
// packet framing, join/heartbeat handshake, payload inflation, and the
// translation of raw positional chat records into typed events. Nothing
// outside this package ever sees the raw wire shape.
package bili

// EventKind discriminates the variants of Event.
type EventKind int

const (
	// EventChat carries a translated chat message.
	EventChat EventKind = iota
	// EventClosed signals the stream closed. The client does not
	// reconnect on its own; a new Connect call is required.
	EventClosed
	// EventError signals a stream-level error after a successful
	// connect. Log-worthy, not fatal to the caller.
	EventError
)

// ChatMessage is the structured form of one danmu. Field names mirror the
// overlay payload the surfaces already consume.
type ChatMessage struct {
	Cmd        string `json:"cmd"`
	Content    string `json:"content"`
	UID        int64  `json:"uid"`
	Username   string `json:"username"`
	Face       string `json:"face"`
	GuardLevel int    `json:"guardLevel"`
	MedalLevel int    `json:"medalLevel"`
}

// Event is the tagged union delivered on the client's event channel.
type Event struct {
	Kind EventKind
	Chat ChatMessage // set when Kind == EventChat
	Err  error       // set when Kind == EventError
}
