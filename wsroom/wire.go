package wsroom

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/skiffdb/skiff"
)

// Frame types exchanged on a room socket.
const (
	// MessageOp is a client frame carrying an operation envelope.
	MessageOp = "op"

	// MessageCreate tells the first member it opened the room.
	MessageCreate = "create"

	// MessageJoin delivers the room snapshot and input history to a joiner.
	MessageJoin = "join"

	// MessageInput delivers one sequenced input to every member.
	MessageInput = "input"
)

// Message is one JSON frame on a room socket. Which fields are set depends
// on Type; unknown types are ignored by both sides.
type Message struct {
	Type      string           `json:"type"`
	Operation *skiff.Operation `json:"operation,omitempty"`
	Snapshot  json.RawMessage  `json:"snapshot,omitempty"`
	Inputs    []skiff.Input    `json:"inputs,omitempty"`
	Input     *skiff.Input     `json:"input,omitempty"`
}

// RoomURL derives the WebSocket endpoint for a room from a base URL.
// http and https rewrite to ws and wss; ws and wss pass through.
func RoomURL(base, room string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("wsroom: parse url %q: %w", base, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "":
		return "", fmt.Errorf("wsroom: url %q missing scheme", base)
	default:
		return "", fmt.Errorf("wsroom: unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/rooms/" + url.PathEscape(room)
	return u.String(), nil
}
