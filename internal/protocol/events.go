// Package protocol defines the JSON envelope and payload types that
// flow over the study-room WebSocket channel. The server relay and the
// client room agent share these definitions.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names. Client-originated events carry the room id in the
// envelope; server-originated fan-out omits it.
const (
	EventJoinRoom         = "join-room"
	EventUserJoined       = "user-joined"
	EventChatMessage      = "chat-message"
	EventTyping           = "typing"
	EventShareScreen      = "share-screen"
	EventDraw             = "draw"
	EventSharedNotes      = "shared-notes"
	EventFileUploaded     = "file-uploaded"
	EventPollCreated      = "poll-created"
	EventPollVote         = "poll-vote"
	EventUserDisconnected = "user-disconnected"
)

// Poll vote values. Anything else is relayed as-is and ignored by
// receivers.
const (
	VoteYes = "yes"
	VoteNo  = "no"
)

// Envelope is one message on the room channel.
type Envelope struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Point is one sampled whiteboard coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FileNotice announces an uploaded file to the room.
type FileNotice struct {
	Filename     string `json:"filename"`
	ConnectionID string `json:"connection_id"`
}

// ChatEntry is one line of a room's durable chat transcript.
type ChatEntry struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Snapshot is the full durable state of a room, replaced as one unit
// on every write.
type Snapshot struct {
	Chat       []ChatEntry `json:"chat"`
	Notes      string      `json:"notes"`
	Whiteboard []Point     `json:"whiteboard"`
}

// Marshal builds an envelope with the given payload.
func Marshal(event, room string, data any) ([]byte, error) {
	env := Envelope{Event: event, Room: room}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// MustMarshal is Marshal for payloads that cannot fail (strings,
// Point, FileNotice).
func MustMarshal(event, room string, data any) []byte {
	raw, err := Marshal(event, room, data)
	if err != nil {
		panic(err)
	}
	return raw
}

// Text decodes a plain string payload.
func (e *Envelope) Text() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("%s: string payload: %w", e.Event, err)
	}
	return s, nil
}

// UserLabel derives the short display name shown for a connection id,
// e.g. "User 1a2b3c4d".
func UserLabel(connID string) string {
	if len(connID) > 8 {
		connID = connID[:8]
	}
	return "User " + connID
}

// NowTimestamp formats a chat-transcript timestamp.
func NowTimestamp() string {
	return time.Now().Format("15:04:05")
}
