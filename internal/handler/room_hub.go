package handler

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"studysync-backend/internal/presence"
	"studysync-backend/internal/protocol"
	"studysync-backend/internal/sanitize"
)

// =============================================================================
// Room Hub - study room event relay and membership management
// =============================================================================

// Conn is the write side of one live connection. *websocket.Conn
// satisfies it; tests substitute a recorder.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// RoomClient is one live connection attached to the hub.
type RoomClient struct {
	ID      string
	conn    Conn
	writeMu sync.Mutex

	// rooms this connection has joined, including its own id as a
	// self room used for private addressing.
	rooms map[string]struct{}
}

func (cl *RoomClient) send(data []byte) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return cl.conn.WriteMessage(websocket.TextMessage, data)
}

// RoomHub relays events between room members and keeps the membership
// store in step. One hub serves all rooms in the process.
type RoomHub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*RoomClient]struct{}
	members   presence.Store
	sanitizer *sanitize.Sanitizer
}

// NewRoomHub creates a new RoomHub instance
func NewRoomHub(members presence.Store, sanitizer *sanitize.Sanitizer) *RoomHub {
	return &RoomHub{
		rooms:     make(map[string]map[*RoomClient]struct{}),
		members:   members,
		sanitizer: sanitizer,
	}
}

// Register attaches a new connection and returns its client handle.
func (h *RoomHub) Register(conn Conn) *RoomClient {
	cl := &RoomClient{
		ID:    uuid.New().String(),
		conn:  conn,
		rooms: map[string]struct{}{},
	}
	// Self room, so peers can address this connection directly.
	cl.rooms[cl.ID] = struct{}{}

	log.Printf("[RoomHub] Client connected: %s", cl.ID)
	return cl
}

// Join adds the connection to a room and announces it. Re-joining is a
// set no-op, but the join announcements repeat; clients tolerate the
// duplicate system message.
func (h *RoomHub) Join(ctx context.Context, cl *RoomClient, roomID string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[*RoomClient]struct{})
		h.rooms[roomID] = room
	}
	room[cl] = struct{}{}
	cl.rooms[roomID] = struct{}{}
	h.mu.Unlock()

	// members is nil when the store is unavailable; relay still works.
	if h.members != nil {
		if err := h.members.Add(ctx, roomID, cl.ID); err != nil {
			log.Printf("[RoomHub] Failed to add %s to membership of %s: %v", cl.ID, roomID, err)
		}
	}

	h.emit(roomID, cl, protocol.MustMarshal(protocol.EventUserJoined, "", cl.ID))
	h.emit(roomID, cl, protocol.MustMarshal(protocol.EventChatMessage, "",
		protocol.UserLabel(cl.ID)+" joined the room"))
}

// Disconnect announces the departure to every joined room and clears
// membership. Cleanup always runs to completion; store failures are
// logged, never propagated.
func (h *RoomHub) Disconnect(ctx context.Context, cl *RoomClient) {
	h.mu.Lock()
	joined := make([]string, 0, len(cl.rooms))
	for roomID := range cl.rooms {
		if roomID == cl.ID {
			continue
		}
		joined = append(joined, roomID)
	}
	h.mu.Unlock()

	for _, roomID := range joined {
		h.emit(roomID, cl, protocol.MustMarshal(protocol.EventUserDisconnected, "", cl.ID))
		if h.members != nil {
			if err := h.members.Remove(ctx, roomID, cl.ID); err != nil {
				log.Printf("[RoomHub] Failed to remove %s from membership of %s: %v", cl.ID, roomID, err)
			}
		}
	}

	h.mu.Lock()
	for _, roomID := range joined {
		if room, ok := h.rooms[roomID]; ok {
			delete(room, cl)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	cl.rooms = map[string]struct{}{}
	h.mu.Unlock()

	log.Printf("[RoomHub] Client disconnected: %s", cl.ID)
}

// Dispatch routes one inbound envelope from a connection.
func (h *RoomHub) Dispatch(ctx context.Context, cl *RoomClient, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[RoomHub] Malformed event from %s: %v", cl.ID, err)
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		h.Join(ctx, cl, env.Room)

	case protocol.EventChatMessage:
		text, err := env.Text()
		if err != nil {
			log.Printf("[RoomHub] %v", err)
			return
		}
		clean := h.sanitizer.Clean(text)
		// Chat goes to everyone including the sender, so all UIs
		// render the same sanitized text.
		h.emit(env.Room, nil, protocol.MustMarshal(protocol.EventChatMessage, "", clean))

	case protocol.EventTyping, protocol.EventShareScreen:
		// Peer-only: the sender already reflects its own state.
		h.relay(env, cl)

	case protocol.EventDraw, protocol.EventSharedNotes, protocol.EventFileUploaded,
		protocol.EventPollCreated, protocol.EventPollVote:
		// Full-room fan-out, sender included. Poll votes are relayed
		// unvalidated; receivers ignore unknown values.
		h.relay(env, nil)

	default:
		log.Printf("[RoomHub] Unknown event %q from %s", env.Event, cl.ID)
	}
}

// relay rebroadcasts the envelope's payload verbatim into its room.
func (h *RoomHub) relay(env protocol.Envelope, exclude *RoomClient) {
	out := protocol.Envelope{Event: env.Event, Data: env.Data}
	raw, err := json.Marshal(out)
	if err != nil {
		log.Printf("[RoomHub] Failed to marshal %s relay: %v", env.Event, err)
		return
	}
	h.emit(env.Room, exclude, raw)
}

// emit delivers data to every member of roomID except exclude. The
// member list is snapshotted first so a failing or slow peer never
// blocks the map, and one peer's write failure never stops the rest.
func (h *RoomHub) emit(roomID string, exclude *RoomClient, data []byte) {
	h.mu.RLock()
	room := h.rooms[roomID]
	targets := make([]*RoomClient, 0, len(room))
	for cl := range room {
		if cl == exclude {
			continue
		}
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if err := cl.send(data); err != nil {
			log.Printf("[RoomHub] Failed to send to %s: %v", cl.ID, err)
		}
	}
}

// HandleWebSocket runs the read loop for one upgraded connection.
func (h *RoomHub) HandleWebSocket(c *websocket.Conn) {
	cl := h.Register(c)

	defer func() {
		h.Disconnect(context.Background(), cl)
		c.Close()
	}()

	for {
		msgType, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.Dispatch(context.Background(), cl, raw)
	}
}
