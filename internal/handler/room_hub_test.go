package handler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"studysync-backend/internal/protocol"
	"studysync-backend/internal/sanitize"
)

// fakeConn records every frame written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]protocol.Envelope, 0, len(f.frames))
	for _, raw := range f.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("malformed frame %q: %v", raw, err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// memStore is an in-memory membership store.
type memStore struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func newMemStore() *memStore {
	return &memStore{rooms: map[string]map[string]struct{}{}}
}

func (m *memStore) Add(_ context.Context, roomID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = map[string]struct{}{}
	}
	m.rooms[roomID][connID] = struct{}{}
	return nil
}

func (m *memStore) Remove(_ context.Context, roomID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms[roomID], connID)
	return nil
}

func (m *memStore) Members(_ context.Context, roomID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rooms[roomID]))
	for id := range m.rooms[roomID] {
		out = append(out, id)
	}
	return out, nil
}

type hubFixture struct {
	hub   *RoomHub
	store *memStore
}

func newHubFixture() hubFixture {
	store := newMemStore()
	return hubFixture{
		hub:   NewRoomHub(store, sanitize.New()),
		store: store,
	}
}

func TestRoomHub_JoinAnnouncesToPeersOnly(t *testing.T) {
	fx := newHubFixture()
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := fx.hub.Register(connA)
	clB := fx.hub.Register(connB)

	fx.hub.Join(ctx, clA, "room-1")
	connA.reset()

	fx.hub.Join(ctx, clB, "room-1")

	// The joining connection hears nothing about its own join.
	if got := connB.envelopes(t); len(got) != 0 {
		t.Errorf("joiner received %d frames, want 0", len(got))
	}

	envs := connA.envelopes(t)
	if len(envs) != 2 {
		t.Fatalf("peer received %d frames, want 2", len(envs))
	}
	if envs[0].Event != protocol.EventUserJoined {
		t.Errorf("first event = %q, want %q", envs[0].Event, protocol.EventUserJoined)
	}
	var joinedID string
	if err := json.Unmarshal(envs[0].Data, &joinedID); err != nil || joinedID != clB.ID {
		t.Errorf("user-joined payload = %q (err %v), want %q", joinedID, err, clB.ID)
	}
	if envs[1].Event != protocol.EventChatMessage {
		t.Errorf("second event = %q, want %q", envs[1].Event, protocol.EventChatMessage)
	}
	var sysText string
	if err := json.Unmarshal(envs[1].Data, &sysText); err != nil {
		t.Fatalf("system message payload: %v", err)
	}
	if !strings.HasSuffix(sysText, "joined the room") || !strings.HasPrefix(sysText, "User ") {
		t.Errorf("system message = %q, want 'User xxxxxxxx joined the room'", sysText)
	}

	members, _ := fx.store.Members(ctx, "room-1")
	if len(members) != 2 {
		t.Errorf("membership = %v, want 2 entries", members)
	}
}

func TestRoomHub_RejoinRepeatsAnnouncement(t *testing.T) {
	fx := newHubFixture()
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := fx.hub.Register(connA)
	clB := fx.hub.Register(connB)

	fx.hub.Join(ctx, clA, "room-1")
	fx.hub.Join(ctx, clB, "room-1")
	connA.reset()

	fx.hub.Join(ctx, clB, "room-1")

	// Membership is a set, but the announcements repeat.
	if got := connA.envelopes(t); len(got) != 2 {
		t.Errorf("peer received %d frames on re-join, want 2", len(got))
	}
	members, _ := fx.store.Members(ctx, "room-1")
	if len(members) != 2 {
		t.Errorf("membership after re-join = %v, want 2 entries", members)
	}
}

func TestRoomHub_ChatSanitizedAndSentToAll(t *testing.T) {
	fx := newHubFixture()
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := fx.hub.Register(connA)
	clB := fx.hub.Register(connB)
	fx.hub.Join(ctx, clA, "room-1")
	fx.hub.Join(ctx, clB, "room-1")
	connA.reset()
	connB.reset()

	raw := protocol.MustMarshal(protocol.EventChatMessage, "room-1", "<script>alert('x')</script>hi")
	fx.hub.Dispatch(ctx, clA, raw)

	for name, conn := range map[string]*fakeConn{"sender": connA, "peer": connB} {
		envs := conn.envelopes(t)
		if len(envs) != 1 {
			t.Fatalf("%s received %d frames, want 1", name, len(envs))
		}
		if envs[0].Event != protocol.EventChatMessage {
			t.Errorf("%s event = %q, want chat-message", name, envs[0].Event)
		}
		text, err := envs[0].Text()
		if err != nil {
			t.Fatalf("%s payload: %v", name, err)
		}
		if text != "hi" {
			t.Errorf("%s chat text = %q, want %q", name, text, "hi")
		}
	}
}

func TestRoomHub_TypingGoesToPeersOnly(t *testing.T) {
	fx := newHubFixture()
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := fx.hub.Register(connA)
	clB := fx.hub.Register(connB)
	fx.hub.Join(ctx, clA, "room-1")
	fx.hub.Join(ctx, clB, "room-1")
	connA.reset()
	connB.reset()

	fx.hub.Dispatch(ctx, clA, protocol.MustMarshal(protocol.EventTyping, "room-1", "User aaaa"))

	if got := connA.envelopes(t); len(got) != 0 {
		t.Errorf("sender received %d typing frames, want 0", len(got))
	}
	envs := connB.envelopes(t)
	if len(envs) != 1 || envs[0].Event != protocol.EventTyping {
		t.Fatalf("peer frames = %+v, want one typing event", envs)
	}
}

func TestRoomHub_DrawRelayedVerbatimToAll(t *testing.T) {
	fx := newHubFixture()
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := fx.hub.Register(connA)
	clB := fx.hub.Register(connB)
	fx.hub.Join(ctx, clA, "room-1")
	fx.hub.Join(ctx, clB, "room-1")
	connA.reset()
	connB.reset()

	point := protocol.Point{X: 10.5, Y: 20.25}
	fx.hub.Dispatch(ctx, clA, protocol.MustMarshal(protocol.EventDraw, "room-1", point))

	for name, conn := range map[string]*fakeConn{"sender": connA, "peer": connB} {
		envs := conn.envelopes(t)
		if len(envs) != 1 {
			t.Fatalf("%s received %d frames, want 1", name, len(envs))
		}
		if envs[0].Room != "" {
			t.Errorf("%s relayed envelope still carries room %q", name, envs[0].Room)
		}
		var got protocol.Point
		if err := json.Unmarshal(envs[0].Data, &got); err != nil {
			t.Fatalf("%s draw payload: %v", name, err)
		}
		if got != point {
			t.Errorf("%s draw point = %+v, want %+v", name, got, point)
		}
	}
}

func TestRoomHub_PollVoteRelayedUnvalidated(t *testing.T) {
	fx := newHubFixture()
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := fx.hub.Register(connA)
	clB := fx.hub.Register(connB)
	fx.hub.Join(ctx, clA, "room-1")
	fx.hub.Join(ctx, clB, "room-1")
	connB.reset()

	fx.hub.Dispatch(ctx, clA, protocol.MustMarshal(protocol.EventPollVote, "room-1", "maybe"))

	envs := connB.envelopes(t)
	if len(envs) != 1 || envs[0].Event != protocol.EventPollVote {
		t.Fatalf("peer frames = %+v, want one poll-vote event", envs)
	}
	vote, err := envs[0].Text()
	if err != nil || vote != "maybe" {
		t.Errorf("vote payload = %q (err %v), want maybe passed through", vote, err)
	}
}

func TestRoomHub_DisconnectAnnouncesAndCleansUp(t *testing.T) {
	fx := newHubFixture()
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := fx.hub.Register(connA)
	clB := fx.hub.Register(connB)
	fx.hub.Join(ctx, clA, "room-1")
	fx.hub.Join(ctx, clA, "room-2")
	fx.hub.Join(ctx, clB, "room-1")
	connA.reset()
	connB.reset()

	fx.hub.Disconnect(ctx, clA)

	// The departing connection never hears its own departure.
	if got := connA.envelopes(t); len(got) != 0 {
		t.Errorf("departing client received %d frames, want 0", len(got))
	}

	envs := connB.envelopes(t)
	if len(envs) != 1 || envs[0].Event != protocol.EventUserDisconnected {
		t.Fatalf("peer frames = %+v, want one user-disconnected event", envs)
	}
	var id string
	if err := json.Unmarshal(envs[0].Data, &id); err != nil || id != clA.ID {
		t.Errorf("user-disconnected payload = %q (err %v), want %q", id, err, clA.ID)
	}

	for _, roomID := range []string{"room-1", "room-2"} {
		members, _ := fx.store.Members(ctx, roomID)
		for _, m := range members {
			if m == clA.ID {
				t.Errorf("membership of %s still lists departed client", roomID)
			}
		}
	}

	// The self room never reaches the membership store.
	if members, _ := fx.store.Members(ctx, clA.ID); len(members) != 0 {
		t.Errorf("self room has membership entries %v, want none", members)
	}
}

func TestRoomHub_NilMembershipStore(t *testing.T) {
	hub := NewRoomHub(nil, sanitize.New())
	ctx := context.Background()

	connA, connB := &fakeConn{}, &fakeConn{}
	clA := hub.Register(connA)
	clB := hub.Register(connB)

	hub.Join(ctx, clA, "room-1")
	hub.Join(ctx, clB, "room-1")
	connB.reset()

	hub.Dispatch(ctx, clA, protocol.MustMarshal(protocol.EventChatMessage, "room-1", "still works"))
	hub.Disconnect(ctx, clA)

	envs := connB.envelopes(t)
	if len(envs) != 2 {
		t.Fatalf("peer received %d frames, want chat + disconnect", len(envs))
	}
	if envs[0].Event != protocol.EventChatMessage || envs[1].Event != protocol.EventUserDisconnected {
		t.Errorf("events = %q, %q, want chat-message then user-disconnected", envs[0].Event, envs[1].Event)
	}
}
