// Package agent implements the client-side counterpart of the room
// relay: it owns one room's local view for one user, originates every
// outbound event, and is the only caller of the snapshot and session
// persistence endpoints.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"studysync-backend/internal/protocol"
)

// Phase 룸 에이전트 상태
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseJoining
	PhaseActive
	PhaseLeaving
)

// String 상태를 문자열로 반환
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseJoining:
		return "joining"
	case PhaseActive:
		return "active"
	case PhaseLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// ErrNotActive is returned when an outbound operation is attempted
// outside the active phase.
var ErrNotActive = errors.New("agent: room session not active")

// EventSender delivers outbound events to the room channel.
type EventSender interface {
	Emit(event, room string, data any) error
}

// SnapshotClient is the durable room snapshot surface (GET/POST
// /room/:roomId).
type SnapshotClient interface {
	Read(ctx context.Context, roomID string) (protocol.Snapshot, error)
	Write(ctx context.Context, roomID string, snap protocol.Snapshot) error
}

// Metrics are the client-accumulated session counters flushed on
// leave.
type Metrics struct {
	HoursSpent    float64 `json:"hours_spent"`
	MessagesSent  int     `json:"messages_sent"`
	NotesShared   int     `json:"notes_shared"`
	FilesUploaded int     `json:"files_uploaded"`
	PollVotes     int     `json:"poll_votes"`
}

// MetricsClient is the session metrics upsert surface (POST
// /session/:roomId). User identity rides on the bearer credential.
type MetricsClient interface {
	Upsert(ctx context.Context, roomID string, m Metrics) error
}

// Participant is the client-local projection of a room member. Entries
// are never removed, only marked offline, so the history of who was
// present stays visible.
type Participant struct {
	ID     string
	Name   string
	Online bool
}

// PollTally 로컬 투표 집계
type PollTally struct {
	Yes int
	No  int
}

// celebrateAfter is the elapsed-time threshold that triggers the
// one-time celebration effect.
const celebrateAfter = time.Hour

// RoomAgent is the single logical owner of one room's view. It is not
// shared across simultaneous room memberships; construct one per
// active room.
type RoomAgent struct {
	roomID string
	connID string

	sender    EventSender
	snapshots SnapshotClient
	metrics   MetricsClient

	mu           sync.Mutex
	phase        Phase
	chat         []protocol.ChatEntry
	notes        string
	whiteboard   []protocol.Point
	participants []Participant
	pollActive   bool
	tally        PollTally
	typingUser   string
	counters     Metrics
	enteredAt    time.Time
	celebrated   bool
	stopTimer    chan struct{}

	now         func() time.Time
	onError     func(error)
	onCelebrate func()
}

// Option configures a RoomAgent.
type Option func(*RoomAgent)

// WithConnID sets the connection id used to recognize the agent's own
// broadcasts.
func WithConnID(id string) Option {
	return func(a *RoomAgent) { a.connID = id }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *RoomAgent) { a.now = now }
}

// WithErrorHandler receives non-fatal persistence failures.
func WithErrorHandler(fn func(error)) Option {
	return func(a *RoomAgent) { a.onError = fn }
}

// WithCelebration fires once when the session crosses the one-hour
// mark.
func WithCelebration(fn func()) Option {
	return func(a *RoomAgent) { a.onCelebrate = fn }
}

// New RoomAgent 생성
func New(roomID string, sender EventSender, snapshots SnapshotClient, metrics MetricsClient, opts ...Option) *RoomAgent {
	a := &RoomAgent{
		roomID:       roomID,
		sender:       sender,
		snapshots:    snapshots,
		metrics:      metrics,
		phase:        PhaseDisconnected,
		chat:         []protocol.ChatEntry{},
		whiteboard:   []protocol.Point{},
		participants: []Participant{},
		now:          time.Now,
		onError:      func(error) {},
		onCelebrate:  func() {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Join reads the room's durable snapshot, announces the join, and
// enters the active phase.
func (a *RoomAgent) Join(ctx context.Context) error {
	a.mu.Lock()
	if a.phase != PhaseDisconnected {
		a.mu.Unlock()
		return fmt.Errorf("agent: join from phase %s", a.phase)
	}
	a.phase = PhaseJoining
	a.mu.Unlock()

	// One authoritative read; unknown rooms yield an empty snapshot.
	snap, err := a.snapshots.Read(ctx, a.roomID)
	if err != nil {
		a.onError(fmt.Errorf("load room content: %w", err))
		snap = protocol.Snapshot{Chat: []protocol.ChatEntry{}, Whiteboard: []protocol.Point{}}
	}

	if err := a.sender.Emit(protocol.EventJoinRoom, a.roomID, nil); err != nil {
		a.mu.Lock()
		a.phase = PhaseDisconnected
		a.mu.Unlock()
		return fmt.Errorf("agent: join room %s: %w", a.roomID, err)
	}

	a.mu.Lock()
	a.chat = snap.Chat
	a.notes = snap.Notes
	a.whiteboard = snap.Whiteboard
	a.phase = PhaseActive
	a.enteredAt = a.now()
	a.stopTimer = make(chan struct{})
	stop := a.stopTimer
	a.mu.Unlock()

	go a.runTimer(stop)
	return nil
}

// runTimer samples elapsed time once a second for the celebration
// threshold.
func (a *RoomAgent) runTimer(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Tick checks the elapsed-time threshold. Exported so tests can drive
// it without waiting on the wall clock.
func (a *RoomAgent) Tick() {
	a.mu.Lock()
	fire := a.phase == PhaseActive && !a.celebrated && a.now().Sub(a.enteredAt) > celebrateAfter
	if fire {
		a.celebrated = true
	}
	a.mu.Unlock()

	if fire {
		a.onCelebrate()
	}
}

// Leave flushes session metrics and tears the session down. The flush
// is best-effort: a failure reaches the error handler but never blocks
// teardown.
func (a *RoomAgent) Leave(ctx context.Context) {
	a.mu.Lock()
	if a.phase != PhaseActive {
		a.mu.Unlock()
		return
	}
	a.phase = PhaseLeaving
	if a.stopTimer != nil {
		close(a.stopTimer)
		a.stopTimer = nil
	}
	m := a.counters
	m.HoursSpent = a.now().Sub(a.enteredAt).Hours()
	a.mu.Unlock()

	if err := a.metrics.Upsert(ctx, a.roomID, m); err != nil {
		a.onError(fmt.Errorf("save session data: %w", err))
	}

	a.mu.Lock()
	a.phase = PhaseDisconnected
	a.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Outbound operations (accepted only while active)
// ---------------------------------------------------------------------------

func (a *RoomAgent) requireActive() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseActive {
		return ErrNotActive
	}
	return nil
}

// SendChat relays a chat message. The server echoes it back to
// everyone including this client, so the local transcript is appended
// on receipt, not here.
func (a *RoomAgent) SendChat(text string) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	if err := a.sender.Emit(protocol.EventChatMessage, a.roomID, text); err != nil {
		return err
	}
	a.mu.Lock()
	a.counters.MessagesSent++
	a.mu.Unlock()
	return nil
}

// Typing signals that this user is composing a message.
func (a *RoomAgent) Typing() error {
	if err := a.requireActive(); err != nil {
		return err
	}
	return a.sender.Emit(protocol.EventTyping, a.roomID, protocol.UserLabel(a.connID))
}

// Draw records one sampled stroke point locally, relays it, and
// writes the snapshot through.
func (a *RoomAgent) Draw(ctx context.Context, p protocol.Point) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	if err := a.sender.Emit(protocol.EventDraw, a.roomID, p); err != nil {
		return err
	}
	a.mu.Lock()
	a.whiteboard = append(a.whiteboard, p)
	a.mu.Unlock()
	a.writeThrough(ctx)
	return nil
}

// ShareNotes replaces the shared notes, relays them, and writes the
// snapshot through.
func (a *RoomAgent) ShareNotes(ctx context.Context, text string) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	if err := a.sender.Emit(protocol.EventSharedNotes, a.roomID, text); err != nil {
		return err
	}
	a.mu.Lock()
	a.notes = text
	a.counters.NotesShared++
	a.mu.Unlock()
	a.writeThrough(ctx)
	return nil
}

// AnnounceFile broadcasts a file-upload notice. The files_uploaded
// counter increments when this client's own notice is echoed back.
func (a *RoomAgent) AnnounceFile(filename string) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	return a.sender.Emit(protocol.EventFileUploaded, a.roomID, protocol.FileNotice{
		Filename:     filename,
		ConnectionID: a.connID,
	})
}

// CreatePoll activates the room poll and announces it.
func (a *RoomAgent) CreatePoll() error {
	if err := a.requireActive(); err != nil {
		return err
	}
	a.mu.Lock()
	a.pollActive = true
	a.mu.Unlock()
	return a.sender.Emit(protocol.EventPollCreated, a.roomID, nil)
}

// VotePoll casts a vote. The tally updates when the vote is echoed
// back to the room.
func (a *RoomAgent) VotePoll(vote string) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	if err := a.sender.Emit(protocol.EventPollVote, a.roomID, vote); err != nil {
		return err
	}
	a.mu.Lock()
	a.counters.PollVotes++
	a.mu.Unlock()
	return nil
}

// ShareScreen relays a screen-share status line to peers.
func (a *RoomAgent) ShareScreen(status string) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	return a.sender.Emit(protocol.EventShareScreen, a.roomID, status)
}

// ---------------------------------------------------------------------------
// Inbound events
// ---------------------------------------------------------------------------

// HandleEvent mirrors one inbound broadcast into local state.
// Content-bearing events also trigger a full-snapshot write-through.
func (a *RoomAgent) HandleEvent(ctx context.Context, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventChatMessage:
		text, err := env.Text()
		if err != nil {
			a.onError(err)
			return
		}
		a.appendChat(text)
		a.writeThrough(ctx)

	case protocol.EventUserJoined:
		id, err := env.Text()
		if err != nil {
			a.onError(err)
			return
		}
		a.markParticipant(id, true)
		a.appendChat(protocol.UserLabel(id) + " joined")
		a.writeThrough(ctx)

	case protocol.EventUserDisconnected:
		id, err := env.Text()
		if err != nil {
			a.onError(err)
			return
		}
		a.markParticipant(id, false)
		a.appendChat(protocol.UserLabel(id) + " disconnected")
		a.writeThrough(ctx)

	case protocol.EventTyping:
		label, err := env.Text()
		if err != nil {
			return
		}
		a.mu.Lock()
		a.typingUser = label
		a.mu.Unlock()

	case protocol.EventDraw:
		var p protocol.Point
		if err := json.Unmarshal(env.Data, &p); err != nil {
			a.onError(fmt.Errorf("draw payload: %w", err))
			return
		}
		a.mu.Lock()
		a.whiteboard = append(a.whiteboard, p)
		a.mu.Unlock()
		a.writeThrough(ctx)

	case protocol.EventSharedNotes:
		text, err := env.Text()
		if err != nil {
			a.onError(err)
			return
		}
		a.mu.Lock()
		a.notes = text
		a.mu.Unlock()
		a.writeThrough(ctx)

	case protocol.EventFileUploaded:
		var notice protocol.FileNotice
		if err := json.Unmarshal(env.Data, &notice); err != nil {
			a.onError(fmt.Errorf("file notice payload: %w", err))
			return
		}
		a.appendChat(protocol.UserLabel(notice.ConnectionID) + " uploaded " + notice.Filename)
		a.mu.Lock()
		if notice.ConnectionID == a.connID {
			a.counters.FilesUploaded++
		}
		a.mu.Unlock()
		a.writeThrough(ctx)

	case protocol.EventPollCreated:
		a.mu.Lock()
		a.pollActive = true
		a.mu.Unlock()

	case protocol.EventPollVote:
		vote, err := env.Text()
		if err != nil {
			return
		}
		a.mu.Lock()
		switch vote {
		case protocol.VoteYes:
			a.tally.Yes++
		case protocol.VoteNo:
			a.tally.No++
		default:
			// Votes are relayed unvalidated; simply ignore.
		}
		a.mu.Unlock()

	case protocol.EventShareScreen:
		// Signaling only; nothing durable to mirror.

	default:
		// Unknown events are dropped.
	}
}

func (a *RoomAgent) appendChat(text string) {
	a.mu.Lock()
	a.chat = append(a.chat, protocol.ChatEntry{
		Text:      text,
		Timestamp: protocol.NowTimestamp(),
	})
	a.mu.Unlock()
}

func (a *RoomAgent) markParticipant(id string, online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.participants {
		if a.participants[i].ID == id {
			a.participants[i].Online = online
			return
		}
	}
	if online {
		a.participants = append(a.participants, Participant{
			ID:     id,
			Name:   protocol.UserLabel(id),
			Online: true,
		})
	}
}

// writeThrough persists the entire current snapshot. Write volume
// scales with event count; failures are non-fatal and reach the error
// handler. The snapshot is copied first so no lock is held across the
// store call.
func (a *RoomAgent) writeThrough(ctx context.Context) {
	a.mu.Lock()
	snap := protocol.Snapshot{
		Chat:       append([]protocol.ChatEntry(nil), a.chat...),
		Notes:      a.notes,
		Whiteboard: append([]protocol.Point(nil), a.whiteboard...),
	}
	a.mu.Unlock()

	if err := a.snapshots.Write(ctx, a.roomID, snap); err != nil {
		a.onError(fmt.Errorf("save room content: %w", err))
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Phase 현재 상태
func (a *RoomAgent) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// ChatLog 로컬 채팅 기록 복사본
func (a *RoomAgent) ChatLog() []protocol.ChatEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]protocol.ChatEntry(nil), a.chat...)
}

// Notes 현재 공유 노트
func (a *RoomAgent) Notes() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notes
}

// Whiteboard 로컬 화이트보드 복사본
func (a *RoomAgent) Whiteboard() []protocol.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]protocol.Point(nil), a.whiteboard...)
}

// Participants 참가자 목록 복사본
func (a *RoomAgent) Participants() []Participant {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Participant(nil), a.participants...)
}

// Poll 투표 활성 여부와 로컬 집계
func (a *RoomAgent) Poll() (bool, PollTally) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pollActive, a.tally
}

// TypingUser 마지막 타이핑 표시 사용자
func (a *RoomAgent) TypingUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.typingUser
}

// Counters 현재 누적 카운터 (시간 제외)
func (a *RoomAgent) Counters() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters
}

// Elapsed 입장 후 경과 시간
func (a *RoomAgent) Elapsed() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseActive {
		return 0
	}
	return a.now().Sub(a.enteredAt)
}
