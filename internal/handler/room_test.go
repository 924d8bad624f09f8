package handler

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"studysync-backend/internal/database"
	"studysync-backend/internal/protocol"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func TestSnapshotStore_ReadUnknownRoom(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t))

	snap, err := store.Read("never-seen")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if len(snap.Chat) != 0 {
		t.Errorf("Read() chat = %v, want empty", snap.Chat)
	}
	if snap.Notes != "" {
		t.Errorf("Read() notes = %q, want empty", snap.Notes)
	}
	if len(snap.Whiteboard) != 0 {
		t.Errorf("Read() whiteboard = %v, want empty", snap.Whiteboard)
	}
}

func TestSnapshotStore_WriteThenRead(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t))

	in := protocol.Snapshot{
		Chat: []protocol.ChatEntry{
			{Text: "hello", Timestamp: "10:00:00"},
			{Text: "world", Timestamp: "10:00:05"},
		},
		Notes: "shared notes text",
		Whiteboard: []protocol.Point{
			{X: 1.5, Y: 2.5},
			{X: 3, Y: 4},
		},
	}

	if err := store.Write("room-1-2", in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out, err := store.Read("room-1-2")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if len(out.Chat) != 2 || out.Chat[0].Text != "hello" || out.Chat[1].Timestamp != "10:00:05" {
		t.Errorf("Read() chat = %+v, want %+v", out.Chat, in.Chat)
	}
	if out.Notes != in.Notes {
		t.Errorf("Read() notes = %q, want %q", out.Notes, in.Notes)
	}
	if len(out.Whiteboard) != 2 || out.Whiteboard[0].X != 1.5 || out.Whiteboard[1].Y != 4 {
		t.Errorf("Read() whiteboard = %+v, want %+v", out.Whiteboard, in.Whiteboard)
	}
}

func TestSnapshotStore_LastWriteWinsEntirely(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t))

	first := protocol.Snapshot{
		Chat:       []protocol.ChatEntry{{Text: "old", Timestamp: "09:00:00"}},
		Notes:      "old notes",
		Whiteboard: []protocol.Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
	}
	if err := store.Write("room-3-4", first); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// The replacement drops fields too; nothing from the first write
	// may survive.
	second := protocol.Snapshot{
		Chat:  []protocol.ChatEntry{{Text: "new", Timestamp: "09:01:00"}},
		Notes: "",
	}
	if err := store.Write("room-3-4", second); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out, err := store.Read("room-3-4")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if len(out.Chat) != 1 || out.Chat[0].Text != "new" {
		t.Errorf("Read() chat = %+v, want single new entry", out.Chat)
	}
	if out.Notes != "" {
		t.Errorf("Read() notes = %q, want empty after overwrite", out.Notes)
	}
	if len(out.Whiteboard) != 0 {
		t.Errorf("Read() whiteboard = %+v, want empty after overwrite", out.Whiteboard)
	}
}

func TestSnapshotStore_RoomsAreIndependent(t *testing.T) {
	store := NewSnapshotStore(setupTestDB(t))

	if err := store.Write("room-a", protocol.Snapshot{Notes: "alpha"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Write("room-b", protocol.Snapshot{Notes: "beta"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	a, err := store.Read("room-a")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	b, err := store.Read("room-b")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if a.Notes != "alpha" || b.Notes != "beta" {
		t.Errorf("notes = %q/%q, want alpha/beta", a.Notes, b.Notes)
	}
}
