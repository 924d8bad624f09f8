package handler

import (
	"testing"

	"studysync-backend/internal/model"
)

func TestMetricsStore_UpsertOverwrites(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))

	first := SessionMetrics{
		HoursSpent:    0.5,
		MessagesSent:  3,
		NotesShared:   1,
		FilesUploaded: 0,
		PollVotes:     2,
	}
	if err := store.Upsert(1, "room-1-2", first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Replaying the same payload is idempotent, not accumulating.
	if err := store.Upsert(1, "room-1-2", first); err != nil {
		t.Fatalf("Upsert() retry error = %v", err)
	}

	records, err := store.ListForUser(1)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListForUser() returned %d records, want 1", len(records))
	}
	if records[0].MessagesSent != 3 || records[0].PollVotes != 2 {
		t.Errorf("record = %+v, want messages_sent=3 poll_votes=2", records[0])
	}

	// A later save replaces the counters entirely, even downward.
	second := SessionMetrics{HoursSpent: 0.25, MessagesSent: 1}
	if err := store.Upsert(1, "room-1-2", second); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	records, err = store.ListForUser(1)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListForUser() returned %d records, want 1", len(records))
	}
	got := records[0]
	if got.HoursSpent != 0.25 || got.MessagesSent != 1 || got.NotesShared != 0 || got.PollVotes != 0 {
		t.Errorf("record after overwrite = %+v, want hours=0.25 messages=1 rest zero", got)
	}
}

func TestMetricsStore_SeparateRoomsAndUsers(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))

	if err := store.Upsert(1, "room-a", SessionMetrics{MessagesSent: 1}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Upsert(1, "room-b", SessionMetrics{MessagesSent: 2}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Upsert(2, "room-a", SessionMetrics{MessagesSent: 3}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	records, err := store.ListForUser(1)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("ListForUser(1) returned %d records, want 2", len(records))
	}

	records, err = store.ListForUser(2)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(records) != 1 || records[0].MessagesSent != 3 {
		t.Errorf("ListForUser(2) = %+v, want one record with messages_sent=3", records)
	}
}

func TestMetricsStore_HoursRoundedAndBadgeJoined(t *testing.T) {
	db := setupTestDB(t)
	store := NewMetricsStore(db)

	if err := store.Upsert(1, "room-x", SessionMetrics{HoursSpent: 1.23456}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	var sess model.StudySession
	if err := db.First(&sess, "user_id = ? AND room_id = ?", 1, "room-x").Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	badgeSession := sess.ID
	achievement := model.Achievement{UserID: 1, SessionID: &badgeSession, Badge: "1 Hour Hero"}
	if err := db.Create(&achievement).Error; err != nil {
		t.Fatalf("create achievement: %v", err)
	}

	records, err := store.ListForUser(1)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListForUser() returned %d records, want 1", len(records))
	}
	if records[0].HoursSpent != 1.23 {
		t.Errorf("hours_spent = %v, want 1.23", records[0].HoursSpent)
	}
	if records[0].Badge == nil || *records[0].Badge != "1 Hour Hero" {
		t.Errorf("badge = %v, want 1 Hour Hero", records[0].Badge)
	}
}
