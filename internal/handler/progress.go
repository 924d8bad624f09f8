package handler

import (
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studysync-backend/internal/model"
)

// SessionMetrics holds the client-accumulated counters for one room
// visit. The client is the accumulator of record; the server only
// overwrites.
type SessionMetrics struct {
	HoursSpent    float64 `json:"hours_spent"`
	MessagesSent  int     `json:"messages_sent"`
	NotesShared   int     `json:"notes_shared"`
	FilesUploaded int     `json:"files_uploaded"`
	PollVotes     int     `json:"poll_votes"`
}

// MetricsStore persists per-(user, room) session metrics with
// idempotent-overwrite upsert semantics.
type MetricsStore struct {
	db *gorm.DB
}

// NewMetricsStore MetricsStore 생성
func NewMetricsStore(db *gorm.DB) *MetricsStore {
	return &MetricsStore{db: db}
}

// Upsert replaces the stored counters for (userID, roomID) with the
// given snapshot and refreshes last_updated. It never accumulates.
func (s *MetricsStore) Upsert(userID int64, roomID string, m SessionMetrics) error {
	record := model.StudySession{
		UserID:        userID,
		RoomID:        roomID,
		HoursSpent:    m.HoursSpent,
		MessagesSent:  m.MessagesSent,
		NotesShared:   m.NotesShared,
		FilesUploaded: m.FilesUploaded,
		PollVotes:     m.PollVotes,
		LastUpdated:   time.Now(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hours_spent", "messages_sent", "notes_shared",
			"files_uploaded", "poll_votes", "last_updated",
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("upsert session %d/%s: %w", userID, roomID, err)
	}
	return nil
}

// ProgressRecord is one row of a user's aggregate progress view.
type ProgressRecord struct {
	RoomID        string    `json:"room_id"`
	HoursSpent    float64   `json:"hours_spent"`
	MessagesSent  int       `json:"messages_sent"`
	NotesShared   int       `json:"notes_shared"`
	FilesUploaded int       `json:"files_uploaded"`
	PollVotes     int       `json:"poll_votes"`
	LastUpdated   time.Time `json:"last_updated"`
	Badge         *string   `json:"badge"`
}

// ListForUser returns the user's session records joined with any
// achievement badges.
func (s *MetricsStore) ListForUser(userID int64) ([]ProgressRecord, error) {
	var sessions []model.StudySession
	if err := s.db.Where("user_id = ?", userID).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions for user %d: %w", userID, err)
	}

	var achievements []model.Achievement
	if err := s.db.Where("user_id = ?", userID).Find(&achievements).Error; err != nil {
		return nil, fmt.Errorf("list achievements for user %d: %w", userID, err)
	}

	records := make([]ProgressRecord, 0, len(sessions))
	for _, sess := range sessions {
		rec := ProgressRecord{
			RoomID:        sess.RoomID,
			HoursSpent:    math.Round(sess.HoursSpent*100) / 100,
			MessagesSent:  sess.MessagesSent,
			NotesShared:   sess.NotesShared,
			FilesUploaded: sess.FilesUploaded,
			PollVotes:     sess.PollVotes,
			LastUpdated:   sess.LastUpdated,
		}
		for _, a := range achievements {
			if a.SessionID != nil && *a.SessionID == sess.ID {
				badge := a.Badge
				rec.Badge = &badge
				break
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ProgressHandler 세션 지표 핸들러
type ProgressHandler struct {
	store *MetricsStore
}

// NewProgressHandler ProgressHandler 생성
func NewProgressHandler(store *MetricsStore) *ProgressHandler {
	return &ProgressHandler{store: store}
}

// SaveSession POST /session/:roomId - 인증된 사용자의 지표 덮어쓰기 저장
func (h *ProgressHandler) SaveSession(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	roomID := c.Params("roomId")

	var m SessionMetrics
	if err := c.BodyParser(&m); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.store.Upsert(userID, roomID, m); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{"message": "Session data saved"})
}

// GetProgress GET /progress - 누적 진행도 조회
func (h *ProgressHandler) GetProgress(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	records, err := h.store.ListForUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{"progress": records})
}
