package handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studysync-backend/internal/model"
	"studysync-backend/internal/protocol"
)

// SnapshotStore persists the durable {chat, notes, whiteboard} state of
// a room as a single record with full-replace semantics.
type SnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore SnapshotStore 생성
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Read returns the room's snapshot. An unseen room id yields an empty
// snapshot, never a not-found error.
func (s *SnapshotStore) Read(roomID string) (protocol.Snapshot, error) {
	empty := protocol.Snapshot{
		Chat:       []protocol.ChatEntry{},
		Notes:      "",
		Whiteboard: []protocol.Point{},
	}

	var room model.StudyRoom
	err := s.db.First(&room, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("read room %s: %w", roomID, err)
	}

	snap := empty
	if room.Chat != "" {
		if err := json.Unmarshal([]byte(room.Chat), &snap.Chat); err != nil {
			snap.Chat = []protocol.ChatEntry{}
		}
	}
	snap.Notes = room.Notes
	if room.Whiteboard != "" {
		if err := json.Unmarshal([]byte(room.Whiteboard), &snap.Whiteboard); err != nil {
			snap.Whiteboard = []protocol.Point{}
		}
	}
	return snap, nil
}

// Write upserts the room's snapshot, replacing every field. The last
// completed write wins entirely.
func (s *SnapshotStore) Write(roomID string, snap protocol.Snapshot) error {
	if snap.Chat == nil {
		snap.Chat = []protocol.ChatEntry{}
	}
	if snap.Whiteboard == nil {
		snap.Whiteboard = []protocol.Point{}
	}

	chatJSON, err := json.Marshal(snap.Chat)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	boardJSON, err := json.Marshal(snap.Whiteboard)
	if err != nil {
		return fmt.Errorf("encode whiteboard: %w", err)
	}

	room := model.StudyRoom{
		RoomID:     roomID,
		Chat:       string(chatJSON),
		Notes:      snap.Notes,
		Whiteboard: string(boardJSON),
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat", "notes", "whiteboard", "updated_at"}),
	}).Create(&room).Error
	if err != nil {
		return fmt.Errorf("write room %s: %w", roomID, err)
	}
	return nil
}

// RoomHandler 스터디룸 스냅샷 핸들러
type RoomHandler struct {
	store *SnapshotStore
}

// NewRoomHandler RoomHandler 생성
func NewRoomHandler(store *SnapshotStore) *RoomHandler {
	return &RoomHandler{store: store}
}

type roomContentRequest struct {
	Chat       []protocol.ChatEntry `json:"chat"`
	Notes      string               `json:"notes"`
	Whiteboard []protocol.Point     `json:"whiteboard"`
}

// GetRoomContent 스냅샷 조회 (없는 룸은 빈 스냅샷)
func (h *RoomHandler) GetRoomContent(c *fiber.Ctx) error {
	roomID := c.Params("roomId")

	snap, err := h.store.Read(roomID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	return c.JSON(snap)
}

// SaveRoomContent 스냅샷 전체 교체 저장
func (h *RoomHandler) SaveRoomContent(c *fiber.Ctx) error {
	roomID := c.Params("roomId")

	var req roomContentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	snap := protocol.Snapshot{
		Chat:       req.Chat,
		Notes:      req.Notes,
		Whiteboard: req.Whiteboard,
	}
	if err := h.store.Write(roomID, snap); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{"message": "Room content saved"})
}
