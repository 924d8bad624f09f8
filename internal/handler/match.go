package handler

import (
	"fmt"
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"studysync-backend/internal/model"
)

// MatchHandler 스터디 그룹 매칭 핸들러
type MatchHandler struct {
	db *gorm.DB
}

// NewMatchHandler MatchHandler 생성
func NewMatchHandler(db *gorm.DB) *MatchHandler {
	return &MatchHandler{db: db}
}

// Match 매칭 후보
type Match struct {
	Email         string  `json:"email"`
	FieldOfStudy  *string `json:"field_of_study"`
	Compatibility float64 `json:"compatibility"`
	RoomID        string  `json:"roomId"`
}

// GetMatches 매칭 목록 조회.
// Compatibility is a placeholder uniform random score in [0.5, 1.0).
func (h *MatchHandler) GetMatches(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var me model.User
	if err := h.db.First(&me, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var others []model.User
	if err := h.db.Where("id != ?", userID).Find(&others).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	matches := make([]Match, 0, len(others))
	for _, u := range others {
		score := 0.5 + rand.Float64()*0.5
		if score <= 0.5 {
			continue
		}
		matches = append(matches, Match{
			Email:         u.Email,
			FieldOfStudy:  u.FieldOfStudy,
			Compatibility: score,
			RoomID:        fmt.Sprintf("room-%d-%d", userID, u.ID),
		})
	}

	return c.JSON(fiber.Map{"matches": matches})
}
