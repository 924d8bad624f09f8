package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"studysync-backend/internal/cache"
	"studysync-backend/internal/model"
)

const (
	statsCacheKey = "admin:stats"
	statsCacheTTL = 60 * time.Second
)

// StatsHandler 관리자 통계 핸들러
type StatsHandler struct {
	db    *gorm.DB
	redis *cache.RedisClient // nil이면 캐싱 생략
}

// NewStatsHandler StatsHandler 생성
func NewStatsHandler(db *gorm.DB, redis *cache.RedisClient) *StatsHandler {
	return &StatsHandler{db: db, redis: redis}
}

// AdminStats 관리자 통계 응답. 설문 수치는 원 서비스의 고정값.
type AdminStats struct {
	TotalUsers    int64   `json:"totalUsers"`
	TotalSessions int64   `json:"totalSessions"`
	IsolationRate float64 `json:"isolationRate"`
	AIInterest    float64 `json:"aiInterest"`
	WTP           float64 `json:"wtp"`
}

// GetStats GET /admin/stats - 60초 Redis 캐시
func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if h.redis != nil {
		if cached, err := h.redis.Get(ctx, statsCacheKey); err == nil {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.SendString(cached)
		} else if !cache.IsMiss(err) {
			log.Printf("[Stats] Cache read failed: %v", err)
		}
	}

	var stats AdminStats
	if err := h.db.Model(&model.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}
	if err := h.db.Model(&model.StudySession{}).Count(&stats.TotalSessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}
	stats.IsolationRate = 0.73
	stats.AIInterest = 0.89
	stats.WTP = 15.40

	if h.redis != nil {
		if data, err := json.Marshal(stats); err == nil {
			go func(payload string) {
				cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := h.redis.Set(cctx, statsCacheKey, payload, statsCacheTTL); err != nil {
					log.Printf("[Stats] Cache write failed: %v", err)
				}
			}(string(data))
		}
	}

	return c.JSON(stats)
}
