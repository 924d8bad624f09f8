package handler

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"studysync-backend/internal/auth"
	"studysync-backend/internal/model"
	"studysync-backend/internal/sanitize"
)

// AuthHandler 회원가입/로그인/프로필 핸들러
type AuthHandler struct {
	db         *gorm.DB
	jwtManager *auth.JWTManager
	sanitizer  *sanitize.Sanitizer
	validate   *validator.Validate
}

// NewAuthHandler AuthHandler 생성
func NewAuthHandler(db *gorm.DB, jwtManager *auth.JWTManager, sanitizer *sanitize.Sanitizer) *AuthHandler {
	return &AuthHandler{
		db:         db,
		jwtManager: jwtManager,
		sanitizer:  sanitizer,
		validate:   validator.New(),
	}
}

// RegisterRequest 회원가입 요청
type RegisterRequest struct {
	Email         string          `json:"email" validate:"required,email"`
	Password      string          `json:"password" validate:"required,min=6"`
	Age           *int            `json:"age" validate:"omitempty,gte=16,lte=100"`
	AcademicLevel *string         `json:"academic_level" validate:"omitempty,oneof=Freshman Sophomore Junior Senior Graduate"`
	FieldOfStudy  *string         `json:"field_of_study" validate:"omitempty,max=100"`
	LearningStyle *string         `json:"learning_style" validate:"omitempty,max=100"`
	Schedule      json.RawMessage `json:"schedule"`
}

// LoginRequest 로그인 요청
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register 신규 사용자 등록
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	// 유효성 검사 실패는 그대로 사용자에게 노출
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	email := h.sanitizer.Clean(req.Email)

	var existing model.User
	err := h.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email already registered",
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to hash password",
		})
	}

	user := model.User{
		Email:         email,
		Password:      hashed,
		Age:           req.Age,
		AcademicLevel: req.AcademicLevel,
		FieldOfStudy:  req.FieldOfStudy,
		LearningStyle: req.LearningStyle,
	}
	if len(req.Schedule) > 0 {
		schedule := string(req.Schedule)
		user.Schedule = &schedule
	}

	if err := h.db.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": user.ID})
}

// Login 로그인 및 토큰 발급
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	email := h.sanitizer.Clean(req.Email)

	var user model.User
	err := h.db.Where("email = ?", email).First(&user).Error
	if err != nil || !auth.CheckPassword(user.Password, req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	return c.JSON(fiber.Map{"token": token})
}

// UserProfileResponse 프로필 응답
type UserProfileResponse struct {
	Email         string          `json:"email"`
	Age           *int            `json:"age"`
	AcademicLevel *string         `json:"academic_level"`
	FieldOfStudy  *string         `json:"field_of_study"`
	LearningStyle *string         `json:"learning_style"`
	Schedule      json.RawMessage `json:"schedule"`
}

// GetUser 현재 사용자 프로필
func (h *AuthHandler) GetUser(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var user model.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	resp := UserProfileResponse{
		Email:         user.Email,
		Age:           user.Age,
		AcademicLevel: user.AcademicLevel,
		FieldOfStudy:  user.FieldOfStudy,
		LearningStyle: user.LearningStyle,
	}
	if user.Schedule != nil {
		resp.Schedule = json.RawMessage(*user.Schedule)
	}

	return c.JSON(resp)
}
