package handler

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"studysync-backend/internal/model"
)

// StorageHandler 파일 업로드/목록/다운로드 핸들러. 파일 본문은 로컬
// 디스크에, 메타데이터는 files 테이블에 저장한다.
type StorageHandler struct {
	db        *gorm.DB
	uploadDir string
}

// NewStorageHandler StorageHandler 생성
func NewStorageHandler(db *gorm.DB, uploadDir string) *StorageHandler {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		// Surfaced on first upload attempt instead.
		log.Printf("[Storage] Failed to create upload dir %s: %v", uploadDir, err)
	}
	return &StorageHandler{db: db, uploadDir: uploadDir}
}

// UploadFile POST /upload - multipart 업로드
func (h *StorageHandler) UploadFile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file is required",
		})
	}

	// 저장 파일명: {unix-ms}-{원본명}, 경로 구성요소 제거
	base := filepath.Base(fileHeader.Filename)
	stored := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), base)

	if err := c.SaveFile(fileHeader, filepath.Join(h.uploadDir, stored)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save file",
		})
	}

	record := model.File{
		UserID:       userID,
		Filename:     stored,
		OriginalName: base,
	}
	if err := h.db.Create(&record).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{"message": "File uploaded successfully"})
}

// ListFiles GET /files - 내가 올린 파일 목록
func (h *StorageHandler) ListFiles(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var files []model.File
	if err := h.db.Select("id", "filename", "original_name").
		Where("user_id = ?", userID).Find(&files).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{"files": files})
}

// DownloadFile GET /download/:filename - 디스크에서 파일 전송
func (h *StorageHandler) DownloadFile(c *fiber.Ctx) error {
	filename := filepath.Base(c.Params("filename"))
	if filename == "." || strings.Contains(filename, "..") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid filename",
		})
	}

	path := filepath.Join(h.uploadDir, filename)
	if _, err := os.Stat(path); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "File not found",
		})
	}

	return c.Download(path)
}
