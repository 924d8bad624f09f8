package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}

	// Database connection
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	tables := []string{"users", "study_rooms", "study_sessions", "files", "achievements"}
	for _, table := range tables {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			fmt.Printf("⚠️ %s: %v\n", table, err)
			continue
		}
		fmt.Printf("📊 %s: %d rows\n", table, count)
	}

	// 세션 합계 확인
	type SessionTotals struct {
		Hours    float64
		Messages int64
	}
	var totals SessionTotals
	if err := db.Raw(
		"SELECT COALESCE(SUM(hours_spent), 0) AS hours, COALESCE(SUM(messages_sent), 0) AS messages FROM study_sessions",
	).Scan(&totals).Error; err != nil {
		log.Fatal("Failed to sum study_sessions:", err)
	}

	fmt.Println()
	fmt.Printf("⏱️ Total study hours: %.2f\n", totals.Hours)
	fmt.Printf("💬 Total messages sent: %d\n", totals.Messages)
}
