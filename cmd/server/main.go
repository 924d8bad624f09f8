package main

import (
	"log"

	"studysync-backend/internal/cache"
	"studysync-backend/internal/config"
	"studysync-backend/internal/database"
	"studysync-backend/internal/presence"
	"studysync-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	// 스키마 마이그레이션
	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Database migration failed: %v", err)
	}

	// Redis 참가자 저장소 (선택적 - 실패 시 룸 멤버십 기록 없이 동작)
	var members presence.Store
	if store, err := presence.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Printf("⚠️ Redis presence store unavailable: %v (participant sets disabled)", err)
	} else {
		log.Printf("✅ Redis presence store connected (%s)", cfg.Redis.Addr)
		members = store
		defer store.Close()
	}

	// Redis 통계 캐시 (선택적)
	var statsCache *cache.RedisClient
	if client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Printf("⚠️ Redis cache unavailable: %v (admin stats caching disabled)", err)
	} else {
		statsCache = client
		defer client.Close()
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, db, members, statsCache)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
