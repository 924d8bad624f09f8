package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"studysync-backend/internal/auth"
	"studysync-backend/internal/cache"
	"studysync-backend/internal/config"
	"studysync-backend/internal/handler"
	"studysync-backend/internal/presence"
	"studysync-backend/internal/sanitize"
)

// Server Fiber 서버 래퍼
type Server struct {
	app             *fiber.App
	cfg             *config.Config
	db              *gorm.DB
	authHandler     *handler.AuthHandler
	matchHandler    *handler.MatchHandler
	roomHandler     *handler.RoomHandler
	progressHandler *handler.ProgressHandler
	storageHandler  *handler.StorageHandler
	statsHandler    *handler.StatsHandler
	roomHub         *handler.RoomHub
	jwtManager      *auth.JWTManager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB, members presence.Store, statsCache *cache.RedisClient) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "StudySync API",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		BodyLimit:             cfg.Storage.MaxBodyBytes,
		DisableStartupMessage: false,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
	)
	sanitizer := sanitize.New()

	snapshots := handler.NewSnapshotStore(db)
	metrics := handler.NewMetricsStore(db)

	return &Server{
		app:             app,
		cfg:             cfg,
		db:              db,
		authHandler:     handler.NewAuthHandler(db, jwtManager, sanitizer),
		matchHandler:    handler.NewMatchHandler(db),
		roomHandler:     handler.NewRoomHandler(snapshots),
		progressHandler: handler.NewProgressHandler(metrics),
		storageHandler:  handler.NewStorageHandler(db, cfg.Storage.UploadDir),
		statsHandler:    handler.NewStatsHandler(db, statsCache),
		roomHub:         handler.NewRoomHub(members, sanitizer),
		jwtManager:      jwtManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,              // 최대 10회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// 인증 라우트
	s.app.Post("/register", authLimiter, s.authHandler.Register)
	s.app.Post("/login", authLimiter, s.authHandler.Login)
	s.app.Get("/user", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetUser)

	// 매칭 라우트
	s.app.Get("/match", auth.AuthMiddleware(s.jwtManager), s.matchHandler.GetMatches)

	// 룸 스냅샷 라우트
	s.app.Get("/room/:roomId", auth.AuthMiddleware(s.jwtManager), s.roomHandler.GetRoomContent)
	s.app.Post("/room/:roomId", auth.AuthMiddleware(s.jwtManager), s.roomHandler.SaveRoomContent)

	// 세션 진행 라우트
	s.app.Post("/session/:roomId", auth.AuthMiddleware(s.jwtManager), s.progressHandler.SaveSession)
	s.app.Get("/progress", auth.AuthMiddleware(s.jwtManager), s.progressHandler.GetProgress)

	// 파일 라우트
	s.app.Post("/upload", auth.AuthMiddleware(s.jwtManager), s.storageHandler.UploadFile)
	s.app.Get("/files", auth.AuthMiddleware(s.jwtManager), s.storageHandler.ListFiles)
	s.app.Get("/download/:filename", auth.AuthMiddleware(s.jwtManager), s.storageHandler.DownloadFile)

	// 관리자 통계 라우트
	s.app.Get("/admin/stats", auth.AuthMiddleware(s.jwtManager), s.statsHandler.GetStats)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 룸 채널 엔드포인트
	s.app.Get("/ws/room", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// 토큰 추출 (쿼리 파라미터 또는 쿠키)
		accessToken := c.Query("token")
		if accessToken == "" {
			accessToken = c.Cookies("access_token")
		}
		if accessToken == "" {
			// WebSocket은 JSON 응답 대신 연결 거부
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		// JWT 검증
		claims, err := s.jwtManager.ValidateAccessToken(accessToken)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("userId", claims.UserID)

		return c.Next()
	}, websocket.New(s.roomHub.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 StudySync API starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/room", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
