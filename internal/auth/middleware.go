package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Authorization 헤더에서 토큰 추출
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: No token provided",
			})
		}

		// Bearer 토큰 파싱
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}

		// 토큰 검증
		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			if err == ErrExpiredToken {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: Invalid token",
			})
		}

		// 사용자 정보를 컨텍스트에 저장
		c.Locals("userID", claims.UserID)
		c.Locals("claims", claims)

		return c.Next()
	}
}
