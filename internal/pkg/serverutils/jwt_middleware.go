package serverutils

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const RoleServerOwner = "server_owner"

// NewJwtMiddleware verifies an HS256 bearer token and exposes the user_id
// and role claims as fiber locals.
func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Missing token"))
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Invalid claims"))
		}
		userId, _ := claims["user_id"].(string)
		if userId == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Invalid claims"))
		}
		role, _ := claims["role"].(string)

		ctx.Locals("user_id", userId)
		ctx.Locals("role", role)
		return ctx.Next()
	}
}

// RequireRole must run after the JWT middleware.
func RequireRole(role string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if got, _ := ctx.Locals("role").(string); got != role {
			return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(403, "Forbidden"))
		}
		return ctx.Next()
	}
}

// SignToken issues a token carrying the claims NewJwtMiddleware reads.
func SignToken(secret, userId, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId,
		"role":    role,
	})
	return token.SignedString([]byte(secret))
}
