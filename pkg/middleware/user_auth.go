package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/wrapper"
)

const UserIDContextKey = "user_id"

// UserTokenAuth resolves the bearer token to a user and stores its id in
// c.Locals(UserIDContextKey).
func UserTokenAuth(db *gorm.DB, log *logger.CanonicalLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			log.Debug("malformed authorization header", zap.String("path", c.Path()))
			return unauthorized(c, "malformed authorization header")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).Where("token = ?", parts[1]).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Debug("invalid bearer token",
					zap.String("path", c.Path()),
					zap.String("ip", c.IP()),
				)
				return unauthorized(c, "invalid bearer token")
			}

			log.Error("database error during token lookup",
				zap.Error(err),
				zap.String("path", c.Path()),
			)
			res := wrapper.ResponseFailed(http.StatusInternalServerError, "internal_error", "authentication failed")
			return c.Status(res.Code).JSON(res)
		}

		c.Locals(UserIDContextKey, user.ID)
		logger.AddToContext(c.UserContext(), zap.String(logger.FieldUserID, user.ID))

		return c.Next()
	}
}

// UserID returns the authenticated user's id set by UserTokenAuth.
func UserID(c *fiber.Ctx) (string, bool) {
	id, ok := c.Locals(UserIDContextKey).(string)
	return id, ok && id != ""
}

func unauthorized(c *fiber.Ctx, message string) error {
	res := wrapper.ResponseFailed(http.StatusUnauthorized, "unauthorized", message)
	return c.Status(res.Code).JSON(res)
}
