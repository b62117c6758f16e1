package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/wrapper"
)

// ErrorHandler renders errors that escape handlers as the response envelope.
func ErrorHandler(log *logger.CanonicalLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			log.HTTPError(c.Method(), c.Path(), code, err)
		}

		errCode := strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_")
		res := wrapper.ResponseFailed(code, errCode, message)
		return c.Status(code).JSON(res)
	}
}
