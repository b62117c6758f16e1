package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alwanly/lunch-match-sync/pkg/logger"
)

// CanonicalLoggerMiddleware emits one log line per request carrying every
// field handlers added with logger.AddToContext.
func CanonicalLoggerMiddleware(log *logger.CanonicalLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logCtx := logger.NewLogContext()
		c.Locals("log_context", logCtx)
		c.SetUserContext(logger.WithLogContext(c.UserContext(), logCtx))

		if id, ok := c.Locals("requestid").(string); ok {
			logCtx.AddField(zap.String(logger.FieldRequestID, id))
		}

		start := time.Now()

		// deferred so the line is written after recover has set the status
		defer func() {
			duration := time.Since(start)
			status := c.Response().StatusCode()

			fields := []zap.Field{
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			}
			fields = append(fields, logCtx.Fields()...)

			switch {
			case status >= 500:
				log.Error("http_request", fields...)
			case status >= 400:
				log.Info("http_request_client_error", fields...)
			case c.Path() == "/health" || c.Path() == "/metrics":
				log.Debug("http_request", fields...)
			default:
				log.Info("http_request", fields...)
			}
		}()

		return c.Next()
	}
}
