package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/Alwanly/lunch-match-sync/pkg/wrapper"
)

// UserRateLimit allows each authenticated user burst requests, refilled one
// per every. It must run after UserTokenAuth; unauthenticated requests pass.
func UserRateLimit(every time.Duration, burst int) fiber.Handler {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *fiber.Ctx) error {
		userID, ok := UserID(c)
		if !ok {
			return c.Next()
		}

		mu.Lock()
		l, ok := limiters[userID]
		if !ok {
			l = rate.NewLimiter(limit, burst)
			limiters[userID] = l
		}
		mu.Unlock()

		if !l.Allow() {
			res := wrapper.ResponseFailed(http.StatusTooManyRequests, "too_many_requests", "slow down")
			return c.Status(res.Code).JSON(res)
		}
		return c.Next()
	}
}
