package handler

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Alwanly/lunch-match-sync/internal/config"
	"github.com/Alwanly/lunch-match-sync/internal/server/lunch/dto"
	"github.com/Alwanly/lunch-match-sync/internal/server/lunch/repository"
	"github.com/Alwanly/lunch-match-sync/internal/server/lunch/usecase"
	"github.com/Alwanly/lunch-match-sync/pkg/deps"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/middleware"
	"github.com/Alwanly/lunch-match-sync/pkg/validator"
	"github.com/Alwanly/lunch-match-sync/pkg/wrapper"
)

type Handler struct {
	Logger  *logger.CanonicalLogger
	UseCase usecase.UseCaseInterface
	Config  *config.ServerConfig
}

func NewHandler(d deps.App, cfg *config.ServerConfig) *Handler {
	repo := repository.NewRepository(d.Database, d.Pub)

	uc := usecase.NewUseCase(usecase.UseCase{
		Repo:   repo,
		Logger: d.Logger,
	})

	h := &Handler{
		Logger:  d.Logger,
		UseCase: uc,
		Config:  cfg,
	}

	d.Fiber.Get("/health", h.health)
	d.Fiber.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	d.Fiber.Post("/users", d.Middleware.BasicAuthAdmin(), h.createUser)

	userAuth := middleware.UserTokenAuth(d.Database, d.Logger)

	d.Fiber.Put("/users/me/status", userAuth, h.updateStatus)
	d.Fiber.Get("/users/recruiting", userAuth, h.listRecruiting)
	d.Fiber.Post("/likes", userAuth, h.like)

	matches := d.Fiber.Group("/matches", userAuth)
	matches.Get("/current", h.currentMatch)
	matches.Delete("/current", h.cancelMatch)
	matches.Get("/:id/messages", h.getMessages)
	matches.Post("/:id/messages", middleware.UserRateLimit(cfg.MessageRate, cfg.MessageBurst), h.sendMessage)

	return h
}

// health godoc
// @Summary     Health check
// @Description Get dev server health status (unauthenticated)
// @Tags        health
// @Produce     json
// @Success     200 {object} wrapper.JSONResult
// @Router      /health [get]
func (h *Handler) health(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "health_check"))

	return reply(c, wrapper.ResponseSuccess(http.StatusOK, fiber.Map{"status": "healthy"}))
}

// createUser godoc
// @Summary      Create a user
// @Description  Create a user and return its bearer token (admin only)
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateUserRequest true "User details"
// @Success      201 {object} wrapper.JSONResult{data=dto.CreateUserResponse}
// @Failure      400 {object} wrapper.JSONResult
// @Failure      401 {object} wrapper.JSONResult
// @Router       /users [post]
// @Security     BasicAuth
func (h *Handler) createUser(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "create_user"))

	req := new(dto.CreateUserRequest)
	if res, ok := parse(c, req); !ok {
		return reply(c, res)
	}
	return reply(c, h.UseCase.CreateUser(c.UserContext(), req))
}

// updateStatus godoc
// @Summary      Set recruiting status
// @Description  Mark the caller as looking, or no longer looking, for a lunch partner
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body dto.UpdateStatusRequest true "Recruiting flag"
// @Success      200 {object} wrapper.JSONResult{data=dto.UserResponse}
// @Failure      400 {object} wrapper.JSONResult
// @Failure      409 {object} wrapper.JSONResult "Caller has an active match"
// @Router       /users/me/status [put]
// @Security     BearerAuth
func (h *Handler) updateStatus(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "update_status"))

	userID, ok := middleware.UserID(c)
	if !ok {
		return reply(c, authContextError())
	}
	req := new(dto.UpdateStatusRequest)
	if res, ok := parse(c, req); !ok {
		return reply(c, res)
	}
	return reply(c, h.UseCase.UpdateStatus(c.UserContext(), userID, req))
}

// listRecruiting godoc
// @Summary      List recruiting users
// @Description  List users currently looking for a lunch partner, excluding the caller
// @Tags         users
// @Produce      json
// @Success      200 {object} wrapper.JSONResult{data=[]dto.UserResponse}
// @Router       /users/recruiting [get]
// @Security     BearerAuth
func (h *Handler) listRecruiting(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "list_recruiting"))

	userID, ok := middleware.UserID(c)
	if !ok {
		return reply(c, authContextError())
	}
	return reply(c, h.UseCase.ListRecruiting(c.UserContext(), userID))
}

// like godoc
// @Summary      Like a user
// @Description  Like another user; a mutual like creates a match and notifies both users
// @Tags         matches
// @Accept       json
// @Produce      json
// @Param        request body dto.LikeRequest true "Target user"
// @Success      200 {object} wrapper.JSONResult{data=dto.LikeResponse}
// @Failure      400 {object} wrapper.JSONResult
// @Failure      404 {object} wrapper.JSONResult
// @Router       /likes [post]
// @Security     BearerAuth
func (h *Handler) like(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "like"))

	userID, ok := middleware.UserID(c)
	if !ok {
		return reply(c, authContextError())
	}
	req := new(dto.LikeRequest)
	if res, ok := parse(c, req); !ok {
		return reply(c, res)
	}
	return reply(c, h.UseCase.Like(c.UserContext(), userID, req))
}

// currentMatch godoc
// @Summary      Current match
// @Description  The caller's active match; matched=false and match_id=null when there is none
// @Tags         matches
// @Produce      json
// @Success      200 {object} wrapper.JSONResult{data=models.MatchState}
// @Router       /matches/current [get]
// @Security     BearerAuth
func (h *Handler) currentMatch(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "current_match"))

	userID, ok := middleware.UserID(c)
	if !ok {
		return reply(c, authContextError())
	}
	return reply(c, h.UseCase.CurrentMatch(c.UserContext(), userID))
}

// cancelMatch godoc
// @Summary      Cancel the current match
// @Description  Cancel the caller's active match and notify both users
// @Tags         matches
// @Produce      json
// @Success      200 {object} wrapper.JSONResult
// @Failure      404 {object} wrapper.JSONResult "No active match"
// @Router       /matches/current [delete]
// @Security     BearerAuth
func (h *Handler) cancelMatch(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "cancel_match"))

	userID, ok := middleware.UserID(c)
	if !ok {
		return reply(c, authContextError())
	}
	return reply(c, h.UseCase.CancelMatch(c.UserContext(), userID))
}

// getMessages godoc
// @Summary      Message history
// @Description  All messages of a match, oldest first (participants only)
// @Tags         messages
// @Produce      json
// @Param        id path int true "Match ID"
// @Success      200 {object} wrapper.JSONResult{data=[]models.Message}
// @Failure      403 {object} wrapper.JSONResult
// @Failure      404 {object} wrapper.JSONResult
// @Router       /matches/{id}/messages [get]
// @Security     BearerAuth
func (h *Handler) getMessages(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "get_messages"))

	userID, ok := middleware.UserID(c)
	if !ok {
		return reply(c, authContextError())
	}
	matchID, res, ok := matchIDParam(c)
	if !ok {
		return reply(c, res)
	}
	return reply(c, h.UseCase.GetMessages(c.UserContext(), userID, matchID))
}

// sendMessage godoc
// @Summary      Send a message
// @Description  Post a message to an active match (rate limited per user)
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        id path int true "Match ID"
// @Param        request body dto.SendMessageRequest true "Message"
// @Success      201 {object} wrapper.JSONResult{data=models.Message}
// @Failure      400 {object} wrapper.JSONResult
// @Failure      409 {object} wrapper.JSONResult "Match no longer active"
// @Failure      429 {object} wrapper.JSONResult
// @Router       /matches/{id}/messages [post]
// @Security     BearerAuth
func (h *Handler) sendMessage(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "send_message"))

	userID, ok := middleware.UserID(c)
	if !ok {
		return reply(c, authContextError())
	}
	matchID, res, ok := matchIDParam(c)
	if !ok {
		return reply(c, res)
	}
	req := new(dto.SendMessageRequest)
	if res, ok := parse(c, req); !ok {
		return reply(c, res)
	}
	return reply(c, h.UseCase.SendMessage(c.UserContext(), userID, matchID, req))
}

func reply(c *fiber.Ctx, res wrapper.JSONResult) error {
	return c.Status(res.Code).JSON(res)
}

// parse decodes and validates the request body into req.
func parse(c *fiber.Ctx, req interface{}) (wrapper.JSONResult, bool) {
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return wrapper.ResponseFailed(http.StatusBadRequest, "invalid_body", "invalid request body"), false
	}
	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return wrapper.ResponseFailed(http.StatusBadRequest, "validation_failed", validator.Message(err)), false
	}
	return wrapper.JSONResult{}, true
}

func matchIDParam(c *fiber.Ctx) (int64, wrapper.JSONResult, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, wrapper.ResponseFailed(http.StatusBadRequest, "invalid_match_id", "match id must be a positive integer"), false
	}
	return id, wrapper.JSONResult{}, true
}

func authContextError() wrapper.JSONResult {
	return wrapper.ResponseFailed(http.StatusInternalServerError, "internal_error", "authentication context error")
}
