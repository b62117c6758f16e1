package usecase

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/internal/server/lunch/dto"
	"github.com/Alwanly/lunch-match-sync/internal/server/lunch/repository"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/wrapper"
)

type UseCase struct {
	Repo   repository.IRepository
	Logger *logger.CanonicalLogger
}

type UseCaseInterface interface {
	CreateUser(ctx context.Context, req *dto.CreateUserRequest) wrapper.JSONResult
	UpdateStatus(ctx context.Context, userID string, req *dto.UpdateStatusRequest) wrapper.JSONResult
	ListRecruiting(ctx context.Context, userID string) wrapper.JSONResult
	Like(ctx context.Context, userID string, req *dto.LikeRequest) wrapper.JSONResult
	CurrentMatch(ctx context.Context, userID string) wrapper.JSONResult
	CancelMatch(ctx context.Context, userID string) wrapper.JSONResult
	GetMessages(ctx context.Context, userID string, matchID int64) wrapper.JSONResult
	SendMessage(ctx context.Context, userID string, matchID int64, req *dto.SendMessageRequest) wrapper.JSONResult
}

func NewUseCase(uc UseCase) *UseCase {
	if uc.Logger == nil {
		uc.Logger = logger.NewNop()
	}
	return &uc
}

func (uc *UseCase) CreateUser(ctx context.Context, req *dto.CreateUserRequest) wrapper.JSONResult {
	user, err := uc.Repo.CreateUser(ctx, req.Name)
	if err != nil {
		return uc.internal(ctx, err)
	}
	logger.AddToContext(ctx, zap.String("created_user_id", user.ID))

	return wrapper.ResponseSuccess(http.StatusCreated, dto.CreateUserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Token: user.Token,
	})
}

func (uc *UseCase) UpdateStatus(ctx context.Context, userID string, req *dto.UpdateStatusRequest) wrapper.JSONResult {
	if *req.Recruiting {
		if _, err := uc.Repo.ActiveMatch(ctx, userID); err == nil {
			return wrapper.ResponseFailed(http.StatusConflict, "already_matched", "cancel the current match before recruiting")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return uc.internal(ctx, err)
		}
	}

	user, err := uc.Repo.SetRecruiting(ctx, userID, *req.Recruiting)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return wrapper.ResponseFailed(http.StatusNotFound, "not_found", "user not found")
		}
		return uc.internal(ctx, err)
	}
	return wrapper.ResponseSuccess(http.StatusOK, toUserResponse(*user))
}

func (uc *UseCase) ListRecruiting(ctx context.Context, userID string) wrapper.JSONResult {
	users, err := uc.Repo.ListRecruiting(ctx, userID)
	if err != nil {
		return uc.internal(ctx, err)
	}
	out := make([]dto.UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	return wrapper.ResponseSuccess(http.StatusOK, out)
}

func (uc *UseCase) Like(ctx context.Context, userID string, req *dto.LikeRequest) wrapper.JSONResult {
	if req.TargetID == userID {
		return wrapper.ResponseFailed(http.StatusBadRequest, "invalid_target", "cannot like yourself")
	}
	if _, err := uc.Repo.GetUser(ctx, req.TargetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return wrapper.ResponseFailed(http.StatusNotFound, "not_found", "target user not found")
		}
		return uc.internal(ctx, err)
	}

	match, err := uc.Repo.Like(ctx, userID, req.TargetID)
	if err != nil {
		return uc.internal(ctx, err)
	}
	if match == nil {
		return wrapper.ResponseSuccess(http.StatusOK, dto.LikeResponse{})
	}

	logger.AddToContext(ctx, zap.Int64(logger.FieldMatchID, match.ID))
	uc.publish(ctx, models.EventMatchFound, match, match.UserAID, match.UserBID)

	id := match.ID
	return wrapper.ResponseSuccess(http.StatusOK, dto.LikeResponse{Matched: true, MatchID: &id})
}

func (uc *UseCase) CurrentMatch(ctx context.Context, userID string) wrapper.JSONResult {
	match, err := uc.Repo.ActiveMatch(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return wrapper.ResponseSuccess(http.StatusOK, models.MatchState{})
	}
	if err != nil {
		return uc.internal(ctx, err)
	}

	id, created := match.ID, match.CreatedAt
	state := models.MatchState{Matched: true, MatchID: &id, CreatedAt: &created}
	if partner, err := uc.Repo.GetUser(ctx, match.PartnerOf(userID)); err == nil {
		state.Partner = &models.Partner{ID: partner.ID, Name: partner.Name}
	}
	return wrapper.ResponseSuccess(http.StatusOK, state)
}

func (uc *UseCase) CancelMatch(ctx context.Context, userID string) wrapper.JSONResult {
	match, err := uc.Repo.CancelActiveMatch(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return wrapper.ResponseFailed(http.StatusNotFound, "not_found", "no active match")
		}
		return uc.internal(ctx, err)
	}

	logger.AddToContext(ctx, zap.Int64(logger.FieldMatchID, match.ID))
	uc.publish(ctx, models.EventMatchCanceled, match, match.UserAID, match.UserBID)

	return wrapper.ResponseSuccess(http.StatusOK, nil)
}

func (uc *UseCase) GetMessages(ctx context.Context, userID string, matchID int64) wrapper.JSONResult {
	if _, res, ok := uc.participantMatch(ctx, userID, matchID); !ok {
		return res
	}

	messages, err := uc.Repo.ListMessages(ctx, matchID)
	if err != nil {
		return uc.internal(ctx, err)
	}
	return wrapper.ResponseSuccess(http.StatusOK, messages)
}

func (uc *UseCase) SendMessage(ctx context.Context, userID string, matchID int64, req *dto.SendMessageRequest) wrapper.JSONResult {
	match, res, ok := uc.participantMatch(ctx, userID, matchID)
	if !ok {
		return res
	}
	if match.Status != models.MatchStatusActive {
		return wrapper.ResponseFailed(http.StatusConflict, "match_canceled", "match is no longer active")
	}

	msg := &models.Message{MatchID: matchID, SenderID: userID, Body: req.Body}
	if err := uc.Repo.CreateMessage(ctx, msg); err != nil {
		return uc.internal(ctx, err)
	}

	uc.publish(ctx, models.EventNewMessage, match, match.PartnerOf(userID))
	return wrapper.ResponseSuccess(http.StatusCreated, msg)
}

// participantMatch loads the match and checks userID takes part in it.
func (uc *UseCase) participantMatch(ctx context.Context, userID string, matchID int64) (*models.Match, wrapper.JSONResult, bool) {
	logger.AddToContext(ctx, zap.Int64(logger.FieldMatchID, matchID))

	match, err := uc.Repo.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, wrapper.ResponseFailed(http.StatusNotFound, "not_found", "match not found"), false
		}
		return nil, uc.internal(ctx, err), false
	}
	if match.PartnerOf(userID) == "" {
		return nil, wrapper.ResponseFailed(http.StatusForbidden, "forbidden", "not a participant of this match"), false
	}
	return match, wrapper.JSONResult{}, true
}

// publish sends ev to each user. Failures are logged only; clients still poll.
func (uc *UseCase) publish(ctx context.Context, eventType string, match *models.Match, userIDs ...string) {
	for _, id := range userIDs {
		ev := models.Event{Type: eventType, UserID: id, MatchID: match.ID}
		if err := uc.Repo.PublishEvent(ctx, ev); err != nil {
			uc.Logger.WithError(err).Warn("failed to publish event",
				logger.String("type", eventType),
				logger.Int64(logger.FieldMatchID, match.ID),
			)
		}
	}
}

func (uc *UseCase) internal(ctx context.Context, err error) wrapper.JSONResult {
	logger.AddToContext(ctx, zap.Error(err))
	return wrapper.ResponseFailed(http.StatusInternalServerError, "internal_error", "internal server error")
}

func toUserResponse(u models.User) dto.UserResponse {
	return dto.UserResponse{ID: u.ID, Name: u.Name, Recruiting: u.Recruiting}
}

var _ UseCaseInterface = (*UseCase)(nil)
