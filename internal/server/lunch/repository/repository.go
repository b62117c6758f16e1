package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Alwanly/lunch-match-sync/internal/config"
	"github.com/Alwanly/lunch-match-sync/internal/models"
	authentication "github.com/Alwanly/lunch-match-sync/pkg/auth"
	"github.com/Alwanly/lunch-match-sync/pkg/pubsub"
)

var ErrNotFound = errors.New("record not found")

type IRepository interface {
	CreateUser(ctx context.Context, name string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetRecruiting(ctx context.Context, userID string, recruiting bool) (*models.User, error)
	ListRecruiting(ctx context.Context, exceptID string) ([]models.User, error)
	Like(ctx context.Context, fromID, toID string) (*models.Match, error)
	ActiveMatch(ctx context.Context, userID string) (*models.Match, error)
	CancelActiveMatch(ctx context.Context, userID string) (*models.Match, error)
	GetMatch(ctx context.Context, id int64) (*models.Match, error)
	ListMessages(ctx context.Context, matchID int64) ([]models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	PublishEvent(ctx context.Context, ev models.Event) error
}

type Repository struct {
	DB  *gorm.DB
	Pub pubsub.Publisher
}

func NewRepository(db *gorm.DB, publisher pubsub.Publisher) *Repository {
	return &Repository{DB: db, Pub: publisher}
}

// CreateUser creates a user with a UUIDv7 id and a fresh bearer token
func (r *Repository) CreateUser(ctx context.Context, name string) (*models.User, error) {
	token, err := authentication.GenerateToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	user := &models.User{
		ID:    uuid.Must(uuid.NewV7()).String(),
		Name:  name,
		Token: token,
	}
	if err := r.DB.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *Repository) SetRecruiting(ctx context.Context, userID string, recruiting bool) (*models.User, error) {
	result := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("recruiting", recruiting)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetUser(ctx, userID)
}

func (r *Repository) ListRecruiting(ctx context.Context, exceptID string) ([]models.User, error) {
	var users []models.User
	err := r.DB.WithContext(ctx).
		Where("recruiting = ? AND id <> ?", true, exceptID).
		Order("created_at DESC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recruiting users: %w", err)
	}
	return users, nil
}

// Like records fromID liking toID. When the like is mutual and neither user
// has an active match, it creates the match, clears both users' recruiting
// flag and consumes the pair's likes. It returns the created match or nil.
func (r *Repository) Like(ctx context.Context, fromID, toID string) (*models.Match, error) {
	var created *models.Match

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		like := models.Like{FromUserID: fromID, ToUserID: toID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
			return fmt.Errorf("failed to record like: %w", err)
		}

		var reverse int64
		if err := tx.Model(&models.Like{}).
			Where("from_user_id = ? AND to_user_id = ?", toID, fromID).
			Count(&reverse).Error; err != nil {
			return err
		}
		if reverse == 0 {
			return nil
		}

		pair := []string{fromID, toID}
		var busy int64
		if err := tx.Model(&models.Match{}).
			Where("status = ? AND (user_a_id IN ? OR user_b_id IN ?)", models.MatchStatusActive, pair, pair).
			Count(&busy).Error; err != nil {
			return err
		}
		if busy > 0 {
			return nil
		}

		match := &models.Match{UserAID: fromID, UserBID: toID, Status: models.MatchStatusActive}
		if err := tx.Create(match).Error; err != nil {
			return fmt.Errorf("failed to create match: %w", err)
		}
		if err := tx.Model(&models.User{}).Where("id IN ?", pair).Update("recruiting", false).Error; err != nil {
			return err
		}
		if err := tx.Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
			fromID, toID, toID, fromID).Delete(&models.Like{}).Error; err != nil {
			return err
		}

		created = match
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ActiveMatch returns the user's active match or ErrNotFound
func (r *Repository) ActiveMatch(ctx context.Context, userID string) (*models.Match, error) {
	var match models.Match
	err := r.DB.WithContext(ctx).
		Where("status = ? AND (user_a_id = ? OR user_b_id = ?)", models.MatchStatusActive, userID, userID).
		Order("id DESC").
		First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active match: %w", err)
	}
	return &match, nil
}

// CancelActiveMatch cancels the user's active match and returns it
func (r *Repository) CancelActiveMatch(ctx context.Context, userID string) (*models.Match, error) {
	match, err := r.ActiveMatch(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := r.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", match.ID, models.MatchStatusActive).
		Updates(map[string]interface{}{
			"status":      models.MatchStatusCanceled,
			"canceled_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to cancel match: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// canceled concurrently by the partner
		return nil, ErrNotFound
	}

	match.Status = models.MatchStatusCanceled
	match.CanceledAt = &now
	return match, nil
}

func (r *Repository) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	var match models.Match
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&match).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return &match, nil
}

func (r *Repository) ListMessages(ctx context.Context, matchID int64) ([]models.Message, error) {
	messages := []models.Message{}
	if err := r.DB.WithContext(ctx).Where("match_id = ?", matchID).Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *Repository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := r.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// PublishEvent publishes ev on the events channel; without a publisher it is a no-op
func (r *Repository) PublishEvent(ctx context.Context, ev models.Event) error {
	if r.Pub == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.Pub.Publish(ctx, config.EventsChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

var _ IRepository = (*Repository)(nil)
