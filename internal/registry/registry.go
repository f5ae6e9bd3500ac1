package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/veloramarket/push-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserToken pairs a user with their currently registered device token.
type UserToken struct {
	UserID string
	Token  string
}

// TokenStore is the single owner of the current-token field per user.
// Registration overwrites unconditionally; invalidation and logout clear.
type TokenStore interface {
	Set(ctx context.Context, userID, token string) error
	Get(ctx context.Context, userID string) (string, error)
	Clear(ctx context.Context, userID string) error
	ClearAll(ctx context.Context) error
	ListAll(ctx context.Context) ([]UserToken, error)
}

// DeviceTokenModel is the persistence model for the device_tokens table.
type DeviceTokenModel struct {
	UserID    string `gorm:"type:varchar(64);primaryKey"`
	Token     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (DeviceTokenModel) TableName() string {
	return "device_tokens"
}

type GormTokenStore struct {
	db *gorm.DB
}

var _ TokenStore = (*GormTokenStore)(nil)

func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

// Set registers a token with last-write-wins semantics: re-registration for
// the same user overwrites the previous token.
func (s *GormTokenStore) Set(ctx context.Context, userID, token string) error {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}

	model := DeviceTokenModel{UserID: userID, Token: token}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
		}).
		Create(&model).Error
}

func (s *GormTokenStore) Get(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	var model DeviceTokenModel
	err := s.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNoToken
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(model.Token) == "" {
		return "", domain.ErrNoToken
	}
	return model.Token, nil
}

// Clear removes a user's token. Clearing an absent token is not an error so
// that logout and provider-reported invalidation stay idempotent.
func (s *GormTokenStore) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	return s.db.WithContext(ctx).
		Delete(&DeviceTokenModel{}, "user_id = ?", userID).Error
}

func (s *GormTokenStore) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&DeviceTokenModel{}).Error
}

func (s *GormTokenStore) ListAll(ctx context.Context) ([]UserToken, error) {
	var models []DeviceTokenModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}

	tokens := make([]UserToken, 0, len(models))
	for i := range models {
		if strings.TrimSpace(models[i].Token) == "" {
			continue
		}
		tokens = append(tokens, UserToken{UserID: models[i].UserID, Token: models[i].Token})
	}
	return tokens, nil
}
