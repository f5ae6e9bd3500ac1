package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/veloramarket/push-engine/internal/domain"
	"gorm.io/gorm"
)

// Recorder appends an audit row per attempted dispatch. Recording is
// independent of provider-level delivery confirmation: "we attempted to
// notify" is the unit of record.
type Recorder interface {
	Record(ctx context.Context, userID string, msg domain.Message, eventType domain.EventType) error
}

// NotificationRecordModel is the persistence model for notification_records.
// Append-only; the engine never reads it back.
type NotificationRecordModel struct {
	ID        string           `gorm:"type:uuid;primaryKey"`
	UserID    string           `gorm:"type:varchar(64);not null"`
	Title     string           `gorm:"type:varchar(255);not null"`
	Body      string           `gorm:"type:text;not null"`
	Type      domain.EventType `gorm:"type:varchar(20);not null"`
	Data      []byte           `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (NotificationRecordModel) TableName() string {
	return "notification_records"
}

type GormRecorder struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Recorder = (*GormRecorder)(nil)

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db, now: time.Now}
}

func (r *GormRecorder) Record(ctx context.Context, userID string, msg domain.Message, eventType domain.EventType) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if !eventType.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", domain.ErrValidation, eventType)
	}

	var data []byte
	if len(msg.Data) > 0 {
		encoded, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("failed to encode structured data: %w", err)
		}
		data = encoded
	}

	model := NotificationRecordModel{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     msg.Title,
		Body:      msg.Body,
		Type:      eventType,
		Data:      data,
		CreatedAt: r.now().UTC(),
	}

	return r.db.WithContext(ctx).Create(&model).Error
}
