package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pasokh-ai/pasokh/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// conversationModel maps to the conversations table.
type conversationModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"index"`
	Title          string
	Summary        string
	MessageCount   int
	TokenCount     int
	LastActivityAt time.Time
	CreatedAt      time.Time
}

func (conversationModel) TableName() string {
	return "conversations"
}

// ConversationRepo accesses conversation rows.
type ConversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts a new conversation for its first query.
func (r *ConversationRepo) Create(ctx context.Context, userID, title string) (types.Conversation, error) {
	now := time.Now()
	record := conversationModel{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          title,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return types.Conversation{}, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conversationFromModel(record), nil
}

// Get loads one conversation.
func (r *ConversationRepo) Get(ctx context.Context, id uuid.UUID) (types.Conversation, error) {
	var record conversationModel
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Conversation{}, ErrNotFound
	}
	if err != nil {
		return types.Conversation{}, fmt.Errorf("failed to query conversation: %w", err)
	}
	return conversationFromModel(record), nil
}

// UpdateSummary replaces the rolling summary. One active summary per
// conversation: the column is the summary.
func (r *ConversationRepo) UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error {
	result := r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", id).
		Update("summary", summary)
	if result.Error != nil {
		return fmt.Errorf("failed to update summary: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpCounters advances message/token counters and the activity timestamp
// after a turn is persisted.
func (r *ConversationRepo) BumpCounters(ctx context.Context, id uuid.UUID, messages, tokens int) error {
	result := r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count":    gorm.Expr("message_count + ?", messages),
			"token_count":      gorm.Expr("token_count + ?", tokens),
			"last_activity_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to bump conversation counters: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func conversationFromModel(record conversationModel) types.Conversation {
	return types.Conversation{
		ID:             record.ID,
		UserID:         record.UserID,
		Title:          record.Title,
		Summary:        record.Summary,
		MessageCount:   record.MessageCount,
		TokenCount:     record.TokenCount,
		LastActivityAt: record.LastActivityAt,
		CreatedAt:      record.CreatedAt,
	}
}
