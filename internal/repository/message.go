package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pasokh-ai/pasokh/internal/types"
)

// messageModel maps to the messages table. Rows are append-only.
type messageModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;index"`
	Role           string
	Content        string
	TokenCount     int
	// Chunks/Sources snapshot what the assistant answered from.
	Chunks    json.RawMessage `gorm:"type:jsonb"`
	Sources   json.RawMessage `gorm:"type:jsonb"`
	Error     string
	CreatedAt time.Time
}

func (messageModel) TableName() string {
	return "messages"
}

// MessageRepo accesses message rows.
type MessageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append inserts one message. Messages are immutable after creation.
func (r *MessageRepo) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	chunks, err := marshalJSON(msg.Chunks)
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to encode message chunks: %w", err)
	}
	sources, err := marshalJSON(msg.Sources)
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to encode message sources: %w", err)
	}

	record := messageModel{
		ID:             uuid.New(),
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		TokenCount:     msg.TokenCount,
		Chunks:         chunks,
		Sources:        sources,
		Error:          msg.Error,
		CreatedAt:      time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return types.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return messageFromModel(record), nil
}

// ListRecent returns the last n messages, oldest-first.
func (r *MessageRepo) ListRecent(ctx context.Context, conversationID uuid.UUID, n int) ([]types.Message, error) {
	var records []messageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}

	results := make([]types.Message, 0, len(records))
	for _, record := range records {
		results = append(results, messageFromModel(record))
	}
	// Oldest -> newest
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// ListBefore returns messages older than the last keep ones, oldest-first.
// The summarizer folds these into the rolling summary.
func (r *MessageRepo) ListBefore(ctx context.Context, conversationID uuid.UUID, keep int) ([]types.Message, error) {
	var records []messageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Offset(keep).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query aged messages: %w", err)
	}

	results := make([]types.Message, 0, len(records))
	for _, record := range records {
		results = append(results, messageFromModel(record))
	}
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// CountByConversation counts persisted messages in one conversation.
func (r *MessageRepo) CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(count), nil
}

func messageFromModel(record messageModel) types.Message {
	var chunks []types.ChunkSnapshot
	var sources []types.SourceRef
	_ = unmarshalJSON(record.Chunks, &chunks)
	_ = unmarshalJSON(record.Sources, &sources)
	return types.Message{
		ID:             record.ID,
		ConversationID: record.ConversationID,
		Role:           types.Role(record.Role),
		Content:        record.Content,
		TokenCount:     record.TokenCount,
		Chunks:         chunks,
		Sources:        sources,
		Error:          record.Error,
		CreatedAt:      record.CreatedAt,
	}
}
