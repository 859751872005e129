package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/pasokh-ai/pasokh/internal/types"
)

// memoryItemModel maps to the memory_items table.
type memoryItemModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     string    `gorm:"index"`
	Content    string
	Category   string
	Confidence float64
	UsageCount int
	Version    int
	// MergedFrom records provenance across merges and consolidations.
	MergedFrom json.RawMessage `gorm:"type:jsonb"`
	Active     bool            `gorm:"index"`
	// Embedding supports similarity-ordered merge-candidate lookup.
	Embedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (memoryItemModel) TableName() string {
	return "memory_items"
}

// MemoryItemRepo accesses long-term memory rows.
type MemoryItemRepo struct {
	db *gorm.DB
}

func NewMemoryItemRepo(db *gorm.DB) *MemoryItemRepo {
	return &MemoryItemRepo{db: db}
}

// Insert stores a new active item at version 1.
func (r *MemoryItemRepo) Insert(ctx context.Context, item types.MemoryItem) (types.MemoryItem, error) {
	record, err := modelFromMemoryItem(item)
	if err != nil {
		return types.MemoryItem{}, err
	}
	record.ID = uuid.New()
	record.Version = 1
	record.Active = true
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return types.MemoryItem{}, fmt.Errorf("failed to insert memory item: %w", err)
	}
	return memoryItemFromModel(record), nil
}

// ListActive returns active items, oldest-first.
func (r *MemoryItemRepo) ListActive(ctx context.Context, userID string) ([]types.MemoryItem, error) {
	var records []memoryItemModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = true", userID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query memory items: %w", err)
	}

	results := make([]types.MemoryItem, 0, len(records))
	for _, record := range records {
		results = append(results, memoryItemFromModel(record))
	}
	return results, nil
}

// CountActive counts a user's active items.
func (r *MemoryItemRepo) CountActive(ctx context.Context, userID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&memoryItemModel{}).
		Where("user_id = ? AND active = true", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count memory items: %w", err)
	}
	return int(count), nil
}

// UpdateContent rewrites an item in place, bumping its version and recording
// provenance.
func (r *MemoryItemRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string, category types.MemoryCategory, confidence float64, embedding []float32, provenance string) error {
	updates := map[string]any{
		"content":    content,
		"category":   string(category),
		"confidence": confidence,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	}
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		updates["embedding"] = &v
	}
	if provenance != "" {
		updates["merged_from"] = gorm.Expr(
			"COALESCE(merged_from, '[]'::jsonb) || to_jsonb(?::text)", provenance)
	}

	result := r.db.WithContext(ctx).Model(&memoryItemModel{}).
		Where("id = ? AND active = true", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update memory item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage bumps usage counters for items served in a digest.
func (r *MemoryItemRepo) IncrementUsage(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&memoryItemModel{}).
		Where("id IN ?", ids).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment memory usage: %w", err)
	}
	return nil
}

// SoftDelete deactivates one item. Items are never hard-deleted individually.
func (r *MemoryItemRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&memoryItemModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": false, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to soft-delete memory item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceActiveSet atomically deactivates every active item and inserts the
// consolidated replacements. Either both happen or neither does.
func (r *MemoryItemRepo) ReplaceActiveSet(ctx context.Context, userID string, replacements []types.MemoryItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&memoryItemModel{}).
			Where("user_id = ? AND active = true", userID).
			Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
		if err != nil {
			return fmt.Errorf("failed to deactivate memory set: %w", err)
		}

		now := time.Now()
		for _, item := range replacements {
			record, err := modelFromMemoryItem(item)
			if err != nil {
				return err
			}
			record.ID = uuid.New()
			record.UserID = userID
			record.Version = 1
			record.Active = true
			record.CreatedAt = now
			record.UpdatedAt = now
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to insert consolidated item: %w", err)
			}
		}
		return nil
	})
}

// SearchSimilar returns active items ordered by cosine similarity to the
// embedding, for merge-candidate ranking.
func (r *MemoryItemRepo) SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int) ([]types.MemoryItem, error) {
	if len(embedding) == 0 {
		return r.ListActive(ctx, userID)
	}

	var records []memoryItemModel
	err := r.db.WithContext(ctx).Raw(`
		SELECT * FROM memory_items
		WHERE user_id = $1 AND active = true AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`, userID, pgvector.NewVector(embedding), topK).
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search similar memory items: %w", err)
	}

	results := make([]types.MemoryItem, 0, len(records))
	for _, record := range records {
		results = append(results, memoryItemFromModel(record))
	}
	return results, nil
}

func modelFromMemoryItem(item types.MemoryItem) (memoryItemModel, error) {
	mergedFrom, err := marshalJSON(item.MergedFrom)
	if err != nil {
		return memoryItemModel{}, fmt.Errorf("failed to encode merge provenance: %w", err)
	}
	var vector *pgvector.Vector
	if len(item.Embedding) > 0 {
		v := pgvector.NewVector(item.Embedding)
		vector = &v
	}
	return memoryItemModel{
		ID:         item.ID,
		UserID:     item.UserID,
		Content:    item.Content,
		Category:   string(item.Category),
		Confidence: item.Confidence,
		UsageCount: item.UsageCount,
		Version:    item.Version,
		MergedFrom: mergedFrom,
		Active:     item.Active,
		Embedding:  vector,
	}, nil
}

func memoryItemFromModel(record memoryItemModel) types.MemoryItem {
	var mergedFrom []string
	_ = unmarshalJSON(record.MergedFrom, &mergedFrom)
	return types.MemoryItem{
		ID:         record.ID,
		UserID:     record.UserID,
		Content:    record.Content,
		Category:   types.MemoryCategory(record.Category),
		Confidence: record.Confidence,
		UsageCount: record.UsageCount,
		Version:    record.Version,
		MergedFrom: mergedFrom,
		Active:     record.Active,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}
