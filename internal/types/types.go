// Package types defines the domain model shared across the query pipeline.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is one user's dialogue thread with rolling state.
type Conversation struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	MessageCount   int       `json:"message_count"`
	TokenCount     int       `json:"token_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message is one appended turn. Immutable after creation.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	TokenCount     int             `json:"token_count"`
	Chunks         []ChunkSnapshot `json:"chunks,omitempty"`
	Sources        []SourceRef     `json:"sources,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ChunkSnapshot is the serialized subset of a retrieved chunk attached to a
// persisted assistant message.
type ChunkSnapshot struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Score      float64 `json:"score"`
	Excerpt    string  `json:"excerpt"`
}

// SourceRef labels a cited source in an answer.
type SourceRef struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
}

// MemoryItem is one durable cross-conversation fact about a user.
type MemoryItem struct {
	ID         uuid.UUID      `json:"id"`
	UserID     string         `json:"user_id"`
	Content    string         `json:"content"`
	Category   MemoryCategory `json:"category"`
	Confidence float64        `json:"confidence"`
	UsageCount int            `json:"usage_count"`
	Version    int            `json:"version"`
	MergedFrom []string       `json:"merged_from,omitempty"`
	Active     bool           `json:"active"`
	Embedding  []float32      `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ClassificationResult is the per-request outcome of intent classification.
type ClassificationResult struct {
	Category                Category `json:"category"`
	Confidence              float64  `json:"confidence"`
	DirectResponse          string   `json:"direct_response,omitempty"`
	HasMeaningfulAttachment bool     `json:"has_meaningful_attachment"`
	NeedsClarification      bool     `json:"needs_clarification"`
	// Usage is zero when the heuristic answered without a model call.
	Usage Usage `json:"usage"`
}

// RetrievedChunk is a scored passage returned by the retrieval engine.
type RetrievedChunk struct {
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DocumentID string         `json:"document_id"`
}

// Snapshot reduces a chunk to the subset persisted with an assistant message.
func (c RetrievedChunk) Snapshot() ChunkSnapshot {
	const maxExcerpt = 300
	excerpt := c.Text
	if len([]rune(excerpt)) > maxExcerpt {
		excerpt = string([]rune(excerpt)[:maxExcerpt])
	}
	return ChunkSnapshot{
		DocumentID: c.DocumentID,
		Source:     c.Source,
		Score:      c.Score,
		Excerpt:    excerpt,
	}
}

// Usage is token accounting for one completion call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across calls within one request.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// QueryResult is the user-visible outcome of one processed query.
type QueryResult struct {
	Answer         string           `json:"answer"`
	Sources        []SourceRef      `json:"sources"`
	TokensUsed     int              `json:"tokens_used"`
	Chunks         []RetrievedChunk `json:"chunks,omitempty"`
	Category       Category         `json:"category"`
	Cached         bool             `json:"cached"`
	ConversationID uuid.UUID        `json:"conversation_id"`
}

// CachedResponse is a stored full-query response.
type CachedResponse struct {
	Answer    string      `json:"answer"`
	Sources   []SourceRef `json:"sources"`
	HitCount  int         `json:"hit_count"`
	CreatedAt time.Time   `json:"created_at"`
}

// Attachment carries pre-extracted text for one uploaded file. Extraction
// happens upstream; a failed extraction arrives with Err set and an empty Text.
type Attachment struct {
	Name string `json:"name"`
	Text string `json:"text"`
	Err  string `json:"error,omitempty"`
}

// EstimateTokens is a cheap token estimate used for counters, not billing.
// Roughly four runes per token for Latin scripts, closer to two for Persian.
func EstimateTokens(text string) int {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	arabic := 0
	for _, r := range runes {
		if r >= 0x0600 && r <= 0x06FF {
			arabic++
		}
	}
	if arabic*2 > len(runes) {
		return len(runes)/2 + 1
	}
	return len(runes)/4 + 1
}
