package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/pasokh-ai/pasokh/internal/llm"
	"github.com/pasokh-ai/pasokh/internal/prompt"
	"github.com/pasokh-ai/pasokh/internal/types"
	"github.com/pasokh-ai/pasokh/internal/utils"
)

// MemoryStore is the slice of the memory-item repository the long-term tier
// needs.
type MemoryStore interface {
	Insert(ctx context.Context, item types.MemoryItem) (types.MemoryItem, error)
	ListActive(ctx context.Context, userID string) ([]types.MemoryItem, error)
	CountActive(ctx context.Context, userID string) (int, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string, category types.MemoryCategory, confidence float64, embedding []float32, provenance string) error
	IncrementUsage(ctx context.Context, ids []uuid.UUID) error
	ReplaceActiveSet(ctx context.Context, userID string, replacements []types.MemoryItem) error
	SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int) ([]types.MemoryItem, error)
}

// Embedder is the single-text slice of the embedding client.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

const (
	mergeCandidates = 8

	consolidateMin = 5
	consolidateMax = 15
)

// MergeAction reports how a candidate fact landed.
type MergeAction string

const (
	MergeAdded   MergeAction = "added"
	MergeUpdated MergeAction = "updated"
	MergeSkipped MergeAction = "skipped"
)

type extractOutput struct {
	ShouldWrite bool    `json:"should_write"`
	Content     string  `json:"content"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
}

var extractSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"should_write": {Type: "boolean"},
		"content":      {Type: "string"},
		"category":     {Type: "string"},
		"confidence":   {Type: "number"},
	},
	Required: []string{"should_write"},
}

type mergeOutput struct {
	Action  string `json:"action"`
	Index   int    `json:"index"`
	Content string `json:"content"`
}

var mergeSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"action": {
			Type: "string",
			Enum: []any{"add", "update", "skip"},
		},
		"index":   {Type: "integer"},
		"content": {Type: "string"},
	},
	Required: []string{"action"},
}

type consolidateOutput struct {
	Items []struct {
		Content    string  `json:"content"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"items"`
}

var consolidateSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"items": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"content":    {Type: "string"},
					"category":   {Type: "string"},
					"confidence": {Type: "number"},
				},
				Required: []string{"content", "category"},
			},
		},
	},
	Required: []string{"items"},
}

// LongTerm maintains durable per-user facts across conversations. Every
// write path degrades to a safe no-op when the model misbehaves.
type LongTerm struct {
	provider llm.Provider
	store    MemoryStore
	embedder Embedder
	ceiling  int
}

func NewLongTerm(provider llm.Provider, store MemoryStore, embedder Embedder, ceiling int) *LongTerm {
	if ceiling <= 0 {
		ceiling = 30
	}
	return &LongTerm{provider: provider, store: store, embedder: embedder, ceiling: ceiling}
}

// Digest renders the user's active memories as a numbered list and bumps
// their usage counters. Empty string when the user has no memories.
func (l *LongTerm) Digest(ctx context.Context, userID string) (string, error) {
	items, err := l.store.ListActive(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load memory digest: %w", err)
	}
	if len(items) == 0 {
		return "", nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	var sb strings.Builder
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, item.Content))
		ids = append(ids, item.ID)
	}
	if err := l.store.IncrementUsage(ctx, ids); err != nil {
		slog.Warn("failed to bump memory usage counters", "user_id", userID, "error", err)
	}
	return sb.String(), nil
}

// Extract asks the model whether an exchange contains a durable fact and, if
// so, routes it through Merge. Failures leave memory untouched.
func (l *LongTerm) Extract(ctx context.Context, userID, userMsg, assistantMsg, digest string) error {
	completion, err := l.provider.Generate(ctx, llm.RoleLight, []llm.Message{
		{Role: types.RoleSystem, Content: prompt.ExtractInstruction},
		{Role: types.RoleUser, Content: prompt.ExtractUser(userMsg, assistantMsg, digest)},
	}, llm.Options{Temperature: 0.2, MaxTokens: 400})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("memory extraction failed", "user_id", userID, "error", err)
		return nil
	}

	var out extractOutput
	if err := utils.DecodeStructured(completion.Content, extractSchema, &out); err != nil {
		slog.Warn("memory extraction output undecodable", "user_id", userID, "error", err)
		return nil
	}
	if !out.ShouldWrite || strings.TrimSpace(out.Content) == "" {
		return nil
	}

	confidence := out.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.7
	}
	_, _, err = l.Merge(ctx, userID, strings.TrimSpace(out.Content), types.ParseMemoryCategory(out.Category), confidence)
	return err
}

// Merge lands a candidate fact in the user's memory, reporting what happened
// and which item it touched. The first fact ever stored is added without a
// model call. Otherwise the model chooses between adding, updating an
// existing item, or skipping a duplicate.
func (l *LongTerm) Merge(ctx context.Context, userID, content string, category types.MemoryCategory, confidence float64) (MergeAction, uuid.UUID, error) {
	count, err := l.store.CountActive(ctx, userID)
	if err != nil {
		return MergeSkipped, uuid.Nil, fmt.Errorf("failed to count active memories: %w", err)
	}

	embedding, err := l.embedder.EmbedDocument(ctx, content)
	if err != nil {
		if ctx.Err() != nil {
			return MergeSkipped, uuid.Nil, ctx.Err()
		}
		slog.Warn("failed to embed memory candidate", "user_id", userID, "error", err)
		embedding = nil
	}

	if count == 0 {
		stored, err := l.store.Insert(ctx, types.MemoryItem{
			UserID:     userID,
			Content:    content,
			Category:   category,
			Confidence: confidence,
			Embedding:  embedding,
		})
		if err != nil {
			return MergeSkipped, uuid.Nil, fmt.Errorf("failed to store first memory: %w", err)
		}
		return MergeAdded, stored.ID, l.maybeConsolidate(ctx, userID)
	}

	candidates, err := l.store.SearchSimilar(ctx, userID, embedding, mergeCandidates)
	if err != nil {
		return MergeSkipped, uuid.Nil, fmt.Errorf("failed to load merge candidates: %w", err)
	}
	for _, item := range candidates {
		if item.Content == content {
			return MergeSkipped, item.ID, nil
		}
	}

	completion, err := l.provider.Generate(ctx, llm.RoleLight, []llm.Message{
		{Role: types.RoleSystem, Content: prompt.MergeInstruction},
		{Role: types.RoleUser, Content: prompt.MergeUser(content, category, candidates)},
	}, llm.Options{Temperature: 0.2, MaxTokens: 400})
	if err != nil {
		if ctx.Err() != nil {
			return MergeSkipped, uuid.Nil, ctx.Err()
		}
		slog.Warn("memory merge decision failed", "user_id", userID, "error", err)
		return MergeSkipped, uuid.Nil, nil
	}

	var out mergeOutput
	if err := utils.DecodeStructured(completion.Content, mergeSchema, &out); err != nil {
		slog.Warn("memory merge output undecodable", "user_id", userID, "error", err)
		return MergeSkipped, uuid.Nil, nil
	}

	switch out.Action {
	case "add":
		stored, err := l.store.Insert(ctx, types.MemoryItem{
			UserID:     userID,
			Content:    content,
			Category:   category,
			Confidence: confidence,
			Embedding:  embedding,
		})
		if err != nil {
			return MergeSkipped, uuid.Nil, fmt.Errorf("failed to add memory: %w", err)
		}
		return MergeAdded, stored.ID, l.maybeConsolidate(ctx, userID)
	case "update":
		if out.Index < 1 || out.Index > len(candidates) {
			slog.Warn("memory merge returned out-of-range index",
				"user_id", userID, "index", out.Index, "candidates", len(candidates))
			return MergeSkipped, uuid.Nil, nil
		}
		target := candidates[out.Index-1]
		rewritten := strings.TrimSpace(out.Content)
		if rewritten == "" {
			rewritten = content
		}
		rewrittenEmbedding := embedding
		if rewritten != content {
			rewrittenEmbedding, err = l.embedder.EmbedDocument(ctx, rewritten)
			if err != nil {
				rewrittenEmbedding = nil
			}
		}
		err := l.store.UpdateContent(ctx, target.ID, rewritten, category, confidence, rewrittenEmbedding, target.Content)
		if err != nil {
			return MergeSkipped, uuid.Nil, fmt.Errorf("failed to update memory: %w", err)
		}
		return MergeUpdated, target.ID, l.maybeConsolidate(ctx, userID)
	}
	return MergeSkipped, uuid.Nil, nil
}

// Consolidate rewrites the whole active set into a smaller one when it has
// grown past the ceiling. It reports active counts before and after; any
// failure leaves the current set in place.
func (l *LongTerm) Consolidate(ctx context.Context, userID string) (int, int, error) {
	items, err := l.store.ListActive(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load memories for consolidation: %w", err)
	}
	before := len(items)
	if before <= l.ceiling {
		return before, before, nil
	}

	completion, err := l.provider.Generate(ctx, llm.RoleLight, []llm.Message{
		{Role: types.RoleSystem, Content: prompt.ConsolidateInstruction},
		{Role: types.RoleUser, Content: prompt.ConsolidateUser(items)},
	}, llm.Options{Temperature: 0.2, MaxTokens: 2000})
	if err != nil {
		if ctx.Err() != nil {
			return before, before, ctx.Err()
		}
		slog.Warn("memory consolidation failed, keeping current set", "user_id", userID, "error", err)
		return before, before, nil
	}

	var out consolidateOutput
	if err := utils.DecodeStructured(completion.Content, consolidateSchema, &out); err != nil {
		slog.Warn("memory consolidation output undecodable, keeping current set",
			"user_id", userID, "error", err)
		return before, before, nil
	}
	if len(out.Items) < consolidateMin || len(out.Items) > consolidateMax {
		slog.Warn("memory consolidation returned out-of-bounds item count, keeping current set",
			"user_id", userID, "count", len(out.Items))
		return before, before, nil
	}

	provenance := fmt.Sprintf("consolidated from %d items", len(items))
	replacements := make([]types.MemoryItem, 0, len(out.Items))
	for _, it := range out.Items {
		content := strings.TrimSpace(it.Content)
		if content == "" {
			slog.Warn("memory consolidation returned empty item, keeping current set", "user_id", userID)
			return before, before, nil
		}
		confidence := it.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.7
		}
		embedding, err := l.embedder.EmbedDocument(ctx, content)
		if err != nil {
			embedding = nil
		}
		replacements = append(replacements, types.MemoryItem{
			UserID:     userID,
			Content:    content,
			Category:   types.ParseMemoryCategory(it.Category),
			Confidence: confidence,
			MergedFrom: []string{provenance},
			Embedding:  embedding,
		})
	}

	if err := l.store.ReplaceActiveSet(ctx, userID, replacements); err != nil {
		return before, before, fmt.Errorf("failed to replace memory set: %w", err)
	}
	return before, len(replacements), nil
}

func (l *LongTerm) maybeConsolidate(ctx context.Context, userID string) error {
	count, err := l.store.CountActive(ctx, userID)
	if err != nil {
		slog.Warn("failed to check memory ceiling", "error", err)
		return nil
	}
	if count <= l.ceiling {
		return nil
	}
	_, _, err = l.Consolidate(ctx, userID)
	return err
}
