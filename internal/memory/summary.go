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

// ConversationStore is the slice of the conversation repository the summary
// tier needs.
type ConversationStore interface {
	Get(ctx context.Context, id uuid.UUID) (types.Conversation, error)
	UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error
}

type summaryOutput struct {
	Summary string `json:"summary"`
}

var summarySchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"summary": {Type: "string"},
	},
	Required: []string{"summary"},
}

// SummaryMemory keeps one rolling summary per conversation. A summary is
// stale once the message count since creation passes the refresh threshold.
type SummaryMemory struct {
	provider      llm.Provider
	conversations ConversationStore
	messages      MessageReader

	window    int
	threshold int
	maxLen    int
}

func NewSummaryMemory(provider llm.Provider, conversations ConversationStore, messages MessageReader, window, threshold, maxLen int) *SummaryMemory {
	if window <= 0 {
		window = 10
	}
	if threshold <= 0 {
		threshold = 10
	}
	if maxLen <= 0 {
		maxLen = 2000
	}
	return &SummaryMemory{
		provider:      provider,
		conversations: conversations,
		messages:      messages,
		window:        window,
		threshold:     threshold,
		maxLen:        maxLen,
	}
}

// Current returns the stored summary, empty if none exists yet.
func (m *SummaryMemory) Current(ctx context.Context, conversationID uuid.UUID) (string, error) {
	conv, err := m.conversations.Get(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation summary: %w", err)
	}
	return conv.Summary, nil
}

// Refresh regenerates the summary when warranted. Force always regenerates;
// otherwise the summary must be stale and still under its length ceiling.
// Provider or decode failure keeps the previous summary untouched.
func (m *SummaryMemory) Refresh(ctx context.Context, conversationID uuid.UUID, force bool) error {
	conv, err := m.conversations.Get(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation for summary: %w", err)
	}

	if !force {
		count, err := m.messages.CountByConversation(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("failed to count conversation messages: %w", err)
		}
		stale := count > m.threshold
		if !stale || len([]rune(conv.Summary)) >= m.maxLen {
			return nil
		}
	}

	aged, err := m.messages.ListBefore(ctx, conversationID, m.window)
	if err != nil {
		return fmt.Errorf("failed to load aged messages: %w", err)
	}
	if len(aged) == 0 && conv.Summary == "" {
		return nil
	}

	completion, err := m.provider.Generate(ctx, llm.RoleLight, []llm.Message{
		{Role: types.RoleSystem, Content: prompt.SummaryInstruction},
		{Role: types.RoleUser, Content: prompt.SummaryUser(conv.Summary, aged)},
	}, llm.Options{Temperature: 0.3, MaxTokens: 600})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("summary refresh failed, keeping previous summary",
			"conversation_id", conversationID, "error", err)
		return nil
	}

	var out summaryOutput
	if err := utils.DecodeStructured(completion.Content, summarySchema, &out); err != nil {
		slog.Warn("summary output undecodable, keeping previous summary",
			"conversation_id", conversationID, "error", err)
		return nil
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return nil
	}

	if err := m.conversations.UpdateSummary(ctx, conversationID, summary); err != nil {
		return fmt.Errorf("failed to store refreshed summary: %w", err)
	}
	return nil
}
