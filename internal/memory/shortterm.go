package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pasokh-ai/pasokh/internal/types"
)

// MessageReader is the slice of the message store the memory tiers need.
type MessageReader interface {
	ListRecent(ctx context.Context, conversationID uuid.UUID, n int) ([]types.Message, error)
	ListBefore(ctx context.Context, conversationID uuid.UUID, keep int) ([]types.Message, error)
	CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error)
}

// ShortTerm serves the recent-message window verbatim.
type ShortTerm struct {
	messages MessageReader
	window   int
}

func NewShortTerm(messages MessageReader, window int) *ShortTerm {
	if window <= 0 {
		window = 10
	}
	return &ShortTerm{messages: messages, window: window}
}

// Window returns the last N messages, oldest-first.
func (s *ShortTerm) Window(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	msgs, err := s.messages.ListRecent(ctx, conversationID, s.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load short-term window: %w", err)
	}
	return msgs, nil
}
