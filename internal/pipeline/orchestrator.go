// Package pipeline routes one query through classification, retrieval,
// generation, and the memory tiers.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pasokh-ai/pasokh/internal/cache"
	"github.com/pasokh-ai/pasokh/internal/classifier"
	"github.com/pasokh-ai/pasokh/internal/generator"
	"github.com/pasokh-ai/pasokh/internal/prompt"
	"github.com/pasokh-ai/pasokh/internal/types"
)

const (
	titleMaxRunes = 60

	// memoryUpdateTimeout bounds the detached extract+merge pass so a hung
	// backend cannot leak goroutines.
	memoryUpdateTimeout = 90 * time.Second
)

// Classifier assigns an intent to an incoming query.
type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) (types.ClassificationResult, error)
}

// Retriever returns scored chunks for a domain question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters map[string]string, limit int, useRerank bool) ([]types.RetrievedChunk, error)
}

// Answerer produces the final answer text.
type Answerer interface {
	Generate(ctx context.Context, in generator.Input) (generator.Output, error)
	SmallTalk(ctx context.Context, query, language, chatSummary string) (generator.Output, error)
}

// ResponseCache stores full responses for identical repeated queries.
type ResponseCache interface {
	Get(ctx context.Context, query string, params cache.Params) (*types.CachedResponse, error)
	Put(ctx context.Context, query string, params cache.Params, answer string, sources []types.SourceRef) error
}

// ConversationStore manages conversation rows.
type ConversationStore interface {
	Create(ctx context.Context, userID, title string) (types.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (types.Conversation, error)
	BumpCounters(ctx context.Context, id uuid.UUID, messages, tokens int) error
}

// MessageStore appends immutable turns.
type MessageStore interface {
	Append(ctx context.Context, msg types.Message) (types.Message, error)
}

// ShortTermMemory serves the recent-message window.
type ShortTermMemory interface {
	Window(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error)
}

// SummaryStore reads and refreshes the rolling conversation summary.
type SummaryStore interface {
	Current(ctx context.Context, conversationID uuid.UUID) (string, error)
	Refresh(ctx context.Context, conversationID uuid.UUID, force bool) error
}

// LongTermMemory serves the cross-conversation digest and absorbs new facts.
type LongTermMemory interface {
	Digest(ctx context.Context, userID string) (string, error)
	Extract(ctx context.Context, userID, userMsg, assistantMsg, digest string) error
}

// Request is one incoming query with its routing knobs.
type Request struct {
	Query          string
	Language       string
	UserID         string
	ConversationID *uuid.UUID
	Filters        map[string]string
	UseCache       bool
	UseRerank      bool
	Attachments    []types.Attachment
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	classifier    Classifier
	retriever     Retriever
	answerer      Answerer
	cache         ResponseCache
	conversations ConversationStore
	messages      MessageStore
	shortTerm     ShortTermMemory
	summary       SummaryStore
	longTerm      LongTermMemory

	resultLimit int

	// memoryWG tracks detached memory updates so tests and shutdown can
	// wait for them.
	memoryWG sync.WaitGroup
}

type Deps struct {
	Classifier    Classifier
	Retriever     Retriever
	Answerer      Answerer
	Cache         ResponseCache
	Conversations ConversationStore
	Messages      MessageStore
	ShortTerm     ShortTermMemory
	Summary       SummaryStore
	LongTerm      LongTermMemory
	ResultLimit   int
}

func New(deps Deps) *Orchestrator {
	limit := deps.ResultLimit
	if limit <= 0 {
		limit = 5
	}
	return &Orchestrator{
		classifier:    deps.Classifier,
		retriever:     deps.Retriever,
		answerer:      deps.Answerer,
		cache:         deps.Cache,
		conversations: deps.Conversations,
		messages:      deps.Messages,
		shortTerm:     deps.ShortTerm,
		summary:       deps.Summary,
		longTerm:      deps.LongTerm,
		resultLimit:   limit,
	}
}

// Process answers one query end to end.
func (o *Orchestrator) Process(ctx context.Context, req Request) (types.QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return types.QueryResult{}, fmt.Errorf("empty query")
	}
	language := req.Language
	if language == "" {
		language = "fa"
	}

	conv, err := o.ensureConversation(ctx, req, query)
	if err != nil {
		return types.QueryResult{}, err
	}

	cacheParams := cache.Params{Language: language, Limit: o.resultLimit, Filters: req.Filters}
	cacheable := req.UseCache && o.cache != nil && len(req.Attachments) == 0

	if cacheable {
		if cached, err := o.cache.Get(ctx, query, cacheParams); err == nil {
			result := types.QueryResult{
				Answer:         cached.Answer,
				Sources:        cached.Sources,
				Category:       types.CategoryLegal,
				Cached:         true,
				ConversationID: conv.ID,
			}
			o.persistTurn(ctx, conv, query, result, types.Usage{}, nil)
			return result, nil
		}
	}

	fileAnalysis, hasAttachment := joinAttachments(req.Attachments)

	chatSummary, err := o.summary.Current(ctx, conv.ID)
	if err != nil {
		slog.Warn("chat summary unavailable", "conversation_id", conv.ID, "error", err)
		chatSummary = ""
	}

	cls, err := o.classifier.Classify(ctx, classifier.Input{
		Query:         query,
		Language:      language,
		PriorSummary:  chatSummary,
		FileAnalysis:  fileAnalysis,
		HasAttachment: hasAttachment,
	})
	if err != nil {
		return types.QueryResult{}, fmt.Errorf("classification failed: %w", err)
	}

	result := types.QueryResult{
		Category:       cls.Category,
		ConversationID: conv.ID,
	}
	usage := cls.Usage
	var chunks []types.RetrievedChunk
	// The digest and window feed the answer prompt; the direct-response
	// paths never read them, so they load on demand.
	var digest string

	switch cls.Category {
	case types.CategoryUnintelligible, types.CategoryAmbiguousAttachment:
		result.Answer = cls.DirectResponse
		if result.Answer == "" {
			result.Answer = prompt.ClarificationResponse(language)
		}

	case types.CategoryGeneral:
		out, err := o.answerer.SmallTalk(ctx, query, language, chatSummary)
		if err != nil {
			return types.QueryResult{}, fmt.Errorf("small-talk generation failed: %w", err)
		}
		result.Answer = out.Answer
		usage = usage.Add(out.Usage)

	case types.CategoryLegal, types.CategoryLegalAttachment:
		if digest, err = o.longTerm.Digest(ctx, req.UserID); err != nil {
			slog.Warn("memory digest unavailable", "user_id", req.UserID, "error", err)
			digest = ""
		}
		window, err := o.shortTerm.Window(ctx, conv.ID)
		if err != nil {
			slog.Warn("short-term window unavailable", "conversation_id", conv.ID, "error", err)
			window = nil
		}
		chunks, err = o.retriever.Retrieve(ctx, query, req.Filters, o.resultLimit, req.UseRerank)
		if err != nil {
			return types.QueryResult{}, fmt.Errorf("retrieval failed: %w", err)
		}
		out, err := o.answerer.Generate(ctx, generator.Input{
			Query:        query,
			Language:     language,
			Chunks:       chunks,
			MemoryDigest: digest,
			ChatSummary:  chatSummary,
			Window:       window,
			FileAnalysis: fileAnalysis,
		})
		if err != nil {
			return types.QueryResult{}, fmt.Errorf("answer generation failed: %w", err)
		}
		result.Answer = out.Answer
		result.Sources = out.Sources
		result.Chunks = chunks
		usage = usage.Add(out.Usage)

	default:
		return types.QueryResult{}, fmt.Errorf("unhandled category %q", cls.Category)
	}

	result.TokensUsed = usage.TotalTokens
	o.persistTurn(ctx, conv, query, result, usage, chunks)

	if err := o.summary.Refresh(ctx, conv.ID, false); err != nil {
		slog.Warn("summary refresh failed", "conversation_id", conv.ID, "error", err)
	}

	if cacheable && cls.Category.IsLegal() && result.Answer != "" {
		if err := o.cache.Put(ctx, query, cacheParams, result.Answer, result.Sources); err != nil {
			slog.Warn("response cache write failed", "error", err)
		}
	}

	o.updateMemoryAsync(ctx, req.UserID, query, result.Answer, digest)
	return result, nil
}

// Wait blocks until in-flight detached memory updates finish.
func (o *Orchestrator) Wait() {
	o.memoryWG.Wait()
}

func (o *Orchestrator) ensureConversation(ctx context.Context, req Request, query string) (types.Conversation, error) {
	if req.ConversationID != nil {
		conv, err := o.conversations.Get(ctx, *req.ConversationID)
		if err != nil {
			return types.Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
		}
		return conv, nil
	}
	conv, err := o.conversations.Create(ctx, req.UserID, titleFromQuery(query))
	if err != nil {
		return types.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// persistTurn appends the user and assistant messages and bumps counters.
// Persistence failures are logged, not fatal; the answer is already computed.
func (o *Orchestrator) persistTurn(ctx context.Context, conv types.Conversation, query string, result types.QueryResult, usage types.Usage, chunks []types.RetrievedChunk) {
	userTokens := types.EstimateTokens(query)
	if _, err := o.messages.Append(ctx, types.Message{
		ConversationID: conv.ID,
		Role:           types.RoleUser,
		Content:        query,
		TokenCount:     userTokens,
	}); err != nil {
		slog.Warn("failed to persist user message", "conversation_id", conv.ID, "error", err)
	}

	snapshots := make([]types.ChunkSnapshot, 0, len(chunks))
	for _, chunk := range chunks {
		snapshots = append(snapshots, chunk.Snapshot())
	}
	assistantTokens := usage.CompletionTokens
	if assistantTokens == 0 {
		assistantTokens = types.EstimateTokens(result.Answer)
	}
	if _, err := o.messages.Append(ctx, types.Message{
		ConversationID: conv.ID,
		Role:           types.RoleAssistant,
		Content:        result.Answer,
		TokenCount:     assistantTokens,
		Chunks:         snapshots,
		Sources:        result.Sources,
	}); err != nil {
		slog.Warn("failed to persist assistant message", "conversation_id", conv.ID, "error", err)
	}

	if err := o.conversations.BumpCounters(ctx, conv.ID, 2, userTokens+usage.TotalTokens); err != nil {
		slog.Warn("failed to bump conversation counters", "conversation_id", conv.ID, "error", err)
	}
}

// updateMemoryAsync runs extraction after the response is already on its way
// out. The parent context may be cancelled as soon as the caller returns, so
// the update runs detached with its own deadline.
func (o *Orchestrator) updateMemoryAsync(ctx context.Context, userID, userMsg, assistantMsg, digest string) {
	detached := context.WithoutCancel(ctx)
	o.memoryWG.Add(1)
	go func() {
		defer o.memoryWG.Done()
		updateCtx, cancel := context.WithTimeout(detached, memoryUpdateTimeout)
		defer cancel()
		if err := o.longTerm.Extract(updateCtx, userID, userMsg, assistantMsg, digest); err != nil {
			slog.Warn("background memory update failed", "user_id", userID, "error", err)
		}
	}()
}

func joinAttachments(attachments []types.Attachment) (string, bool) {
	if len(attachments) == 0 {
		return "", false
	}
	var parts []string
	for _, att := range attachments {
		if att.Err != "" || strings.TrimSpace(att.Text) == "" {
			slog.Warn("attachment analysis unusable, continuing without it",
				"name", att.Name, "error", att.Err)
			continue
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", att.Name, strings.TrimSpace(att.Text)))
	}
	return strings.Join(parts, "\n\n"), true
}

func titleFromQuery(query string) string {
	runes := []rune(query)
	if len(runes) <= titleMaxRunes {
		return query
	}
	return string(runes[:titleMaxRunes]) + "…"
}
