// Package generator turns retrieved context and memory into a final answer.
package generator

import (
	"context"
	"fmt"

	"github.com/pasokh-ai/pasokh/internal/llm"
	"github.com/pasokh-ai/pasokh/internal/prompt"
	"github.com/pasokh-ai/pasokh/internal/types"
)

// Input is the full context for one answer.
type Input struct {
	Query        string
	Language     string
	Chunks       []types.RetrievedChunk
	MemoryDigest string
	ChatSummary  string
	Window       []types.Message
	FileAnalysis string
}

// Output is the generated answer with its token accounting.
type Output struct {
	Answer  string
	Usage   types.Usage
	Model   string
	Sources []types.SourceRef
}

// Generator issues the final heavy completion. No retry logic lives here;
// the provider already owns fallback.
type Generator struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// Generate produces a grounded answer from the assembled context.
func (g *Generator) Generate(ctx context.Context, in Input) (Output, error) {
	messages := []llm.Message{
		{Role: types.RoleSystem, Content: prompt.AnswerSystem(in.Language)},
		{Role: types.RoleUser, Content: prompt.AnswerUser(prompt.AnswerContext{
			Language:     in.Language,
			MemoryDigest: in.MemoryDigest,
			ChatSummary:  in.ChatSummary,
			Window:       in.Window,
			FileAnalysis: in.FileAnalysis,
			Chunks:       in.Chunks,
			Question:     in.Query,
		})},
	}

	completion, err := g.provider.Generate(ctx, llm.RoleHeavy, messages, llm.Options{Temperature: 0.3})
	if err != nil {
		return Output{}, fmt.Errorf("answer generation failed: %w", err)
	}

	return Output{
		Answer:  completion.Content,
		Usage:   completion.Usage,
		Model:   completion.Model,
		Sources: sourcesFromChunks(in.Chunks),
	}, nil
}

// SmallTalk answers a general, non-domain query with the light model.
func (g *Generator) SmallTalk(ctx context.Context, query, language, chatSummary string) (Output, error) {
	system := "You are Pasokh, a friendly legal assistant. The user is making small talk " +
		"or asking something outside the legal domain. Reply briefly and warmly in the " +
		"user's language (" + language + "), and offer to help with legal questions."
	user := query
	if chatSummary != "" {
		user = "Conversation so far:\n" + chatSummary + "\n\n" + query
	}

	completion, err := g.provider.Generate(ctx, llm.RoleLight, []llm.Message{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleUser, Content: user},
	}, llm.Options{Temperature: 0.7, MaxTokens: 400})
	if err != nil {
		return Output{}, fmt.Errorf("small-talk generation failed: %w", err)
	}
	return Output{Answer: completion.Content, Usage: completion.Usage, Model: completion.Model}, nil
}

func sourcesFromChunks(chunks []types.RetrievedChunk) []types.SourceRef {
	seen := make(map[string]struct{}, len(chunks))
	sources := make([]types.SourceRef, 0, len(chunks))
	for _, chunk := range chunks {
		key := chunk.DocumentID + "|" + chunk.Source
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, types.SourceRef{
			DocumentID: chunk.DocumentID,
			Title:      chunk.Source,
		})
	}
	return sources
}
