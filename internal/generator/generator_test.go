package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/pasokh-ai/pasokh/internal/llm"
	"github.com/pasokh-ai/pasokh/internal/types"
)

type captureProvider struct {
	role     llm.ModelRole
	messages []llm.Message
	resp     llm.Completion
}

func (c *captureProvider) Generate(ctx context.Context, role llm.ModelRole, messages []llm.Message, opts llm.Options) (llm.Completion, error) {
	c.role = role
	c.messages = messages
	return c.resp, nil
}

func TestGenerateUsesHeavyRoleAndLayerOrder(t *testing.T) {
	provider := &captureProvider{resp: llm.Completion{
		Content: "طبق ماده ۱۷۹ [1] ...",
		Usage:   types.Usage{TotalTokens: 120},
	}}
	g := New(provider)

	out, err := g.Generate(context.Background(), Input{
		Query:        "ماده ۱۷۹ چه می‌گوید؟",
		Language:     "fa",
		MemoryDigest: "1. کاربر وکیل است",
		ChatSummary:  "بحث درباره قانون مدنی",
		Window: []types.Message{
			{Role: types.RoleUser, Content: "سوال قبلی"},
		},
		FileAnalysis: "متن سند پیوست",
		Chunks: []types.RetrievedChunk{
			{Text: "متن ماده", Source: "قانون مدنی", DocumentID: "cc-179"},
		},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if provider.role != llm.RoleHeavy {
		t.Fatalf("expected heavy role, got %s", provider.role)
	}
	if out.Usage.TotalTokens != 120 {
		t.Fatalf("usage not propagated: %+v", out.Usage)
	}
	if len(out.Sources) != 1 || out.Sources[0].DocumentID != "cc-179" {
		t.Fatalf("unexpected sources: %+v", out.Sources)
	}

	user := provider.messages[1].Content
	order := []string{"کاربر وکیل است", "بحث درباره قانون مدنی", "سوال قبلی", "متن سند پیوست", "متن ماده", "ماده ۱۷۹ چه می‌گوید؟"}
	last := -1
	for _, needle := range order {
		idx := strings.Index(user, needle)
		if idx < 0 {
			t.Fatalf("user turn missing %q:\n%s", needle, user)
		}
		if idx < last {
			t.Fatalf("layer %q out of order", needle)
		}
		last = idx
	}
}

func TestGenerateSystemPromptStatesTemporalRules(t *testing.T) {
	provider := &captureProvider{resp: llm.Completion{Content: "ok"}}
	g := New(provider)

	if _, err := g.Generate(context.Background(), Input{Query: "q", Language: "fa"}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	system := provider.messages[0].Content
	for _, needle := range []string{"effective_from", "expiry"} {
		if !strings.Contains(system, needle) {
			t.Fatalf("system prompt missing %q", needle)
		}
	}
}

func TestSmallTalkUsesLightRole(t *testing.T) {
	provider := &captureProvider{resp: llm.Completion{Content: "سلام!"}}
	g := New(provider)

	out, err := g.SmallTalk(context.Background(), "سلام", "fa", "")
	if err != nil {
		t.Fatalf("SmallTalk returned error: %v", err)
	}
	if provider.role != llm.RoleLight {
		t.Fatalf("expected light role, got %s", provider.role)
	}
	if out.Answer != "سلام!" {
		t.Fatalf("unexpected answer %q", out.Answer)
	}
}

func TestSourcesDeduplicated(t *testing.T) {
	chunks := []types.RetrievedChunk{
		{DocumentID: "a", Source: "قانون مدنی"},
		{DocumentID: "a", Source: "قانون مدنی"},
		{DocumentID: "b", Source: "قانون تجارت"},
	}
	sources := sourcesFromChunks(chunks)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
}
