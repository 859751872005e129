package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pasokh-ai/pasokh/internal/llm"
	"github.com/pasokh-ai/pasokh/internal/types"
)

type stubProvider struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (s *stubProvider) Generate(_ context.Context, _ llm.ModelRole, messages []llm.Message, _ llm.Options) (llm.Completion, error) {
	s.calls++
	for _, m := range messages {
		if m.Role == types.RoleUser {
			s.lastUser = m.Content
		}
	}
	if s.err != nil {
		return llm.Completion{}, s.err
	}
	return llm.Completion{Content: s.response}, nil
}

type stubConversations struct {
	conv          types.Conversation
	savedSummary  string
	updateCalls   int
	getErr        error
	updateSummary error
}

func (s *stubConversations) Get(_ context.Context, _ uuid.UUID) (types.Conversation, error) {
	if s.getErr != nil {
		return types.Conversation{}, s.getErr
	}
	return s.conv, nil
}

func (s *stubConversations) UpdateSummary(_ context.Context, _ uuid.UUID, summary string) error {
	s.updateCalls++
	s.savedSummary = summary
	return s.updateSummary
}

type stubMessages struct {
	recent []types.Message
	aged   []types.Message
	count  int
}

func (s *stubMessages) ListRecent(_ context.Context, _ uuid.UUID, n int) ([]types.Message, error) {
	if len(s.recent) > n {
		return s.recent[len(s.recent)-n:], nil
	}
	return s.recent, nil
}

func (s *stubMessages) ListBefore(_ context.Context, _ uuid.UUID, _ int) ([]types.Message, error) {
	return s.aged, nil
}

func (s *stubMessages) CountByConversation(_ context.Context, _ uuid.UUID) (int, error) {
	return s.count, nil
}

func agedMessages(n int) []types.Message {
	msgs := make([]types.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: "پیام قدیمی"})
	}
	return msgs
}

func TestSummaryNoOpBelowThreshold(t *testing.T) {
	provider := &stubProvider{response: `{"summary": "خلاصه"}`}
	convs := &stubConversations{conv: types.Conversation{Summary: "قبلی"}}
	msgs := &stubMessages{count: 10, aged: agedMessages(3)}
	mem := NewSummaryMemory(provider, convs, msgs, 10, 10, 2000)

	if err := mem.Refresh(context.Background(), uuid.New(), false); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times below threshold, want 0", provider.calls)
	}
	if convs.updateCalls != 0 {
		t.Fatalf("summary updated below threshold")
	}
}

func TestSummaryRegeneratesWhenStale(t *testing.T) {
	provider := &stubProvider{response: `{"summary": "خلاصه تازه"}`}
	convs := &stubConversations{conv: types.Conversation{Summary: "قبلی"}}
	msgs := &stubMessages{count: 11, aged: agedMessages(3)}
	mem := NewSummaryMemory(provider, convs, msgs, 10, 10, 2000)

	if err := mem.Refresh(context.Background(), uuid.New(), false); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
	if convs.savedSummary != "خلاصه تازه" {
		t.Fatalf("saved summary = %q", convs.savedSummary)
	}
	if !strings.Contains(provider.lastUser, "قبلی") {
		t.Fatalf("compression input does not carry the previous summary: %q", provider.lastUser)
	}
}

func TestSummarySkipsWhenAtLengthCeiling(t *testing.T) {
	provider := &stubProvider{response: `{"summary": "x"}`}
	long := strings.Repeat("ا", 2000)
	convs := &stubConversations{conv: types.Conversation{Summary: long}}
	msgs := &stubMessages{count: 50, aged: agedMessages(10)}
	mem := NewSummaryMemory(provider, convs, msgs, 10, 10, 2000)

	if err := mem.Refresh(context.Background(), uuid.New(), false); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called despite summary at ceiling")
	}
}

func TestSummaryForceAlwaysRegenerates(t *testing.T) {
	provider := &stubProvider{response: `{"summary": "اجباری"}`}
	long := strings.Repeat("ا", 2000)
	convs := &stubConversations{conv: types.Conversation{Summary: long}}
	msgs := &stubMessages{count: 2, aged: agedMessages(1)}
	mem := NewSummaryMemory(provider, convs, msgs, 10, 10, 2000)

	if err := mem.Refresh(context.Background(), uuid.New(), true); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
	if convs.savedSummary != "اجباری" {
		t.Fatalf("saved summary = %q", convs.savedSummary)
	}
}

func TestSummaryKeepsPreviousOnProviderFailure(t *testing.T) {
	provider := &stubProvider{err: errors.New("backend down")}
	convs := &stubConversations{conv: types.Conversation{Summary: "قبلی"}}
	msgs := &stubMessages{count: 20, aged: agedMessages(5)}
	mem := NewSummaryMemory(provider, convs, msgs, 10, 10, 2000)

	if err := mem.Refresh(context.Background(), uuid.New(), false); err != nil {
		t.Fatalf("Refresh() error = %v, want nil no-op", err)
	}
	if convs.updateCalls != 0 {
		t.Fatalf("summary overwritten on provider failure")
	}
}

func TestSummaryKeepsPreviousOnMalformedOutput(t *testing.T) {
	provider := &stubProvider{response: "no json here"}
	convs := &stubConversations{conv: types.Conversation{Summary: "قبلی"}}
	msgs := &stubMessages{count: 20, aged: agedMessages(5)}
	mem := NewSummaryMemory(provider, convs, msgs, 10, 10, 2000)

	if err := mem.Refresh(context.Background(), uuid.New(), false); err != nil {
		t.Fatalf("Refresh() error = %v, want nil no-op", err)
	}
	if convs.updateCalls != 0 {
		t.Fatalf("summary overwritten on malformed output")
	}
}

func TestShortTermWindowOldestFirst(t *testing.T) {
	msgs := &stubMessages{recent: []types.Message{
		{Role: types.RoleUser, Content: "اول"},
		{Role: types.RoleAssistant, Content: "دوم"},
		{Role: types.RoleUser, Content: "سوم"},
	}}
	st := NewShortTerm(msgs, 2)

	window, err := st.Window(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Window() error = %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("window size = %d, want 2", len(window))
	}
	if window[0].Content != "دوم" || window[1].Content != "سوم" {
		t.Fatalf("window order wrong: %q, %q", window[0].Content, window[1].Content)
	}
}
