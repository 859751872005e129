package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/pasokh-ai/pasokh/internal/rerank"
	"github.com/pasokh-ai/pasokh/internal/vectorindex"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	hits []vectorindex.Hit
	err  error
}

func (f *fakeIndex) HybridSearch(ctx context.Context, vector []float32, queryText string, limit int, vectorWeight, keywordWeight, scoreFloor float64, filters map[string]string) ([]vectorindex.Hit, error) {
	return f.hits, f.err
}

type fakeReranker struct {
	enabled bool
	ranked  []rerank.Ranked
	err     error
	calls   int
}

func (f *fakeReranker) Enabled() bool { return f.enabled }

func (f *fakeReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]rerank.Ranked, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ranked, nil
}

func hit(id, text string, score float64, payload map[string]any) vectorindex.Hit {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["text"] = text
	payload["doc_id"] = id
	return vectorindex.Hit{ID: id, Score: score, Payload: payload}
}

func TestRetrieveBoostsUnitNumberMatch(t *testing.T) {
	// An otherwise higher-scored chunk without the article match must rank
	// below the chunk whose unit_number matches the referenced article.
	index := &fakeIndex{hits: []vectorindex.Hit{
		hit("other", "ماده دیگری درباره خسارت", 0.80, map[string]any{"unit_number": "200"}),
		hit("target", "متن ماده مورد نظر", 0.75, map[string]any{"unit_number": "179"}),
	}}
	engine := NewEngine(fakeEmbedder{}, index, nil, Options{})

	chunks, err := engine.Retrieve(context.Background(), "ماده ۱۷۹ چه می‌گوید؟", nil, 2, false)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].DocumentID != "target" {
		t.Fatalf("expected boosted chunk first, got %q with score %f", chunks[0].DocumentID, chunks[0].Score)
	}
}

func TestRetrieveEqualScoresArticleMatchWins(t *testing.T) {
	index := &fakeIndex{hits: []vectorindex.Hit{
		hit("plain", "text without the reference", 0.70, nil),
		hit("match", "article body", 0.70, map[string]any{"unit_number": "179"}),
	}}
	engine := NewEngine(fakeEmbedder{}, index, nil, Options{})

	chunks, err := engine.Retrieve(context.Background(), "ماده 179", nil, 2, false)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if chunks[0].DocumentID != "match" {
		t.Fatalf("article match must rank at or above equal-scored candidate, got %q first", chunks[0].DocumentID)
	}
}

func TestRetrieveEntityBoost(t *testing.T) {
	index := &fakeIndex{hits: []vectorindex.Hit{
		hit("a", "one", 0.70, map[string]any{"law_name": "قانون تجارت"}),
		hit("b", "two", 0.69, map[string]any{"law_name": "قانون مدنی"}),
	}}
	engine := NewEngine(fakeEmbedder{}, index, nil, Options{})

	chunks, err := engine.Retrieve(context.Background(), "ارث در قانون مدنی", nil, 2, false)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if chunks[0].DocumentID != "b" {
		t.Fatalf("expected law-name match boosted first, got %q", chunks[0].DocumentID)
	}
}

func TestRetrieveTruncatesToLimit(t *testing.T) {
	var hits []vectorindex.Hit
	for i := 0; i < 40; i++ {
		hits = append(hits, hit(string(rune('a'+i)), "chunk", 0.9-float64(i)*0.01, nil))
	}
	index := &fakeIndex{hits: hits}
	engine := NewEngine(fakeEmbedder{}, index, nil, Options{})

	chunks, err := engine.Retrieve(context.Background(), "قرارداد اجاره", nil, 5, false)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
}

func TestRetrieveRerankReorders(t *testing.T) {
	index := &fakeIndex{hits: []vectorindex.Hit{
		hit("first", "one", 0.9, nil),
		hit("second", "two", 0.8, nil),
	}}
	reranker := &fakeReranker{enabled: true, ranked: []rerank.Ranked{
		{Index: 1, Score: 0.95},
		{Index: 0, Score: 0.40},
	}}
	engine := NewEngine(fakeEmbedder{}, index, reranker, Options{})

	chunks, err := engine.Retrieve(context.Background(), "قرارداد", nil, 2, true)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if chunks[0].DocumentID != "second" {
		t.Fatalf("expected reranked order, got %q first", chunks[0].DocumentID)
	}
	if reranker.calls != 1 {
		t.Fatalf("expected one rerank call, got %d", reranker.calls)
	}
}

func TestRetrieveRerankUnavailableKeepsOrder(t *testing.T) {
	index := &fakeIndex{hits: []vectorindex.Hit{
		hit("first", "one", 0.9, nil),
		hit("second", "two", 0.8, nil),
	}}
	reranker := &fakeReranker{enabled: true, err: rerank.ErrUnavailable}
	engine := NewEngine(fakeEmbedder{}, index, reranker, Options{})

	chunks, err := engine.Retrieve(context.Background(), "قرارداد", nil, 2, true)
	if err != nil {
		t.Fatalf("unreachable reranker must degrade, got error: %v", err)
	}
	if chunks[0].DocumentID != "first" {
		t.Fatalf("expected original order, got %q first", chunks[0].DocumentID)
	}
}

func TestRetrieveRerankExplicitErrorPropagates(t *testing.T) {
	index := &fakeIndex{hits: []vectorindex.Hit{
		hit("first", "one", 0.9, nil),
		hit("second", "two", 0.8, nil),
	}}
	reranker := &fakeReranker{enabled: true, err: errors.New("rerank service returned 500")}
	engine := NewEngine(fakeEmbedder{}, index, reranker, Options{})

	if _, err := engine.Retrieve(context.Background(), "قرارداد", nil, 2, true); err == nil {
		t.Fatal("explicit rerank error must propagate")
	}
}

func TestRetrieveIndexErrorPropagates(t *testing.T) {
	index := &fakeIndex{err: errors.New("connection refused")}
	engine := NewEngine(fakeEmbedder{}, index, nil, Options{})

	if _, err := engine.Retrieve(context.Background(), "قرارداد", nil, 2, false); err == nil {
		t.Fatal("index failure must propagate")
	}
}
