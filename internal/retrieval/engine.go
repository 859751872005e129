package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pasokh-ai/pasokh/internal/rerank"
	"github.com/pasokh-ai/pasokh/internal/types"
	"github.com/pasokh-ai/pasokh/internal/vectorindex"
)

// Boost magnitudes. Independent and additive: a candidate matching a
// referenced article number in a mentioned law collects both.
const (
	unitNumberBoost = 0.15
	entityBoost     = 0.10
	keywordBoost    = 0.05
	maxKeywordBoost = 0.15
)

// rerankFactor over-fetches candidates for the reranker.
const rerankFactor = 3

// Embedder is the query-embedding dependency.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index is the vector index dependency.
type Index interface {
	HybridSearch(ctx context.Context, vector []float32, queryText string, limit int, vectorWeight, keywordWeight, scoreFloor float64, filters map[string]string) ([]vectorindex.Hit, error)
}

// Reranker reorders candidates; transport failure must surface as
// rerank.ErrUnavailable.
type Reranker interface {
	Enabled() bool
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]rerank.Ranked, error)
}

// Options tune the scoring mix.
type Options struct {
	VectorWeight  float64
	KeywordWeight float64
	ScoreFloor    float64
}

// Engine is the hybrid retrieval pipeline: normalize, embed, search wide,
// boost on metadata matches, optionally rerank, truncate.
type Engine struct {
	embedder Embedder
	index    Index
	reranker Reranker
	opts     Options
}

func NewEngine(embedder Embedder, index Index, reranker Reranker, opts Options) *Engine {
	if opts.VectorWeight <= 0 {
		opts.VectorWeight = 0.7
	}
	if opts.KeywordWeight <= 0 {
		opts.KeywordWeight = 0.3
	}
	return &Engine{embedder: embedder, index: index, reranker: reranker, opts: opts}
}

// Retrieve returns the top chunks for a query, best-first.
func (e *Engine) Retrieve(ctx context.Context, queryText string, filters map[string]string, limit int, useRerank bool) ([]types.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	normalized := Normalize(queryText)
	if normalized == "" {
		return nil, nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hints := ExtractHints(normalized)

	// Search wide with a low floor: boosting can only promote candidates the
	// index actually returned.
	hits, err := e.index.HybridSearch(ctx, vector, normalized, limit*rerankFactor*2,
		e.opts.VectorWeight, e.opts.KeywordWeight, e.opts.ScoreFloor, filters)
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}

	chunks := make([]types.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		chunk := chunkFromHit(hit)
		chunk.Score += boost(chunk, hints)
		chunks = append(chunks, chunk)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if len(chunks) > limit*rerankFactor {
		chunks = chunks[:limit*rerankFactor]
	}

	if useRerank && e.reranker != nil && e.reranker.Enabled() && len(chunks) > 1 {
		chunks, err = e.rerankChunks(ctx, normalized, chunks, limit)
		if err != nil {
			return nil, err
		}
	}

	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

// rerankChunks reorders via the cross-encoder. Unreachable reranker keeps the
// boosted order; an explicit rerank error propagates.
func (e *Engine) rerankChunks(ctx context.Context, query string, chunks []types.RetrievedChunk, limit int) ([]types.RetrievedChunk, error) {
	documents := make([]string, len(chunks))
	for i, c := range chunks {
		documents[i] = c.Text
	}

	ranked, err := e.reranker.Rerank(ctx, query, documents, limit)
	if err != nil {
		if errors.Is(err, rerank.ErrUnavailable) {
			slog.Warn("reranker unreachable, keeping boosted order", "error", err.Error())
			return chunks, nil
		}
		return nil, fmt.Errorf("rerank failed: %w", err)
	}

	reordered := make([]types.RetrievedChunk, 0, len(ranked))
	for _, r := range ranked {
		chunk := chunks[r.Index]
		chunk.Score = r.Score
		reordered = append(reordered, chunk)
	}
	return reordered, nil
}

// boost sums metadata-match bonuses for one candidate.
func boost(chunk types.RetrievedChunk, hints Hints) float64 {
	var total float64

	if unit := metadataString(chunk.Metadata, "unit_number"); unit != "" {
		for _, ref := range hints.UnitNumbers {
			if strings.TrimLeft(unit, "0") == ref {
				total += unitNumberBoost
				break
			}
		}
	}

	if len(hints.Entities) > 0 {
		entityFields := strings.ToLower(metadataString(chunk.Metadata, "law_name") + " " + chunk.Source)
		for _, entity := range hints.Entities {
			if strings.Contains(entityFields, entity) {
				total += entityBoost
				break
			}
		}
	}

	if tags := metadataStrings(chunk.Metadata, "keywords"); len(tags) > 0 {
		var kw float64
		for _, tag := range tags {
			lowered := strings.ToLower(tag)
			for _, keyword := range hints.Keywords {
				if lowered == keyword {
					kw += keywordBoost
					break
				}
			}
		}
		if kw > maxKeywordBoost {
			kw = maxKeywordBoost
		}
		total += kw
	}

	return total
}

func chunkFromHit(hit vectorindex.Hit) types.RetrievedChunk {
	text, _ := hit.Payload["text"].(string)
	source, _ := hit.Payload["source"].(string)
	docID, _ := hit.Payload["doc_id"].(string)
	return types.RetrievedChunk{
		Text:       text,
		Score:      hit.Score,
		Source:     source,
		Metadata:   hit.Payload,
		DocumentID: docID,
	}
}

func metadataString(metadata map[string]any, key string) string {
	value, _ := metadata[key].(string)
	return value
}

func metadataStrings(metadata map[string]any, key string) []string {
	raw, ok := metadata[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
