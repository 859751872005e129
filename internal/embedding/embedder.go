// Package embedding converts text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"
)

// SupportedDimensions are the named vector sizes the index collection carries.
var SupportedDimensions = []int{512, 768, 1024, 1536, 3072}

const embedMaxAttempts = 3

// SnapDimension maps a requested size onto the nearest supported named-vector
// dimension, rounding up.
func SnapDimension(requested int) int {
	for _, d := range SupportedDimensions {
		if requested <= d {
			return d
		}
	}
	return SupportedDimensions[len(SupportedDimensions)-1]
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// GenAIEmbedder embeds through the Gemini embedding API.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	// workers bounds concurrent document embedding; encoding batches is
	// CPU-heavy on the serving side and hammering it buys nothing.
	workers *semaphore.Weighted
}

// NewGenAIEmbedder creates the embedder with a pinned output dimensionality.
func NewGenAIEmbedder(ctx context.Context, apiKey, modelName string, dimensions int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is required for embeddings")
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEmbedder{
		client:     client,
		model:      modelName,
		dimensions: SnapDimension(dimensions),
		workers:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}, nil
}

func (e *GenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *GenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_QUERY")
}

func (e *GenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

func (e *GenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	for i, text := range texts {
		if err := e.workers.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func(i int, text string) {
			defer e.workers.Release(1)
			results[i], errs[i] = e.EmbedDocument(ctx, text)
		}(i, text)
	}
	// Draining the semaphore waits for every in-flight worker.
	if err := e.workers.Acquire(ctx, int64(runtime.GOMAXPROCS(0))); err != nil {
		return nil, err
	}
	e.workers.Release(int64(runtime.GOMAXPROCS(0)))

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to embed document %d: %w", i, err)
		}
	}
	return results, nil
}

// embed issues one embedding call with bounded exponential retry.
func (e *GenAIEmbedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	operation := func() ([]float32, error) {
		resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
			TaskType:             taskType,
			OutputDimensionality: func() *int32 { v := int32(e.dimensions); return &v }(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed content: %w", err)
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
			return nil, fmt.Errorf("empty embedding response")
		}
		values := resp.Embeddings[0].Values
		if len(values) == e.dimensions {
			return values, nil
		}
		if len(values) > e.dimensions {
			slog.Warn("embedding dimensions exceed target, truncating", "actual", len(values), "target", e.dimensions, "model", e.model)
			return values[:e.dimensions], nil
		}
		return nil, backoff.Permanent(fmt.Errorf("embedding dimensions mismatch: got %d want %d", len(values), e.dimensions))
	}

	values, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(embedMaxAttempts))
	if err != nil {
		return nil, err
	}
	return values, nil
}
