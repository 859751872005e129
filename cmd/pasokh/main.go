// Package main boots the Pasokh query service and wires application
// dependencies.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pasokh-ai/pasokh/internal/cache"
	"github.com/pasokh-ai/pasokh/internal/classifier"
	"github.com/pasokh-ai/pasokh/internal/config"
	"github.com/pasokh-ai/pasokh/internal/embedding"
	"github.com/pasokh-ai/pasokh/internal/generator"
	"github.com/pasokh-ai/pasokh/internal/llm"
	"github.com/pasokh-ai/pasokh/internal/memory"
	"github.com/pasokh-ai/pasokh/internal/pipeline"
	"github.com/pasokh-ai/pasokh/internal/repository"
	"github.com/pasokh-ai/pasokh/internal/rerank"
	"github.com/pasokh-ai/pasokh/internal/retrieval"
	"github.com/pasokh-ai/pasokh/internal/vectorindex"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("configuration loaded",
		"qdrant_collection", cfg.QdrantCollection,
		"embedding_model", cfg.EmbeddingModel,
		"result_limit", cfg.ResultLimit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	responseCache := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	defer responseCache.Close()

	index, err := vectorindex.New(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
	if err != nil {
		log.Fatalf("failed to connect to qdrant: %v", err)
	}
	defer index.Close()
	if err := index.EnsureCollection(ctx); err != nil {
		log.Fatalf("failed to ensure qdrant collection: %v", err)
	}

	embedder, err := embedding.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	if err != nil {
		log.Fatalf("failed to initialize embedder: %v", err)
	}

	provider := llm.NewFallbackProvider(cfg.Primary, cfg.Fallback, cfg.PrimaryTimeout, cfg.BreakerCooldown)

	engine := retrieval.NewEngine(embedder, index, rerank.New(cfg.RerankURL), retrieval.Options{
		VectorWeight:  cfg.VectorWeight,
		KeywordWeight: cfg.KeywordWeight,
		ScoreFloor:    cfg.ScoreFloor,
	})

	shortTerm := memory.NewShortTerm(store.Messages, cfg.ShortTermWindow)
	summaries := memory.NewSummaryMemory(provider, store.Conversations, store.Messages,
		cfg.ShortTermWindow, cfg.SummaryThreshold, cfg.SummaryMaxLen)
	longTerm := memory.NewLongTerm(provider, store.MemoryItems, embedder, cfg.MemoryCeiling)

	orchestrator := pipeline.New(pipeline.Deps{
		Classifier:    classifier.New(provider),
		Retriever:     engine,
		Answerer:      generator.New(provider),
		Cache:         responseCache,
		Conversations: store.Conversations,
		Messages:      store.Messages,
		ShortTerm:     shortTerm,
		Summary:       summaries,
		LongTerm:      longTerm,
		ResultLimit:   cfg.ResultLimit,
	})
	defer orchestrator.Wait()

	slog.Info("pasokh ready, reading queries from stdin")
	runREPL(ctx, orchestrator, responseCache, longTerm)
}

// runREPL answers queries from stdin line by line. One conversation spans
// the whole session. Lines starting with / are admin commands.
func runREPL(ctx context.Context, orchestrator *pipeline.Orchestrator, responseCache *cache.ResponseCache, longTerm *memory.LongTerm) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	req := pipeline.Request{
		Language:  "fa",
		UserID:    "local",
		UseCache:  true,
		UseRerank: true,
	}

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		switch query {
		case "/purge":
			purged, err := responseCache.Purge(ctx)
			if err != nil {
				slog.Error("cache purge failed", "error", err)
				continue
			}
			fmt.Printf("purged %d cached responses\n", purged)
			continue
		case "/consolidate":
			before, after, err := longTerm.Consolidate(ctx, req.UserID)
			if err != nil {
				slog.Error("consolidation failed", "error", err)
				continue
			}
			fmt.Printf("memory consolidated: %d -> %d items\n", before, after)
			continue
		}

		req.Query = query
		result, err := orchestrator.Process(ctx, req)
		if err != nil {
			slog.Error("query failed", "error", err)
			continue
		}
		req.ConversationID = &result.ConversationID

		fmt.Println(result.Answer)
		for i, source := range result.Sources {
			fmt.Printf("  [%d] %s (%s)\n", i+1, source.Title, source.DocumentID)
		}
		if result.Cached {
			fmt.Println("  (cached)")
		}
	}
}
