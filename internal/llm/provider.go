// Package llm provides chat completions over a primary and a fallback
// OpenAI-compatible backend, guarded by a shared circuit breaker.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pasokh-ai/pasokh/internal/config"
	"github.com/pasokh-ai/pasokh/internal/types"
)

// ErrNoProvider is returned when both backends are exhausted. Callers surface
// it as one coarse generation failure; which backend failed first is logged only.
var ErrNoProvider = errors.New("no completion provider available")

// ModelRole selects which logical model a call should use.
type ModelRole string

const (
	RoleClassification ModelRole = "classification"
	RoleLight          ModelRole = "light"
	RoleHeavy          ModelRole = "heavy"
)

// Message is one chat turn sent to a backend.
type Message struct {
	Role    types.Role
	Content string
}

// Options tune a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completion is the result of one completion call.
type Completion struct {
	Content string
	Usage   types.Usage
	Model   string
}

// Provider issues chat completions.
type Provider interface {
	Generate(ctx context.Context, role ModelRole, messages []Message, opts Options) (Completion, error)
}

// backend is one configured endpoint with its per-role model names.
type backend struct {
	client *openai.Client
	models map[ModelRole]string
}

func newBackend(cfg config.Backend) *backend {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &backend{
		client: &client,
		models: map[ModelRole]string{
			RoleClassification: cfg.ClassificationModel,
			RoleLight:          cfg.LightModel,
			RoleHeavy:          cfg.HeavyModel,
		},
	}
}

func (b *backend) generate(ctx context.Context, role ModelRole, messages []Message, opts Options) (Completion, error) {
	model, ok := b.models[role]
	if !ok || model == "" {
		return Completion{}, fmt.Errorf("no model configured for role %q", role)
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toParams(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("completion call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("empty completion response from %s", model)
	}

	return Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: types.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// caller is the minimal surface FallbackProvider needs from a backend,
// narrowed for tests.
type caller interface {
	generate(ctx context.Context, role ModelRole, messages []Message, opts Options) (Completion, error)
}

// FallbackProvider tries primary under a bounded timeout and degrades to
// fallback. The breaker is shared across all consumers: once primary is known
// down, nobody pays its timeout again until the half-open probe succeeds.
type FallbackProvider struct {
	primary        caller
	fallback       caller
	breaker        *Breaker
	primaryTimeout time.Duration
}

// NewFallbackProvider wires both backends from config.
func NewFallbackProvider(primary, fallback config.Backend, timeout, cooldown time.Duration) *FallbackProvider {
	return &FallbackProvider{
		primary:        newBackend(primary),
		fallback:       newBackend(fallback),
		breaker:        NewBreaker(cooldown),
		primaryTimeout: timeout,
	}
}

// Breaker exposes circuit state for observability.
func (p *FallbackProvider) Breaker() *Breaker {
	return p.breaker
}

// Generate issues one completion, preferring primary when the circuit allows it.
func (p *FallbackProvider) Generate(ctx context.Context, role ModelRole, messages []Message, opts Options) (Completion, error) {
	var primaryErr error
	if p.breaker.Allow() {
		callCtx, cancel := context.WithTimeout(ctx, p.primaryTimeout)
		resp, err := p.primary.generate(callCtx, role, messages, opts)
		cancel()
		if err == nil {
			p.breaker.MarkSuccess()
			return resp, nil
		}
		// Caller cancellation is not a backend failure; it must not trip
		// the circuit. If this call held the half-open probe slot, hand it
		// back so the slot is not lost with the request.
		if ctx.Err() != nil {
			p.breaker.ReleaseProbe()
			return Completion{}, ctx.Err()
		}
		p.breaker.MarkFailure()
		primaryErr = err
		slog.Warn("primary completion backend failed, switching to fallback", "role", string(role), "error", err.Error())
	}

	resp, err := p.fallback.generate(ctx, role, messages, opts)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		slog.Error("fallback completion backend failed", "role", string(role), "error", err.Error())
		if primaryErr != nil {
			return Completion{}, fmt.Errorf("%w: primary: %v; fallback: %v", ErrNoProvider, primaryErr, err)
		}
		return Completion{}, fmt.Errorf("%w: fallback: %v", ErrNoProvider, err)
	}
	return resp, nil
}
