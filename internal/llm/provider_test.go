package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pasokh-ai/pasokh/internal/types"
)

type stubBackend struct {
	calls int
	resp  Completion
	err   error
	delay time.Duration
}

func (s *stubBackend) generate(ctx context.Context, role ModelRole, messages []Message, opts Options) (Completion, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Completion{}, s.err
	}
	return s.resp, nil
}

func newTestProvider(primary, fallback caller, cooldown time.Duration) *FallbackProvider {
	return &FallbackProvider{
		primary:        primary,
		fallback:       fallback,
		breaker:        NewBreaker(cooldown),
		primaryTimeout: 50 * time.Millisecond,
	}
}

func testMessages() []Message {
	return []Message{{Role: types.RoleUser, Content: "ماده ۱۰ قانون مدنی چیست؟"}}
}

func TestGeneratePrefersPrimary(t *testing.T) {
	primary := &stubBackend{resp: Completion{Content: "from primary"}}
	fallback := &stubBackend{resp: Completion{Content: "from fallback"}}
	p := newTestProvider(primary, fallback, time.Minute)

	resp, err := p.Generate(context.Background(), RoleHeavy, testMessages(), Options{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Content != "from primary" {
		t.Fatalf("expected primary content, got %q", resp.Content)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not be called, got %d calls", fallback.calls)
	}
}

func TestGenerateFallsBackAndOpensBreaker(t *testing.T) {
	primary := &stubBackend{err: errors.New("boom")}
	fallback := &stubBackend{resp: Completion{Content: "from fallback"}}
	p := newTestProvider(primary, fallback, time.Minute)

	resp, err := p.Generate(context.Background(), RoleHeavy, testMessages(), Options{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Fatalf("expected fallback content, got %q", resp.Content)
	}
	if p.breaker.State() != BreakerOpen {
		t.Fatalf("expected breaker open, got %v", p.breaker.State())
	}

	// Subsequent calls must never touch primary while the circuit is open.
	for i := 0; i < 3; i++ {
		if _, err := p.Generate(context.Background(), RoleLight, testMessages(), Options{}); err != nil {
			t.Fatalf("Generate returned error on call %d: %v", i, err)
		}
	}
	if primary.calls != 1 {
		t.Fatalf("primary called %d times, want 1", primary.calls)
	}
	if fallback.calls != 4 {
		t.Fatalf("fallback called %d times, want 4", fallback.calls)
	}
}

func TestGeneratePrimaryTimeoutTripsBreaker(t *testing.T) {
	primary := &stubBackend{resp: Completion{Content: "slow"}, delay: 200 * time.Millisecond}
	fallback := &stubBackend{resp: Completion{Content: "from fallback"}}
	p := newTestProvider(primary, fallback, time.Minute)

	resp, err := p.Generate(context.Background(), RoleHeavy, testMessages(), Options{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Fatalf("expected fallback content, got %q", resp.Content)
	}
	if p.breaker.State() != BreakerOpen {
		t.Fatalf("expected breaker open after timeout, got %v", p.breaker.State())
	}
}

func TestGenerateBothFail(t *testing.T) {
	primary := &stubBackend{err: errors.New("primary down")}
	fallback := &stubBackend{err: errors.New("fallback down")}
	p := newTestProvider(primary, fallback, time.Minute)

	_, err := p.Generate(context.Background(), RoleHeavy, testMessages(), Options{})
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestGenerateCancellationDoesNotTripBreaker(t *testing.T) {
	primary := &stubBackend{resp: Completion{Content: "slow"}, delay: time.Second}
	fallback := &stubBackend{resp: Completion{Content: "from fallback"}}
	p := newTestProvider(primary, fallback, time.Minute)
	p.primaryTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.Generate(ctx, RoleHeavy, testMessages(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.breaker.State() != BreakerClosed {
		t.Fatalf("cancellation must not open the breaker, got %v", p.breaker.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker(time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	if !b.Allow() {
		t.Fatal("closed breaker must allow primary")
	}
	b.MarkFailure()
	if b.Allow() {
		t.Fatal("open breaker must deny primary before cooldown")
	}

	now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("expired cooldown must admit one probe")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	if b.Allow() {
		t.Fatal("half-open breaker must admit only one probe")
	}

	b.MarkSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("probe success must close the breaker, got %v", b.State())
	}
	if !b.Allow() {
		t.Fatal("closed breaker must allow primary again")
	}
}

func TestBreakerCancelledProbeReleasesSlot(t *testing.T) {
	b := NewBreaker(time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.MarkFailure()
	now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("expected probe slot")
	}

	// The probe holder went away without a verdict.
	b.ReleaseProbe()
	if b.State() != BreakerOpen {
		t.Fatalf("released probe must reopen, got %v", b.State())
	}
	if !b.Allow() {
		t.Fatal("released slot must be winnable again")
	}

	b.MarkSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("fresh probe success must close the breaker, got %v", b.State())
	}
}

func TestGenerateCancelledProbeDoesNotWedgeBreaker(t *testing.T) {
	primary := &stubBackend{resp: Completion{Content: "slow"}, delay: time.Second}
	fallback := &stubBackend{resp: Completion{Content: "from fallback"}}
	p := newTestProvider(primary, fallback, time.Minute)
	p.primaryTimeout = 5 * time.Second
	now := time.Now()
	p.breaker.now = func() time.Time { return now }

	p.breaker.MarkFailure()
	now = now.Add(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := p.Generate(ctx, RoleHeavy, testMessages(), Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.breaker.State() != BreakerOpen {
		t.Fatalf("cancelled probe must reopen the breaker, got %v", p.breaker.State())
	}

	primary.delay = 0
	resp, err := p.Generate(context.Background(), RoleHeavy, testMessages(), Options{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Content != "slow" {
		t.Fatalf("expected primary content after reclaimed probe, got %q", resp.Content)
	}
	if primary.calls != 2 {
		t.Fatalf("primary must be probed again after a cancelled probe, got %d calls", primary.calls)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := NewBreaker(time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.MarkFailure()
	now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("expected probe slot")
	}
	b.MarkFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("probe failure must reopen, got %v", b.State())
	}
	if b.Allow() {
		t.Fatal("reopened breaker must deny primary before a fresh cooldown")
	}
}
