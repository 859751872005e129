package vectorindex

import (
	"io"
	"testing"
)

// The wiring binary defers Close on the client.
var _ io.Closer = (*Client)(nil)

func TestSplitTermsDropsShortTokens(t *testing.T) {
	terms := splitTerms("ماده ۱۷۹ از قانون مدنی")
	if _, ok := terms["ماده"]; !ok {
		t.Fatalf("expected term %q in %v", "ماده", terms)
	}
	if _, ok := terms["از"]; !ok {
		t.Fatalf("two-rune terms should survive: %v", terms)
	}
	if len(terms) != 5 {
		t.Fatalf("term count = %d, want 5: %v", len(terms), terms)
	}
}

func TestKeywordOverlap(t *testing.T) {
	terms := splitTerms("مهریه عقد نکاح")

	full := keywordOverlap(terms, "مهریه در عقد نکاح تعیین می‌شود")
	if full != 1.0 {
		t.Fatalf("full overlap = %v, want 1.0", full)
	}

	partial := keywordOverlap(terms, "مهریه چیست")
	if partial <= 0 || partial >= full {
		t.Fatalf("partial overlap = %v, want between 0 and %v", partial, full)
	}

	if got := keywordOverlap(terms, ""); got != 0 {
		t.Fatalf("overlap with empty text = %v, want 0", got)
	}
	if got := keywordOverlap(nil, "متن"); got != 0 {
		t.Fatalf("overlap with no terms = %v, want 0", got)
	}
}

func TestSortHitsByScoreStable(t *testing.T) {
	hits := []Hit{
		{ID: "a", Score: 0.5},
		{ID: "b", Score: 0.9},
		{ID: "c", Score: 0.5},
	}
	sortHitsByScore(hits)
	if hits[0].ID != "b" {
		t.Fatalf("top hit = %s, want b", hits[0].ID)
	}
	if hits[1].ID != "a" || hits[2].ID != "c" {
		t.Fatalf("equal scores reordered: %s, %s", hits[1].ID, hits[2].ID)
	}
}
