package classifier

import (
	"strings"
	"unicode"

	"github.com/pasokh-ai/pasokh/internal/prompt"
	"github.com/pasokh-ai/pasokh/internal/types"
)

// Keyword lexicons for the parse-failure fallback. Deliberately small: the
// fallback only needs to beat "drop the question", not the model.
var (
	greetingTerms = []string{
		"سلام", "درود", "خداحافظ", "ممنون", "مرسی", "تشکر", "خوبی",
		"hello", "hi ", "hey", "thanks", "thank you", "how are you", "bye",
	}
	legalTerms = []string{
		"ماده", "قانون", "تبصره", "قرارداد", "دادگاه", "شکایت", "دادخواست",
		"وکیل", "طلاق", "ارث", "مهریه", "اجاره", "ملک", "جرم", "مجازات",
		"دیه", "حضانت", "چک", "سفته", "ضمانت", "بیمه", "مالیات",
		"law", "article", "contract", "court", "lawsuit", "divorce",
		"inheritance", "lease", "crime", "penalty", "custody", "liability",
	}
	draftingTerms = []string{
		"تنظیم کن", "بنویس", "پیش‌نویس", "لایحه", "شکواییه", "اظهارنامه",
		"draft", "compose", "write a", "prepare a",
	}
)

// Heuristic is the keyword fallback used when model output cannot be decoded.
// It defaults to a legal question at confidence 0.5: misrouting small talk to
// retrieval is recoverable, silently dropping a real question is not.
func Heuristic(in Input) types.ClassificationResult {
	query := strings.ToLower(strings.TrimSpace(in.Query))

	if isUnintelligible(query) {
		if in.HasAttachment {
			return types.ClassificationResult{
				Category:                types.CategoryAmbiguousAttachment,
				Confidence:              0.6,
				HasMeaningfulAttachment: in.FileAnalysis != "",
				NeedsClarification:      true,
				DirectResponse:          prompt.ClarificationResponse(in.Language),
			}
		}
		return types.ClassificationResult{
			Category:           types.CategoryUnintelligible,
			Confidence:         0.6,
			NeedsClarification: true,
			DirectResponse:     prompt.ClarificationResponse(in.Language),
		}
	}

	if containsAny(query, draftingTerms) {
		return legalResult(in, 0.7)
	}
	if containsAny(query, legalTerms) {
		return legalResult(in, 0.7)
	}
	if containsAny(query, greetingTerms) && len([]rune(query)) < 40 {
		return types.ClassificationResult{
			Category:   types.CategoryGeneral,
			Confidence: 0.6,
		}
	}

	// Default: treat it as a legal question.
	return legalResult(in, 0.5)
}

func legalResult(in Input, confidence float64) types.ClassificationResult {
	category := types.CategoryLegal
	if in.HasAttachment {
		category = types.CategoryLegalAttachment
	}
	return types.ClassificationResult{
		Category:                category,
		Confidence:              confidence,
		HasMeaningfulAttachment: in.HasAttachment && in.FileAnalysis != "",
	}
}

// isUnintelligible flags queries too short or too symbol-heavy to carry a
// question.
func isUnintelligible(query string) bool {
	letters := 0
	for _, r := range query {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters < 2
}

func containsAny(query string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(query, term) {
			return true
		}
	}
	return false
}
