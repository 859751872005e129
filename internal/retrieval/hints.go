package retrieval

import (
	"regexp"
	"strings"
)

// Hints are structured signals pulled from the raw query text, used as score
// boosts on top of vector similarity.
type Hints struct {
	// UnitNumbers are referenced article/clause numbers, ASCII-normalized.
	UnitNumbers []string
	// Entities are law names mentioned in the query.
	Entities []string
	// Keywords are the remaining content terms.
	Keywords []string
}

// unitRefPattern matches numbered-unit references after digit folding:
// «ماده 179», «تبصره 2», "article 10".
var unitRefPattern = regexp.MustCompile(`(?i)(?:ماده|مواد|اصل|تبصره|بند|article|section|clause)\s*(\d+)`)

// knownLaws is the named-entity list for boost matching. Matching is
// substring-based over the normalized query; law names are stable phrases.
var knownLaws = []string{
	"قانون مدنی",
	"قانون مجازات اسلامی",
	"قانون تجارت",
	"قانون کار",
	"قانون اساسی",
	"آیین دادرسی مدنی",
	"آیین دادرسی کیفری",
	"قانون ثبت",
	"قانون صدور چک",
	"قانون روابط موجر و مستاجر",
	"قانون حمایت خانواده",
	"قانون امور حسبی",
	"civil code",
	"penal code",
	"commercial code",
	"labor law",
	"constitution",
}

var stopTerms = map[string]struct{}{
	"از": {}, "به": {}, "در": {}, "که": {}, "را": {}, "با": {}, "این": {},
	"آن": {}, "برای": {}, "چه": {}, "چیست": {}, "است": {}, "میگوید": {},
	"می": {}, "گوید": {}, "the": {}, "a": {}, "an": {}, "of": {}, "in": {},
	"is": {}, "what": {}, "does": {}, "say": {}, "about": {},
}

// ExtractHints pulls unit references, law names, and content keywords from a
// normalized query.
func ExtractHints(normalized string) Hints {
	var hints Hints

	for _, match := range unitRefPattern.FindAllStringSubmatch(normalized, -1) {
		hints.UnitNumbers = appendUnique(hints.UnitNumbers, strings.TrimLeft(match[1], "0"))
	}

	lowered := strings.ToLower(normalized)
	for _, law := range knownLaws {
		if strings.Contains(lowered, law) {
			hints.Entities = appendUnique(hints.Entities, law)
		}
	}

	for _, term := range strings.Fields(lowered) {
		term = strings.Trim(term, ".،,؛:؟?!()«»\"'")
		if len([]rune(term)) < 3 {
			continue
		}
		if _, stop := stopTerms[term]; stop {
			continue
		}
		hints.Keywords = appendUnique(hints.Keywords, term)
	}

	return hints
}

func appendUnique(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
