// Package retrieval embeds queries, searches the index, and ranks chunks with
// metadata-driven score boosts.
package retrieval

import "strings"

// abbreviations expands the short forms lawyers actually type. Expansion
// happens before embedding so the vector sees the law's full name.
var abbreviations = map[string]string{
	"ق.م":   "قانون مدنی",
	"ق.م.ا": "قانون مجازات اسلامی",
	"ق.ت":   "قانون تجارت",
	"ق.ک":   "قانون کار",
	"ق.ا":   "قانون اساسی",
	"آ.د.م": "آیین دادرسی مدنی",
	"آ.د.ک": "آیین دادرسی کیفری",
	"ق.ث":   "قانون ثبت",
	"ق.ص.چ": "قانون صدور چک",
	"ق.ر.ا": "قانون روابط موجر و مستاجر",
}

var charFolding = strings.NewReplacer(
	// Arabic presentation forms common in pasted text.
	"ي", "ی",
	"ك", "ک",
	"ة", "ه",
	"أ", "ا",
	"إ", "ا",
	"ؤ", "و",
	// Zero-width joiners break both tokenization and keyword matching.
	"‌", " ",
	"‏", "",
	"‎", "",
)

// Normalize prepares a raw query for embedding and hint extraction: character
// folding, digit folding to ASCII, abbreviation expansion, whitespace collapse.
func Normalize(query string) string {
	normalized := charFolding.Replace(strings.TrimSpace(query))
	normalized = foldDigits(normalized)

	for short, full := range abbreviations {
		normalized = expandAbbreviation(normalized, short, full)
	}

	return strings.Join(strings.Fields(normalized), " ")
}

// foldDigits maps Persian and Arabic-Indic digits onto ASCII.
func foldDigits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '۰' && r <= '۹':
			sb.WriteRune('0' + (r - '۰'))
		case r >= '٠' && r <= '٩':
			sb.WriteRune('0' + (r - '٠'))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// expandAbbreviation replaces whole-token occurrences of short with full.
func expandAbbreviation(text, short, full string) string {
	fields := strings.Fields(text)
	changed := false
	for i, f := range fields {
		trimmed := strings.TrimRight(f, ".،,؛:؟?!")
		if trimmed == short || trimmed == short+"." {
			fields[i] = full
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}
