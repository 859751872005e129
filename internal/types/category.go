package types

import "fmt"

// Category is the closed set of query intents produced by classification.
type Category string

const (
	// CategoryUnintelligible is a query that carries no recoverable question
	// and has no attachment to fall back on.
	CategoryUnintelligible Category = "unintelligible"
	// CategoryAmbiguousAttachment is an unclear query accompanied by an
	// attachment that may carry the real intent.
	CategoryAmbiguousAttachment Category = "ambiguous_attachment"
	// CategoryGeneral is small talk or any question outside the legal domain.
	CategoryGeneral Category = "general"
	// CategoryLegal is a legal question with no attachment.
	CategoryLegal Category = "legal"
	// CategoryLegalAttachment is a legal question that references an attachment.
	CategoryLegalAttachment Category = "legal_attachment"
)

// ParseCategory validates a raw category label from model output.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryUnintelligible, CategoryAmbiguousAttachment, CategoryGeneral,
		CategoryLegal, CategoryLegalAttachment:
		return Category(raw), nil
	}
	return "", fmt.Errorf("unknown category: %q", raw)
}

// IsLegal reports whether the category routes through retrieval.
func (c Category) IsLegal() bool {
	return c == CategoryLegal || c == CategoryLegalAttachment
}

// MemoryCategory classifies a long-term memory item.
type MemoryCategory string

const (
	MemoryPersonalInfo MemoryCategory = "personal_info"
	MemoryPreference   MemoryCategory = "preference"
	MemoryGoal         MemoryCategory = "goal"
	MemoryInterest     MemoryCategory = "interest"
	MemoryContext      MemoryCategory = "context"
	MemoryBehavior     MemoryCategory = "behavior"
	MemoryOther        MemoryCategory = "other"
)

// ParseMemoryCategory normalizes a raw label, mapping anything unknown to other.
func ParseMemoryCategory(raw string) MemoryCategory {
	switch MemoryCategory(raw) {
	case MemoryPersonalInfo, MemoryPreference, MemoryGoal, MemoryInterest,
		MemoryContext, MemoryBehavior:
		return MemoryCategory(raw)
	}
	return MemoryOther
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)
