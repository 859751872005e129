// Package classifier assigns one of five intents to an incoming query.
package classifier

import (
	"context"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pasokh-ai/pasokh/internal/llm"
	"github.com/pasokh-ai/pasokh/internal/prompt"
	"github.com/pasokh-ai/pasokh/internal/types"
	"github.com/pasokh-ai/pasokh/internal/utils"
)

// Input is everything classification may consider for one query.
type Input struct {
	Query        string
	Language     string
	PriorSummary string
	FileAnalysis string
	// HasAttachment reports that the request carried files, regardless of
	// whether their extracted text turned out meaningful.
	HasAttachment bool
}

// Classifier categorizes queries with one completion call and a keyword
// fallback when the model's output cannot be decoded.
type Classifier struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Classifier {
	return &Classifier{provider: provider}
}

type classifyOutput struct {
	Category                string  `json:"category"`
	Confidence              float64 `json:"confidence"`
	DirectResponse          string  `json:"direct_response"`
	HasMeaningfulAttachment bool    `json:"has_meaningful_attachment"`
	NeedsClarification      bool    `json:"needs_clarification"`
}

var classifySchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"category": {
			Type: "string",
			Enum: []any{"unintelligible", "ambiguous_attachment", "general", "legal", "legal_attachment"},
		},
		"confidence":                {Type: "number"},
		"direct_response":           {Type: "string"},
		"has_meaningful_attachment": {Type: "boolean"},
		"needs_clarification":       {Type: "boolean"},
	},
	Required: []string{"category", "confidence"},
}

// Classify returns the intent for one query. Model failure or malformed
// output degrades to heuristics; a real question is never dropped.
func (c *Classifier) Classify(ctx context.Context, in Input) (types.ClassificationResult, error) {
	messages := []llm.Message{
		{Role: types.RoleSystem, Content: prompt.ClassifyInstruction(in.Language)},
		{Role: types.RoleUser, Content: buildClassifyUser(in)},
	}

	completion, err := c.provider.Generate(ctx, llm.RoleClassification, messages, llm.Options{Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		if ctx.Err() != nil {
			return types.ClassificationResult{}, ctx.Err()
		}
		slog.Warn("classification call failed, using heuristics", "error", err.Error())
		return Heuristic(in), nil
	}

	var out classifyOutput
	if err := utils.DecodeStructured(completion.Content, classifySchema, &out); err != nil {
		slog.Warn("classification output unparsable, using heuristics", "error", err.Error())
		return Heuristic(in), nil
	}

	category, err := types.ParseCategory(out.Category)
	if err != nil {
		slog.Warn("classification returned unknown category, using heuristics", "category", out.Category)
		return Heuristic(in), nil
	}

	result := types.ClassificationResult{
		Category:                category,
		Confidence:              clamp01(out.Confidence),
		DirectResponse:          out.DirectResponse,
		HasMeaningfulAttachment: out.HasMeaningfulAttachment,
		NeedsClarification:      out.NeedsClarification,
		Usage:                   completion.Usage,
	}

	// The model cannot claim a meaningful attachment that was never sent.
	if !in.HasAttachment {
		result.HasMeaningfulAttachment = false
		if result.Category == types.CategoryAmbiguousAttachment {
			result.Category = types.CategoryUnintelligible
		}
		if result.Category == types.CategoryLegalAttachment {
			result.Category = types.CategoryLegal
		}
	}
	return result, nil
}

func buildClassifyUser(in Input) string {
	user := "Query: " + in.Query
	if in.PriorSummary != "" {
		user += "\n\nPrior conversation summary:\n" + in.PriorSummary
	}
	if in.HasAttachment {
		user += "\n\nAttachment present: yes"
		if in.FileAnalysis != "" {
			excerpt := []rune(in.FileAnalysis)
			if len(excerpt) > 500 {
				excerpt = excerpt[:500]
			}
			user += "\nAttachment analysis excerpt:\n" + string(excerpt)
		}
	} else {
		user += "\n\nAttachment present: no"
	}
	return user
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
