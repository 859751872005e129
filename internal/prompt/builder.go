package prompt

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pasokh-ai/pasokh/internal/types"
)

const answerSystemTemplateText = `You are Pasokh, a careful legal assistant for Iranian law. Answer in the
user's language ({{.Language}}). Ground every legal claim in the numbered
source excerpts; cite them as [1], [2]. When the sources do not answer the
question, say so instead of guessing.

Temporal validity — today is {{.Today}}:
- A source applies to a target date only if its effective_from is on or
  before that date.
- A source with an expiry applies only if the expiry is after the target
  date; a source without an expiry stays applicable.
- When the question names no date, use today as the target date.
- Never rely on a source outside its validity window; prefer the newest
  applicable one.

Be precise about article numbers and law names. Do not invent citations.`

var answerSystemTemplate = template.Must(template.New("answer_system").Parse(answerSystemTemplateText))

// AnswerContext carries every layer of the answer prompt, assembled in fixed
// order: memory digest, chat summary, short-term window, file analysis,
// numbered excerpts, and finally the literal question.
type AnswerContext struct {
	Language     string
	MemoryDigest string
	ChatSummary  string
	Window       []types.Message
	FileAnalysis string
	Chunks       []types.RetrievedChunk
	Question     string
}

// AnswerSystem renders the persona and temporal-validity system prompt.
func AnswerSystem(language string) string {
	var sb strings.Builder
	_ = answerSystemTemplate.Execute(&sb, struct {
		Language string
		Today    string
	}{Language: language, Today: time.Now().Format("2006-01-02")})
	return sb.String()
}

// AnswerUser renders the layered user turn.
func AnswerUser(ctx AnswerContext) string {
	var sb strings.Builder

	if ctx.MemoryDigest != "" {
		sb.WriteString("## What we know about the user\n")
		sb.WriteString(ctx.MemoryDigest)
		sb.WriteString("\n\n")
	}
	if ctx.ChatSummary != "" {
		sb.WriteString("## Conversation so far\n")
		sb.WriteString(ctx.ChatSummary)
		sb.WriteString("\n\n")
	}
	if len(ctx.Window) > 0 {
		sb.WriteString("## Recent messages\n")
		for _, msg := range ctx.Window {
			sb.WriteString(string(msg.Role))
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if ctx.FileAnalysis != "" {
		sb.WriteString("## Attached document analysis\n")
		sb.WriteString(ctx.FileAnalysis)
		sb.WriteString("\n\n")
	}
	if len(ctx.Chunks) > 0 {
		sb.WriteString("## Sources\n")
		for i, chunk := range ctx.Chunks {
			sb.WriteString(fmt.Sprintf("[%d] (%s", i+1, chunk.Source))
			if from, ok := chunk.Metadata["effective_from"].(string); ok && from != "" {
				sb.WriteString(", effective_from: " + from)
			}
			if until, ok := chunk.Metadata["expires_at"].(string); ok && until != "" {
				sb.WriteString(", expires_at: " + until)
			}
			sb.WriteString(")\n")
			sb.WriteString(chunk.Text)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("## Question\n")
	sb.WriteString(ctx.Question)
	return sb.String()
}

// SummaryUser renders the input for a summary refresh: the previous summary
// followed by the messages that have aged out of the short-term window.
func SummaryUser(previous string, aged []types.Message) string {
	var sb strings.Builder
	if previous != "" {
		sb.WriteString("## Previous summary\n")
		sb.WriteString(previous)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Messages to fold in\n")
	for _, msg := range aged {
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ExtractUser renders the input for long-term fact extraction.
func ExtractUser(userMsg, assistantMsg, digest string) string {
	var sb strings.Builder
	if digest != "" {
		sb.WriteString("## Current memory digest\n")
		sb.WriteString(digest)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Exchange\n")
	sb.WriteString("user: ")
	sb.WriteString(userMsg)
	sb.WriteString("\nassistant: ")
	sb.WriteString(assistantMsg)
	return sb.String()
}

// MergeUser renders the candidate fact and its similarity-ranked neighbors.
func MergeUser(content string, category types.MemoryCategory, existing []types.MemoryItem) string {
	var sb strings.Builder
	sb.WriteString("## Candidate\n")
	sb.WriteString(fmt.Sprintf("(%s) %s\n\n", category, content))
	sb.WriteString("## Existing memories\n")
	for i, item := range existing {
		sb.WriteString(fmt.Sprintf("%d. (%s) %s\n", i+1, item.Category, item.Content))
	}
	return sb.String()
}

// ConsolidateUser renders the full active set for rewriting.
func ConsolidateUser(items []types.MemoryItem) string {
	var sb strings.Builder
	sb.WriteString("## Active memories\n")
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("%d. (%s, confidence %.2f) %s\n", i+1, item.Category, item.Confidence, item.Content))
	}
	return sb.String()
}

// ClarificationResponse is the canned direct response for queries the
// classifier could not route.
func ClarificationResponse(language string) string {
	if language == "en" {
		return "I couldn't quite understand your question. Could you rephrase it, or tell me what you'd like to know about the attached document?"
	}
	return "متوجه پرسش شما نشدم. لطفا سوال خود را واضح‌تر بیان کنید یا بفرمایید درباره سند پیوست چه می‌خواهید بدانید."
}
