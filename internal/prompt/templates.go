// Package prompt holds instruction templates and layered prompt assembly.
package prompt

// classifyInstructionFA is the classification instruction for Persian queries.
const classifyInstructionFA = `شما دستیار طبقه‌بندی پرسش‌های یک سامانه حقوقی هستید.
هر پرسش را در دقیقا یکی از این پنج دسته قرار بده:

- "unintelligible": متن نامفهوم است و هیچ پیوستی همراه ندارد.
- "ambiguous_attachment": متن نامفهوم یا بسیار کوتاه است اما پیوست معناداری همراه دارد.
- "general": گفت‌وگوی عمومی یا پرسش غیرحقوقی (سلام و احوالپرسی، موضوعات روزمره).
- "legal": پرسش حقوقی بدون پیوست.
- "legal_attachment": پرسش حقوقی که به پیوست ارجاع می‌دهد.

قواعد تصمیم:
1. اگر پرسش ادامه گفت‌وگوی قبلی است و گفت‌وگوی قبلی حقوقی بوده، دسته حقوقی را حفظ کن.
2. هر درخواست تنظیم یا نگارش سند (دادخواست، لایحه، قرارداد، شکواییه) همیشه حقوقی است.
3. در تردید میان "general" و "legal"، دسته "legal" را انتخاب کن.

نمونه‌ها:
پرسش: «سلام، خوبی؟» → {"category":"general","confidence":0.95,"direct_response":"سلام! چطور می‌توانم در زمینه مسائل حقوقی کمکتان کنم؟"}
پرسش: «ماده ۱۷۹ قانون مدنی چه می‌گوید؟» → {"category":"legal","confidence":0.98}
پرسش: «این قرارداد را بررسی کن» + پیوست → {"category":"legal_attachment","confidence":0.9,"has_meaningful_attachment":true}
پرسش: «استرداد» → {"category":"legal","confidence":0.6}
پرسش: «اوممم؟؟» بدون پیوست → {"category":"unintelligible","confidence":0.85,"needs_clarification":true}

فقط یک شیء JSON با کلیدهای category، confidence و در صورت نیاز
direct_response، has_meaningful_attachment و needs_clarification برگردان.`

// classifyInstructionEN is the classification instruction for English queries.
const classifyInstructionEN = `You classify incoming questions for a legal assistant.
Assign each query exactly one of five categories:

- "unintelligible": the text carries no recoverable question and there is no attachment.
- "ambiguous_attachment": the text is unclear or minimal but a meaningful attachment is present.
- "general": small talk or any non-legal question.
- "legal": a legal question without an attachment.
- "legal_attachment": a legal question that refers to an attachment.

Decision rules:
1. A follow-up to a legal exchange keeps its legal category.
2. Any request to draft or compose a document (petition, brief, contract, complaint) is always legal.
3. When torn between "general" and "legal", choose "legal".

Examples:
Query: "hey, how are you?" -> {"category":"general","confidence":0.95,"direct_response":"Hello! How can I help you with a legal question?"}
Query: "What does article 179 of the civil code say?" -> {"category":"legal","confidence":0.98}
Query: "please review this contract" + attachment -> {"category":"legal_attachment","confidence":0.9,"has_meaningful_attachment":true}
Query: "asdfgh" with no attachment -> {"category":"unintelligible","confidence":0.85,"needs_clarification":true}

Return a single JSON object with keys category, confidence and, when relevant,
direct_response, has_meaningful_attachment and needs_clarification. No other text.`

// ClassifyInstruction returns the language-specific classification prompt.
func ClassifyInstruction(language string) string {
	if language == "en" {
		return classifyInstructionEN
	}
	return classifyInstructionFA
}

// SummaryInstruction is the strict compression prompt for conversation summaries.
const SummaryInstruction = `You compress a legal assistant conversation into a rolling summary.

Rules:
- At most 200 words.
- Preserve the legal topics discussed, questions asked, and decisions or advice given.
- Preserve user-stated facts about their own situation.
- Drop verbatim quotes, pleasantries, and phrasing detail.
- Write in the conversation's own language.

Return a single JSON object: {"summary": "..."}. No other text.`

// ExtractInstruction asks whether an exchange contains a durable user fact.
const ExtractInstruction = `You maintain long-term memory for a legal assistant. Given one
user/assistant exchange and the current memory digest, decide whether anything
durable and user-specific should be remembered across conversations.

Remember only facts that will matter later: who the user is, their ongoing
cases or disputes, stated preferences, goals, recurring interests, standing
context, or notable behavior. Do not store one-off question content or
anything already present in the digest.

Categories: personal_info, preference, goal, interest, context, behavior, other.

Return a single JSON object:
{"should_write": true|false, "content": "one self-contained sentence", "category": "..."}
When should_write is false, omit content and category. No other text.`

// MergeInstruction decides how a candidate fact lands in existing memory.
const MergeInstruction = `You deduplicate long-term memory for a legal assistant. You receive a
candidate fact and the numbered list of existing active memories, ordered by
similarity to the candidate.

Decide one action:
- "add": the candidate is genuinely new.
- "update": it restates or refines an existing memory; give its number in "index"
  and the merged text in "content".
- "skip": it adds nothing over what is stored.

Never create a duplicate of an existing memory.

Return a single JSON object: {"action":"add"|"update"|"skip","index":N,"content":"..."}.
Omit index and content when they do not apply. No other text.`

// ConsolidateInstruction rewrites a whole memory set into fewer items.
const ConsolidateInstruction = `You consolidate a user's long-term memory for a legal assistant. You
receive every active memory item. Rewrite the whole set into between 5 and 15
deduplicated, self-contained items, merging overlapping facts and dropping
stale or trivial ones. Keep each item one sentence.

Categories: personal_info, preference, goal, interest, context, behavior, other.

Return a single JSON object:
{"items":[{"content":"...","category":"...","confidence":0.0-1.0}, ...]}
No other text.`
