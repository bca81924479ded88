// Package contextbuilder assembles character prompts, ranked memories, and
// conversation history into a fixed token budget.
//
// Token counting here is deliberately approximate: a fixed characters-per-
// token ratio stands in for a real tokenizer, which is out of scope. The
// counting function is injectable so a real tokenizer can replace it
// without touching any assembly logic.
package contextbuilder

// charsPerToken is the fixed ratio behind the approximate counter. English
// text averages roughly four characters per token under common BPE
// tokenizers; good enough for budget comparisons, not billing-accurate.
const charsPerToken = 4

// MessageOverheadTokens is the fixed per-message overhead added when
// summing a full message list, covering role markers and separators.
const MessageOverheadTokens = 4

// CountFunc maps text to a token count. Supply one to BudgetConfig to
// replace the approximate default with a real tokenizer.
type CountFunc func(text string) int

// EstimateTokens approximates the token count of text as
// ceil(len(text) / 4). Empty text counts zero.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessageTokens sums the counted tokens of every message's content
// plus the fixed per-message overhead.
func EstimateMessageTokens(messages []Message, count CountFunc) int {
	if count == nil {
		count = EstimateTokens
	}
	total := 0
	for _, m := range messages {
		total += count(m.Content) + MessageOverheadTokens
	}
	return total
}
