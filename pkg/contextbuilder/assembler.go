package contextbuilder

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Message roles in an assembled prompt.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of an assembled conversation.
type Message struct {
	// Role is one of system, user, or assistant.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// BudgetConfig configures an Assembler.
//
// Budget configuration is always an explicit value passed in here, never
// package-global state, so multiple profiles (different model context
// windows) can coexist in one process.
type BudgetConfig struct {
	// TotalTokens is the full context window budget. Default: 8192.
	TotalTokens int `json:"total_tokens,omitempty"`

	// ResponseReserve is held back for the model's response and never
	// spent on the prompt. Default: 2000.
	ResponseReserve int `json:"response_reserve,omitempty"`

	// SystemFraction is the share of the usable budget reserved for the
	// character system message. Default: 0.15.
	SystemFraction float64 `json:"system_fraction,omitempty"`

	// MemoryFraction is the share for the memories section. Default: 0.20.
	MemoryFraction float64 `json:"memory_fraction,omitempty"`

	// HistoryFraction is the share for conversation history. Default: 0.35.
	HistoryFraction float64 `json:"history_fraction,omitempty"`

	// QueryFraction is the share for the current query. Default: 0.05.
	// The remainder of the usable budget is slack.
	QueryFraction float64 `json:"query_fraction,omitempty"`

	// Counter replaces the approximate token counter. Nil uses
	// EstimateTokens.
	Counter CountFunc `json:"-"`
}

// Input is the raw material for one assembly call.
type Input struct {
	// CharacterPrompt is the primary character-definition system message.
	// It is always included in full, never trimmed.
	CharacterPrompt string

	// ExtraSystem holds additional system messages, kept in arrival order.
	ExtraSystem []string

	// MemorySection is the pre-formatted ranked-memory section, one memory
	// per line (see FormatMemoryLine). Empty means no memories.
	MemorySection string

	// History is the prior conversation as alternating user/assistant
	// turns, oldest first.
	History []Message

	// Query is the current user query. It is always included in full,
	// never trimmed, and always placed last.
	Query string
}

// Result is the outcome of one assembly call.
type Result struct {
	// Messages is the assembled, ordered prompt.
	Messages []Message

	// TotalTokens is the measured token count of Messages, using the same
	// counter the assembly used.
	TotalTokens int

	// OverBudget is true when even the untrimmable parts pushed the result
	// past the usable budget. The result is still returned; the budget is
	// a soft limit and callers needing a hard cap must check this.
	OverBudget bool

	// DroppedMemories is how many memory lines were cut for budget.
	DroppedMemories int

	// OmittedTurns is how many conversation turns were cut for budget.
	OmittedTurns int
}

// Assembler fits a character prompt, a ranked memory section, and
// conversation history into a fixed token budget, trimming the lowest-
// priority content first. The character prompt and the current query are
// never trimmed; memories are cut lowest-importance-first; history is cut
// oldest-first in whole user/assistant pairs.
type Assembler struct {
	cfg   BudgetConfig
	count CountFunc
}

// NewAssembler creates an Assembler from the given configuration.
// Nonsensical budgets (negative values, a reserve that exceeds the total,
// fractions outside [0,1] or summing past 1) fail fast.
func NewAssembler(cfg *BudgetConfig) (*Assembler, error) {
	if cfg == nil {
		cfg = &BudgetConfig{}
	}
	c := *cfg

	if c.TotalTokens == 0 {
		c.TotalTokens = 8192
	}
	if c.TotalTokens < 0 {
		return nil, fmt.Errorf("contextbuilder: NewAssembler: total tokens must be positive, got %d", c.TotalTokens)
	}
	if c.ResponseReserve == 0 {
		c.ResponseReserve = 2000
	}
	if c.ResponseReserve < 0 || c.ResponseReserve >= c.TotalTokens {
		return nil, fmt.Errorf("contextbuilder: NewAssembler: response reserve %d out of range for total %d", c.ResponseReserve, c.TotalTokens)
	}

	if c.SystemFraction == 0 {
		c.SystemFraction = 0.15
	}
	if c.MemoryFraction == 0 {
		c.MemoryFraction = 0.20
	}
	if c.HistoryFraction == 0 {
		c.HistoryFraction = 0.35
	}
	if c.QueryFraction == 0 {
		c.QueryFraction = 0.05
	}
	fractions := []float64{c.SystemFraction, c.MemoryFraction, c.HistoryFraction, c.QueryFraction}
	sum := 0.0
	for _, f := range fractions {
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("contextbuilder: NewAssembler: budget fraction %v out of [0,1]", f)
		}
		sum += f
	}
	if sum > 1.0 {
		return nil, fmt.Errorf("contextbuilder: NewAssembler: budget fractions sum to %v, need <= 1", sum)
	}

	count := c.Counter
	if count == nil {
		count = EstimateTokens
	}

	return &Assembler{cfg: c, count: count}, nil
}

// UsableTokens returns the prompt budget: total minus the response reserve.
func (a *Assembler) UsableTokens() int {
	return a.cfg.TotalTokens - a.cfg.ResponseReserve
}

// Assemble fits the input into the token budget and returns the ordered
// prompt.
//
// Output order is normalized: the character system message first, other
// system messages next in arrival order, then the conversation, with a
// trailing unanswered user message pushed to the very end and the current
// query last of all. Assemble never fails: when even the untrimmable parts
// exceed the budget the over-budget result is returned with OverBudget set.
func (a *Assembler) Assemble(in Input) Result {
	usable := a.UsableTokens()
	memoryBudget := int(float64(usable) * a.cfg.MemoryFraction)
	historyBudget := int(float64(usable) * a.cfg.HistoryFraction)

	var res Result

	messages := make([]Message, 0, len(in.History)+len(in.ExtraSystem)+4)
	messages = append(messages, Message{Role: RoleSystem, Content: in.CharacterPrompt})
	for _, content := range in.ExtraSystem {
		messages = append(messages, Message{Role: RoleSystem, Content: content})
	}

	if in.MemorySection != "" {
		section, dropped := a.fitMemorySection(in.MemorySection, memoryBudget)
		res.DroppedMemories = dropped
		if section != "" {
			messages = append(messages, Message{Role: RoleSystem, Content: section})
		}
	}

	conversation, trailing, omittedTurns := a.fitHistory(in.History, historyBudget)
	res.OmittedTurns = omittedTurns
	if omittedTurns > 0 {
		note := fmt.Sprintf("[Note: %d earlier conversation turns omitted]", omittedTurns)
		spent := EstimateMessageTokens(messages, a.count) +
			EstimateMessageTokens(conversation, a.count) +
			EstimateMessageTokens(trailing, a.count) +
			a.count(in.Query) + MessageOverheadTokens
		if spent+a.count(note)+MessageOverheadTokens <= usable {
			messages = append(messages, Message{Role: RoleSystem, Content: note})
		}
	}
	messages = append(messages, conversation...)
	messages = append(messages, trailing...)

	if in.Query != "" {
		messages = append(messages, Message{Role: RoleUser, Content: in.Query})
	}

	res.Messages = messages
	res.TotalTokens = EstimateMessageTokens(messages, a.count)
	res.OverBudget = res.TotalTokens > usable
	return res
}

// memoryLinePattern extracts the bracketed importance value embedded in a
// formatted memory line.
var memoryLinePattern = regexp.MustCompile(`\[([0-9]*\.?[0-9]+)\]`)

// FormatMemoryLine renders one memory as a section line carrying its
// importance, so later trimming can re-rank lines without the originals.
func FormatMemoryLine(content string, importance float64) string {
	return fmt.Sprintf("- [%.2f] %s", importance, content)
}

// fitMemorySection trims a memory section to its sub-budget. Lines are
// ranked by their embedded importance value and admitted greedily from the
// top; when lines are dropped and a one-line summary fits, the summary
// replaces them. When not a single line fits the section is omitted
// entirely rather than overflowing.
func (a *Assembler) fitMemorySection(section string, budget int) (string, int) {
	if a.count(section) <= budget {
		return section, 0
	}

	rawLines := strings.Split(section, "\n")
	lines := make([]string, 0, len(rawLines))
	for _, line := range rawLines {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lineImportance(lines[i]) > lineImportance(lines[j])
	})

	admitted := make([]string, 0, len(lines))
	spent := 0
	dropped := 0
	for _, line := range lines {
		cost := a.count(line + "\n")
		if spent+cost > budget {
			dropped = len(lines) - len(admitted)
			break
		}
		admitted = append(admitted, line)
		spent += cost
	}

	if len(admitted) == 0 {
		return "", len(lines)
	}
	if dropped > 0 {
		summary := fmt.Sprintf("Plus %d more less important memories", dropped)
		if spent+a.count(summary) <= budget {
			admitted = append(admitted, summary)
		}
	}

	return strings.Join(admitted, "\n"), dropped
}

// lineImportance parses the embedded importance of a formatted memory
// line; lines without one rank lowest.
func lineImportance(line string) float64 {
	match := memoryLinePattern.FindStringSubmatch(line)
	if match == nil {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	return value
}

// fitHistory trims conversation history to its sub-budget. History is
// consumed most-recent-first in whole user+assistant pairs; a pair that
// would overflow stops admission; partial pairs are never emitted. A
// trailing user message with no assistant reply is returned separately so
// ordering can push it to the very end.
func (a *Assembler) fitHistory(history []Message, budget int) (conversation, trailing []Message, omittedTurns int) {
	if len(history) == 0 {
		return nil, nil, 0
	}

	end := len(history)
	if history[end-1].Role == RoleUser {
		trailing = []Message{history[end-1]}
		end--
	}

	// Pair up the remaining turns from the back.
	type pair struct{ msgs []Message }
	pairs := make([]pair, 0, end/2+1)
	for i := end; i > 0; {
		if i >= 2 && history[i-2].Role == RoleUser && history[i-1].Role == RoleAssistant {
			pairs = append(pairs, pair{msgs: []Message{history[i-2], history[i-1]}})
			i -= 2
		} else {
			pairs = append(pairs, pair{msgs: []Message{history[i-1]}})
			i--
		}
	}

	spent := EstimateMessageTokens(trailing, a.count)
	admitted := 0
	for _, p := range pairs {
		cost := EstimateMessageTokens(p.msgs, a.count)
		if spent+cost > budget {
			break
		}
		spent += cost
		admitted++
	}
	omittedTurns = len(pairs) - admitted

	// Rebuild the admitted pairs in chronological order.
	for i := admitted - 1; i >= 0; i-- {
		conversation = append(conversation, pairs[i].msgs...)
	}
	return conversation, trailing, omittedTurns
}
