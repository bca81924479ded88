package contextbuilder_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/charmem-go/pkg/contextbuilder"
)

func TestNewAssemblerDefaults(t *testing.T) {
	assembler, err := contextbuilder.NewAssembler(nil)
	require.NoError(t, err)
	assert.Equal(t, 8192-2000, assembler.UsableTokens())
}

func TestNewAssemblerRejectsBadConfig(t *testing.T) {
	_, err := contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		TotalTokens:     1000,
		ResponseReserve: 1000,
	})
	assert.Error(t, err, "Reserve consuming the whole budget should fail")

	_, err = contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		TotalTokens: -10,
	})
	assert.Error(t, err)

	_, err = contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		SystemFraction: -0.2,
	})
	assert.Error(t, err, "Negative fraction should fail")

	_, err = contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		SystemFraction:  0.6,
		MemoryFraction:  0.5,
		HistoryFraction: 0.2,
		QueryFraction:   0.1,
	})
	assert.Error(t, err, "Fractions summing past 1 should fail")
}

func TestAssembleOrdering(t *testing.T) {
	assembler, err := contextbuilder.NewAssembler(nil)
	require.NoError(t, err)

	result := assembler.Assemble(contextbuilder.Input{
		CharacterPrompt: "You are Maya, a station botanist.",
		ExtraSystem:     []string{"Stay in character."},
		MemorySection:   contextbuilder.FormatMemoryLine("Loves the observatory garden", 0.8),
		History: []contextbuilder.Message{
			{Role: contextbuilder.RoleUser, Content: "Hello"},
			{Role: contextbuilder.RoleAssistant, Content: "Hi there"},
		},
		Query: "How is the garden?",
	})

	require.Len(t, result.Messages, 6)
	assert.Equal(t, contextbuilder.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, "You are Maya, a station botanist.", result.Messages[0].Content)
	assert.Equal(t, "Stay in character.", result.Messages[1].Content)
	assert.Contains(t, result.Messages[2].Content, "observatory garden")
	assert.Equal(t, "Hello", result.Messages[3].Content)
	assert.Equal(t, "Hi there", result.Messages[4].Content)

	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, contextbuilder.RoleUser, last.Role)
	assert.Equal(t, "How is the garden?", last.Content, "The query always goes last")

	assert.False(t, result.OverBudget)
	assert.Zero(t, result.DroppedMemories)
	assert.Zero(t, result.OmittedTurns)
	assert.Greater(t, result.TotalTokens, 0)
}

func TestAssembleTrimsMemoriesLowestImportanceFirst(t *testing.T) {
	assembler, err := contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		TotalTokens:     400,
		ResponseReserve: 200,
	})
	require.NoError(t, err)

	// Five 59-char lines at 15 tokens each against a 40-token memory
	// budget: two admitted, three dropped, summary line appended.
	lines := make([]string, 0, 5)
	for i, importance := range []float64{0.9, 0.8, 0.7, 0.6, 0.5} {
		content := fmt.Sprintf("memory number %d %s", i, strings.Repeat("x", 33))
		lines = append(lines, contextbuilder.FormatMemoryLine(content, importance))
	}

	result := assembler.Assemble(contextbuilder.Input{
		CharacterPrompt: "You are Maya.",
		MemorySection:   strings.Join(lines, "\n"),
		Query:           "What happened?",
	})

	assert.Equal(t, 3, result.DroppedMemories)

	require.Len(t, result.Messages, 3)
	section := result.Messages[1].Content
	assert.Contains(t, section, "[0.90]")
	assert.Contains(t, section, "[0.80]")
	assert.NotContains(t, section, "[0.70]", "Lower-importance lines go first")
	assert.Contains(t, section, "Plus 3 more less important memories")
	assert.False(t, result.OverBudget)
}

func TestAssembleTrimsMemorySectionByImportanceNotPosition(t *testing.T) {
	assembler, err := contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		TotalTokens:     400,
		ResponseReserve: 200,
	})
	require.NoError(t, err)

	// The most important line arrives last; trimming must still keep it.
	lines := []string{
		contextbuilder.FormatMemoryLine(strings.Repeat("a", 50), 0.2),
		contextbuilder.FormatMemoryLine(strings.Repeat("b", 50), 0.3),
		contextbuilder.FormatMemoryLine(strings.Repeat("c", 50), 0.4),
		contextbuilder.FormatMemoryLine(strings.Repeat("d", 50), 0.95),
	}

	result := assembler.Assemble(contextbuilder.Input{
		CharacterPrompt: "You are Maya.",
		MemorySection:   strings.Join(lines, "\n"),
		Query:           "What happened?",
	})

	require.GreaterOrEqual(t, len(result.Messages), 2)
	assert.Contains(t, result.Messages[1].Content, "[0.95]")
	assert.NotContains(t, result.Messages[1].Content, "[0.20]")
}

func TestAssembleOmitsHistoryOldestFirst(t *testing.T) {
	assembler, err := contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		TotalTokens:     400,
		ResponseReserve: 200,
	})
	require.NoError(t, err)

	// Four pairs at 28 tokens each plus a 14-token trailing user message
	// against a 70-token history budget: two pairs admitted.
	history := make([]contextbuilder.Message, 0, 9)
	for i := 1; i <= 4; i++ {
		history = append(history,
			contextbuilder.Message{Role: contextbuilder.RoleUser, Content: fmt.Sprintf("user turn %d %s", i, strings.Repeat("u", 27))},
			contextbuilder.Message{Role: contextbuilder.RoleAssistant, Content: fmt.Sprintf("assistant %d %s", i, strings.Repeat("a", 28))},
		)
	}
	history = append(history, contextbuilder.Message{
		Role:    contextbuilder.RoleUser,
		Content: "pending question " + strings.Repeat("p", 23),
	})

	result := assembler.Assemble(contextbuilder.Input{
		CharacterPrompt: "You are Maya.",
		History:         history,
		Query:           "What happened?",
	})

	assert.Equal(t, 2, result.OmittedTurns)

	var contents []string
	for _, m := range result.Messages {
		contents = append(contents, m.Content)
	}
	joined := strings.Join(contents, "\n")
	assert.Contains(t, joined, "[Note: 2 earlier conversation turns omitted]")
	assert.Contains(t, joined, "user turn 3")
	assert.Contains(t, joined, "user turn 4")
	assert.NotContains(t, joined, "user turn 1", "The oldest turns go first")
	assert.NotContains(t, joined, "user turn 2")

	// The kept turns stay chronological, the pending user message lands
	// right before the query.
	idx3 := strings.Index(joined, "user turn 3")
	idx4 := strings.Index(joined, "user turn 4")
	idxPending := strings.Index(joined, "pending question")
	idxQuery := strings.Index(joined, "What happened?")
	assert.Less(t, idx3, idx4)
	assert.Less(t, idx4, idxPending)
	assert.Less(t, idxPending, idxQuery)
}

func TestAssembleNeverTrimsCharacterPromptOrQuery(t *testing.T) {
	assembler, err := contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		TotalTokens:     50,
		ResponseReserve: 40,
	})
	require.NoError(t, err)

	prompt := strings.Repeat("You are a very detailed character. ", 10)
	result := assembler.Assemble(contextbuilder.Input{
		CharacterPrompt: prompt,
		Query:           "Hello?",
	})

	assert.True(t, result.OverBudget, "Untrimmable content past the budget flags the result")
	require.Len(t, result.Messages, 2)
	assert.Equal(t, prompt, result.Messages[0].Content, "The character prompt is never cut")
	assert.Equal(t, "Hello?", result.Messages[1].Content, "The query is never cut")
}

func TestAssembleEmptyInput(t *testing.T) {
	assembler, err := contextbuilder.NewAssembler(nil)
	require.NoError(t, err)

	result := assembler.Assemble(contextbuilder.Input{})
	require.Len(t, result.Messages, 1, "An empty query adds no user message")
	assert.Equal(t, contextbuilder.RoleSystem, result.Messages[0].Role)
	assert.False(t, result.OverBudget)
}

func TestAssembleWithInjectedCounter(t *testing.T) {
	wordCounter := func(text string) int { return len(strings.Fields(text)) }
	assembler, err := contextbuilder.NewAssembler(&contextbuilder.BudgetConfig{
		TotalTokens:     100,
		ResponseReserve: 50,
		Counter:         wordCounter,
	})
	require.NoError(t, err)

	result := assembler.Assemble(contextbuilder.Input{
		CharacterPrompt: "one two three",
		Query:           "four five",
	})

	// 3 + 2 words plus two message overheads.
	want := 5 + 2*contextbuilder.MessageOverheadTokens
	assert.Equal(t, want, result.TotalTokens)
}

func TestFormatMemoryLine(t *testing.T) {
	line := contextbuilder.FormatMemoryLine("Loves the garden", 0.8456)
	assert.Equal(t, "- [0.85] Loves the garden", line)
}
