package contextbuilder_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/personaforge/charmem-go/pkg/contextbuilder"
)

func TestEstimateTokens(t *testing.T) {
	testCases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
		{strings.Repeat("x", 100), 25},
		{strings.Repeat("x", 101), 26},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, contextbuilder.EstimateTokens(tc.text),
			"Token estimate for %d chars", len(tc.text))
	}
}

func TestEstimateMessageTokens(t *testing.T) {
	messages := []contextbuilder.Message{
		{Role: contextbuilder.RoleSystem, Content: "abcd"},
		{Role: contextbuilder.RoleUser, Content: "abcdefgh"},
	}

	// 1 + 2 content tokens plus the per-message overhead.
	want := 1 + 2 + 2*contextbuilder.MessageOverheadTokens
	assert.Equal(t, want, contextbuilder.EstimateMessageTokens(messages, nil))

	// An injected counter replaces the approximation wholesale.
	wordCounter := func(text string) int { return len(strings.Fields(text)) }
	want = 1 + 1 + 2*contextbuilder.MessageOverheadTokens
	assert.Equal(t, want, contextbuilder.EstimateMessageTokens(messages, wordCounter))

	assert.Equal(t, 0, contextbuilder.EstimateMessageTokens(nil, nil))
}
