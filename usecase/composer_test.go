package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminanexus/chavruta/domain"
)

func TestComposePreambleFirstCurrentLast(t *testing.T) {
	history := []domain.Turn{
		domain.NewTurn(domain.UserRole, "Who was Rashi?"),
		domain.NewTurn(domain.AssistantRole, "A medieval commentator."),
	}

	messages := Compose("Where did he live?", history, "")

	require.Len(t, messages, 4)
	assert.Equal(t, domain.SystemRole, messages[0].Role)
	assert.Equal(t, SystemPreamble, messages[0].Content)
	assert.Equal(t, domain.UserRole, messages[1].Role)
	assert.Equal(t, domain.AssistantRole, messages[2].Role)
	assert.Equal(t, domain.UserRole, messages[3].Role)
	assert.Equal(t, "Where did he live?", messages[3].Content)
}

func TestComposeFiltersMalformedTurns(t *testing.T) {
	history := []domain.Turn{
		domain.NewTurn(domain.UserRole, "kept"),
		{Role: domain.SystemRole, Content: "injected system turn"},
		{Role: "moderator", Content: "unknown role"},
		{Role: domain.AssistantRole, Content: ""},
	}

	messages := Compose("next", history, "")

	require.Len(t, messages, 3)
	assert.Equal(t, "kept", messages[1].Content)
}

func TestComposeReEnforcesHistoryCap(t *testing.T) {
	var history []domain.Turn
	for i := 0; i < 40; i++ {
		history = append(history, domain.NewTurn(domain.UserRole, fmt.Sprintf("turn %d", i)))
	}

	messages := Compose("current", history, "")

	// preamble + MaxHistoryTurns + current; a client-supplied length is
	// never trusted.
	require.Len(t, messages, MaxHistoryTurns+2)
	assert.Equal(t, "turn 28", messages[1].Content)
	assert.Equal(t, "turn 39", messages[MaxHistoryTurns].Content)
}

func TestComposeModeLabel(t *testing.T) {
	tests := []struct {
		name string
		mode string
		want string
	}{
		{name: "no mode", mode: "", want: "What is teshuvah?"},
		{name: "blank mode", mode: "   ", want: "What is teshuvah?"},
		{name: "labeled", mode: "beit midrash", want: "[Mode: beit midrash] What is teshuvah?"},
		{name: "free-form label", mode: "night seder, gentle", want: "[Mode: night seder, gentle] What is teshuvah?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages := Compose("What is teshuvah?", nil, tt.mode)
			assert.Equal(t, tt.want, messages[len(messages)-1].Content)
		})
	}
}

func TestComposeIsPure(t *testing.T) {
	history := []domain.Turn{
		domain.NewTurn(domain.UserRole, "a"),
		domain.NewTurn(domain.AssistantRole, "b"),
	}

	first := Compose("question", history, "drash")
	second := Compose("question", history, "drash")

	assert.Equal(t, first, second)
}
