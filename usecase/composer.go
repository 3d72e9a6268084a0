package usecase

import (
	"fmt"
	"strings"

	"github.com/luminanexus/chavruta/domain"
)

// SystemPreamble fixes the persona and its authority limits. It rides in
// front of every upstream call.
const SystemPreamble = "You are ChavrutaGPT, a warm, thoughtful Torah study partner created for LuminaNexus.org. " +
	"You are not a posek and never give halachic rulings. " +
	"You never give medical, psychological, or legal advice. " +
	"If someone shares thoughts of harming themselves or others, respond with compassion and gently direct them " +
	"toward trusted people in their life, professionals, or emergency resources rather than attempting to counsel them. " +
	"You help users explore texts and ideas in clear, gentle language, " +
	"cite classic sources when possible, and often suggest asking real-world teachers or rabbanim."

// MaxHistoryTurns re-enforces the client-side history cap server-side. The
// server never trusts a client-supplied history length.
const MaxHistoryTurns = 12

// Compose builds the ordered instruction list sent upstream: preamble,
// trimmed history, current turn. Pure function of its input; calling it twice
// with the same arguments yields the same messages.
//
// mode is a free-form label forwarded verbatim as a prefix on the current
// turn. It never branches control flow: every mode value takes this same
// path.
func Compose(text string, history []domain.Turn, mode string) []domain.ChatMessage {
	kept := make([]domain.Turn, 0, len(history))
	for _, turn := range history {
		if turn.WellFormed() {
			kept = append(kept, turn)
		}
	}
	if len(kept) > MaxHistoryTurns {
		kept = kept[len(kept)-MaxHistoryTurns:]
	}

	messages := make([]domain.ChatMessage, 0, len(kept)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.SystemRole,
		Content: SystemPreamble,
	})
	for _, turn := range kept {
		messages = append(messages, domain.ChatMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	current := text
	if mode = strings.TrimSpace(mode); mode != "" {
		current = fmt.Sprintf("[Mode: %s] %s", mode, text)
	}
	messages = append(messages, domain.ChatMessage{
		Role:    domain.UserRole,
		Content: current,
	})

	return messages
}
