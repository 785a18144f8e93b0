package chat

import (
	"strings"

	"github.com/alta-ny/chatbot/internal/models"
)

// promptHistoryTurns is how much history goes into the prompt (3 exchanges).
const promptHistoryTurns = 6

// BuildSystemPrompt renders the system instruction for one completion. It is
// a pure function of its inputs.
func BuildSystemPrompt(p *Profile, retrieval models.Retrieval, history []models.Turn) string {
	var b strings.Builder

	b.WriteString(p.Intro)
	b.WriteString("\n\nCompany Information:\n")
	for _, f := range p.Facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteByte('\n')
	}

	b.WriteString("\nInstructions:\n")
	for _, in := range p.Instructions {
		b.WriteString("- ")
		b.WriteString(in)
		b.WriteByte('\n')
	}

	b.WriteString("\nContext from knowledge base:\n")
	contents := make([]string, 0, len(retrieval.Results))
	for _, r := range retrieval.Results {
		contents = append(contents, r.Content())
	}
	b.WriteString(strings.Join(contents, "\n\n"))

	b.WriteString("\n\nPrevious conversation:\n")
	if len(history) > promptHistoryTurns {
		history = history[len(history)-promptHistoryTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		lines = append(lines, string(t.Role)+": "+t.Content)
	}
	b.WriteString(strings.Join(lines, "\n"))

	return b.String()
}
