package rag

import "mediachat/internal/models"

// History is the session's conversation, kept in full for display. Only
// the last few turns are ever sent to a backend.
type History struct {
	turns []models.ConversationTurn
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(role models.Role, content string) {
	h.turns = append(h.turns, models.ConversationTurn{Role: role, Content: content})
}

// Messages returns a copy of every turn.
func (h *History) Messages() []models.ConversationTurn {
	out := make([]models.ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Last returns a copy of the last k turns.
func (h *History) Last(k int) []models.ConversationTurn {
	if k <= 0 {
		return nil
	}
	start := max(len(h.turns)-k, 0)
	out := make([]models.ConversationTurn, len(h.turns)-start)
	copy(out, h.turns[start:])
	return out
}

func (h *History) Len() int {
	return len(h.turns)
}

// Truncate drops every turn from index n on.
func (h *History) Truncate(n int) {
	if n >= 0 && n < len(h.turns) {
		h.turns = h.turns[:n]
	}
}

func (h *History) Clear() {
	h.turns = nil
}
