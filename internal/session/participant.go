package session

import (
	"time"

	"github.com/planningdeck/poker-backend/internal/engine"
)

// Participant is one connected human. The ID is stable across reconnects;
// only the Connected flag tracks the transient socket.
type Participant struct {
	ID          string
	Name        string
	Facilitator bool
	Connected   bool
	HasVoted    bool
	CurrentVote *engine.Card
	JoinedAt    time.Time
}

func (p *Participant) castVote(c engine.Card) {
	p.CurrentVote = &c
	p.HasVoted = true
}

func (p *Participant) resetVote() {
	p.CurrentVote = nil
	p.HasVoted = false
}
