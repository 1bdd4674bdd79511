package engine

import (
	"strconv"
	"time"
)

// Card is one denomination from the closed voting deck. Numeric cards are
// kept as their string form so the two sentinels live in the same type.
type Card string

const (
	CardUnknown Card = "?"
	CardBreak   Card = "coffee"
)

// Deck is the full set of cards a player may submit. Anything else is
// rejected at the boundary, never coerced.
var Deck = []Card{"1", "2", "3", "5", "8", "13", "20", "40", "100", CardUnknown, CardBreak}

func ValidCard(c Card) bool {
	for _, d := range Deck {
		if c == d {
			return true
		}
	}
	return false
}

// Numeric returns the card's integer value. The second result is false for
// the "?" and "coffee" sentinels.
func (c Card) Numeric() (int, bool) {
	if c == CardUnknown || c == CardBreak {
		return 0, false
	}
	n, err := strconv.Atoi(string(c))
	if err != nil {
		return 0, false
	}
	return n, true
}

type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeAverage Mode = "average"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeStrict:
		return ModeStrict, true
	case ModeAverage:
		return ModeAverage, true
	default:
		return "", false
	}
}

// Vote is one player's card for one round of one feature. Immutable once
// recorded.
type Vote struct {
	ParticipantID string    `json:"participantId"`
	Value         Card      `json:"value"`
	Round         int       `json:"round"`
	SubmittedAt   time.Time `json:"submittedAt"`
}
