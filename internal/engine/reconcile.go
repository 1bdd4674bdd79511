package engine

import (
	"errors"
	"math"
)

// ErrUnknownMode means an unvalidated mode reached the engine. Mode is
// checked at session creation, so this is a programming error and callers
// should treat it as internal, not as a user-facing rejection.
var ErrUnknownMode = errors.New("unknown game mode")

// Method identifies how a round's outcome was (or was not) reached.
type Method string

const (
	MethodNone           Method = "none"
	MethodUnanimous      Method = "unanimous"
	MethodAverage        Method = "average"
	MethodStrict         Method = "strict_no_consensus"
	MethodFirstRound     Method = "first_round_no_consensus"
	MethodNoNumericVotes Method = "no_numeric_votes"
)

// Outcome is the result of reconciling one completed round.
type Outcome struct {
	Validated bool   `json:"validated"`
	Estimate  *int   `json:"estimate"`
	Method    Method `json:"method"`
}

func countable(votes []Vote) []Vote {
	out := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if v.Value != CardBreak && v.Value != CardUnknown {
			out = append(out, v)
		}
	}
	return out
}

// IsUnanimous reports whether every non-sentinel vote carries the same
// value. An all-sentinel (or empty) round is never unanimous.
func IsUnanimous(votes []Vote) bool {
	c := countable(votes)
	if len(c) == 0 {
		return false
	}
	first := c[0].Value
	for _, v := range c[1:] {
		if v.Value != first {
			return false
		}
	}
	return true
}

// Average returns the mean of the numeric votes rounded half-up. The second
// result is false when no numeric vote exists.
func Average(votes []Vote) (int, bool) {
	sum, n := 0, 0
	for _, v := range votes {
		if val, ok := v.Value.Numeric(); ok {
			sum += val
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Round(float64(sum) / float64(n))), true
}

// AllBreak reports whether every expected voter submitted the break card.
// A partial round, even if all-break so far, does not count.
func AllBreak(votes []Vote, expected int) bool {
	if len(votes) != expected {
		return false
	}
	for _, v := range votes {
		if v.Value != CardBreak {
			return false
		}
	}
	return true
}

func unanimousValue(votes []Vote) *int {
	c := countable(votes)
	if len(c) == 0 {
		return nil
	}
	if n, ok := c[0].Value.Numeric(); ok {
		return &n
	}
	return nil
}

// Reconcile turns a completed round's votes into a validated estimate or a
// try-again signal. Strict mode requires unanimity always; average mode
// requires unanimity on round one and averages from round two on. The two
// are deliberately separate policies, not one parameterized formula.
func Reconcile(votes []Vote, mode Mode, round int) (Outcome, error) {
	if len(votes) == 0 {
		return Outcome{Method: MethodNone}, nil
	}

	switch mode {
	case ModeStrict:
		if IsUnanimous(votes) {
			return Outcome{Validated: true, Estimate: unanimousValue(votes), Method: MethodUnanimous}, nil
		}
		return Outcome{Method: MethodStrict}, nil

	case ModeAverage:
		if round == 1 {
			if IsUnanimous(votes) {
				return Outcome{Validated: true, Estimate: unanimousValue(votes), Method: MethodUnanimous}, nil
			}
			return Outcome{Method: MethodFirstRound}, nil
		}
		if avg, ok := Average(votes); ok {
			return Outcome{Validated: true, Estimate: &avg, Method: MethodAverage}, nil
		}
		return Outcome{Method: MethodNoNumericVotes}, nil

	default:
		return Outcome{}, ErrUnknownMode
	}
}
