package room

import (
	"github.com/planningdeck/poker-backend/internal/engine"
	"github.com/planningdeck/poker-backend/internal/session"
)

// Command is the closed set of session operations a client may request.
// The ws layer builds these from raw JSON; the room never sees an
// unvalidated payload shape.
type Command interface{ isCommand() }

type StartSession struct{}

type SubmitVote struct{ Card engine.Card }

type NewRound struct{}

type NextFeature struct{}

type EndSession struct{}

type LoadBacklog struct{ Features []session.FeatureInput }

type AddFeature struct {
	Name        string
	Description string
}

type SaveSession struct{}

type ExportResults struct{}

type Chat struct{ Text string }

// Timer carries the shared countdown state. Only the facilitator may send
// it; the server relays without owning the countdown.
type Timer struct {
	Running      bool
	RemainingSec int
}

type LeaveSession struct{}

func (StartSession) isCommand()  {}
func (SubmitVote) isCommand()    {}
func (NewRound) isCommand()      {}
func (NextFeature) isCommand()   {}
func (EndSession) isCommand()    {}
func (LoadBacklog) isCommand()   {}
func (AddFeature) isCommand()    {}
func (SaveSession) isCommand()   {}
func (ExportResults) isCommand() {}
func (Chat) isCommand()          {}
func (Timer) isCommand()         {}
func (LeaveSession) isCommand()  {}
