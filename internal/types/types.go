package types

import (
	"time"

	"github.com/planningdeck/poker-backend/internal/engine"
	"github.com/planningdeck/poker-backend/internal/session"
)

// ClientMessage is the single inbound envelope. Type selects the variant;
// the ws layer validates required fields once, so the room only ever sees
// well-formed commands.
type ClientMessage struct {
	Type         string                 `json:"type"`
	Card         string                 `json:"card,omitempty"`
	Features     []session.FeatureInput `json:"features,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Text         string                 `json:"text,omitempty"`
	Running      *bool                  `json:"running,omitempty"`
	RemainingSec int                    `json:"remainingSec,omitempty"`
}

type JoinedPayload struct {
	SessionID     string `json:"sessionId"`
	Code          string `json:"code"`
	ParticipantID string `json:"participantId"`
}

type VoteProgress struct {
	Round    int `json:"round"`
	VotesIn  int `json:"votesIn"`
	Expected int `json:"expected"`
}

type RevealedVote struct {
	ParticipantID string      `json:"participantId"`
	Name          string      `json:"name"`
	Value         engine.Card `json:"value"`
}

type RoundResult struct {
	Round       int            `json:"round"`
	Votes       []RevealedVote `json:"votes"`
	Validated   bool           `json:"validated"`
	Estimate    *int           `json:"estimate"`
	Method      engine.Method  `json:"method"`
	NeedsRevote bool           `json:"needsRevote"`
	NewRound    int            `json:"newRound,omitempty"`
}

type NewRoundPayload struct {
	Round       int    `json:"round"`
	FeatureName string `json:"featureName"`
}

type FeatureAdvanced struct {
	Feature session.FeatureView `json:"feature"`
	Index   int                 `json:"index"`
	Total   int                 `json:"total"`
}

type FinishedPayload struct {
	Results []session.FeatureView `json:"results"`
}

type BreakPayload struct {
	Message  string               `json:"message"`
	Snapshot session.SavedSession `json:"snapshot"`
}

type SavedPayload struct {
	Snapshot session.SavedSession `json:"snapshot"`
}

type ExportStats struct {
	TotalFeatures           int     `json:"totalFeatures"`
	TotalRounds             int     `json:"totalRounds"`
	AverageRoundsPerFeature float64 `json:"averageRoundsPerFeature"`
	TotalEstimate           int     `json:"totalEstimate"`
}

type ExportPayload struct {
	SessionID  string                `json:"sessionId"`
	Code       string                `json:"code"`
	Mode       engine.Mode           `json:"mode"`
	Players    []string              `json:"players"`
	Stats      ExportStats           `json:"statistics"`
	Results    []session.FeatureView `json:"results"`
	ExportedAt time.Time             `json:"exportedAt"`
}

type ChatMessage struct {
	From string    `json:"from"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type TimerUpdate struct {
	Running      bool `json:"running"`
	RemainingSec int  `json:"remainingSec"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerEvent is the outbound envelope. Exactly one payload field is set,
// matching Type.
type ServerEvent struct {
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`

	Session  *session.Snapshot `json:"session,omitempty"`
	Joined   *JoinedPayload    `json:"joined,omitempty"`
	Progress *VoteProgress     `json:"progress,omitempty"`
	Result   *RoundResult      `json:"result,omitempty"`
	NewRound *NewRoundPayload  `json:"newRound,omitempty"`
	Feature  *FeatureAdvanced  `json:"feature,omitempty"`
	Finished *FinishedPayload  `json:"finished,omitempty"`
	Break    *BreakPayload     `json:"break,omitempty"`
	Saved    *SavedPayload     `json:"saved,omitempty"`
	Export   *ExportPayload    `json:"export,omitempty"`
	Chat     *ChatMessage      `json:"chat,omitempty"`
	Timer    *TimerUpdate      `json:"timer,omitempty"`
	Error    *ErrorPayload     `json:"error,omitempty"`
}

// Outbound event names.
const (
	EvtSessionUpdated  = "session-updated"
	EvtJoined          = "session-joined"
	EvtVoteProgress    = "vote-progress"
	EvtRoundResult     = "round-result"
	EvtNewRound        = "new-round"
	EvtFeatureAdvanced = "feature-advanced"
	EvtSessionFinished = "session-finished"
	EvtCoffeeBreak     = "coffee-break"
	EvtSessionSaved    = "session-saved"
	EvtResultsExported = "results-exported"
	EvtChatMessage     = "chat-message"
	EvtTimerUpdate     = "timer-update"
	EvtError           = "error"
)
