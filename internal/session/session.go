package session

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/planningdeck/poker-backend/internal/engine"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ValidCode checks the join-code shape before any registry lookup.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// RoundTrigger says why a new round was opened. Both paths run the same
// transition; the trigger exists so callers can report it.
type RoundTrigger string

const (
	TriggerRoundComplete    RoundTrigger = "round_complete"
	TriggerFacilitatorRetry RoundTrigger = "facilitator_retry"
)

// FeatureInput is one backlog item as supplied by a client.
type FeatureInput struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RoundResult is what SubmitVote reports when the vote it accepted was the
// last one of the round.
type RoundResult struct {
	Round            int
	Votes            []engine.Vote
	AllBreak         bool
	Outcome          engine.Outcome
	FeatureCompleted bool
	// NewRound is the round opened because the outcome did not validate;
	// zero when no implicit advance happened.
	NewRound int
}

// Progress summarizes how far through the backlog the session is.
type Progress struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	Remaining    int `json:"remaining"`
	Percentage   int `json:"percentage"`
	CurrentIndex int `json:"currentIndex"`
}

// Session is the aggregate root. It is not safe for concurrent use; the
// room actor serializes every mutation (one logical writer per session).
type Session struct {
	ID                  string
	Code                string
	Mode                engine.Mode
	Status              Status
	Participants        []*Participant
	Backlog             []*Feature
	CurrentFeatureIndex int
	OnBreak             bool
	CreatedAt           time.Time
}

func validateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > 20 {
		return "", ErrInvalidName
	}
	return trimmed, nil
}

// New creates a session in the waiting state with the facilitator as its
// first participant. The code is supplied by the registry, which owns
// uniqueness.
func New(facilitatorName, mode, code string) (*Session, *Participant, error) {
	name, err := validateName(facilitatorName)
	if err != nil {
		return nil, nil, err
	}
	m, ok := engine.ParseMode(mode)
	if !ok {
		return nil, nil, ErrInvalidMode
	}

	// The facilitator has no socket yet: creation is a synchronous HTTP
	// call and the websocket attach comes after, as a reconnect.
	facilitator := &Participant{
		ID:          uuid.NewString(),
		Name:        name,
		Facilitator: true,
		JoinedAt:    time.Now(),
	}
	s := &Session{
		ID:           uuid.NewString(),
		Code:         code,
		Mode:         m,
		Status:       StatusWaiting,
		Participants: []*Participant{facilitator},
		CreatedAt:    time.Now(),
	}
	return s, facilitator, nil
}

func (s *Session) Participant(id string) *Participant {
	for _, p := range s.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Session) participantByName(name string) *Participant {
	for _, p := range s.Participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// FacilitatorAbsent reports the degraded condition after the facilitator
// left the session.
func (s *Session) FacilitatorAbsent() bool {
	for _, p := range s.Participants {
		if p.Facilitator {
			return false
		}
	}
	return true
}

func (s *Session) requireFacilitator(actorID string) error {
	p := s.Participant(actorID)
	if p == nil {
		return ErrUnknownParticipant
	}
	if !p.Facilitator {
		return ErrNotAuthorized
	}
	return nil
}

// Join adds a participant, or reconnects one whose socket dropped. A name
// collision with a connected participant is rejected; matching a
// disconnected entry re-attaches it, vote state intact.
func (s *Session) Join(displayName string) (*Participant, error) {
	if s.Status == StatusFinished {
		return nil, ErrClosed
	}
	name, err := validateName(displayName)
	if err != nil {
		return nil, err
	}

	if existing := s.participantByName(name); existing != nil {
		if existing.Connected {
			return nil, ErrDuplicateName
		}
		existing.Connected = true
		return existing, nil
	}

	p := &Participant{
		ID:        uuid.NewString(),
		Name:      name,
		Connected: true,
		JoinedAt:  time.Now(),
	}
	s.Participants = append(s.Participants, p)
	return p, nil
}

// Leave removes the participant outright, along with any vote they cast in
// the still-open round; closed rounds keep their history. A departing
// facilitator leaves the session in the observable facilitator-absent
// condition rather than dissolving it; eviction of empty sessions is the
// registry's call. When the departure means everyone remaining has voted,
// the round closes and its result is returned, so a round never hangs on
// (or settles with) a vote from someone who is gone.
func (s *Session) Leave(participantID string) (*RoundResult, error) {
	for i, p := range s.Participants {
		if p.ID != participantID {
			continue
		}
		s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
		if f := s.CurrentFeature(); f != nil && !f.Completed {
			f.dropVote(participantID, f.CurrentRound)
		}
		return s.completeRoundIfReady()
	}
	return nil, ErrUnknownParticipant
}

// MarkDisconnected flags a dropped socket without touching vote state, so
// a reconnect resumes mid-round.
func (s *Session) MarkDisconnected(participantID string) {
	if p := s.Participant(participantID); p != nil {
		p.Connected = false
	}
}

// LoadBacklog validates and installs the backlog. Ids are generated when
// absent. Only allowed before the session starts.
func (s *Session) LoadBacklog(items []FeatureInput) error {
	if s.Status == StatusFinished {
		return ErrClosed
	}
	if s.Status == StatusActive {
		return ErrAlreadyStarted
	}
	if len(items) == 0 {
		return ErrEmptyBacklog
	}

	backlog := make([]*Feature, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return ErrEmptyBacklog
		}
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		backlog = append(backlog, newFeature(id, name, strings.TrimSpace(item.Description)))
	}

	s.Backlog = backlog
	s.CurrentFeatureIndex = 0
	return nil
}

// AddFeature appends one feature to the backlog mid-session.
func (s *Session) AddFeature(actorID, name, description string) (*Feature, error) {
	if err := s.requireFacilitator(actorID); err != nil {
		return nil, err
	}
	if s.Status == StatusFinished {
		return nil, ErrClosed
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ErrEmptyBacklog
	}
	f := newFeature(uuid.NewString(), trimmed, strings.TrimSpace(description))
	s.Backlog = append(s.Backlog, f)
	return f, nil
}

// Start moves waiting -> active. Facilitator only.
func (s *Session) Start(actorID string) error {
	if err := s.requireFacilitator(actorID); err != nil {
		return err
	}
	switch s.Status {
	case StatusFinished:
		return ErrClosed
	case StatusActive:
		return ErrAlreadyStarted
	}
	if len(s.Backlog) == 0 {
		return ErrNoBacklog
	}
	if len(s.Participants) < 2 {
		return ErrNotEnoughPlayers
	}
	s.Status = StatusActive
	return nil
}

// CurrentFeature returns nil once the pointer has run past the backlog.
func (s *Session) CurrentFeature() *Feature {
	if s.CurrentFeatureIndex >= len(s.Backlog) {
		return nil
	}
	return s.Backlog[s.CurrentFeatureIndex]
}

// SubmitVote records a vote against the round in effect at acceptance. When
// it is the last expected vote, the round outcome is computed synchronously
// in the same call, so no later vote can slip into the closing round.
func (s *Session) SubmitVote(participantID string, card engine.Card) (*RoundResult, error) {
	if s.Status != StatusActive {
		return nil, ErrNotActive
	}
	if !engine.ValidCard(card) {
		return nil, ErrInvalidCard
	}
	p := s.Participant(participantID)
	if p == nil {
		return nil, ErrUnknownParticipant
	}
	if p.HasVoted {
		return nil, ErrAlreadyVoted
	}
	f := s.CurrentFeature()
	if f == nil {
		return nil, ErrNoActiveFeature
	}

	f.recordVote(engine.Vote{
		ParticipantID: participantID,
		Value:         card,
		Round:         f.CurrentRound,
		SubmittedAt:   time.Now(),
	})
	p.castVote(card)

	return s.completeRoundIfReady()
}

// completeRoundIfReady closes the current round when every participant has
// voted. Both the vote path and the leave path funnel through here, so
// membership changes can settle a round the same way a final vote does.
func (s *Session) completeRoundIfReady() (*RoundResult, error) {
	if s.Status != StatusActive || s.OnBreak {
		return nil, nil
	}
	f := s.CurrentFeature()
	if f == nil || f.Completed || len(s.Participants) == 0 {
		return nil, nil
	}
	votes := f.CurrentRoundVotes()
	if len(votes) < len(s.Participants) {
		return nil, nil
	}

	result := &RoundResult{Round: f.CurrentRound, Votes: votes}

	if engine.AllBreak(votes, len(s.Participants)) {
		s.OnBreak = true
		result.AllBreak = true
		return result, nil
	}

	outcome, err := engine.Reconcile(votes, s.Mode, f.CurrentRound)
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome

	if outcome.Validated {
		f.finalize(*outcome.Estimate)
		result.FeatureCompleted = true
	} else {
		s.beginNewRound()
		result.NewRound = f.CurrentRound
	}
	return result, nil
}

// beginNewRound is the single round-advance transition, shared by the
// implicit "last vote did not validate" path and the facilitator retry.
func (s *Session) beginNewRound() {
	f := s.CurrentFeature()
	if f == nil {
		return
	}
	f.archiveRound()
	for _, p := range s.Participants {
		p.resetVote()
	}
	s.OnBreak = false
}

// AdvanceRound is the facilitator's explicit retry. It also resumes a
// session paused by an all-break round.
func (s *Session) AdvanceRound(actorID string) (int, error) {
	if err := s.requireFacilitator(actorID); err != nil {
		return 0, err
	}
	if s.Status != StatusActive {
		return 0, ErrNotActive
	}
	f := s.CurrentFeature()
	if f == nil {
		return 0, ErrNoActiveFeature
	}
	s.beginNewRound()
	return f.CurrentRound, nil
}

// AdvanceFeature moves the pointer to the next backlog item; running past
// the end finishes the session.
func (s *Session) AdvanceFeature(actorID string) (*Feature, error) {
	if err := s.requireFacilitator(actorID); err != nil {
		return nil, err
	}
	if s.Status != StatusActive {
		return nil, ErrNotActive
	}

	s.CurrentFeatureIndex++
	s.OnBreak = false
	for _, p := range s.Participants {
		p.resetVote()
	}

	next := s.CurrentFeature()
	if next == nil {
		s.Status = StatusFinished
		return nil, nil
	}
	next.CurrentRound = 1
	return next, nil
}

// EndManually finishes the session regardless of backlog completeness;
// never-estimated features keep a nil estimate.
func (s *Session) EndManually(actorID string) error {
	if err := s.requireFacilitator(actorID); err != nil {
		return err
	}
	if s.Status == StatusFinished {
		return ErrClosed
	}
	s.Status = StatusFinished
	return nil
}

func (s *Session) Progress() Progress {
	total := len(s.Backlog)
	completed := 0
	for _, f := range s.Backlog {
		if f.Completed {
			completed++
		}
	}
	percentage := 0
	if total > 0 {
		percentage = int(float64(completed)/float64(total)*100 + 0.5)
	}
	return Progress{
		Total:        total,
		Completed:    completed,
		Remaining:    total - completed,
		Percentage:   percentage,
		CurrentIndex: s.CurrentFeatureIndex,
	}
}
