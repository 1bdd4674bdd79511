package session

import (
	"time"

	"github.com/planningdeck/poker-backend/internal/engine"
)

// ParticipantView is the participant as broadcast to clients. Vote is nil
// while votes are redacted.
type ParticipantView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Facilitator bool         `json:"facilitator"`
	Connected   bool         `json:"connected"`
	HasVoted    bool         `json:"hasVoted"`
	Vote        *engine.Card `json:"vote,omitempty"`
}

type FeatureView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Estimate     *int          `json:"estimate"`
	Completed    bool          `json:"completed"`
	CurrentRound int           `json:"currentRound"`
	RoundHistory []RoundRecord `json:"roundHistory,omitempty"`
}

// Snapshot is the full session view broadcast on every state change.
type Snapshot struct {
	ID                  string            `json:"id"`
	Code                string            `json:"code"`
	Mode                engine.Mode       `json:"mode"`
	Status              Status            `json:"status"`
	OnBreak             bool              `json:"onBreak"`
	FacilitatorAbsent   bool              `json:"facilitatorAbsent"`
	Participants        []ParticipantView `json:"participants"`
	Backlog             []FeatureView     `json:"backlog"`
	CurrentFeatureIndex int               `json:"currentFeatureIndex"`
	Progress            Progress          `json:"progress"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// VotesHidden reports whether individual vote values should be concealed:
// only while the current feature's round is still collecting. Once the
// feature settles, the session finishes, or an all-break pause hits, the
// values are public.
func (s *Session) VotesHidden() bool {
	if s.Status != StatusActive || s.OnBreak {
		return false
	}
	f := s.CurrentFeature()
	return f != nil && !f.Completed
}

// Snapshot renders the session. Individual vote values are hidden while a
// round is still collecting; they are revealed through the round-result
// event instead.
func (s *Session) Snapshot(redactVotes bool) Snapshot {
	participants := make([]ParticipantView, 0, len(s.Participants))
	for _, p := range s.Participants {
		view := ParticipantView{
			ID:          p.ID,
			Name:        p.Name,
			Facilitator: p.Facilitator,
			Connected:   p.Connected,
			HasVoted:    p.HasVoted,
		}
		if !redactVotes {
			view.Vote = p.CurrentVote
		}
		participants = append(participants, view)
	}

	backlog := make([]FeatureView, 0, len(s.Backlog))
	for _, f := range s.Backlog {
		backlog = append(backlog, f.View())
	}

	return Snapshot{
		ID:                  s.ID,
		Code:                s.Code,
		Mode:                s.Mode,
		Status:              s.Status,
		OnBreak:             s.OnBreak,
		FacilitatorAbsent:   s.FacilitatorAbsent(),
		Participants:        participants,
		Backlog:             backlog,
		CurrentFeatureIndex: s.CurrentFeatureIndex,
		Progress:            s.Progress(),
		CreatedAt:           s.CreatedAt,
	}
}

// SavedParticipant and SavedFeature are the persisted shapes; the store
// treats the whole SavedSession as an opaque blob.
type SavedParticipant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Facilitator bool   `json:"facilitator"`
}

type SavedFeature struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Estimate    *int   `json:"estimate"`
	Completed   bool   `json:"completed"`
}

type SavedSession struct {
	SessionID           string             `json:"sessionId"`
	Code                string             `json:"code"`
	Mode                engine.Mode        `json:"mode"`
	CreatedAt           time.Time          `json:"createdAt"`
	SavedAt             time.Time          `json:"savedAt"`
	Participants        []SavedParticipant `json:"participants"`
	CompletedFeatures   []SavedFeature     `json:"completedFeatures"`
	RemainingFeatures   []SavedFeature     `json:"remainingFeatures"`
	CurrentFeatureIndex int                `json:"currentFeatureIndex"`
}

// SaveState exports everything needed to rebuild the session later via
// LoadBacklog, estimate replay, and index restore.
func (s *Session) SaveState() SavedSession {
	saved := SavedSession{
		SessionID:           s.ID,
		Code:                s.Code,
		Mode:                s.Mode,
		CreatedAt:           s.CreatedAt,
		SavedAt:             time.Now(),
		CurrentFeatureIndex: s.CurrentFeatureIndex,
	}
	for _, p := range s.Participants {
		saved.Participants = append(saved.Participants, SavedParticipant{
			ID: p.ID, Name: p.Name, Facilitator: p.Facilitator,
		})
	}
	for _, f := range s.Backlog {
		sf := SavedFeature{
			ID: f.ID, Name: f.Name, Description: f.Description,
			Estimate: f.Estimate, Completed: f.Completed,
		}
		if f.Completed {
			saved.CompletedFeatures = append(saved.CompletedFeatures, sf)
		} else {
			saved.RemainingFeatures = append(saved.RemainingFeatures, sf)
		}
	}
	return saved
}

// ReplayEstimate finalizes a feature without voting. Only valid before the
// session starts; it exists for snapshot resume.
func (s *Session) ReplayEstimate(featureID string, estimate int) error {
	if s.Status != StatusWaiting {
		return ErrAlreadyStarted
	}
	for _, f := range s.Backlog {
		if f.ID == featureID {
			f.finalize(estimate)
			return nil
		}
	}
	return ErrNoActiveFeature
}

// SetFeatureIndex restores the backlog pointer during resume. The index is
// clamped to the valid range (len(backlog) means finished-in-waiting).
func (s *Session) SetFeatureIndex(index int) error {
	if s.Status != StatusWaiting {
		return ErrAlreadyStarted
	}
	if index < 0 || index > len(s.Backlog) {
		return ErrNoActiveFeature
	}
	s.CurrentFeatureIndex = index
	return nil
}

// Resume rebuilds a waiting session from a saved snapshot using only the
// public operations: backlog load, estimate replay, index restore. The new
// session gets a fresh id and code; participants other than the facilitator
// come back as disconnected entries so their names reconnect cleanly.
func Resume(saved SavedSession, code string) (*Session, *Participant, error) {
	var facilitatorName string
	for _, p := range saved.Participants {
		if p.Facilitator {
			facilitatorName = p.Name
			break
		}
	}
	if facilitatorName == "" {
		return nil, nil, ErrUnknownParticipant
	}

	s, facilitator, err := New(facilitatorName, string(saved.Mode), code)
	if err != nil {
		return nil, nil, err
	}

	for _, p := range saved.Participants {
		if p.Facilitator {
			continue
		}
		joined, err := s.Join(p.Name)
		if err != nil {
			return nil, nil, err
		}
		joined.Connected = false
	}

	items := make([]FeatureInput, 0, len(saved.CompletedFeatures)+len(saved.RemainingFeatures))
	for _, f := range append(append([]SavedFeature{}, saved.CompletedFeatures...), saved.RemainingFeatures...) {
		items = append(items, FeatureInput{ID: f.ID, Name: f.Name, Description: f.Description})
	}
	if err := s.LoadBacklog(items); err != nil {
		return nil, nil, err
	}
	for _, f := range saved.CompletedFeatures {
		if f.Estimate == nil {
			continue
		}
		if err := s.ReplayEstimate(f.ID, *f.Estimate); err != nil {
			return nil, nil, err
		}
	}
	if err := s.SetFeatureIndex(saved.CurrentFeatureIndex); err != nil {
		return nil, nil, err
	}
	return s, facilitator, nil
}
