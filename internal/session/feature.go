package session

import "github.com/planningdeck/poker-backend/internal/engine"

// Feature is one backlog item under estimation. Votes are append-only
// across rounds; advancing a round archives a view of it but never deletes.
type Feature struct {
	ID           string
	Name         string
	Description  string
	Estimate     *int
	Completed    bool
	CurrentRound int
	Votes        []engine.Vote
	RoundHistory []RoundRecord
}

// RoundRecord is a snapshot of one finished (non-validated) round.
type RoundRecord struct {
	Round int           `json:"round"`
	Votes []engine.Vote `json:"votes"`
}

func newFeature(id, name, description string) *Feature {
	return &Feature{
		ID:           id,
		Name:         name,
		Description:  description,
		CurrentRound: 1,
	}
}

// CurrentRoundVotes filters the append-only log down to the round in effect.
func (f *Feature) CurrentRoundVotes() []engine.Vote {
	votes := make([]engine.Vote, 0, len(f.Votes))
	for _, v := range f.Votes {
		if v.Round == f.CurrentRound {
			votes = append(votes, v)
		}
	}
	return votes
}

func (f *Feature) recordVote(v engine.Vote) {
	f.Votes = append(f.Votes, v)
}

// dropVote removes a participant's vote from the given round. Archived
// rounds are never touched; a departed player's closed-round votes stay in
// the history.
func (f *Feature) dropVote(participantID string, round int) {
	kept := f.Votes[:0]
	for _, v := range f.Votes {
		if v.ParticipantID == participantID && v.Round == round {
			continue
		}
		kept = append(kept, v)
	}
	f.Votes = kept
}

func (f *Feature) finalize(estimate int) {
	f.Estimate = &estimate
	f.Completed = true
}

// View renders the feature for the wire.
func (f *Feature) View() FeatureView {
	return FeatureView{
		ID:           f.ID,
		Name:         f.Name,
		Description:  f.Description,
		Estimate:     f.Estimate,
		Completed:    f.Completed,
		CurrentRound: f.CurrentRound,
		RoundHistory: f.RoundHistory,
	}
}

// archiveRound closes the current round and opens the next one. Cast votes
// stay in the log; the history entry is the stable per-round view.
func (f *Feature) archiveRound() {
	f.RoundHistory = append(f.RoundHistory, RoundRecord{
		Round: f.CurrentRound,
		Votes: f.CurrentRoundVotes(),
	})
	f.CurrentRound++
}
