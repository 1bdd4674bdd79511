// Package room runs one actor goroutine per session. Every mutation of a
// session flows through its room's inbox and is applied run-to-completion,
// which is what makes "the last vote closes the round" atomic without locks.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planningdeck/poker-backend/internal/engine"
	"github.com/planningdeck/poker-backend/internal/session"
	"github.com/planningdeck/poker-backend/internal/store"
	"github.com/planningdeck/poker-backend/internal/types"
)

type Msg interface{ isRoomMsg() }

// Attach binds a websocket connection to a participant, joining or
// reconnecting by display name.
type Attach struct {
	Name   string
	Outbox chan types.ServerEvent
	Reply  chan AttachResult
}

type AttachResult struct {
	ParticipantID string
	Err           error
}

// Detach is an abrupt socket drop: the participant stays, marked
// unreachable, votes intact.
type Detach struct{ ParticipantID string }

type FromClient struct {
	ParticipantID string
	Cmd           Command
}

// GetState reflects internal state without data races; used by tests.
type GetState struct{ Reply chan View }

// GetSnapshot serves the HTTP lookup. Vote values are hidden while the
// current round is still collecting and revealed once it settles.
type GetSnapshot struct {
	Reply chan session.Snapshot
}

type Shutdown struct{}

func (Attach) isRoomMsg()      {}
func (Detach) isRoomMsg()      {}
func (FromClient) isRoomMsg()  {}
func (GetState) isRoomMsg()    {}
func (GetSnapshot) isRoomMsg() {}
func (Shutdown) isRoomMsg()    {}

type View struct {
	Version    int
	NumClients int
	Snapshot   session.Snapshot
}

const saveTimeout = 5 * time.Second

type Room struct {
	inbox   chan Msg
	sess    *session.Session
	clients map[string]chan types.ServerEvent
	version int
	store   store.Store
	log     *zap.Logger
	onEmpty func()
	ctx     context.Context
	cancel  context.CancelFunc
}

// New starts the room's loop. onEmpty is called (from the loop) when the
// last participant leaves explicitly, so the registry can evict the room.
func New(parent context.Context, sess *session.Session, st store.Store, log *zap.Logger, onEmpty func()) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:   make(chan Msg, 64),
		sess:    sess,
		clients: make(map[string]chan types.ServerEvent),
		store:   st,
		log:     log.With(zap.String("session", sess.ID), zap.String("code", sess.Code)),
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Attach:
				r.handleAttach(msg)
			case Detach:
				r.sess.MarkDisconnected(msg.ParticipantID)
				if ch, ok := r.clients[msg.ParticipantID]; ok {
					close(ch)
					delete(r.clients, msg.ParticipantID)
				}
				r.broadcastState(true)
			case FromClient:
				r.handleCommand(msg.ParticipantID, msg.Cmd)
			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Snapshot:   r.sess.Snapshot(false),
				}
			case GetSnapshot:
				msg.Reply <- r.sess.Snapshot(r.sess.VotesHidden())
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) handleAttach(msg Attach) {
	p, err := r.sess.Join(msg.Name)
	if err != nil {
		msg.Reply <- AttachResult{Err: err}
		return
	}
	if old, ok := r.clients[p.ID]; ok {
		close(old)
	}
	r.clients[p.ID] = msg.Outbox
	msg.Reply <- AttachResult{ParticipantID: p.ID}

	r.sendTo(p.ID, types.ServerEvent{
		Type: types.EvtJoined,
		Joined: &types.JoinedPayload{
			SessionID:     r.sess.ID,
			Code:          r.sess.Code,
			ParticipantID: p.ID,
		},
	})
	r.log.Info("participant attached", zap.String("name", p.Name))
	r.broadcastState(true)
}

func (r *Room) handleCommand(pid string, cmd Command) {
	switch c := cmd.(type) {
	case StartSession:
		if err := r.sess.Start(pid); err != nil {
			r.sendError(pid, err)
			return
		}
		r.log.Info("session started")
		r.broadcastState(true)

	case LoadBacklog:
		if err := r.sess.LoadBacklog(c.Features); err != nil {
			r.sendError(pid, err)
			return
		}
		r.log.Info("backlog loaded", zap.Int("features", len(c.Features)))
		r.broadcastState(true)

	case AddFeature:
		if _, err := r.sess.AddFeature(pid, c.Name, c.Description); err != nil {
			r.sendError(pid, err)
			return
		}
		r.broadcastState(true)

	case SubmitVote:
		r.handleVote(pid, c.Card)

	case NewRound:
		round, err := r.sess.AdvanceRound(pid)
		if err != nil {
			r.sendError(pid, err)
			return
		}
		feature := r.sess.CurrentFeature()
		r.broadcast(types.ServerEvent{
			Type:     types.EvtNewRound,
			NewRound: &types.NewRoundPayload{Round: round, FeatureName: feature.Name},
		})
		r.broadcastState(true)

	case NextFeature:
		next, err := r.sess.AdvanceFeature(pid)
		if err != nil {
			r.sendError(pid, err)
			return
		}
		if next == nil {
			r.log.Info("backlog completed")
			r.broadcast(types.ServerEvent{
				Type:     types.EvtSessionFinished,
				Finished: &types.FinishedPayload{Results: r.backlogViews()},
			})
			r.broadcastState(false)
			return
		}
		r.broadcast(types.ServerEvent{
			Type: types.EvtFeatureAdvanced,
			Feature: &types.FeatureAdvanced{
				Feature: next.View(),
				Index:   r.sess.CurrentFeatureIndex,
				Total:   len(r.sess.Backlog),
			},
		})
		r.broadcastState(true)

	case EndSession:
		if err := r.sess.EndManually(pid); err != nil {
			r.sendError(pid, err)
			return
		}
		r.log.Info("session ended manually")
		r.broadcast(types.ServerEvent{
			Type:     types.EvtSessionFinished,
			Finished: &types.FinishedPayload{Results: r.backlogViews()},
		})
		r.broadcastState(false)

	case SaveSession:
		saved := r.sess.SaveState()
		r.persistSnapshot(saved)
		r.broadcast(types.ServerEvent{
			Type:  types.EvtSessionSaved,
			Saved: &types.SavedPayload{Snapshot: saved},
		})

	case ExportResults:
		r.sendTo(pid, types.ServerEvent{
			Type:   types.EvtResultsExported,
			Export: r.buildExport(),
		})

	case Chat:
		from := r.sess.Participant(pid)
		if from == nil {
			r.sendError(pid, session.ErrUnknownParticipant)
			return
		}
		r.broadcast(types.ServerEvent{
			Type: types.EvtChatMessage,
			Chat: &types.ChatMessage{From: from.Name, Text: c.Text, At: time.Now()},
		})

	case Timer:
		p := r.sess.Participant(pid)
		if p == nil {
			r.sendError(pid, session.ErrUnknownParticipant)
			return
		}
		if !p.Facilitator {
			r.sendError(pid, session.ErrNotAuthorized)
			return
		}
		r.broadcast(types.ServerEvent{
			Type:  types.EvtTimerUpdate,
			Timer: &types.TimerUpdate{Running: c.Running, RemainingSec: c.RemainingSec},
		})

	case LeaveSession:
		result, err := r.sess.Leave(pid)
		if err != nil {
			r.sendError(pid, err)
			return
		}
		if ch, ok := r.clients[pid]; ok {
			close(ch)
			delete(r.clients, pid)
		}
		if len(r.sess.Participants) == 0 {
			r.log.Info("room empty, evicting")
			if r.onEmpty != nil {
				r.onEmpty()
			}
			return
		}
		// A departure can be the event that closes the round.
		if result != nil {
			r.emitRoundResult(result)
			return
		}
		r.broadcastState(true)
	}
}

func (r *Room) handleVote(pid string, card engine.Card) {
	result, err := r.sess.SubmitVote(pid, card)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownMode) {
			// Mode is validated at creation; reaching here is a bug.
			r.log.Error("unvalidated mode reached reconciliation", zap.String("mode", string(r.sess.Mode)))
		}
		r.sendError(pid, err)
		return
	}

	if result == nil {
		feature := r.sess.CurrentFeature()
		r.broadcast(types.ServerEvent{
			Type: types.EvtVoteProgress,
			Progress: &types.VoteProgress{
				Round:    feature.CurrentRound,
				VotesIn:  len(feature.CurrentRoundVotes()),
				Expected: len(r.sess.Participants),
			},
		})
		r.broadcastState(true)
		return
	}

	r.emitRoundResult(result)
}

// emitRoundResult broadcasts a closed round, whether the final vote or a
// departure closed it.
func (r *Room) emitRoundResult(result *session.RoundResult) {
	if result.AllBreak {
		saved := r.sess.SaveState()
		r.log.Info("unanimous break", zap.Int("round", result.Round))
		r.broadcast(types.ServerEvent{
			Type: types.EvtCoffeeBreak,
			Break: &types.BreakPayload{
				Message:  "All players chose the break card. Session snapshot saved.",
				Snapshot: saved,
			},
		})
		r.persistSnapshot(saved)
		r.broadcastState(true)
		return
	}

	r.broadcast(types.ServerEvent{
		Type: types.EvtRoundResult,
		Result: &types.RoundResult{
			Round:       result.Round,
			Votes:       r.revealVotes(result.Votes),
			Validated:   result.Outcome.Validated,
			Estimate:    result.Outcome.Estimate,
			Method:      result.Outcome.Method,
			NeedsRevote: !result.Outcome.Validated,
			NewRound:    result.NewRound,
		},
	})
	// Votes stay hidden in snapshots until the feature is settled.
	r.broadcastState(!result.FeatureCompleted)
}

func (r *Room) revealVotes(votes []engine.Vote) []types.RevealedVote {
	out := make([]types.RevealedVote, 0, len(votes))
	for _, v := range votes {
		name := ""
		if p := r.sess.Participant(v.ParticipantID); p != nil {
			name = p.Name
		}
		out = append(out, types.RevealedVote{ParticipantID: v.ParticipantID, Name: name, Value: v.Value})
	}
	return out
}

func (r *Room) backlogViews() []session.FeatureView {
	views := make([]session.FeatureView, 0, len(r.sess.Backlog))
	for _, f := range r.sess.Backlog {
		views = append(views, f.View())
	}
	return views
}

func (r *Room) buildExport() *types.ExportPayload {
	completed := make([]session.FeatureView, 0, len(r.sess.Backlog))
	totalRounds, totalEstimate := 0, 0
	for _, f := range r.sess.Backlog {
		if !f.Completed {
			continue
		}
		completed = append(completed, f.View())
		totalRounds += f.CurrentRound
		if f.Estimate != nil {
			totalEstimate += *f.Estimate
		}
	}
	players := make([]string, 0, len(r.sess.Participants))
	for _, p := range r.sess.Participants {
		players = append(players, p.Name)
	}
	stats := types.ExportStats{
		TotalFeatures: len(completed),
		TotalRounds:   totalRounds,
		TotalEstimate: totalEstimate,
	}
	if len(completed) > 0 {
		stats.AverageRoundsPerFeature = float64(totalRounds) / float64(len(completed))
	}
	export := &types.ExportPayload{
		SessionID:  r.sess.ID,
		Code:       r.sess.Code,
		Mode:       r.sess.Mode,
		Players:    players,
		Stats:      stats,
		Results:    completed,
		ExportedAt: time.Now(),
	}
	r.persistExport(export)
	return export
}

// persistSnapshot mirrors the session to the store off the voting path.
// Failures are logged and reported nowhere else; memory stays the source
// of truth.
func (r *Room) persistSnapshot(saved session.SavedSession) {
	payload, err := json.Marshal(saved)
	if err != nil {
		r.log.Warn("snapshot marshal failed", zap.Error(err))
		return
	}
	rec := store.SavedRecord{
		ID:      uuid.NewString(),
		Code:    saved.Code,
		Mode:    string(saved.Mode),
		SavedAt: saved.SavedAt,
		Payload: payload,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.store.SaveSnapshot(ctx, rec); err != nil {
			r.log.Warn("snapshot save failed", zap.Error(err))
		}
	}()
}

func (r *Room) persistExport(export *types.ExportPayload) {
	payload, err := json.Marshal(export)
	if err != nil {
		r.log.Warn("export marshal failed", zap.Error(err))
		return
	}
	rec := store.ExportRecord{
		ID:         uuid.NewString(),
		Code:       export.Code,
		ExportedAt: export.ExportedAt,
		Payload:    payload,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.store.SaveExport(ctx, rec); err != nil {
			r.log.Warn("export save failed", zap.Error(err))
		}
	}()
}

func (r *Room) broadcastState(redactVotes bool) {
	r.version++
	snap := r.sess.Snapshot(redactVotes)
	r.broadcast(types.ServerEvent{
		Type:    types.EvtSessionUpdated,
		Version: r.version,
		Session: &snap,
	})
}

func (r *Room) broadcast(evt types.ServerEvent) {
	for id, ch := range r.clients {
		select {
		case ch <- evt:
		default:
			// Slow or gone; drop the connection, keep the participant.
			close(ch)
			delete(r.clients, id)
			r.sess.MarkDisconnected(id)
		}
	}
}

func (r *Room) sendTo(pid string, evt types.ServerEvent) {
	ch, ok := r.clients[pid]
	if !ok {
		return
	}
	select {
	case ch <- evt:
	default:
		close(ch)
		delete(r.clients, pid)
		r.sess.MarkDisconnected(pid)
	}
}

// sendError delivers a failure privately to the offending actor only.
func (r *Room) sendError(pid string, err error) {
	var se *session.Error
	payload := &types.ErrorPayload{Code: "INTERNAL", Message: "internal error"}
	if errors.As(err, &se) {
		payload = &types.ErrorPayload{Code: se.Code, Message: se.Message}
	}
	r.log.Debug("operation rejected", zap.String("participant", pid), zap.String("code", payload.Code))
	r.sendTo(pid, types.ServerEvent{Type: types.EvtError, Error: payload})
}

// SessionID and Code are fixed at construction, safe to read from any
// goroutine. Everything else goes through the inbox.
func (r *Room) SessionID() string { return r.sess.ID }
func (r *Room) Code() string      { return r.sess.Code }
