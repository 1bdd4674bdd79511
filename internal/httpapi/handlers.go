package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/planningdeck/poker-backend/internal/hub"
	"github.com/planningdeck/poker-backend/internal/room"
	"github.com/planningdeck/poker-backend/internal/session"
	"github.com/planningdeck/poker-backend/internal/store"
)

const queryTimeout = 5 * time.Second

type api struct {
	hub   *hub.Hub
	store store.Store
	log   *zap.Logger
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Code: "INTERNAL", Message: "internal error"}
	var se *session.Error
	if errors.As(err, &se) {
		body = errorBody{Code: se.Code, Message: se.Message}
	}
	writeJSON(w, status, struct {
		Error errorBody `json:"error"`
	}{Error: body})
}

type createRequest struct {
	FacilitatorName string                 `json:"facilitatorName"`
	Mode            string                 `json:"mode"`
	Backlog         []session.FeatureInput `json:"backlog,omitempty"`
}

type createResponse struct {
	SessionID     string           `json:"sessionId"`
	Code          string           `json:"code"`
	ParticipantID string           `json:"participantId"`
	Session       session.Snapshot `json:"session"`
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, session.ErrInvalidName)
		return
	}

	reply := make(chan hub.CreateResult, 1)
	a.hub.Inbox() <- hub.Create{
		FacilitatorName: req.FacilitatorName,
		Mode:            req.Mode,
		Backlog:         req.Backlog,
		Reply:           reply,
	}
	res := <-reply
	if res.Err != nil {
		writeError(w, http.StatusBadRequest, res.Err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		SessionID:     res.Snapshot.ID,
		Code:          res.Snapshot.Code,
		ParticipantID: res.FacilitatorID,
		Session:       res.Snapshot,
	})
}

func (a *api) getSessionByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(pathParam(r, "code"))
	if !session.ValidCode(code) {
		writeError(w, http.StatusBadRequest, session.ErrNotFound)
		return
	}

	reply := make(chan *room.Room, 1)
	a.hub.Inbox() <- hub.GetByCode{Code: code, Reply: reply}
	rm := <-reply
	if rm == nil {
		writeError(w, http.StatusNotFound, session.ErrNotFound)
		return
	}

	snapReply := make(chan session.Snapshot, 1)
	rm.Inbox() <- room.GetSnapshot{Reply: snapReply}
	writeJSON(w, http.StatusOK, struct {
		Session session.Snapshot `json:"session"`
	}{Session: <-snapReply})
}

type sessionSummary struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Mode         string    `json:"mode"`
	Status       string    `json:"status"`
	PlayersCount int       `json:"playersCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	reply := make(chan []*room.Room, 1)
	a.hub.Inbox() <- hub.List{Reply: reply}
	rooms := <-reply

	summaries := make([]sessionSummary, 0, len(rooms))
	for _, rm := range rooms {
		snapReply := make(chan session.Snapshot, 1)
		rm.Inbox() <- room.GetSnapshot{Reply: snapReply}
		snap := <-snapReply
		summaries = append(summaries, sessionSummary{
			ID:           snap.ID,
			Code:         snap.Code,
			Mode:         string(snap.Mode),
			Status:       string(snap.Status),
			PlayersCount: len(snap.Participants),
			CreatedAt:    snap.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Sessions []sessionSummary `json:"sessions"`
	}{Sessions: summaries})
}

func (a *api) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	reply := make(chan *room.Room, 1)
	a.hub.Inbox() <- hub.GetByID{ID: id, Reply: reply}
	if <-reply == nil {
		writeError(w, http.StatusNotFound, session.ErrNotFound)
		return
	}

	a.hub.Inbox() <- hub.Remove{ID: id}
	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{Message: "session deleted"})
}

func (a *api) listSaves(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	saves, err := a.store.ListSnapshots(ctx)
	if err != nil {
		a.log.Warn("listing saved sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Saves []store.SavedSummary `json:"saves"`
	}{Saves: saves})
}

type resumeRequest struct {
	SaveID string `json:"saveId"`
}

func (a *api) resumeSession(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SaveID == "" {
		writeError(w, http.StatusBadRequest, session.ErrNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	rec, err := a.store.LoadSnapshot(ctx, req.SaveID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, session.ErrNotFound)
		return
	}
	if err != nil {
		a.log.Warn("loading saved session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var saved session.SavedSession
	if err := json.Unmarshal(rec.Payload, &saved); err != nil {
		a.log.Warn("saved session payload corrupt", zap.String("save", rec.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	reply := make(chan hub.CreateResult, 1)
	a.hub.Inbox() <- hub.Resume{Saved: saved, Reply: reply}
	res := <-reply
	if res.Err != nil {
		writeError(w, http.StatusBadRequest, res.Err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		SessionID:     res.Snapshot.ID,
		Code:          res.Snapshot.Code,
		ParticipantID: res.FacilitatorID,
		Session:       res.Snapshot,
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
