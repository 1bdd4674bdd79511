package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/planningdeck/poker-backend/internal/engine"
	"github.com/planningdeck/poker-backend/internal/hub"
	"github.com/planningdeck/poker-backend/internal/room"
	"github.com/planningdeck/poker-backend/internal/session"
	"github.com/planningdeck/poker-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler upgrades GET /ws?code=X&name=N and bridges the socket to the
// session's room: one Attach, a writer goroutine draining the outbox, a
// read loop feeding commands, and exactly one Detach on the way out.
func Handler(h *hub.Hub, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(r.URL.Query().Get("code"))
		name := r.URL.Query().Get("name")
		if !session.ValidCode(code) {
			http.Error(w, "missing or malformed code", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(name) == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetByCode{Code: code, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerEvent, 16)
		attachReply := make(chan room.AttachResult, 1)
		rm.Inbox() <- room.Attach{Name: name, Outbox: out, Reply: attachReply}
		res := <-attachReply
		if res.Err != nil {
			writeEvent(r.Context(), conn, errEvent(res.Err))
			return
		}
		pid := res.ParticipantID
		defer func() { rm.Inbox() <- room.Detach{ParticipantID: pid} }()

		log.Debug("socket attached", zap.String("code", code), zap.String("participant", pid))

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for evt := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := writeEvent(ctx, conn, evt)
				cancel()
				if err != nil {
					return
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close or drop, either way the deferred Detach
				// marks the participant unreachable exactly once.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeEvent(r.Context(), conn, types.ServerEvent{
					Type:  types.EvtError,
					Error: &types.ErrorPayload{Code: "BAD_JSON", Message: "malformed message"},
				})
				continue
			}

			cmd, ok := ToCommand(cm)
			if !ok {
				writeEvent(r.Context(), conn, types.ServerEvent{
					Type:  types.EvtError,
					Error: &types.ErrorPayload{Code: "UNKNOWN_TYPE", Message: "unknown or incomplete message type"},
				})
				continue
			}

			rm.Inbox() <- room.FromClient{ParticipantID: pid, Cmd: cmd}

			if _, leaving := cmd.(room.LeaveSession); leaving {
				// Participant is gone; the deferred Detach becomes a no-op
				// on an unknown id.
				return
			}
		}
	}
}

// ToCommand validates a raw client message into the closed command set.
// Required fields are checked here so the room never sees a half-formed
// payload.
func ToCommand(m types.ClientMessage) (room.Command, bool) {
	switch m.Type {
	case "start-session":
		return room.StartSession{}, true
	case "submit-vote":
		if m.Card == "" {
			return nil, false
		}
		return room.SubmitVote{Card: engine.Card(m.Card)}, true
	case "new-round":
		return room.NewRound{}, true
	case "next-feature":
		return room.NextFeature{}, true
	case "end-session":
		return room.EndSession{}, true
	case "load-backlog":
		if len(m.Features) == 0 {
			return nil, false
		}
		return room.LoadBacklog{Features: m.Features}, true
	case "add-feature":
		if strings.TrimSpace(m.Name) == "" {
			return nil, false
		}
		return room.AddFeature{Name: m.Name, Description: m.Description}, true
	case "save-session":
		return room.SaveSession{}, true
	case "export-results":
		return room.ExportResults{}, true
	case "chat-message":
		if strings.TrimSpace(m.Text) == "" {
			return nil, false
		}
		return room.Chat{Text: m.Text}, true
	case "timer-update":
		if m.Running == nil {
			return nil, false
		}
		return room.Timer{Running: *m.Running, RemainingSec: m.RemainingSec}, true
	case "timer-reset":
		return room.Timer{Running: false, RemainingSec: m.RemainingSec}, true
	case "leave-session":
		return room.LeaveSession{}, true
	default:
		return nil, false
	}
}

func errEvent(err error) types.ServerEvent {
	payload := &types.ErrorPayload{Code: "INTERNAL", Message: "internal error"}
	var se *session.Error
	if errors.As(err, &se) {
		payload = &types.ErrorPayload{Code: se.Code, Message: se.Message}
	}
	return types.ServerEvent{Type: types.EvtError, Error: payload}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt types.ServerEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
