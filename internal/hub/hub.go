// Package hub is the process-wide session registry. It is built in main
// and injected, never a package-level singleton; lookups by code and by id
// resolve to the same room instance.
package hub

import (
	"context"
	"crypto/rand"
	"math/big"

	"go.uber.org/zap"

	"github.com/planningdeck/poker-backend/internal/room"
	"github.com/planningdeck/poker-backend/internal/session"
	"github.com/planningdeck/poker-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

type Create struct {
	FacilitatorName string
	Mode            string
	Backlog         []session.FeatureInput
	Reply           chan CreateResult
}

type Resume struct {
	Saved session.SavedSession
	Reply chan CreateResult
}

type CreateResult struct {
	Room          *room.Room
	Snapshot      session.Snapshot
	FacilitatorID string
	Err           error
}

type GetByID struct {
	ID    string
	Reply chan *room.Room
}

type GetByCode struct {
	Code  string
	Reply chan *room.Room
}

type Remove struct{ ID string }

type List struct{ Reply chan []*room.Room }

type ShutdownHub struct{}

func (Create) isHubMsg()      {}
func (Resume) isHubMsg()      {}
func (GetByID) isHubMsg()     {}
func (GetByCode) isHubMsg()   {}
func (Remove) isHubMsg()      {}
func (List) isHubMsg()        {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room // session id -> room
	codes  map[string]string     // join code -> session id
	store  store.Store
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, st store.Store, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		codes:  make(map[string]string),
		store:  st,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Create:
				msg.Reply <- h.create(msg)

			case Resume:
				msg.Reply <- h.resume(msg)

			case GetByID:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case GetByCode:
				if id, ok := h.codes[msg.Code]; ok {
					msg.Reply <- h.rooms[id]
					break
				}
				msg.Reply <- nil

			case Remove:
				h.remove(msg.ID)

			case List:
				out := make([]*room.Room, 0, len(h.rooms))
				for _, rm := range h.rooms {
					out = append(out, rm)
				}
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(msg Create) CreateResult {
	code, err := h.uniqueCode()
	if err != nil {
		return CreateResult{Err: err}
	}
	sess, facilitator, err := session.New(msg.FacilitatorName, msg.Mode, code)
	if err != nil {
		return CreateResult{Err: err}
	}
	if len(msg.Backlog) > 0 {
		if err := sess.LoadBacklog(msg.Backlog); err != nil {
			return CreateResult{Err: err}
		}
	}
	rm := h.register(sess)
	h.log.Info("session created",
		zap.String("code", code),
		zap.String("facilitator", facilitator.Name),
		zap.String("mode", msg.Mode))
	return CreateResult{
		Room:          rm,
		Snapshot:      sess.Snapshot(true),
		FacilitatorID: facilitator.ID,
	}
}

func (h *Hub) resume(msg Resume) CreateResult {
	code, err := h.uniqueCode()
	if err != nil {
		return CreateResult{Err: err}
	}
	sess, facilitator, err := session.Resume(msg.Saved, code)
	if err != nil {
		return CreateResult{Err: err}
	}
	rm := h.register(sess)
	h.log.Info("session resumed",
		zap.String("code", code),
		zap.String("from", msg.Saved.Code))
	return CreateResult{
		Room:          rm,
		Snapshot:      sess.Snapshot(true),
		FacilitatorID: facilitator.ID,
	}
}

func (h *Hub) register(sess *session.Session) *room.Room {
	id := sess.ID
	rm := room.New(h.ctx, sess, h.store, h.log, func() {
		h.inbox <- Remove{ID: id}
	})
	h.rooms[id] = rm
	h.codes[sess.Code] = id
	return rm
}

func (h *Hub) remove(id string) {
	rm, ok := h.rooms[id]
	if !ok {
		return
	}
	delete(h.rooms, id)
	delete(h.codes, rm.Code())
	rm.Inbox() <- room.Shutdown{}
	h.log.Info("session removed", zap.String("code", rm.Code()))
}

func (h *Hub) shutdown() {
	for id, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
		delete(h.codes, rm.Code())
		delete(h.rooms, id)
	}
	h.cancel()
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns a 6-character join code.
func GenerateCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

// uniqueCode retries on collision; with 36^6 codes against a handful of
// live sessions this practically never loops twice.
func (h *Hub) uniqueCode() (string, error) {
	for {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.codes[code]; !taken {
			return code, nil
		}
		h.log.Warn("join code collision, regenerating", zap.String("code", code))
	}
}
