// Package store persists session snapshots and result exports. The store is
// a best-effort mirror: in-memory session state stays authoritative and no
// call here sits on the voting hot path.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("saved session not found")

// SavedRecord is one persisted snapshot. Payload is the serialized
// session.SavedSession, treated as opaque here.
type SavedRecord struct {
	ID      string    `json:"id"`
	Code    string    `json:"code"`
	Mode    string    `json:"mode"`
	SavedAt time.Time `json:"savedAt"`
	Payload []byte    `json:"-"`
}

// SavedSummary is the listing shape (no payload).
type SavedSummary struct {
	ID      string    `json:"id"`
	Code    string    `json:"code"`
	Mode    string    `json:"mode"`
	SavedAt time.Time `json:"savedAt"`
	Size    int       `json:"size"`
}

// ExportRecord is a final-results export for a finished session.
type ExportRecord struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	ExportedAt time.Time `json:"exportedAt"`
	Payload    []byte    `json:"-"`
}

type Store interface {
	SaveSnapshot(ctx context.Context, rec SavedRecord) error
	ListSnapshots(ctx context.Context) ([]SavedSummary, error)
	LoadSnapshot(ctx context.Context, id string) (SavedRecord, error)
	SaveExport(ctx context.Context, rec ExportRecord) error
}
