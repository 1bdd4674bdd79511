package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planningdeck/poker-backend/internal/room"
	"github.com/planningdeck/poker-backend/internal/session"
	"github.com/planningdeck/poker-backend/internal/store"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, store.NewMemory(), zap.NewNop())
}

func create(t *testing.T, h *Hub, name, mode string, backlog []session.FeatureInput) CreateResult {
	t.Helper()
	reply := make(chan CreateResult, 1)
	h.Inbox() <- Create{FacilitatorName: name, Mode: mode, Backlog: backlog, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for create")
		return CreateResult{}
	}
}

func getByCode(h *Hub, code string) *room.Room {
	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetByCode{Code: code, Reply: reply}
	return <-reply
}

func getByID(h *Hub, id string) *room.Room {
	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetByID{ID: id, Reply: reply}
	return <-reply
}

func TestHub_CreateRegistersBothIndices(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "alice", "strict", nil)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Room)
	assert.True(t, session.ValidCode(res.Snapshot.Code))
	assert.NotEmpty(t, res.FacilitatorID)

	// Both lookups resolve to the same live room, not a copy.
	assert.Same(t, res.Room, getByCode(h, res.Snapshot.Code))
	assert.Same(t, res.Room, getByID(h, res.Snapshot.ID))
}

func TestHub_CreateRejectsUnknownMode(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "alice", "fibonacci", nil)
	require.Error(t, res.Err)

	var se *session.Error
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, "INVALID_MODE", se.Code)
	assert.Nil(t, res.Room)
}

func TestHub_CreateWithBacklog(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "alice", "average", []session.FeatureInput{
		{Name: "login page"},
		{Name: "search"},
	})
	require.NoError(t, res.Err)
	assert.Len(t, res.Snapshot.Backlog, 2)
	assert.Equal(t, "login page", res.Snapshot.Backlog[0].Name)
}

func TestHub_RemoveDropsBothIndices(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "alice", "strict", nil)
	require.NoError(t, res.Err)

	h.Inbox() <- Remove{ID: res.Snapshot.ID}

	assert.Nil(t, getByCode(h, res.Snapshot.Code))
	assert.Nil(t, getByID(h, res.Snapshot.ID))
}

func TestHub_ListReturnsLiveRooms(t *testing.T) {
	h := newTestHub(t)

	first := create(t, h, "alice", "strict", nil)
	second := create(t, h, "bob", "average", nil)
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)

	reply := make(chan []*room.Room, 1)
	h.Inbox() <- List{Reply: reply}
	rooms := <-reply
	assert.Len(t, rooms, 2)
}

func TestHub_ResumeRebuildsFromSavedState(t *testing.T) {
	h := newTestHub(t)

	estimate := 8
	saved := session.SavedSession{
		SessionID: "old-id",
		Code:      "OLD123",
		Mode:      "average",
		SavedAt:   time.Now(),
		Participants: []session.SavedParticipant{
			{ID: "p1", Name: "alice", Facilitator: true},
			{ID: "p2", Name: "bob"},
		},
		CompletedFeatures: []session.SavedFeature{
			{ID: "f1", Name: "login page", Estimate: &estimate, Completed: true},
		},
		RemainingFeatures: []session.SavedFeature{
			{ID: "f2", Name: "search"},
		},
		CurrentFeatureIndex: 1,
	}

	reply := make(chan CreateResult, 1)
	h.Inbox() <- Resume{Saved: saved, Reply: reply}
	res := <-reply
	require.NoError(t, res.Err)

	// Fresh identity, old content.
	assert.NotEqual(t, "OLD123", res.Snapshot.Code)
	assert.True(t, session.ValidCode(res.Snapshot.Code))
	require.Len(t, res.Snapshot.Backlog, 2)
	assert.True(t, res.Snapshot.Backlog[0].Completed)
	require.NotNil(t, res.Snapshot.Backlog[0].Estimate)
	assert.Equal(t, 8, *res.Snapshot.Backlog[0].Estimate)
	assert.False(t, res.Snapshot.Backlog[1].Completed)
	assert.Equal(t, 1, res.Snapshot.CurrentFeatureIndex)

	// Non-facilitator participants come back disconnected, ready to rejoin
	// under the same name.
	require.Len(t, res.Snapshot.Participants, 2)
	for _, p := range res.Snapshot.Participants {
		if p.Name == "bob" {
			assert.False(t, p.Connected)
		}
	}
}

func TestGenerateCode_Shape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.True(t, session.ValidCode(code), "code %q", code)
		seen[code] = true
	}
	// 50 draws from 36^6 colliding would be remarkable.
	assert.Greater(t, len(seen), 45)
}
