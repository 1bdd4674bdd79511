package room

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/planningdeck/poker-backend/internal/session"
	"github.com/planningdeck/poker-backend/internal/store"
	"github.com/planningdeck/poker-backend/internal/types"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan types.ServerEvent, within time.Duration) types.ServerEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return evt
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return types.ServerEvent{} // unreachable
	}
}

func recvNoEvent(t *testing.T, ch <-chan types.ServerEvent, within time.Duration) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no event within %v, but got: %+v", within, evt)
	case <-time.After(within):
	}
}

// drainUntilUpdated reads events until a session-updated with the given
// version arrives, returning it. Fails if something else shows up after
// the buffer runs dry.
func drainUntilUpdated(t *testing.T, ch <-chan types.ServerEvent, version int) types.ServerEvent {
	t.Helper()
	for {
		evt := recvEvent(t, ch, 200*time.Millisecond)
		if evt.Type == types.EvtSessionUpdated && evt.Version == version {
			return evt
		}
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func attach(t *testing.T, rm *Room, name string, buf int) (string, chan types.ServerEvent) {
	t.Helper()
	out := make(chan types.ServerEvent, buf)
	reply := make(chan AttachResult, 1)
	rm.Inbox() <- Attach{Name: name, Outbox: out, Reply: reply}
	res := <-reply
	if res.Err != nil {
		t.Fatalf("attach %q: %v", name, res.Err)
	}
	return res.ParticipantID, out
}

// startedRoom builds a two-player active session with a one-feature backlog
// and both outboxes drained up to the post-start broadcast.
func startedRoom(t *testing.T, mode string) (rm *Room, st *store.Memory, alicePID, bobPID string, aliceOut, bobOut chan types.ServerEvent) {
	t.Helper()

	sess, _, err := session.New("alice", mode, "ABC123")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st = store.NewMemory()
	rm = New(ctx, sess, st, zap.NewNop(), nil)

	alicePID, aliceOut = attach(t, rm, "alice", 16)
	bobPID, bobOut = attach(t, rm, "bob", 16)

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: LoadBacklog{
		Features: []session.FeatureInput{{Name: "login page"}},
	}}
	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: StartSession{}}

	// attach(alice)=v1, attach(bob)=v2, backlog=v3, start=v4
	drainUntilUpdated(t, aliceOut, 4)
	drainUntilUpdated(t, bobOut, 4)
	return rm, st, alicePID, bobPID, aliceOut, bobOut
}

func TestRoom_AttachSendsJoinedThenState(t *testing.T) {
	sess, facilitator, err := session.New("alice", "strict", "ABC123")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rm := New(ctx, sess, store.NewMemory(), zap.NewNop(), nil)

	pid, out := attach(t, rm, "alice", 4)
	if pid != facilitator.ID {
		t.Fatalf("attach by the facilitator's name must reconnect, not create: got %s want %s", pid, facilitator.ID)
	}

	joined := recvEvent(t, out, 100*time.Millisecond)
	if joined.Type != types.EvtJoined || joined.Joined == nil {
		t.Fatalf("first event: want session-joined, got %+v", joined)
	}
	if joined.Joined.Code != "ABC123" || joined.Joined.ParticipantID != pid {
		t.Fatalf("joined payload wrong: %+v", joined.Joined)
	}

	updated := recvEvent(t, out, 100*time.Millisecond)
	if updated.Type != types.EvtSessionUpdated || updated.Version != 1 {
		t.Fatalf("after join: want session-updated v1, got %+v", updated)
	}
	if updated.Session == nil || len(updated.Session.Participants) != 1 {
		t.Fatalf("snapshot missing participants: %+v", updated.Session)
	}

	rm.Inbox() <- Shutdown{}
}

func TestRoom_SecondJoinBroadcastsToEveryone(t *testing.T) {
	sess, _, _ := session.New("alice", "strict", "ABC123")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rm := New(ctx, sess, store.NewMemory(), zap.NewNop(), nil)

	_, aliceOut := attach(t, rm, "alice", 8)
	drainUntilUpdated(t, aliceOut, 1)

	_, bobOut := attach(t, rm, "bob", 8)
	drainUntilUpdated(t, bobOut, 2)

	evt := drainUntilUpdated(t, aliceOut, 2)
	if len(evt.Session.Participants) != 2 {
		t.Fatalf("alice should see both participants, got %d", len(evt.Session.Participants))
	}
}

func TestRoom_VoteProgressThenRedactedState(t *testing.T) {
	rm, _, alicePID, _, _, bobOut := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "5"}}

	progress := recvEvent(t, bobOut, 200*time.Millisecond)
	if progress.Type != types.EvtVoteProgress {
		t.Fatalf("want vote-progress, got %+v", progress)
	}
	if progress.Progress.VotesIn != 1 || progress.Progress.Expected != 2 {
		t.Fatalf("progress wrong: %+v", progress.Progress)
	}

	updated := recvEvent(t, bobOut, 200*time.Millisecond)
	if updated.Type != types.EvtSessionUpdated {
		t.Fatalf("want session-updated after progress, got %+v", updated)
	}
	for _, p := range updated.Session.Participants {
		if p.Vote != nil {
			t.Fatalf("mid-round snapshot leaked a vote value for %s", p.Name)
		}
		if p.ID == alicePID && !p.HasVoted {
			t.Fatalf("alice should be flagged hasVoted")
		}
	}
}

func TestRoom_LastVoteClosesRoundWithResult(t *testing.T) {
	rm, _, alicePID, bobPID, _, bobOut := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "5"}}
	rm.Inbox() <- FromClient{ParticipantID: bobPID, Cmd: SubmitVote{Card: "5"}}

	var result types.ServerEvent
	for {
		result = recvEvent(t, bobOut, 200*time.Millisecond)
		if result.Type == types.EvtRoundResult {
			break
		}
	}
	if !result.Result.Validated {
		t.Fatalf("unanimous 5/5 must validate: %+v", result.Result)
	}
	if result.Result.Estimate == nil || *result.Result.Estimate != 5 {
		t.Fatalf("want estimate 5, got %v", result.Result.Estimate)
	}
	if len(result.Result.Votes) != 2 {
		t.Fatalf("round-result must reveal all votes, got %d", len(result.Result.Votes))
	}
	for _, v := range result.Result.Votes {
		if v.Name == "" || v.Value == "" {
			t.Fatalf("revealed vote missing name or value: %+v", v)
		}
	}

	// The feature is settled, so the follow-up state broadcast is unredacted.
	updated := recvEvent(t, bobOut, 200*time.Millisecond)
	if updated.Type != types.EvtSessionUpdated {
		t.Fatalf("want session-updated after result, got %+v", updated)
	}
	if !updated.Session.Backlog[0].Completed {
		t.Fatalf("feature should be completed in the snapshot")
	}
}

func TestRoom_SplitVoteOpensNewRound(t *testing.T) {
	rm, _, alicePID, bobPID, _, bobOut := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "5"}}
	rm.Inbox() <- FromClient{ParticipantID: bobPID, Cmd: SubmitVote{Card: "8"}}

	var result types.ServerEvent
	for {
		result = recvEvent(t, bobOut, 200*time.Millisecond)
		if result.Type == types.EvtRoundResult {
			break
		}
	}
	if result.Result.Validated || !result.Result.NeedsRevote {
		t.Fatalf("5/8 in strict mode must not validate: %+v", result.Result)
	}
	if result.Result.NewRound != 2 {
		t.Fatalf("want newRound=2, got %d", result.Result.NewRound)
	}

	updated := recvEvent(t, bobOut, 200*time.Millisecond)
	for _, p := range updated.Session.Participants {
		if p.HasVoted || p.Vote != nil {
			t.Fatalf("vote flags must reset for the new round: %+v", p)
		}
	}
}

func TestRoom_AllBreakEmitsCoffeeBreakAndPersists(t *testing.T) {
	rm, st, alicePID, bobPID, _, bobOut := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "coffee"}}
	rm.Inbox() <- FromClient{ParticipantID: bobPID, Cmd: SubmitVote{Card: "coffee"}}

	var brk types.ServerEvent
	for {
		brk = recvEvent(t, bobOut, 200*time.Millisecond)
		if brk.Type == types.EvtCoffeeBreak {
			break
		}
	}
	if brk.Break == nil || len(brk.Break.Snapshot.RemainingFeatures) != 1 {
		t.Fatalf("break payload must carry the saved state: %+v", brk.Break)
	}

	updated := recvEvent(t, bobOut, 200*time.Millisecond)
	if !updated.Session.OnBreak {
		t.Fatalf("session must be paused after a unanimous break")
	}
	if updated.Session.Backlog[0].Completed {
		t.Fatalf("a break round must not complete the feature")
	}

	// Persistence runs off the voting path; poll for it.
	deadline := time.Now().Add(time.Second)
	for {
		saves, err := st.ListSnapshots(context.Background())
		if err != nil {
			t.Fatalf("list snapshots: %v", err)
		}
		if len(saves) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRoom_ErrorsGoOnlyToTheOffender(t *testing.T) {
	sess, _, _ := session.New("alice", "strict", "ABC123")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rm := New(ctx, sess, store.NewMemory(), zap.NewNop(), nil)

	_, aliceOut := attach(t, rm, "alice", 8)
	drainUntilUpdated(t, aliceOut, 1)
	bobPID, bobOut := attach(t, rm, "bob", 8)
	drainUntilUpdated(t, bobOut, 2)
	drainUntilUpdated(t, aliceOut, 2)

	rm.Inbox() <- FromClient{ParticipantID: bobPID, Cmd: StartSession{}}

	evt := recvEvent(t, bobOut, 200*time.Millisecond)
	if evt.Type != types.EvtError || evt.Error.Code != "NOT_AUTHORIZED" {
		t.Fatalf("want private NOT_AUTHORIZED, got %+v", evt)
	}
	recvNoEvent(t, aliceOut, 100*time.Millisecond)
}

func TestRoom_DropSlowClient(t *testing.T) {
	sess, _, _ := session.New("alice", "strict", "ABC123")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rm := New(ctx, sess, store.NewMemory(), zap.NewNop(), nil)

	// Buffer of one: the private joined event fills it, the state broadcast
	// overflows, and the room drops the connection.
	out := make(chan types.ServerEvent, 1)
	reply := make(chan AttachResult, 1)
	rm.Inbox() <- Attach{Name: "alice", Outbox: out, Reply: reply}
	<-reply

	viewReply := make(chan View, 1)
	rm.Inbox() <- GetState{Reply: viewReply}
	view := recvView(t, viewReply, 200*time.Millisecond)

	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	if view.Snapshot.Participants[0].Connected {
		t.Fatalf("dropped client must be marked disconnected, not removed")
	}
}

func TestRoom_LastExplicitLeaveTriggersOnEmpty(t *testing.T) {
	sess, _, _ := session.New("alice", "strict", "ABC123")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emptied := make(chan struct{}, 1)
	rm := New(ctx, sess, store.NewMemory(), zap.NewNop(), func() {
		emptied <- struct{}{}
	})

	pid, out := attach(t, rm, "alice", 8)
	drainUntilUpdated(t, out, 1)

	rm.Inbox() <- FromClient{ParticipantID: pid, Cmd: LeaveSession{}}

	select {
	case <-emptied:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("onEmpty never fired after the last participant left")
	}
}

func TestRoom_DetachKeepsParticipantAndVote(t *testing.T) {
	rm, _, alicePID, _, _, bobOut := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "8"}}
	drainUntilUpdated(t, bobOut, 5)

	rm.Inbox() <- Detach{ParticipantID: alicePID}

	evt := drainUntilUpdated(t, bobOut, 6)
	var alice *session.ParticipantView
	for i := range evt.Session.Participants {
		if evt.Session.Participants[i].ID == alicePID {
			alice = &evt.Session.Participants[i]
		}
	}
	if alice == nil {
		t.Fatalf("a dropped socket must not remove the participant")
	}
	if alice.Connected {
		t.Fatalf("detached participant must show as disconnected")
	}
	if !alice.HasVoted {
		t.Fatalf("detach must not discard the standing vote")
	}
}

func TestRoom_LeaveClosesRoundForRemainingVoters(t *testing.T) {
	rm, _, alicePID, bobPID, aliceOut, _ := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "5"}}
	drainUntilUpdated(t, aliceOut, 5)

	// Bob leaves without voting; alice is now the only expected voter and
	// her vote is already in, so the departure settles the round.
	rm.Inbox() <- FromClient{ParticipantID: bobPID, Cmd: LeaveSession{}}

	var result types.ServerEvent
	for {
		result = recvEvent(t, aliceOut, 200*time.Millisecond)
		if result.Type == types.EvtRoundResult {
			break
		}
	}
	if !result.Result.Validated {
		t.Fatalf("a lone unanimous vote must validate: %+v", result.Result)
	}
	if len(result.Result.Votes) != 1 {
		t.Fatalf("only the remaining voter's vote may count, got %d", len(result.Result.Votes))
	}
}

func TestRoom_SnapshotRevealsVotesOnceSettled(t *testing.T) {
	rm, _, alicePID, bobPID, _, _ := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "5"}}

	snapReply := make(chan session.Snapshot, 1)
	rm.Inbox() <- GetSnapshot{Reply: snapReply}
	snap := <-snapReply
	for _, p := range snap.Participants {
		if p.Vote != nil {
			t.Fatalf("lookup leaked a vote value mid-round for %s", p.Name)
		}
	}

	rm.Inbox() <- FromClient{ParticipantID: bobPID, Cmd: SubmitVote{Card: "5"}}

	rm.Inbox() <- GetSnapshot{Reply: snapReply}
	snap = <-snapReply
	for _, p := range snap.Participants {
		if p.Vote == nil {
			t.Fatalf("settled feature must reveal %s's vote", p.Name)
		}
	}
}

func TestRoom_FacilitatorRetryResumesBreak(t *testing.T) {
	rm, _, alicePID, bobPID, _, bobOut := startedRoom(t, "strict")

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: SubmitVote{Card: "coffee"}}
	rm.Inbox() <- FromClient{ParticipantID: bobPID, Cmd: SubmitVote{Card: "coffee"}}
	for {
		if recvEvent(t, bobOut, 200*time.Millisecond).Type == types.EvtCoffeeBreak {
			break
		}
	}
	drainUntilUpdated(t, bobOut, 6)

	rm.Inbox() <- FromClient{ParticipantID: alicePID, Cmd: NewRound{}}

	var newRound types.ServerEvent
	for {
		newRound = recvEvent(t, bobOut, 200*time.Millisecond)
		if newRound.Type == types.EvtNewRound {
			break
		}
	}
	if newRound.NewRound.Round != 2 {
		t.Fatalf("retry after a break should open round 2, got %d", newRound.NewRound.Round)
	}
	updated := drainUntilUpdated(t, bobOut, 7)
	if updated.Session.OnBreak {
		t.Fatalf("retry must clear the break pause")
	}
}
