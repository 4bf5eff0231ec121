package core

import (
	"testing"
	"time"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

func TestStartElection_ForwardsAndSetsSingleFlightFlag(t *testing.T) {
	r := newTestFollower(t, 6002)
	next := attachPipedFollower(t, r, 6003)

	r.StartElection()

	got := next.expect(t, time.Second)
	e, ok := got.(wire.Election)
	if !ok || len(e.IDs) != 1 || e.IDs[0] != 6002 {
		t.Fatalf("expected Election{[6002]}, got %#v", got)
	}
	if !r.electionStartedFlag() {
		t.Fatal("expected election-in-progress flag to remain set after forwarding")
	}

	// A second call while one is in flight must be a no-op: no extra
	// frame is sent.
	r.StartElection()
	select {
	case extra := <-next.frames:
		t.Fatalf("expected no second Election frame, got %#v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleElection_CompletesRoundAndForwardsCoordinator(t *testing.T) {
	r := newTestFollower(t, 6002)
	next := attachPipedFollower(t, r, 6003)

	r.handleElection([]types.Port{6003, 6002})

	got := next.expect(t, time.Second)
	c, ok := got.(wire.Coordinator)
	if !ok || c.MaxID != 6003 {
		t.Fatalf("expected Coordinator{6003}, got %#v", got)
	}
}

func TestHandleElection_AppendsAndContinues(t *testing.T) {
	r := newTestFollower(t, 6002)
	next := attachPipedFollower(t, r, 6003)

	r.handleElection([]types.Port{6001})

	got := next.expect(t, time.Second)
	e, ok := got.(wire.Election)
	if !ok || len(e.IDs) != 2 || e.IDs[0] != 6001 || e.IDs[1] != 6002 {
		t.Fatalf("expected Election{[6001 6002]}, got %#v", got)
	}
}

func TestHandleCoordinator_WinnerBecomesLeader(t *testing.T) {
	r := newTestFollower(t, 6002)
	r.handleCoordinator(6002)

	if !r.IsLeader() {
		t.Fatal("expected robot matching max id to become leader")
	}
	if r.electionStartedFlag() {
		t.Fatal("expected election flag cleared once leadership is assumed")
	}
}

func TestHandleNewLeader_RewiresSuccessorWhenLeaderWasNext(t *testing.T) {
	r := newTestFollower(t, 6002)
	// 6002's next_robot starts as 6003 (smallest other follower); make
	// the "leader" in this scenario be exactly that successor so the
	// rewrite branch fires.
	if r.NextRobot() != 6003 {
		t.Fatalf("precondition: expected next_robot 6003, got %d", r.NextRobot())
	}

	r.handleNewLeader(6003, 6001)

	if r.NextRobot() != 6001 {
		t.Fatalf("expected next_robot rewritten to 6001, got %d", r.NextRobot())
	}
	if r.electionStartedFlag() {
		t.Fatal("expected election flag cleared after handling NewLeader")
	}
}
