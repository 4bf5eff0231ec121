package core

import (
	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

// StartElection is called by any Follower whose write to the Leader
// just failed. It is single-flight per peer: if an election is
// already in progress here, this call is a no-op. Two Followers can
// race and both start one; both converge on the same max id, so the
// extra traffic is harmless (see SPEC_FULL.md open-question decisions).
func (r *Robot) StartElection() {
	if !r.tryStartElection() {
		return
	}
	r.log.Infof("robot %d starting leader election", r.id)
	r.forwardElection([]types.Port{r.id})
}

// forwardElection sends an Election carrying ids to next_robot,
// retrying against successive ring survivors on failure exactly as
// spec.md §4.2 describes: on a forward failure the dead port is
// dropped from ids, next_robot is recomputed, and the peer retries
// until a send succeeds or only itself remains.
func (r *Robot) forwardElection(ids []types.Port) {
	target := r.NextRobot()
	for {
		if target == r.id {
			// Sole survivor: immediately assume leadership.
			r.becomeLeader()
			return
		}
		pc, err := r.connectToPeer(target)
		if err == nil {
			if sendErr := pc.send(wire.Election{IDs: ids}); sendErr == nil {
				return
			}
		}
		ids = removePort(ids, target)
		r.handleDeadPeer(target)
		target = r.NextRobot()
	}
}

// forwardCoordinator sends Coordinator{maxID} along the ring, retrying
// against survivors the same way forwardElection does. Coordinator's
// payload is never mutated on failure (only Election's id list is).
func (r *Robot) forwardCoordinator(maxID types.Port) {
	target := r.NextRobot()
	for {
		if target == r.id {
			return
		}
		pc, err := r.connectToPeer(target)
		if err == nil {
			if sendErr := pc.send(wire.Coordinator{MaxID: maxID}); sendErr == nil {
				return
			}
		}
		r.handleDeadPeer(target)
		target = r.NextRobot()
	}
}

func removePort(ports []types.Port, victim types.Port) []types.Port {
	out := ports[:0:0]
	for _, p := range ports {
		if p != victim {
			out = append(out, p)
		}
	}
	return out
}

func containsPort(ports []types.Port, id types.Port) bool {
	for _, p := range ports {
		if p == id {
			return true
		}
	}
	return false
}

func maxPort(ports []types.Port) types.Port {
	max := ports[0]
	for _, p := range ports[1:] {
		if p > max {
			max = p
		}
	}
	return max
}

// handleElection implements the Chang-Roberts-style round: if this
// peer's id is already present, the round is complete and a
// Coordinator carrying the max id is forwarded instead; otherwise the
// id is appended and the Election frame continues around the ring.
func (r *Robot) handleElection(ids []types.Port) {
	if containsPort(ids, r.id) {
		r.forwardCoordinator(maxPort(ids))
		return
	}
	r.forwardElection(append(append([]types.Port(nil), ids...), r.id))
}

// handleCoordinator either assumes leadership (if this peer won) or
// forwards the announcement onward and waits for the winner's
// NewLeader frame.
func (r *Robot) handleCoordinator(maxID types.Port) {
	if r.id == maxID {
		r.becomeLeader()
		return
	}
	r.forwardCoordinator(maxID)
}
