package core

import (
	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

// becomeLeader performs the four concurrent steps of spec.md §4.3: flip
// the leader flag and drop the old leader stream, announce to every
// known peer and record the new outbound streams, best-effort notify
// the Screens, and reconnect Payments. Peers that fail the
// announcement step are handled as dead peers immediately.
func (r *Robot) becomeLeader() {
	r.setIsLeader(true)
	r.setLeaderConn(nil)
	r.clearElectionStarted()
	r.log.Infof("robot %d assuming leadership", r.id)

	next := r.NextRobot()
	peers := r.aliveRobotPorts()
	var dead []types.Port
	for _, port := range peers {
		if port == r.id {
			continue
		}
		pc, err := connectAndGreet(port, wire.NewLeader{LeaderPort: r.id, LeaderNext: next})
		if err != nil {
			dead = append(dead, port)
			continue
		}
		r.setRobotConn(port, pc)
	}
	for _, d := range dead {
		r.handleDeadPeer(d)
	}

	r.invoker.Spawn(func() {
		for _, screen := range r.screenPorts {
			pc, err := connectAndGreet(screen, wire.NewLeader{LeaderPort: r.id, LeaderNext: r.NextRobot()})
			if err != nil {
				r.log.Infof("screen %d unreachable for NewLeader notice, skipping: %v", screen, err)
				continue
			}
			pc.Close()
		}
	})

	r.invoker.Spawn(func() {
		pc, err := connectAndGreet(r.paymentsPort, wire.NewLeader{LeaderPort: r.id, LeaderNext: r.NextRobot()})
		if err != nil {
			r.log.Warnf("could not reconnect to payments as new leader: %v", err)
			return
		}
		r.setPaymentsConn(pc)
	})

	r.livenessMu.Lock()
	started := r.livenessStarted
	r.livenessMu.Unlock()
	if !started {
		r.invoker.Spawn(func() { r.runLivenessDetector() })
	}
}

// handleNewLeader rewires this Follower's outbound connections after a
// leadership change, per spec.md §4.3.
func (r *Robot) handleNewLeader(leaderID, leaderNext types.Port) {
	if r.IsLeader() {
		return
	}

	pc, err := connectAndGreet(leaderID, nil)
	if err != nil {
		r.log.Warnf("could not connect to new leader %d: %v", leaderID, err)
	} else {
		r.setLeaderConn(pc)
	}

	if leaderID == r.NextRobot() {
		r.setNextRobot(leaderNext)
		if _, err := r.connectToPeer(leaderNext); err != nil {
			r.log.Warnf("could not eagerly connect to new next_robot %d: %v", leaderNext, err)
		}
	}
	r.clearElectionStarted()
}
