package core

import (
	"time"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

const (
	livenessTickInterval  = 200 * time.Millisecond
	initialPingThreshold  = 5
	pingThresholdIncrease = 5
)

// runLivenessDetector is the Leader-only loop that watches the token
// feed for activity and, once it has gone quiet for longer than the
// current threshold, pings every known Follower and reseeds the token
// from its last cached snapshot. The threshold starts at
// initialPingThreshold idle ticks and grows by pingThresholdIncrease
// each time it fires, so a ring that is genuinely slow (large orders,
// many containers) does not get paged every cycle; it resets back to
// the initial value the next time a FlavourReleased snapshot arrives,
// so a long healthy run never accumulates an unbounded threshold.
// Idempotent: a second call while one is already running is a no-op.
func (r *Robot) runLivenessDetector() {
	r.livenessMu.Lock()
	if r.livenessStarted {
		r.livenessMu.Unlock()
		return
	}
	r.livenessStarted = true
	r.livenessMu.Unlock()

	threshold := initialPingThreshold
	idle := 0
	ticker := time.NewTicker(livenessTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case stock := <-r.tokenFeed:
			r.setFlavours(stock)
			threshold = initialPingThreshold
			idle = 0
		case <-ticker.C:
			idle++
			if idle < threshold {
				continue
			}
			r.firePing()
			r.reseedToken()
			threshold += pingThresholdIncrease
			idle = 0
		}
	}
}

// feedToken pushes the latest FlavourReleased snapshot into the
// single-slot token feed, discarding whatever stale value was sitting
// there — the detector only ever cares about the most recent token
// sighting, never the history of sightings.
func (r *Robot) feedToken(stock types.FlavoursStock) {
	select {
	case r.tokenFeed <- stock:
		return
	default:
	}
	select {
	case <-r.tokenFeed:
	default:
	}
	select {
	case r.tokenFeed <- stock:
	default:
	}
}

// firePing writes a Ping to every known Follower, treating a write
// failure exactly like any other dead-peer signal.
func (r *Robot) firePing() {
	for _, port := range r.followerKeys() {
		pc, err := r.connectToPeer(port)
		if err != nil {
			r.handleDeadPeer(port)
			continue
		}
		if err := pc.send(wire.Ping{}); err != nil {
			r.handleDeadPeer(port)
		}
	}
}

// reseedToken resends the Leader's cached stock snapshot to
// next_robot, recovering from a token that was lost in transit (its
// holder died mid-prepare, or a frame was simply dropped).
func (r *Robot) reseedToken() {
	next := r.NextRobot()
	if next == r.id {
		return
	}
	r.log.Infof("robot %d: reseeding token to %d, no activity within threshold", r.id, next)
	stock := r.Flavours()
	r.sendToPeerWithRetry(next, wire.FlavourReleased{Stock: stock})
}
