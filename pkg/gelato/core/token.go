package core

import (
	"time"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

// handleFlavourReleased implements the token-ring stock protocol of
// spec.md §4.4. The Leader does not forward the token further; it
// feeds the snapshot to the liveness detector instead, which is what
// reseeds circulation once a prepare cycle's worth of pings has
// elapsed with no activity. A Follower holding the token does at most
// one piece of work per visit: take its own next pending order (if
// any), settle it against the carried stock, and forward the
// (possibly updated) snapshot on.
func (r *Robot) handleFlavourReleased(stock types.FlavoursStock) {
	working := stock.Clone()

	if r.IsLeader() {
		r.setFlavours(working)
		r.feedToken(working)
		return
	}

	order, hasOrder := r.takePendingOrder(r.id)
	if hasOrder {
		if working.CanPrepare(order) {
			dur := order.PrepareDuration()
			time.Sleep(time.Duration(dur) * time.Millisecond)
			working.Deduct(order)
			r.sendToLeader(wire.FinishPayment{OrderID: order.ID, Port: r.id})
		} else {
			r.sendToLeader(wire.CancelPayment{OrderID: order.ID, Port: r.id})
		}
	}

	r.setFlavours(working)
	next := r.NextRobot()
	r.sendToPeerWithRetry(next, wire.FlavourReleased{Stock: working})
}

// takePendingOrder pops the first order queued for owner, if any.
func (r *Robot) takePendingOrder(owner types.Port) (types.Order, bool) {
	var order types.Order
	var ok bool
	r.withPendingOrders(func(m types.OrdersByRobot) {
		order, ok = m.TakeFirst(owner)
	})
	return order, ok
}

// sendToLeader writes frame to the current leader connection, treating
// a write failure as grounds to start an election: by definition only
// a Follower ever calls this, and an unreachable Leader is exactly the
// election trigger of spec.md §4.2.
func (r *Robot) sendToLeader(frame wire.Frame) {
	pc := r.getLeaderConn()
	if pc == nil {
		r.log.Warnf("robot %d: no leader connection to send %T, starting election", r.id, frame)
		r.StartElection()
		return
	}
	if err := pc.send(frame); err != nil {
		r.log.Warnf("robot %d: write to leader failed, starting election: %v", r.id, err)
		r.StartElection()
	}
}
