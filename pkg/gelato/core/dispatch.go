package core

import (
	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

// handleNewOrder is reached for frame id 0 under two different roles:
// a Screen submitting a fresh order to the Leader (spec.md §4.5 step 1,
// captured against Payments before any dispatch happens), or the
// Leader's own dispatch of an already-accepted order arriving at the
// chosen Follower (spec.md §2, §4.5 step 1/§4.6 step 3), which simply
// queues it under this peer's own key for the token to prepare later.
func (r *Robot) handleNewOrder(order types.Order) {
	if r.IsLeader() {
		r.captureOrder(order)
		return
	}
	r.withPendingOrders(func(m types.OrdersByRobot) { m.Insert(r.id, order) })
}

// captureOrder is the Leader's entry point for a freshly submitted
// order: it sends CapturePayment over the Leader's Payments connection;
// the PaymentAccepted/PaymentDeclined reply arrives asynchronously on
// that same connection. Dispatch to a Follower only happens once
// payment clears, in handlePaymentAccepted.
func (r *Robot) captureOrder(order types.Order) {
	pc := r.getPaymentsConn()
	if pc == nil {
		r.log.Warnf("order %d dropped: no connection to payments", order.ID)
		return
	}
	if err := pc.send(wire.CapturePayment{Order: order}); err != nil {
		r.log.Warnf("order %d dropped: capture request failed: %v", order.ID, err)
	}
}

// handlePaymentAccepted dispatches order to the current round-robin
// target, retrying against successive ring survivors until the send
// actually lands, then records and mirrors the assignment under
// whichever port was actually reached — never the initially chosen,
// unconfirmed one — and rotates next_robot for the following order,
// per spec.md §4.5 steps 1-5.
func (r *Robot) handlePaymentAccepted(order types.Order) {
	if !r.IsLeader() {
		return
	}
	initial := r.NextRobot()
	target := r.sendToPeerWithRetry(initial, wire.NewOrder{Order: order})
	r.withPendingOrders(func(m types.OrdersByRobot) { m.Insert(target, order) })
	r.broadcastNewPendingOrder(target, order)
	r.setNextRobot(r.advanceAmongFollowers(target))
}

// handlePaymentDeclined simply drops the order; nothing was ever
// reserved for it, so there is nothing to roll back.
func (r *Robot) handlePaymentDeclined(order types.Order) {
	r.log.Infof("order %d declined by payments", order.ID)
}

// handleFinishOrCancel is shared by FinishPayment and CancelPayment:
// both remove the now-settled order from this peer's pendingOrders.
// On the Leader the same frame is then forwarded to Payments, and
// nothing else: the Leader does not relay it to the other Followers,
// so their pendingOrders mirrors keep the entry. On a Follower the
// frame is relayed to every other known peer and, when this peer is
// the owner, to the Leader. A Follower reporting its own order does
// not pass through here: it takes the order off its queue in
// handleFlavourReleased and reports it with sendToLeader.
func (r *Robot) handleFinishOrCancel(orderID uint16, owner types.Port, finished bool) {
	r.withPendingOrders(func(m types.OrdersByRobot) { m.RemoveOrder(orderID) })

	if r.IsLeader() {
		if pc := r.getPaymentsConn(); pc != nil {
			if finished {
				_ = pc.send(wire.FinishPayment{OrderID: orderID, Port: owner})
			} else {
				_ = pc.send(wire.CancelPayment{OrderID: orderID, Port: owner})
			}
		}
		return
	}

	for _, port := range r.followerKeys() {
		pc, err := r.connectToPeer(port)
		if err != nil {
			continue
		}
		var f wire.Frame
		if finished {
			f = wire.FinishPayment{OrderID: orderID, Port: owner}
		} else {
			f = wire.CancelPayment{OrderID: orderID, Port: owner}
		}
		if err := pc.send(f); err != nil {
			r.handleDeadPeer(port)
		}
	}
	if leaderConn := r.getLeaderConn(); leaderConn != nil && owner == r.id {
		var f wire.Frame
		if finished {
			f = wire.FinishPayment{OrderID: orderID, Port: owner}
		} else {
			f = wire.CancelPayment{OrderID: orderID, Port: owner}
		}
		if err := leaderConn.send(f); err != nil {
			r.StartElection()
		}
	}
}

// handleNewPendingOrder applies a pendingOrders mirror update sent by
// the Leader. Insert is idempotent by order id, so replays from a
// reconnect never produce a duplicate live entry.
func (r *Robot) handleNewPendingOrder(owner types.Port, order types.Order) {
	r.withPendingOrders(func(m types.OrdersByRobot) { m.Insert(owner, order) })
}

// broadcastNewPendingOrder mirrors a fresh dispatch decision to every
// other live peer, so any of them can take over bookkeeping for owner
// if the Leader itself later dies.
func (r *Robot) broadcastNewPendingOrder(owner types.Port, order types.Order) {
	for _, port := range r.followerKeys() {
		if port == owner {
			continue
		}
		pc, err := r.connectToPeer(port)
		if err != nil {
			continue
		}
		if err := pc.send(wire.NewPendingOrder{Owner: owner, Order: order}); err != nil {
			r.handleDeadPeer(port)
		}
	}
}

// advanceAmongFollowers returns the ring member after from among this
// peer's currently known non-leader peers, or self if none remain.
func (r *Robot) advanceAmongFollowers(from types.Port) types.Port {
	keys := r.followerKeys()
	if len(keys) == 0 {
		return r.id
	}
	ring := keys
	if !containsPort(ring, from) {
		ring = append(append([]types.Port(nil), ring...), from)
	}
	return ringAfterExcluding(ring, from, r.id)
}

// handleDeadPeer is the single place a failed write against port turns
// into peer-death bookkeeping: the connection is dropped, next_robot
// and the leader pointer are repaired if either referenced the dead
// port, and — if this peer is the Leader — any order still pending
// against the dead Follower is reassigned per spec.md §4.6.
func (r *Robot) handleDeadPeer(dead types.Port) {
	if dead == r.id {
		return
	}
	r.log.Warnf("robot %d: peer %d considered dead", r.id, dead)
	r.removeRobot(dead)

	if r.NextRobot() == dead {
		keys := r.followerKeys()
		var newNext types.Port
		if len(keys) == 0 {
			newNext = r.id
		} else {
			ring := append(append([]types.Port(nil), keys...), dead)
			newNext = ringAfterExcluding(ring, dead, dead)
		}
		r.setNextRobot(newNext)
	}

	if lc := r.getLeaderConn(); lc != nil && lc.port == dead {
		r.setLeaderConn(nil)
	}

	if r.IsLeader() {
		r.reassignDeadFollowerOrders(dead)
	}
}

// reassignDeadFollowerOrders moves every order still pending against
// dead onto the current round-robin target, re-broadcasting each as a
// NewPendingOrder and a fresh NewOrder dispatch, exactly as a brand
// new order would be handled in handlePaymentAccepted.
func (r *Robot) reassignDeadFollowerOrders(dead types.Port) {
	var orphaned []types.Order
	r.withPendingOrders(func(m types.OrdersByRobot) {
		orphaned = append(orphaned, m[dead]...)
		delete(m, dead)
	})
	for _, order := range orphaned {
		initial := r.NextRobot()
		target := r.sendToPeerWithRetry(initial, wire.NewOrder{Order: order})
		r.withPendingOrders(func(m types.OrdersByRobot) { m.Insert(target, order) })
		r.broadcastNewPendingOrder(target, order)
		r.setNextRobot(r.advanceAmongFollowers(target))
	}
}
