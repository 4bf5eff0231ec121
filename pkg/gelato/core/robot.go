// Package core implements the Robot peer: the ring leader election,
// the token-ring ingredient stock, the leader's order dispatcher, the
// dead-peer and liveness handling, and the TCP transport they all
// share.
package core

import (
	"net"
	"sort"
	"sync"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

// Robot is the peer actor. Every exported mutator below takes exactly
// the field-level lock(s) it needs, never holding one across an
// unrelated network call; the fixed acquisition order, where more than
// one is needed at once, is: flavours, robots, leader, payments,
// nextRobot, pendingOrders, isLeader, electionStarted.
type Robot struct {
	id      types.Port
	log     types.Logger
	invoker Invoker

	screenPorts []types.Port

	flavoursMu sync.RWMutex
	flavours   types.FlavoursStock

	robotsMu sync.RWMutex
	robots   map[types.Port]*peerConn

	leaderMu sync.RWMutex
	leader   *peerConn

	paymentsMu sync.RWMutex
	payments   *peerConn

	nextRobotMu sync.RWMutex
	nextRobot   types.Port

	pendingMu     sync.RWMutex
	pendingOrders types.OrdersByRobot

	leaderFlagMu sync.RWMutex
	isLeader     bool

	electionMu      sync.RWMutex
	electionStarted bool

	bootstrapMu  sync.Mutex
	flavoursSent bool

	// tokenFeed is the bounded single-slot channel carrying the latest
	// FlavourReleased snapshot to the liveness detector. Only the
	// Leader reads it.
	tokenFeed chan types.FlavoursStock

	livenessMu      sync.Mutex
	livenessStarted bool

	paymentsPort types.Port

	done     chan struct{}
	closeMu  sync.Once
	listener *FrameListener
}

// NewRobot builds the peer state for id from cfg, without yet binding
// a listener or dialing anyone. Call Start to bring it up.
func NewRobot(id types.Port, cfg types.RobotConfig, log types.Logger) *Robot {
	return &Robot{
		id:            id,
		log:           log,
		invoker:       NewInvoker(),
		screenPorts:   cfg.ScreenPorts,
		flavours:      types.InitialStock(),
		robots:        make(map[types.Port]*peerConn),
		pendingOrders: make(types.OrdersByRobot),
		isLeader:      id == cfg.SeedLeader(),
		nextRobot:     ringAfterExcluding(portsExcluding(cfg.RobotPorts, cfg.SeedLeader()), id, id),
		tokenFeed:     make(chan types.FlavoursStock, 1),
		paymentsPort:  cfg.Payments,
		done:          make(chan struct{}),
	}
}

// Stop tears down the listener and signals background loops (the
// liveness detector) to exit. Safe to call more than once.
func (r *Robot) Stop() {
	r.closeMu.Do(func() {
		close(r.done)
		if r.listener != nil {
			r.listener.Close()
		}
	})
}

// portsExcluding returns a copy of ports with every occurrence of
// victim removed.
func portsExcluding(ports []types.Port, victim types.Port) []types.Port {
	out := make([]types.Port, 0, len(ports))
	for _, p := range ports {
		if p != victim {
			out = append(out, p)
		}
	}
	return out
}

// ringAfterExcluding returns the surviving ring member that follows
// from in ascending port order among ports, skipping any entry equal
// to exclude and wrapping around. If from is absent from ports the
// scan behaves as though from sorts before every entry, so the result
// is simply the smallest surviving member — this is how the Leader's
// own next_robot is seeded, since the Leader's port is never itself a
// ring member. If every entry equals exclude (or ports is empty),
// exclude is returned unchanged — the sole-survivor case.
func ringAfterExcluding(ports []types.Port, from, exclude types.Port) types.Port {
	if len(ports) == 0 {
		return exclude
	}
	sorted := append([]types.Port(nil), ports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := -1
	for i, p := range sorted {
		if p == from {
			idx = i
			break
		}
	}
	n := len(sorted)
	for i := 1; i <= n; i++ {
		if cand := sorted[(idx+i)%n]; cand != exclude {
			return cand
		}
	}
	return exclude
}

// Start binds the peer's listener, dials its initial set of peers
// (a Leader dials every Follower; a Follower dials only the Leader and
// leaves the other Followers to be connected lazily),
// and, if this peer is the bootstrap Leader, releases the initial
// stock onto the ring exactly once.
func (r *Robot) Start(allRobots []types.Port) error {
	ln, err := Listen(r.id, r.log, r.invoker, r.handleFrame)
	if err != nil {
		return err
	}
	r.listener = ln

	if r.IsLeader() {
		for _, port := range allRobots {
			if port == r.id {
				continue
			}
			pc, err := connectAndGreet(port, nil)
			if err != nil {
				r.log.Warnf("leader bootstrap: could not reach %d yet: %v", port, err)
				continue
			}
			r.setRobotConn(port, pc)
		}
		pc, err := connectAndGreet(r.paymentsPort, nil)
		if err != nil {
			r.log.Warnf("leader bootstrap: could not reach payments yet: %v", err)
		} else {
			r.setPaymentsConn(pc)
		}
		r.bootstrapTokenRing()
		r.invoker.Spawn(func() { r.runLivenessDetector() })
	} else {
		leaderPort := allRobots[0]
		pc, err := connectAndGreet(leaderPort, nil)
		if err != nil {
			r.log.Warnf("follower bootstrap: leader %d unreachable yet: %v", leaderPort, err)
		} else {
			r.setLeaderConn(pc)
		}
		for _, port := range allRobots {
			if port == r.id || port == leaderPort {
				continue
			}
			r.setRobotConn(port, nil)
		}
	}
	return nil
}

// bootstrapTokenRing releases the initial stock to next_robot exactly
// once per leader lifetime.
func (r *Robot) bootstrapTokenRing() {
	r.bootstrapMu.Lock()
	defer r.bootstrapMu.Unlock()
	if r.flavoursSent {
		return
	}
	r.flavoursSent = true
	next := r.NextRobot()
	stock := r.Flavours()
	r.invoker.Spawn(func() {
		r.sendToPeerWithRetry(next, wire.FlavourReleased{Stock: stock})
	})
}

// handleFrame is the single dispatch switch every inbound frame passes
// through, regardless of which connection it arrived on. Frames are a
// closed tagged variant; there is no runtime type registration.
func (r *Robot) handleFrame(conn net.Conn, f wire.Frame) {
	switch m := f.(type) {
	case wire.NewOrder:
		r.handleNewOrder(m.Order)
	case wire.CapturePayment:
		r.log.Warnf("robot %d received CapturePayment, only Payments should: %v", r.id, m)
	case wire.PaymentAccepted:
		r.handlePaymentAccepted(m.Order)
	case wire.PaymentDeclined:
		r.handlePaymentDeclined(m.Order)
	case wire.FinishPayment:
		r.handleFinishOrCancel(m.OrderID, m.Port, true)
	case wire.CancelPayment:
		r.handleFinishOrCancel(m.OrderID, m.Port, false)
	case wire.FlavourReleased:
		r.handleFlavourReleased(m.Stock)
	case wire.Election:
		r.handleElection(m.IDs)
	case wire.Coordinator:
		r.handleCoordinator(m.MaxID)
	case wire.NewLeader:
		r.handleNewLeader(m.LeaderPort, m.LeaderNext)
	case wire.NewPendingOrder:
		r.handleNewPendingOrder(m.Owner, m.Order)
	case wire.OrderDone:
		// Payments acknowledges each settlement the Leader forwarded;
		// the order was already removed locally, so nothing is left to do.
		r.log.Debugf("robot %d: payments settled order %d", r.id, m.OrderID)
	case wire.Ping:
		// No reply is required; receipt alone keeps the connection warm.
	default:
		r.log.Warnf("robot %d received unknown frame %#v", r.id, f)
	}
}

// --- accessors, one per spec.md §5 shared field ---

func (r *Robot) ID() types.Port { return r.id }

func (r *Robot) IsLeader() bool {
	r.leaderFlagMu.RLock()
	defer r.leaderFlagMu.RUnlock()
	return r.isLeader
}

func (r *Robot) setIsLeader(v bool) {
	r.leaderFlagMu.Lock()
	defer r.leaderFlagMu.Unlock()
	r.isLeader = v
}

func (r *Robot) NextRobot() types.Port {
	r.nextRobotMu.RLock()
	defer r.nextRobotMu.RUnlock()
	return r.nextRobot
}

func (r *Robot) setNextRobot(p types.Port) {
	r.nextRobotMu.Lock()
	defer r.nextRobotMu.Unlock()
	r.nextRobot = p
}

func (r *Robot) Flavours() types.FlavoursStock {
	r.flavoursMu.RLock()
	defer r.flavoursMu.RUnlock()
	return r.flavours.Clone()
}

func (r *Robot) setFlavours(stock types.FlavoursStock) {
	r.flavoursMu.Lock()
	defer r.flavoursMu.Unlock()
	r.flavours = stock
}

func (r *Robot) electionStartedFlag() bool {
	r.electionMu.RLock()
	defer r.electionMu.RUnlock()
	return r.electionStarted
}

// tryStartElection sets the single-flight guard and reports whether
// this call was the one to set it (false means an election is already
// in flight).
func (r *Robot) tryStartElection() bool {
	r.electionMu.Lock()
	defer r.electionMu.Unlock()
	if r.electionStarted {
		return false
	}
	r.electionStarted = true
	return true
}

func (r *Robot) clearElectionStarted() {
	r.electionMu.Lock()
	defer r.electionMu.Unlock()
	r.electionStarted = false
}

func (r *Robot) getRobotConn(port types.Port) (*peerConn, bool) {
	r.robotsMu.RLock()
	defer r.robotsMu.RUnlock()
	pc, ok := r.robots[port]
	return pc, ok
}

func (r *Robot) setRobotConn(port types.Port, pc *peerConn) {
	r.robotsMu.Lock()
	defer r.robotsMu.Unlock()
	r.robots[port] = pc
}

func (r *Robot) removeRobot(port types.Port) {
	r.robotsMu.Lock()
	defer r.robotsMu.Unlock()
	if pc, ok := r.robots[port]; ok && pc != nil {
		pc.Close()
	}
	delete(r.robots, port)
}

// aliveRobotPorts returns the ports known in robots, plus self.
func (r *Robot) aliveRobotPorts() []types.Port {
	r.robotsMu.RLock()
	defer r.robotsMu.RUnlock()
	ports := make([]types.Port, 0, len(r.robots)+1)
	ports = append(ports, r.id)
	for p := range r.robots {
		ports = append(ports, p)
	}
	return ports
}

// followerKeys returns the ports currently tracked in robots — every
// other known non-leader peer, whether or not a connection to it has
// been established yet.
func (r *Robot) followerKeys() []types.Port {
	r.robotsMu.RLock()
	defer r.robotsMu.RUnlock()
	keys := make([]types.Port, 0, len(r.robots))
	for p := range r.robots {
		keys = append(keys, p)
	}
	return keys
}

// liveRobotConns returns a snapshot of every connected peer, skipping
// not-yet-connected (nil) entries.
func (r *Robot) liveRobotConns() map[types.Port]*peerConn {
	r.robotsMu.RLock()
	defer r.robotsMu.RUnlock()
	out := make(map[types.Port]*peerConn, len(r.robots))
	for p, c := range r.robots {
		if c != nil {
			out[p] = c
		}
	}
	return out
}

func (r *Robot) getLeaderConn() *peerConn {
	r.leaderMu.RLock()
	defer r.leaderMu.RUnlock()
	return r.leader
}

func (r *Robot) setLeaderConn(pc *peerConn) {
	r.leaderMu.Lock()
	defer r.leaderMu.Unlock()
	if r.leader != nil && r.leader != pc {
		r.leader.Close()
	}
	r.leader = pc
}

func (r *Robot) getPaymentsConn() *peerConn {
	r.paymentsMu.RLock()
	defer r.paymentsMu.RUnlock()
	return r.payments
}

// setPaymentsConn swaps in pc as the Leader's Payments connection.
// Payments replies over the connection a request arrived on, so a
// fresh connection also gets a read loop feeding handleFrame.
func (r *Robot) setPaymentsConn(pc *peerConn) {
	r.paymentsMu.Lock()
	defer r.paymentsMu.Unlock()
	if r.payments != nil && r.payments != pc {
		r.payments.Close()
	}
	fresh := pc != nil && pc.conn != nil && pc != r.payments
	r.payments = pc
	if fresh {
		r.invoker.Spawn(func() {
			readFrames(pc.conn, r.log, func(f wire.Frame) { r.handleFrame(pc.conn, f) })
		})
	}
}

func (r *Robot) withPendingOrders(f func(types.OrdersByRobot)) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	f(r.pendingOrders)
}

func (r *Robot) pendingSnapshot() types.OrdersByRobot {
	r.pendingMu.RLock()
	defer r.pendingMu.RUnlock()
	return r.pendingOrders.Clone()
}

// connectToPeer returns the existing connection to port, lazily
// dialing one if none exists yet. This is the "Followers that are not
// your successor have None for the stream until lazy connection" rule.
func (r *Robot) connectToPeer(port types.Port) (*peerConn, error) {
	if pc, ok := r.getRobotConn(port); ok && pc != nil {
		return pc, nil
	}
	pc, err := connectAndGreet(port, nil)
	if err != nil {
		return nil, err
	}
	r.setRobotConn(port, pc)
	return pc, nil
}

// sendToPeerWithRetry keeps trying to reach a live peer for frame
// starting at port, handling each failure as a dead-peer event and
// advancing to the next surviving ring member, until a send succeeds
// or only this robot remains. It returns the port the frame actually
// reached.
func (r *Robot) sendToPeerWithRetry(port types.Port, frame wire.Frame) types.Port {
	target := port
	for {
		if target == r.id {
			// Nothing alive to send to but ourselves; caller must
			// handle local application of the frame if relevant.
			return target
		}
		pc, err := r.connectToPeer(target)
		if err == nil {
			if sendErr := pc.send(frame); sendErr == nil {
				return target
			}
		}
		r.handleDeadPeer(target)
		target = r.NextRobot()
	}
}
