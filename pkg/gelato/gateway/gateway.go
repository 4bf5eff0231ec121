// Package gateway implements the Payments collaborator: the external
// service the ring's Leader calls out to for every order, authorizing
// or declining it and later acknowledging its settlement.
package gateway

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/jabolina/gelato/pkg/gelato/core"
	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

// declineRate is the fraction of freshly captured orders Payments
// randomly declines, simulating a real authorization gateway's
// failure rate rather than always accepting.
const declineRate = 0.20

// capture records the outcome decided for an order the first time it
// is seen, so a retried CapturePayment — the Leader resending after a
// reconnect, or a new Leader replaying pending state after a handover
// — is answered identically instead of being re-decided.
type capture struct {
	order    types.Order
	accepted bool
}

// Gateway is the Payments actor: a single TCP listener, one handler
// per inbound frame, and an idempotency ledger keyed by order id.
type Gateway struct {
	port    types.Port
	log     types.Logger
	invoker core.Invoker
	rng     *rand.Rand

	mu       sync.Mutex
	inFlight map[uint16]capture

	listener *core.FrameListener
}

// New builds a Payments gateway bound to port. Call Start to bring it
// up.
func New(port types.Port, log types.Logger) *Gateway {
	return &Gateway{
		port:     port,
		log:      log,
		invoker:  core.NewInvoker(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inFlight: make(map[uint16]capture),
	}
}

// Start binds the listener and begins serving requests.
func (g *Gateway) Start() error {
	ln, err := core.Listen(g.port, g.log, g.invoker, g.handleFrame)
	if err != nil {
		return err
	}
	g.listener = ln
	return nil
}

// Stop closes the listener.
func (g *Gateway) Stop() error {
	if g.listener == nil {
		return nil
	}
	return g.listener.Close()
}

func (g *Gateway) handleFrame(conn net.Conn, f wire.Frame) {
	switch m := f.(type) {
	case wire.CapturePayment:
		g.handleCapture(conn, m.Order)
	case wire.FinishPayment:
		g.handleSettle(conn, m.OrderID)
	case wire.CancelPayment:
		g.handleSettle(conn, m.OrderID)
	case wire.NewLeader:
		g.log.Infof("payments: leader changed to %d", m.LeaderPort)
	default:
		g.log.Warnf("payments: unexpected frame %#v", f)
	}
}

// handleCapture authorizes or declines order, replying over the same
// connection the request arrived on — the Leader's single persistent
// stream to Payments — and remembering the decision so a duplicate
// CapturePayment for the same order id never gets re-decided.
func (g *Gateway) handleCapture(conn net.Conn, order types.Order) {
	g.mu.Lock()
	c, seen := g.inFlight[order.ID]
	if !seen {
		c = capture{order: order, accepted: g.rng.Float64() >= declineRate}
		g.inFlight[order.ID] = c
	}
	g.mu.Unlock()

	var reply wire.Frame
	if c.accepted {
		reply = wire.PaymentAccepted{Order: order}
	} else {
		reply = wire.PaymentDeclined{Order: order}
	}
	g.reply(conn, reply)
}

// handleSettle clears the idempotency ledger entry for orderID and
// acknowledges with OrderDone. Both FinishPayment and CancelPayment
// settle the same way from Payments' point of view: the order is no
// longer in flight either way.
func (g *Gateway) handleSettle(conn net.Conn, orderID uint16) {
	g.mu.Lock()
	delete(g.inFlight, orderID)
	g.mu.Unlock()
	g.reply(conn, wire.OrderDone{OrderID: orderID})
}

func (g *Gateway) reply(conn net.Conn, f wire.Frame) {
	data, err := wire.Encode(f)
	if err != nil {
		g.log.Warnf("payments: encoding reply %T: %v", f, err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		g.log.Warnf("payments: writing reply to %s: %v", conn.RemoteAddr(), err)
	}
}
