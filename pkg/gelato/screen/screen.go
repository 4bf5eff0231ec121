// Package screen implements the order-producing Screen client: it
// replays a JSON-lines order file at the ring's current Leader and
// listens for NewLeader notices so it always knows where to send the
// next order.
package screen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jabolina/gelato/pkg/gelato/core"
	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
	"github.com/jpillora/backoff"
)

// Screen is one order-producing client. It keeps a single small
// listener open on its controller port purely to receive NewLeader
// frames; every order is sent over its own short-lived outbound
// connection to whichever port that listener last learned is the
// Leader.
type Screen struct {
	id             int
	controllerPort types.Port
	log            types.Logger
	invoker        core.Invoker

	leaderMu sync.RWMutex
	leader   types.Port

	listener *core.FrameListener
}

// New builds a Screen identified by id, bound to controllerPort for
// leadership notices, initially pointed at initialLeader.
func New(id int, controllerPort, initialLeader types.Port, log types.Logger) *Screen {
	return &Screen{
		id:             id,
		controllerPort: controllerPort,
		log:            log,
		invoker:        core.NewInvoker(),
		leader:         initialLeader,
	}
}

// Start binds the controller listener. Call Replay to begin sending
// orders.
func (s *Screen) Start() error {
	ln, err := core.Listen(s.controllerPort, s.log, s.invoker, s.handleFrame)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Stop closes the controller listener.
func (s *Screen) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Screen) handleFrame(_ net.Conn, f wire.Frame) {
	if nl, ok := f.(wire.NewLeader); ok {
		s.log.Infof("screen %d: new leader is %d", s.id, nl.LeaderPort)
		s.setLeader(nl.LeaderPort)
	}
}

func (s *Screen) Leader() types.Port {
	s.leaderMu.RLock()
	defer s.leaderMu.RUnlock()
	return s.leader
}

func (s *Screen) setLeader(p types.Port) {
	s.leaderMu.Lock()
	defer s.leaderMu.Unlock()
	s.leader = p
}

// Replay reads path as JSON-lines orders, one per line, and sends each
// to the current Leader with pacing between sends. A line that fails
// to parse is logged and skipped — a malformed line never aborts the
// whole run.
func (s *Screen) Replay(path string, pace time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return types.WrapConfigError(err, fmt.Sprintf("opening orders file %s", path))
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var order types.Order
		if err := json.Unmarshal(line, &order); err != nil {
			s.log.Warnf("screen %d: skipping malformed order line: %v", s.id, err)
			continue
		}
		s.sendOrder(order)
		if pace > 0 {
			time.Sleep(pace)
		}
	}
	if err := scanner.Err(); err != nil {
		return types.WrapConfigError(err, "reading orders file")
	}
	return nil
}

func (s *Screen) sendOrder(order types.Order) {
	conn, err := dialWithBackoff(s.Leader(), 5)
	if err != nil {
		s.log.Warnf("screen %d: order %d dropped, leader unreachable: %v", s.id, order.ID, err)
		return
	}
	defer conn.Close()

	data, err := wire.Encode(wire.NewOrder{Order: order})
	if err != nil {
		s.log.Warnf("screen %d: encoding order %d: %v", s.id, order.ID, err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		s.log.Warnf("screen %d: sending order %d: %v", s.id, order.ID, err)
	}
}

func dialWithBackoff(port types.Port, maxAttempts int) (net.Conn, error) {
	bo := &backoff.Backoff{Min: 20 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2, Jitter: true}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", core.Addr(port), 2*time.Second)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(bo.Duration())
	}
	return nil, types.WrapNetworkError(lastErr, fmt.Sprintf("dialing %d after %d attempts", port, maxAttempts))
}
