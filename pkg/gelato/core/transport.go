package core

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
	"github.com/jpillora/backoff"
)

// Addr renders a Port as a dialable loopback TCP address. Every role
// in this system binds to 0.0.0.0:<port> and is reached by peers over
// loopback/LAN using the same port as the identity.
func Addr(port types.Port) string {
	return fmt.Sprintf(":%d", port)
}

// peerConn is a single outbound connection, serialized so concurrent
// senders never interleave two frames on the wire.
type peerConn struct {
	port types.Port
	conn net.Conn
	mu   sync.Mutex
}

func newPeerConn(port types.Port, conn net.Conn) *peerConn {
	return &peerConn{port: port, conn: conn}
}

// send encodes and writes f, holding the connection's lock for the
// duration of the write. A write failure here is precisely the
// "NetworkError" signal the rest of the system treats as peer death.
func (p *peerConn) send(f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return types.NewParseError("encoding %T: %v", f, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.conn.Write(data); err != nil {
		return types.WrapNetworkError(err, fmt.Sprintf("writing %T to %d", f, p.port))
	}
	return nil
}

func (p *peerConn) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// defaultBackoff is shared by every dial-with-retry path in this
// package (connectAndGreet, and through it the lazy connect-on-demand
// to a ring peer). These are "the other end just hasn't finished
// coming up yet" situations, not permanent failures, so a few backed
// off attempts are worth it before giving up.
func defaultBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    20 * time.Millisecond,
		Max:    500 * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}
}

// dialWithBackoff attempts to connect to port up to maxAttempts times,
// backing off between attempts.
func dialWithBackoff(port types.Port, maxAttempts int) (net.Conn, error) {
	bo := defaultBackoff()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", Addr(port), 2*time.Second)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(bo.Duration())
	}
	return nil, types.WrapNetworkError(lastErr, fmt.Sprintf("dialing %d after %d attempts", port, maxAttempts))
}

// connectAndGreet dials port and sends hello immediately, the pattern
// every "open outbound connection and announce myself" step in the
// election/leadership handlers follows.
func connectAndGreet(port types.Port, hello wire.Frame) (*peerConn, error) {
	conn, err := dialWithBackoff(port, 5)
	if err != nil {
		return nil, err
	}
	pc := newPeerConn(port, conn)
	if hello != nil {
		if err := pc.send(hello); err != nil {
			pc.Close()
			return nil, err
		}
	}
	return pc, nil
}

// FrameListener accepts inbound TCP connections on port and decodes
// each one's byte stream into frames, invoking handle for every frame.
// Frames within a single connection are processed in arrival order;
// across connections no ordering is implied.
type FrameListener struct {
	port     types.Port
	log      types.Logger
	listener net.Listener
}

// Listen binds port and starts accepting connections. Each accepted
// connection is handed to a fresh per-connection read loop spawned via
// invoker, so Listen itself returns as soon as the bind succeeds.
func Listen(port types.Port, log types.Logger, invoker Invoker, handle func(net.Conn, wire.Frame)) (*FrameListener, error) {
	ln, err := net.Listen("tcp", Addr(port))
	if err != nil {
		return nil, types.WrapConfigError(err, fmt.Sprintf("binding port %d", port))
	}
	fl := &FrameListener{port: port, log: log, listener: ln}
	invoker.Spawn(func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Infof("listener on %d stopped accepting: %v", port, err)
				return
			}
			invoker.Spawn(func() {
				readFrames(conn, log, func(f wire.Frame) { handle(conn, f) })
			})
		}
	})
	return fl, nil
}

func (f *FrameListener) Close() error {
	return f.listener.Close()
}

// readFrames pulls bytes off conn, decoding as many frames as the
// buffer holds on each read, and never partially consumes a frame.
func readFrames(conn net.Conn, log types.Logger, onFrame func(wire.Frame)) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				frame, consumed, decodeErr := wire.Decode(buf)
				if decodeErr != nil {
					log.Warnf("discarding malformed frame from %s: %v", conn.RemoteAddr(), decodeErr)
					if consumed == 0 {
						break
					}
					buf = buf[consumed:]
					continue
				}
				if frame == nil {
					break
				}
				buf = buf[consumed:]
				onFrame(frame)
			}
		}
		if err != nil {
			log.Debugf("connection from %s closed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}
