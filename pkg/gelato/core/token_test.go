package core

import (
	"net"
	"testing"
	"time"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/jabolina/gelato/pkg/gelato/wire"
)

func newTestFollower(t *testing.T, self types.Port) *Robot {
	t.Helper()
	cfg := types.RobotConfig{
		RobotPorts: []types.Port{6001, 6002, 6003},
		Payments:   6999,
	}
	return NewRobot(self, cfg, types.NewDefaultLogger("test"))
}

func attachPipe(t *testing.T, r *Robot, port types.Port, toLeader bool) *pipedFollower {
	t.Helper()
	client, server := net.Pipe()
	pc := newPeerConn(port, client)
	if toLeader {
		r.setLeaderConn(pc)
	} else {
		r.setRobotConn(port, pc)
	}
	pf := &pipedFollower{port: port, frames: make(chan wire.Frame, 8)}
	go readFrames(server, r.log, func(f wire.Frame) { pf.frames <- f })
	return pf
}

func TestHandleFlavourReleased_PreparesAndForwards(t *testing.T) {
	r := newTestFollower(t, 6002)
	leader := attachPipe(t, r, 6001, true)
	next := attachPipe(t, r, 6003, false)

	order := sampleTestOrder(11)
	r.withPendingOrders(func(m types.OrdersByRobot) { m.Insert(6002, order) })

	stock := types.InitialStock()
	r.handleFlavourReleased(stock)

	fin := leader.expect(t, time.Second)
	if f, ok := fin.(wire.FinishPayment); !ok || f.OrderID != 11 || f.Port != 6002 {
		t.Fatalf("expected FinishPayment{11,6002} to leader, got %#v", fin)
	}

	fwd := next.expect(t, time.Second)
	token, ok := fwd.(wire.FlavourReleased)
	if !ok {
		t.Fatalf("expected FlavourReleased forwarded, got %#v", fwd)
	}
	want := stock[types.Vanilla] - order.Containers[0].PerFlavourAmount()
	if token.Stock[types.Vanilla] != want {
		t.Fatalf("expected vanilla deducted to %d, got %d", want, token.Stock[types.Vanilla])
	}
}

func TestHandleFlavourReleased_InsufficientStockCancels(t *testing.T) {
	r := newTestFollower(t, 6002)
	leader := attachPipe(t, r, 6001, true)
	next := attachPipe(t, r, 6003, false)

	order := types.Order{
		ID: 12,
		Containers: []types.Container{
			{Size: 60000, Flavours: []types.Flavour{types.Chocolate}},
		},
	}
	r.withPendingOrders(func(m types.OrdersByRobot) { m.Insert(6002, order) })

	stock := types.InitialStock()
	r.handleFlavourReleased(stock)

	cancel := leader.expect(t, time.Second)
	if c, ok := cancel.(wire.CancelPayment); !ok || c.OrderID != 12 || c.Port != 6002 {
		t.Fatalf("expected CancelPayment{12,6002} to leader, got %#v", cancel)
	}

	fwd := next.expect(t, time.Second)
	token, ok := fwd.(wire.FlavourReleased)
	if !ok {
		t.Fatalf("expected FlavourReleased forwarded, got %#v", fwd)
	}
	if token.Stock[types.Chocolate] != stock[types.Chocolate] {
		t.Fatalf("expected stock unchanged on cancel, got %d", token.Stock[types.Chocolate])
	}
}

func TestHandleFlavourReleased_LeaderFeedsDetectorAndDoesNotForward(t *testing.T) {
	leaderCfg := types.RobotConfig{RobotPorts: []types.Port{6001, 6002}, Payments: 6999}
	r := NewRobot(6001, leaderCfg, types.NewDefaultLogger("test"))
	next := attachPipe(t, r, 6002, false)

	stock := types.InitialStock()
	r.handleFlavourReleased(stock)

	select {
	case fed := <-r.tokenFeed:
		if fed[types.Vanilla] != stock[types.Vanilla] {
			t.Fatalf("expected fed stock to match, got %#v", fed)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the Leader to feed the token to its liveness detector")
	}

	select {
	case f := <-next.frames:
		t.Fatalf("leader must not forward the token itself, got %#v", f)
	case <-time.After(100 * time.Millisecond):
	}
}
