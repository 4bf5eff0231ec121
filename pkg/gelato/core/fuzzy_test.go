package core

import (
	"testing"
	"time"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"go.uber.org/goleak"
)

// TestRobotLifecycle_StopLeavesNoGoroutines boots a lone bootstrap
// Leader for real over loopback TCP and tears it down, verifying every
// goroutine it spawned — the accept loop, the liveness detector —
// actually exits instead of leaking past Stop.
func TestRobotLifecycle_StopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t,
		// net/http's DNS goroutine and similar runtime housekeeping are
		// not under test here.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	cfg := types.RobotConfig{
		RobotPorts: []types.Port{16001},
		Payments:   16099,
	}
	r := NewRobot(16001, cfg, types.NewDefaultLogger("test"))
	if err := r.Start(cfg.RobotPorts); err != nil {
		t.Fatalf("starting solo robot: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	r.Stop()
	time.Sleep(200 * time.Millisecond)
}
