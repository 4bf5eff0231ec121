package core

import (
	"testing"

	"github.com/jabolina/gelato/pkg/gelato/types"
)

func ports(vs ...int) []types.Port {
	out := make([]types.Port, len(vs))
	for i, v := range vs {
		out[i] = types.Port(v)
	}
	return out
}

func TestRingAfterExcluding_NormalWrap(t *testing.T) {
	ring := ports(5001, 5002, 5003)
	if got := ringAfterExcluding(ring, 5001, 5001); got != 5002 {
		t.Errorf("expected 5002, got %d", got)
	}
	if got := ringAfterExcluding(ring, 5003, 5003); got != 5001 {
		t.Errorf("wraparound expected 5001, got %d", got)
	}
}

func TestRingAfterExcluding_SoleSurvivor(t *testing.T) {
	ring := ports(5001)
	if got := ringAfterExcluding(ring, 5001, 5001); got != 5001 {
		t.Errorf("expected self, got %d", got)
	}
}

func TestRingAfterExcluding_SelfAbsentReturnsSmallest(t *testing.T) {
	// Models the Leader's own next_robot seed: the Leader's port is
	// never itself a ring member.
	ring := ports(5002, 5001, 5003)
	if got := ringAfterExcluding(ring, 5000, 5000); got != 5001 {
		t.Errorf("expected smallest member 5001, got %d", got)
	}
}

func TestRingAfterExcluding_SkipsDeadEntry(t *testing.T) {
	ring := ports(5001, 5002, 5003)
	if got := ringAfterExcluding(ring, 5002, 5002); got != 5003 {
		t.Errorf("expected 5003 skipping dead 5002, got %d", got)
	}
}

func TestRingAfterExcluding_EmptyReturnsExclude(t *testing.T) {
	if got := ringAfterExcluding(nil, 5001, 5001); got != 5001 {
		t.Errorf("expected exclude value back, got %d", got)
	}
}

func TestPortsExcluding(t *testing.T) {
	got := portsExcluding(ports(5001, 5002, 5003), 5002)
	want := ports(5001, 5003)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRemoveContainsMaxPort(t *testing.T) {
	ids := ports(5001, 5002, 5003)
	if !containsPort(ids, 5002) {
		t.Error("expected 5002 to be present")
	}
	reduced := removePort(ids, 5002)
	if containsPort(reduced, 5002) {
		t.Error("5002 should have been removed")
	}
	if maxPort(ids) != 5003 {
		t.Errorf("expected max 5003, got %d", maxPort(ids))
	}
}
