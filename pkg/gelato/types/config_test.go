package types

import (
	"strings"
	"testing"
)

func TestParseRobotConfig(t *testing.T) {
	cfg, err := ParseRobotConfig(strings.NewReader("6001,6002,6003\n7001,7002\n8001\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SeedLeader() != 6001 {
		t.Errorf("expected seed leader 6001, got %d", cfg.SeedLeader())
	}
	if len(cfg.RobotPorts) != 3 || len(cfg.ScreenPorts) != 2 || cfg.Payments != 8001 {
		t.Errorf("unexpected config: %#v", cfg)
	}
}

func TestParseRobotConfig_RejectsEmptyRobotList(t *testing.T) {
	_, err := ParseRobotConfig(strings.NewReader("\n7001\n8001\n"))
	if err == nil {
		t.Fatal("expected an error for an empty robot port list")
	}
	if KindOf(err) != KindConfig {
		t.Errorf("expected KindConfig, got %v", KindOf(err))
	}
}

func TestParsePaymentsConfig(t *testing.T) {
	cfg, err := ParsePaymentsConfig(strings.NewReader("port=8001\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8001 {
		t.Errorf("expected port 8001, got %d", cfg.Port)
	}
}

func TestParseScreenConfig(t *testing.T) {
	cfg, err := ParseScreenConfig(strings.NewReader("controller-port=9001\n1=9100\n2=9101\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ControllerPort != 9001 {
		t.Errorf("expected controller port 9001, got %d", cfg.ControllerPort)
	}
	port, ok := cfg.PortOf(2)
	if !ok || port != 9101 {
		t.Errorf("expected screen 2 at port 9101, got %d ok=%v", port, ok)
	}
	if _, ok := cfg.PortOf(99); ok {
		t.Error("expected unknown screen id to be absent")
	}
}
