package hwmon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestNewAdapterMonitor(t *testing.T) {
	if m := NewAdapterMonitor("", nil, nil); m != nil {
		t.Error("expected nil monitor for empty interface")
	}
	if m := NewAdapterMonitor("  ", nil, nil); m != nil {
		t.Error("expected nil monitor for blank interface")
	}
	m := NewAdapterMonitor("wlan1", nil, nil)
	if m == nil {
		t.Fatal("expected non-nil monitor")
	}
	if m.iface != "wlan1" {
		t.Errorf("iface = %q, want wlan1", m.iface)
	}
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *AdapterMonitor
	if m.Running() {
		t.Error("nil monitor should not be running")
	}
	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Errorf("Start on nil monitor: %v", err)
	}
}

func TestStopUnstartedIsSafe(t *testing.T) {
	m := NewAdapterMonitor("wlan1", nil, nil)
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Error("unstarted monitor should not be running")
	}
}

func TestBuildMatcher(t *testing.T) {
	m := NewAdapterMonitor("wlan1", nil, nil)
	matcher := m.buildMatcher()

	add := netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan1"},
	}
	if !matcher.Evaluate(add) {
		t.Error("matcher should accept net add events")
	}
	remove := netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan1"},
	}
	if !matcher.Evaluate(remove) {
		t.Error("matcher should accept net remove events")
	}
	block := netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "block"},
	}
	if matcher.Evaluate(block) {
		t.Error("matcher should reject other subsystems")
	}
}

func TestHandleEvent(t *testing.T) {
	var calls []bool
	m := NewAdapterMonitor("wlan1", nil, func(present bool) { calls = append(calls, present) })

	m.handleEvent(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan0"},
	})
	if len(calls) != 0 {
		t.Fatal("other interfaces should be ignored")
	}

	m.handleEvent(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan1"},
	})
	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan1"},
	})
	if len(calls) != 2 || calls[0] != false || calls[1] != true {
		t.Fatalf("calls = %v, want [false true]", calls)
	}
}

func TestHandleEventInterfaceFromDevpath(t *testing.T) {
	var present bool
	m := NewAdapterMonitor("wlan1", nil, func(p bool) { present = p })
	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "net", "DEVPATH": "/devices/platform/soc/usb/net/wlan1"},
	})
	if !present {
		t.Error("interface name should fall back to DEVPATH tail")
	}
}

func TestReadTemperature(t *testing.T) {
	root := t.TempDir()
	oldRoot := thermalRoot
	thermalRoot = root
	t.Cleanup(func() { thermalRoot = oldRoot })

	if _, ok := ReadTemperature(); ok {
		t.Fatal("no zones should report ok=false")
	}

	for i, milli := range []string{"42500\n", "61250\n", "garbage"} {
		zone := filepath.Join(root, "thermal_zone"+string(rune('0'+i)))
		if err := os.MkdirAll(zone, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(zone, "temp"), []byte(milli), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	celsius, ok := ReadTemperature()
	if !ok {
		t.Fatal("zones present should report ok")
	}
	if celsius != 61.25 {
		t.Fatalf("celsius = %v, want hottest zone 61.25", celsius)
	}
}
