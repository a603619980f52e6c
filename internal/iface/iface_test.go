package iface

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"kestrel/internal/services"
)

type call struct {
	name string
	args []string
}

func recordingSetup(fail string) (*Setup, *[]call) {
	var calls []call
	s := &Setup{
		Interface: "wlan1",
		Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			calls = append(calls, call{name: name, args: args})
			joined := name + " " + strings.Join(args, " ")
			if fail != "" && strings.Contains(joined, fail) {
				return []byte("command failed"), errors.New("exit status 1")
			}
			return nil, nil
		},
	}
	return s, &calls
}

func TestSetMonitorModeSequence(t *testing.T) {
	s, calls := recordingSetup("")
	if err := s.SetMonitorMode(context.Background()); err != nil {
		t.Fatalf("SetMonitorMode: %v", err)
	}
	want := []string{
		"ip link set wlan1 down",
		"iw dev wlan1 set type monitor",
		"ip link set wlan1 up",
	}
	if len(*calls) != len(want) {
		t.Fatalf("got %d commands, want %d", len(*calls), len(want))
	}
	for i, c := range *calls {
		got := c.name + " " + strings.Join(c.args, " ")
		if got != want[i] {
			t.Fatalf("step %d = %q, want %q", i, got, want[i])
		}
	}
}

func TestSetMonitorModeStopsOnFailure(t *testing.T) {
	s, calls := recordingSetup("set type monitor")
	err := s.SetMonitorMode(context.Background())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want ErrExternalTool", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("commands after failure = %d, want 2", len(*calls))
	}
}

func TestSetChannel(t *testing.T) {
	s, calls := recordingSetup("")
	if err := s.SetChannel(context.Background(), 44); err != nil {
		t.Fatalf("SetChannel: %v", err)
	}
	got := (*calls)[0]
	if got.name != "iw" || strings.Join(got.args, " ") != "dev wlan1 set channel 44" {
		t.Fatalf("command = %s %v", got.name, got.args)
	}
}

func TestSetRegulatoryDomainEmptyIsNoop(t *testing.T) {
	s, calls := recordingSetup("")
	if err := s.SetRegulatoryDomain(context.Background(), ""); err != nil {
		t.Fatalf("SetRegulatoryDomain: %v", err)
	}
	if len(*calls) != 0 {
		t.Fatal("empty country should run nothing")
	}
}

func TestRandomizeMACUsesLocalUnicast(t *testing.T) {
	s, calls := recordingSetup("")
	if err := s.RandomizeMAC(context.Background()); err != nil {
		t.Fatalf("RandomizeMAC: %v", err)
	}
	if len(*calls) != 3 {
		t.Fatalf("got %d commands, want 3", len(*calls))
	}
	addrCall := (*calls)[1]
	mac := addrCall.args[len(addrCall.args)-1]
	if !regexp.MustCompile(`^[0-9a-f]{2}(:[0-9a-f]{2}){5}$`).MatchString(mac) {
		t.Fatalf("mac = %q, not a valid address", mac)
	}
	first, err := strconv.ParseUint(mac[:2], 16, 8)
	if err != nil {
		t.Fatal(err)
	}
	if first&0x01 != 0 {
		t.Fatalf("mac %q is multicast", mac)
	}
	if first&0x02 == 0 {
		t.Fatalf("mac %q is not locally administered", mac)
	}
}
