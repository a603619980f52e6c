// Package iface wraps the one-shot radio setup commands (iw, ip) run
// before a capture session starts. Commands are injectable so tests never
// touch real interfaces.
package iface

import (
	"context"
	"crypto/rand"
	"fmt"
	"os/exec"
	"strconv"

	"kestrel/internal/services"
)

// Runner executes an external command, returning combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Setup performs radio configuration against one interface.
type Setup struct {
	Interface string
	Run       Runner
}

// New returns a Setup for the named interface using real commands.
func New(iface string) *Setup {
	return &Setup{Interface: iface, Run: execRunner}
}

func (s *Setup) run(ctx context.Context, op string, name string, args ...string) error {
	runner := s.Run
	if runner == nil {
		runner = execRunner
	}
	output, err := runner(ctx, name, args...)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "iface", op, string(output), err)
	}
	return nil
}

// SetRegulatoryDomain applies the two-letter country code.
func (s *Setup) SetRegulatoryDomain(ctx context.Context, country string) error {
	if country == "" {
		return nil
	}
	return s.run(ctx, "set_regulatory_domain", "iw", "reg", "set", country)
}

// SetMonitorMode brings the interface down, switches it to monitor mode,
// and brings it back up.
func (s *Setup) SetMonitorMode(ctx context.Context) error {
	steps := [][]string{
		{"ip", "link", "set", s.Interface, "down"},
		{"iw", "dev", s.Interface, "set", "type", "monitor"},
		{"ip", "link", "set", s.Interface, "up"},
	}
	for _, step := range steps {
		if err := s.run(ctx, "set_monitor_mode", step[0], step[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// SetChannel tunes the interface to the given channel.
func (s *Setup) SetChannel(ctx context.Context, channel int) error {
	return s.run(ctx, "set_channel", "iw", "dev", s.Interface, "set", "channel", strconv.Itoa(channel))
}

// RandomizeMAC assigns a locally administered unicast MAC. The interface
// must be down while the address changes.
func (s *Setup) RandomizeMAC(ctx context.Context) error {
	mac, err := randomMAC()
	if err != nil {
		return services.Wrap(services.ErrTransient, "iface", "randomize_mac", "generate address", err)
	}
	steps := [][]string{
		{"ip", "link", "set", s.Interface, "down"},
		{"ip", "link", "set", s.Interface, "address", mac},
		{"ip", "link", "set", s.Interface, "up"},
	}
	for _, step := range steps {
		if err := s.run(ctx, "randomize_mac", step[0], step[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// randomMAC returns a locally administered unicast address
// (first octet bit 1 clear, bit 2 set).
func randomMAC() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	buf[0] = (buf[0] | 0x02) &^ 0x01
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		buf[0], buf[1], buf[2], buf[3], buf[4], buf[5]), nil
}
