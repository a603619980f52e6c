// Package hwmon watches the wireless adapter over udev netlink and reads
// board temperature from sysfs. Both are best effort: a headless test rig
// or a container without netlink access degrades to "unknown" rather than
// failing the daemon.
package hwmon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"kestrel/internal/logging"
)

// AdapterMonitor listens for udev netlink events on the net subsystem and
// reports when the configured capture interface appears or disappears.
// Removal mid-run is the common field failure (USB adapter brownout), so
// the orchestrator surfaces presence as a gauge.
type AdapterMonitor struct {
	iface    string
	logger   *slog.Logger
	onChange func(present bool)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewAdapterMonitor creates a monitor for the named interface. Returns nil
// when no interface is configured; a nil monitor is safe to use.
func NewAdapterMonitor(iface string, logger *slog.Logger, onChange func(present bool)) *AdapterMonitor {
	iface = strings.TrimSpace(iface)
	if iface == "" {
		return nil
	}
	return &AdapterMonitor{
		iface:    iface,
		logger:   logging.NewComponentLogger(logger, "hwmon"),
		onChange: onChange,
	}
}

// Start begins listening for udev netlink events. Netlink being
// unavailable is non-fatal; hotplug awareness is simply lost.
func (m *AdapterMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; adapter hotplug detection unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "adapter removal will not be noticed until capture fails"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("adapter monitor started",
		logging.String(logging.FieldEventType, "adapter_monitor_started"),
		logging.String("interface", m.iface),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *AdapterMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("adapter monitor stopped",
		logging.String(logging.FieldEventType, "adapter_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *AdapterMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *AdapterMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("adapter monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "adapter_monitor_error"),
			)
		}
	}
}

// buildMatcher matches add/remove events on the net subsystem.
func (m *AdapterMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

func (m *AdapterMonitor) handleEvent(uevent netlink.UEvent) {
	name := interfaceName(uevent)
	if name == "" || name != m.iface {
		return
	}

	present := uevent.Action == netlink.ADD
	m.logger.Info("capture adapter state changed",
		logging.String(logging.FieldEventType, "adapter_state_changed"),
		logging.String("interface", name),
		logging.Bool("present", present),
	)
	if m.onChange != nil {
		m.onChange(present)
	}
}

// interfaceName gets the interface name from a uevent.
func interfaceName(uevent netlink.UEvent) string {
	if name := uevent.Env["INTERFACE"]; name != "" {
		return name
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return parts[len(parts)-1]
}
