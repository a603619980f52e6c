// Package plugin provides a build-time registry of optional modules
// hooked into daemon startup and shutdown. Plugins are compiled in and
// selected by name from configuration; there is no runtime discovery.
package plugin

import (
	"fmt"
	"log/slog"
	"sort"

	"kestrel/internal/logging"
)

// Plugin is the minimal lifecycle contract. Init receives the module's
// option table from configuration.
type Plugin interface {
	Init(options map[string]any) error
}

// Shutdowner is implemented by plugins that need teardown during drain.
type Shutdowner interface {
	Shutdown() error
}

var registry = map[string]func() Plugin{}

// Register binds a stable name to a plugin factory. Call from an init
// function; duplicate names panic because they indicate a build defect.
func Register(name string, factory func() Plugin) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("plugin: duplicate registration of %q", name))
	}
	registry[name] = factory
}

// Names returns the registered plugin names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadEnabled instantiates and initializes the named plugins in order.
// Unknown names and Init failures are logged and skipped so one broken
// module cannot take down the rest. Returns the names that loaded and
// the shutdown handles to run at drain.
func LoadEnabled(names []string, options map[string]map[string]any, logger *slog.Logger) ([]string, []Shutdowner) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var loaded []string
	var shutdowns []Shutdowner
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			logger.Warn("unknown plugin skipped", logging.String(logging.FieldPlugin, name))
			continue
		}
		p := factory()
		if err := p.Init(options[name]); err != nil {
			logger.Warn("plugin init failed",
				logging.String(logging.FieldPlugin, name),
				logging.Error(err))
			continue
		}
		loaded = append(loaded, name)
		if s, ok := p.(Shutdowner); ok {
			shutdowns = append(shutdowns, s)
		}
		logger.Info("plugin loaded", logging.String(logging.FieldPlugin, name))
	}
	return loaded, shutdowns
}

// ShutdownAll runs each shutdown handle, isolating failures per plugin.
func ShutdownAll(shutdowns []Shutdowner, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, s := range shutdowns {
		if err := s.Shutdown(); err != nil {
			logger.Warn("plugin shutdown failed", logging.Error(err))
		}
	}
}
