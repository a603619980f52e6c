package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMode(); err != nil {
		return err
	}
	if err := c.validateInterface(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateChildren(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMode() error {
	switch c.Mode {
	case ModePassive, ModeSemi, ModeAggressive:
		return nil
	default:
		return fmt.Errorf("mode must be one of passive, semi, aggressive (got %q)", c.Mode)
	}
}

func (c *Config) validateInterface() error {
	if !c.Run.DryRun && c.Interface.Name == "" {
		return errors.New("interface.name must be set unless run.dry_run is true")
	}
	for _, ch := range c.Interface.Channels {
		if ch <= 0 {
			return fmt.Errorf("interface.channels contains invalid channel %d", ch)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.MaxDays < 0 {
		return errors.New("storage.max_days must not be negative")
	}
	if c.Storage.MaxBytes < 0 {
		return errors.New("storage.max_bytes must not be negative")
	}
	if c.Storage.LowSpaceBytes < 0 {
		return errors.New("storage.low_space_bytes must not be negative")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.BackoffInitialSecs <= 0 {
		return errors.New("supervisor.backoff_initial_secs must be positive")
	}
	if c.Supervisor.BackoffCapSecs < c.Supervisor.BackoffInitialSecs {
		return errors.New("supervisor.backoff_cap_secs must not be below backoff_initial_secs")
	}
	if c.Supervisor.JitterFrac < 0 || c.Supervisor.JitterFrac > 1 {
		return errors.New("supervisor.jitter_frac must be between 0 and 1")
	}
	if c.Supervisor.GiveUpAfter < 0 {
		return errors.New("supervisor.give_up_after must not be negative")
	}
	return nil
}

func (c *Config) validateChildren() error {
	seen := make(map[string]struct{}, len(c.Children))
	for _, child := range c.Children {
		name := strings.TrimSpace(child.Name)
		if name == "" {
			return errors.New("children entries require a name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate child name %q", name)
		}
		seen[name] = struct{}{}
		if child.Enabled && len(child.Command) == 0 {
			return fmt.Errorf("child %q is enabled but has no command", name)
		}
	}
	return nil
}

func (c *Config) validateRun() error {
	for key, value := range map[string]int{
		"run.runtime_minutes":    c.Run.RuntimeMinutes,
		"run.tick_seconds":       c.Run.TickSeconds,
		"run.stop_grace_seconds": c.Run.StopGraceSeconds,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
