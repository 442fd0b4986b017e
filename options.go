package iap

import (
	"log/slog"
	"time"

	"github.com/xraph/iap/event"
	"github.com/xraph/iap/plugin"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
		c.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(c *Coordinator) {
		_ = c.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.plugins.WithTimeout(d)
	}
}

// WithBus publishes events on an existing bus instead of a private one.
func WithBus(b *event.Bus) Option {
	return func(c *Coordinator) {
		if b != nil {
			c.bus = b
		}
	}
}

// WithRestoreOnConnect controls whether Initialize restores previously
// confirmed transactions once connected. Enabled by default.
func WithRestoreOnConnect(enabled bool) Option {
	return func(c *Coordinator) {
		c.restoreOnConnect = enabled
	}
}

// WithAttemptTimeout fails an attempt that has not been resolved within d.
// Zero, the default, waits indefinitely. A deferred attempt stops its timer.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.attemptTimeout = d
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
