// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"log/slog"
	"time"
)

// Defaults
const (
	DefaultReplyTimeout       = 5 * time.Second
	DefaultAttachPollInterval = 100 * time.Millisecond
	DefaultAttachPollBudget   = 100
	DefaultQueueDepth         = 32
)

// Config holds hub settings
type Config struct {
	// ReplyTimeout bounds every synchronous request
	ReplyTimeout time.Duration

	// AttachPollInterval and AttachPollBudget bound the wait for baseline
	// peripherals in hub variants
	AttachPollInterval time.Duration
	AttachPollBudget   int

	// SettleDelay is waited after registering the notify handler and
	// before enabling notifications. Some adapters need a moment here.
	SettleDelay time.Duration

	// QueueDepth is the per-peripheral inbound value queue size
	QueueDepth int

	// MAC and Name select the hub when the variant connects the transport
	MAC  string
	Name string

	Logger      *slog.Logger
	Diagnostics func(error)
}

// Option modifies a Config
type Option func(*Config)

// DefaultConfig returns the default hub configuration
func DefaultConfig() Config {
	return Config{
		ReplyTimeout:       DefaultReplyTimeout,
		AttachPollInterval: DefaultAttachPollInterval,
		AttachPollBudget:   DefaultAttachPollBudget,
		QueueDepth:         DefaultQueueDepth,
	}
}

// WithReplyTimeout sets the synchronous request bound
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReplyTimeout = d }
}

// WithAttachPoll sets the baseline attach poll interval and budget
func WithAttachPoll(interval time.Duration, budget int) Option {
	return func(c *Config) {
		c.AttachPollInterval = interval
		c.AttachPollBudget = budget
	}
}

// WithSettleDelay sets the delay before notifications are enabled
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) { c.SettleDelay = d }
}

// WithQueueDepth sets the per-peripheral value queue size
func WithQueueDepth(n int) Option {
	return func(c *Config) { c.QueueDepth = n }
}

// WithMAC selects the hub by hardware address
func WithMAC(mac string) Option {
	return func(c *Config) { c.MAC = mac }
}

// WithName selects the hub by advertised name
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithDiagnostics receives errors the hub contains instead of returning:
// malformed frames, values for empty ports, rejected fire-and-forget
// commands and low voltage alerts.
func WithDiagnostics(fn func(error)) Option {
	return func(c *Config) { c.Diagnostics = fn }
}

func (c *Config) normalize() {
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.AttachPollInterval <= 0 {
		c.AttachPollInterval = DefaultAttachPollInterval
	}
	if c.AttachPollBudget < 0 {
		c.AttachPollBudget = 0
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.Logger == nil {
		c.Logger = DefaultLogger()
	}
}
