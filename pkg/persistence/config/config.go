// Package config holds the handful of knobs the persistence core consumes,
// per spec.md §6. Following the teacher's pkg/infrastructure/config
// convention, this is a plain struct with a DefaultConfig constructor —
// no reflective discovery, no YAML parsing. Loading configuration from a
// file or environment is an external collaborator's job (spec.md §1) and
// stays out of this package.
package config

import "time"

// Config holds the knobs recognized by the persistence scheduler and its
// workers.
type Config struct {
	// PersistentPeriod is the fixed-delay tick period (spec.md §4.4).
	PersistentPeriod time.Duration
	// PrepareThreads bounds the build-pool width (spec.md §4.4).
	PrepareThreads int
	// TopNReportPeriod is the minimum interval between non-empty Top-N
	// batches (spec.md §4.2).
	TopNReportPeriod time.Duration
	// EnableDatabaseSession toggles session-cache tracking in a metrics
	// worker's EndOfRound policy (spec.md §6; the policy itself is the
	// worker's concern, not the scheduler's).
	EnableDatabaseSession bool
	// StorageSessionTimeout is how long a metrics worker's session-cache
	// entries live before EndOfRound purges them.
	StorageSessionTimeout time.Duration
	// TopNQueueCapacity bounds a Top-N worker's inbound SPSC queue
	// (spec.md §4.2's "fixed capacity, default 1000").
	TopNQueueCapacity int
	// InitialDelay is how long the scheduler waits after Start before the
	// first tick fires (spec.md §4.4: "initial delay 5 s").
	InitialDelay time.Duration
}

// DefaultConfig returns the defaults named in spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		PersistentPeriod:      25 * time.Second,
		PrepareThreads:        2,
		TopNReportPeriod:      10 * time.Minute,
		EnableDatabaseSession: false,
		StorageSessionTimeout: 70 * time.Second,
		TopNQueueCapacity:     1000,
		InitialDelay:          5 * time.Second,
	}
}

// WithDefaults fills any zero-valued field of cfg with its default,
// mirroring the teacher's pattern of applying defaults at construction
// rather than requiring every caller to build a complete Config by hand.
func WithDefaults(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	d := DefaultConfig()
	out := *cfg
	if out.PersistentPeriod <= 0 {
		out.PersistentPeriod = d.PersistentPeriod
	}
	if out.PrepareThreads <= 0 {
		out.PrepareThreads = d.PrepareThreads
	}
	if out.TopNReportPeriod <= 0 {
		out.TopNReportPeriod = d.TopNReportPeriod
	}
	if out.StorageSessionTimeout <= 0 {
		out.StorageSessionTimeout = d.StorageSessionTimeout
	}
	if out.TopNQueueCapacity <= 0 {
		out.TopNQueueCapacity = d.TopNQueueCapacity
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = d.InitialDelay
	}
	return &out
}
