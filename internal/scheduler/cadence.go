package scheduler

import "time"

// Job names
const (
	JobSignalRecompute  = "signal-recompute"
	JobDuplicateCleanup = "duplicate-cleanup"
)

// Intervals configures the default cadence table
type Intervals struct {
	Recompute        time.Duration
	RecomputeTimeout time.Duration
	Cleanup          time.Duration
	CleanupTimeout   time.Duration
}

// DefaultIntervals recomputes every 15 minutes and cleans up daily
func DefaultIntervals() Intervals {
	return Intervals{
		Recompute:        15 * time.Minute,
		RecomputeTimeout: 10 * time.Minute,
		Cleanup:          24 * time.Hour,
		CleanupTimeout:   30 * time.Minute,
	}
}

// DefaultCadences is the engine's schedule: signal recomputation during
// market hours and a daily duplicate sweep.
func DefaultCadences(iv Intervals, recompute, cleanup Job) []Cadence {
	return []Cadence{
		{
			Name:            JobSignalRecompute,
			Interval:        iv.Recompute,
			MarketHoursOnly: true,
			Timeout:         iv.RecomputeTimeout,
			Run:             recompute,
		},
		{
			Name:     JobDuplicateCleanup,
			Interval: iv.Cleanup,
			Timeout:  iv.CleanupTimeout,
			Run:      cleanup,
		},
	}
}
