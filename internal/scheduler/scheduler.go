// Package scheduler runs the engine's periodic jobs from a single cadence
// table. A job never overlaps itself; one that outlives its timeout is
// reported as stuck rather than restarted.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/stock-signal-engine/internal/markethours"
)

// ErrJobRunning is returned when a run is requested while one is in flight
var ErrJobRunning = errors.New("job already running")

// ErrUnknownJob is returned for a name not in the cadence table
var ErrUnknownJob = errors.New("unknown job")

// Job outcomes
const (
	OutcomeSuccess        = "success"
	OutcomeFailure        = "failure"
	OutcomeSkippedOverlap = "skipped_overlap"
	OutcomeSkippedClosed  = "skipped_closed"
	OutcomeSkippedLocked  = "skipped_locked"
)

// Job is the work a cadence runs
type Job func(ctx context.Context) error

// Cadence is one row of the schedule
type Cadence struct {
	Name            string
	Interval        time.Duration
	MarketHoursOnly bool
	Timeout         time.Duration
	Run             Job
}

// Locker is a cross-process guard (publish.RedisJobLock)
type Locker interface {
	TryAcquire(ctx context.Context, name string) (func(context.Context) error, bool, error)
}

// Metrics records job runs
type Metrics interface {
	RecordJob(job, outcome string, d time.Duration)
}

// JobStatus describes one job
type JobStatus struct {
	Name           string        `json:"name"`
	Interval       string        `json:"interval"`
	Running        bool          `json:"running"`
	Stuck          bool          `json:"stuck"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	LastFinished   *time.Time    `json:"last_finished,omitempty"`
	LastDuration   time.Duration `json:"last_duration"`
	LastError      string        `json:"last_error,omitempty"`
	Runs           uint64        `json:"runs"`
	Failures       uint64        `json:"failures"`
	SkippedOverlap uint64        `json:"skipped_overlap"`
}

type jobState struct {
	cadence Cadence
	status  JobStatus
}

// Option customizes a Runner
type Option func(*Runner)

// WithLocker adds a distributed lock around every run
func WithLocker(l Locker) Option {
	return func(r *Runner) { r.locker = l }
}

// WithMetrics records job outcomes
func WithMetrics(m Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock overrides the wall clock used for market hours and timing
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner executes cadences
type Runner struct {
	log     zerolog.Logger
	locker  Locker
	metrics Metrics
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*jobState
	wg   sync.WaitGroup
}

// NewRunner builds a Runner from a cadence table
func NewRunner(cadences []Cadence, log zerolog.Logger, opts ...Option) (*Runner, error) {
	r := &Runner{
		log:  log.With().Str("component", "scheduler").Logger(),
		now:  time.Now,
		jobs: make(map[string]*jobState, len(cadences)),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, c := range cadences {
		if c.Name == "" || c.Run == nil || c.Interval <= 0 {
			return nil, fmt.Errorf("invalid cadence %q: name, interval and run are required", c.Name)
		}
		if _, dup := r.jobs[c.Name]; dup {
			return nil, fmt.Errorf("duplicate cadence %q", c.Name)
		}
		if c.Timeout <= 0 {
			c.Timeout = c.Interval
		}
		r.jobs[c.Name] = &jobState{
			cadence: c,
			status:  JobStatus{Name: c.Name, Interval: c.Interval.String()},
		}
	}
	return r, nil
}

// Start ticks every cadence until ctx is cancelled, then waits for in-flight
// runs to return.
func (r *Runner) Start(ctx context.Context) {
	var tickers sync.WaitGroup
	for _, js := range r.jobs {
		tickers.Add(1)
		go func(c Cadence) {
			defer tickers.Done()
			r.loop(ctx, c)
		}(js.cadence)
	}
	r.log.Info().Int("jobs", len(r.jobs)).Msg("Scheduler started")
	tickers.Wait()
	r.wg.Wait()
	r.log.Info().Msg("Scheduler stopped")
}

func (r *Runner) loop(ctx context.Context, c Cadence) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkStuck(c.Name)
			if c.MarketHoursOnly && !inSession(r.now(), c.Interval) {
				r.record(c.Name, OutcomeSkippedClosed, 0)
				continue
			}
			r.Trigger(ctx, c.Name)
		}
	}
}

// inSession is true during the regular session and for one interval after
// the close, so a market-hours job gets a run against the closed bar.
func inSession(t time.Time, interval time.Duration) bool {
	if markethours.IsMarketOpen(t) {
		return true
	}
	if !markethours.IsTradingDay(t) {
		return false
	}
	et := t.In(markethours.ET)
	closeAt := time.Date(et.Year(), et.Month(), et.Day(), markethours.CloseHour, markethours.CloseMinute, 0, 0, markethours.ET)
	since := et.Sub(closeAt)
	return since >= 0 && since < interval
}

// Trigger starts a run in the background unless one is in flight. It
// reports whether a run was started.
func (r *Runner) Trigger(ctx context.Context, name string) bool {
	c, ok := r.begin(name)
	if !ok {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(ctx, c)
	}()
	return true
}

// RunNow runs name synchronously. It returns ErrJobRunning if a run is in
// flight and the job's own error otherwise.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	_, known := r.jobs[name]
	r.mu.Unlock()
	if !known {
		return fmt.Errorf("%s: %w", name, ErrUnknownJob)
	}
	c, ok := r.begin(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	return r.execute(ctx, c)
}

// begin claims the running guard for name
func (r *Runner) begin(name string) (Cadence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	js, ok := r.jobs[name]
	if !ok {
		return Cadence{}, false
	}
	if js.status.Running {
		js.status.SkippedOverlap++
		r.log.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
		r.recordLocked(name, OutcomeSkippedOverlap, 0)
		return Cadence{}, false
	}
	started := r.now()
	js.status.Running = true
	js.status.Stuck = false
	js.status.StartedAt = &started
	return js.cadence, true
}

func (r *Runner) execute(ctx context.Context, c Cadence) error {
	start := r.now()
	log := r.log.With().Str("job", c.Name).Logger()

	var err error
	var release func(context.Context) error
	if r.locker != nil {
		var ok bool
		release, ok, err = r.locker.TryAcquire(ctx, c.Name)
		if err == nil && !ok {
			log.Debug().Msg("Job held by another instance, skipping")
			r.finish(c.Name, start, nil, OutcomeSkippedLocked)
			return nil
		}
	}
	if err == nil {
		runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		err = c.Run(runCtx)
		cancel()
		if release != nil {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn().Err(rerr).Msg("Failed to release job lock")
			}
		}
	}

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		log.Error().Err(err).Dur("duration", r.now().Sub(start)).Msg("Job failed")
	} else {
		log.Info().Dur("duration", r.now().Sub(start)).Msg("Job completed")
	}
	r.finish(c.Name, start, err, outcome)
	return err
}

func (r *Runner) finish(name string, start time.Time, err error, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	js := r.jobs[name]
	finished := r.now()
	d := finished.Sub(start)
	js.status.Running = false
	js.status.Stuck = false
	js.status.StartedAt = nil
	if outcome == OutcomeSkippedLocked {
		r.recordLocked(name, outcome, 0)
		return
	}
	js.status.Runs++
	js.status.LastFinished = &finished
	js.status.LastDuration = d
	js.status.LastError = ""
	if err != nil {
		js.status.Failures++
		js.status.LastError = err.Error()
	}
	r.recordLocked(name, outcome, d)
}

// checkStuck flags a run that has outlived its timeout
func (r *Runner) checkStuck(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkStuckLocked(r.jobs[name])
}

func (r *Runner) checkStuckLocked(js *jobState) {
	if !js.status.Running || js.status.Stuck || js.status.StartedAt == nil {
		return
	}
	if age := r.now().Sub(*js.status.StartedAt); age > js.cadence.Timeout {
		js.status.Stuck = true
		r.log.Error().Str("job", js.cadence.Name).Dur("running_for", age).Dur("timeout", js.cadence.Timeout).
			Msg("Job appears stuck, not restarting")
	}
}

func (r *Runner) record(name, outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(name, outcome, d)
}

func (r *Runner) recordLocked(name, outcome string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordJob(name, outcome, d)
	}
}

// Status returns a snapshot of every job, sorted by name
func (r *Runner) Status() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.jobs))
	for _, js := range r.jobs {
		r.checkStuckLocked(js)
		out = append(out, js.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
