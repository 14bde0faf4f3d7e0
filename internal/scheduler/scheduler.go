/**
 * @description
 * Time-driven dispatcher over named jobs.
 * The long-lived worker and the cron one-shot both go through dispatch, so a job
 * behaves the same whichever way it was started.
 *
 * @dependencies
 * - github.com/google/uuid: run identifiers
 * - backend/internal/metrics
 *
 * @notes
 * - Operating windows are closed intervals in JST. Outside them a job is a no-op.
 * - Overlapping runs of one job coalesce: in-process by a running flag, across
 *   processes through the Locker (a Postgres advisory lock).
 * - On shutdown no new run starts; in-flight runs finish under their own timeout.
 */

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
)

// Outcome of one dispatch.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeFailed        Outcome = "failed"
	OutcomeSkippedWindow Outcome = "skipped_window"
	OutcomeCoalesced     Outcome = "coalesced"
)

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Window is a closed time-of-day interval in JST.
type Window struct {
	Open  config.ClockTime
	Close config.ClockTime
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.In(clock.JST)
	sec := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return sec >= int(w.Open)*60 && sec <= int(w.Close)*60
}

// Job is one named unit of work. Exactly one of Interval or DailyAt drives it in
// the long-lived mode; a job with neither only runs on demand.
type Job struct {
	Name     string
	Interval time.Duration
	DailyAt  *config.ClockTime
	Window   *Window
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Locker coalesces runs of the same job across processes.
type Locker interface {
	WithJobLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error)
}

type runIDKey struct{}

// RunID returns the run identifier carried by a job context.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Scheduler owns the job table.
type Scheduler struct {
	clock   clock.Clock
	locker  Locker
	metrics *metrics.PipelineMetrics
	timeout time.Duration

	mu      sync.Mutex
	jobs    map[string]*Job
	running map[string]bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. locker may be nil, in which case only in-process
// coalescing applies. timeout is the default per-run bound.
func New(clk clock.Clock, locker Locker, pm *metrics.PipelineMetrics, timeout time.Duration) *Scheduler {
	if pm == nil {
		pm = metrics.Default
	}
	return &Scheduler{
		clock:   clk,
		locker:  locker,
		metrics: pm,
		timeout: timeout,
		jobs:    map[string]*Job{},
		running: map[string]bool{},
	}
}

// Register adds a job to the table.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	if job.Interval > 0 && job.DailyAt != nil {
		return fmt.Errorf("job %s: interval and daily time are exclusive", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %s registered twice", job.Name)
	}
	s.jobs[job.Name] = &job
	return nil
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOnce dispatches a job immediately. The returned error is the job's own.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (Outcome, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.dispatch(ctx, job)
}

// Run starts a loop per scheduled job and blocks until ctx is done and every
// in-flight run has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	var scheduled []*Job
	for _, job := range s.jobs {
		if job.Interval > 0 || job.DailyAt != nil {
			scheduled = append(scheduled, job)
		}
	}
	s.mu.Unlock()

	for _, job := range scheduled {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	logger.Info("Scheduler started with %d jobs", len(scheduled))

	<-ctx.Done()
	logger.Info("Scheduler stopping, waiting for in-flight jobs...")
	s.wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	defer s.wg.Done()

	// interval jobs fire once at startup
	delay := time.Duration(0)
	if job.DailyAt != nil {
		delay = s.untilDaily(*job.DailyAt)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		started := s.clock.Now()
		// in-flight runs survive shutdown; failures are logged by dispatch
		_, _ = s.dispatch(context.WithoutCancel(ctx), job)

		if job.DailyAt != nil {
			timer.Reset(s.untilDaily(*job.DailyAt))
			continue
		}
		next := job.Interval - s.clock.Now().Sub(started)
		if next < 0 {
			next = 0
		}
		timer.Reset(next)
	}
}

// untilDaily is the wait until the next occurrence of at in JST.
func (s *Scheduler) untilDaily(at config.ClockTime) time.Duration {
	now := s.clock.Now()
	next := clock.Midnight(now).Add(time.Duration(at) * time.Minute)
	if !next.After(now) {
		next = clock.Midnight(now).AddDate(0, 0, 1).Add(time.Duration(at) * time.Minute)
	}
	return next.Sub(now)
}

func (s *Scheduler) dispatch(ctx context.Context, job *Job) (Outcome, error) {
	entry := logger.WithJob(job.Name)

	// 1. Operating window
	if job.Window != nil && !job.Window.Contains(s.clock.Now()) {
		entry.Debugf("outside window %s-%s, skipping", job.Window.Open, job.Window.Close)
		s.metrics.RecordJob(job.Name, string(OutcomeSkippedWindow), 0)
		return OutcomeSkippedWindow, nil
	}

	// 2. In-process coalescing
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		entry.Info("previous run still in flight, coalescing")
		s.metrics.RecordJob(job.Name, string(OutcomeCoalesced), 0)
		return OutcomeCoalesced, nil
	}
	s.running[job.Name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	// 3. Run under a timeout, across processes behind the lock
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, runIDKey{}, runID)
	entry = entry.WithField("run", runID)

	started := time.Now()
	entry.Info("run started")
	ran := true
	var err error
	if s.locker != nil {
		ran, err = s.locker.WithJobLock(ctx, job.Name, job.Run)
	} else {
		err = job.Run(ctx)
	}
	elapsed := time.Since(started)

	switch {
	case err != nil:
		entry.WithField("elapsed", elapsed.Round(time.Millisecond)).Errorf("run failed: %v", err)
		s.metrics.RecordJob(job.Name, string(OutcomeFailed), elapsed.Seconds())
		return OutcomeFailed, err
	case !ran:
		entry.Info("another process holds the job lock, coalescing")
		s.metrics.RecordJob(job.Name, string(OutcomeCoalesced), 0)
		return OutcomeCoalesced, nil
	}
	entry.WithField("elapsed", elapsed.Round(time.Millisecond)).Info("run finished")
	s.metrics.RecordJob(job.Name, string(OutcomeOK), elapsed.Seconds())
	return OutcomeOK, nil
}
