package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job already running")
)

type Job interface {
	Name() string
	// Every is the interval between runs. Zero means the job only runs when
	// triggered through RunOnce.
	Every() time.Duration
	Run(ctx context.Context) error
}

type jobFunc struct {
	name  string
	every time.Duration
	fn    func(ctx context.Context) error
}

func (j jobFunc) Name() string                  { return j.name }
func (j jobFunc) Every() time.Duration          { return j.every }
func (j jobFunc) Run(ctx context.Context) error { return j.fn(ctx) }

func NewJob(name string, every time.Duration, fn func(ctx context.Context) error) Job {
	return jobFunc{name: name, every: every, fn: fn}
}

type entry struct {
	job     Job
	running atomic.Bool
}

// Runner drives periodic jobs. Each job gets its own ticker; a run that is
// still in flight when the next tick arrives makes that tick a no-op, and a
// failing or panicking job never affects the others.
type Runner struct {
	log   *slog.Logger
	clock clockwork.Clock
	jobs  map[string]*entry
	wg    sync.WaitGroup
}

func NewRunner(clock clockwork.Clock, logger *slog.Logger, jobs ...Job) (*Runner, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{log: logger, clock: clock, jobs: make(map[string]*entry, len(jobs))}
	for _, j := range jobs {
		if _, dup := r.jobs[j.Name()]; dup {
			return nil, fmt.Errorf("duplicate job %q", j.Name())
		}
		if j.Every() < 0 {
			return nil, fmt.Errorf("job %q: negative interval", j.Name())
		}
		r.jobs[j.Name()] = &entry{job: j}
	}
	return r, nil
}

func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start launches one loop per periodic job. Loops stop when ctx is done;
// Wait blocks until they and any runs they started have returned.
func (r *Runner) Start(ctx context.Context) {
	for _, name := range r.Names() {
		e := r.jobs[name]
		every := e.job.Every()
		if every == 0 {
			r.log.Info("job registered", "job", name, "mode", "manual")
			continue
		}
		r.log.Info("job registered", "job", name, "every", every.String())
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(ctx, e, every)
		}()
	}
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, e *entry, every time.Duration) {
	ticker := r.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !e.running.CompareAndSwap(false, true) {
				r.log.Warn("job tick skipped, previous run still active", "job", e.job.Name())
				continue
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				defer e.running.Store(false)
				_ = r.execute(ctx, e.job)
			}()
		}
	}
}

// RunOnce runs a job immediately and waits for it. It refuses to start a
// second concurrent run of the same job.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	e, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer e.running.Store(false)
	return r.execute(ctx, e.job)
}

func (r *Runner) execute(ctx context.Context, job Job) (err error) {
	start := r.clock.Now()
	name := job.Name()
	r.log.Info("job started", "job", name)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", name, p)
		}
		elapsed := r.clock.Since(start)
		if err != nil {
			r.log.Error("job failed", "job", name, "duration", elapsed.String(), "err", err)
			return
		}
		r.log.Info("job completed", "job", name, "duration", elapsed.String())
	}()
	return job.Run(ctx)
}
