package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrJobBusy is returned by TriggerNow when the job is already running.
// Manual triggers are rejected rather than queued; the caller can retry.
var ErrJobBusy = errors.New("job is already running")

// ErrUnknownJob is returned when no job with the given name is registered
var ErrUnknownJob = errors.New("unknown job")

// ErrStopped is returned by TriggerNow once Stop has run; no job body may
// begin after Stop returns
var ErrStopped = errors.New("scheduler is stopped")

// Last-run outcome values
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// JobFunc is the body of a recurring job
type JobFunc func(ctx context.Context) error

// JobRecord is a read-only snapshot of one job's state
type JobRecord struct {
	Name            string     `json:"name"`
	IntervalSeconds int        `json:"interval_seconds"`
	Running         bool       `json:"running"`
	LastRun         *time.Time `json:"last_run"`
	LastOutcome     string     `json:"last_outcome"` // SUCCESS, FAILURE, or empty before the first run
	LastError       string     `json:"last_error"`
	NextRun         *time.Time `json:"next_run"`
}

type job struct {
	name     string
	interval time.Duration
	action   JobFunc

	// runMu serializes the job against itself: a timer-driven run and a
	// manual trigger can never execute concurrently.
	runMu sync.Mutex

	mu          sync.Mutex
	running     bool
	lastRun     *time.Time
	lastOutcome string
	lastError   string
	nextRun     *time.Time
}

// Scheduler runs named recurring jobs on independent timers. Each job gets
// its own goroutine so a slow, network-bound job cannot delay the others.
// A failing job run is recorded and does not disturb future runs or other
// jobs. The first scheduled run of every job happens one full interval
// after Start.
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*job
	running  bool
	stopped  bool
	stopChan chan struct{}

	// wg counts every goroutine or caller that may be inside a job body:
	// the per-job timer loops and each manual trigger. Stop waits on it.
	wg sync.WaitGroup
}

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*job),
	}
}

// RegisterJob registers a recurring unit of work. Jobs must be registered
// before Start; registering a duplicate name is an error.
func (s *Scheduler) RegisterJob(name string, interval time.Duration, action JobFunc) error {
	if name == "" {
		return fmt.Errorf("job name must not be empty")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if action == nil {
		return fmt.Errorf("job %s: action must not be nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("job %s: cannot register while scheduler is running", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s: already registered", name)
	}
	s.jobs[name] = &job{
		name:     name,
		interval: interval,
		action:   action,
	}
	return nil
}

// Start launches one timer goroutine per registered job
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopped = false
	s.stopChan = make(chan struct{})

	log.Printf("Starting scheduler with %d jobs...", len(s.jobs))
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(j, s.stopChan)
	}
}

// Stop disables all timers and waits for any in-flight job body to finish,
// timer-driven and manually triggered alike. When Stop returns, no job
// invocation is running and none will begin.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// TriggerNow runs a registered job out-of-band, synchronously with respect
// to the caller. If the job is already running (timer-driven or another
// manual trigger), ErrJobBusy is returned instead of waiting. After Stop
// has run, triggers are rejected with ErrStopped.
func (s *Scheduler) TriggerNow(name string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStopped, name)
	}
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	// Joining wg under s.mu means Stop either sees this trigger (and waits
	// for it) or has already flipped stopped (and this trigger never runs).
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if !j.runMu.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobBusy, name)
	}
	defer j.runMu.Unlock()

	log.Printf("Job %s triggered manually", name)
	return s.execute(j)
}

// Status returns a snapshot of all job records, sorted by name
func (s *Scheduler) Status() []JobRecord {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	records := make([]JobRecord, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, j.snapshot())
	}
	sort.Slice(records, func(i, k int) bool {
		return records[i].Name < records[k].Name
	})
	return records
}

func (s *Scheduler) runLoop(j *job, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.setNextRun(time.Now().Add(j.interval))

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if j.runMu.TryLock() {
				s.execute(j)
				j.runMu.Unlock()
			} else {
				// A manual trigger holds the job; skip this tick rather
				// than piling up invocations.
				log.Printf("Job %s still running, skipping scheduled tick", j.name)
			}
			j.setNextRun(time.Now().Add(j.interval))
		}
	}
}

// execute runs the job body once, isolating errors and panics, and records
// the outcome. Callers must hold j.runMu.
func (s *Scheduler) execute(j *job) error {
	started := time.Now()
	j.setRunning(true)

	err := runSafely(j)

	finished := time.Now()
	j.mu.Lock()
	j.running = false
	j.lastRun = &finished
	if err != nil {
		j.lastOutcome = OutcomeFailure
		j.lastError = err.Error()
	} else {
		j.lastOutcome = OutcomeSuccess
		j.lastError = ""
	}
	j.mu.Unlock()

	if err != nil {
		log.Printf("Job %s failed after %v: %v", j.name, finished.Sub(started), err)
	} else {
		log.Printf("Job %s completed in %v", j.name, finished.Sub(started))
	}
	return err
}

// runSafely invokes the job body, converting a panic into a job failure so
// one bad run cannot take the scheduler down
func runSafely(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.action(context.Background())
}

func (j *job) setRunning(v bool) {
	j.mu.Lock()
	j.running = v
	j.mu.Unlock()
}

func (j *job) setNextRun(t time.Time) {
	j.mu.Lock()
	j.nextRun = &t
	j.mu.Unlock()
}

func (j *job) snapshot() JobRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := JobRecord{
		Name:            j.name,
		IntervalSeconds: int(j.interval / time.Second),
		Running:         j.running,
		LastOutcome:     j.lastOutcome,
		LastError:       j.lastError,
	}
	if j.lastRun != nil {
		t := *j.lastRun
		rec.LastRun = &t
	}
	if j.nextRun != nil {
		t := *j.nextRun
		rec.NextRun = &t
	}
	return rec
}
