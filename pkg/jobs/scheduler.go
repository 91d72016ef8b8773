package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/observability"
)

// ErrUnknownJob is returned by RunNow for names that were never added
var ErrUnknownJob = errors.New("unknown job")

// ErrJobPanicked wraps a panic raised by a job run
var ErrJobPanicked = errors.New("job panicked")

// Job is a named periodic task
type Job struct {
	Name     string
	Schedule string
	// Timeout bounds a single run; zero means no limit
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs jobs on their cron schedules
type Scheduler struct {
	cron    *cron.Cron
	logger  logrus.FieldLogger
	metrics *observability.Metrics

	mu   sync.Mutex
	base context.Context
	jobs map[string]Job
}

// NewScheduler creates a stopped scheduler. metrics may be nil.
func NewScheduler(logger logrus.FieldLogger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			// Recover must sit inside SkipIfStillRunning so a panic still hands
			// back the running token.
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		logger:  logger,
		metrics: metrics,
		base:    context.Background(),
		jobs:    make(map[string]Job),
	}
}

// Add registers job. Names must be unique and the schedule must parse.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(s.context(), job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", job.Schedule, job.Name, err)
	}
	s.jobs[job.Name] = job
	return nil
}

// Start begins scheduling. Runs inherit ctx and stop receiving new ticks
// once it is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	s.logger.WithField("jobs", s.Names()).Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow runs a registered job immediately on the calling goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

// Names lists the registered jobs in order
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	logger := s.logger.WithField("job", job.Name)
	start := time.Now()
	err := safeRun(ctx, job)

	status := "success"
	switch {
	case errors.Is(err, ErrJobPanicked):
		status = "panic"
		logger.WithError(err).Error("job panicked")
	case err != nil:
		status = "error"
		logger.WithError(err).Error("job failed")
	default:
		logger.WithField("duration", time.Since(start).String()).Debug("job finished")
	}
	if s.metrics != nil {
		s.metrics.JobRunsTotal.WithLabelValues(job.Name, status).Inc()
	}
	return err
}

// safeRun turns a panic in job.Run into ErrJobPanicked
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// cronLogger routes cron's own logging to logrus. Scheduling chatter goes
// to debug.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	out := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
