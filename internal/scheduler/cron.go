package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

// Job names
const (
	JobRefreshPeer   = "refresh-peer"
	JobRefreshAPI    = "refresh-api"
	JobRefreshVoting = "refresh-voting"
	JobBootstrap     = "bootstrap"
)

// ErrJobAlreadyRunning is returned by Trigger while another job holds the crawl slot
var ErrJobAlreadyRunning = errors.New("a crawl job is already running")

// Job is a named unit of work. An empty Schedule registers a job that only
// runs when triggered.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type jobState struct {
	job          Job
	entryID      cron.EntryID
	running      bool
	lastStart    time.Time
	lastDuration time.Duration
	lastError    string
}

// CronScheduler runs the crawl jobs. Jobs share a single slot so two crawls
// never overlap; a job that finds the slot taken is skipped.
type CronScheduler struct {
	cron    *cron.Cron
	metrics *metrics.Metrics
	logger  *logrus.Logger

	jobTimeout     time.Duration
	activeJobs     sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	busy sync.Mutex

	mu   sync.RWMutex
	jobs map[string]*jobState
}

func NewCronScheduler(jobs []Job, jobTimeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}

	cronLogger := cron.PrintfLogger(logger)
	s := &CronScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
		),
		metrics:        m,
		logger:         logger,
		jobTimeout:     jobTimeout,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
		jobs:           make(map[string]*jobState, len(jobs)),
	}
	for _, job := range jobs {
		s.jobs[job.Name] = &jobState{job: job}
	}
	return s
}

// Start registers every scheduled job and starts the cron loop
func (s *CronScheduler) Start() error {
	for _, name := range s.jobNames() {
		state := s.jobs[name]
		if state.job.Schedule == "" {
			continue
		}

		id, err := s.cron.AddFunc(state.job.Schedule, s.createJobWrapper(state.job))
		if err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", name, state.job.Schedule, err)
		}

		s.mu.Lock()
		state.entryID = id
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"job":      name,
			"schedule": state.job.Schedule,
		}).Info("Scheduled job")
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started successfully")
	return nil
}

// Trigger runs a job in the background right away
func (s *CronScheduler) Trigger(name string) error {
	s.mu.RLock()
	state, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "job %q", name)
	}

	if !s.busy.TryLock() {
		return ErrJobAlreadyRunning
	}

	s.activeJobs.Add(1)
	go func() {
		defer s.activeJobs.Done()
		defer s.busy.Unlock()
		s.execute(state.job)
	}()
	return nil
}

// createJobWrapper skips the run when another job holds the crawl slot
func (s *CronScheduler) createJobWrapper(job Job) func() {
	return func() {
		if !s.busy.TryLock() {
			s.logger.WithField("job", job.Name).Warn("Another crawl job is running, skipping")
			return
		}
		defer s.busy.Unlock()

		s.activeJobs.Add(1)
		defer s.activeJobs.Done()
		s.execute(job)
	}
}

// execute runs job with timeout, logging and panic recovery
func (s *CronScheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(s.shutdownCtx, s.jobTimeout)
	defer cancel()

	startTime := time.Now()
	s.setRunning(job.Name, startTime)

	s.logger.WithFields(logrus.Fields{
		"job":       job.Name,
		"timestamp": startTime.UTC(),
	}).Info("Starting scheduled job")

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			s.logger.WithFields(logrus.Fields{
				"job":   job.Name,
				"panic": r,
			}).Error("Job panicked")
		}

		duration := time.Since(startTime)
		s.setFinished(job.Name, duration, err)
		s.metrics.RecordSchedulerJob(job.Name, err == nil, duration)

		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"job":      job.Name,
				"duration": duration.String(),
				"error":    err.Error(),
			}).Error("Job failed")
		} else {
			s.logger.WithFields(logrus.Fields{
				"job":      job.Name,
				"duration": duration.String(),
			}).Info("Job completed successfully")
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.WithFields(logrus.Fields{
				"job":     job.Name,
				"timeout": s.jobTimeout.String(),
			}).Warn("Job timed out")
		}
	}()

	err = job.Run(ctx)
}

func (s *CronScheduler) setRunning(name string, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.jobs[name]
	state.running = true
	state.lastStart = start
}

func (s *CronScheduler) setFinished(name string, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.jobs[name]
	state.running = false
	state.lastDuration = duration
	state.lastError = ""
	if err != nil {
		state.lastError = err.Error()
	}
}

func (s *CronScheduler) Stop() {
	s.logger.Info("Stopping cron scheduler...")

	// Stop accepting new jobs
	ctx := s.cron.Stop()

	// Cancel all running jobs
	s.shutdownCancel()

	// Wait for running jobs to complete (with timeout)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.activeJobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All jobs completed, cron scheduler stopped")
	case <-time.After(1 * time.Minute):
		s.logger.Warn("Timeout waiting for jobs to complete, forcing shutdown")
	}
}

func (s *CronScheduler) jobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSchedulerStatus returns the current status of the scheduler
func (s *CronScheduler) GetSchedulerStatus() map[string]interface{} {
	entries := s.cron.Entries()

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	jobs := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		state := s.jobs[name]
		job := map[string]interface{}{
			"name":     name,
			"schedule": state.job.Schedule,
			"running":  state.running,
		}
		if !state.lastStart.IsZero() {
			job["last_start"] = state.lastStart
			job["last_duration"] = state.lastDuration.String()
		}
		if state.lastError != "" {
			job["last_error"] = state.lastError
		}
		if state.entryID != 0 {
			entry := s.cron.Entry(state.entryID)
			job["next_run"] = entry.Next
			job["prev_run"] = entry.Prev
		}
		jobs = append(jobs, job)
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(jobs),
		"jobs":      jobs,
	}
}
