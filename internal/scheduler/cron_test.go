package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/errors"
	"github.com/kyvra-tech/symbol-nodes-tracker-backend/pkg/metrics"
)

func newTestScheduler(timeout time.Duration, jobs ...Job) *CronScheduler {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewCronScheduler(jobs, timeout, metrics.NewMetrics(), logger)
}

func jobStatus(t *testing.T, s *CronScheduler, name string) map[string]interface{} {
	t.Helper()
	for _, job := range s.GetSchedulerStatus()["jobs"].([]map[string]interface{}) {
		if job["name"] == name {
			return job
		}
	}
	t.Fatalf("job %s not in status", name)
	return nil
}

func waitIdle(t *testing.T, s *CronScheduler, name string) map[string]interface{} {
	t.Helper()
	var status map[string]interface{}
	require.Eventually(t, func() bool {
		status = jobStatus(t, s, name)
		_, started := status["last_start"]
		return started && status["running"] == false
	}, 2*time.Second, 10*time.Millisecond)
	return status
}

func TestNewCronScheduler(t *testing.T) {
	s := newTestScheduler(0)

	require.NotNil(t, s)
	assert.Equal(t, 30*time.Minute, s.jobTimeout)
	assert.NotNil(t, s.cron)
}

func TestCronScheduler_Start(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s := newTestScheduler(time.Minute,
		Job{Name: JobRefreshPeer, Schedule: "0 */5 * * * *", Run: noop},
		Job{Name: JobRefreshVoting, Schedule: "0 13 * * * *", Run: noop},
		Job{Name: JobBootstrap, Run: noop},
	)
	require.NoError(t, s.Start())
	defer s.Stop()

	status := s.GetSchedulerStatus()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, 3, status["job_count"])

	peer := jobStatus(t, s, JobRefreshPeer)
	assert.Contains(t, peer, "next_run")
	assert.NotContains(t, jobStatus(t, s, JobBootstrap), "next_run")
}

func TestCronScheduler_InvalidSchedule(t *testing.T) {
	s := newTestScheduler(time.Minute, Job{Name: JobRefreshAPI, Schedule: "every so often", Run: func(context.Context) error { return nil }})

	err := s.Start()

	require.Error(t, err)
	assert.Contains(t, err.Error(), JobRefreshAPI)
}

func TestCronScheduler_Trigger(t *testing.T) {
	ran := make(chan struct{})
	s := newTestScheduler(time.Minute, Job{Name: JobBootstrap, Run: func(context.Context) error {
		close(ran)
		return nil
	}})

	require.NoError(t, s.Trigger(JobBootstrap))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	status := waitIdle(t, s, JobBootstrap)
	assert.NotContains(t, status, "last_error")
}

func TestCronScheduler_TriggerUnknownJob(t *testing.T) {
	s := newTestScheduler(time.Minute)

	err := s.Trigger("refresh-harvest")

	assert.True(t, apperrors.IsNotFound(err))
}

func TestCronScheduler_JobsDoNotOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := newTestScheduler(time.Minute,
		Job{Name: JobRefreshPeer, Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		}},
		Job{Name: JobRefreshAPI, Run: func(context.Context) error { return nil }},
	)

	require.NoError(t, s.Trigger(JobRefreshPeer))
	<-started

	assert.ErrorIs(t, s.Trigger(JobRefreshAPI), ErrJobAlreadyRunning)
	assert.ErrorIs(t, s.Trigger(JobRefreshPeer), ErrJobAlreadyRunning)

	close(release)
	waitIdle(t, s, JobRefreshPeer)
	require.Eventually(t, func() bool {
		return s.Trigger(JobRefreshAPI) == nil
	}, 2*time.Second, 10*time.Millisecond)
	waitIdle(t, s, JobRefreshAPI)
}

func TestCronScheduler_FailureAndPanic(t *testing.T) {
	s := newTestScheduler(time.Minute,
		Job{Name: JobRefreshAPI, Run: func(context.Context) error { return errors.New("store unavailable") }},
		Job{Name: JobRefreshVoting, Run: func(context.Context) error { panic("nil account") }},
	)

	require.NoError(t, s.Trigger(JobRefreshAPI))
	status := waitIdle(t, s, JobRefreshAPI)
	assert.Equal(t, "store unavailable", status["last_error"])

	require.Eventually(t, func() bool {
		return s.Trigger(JobRefreshVoting) == nil
	}, 2*time.Second, 10*time.Millisecond)
	status = waitIdle(t, s, JobRefreshVoting)
	assert.Contains(t, status["last_error"], "nil account")
}

func TestCronScheduler_JobTimeout(t *testing.T) {
	s := newTestScheduler(20*time.Millisecond, Job{Name: JobRefreshPeer, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	require.NoError(t, s.Trigger(JobRefreshPeer))
	status := waitIdle(t, s, JobRefreshPeer)
	assert.Equal(t, context.DeadlineExceeded.Error(), status["last_error"])
}

func TestCronScheduler_StopCancelsJobs(t *testing.T) {
	started := make(chan struct{})
	s := newTestScheduler(time.Minute, Job{Name: JobRefreshPeer, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, s.Start())

	require.NoError(t, s.Trigger(JobRefreshPeer))
	<-started
	s.Stop()

	assert.Equal(t, context.Canceled.Error(), jobStatus(t, s, JobRefreshPeer)["last_error"])
}
