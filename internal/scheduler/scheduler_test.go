package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signal-backtest/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	calls    atomic.Int32
	errs     []error // returned in order, then nil
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }

func (j *stubJob) Run(context.Context) error {
	n := int(j.calls.Add(1))
	if n <= len(j.errs) {
		return j.errs[n-1]
	}
	return nil
}

func newTestScheduler() *Scheduler {
	return New(logger.Nop(), WithRetry(2, time.Millisecond))
}

func TestValidateSchedule(t *testing.T) {
	for _, expr := range []string{"0 18 * * 1-5", "*/5 * * * *", "30 0 18 * * *", "@daily"} {
		assert.NoError(t, ValidateSchedule(expr), expr)
	}
	for _, expr := range []string{"", "every day", "61 * * * *"} {
		assert.Error(t, ValidateSchedule(expr), expr)
	}
}

func TestAddAndRemoveJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&stubJob{name: "b", schedule: "@hourly"}))
	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "@daily"}))
	assert.Error(t, s.AddJob(&stubJob{name: "a", schedule: "@daily"}))
	assert.Error(t, s.AddJob(&stubJob{name: "c", schedule: "nonsense"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())
	assert.Len(t, s.cron.Entries(), 2)

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Len(t, s.cron.Entries(), 1)
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJobNowRetries(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "flaky", schedule: "@daily", errs: []error{errors.New("once"), errors.New("twice")}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), job.calls.Load())

	history, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	assert.Len(t, history.Results, 1)
}

func TestRunJobNowGivesUp(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("down")
	job := &stubJob{name: "broken", schedule: "@daily", errs: []error{boom, boom, boom, boom}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "down", result.Error)
	assert.Equal(t, int32(3), job.calls.Load())

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "bad-input", schedule: "@daily", errs: []error{Permanent(errors.New("rejected"))}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobNow(context.Background(), "bad-input")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), job.calls.Load())

	assert.NoError(t, Permanent(nil))
}

func TestRunJobNowUnknown(t *testing.T) {
	_, err := newTestScheduler().RunJobNow(context.Background(), "missing")
	assert.Error(t, err)
	assert.Error(t, newTestScheduler().RunJob("missing"))
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	s := New(logger.Nop(), WithRetry(5, time.Hour))
	job := &stubJob{name: "slow", schedule: "@daily", errs: []error{errors.New("x"), errors.New("x")}}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := s.RunJobNow(ctx, "slow")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "retry aborted")
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.GetSuccessRate())
	assert.Empty(t, h.GetLatestResults(5))

	for i := 0; i < 120; i++ {
		h.AddResult(JobResult{Success: i%4 != 0})
	}

	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, h.GetFailedResults(), 25)
	assert.InDelta(t, 0.75, h.GetSuccessRate(), 1e-9)
}
