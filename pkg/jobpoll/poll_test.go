package jobpoll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedJob returns the given statuses in order, then keeps returning the last one.
type scriptedJob struct {
	statuses []Status
	polls    int
}

func (s *scriptedJob) poll(context.Context) (Job[string], error) {
	i := s.polls
	s.polls++
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	job := Job[string]{ID: "42", Status: s.statuses[i]}
	switch job.Status {
	case StatusDone:
		job.Value = "payload"
	case StatusFailed:
		job.Message = "syntax error at or near SELEC"
	}
	return job, nil
}

// recordingSleep records requested sleeps without blocking.
type recordingSleep struct {
	slept []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func TestWait_DoneAfterPending(t *testing.T) {
	job := &scriptedJob{statuses: []Status{StatusPending, StatusPending, StatusDone}}
	rec := &recordingSleep{}

	value, err := Wait(context.Background(), Config{Kind: "test", Interval: time.Second, Sleep: rec.sleep}, job.poll)
	require.NoError(t, err)

	assert.Equal(t, "payload", value)
	assert.Equal(t, 3, job.polls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.slept)
}

func TestWait_FailedImmediately(t *testing.T) {
	job := &scriptedJob{statuses: []Status{StatusFailed, StatusDone}}
	rec := &recordingSleep{}

	_, err := Wait(context.Background(), Config{Interval: time.Second, Sleep: rec.sleep}, job.poll)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrJobFailed))
	var failed *JobFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "42", failed.JobID)
	assert.Equal(t, 1, failed.Polls)
	assert.Contains(t, failed.Error(), "syntax error")

	assert.Equal(t, 1, job.polls, "no polls after a failed status")
	assert.Empty(t, rec.slept)
}

func TestWait_PollError(t *testing.T) {
	boom := errors.New("connection reset")
	poll := func(context.Context) (Job[int], error) {
		return Job[int]{}, boom
	}

	_, err := Wait(context.Background(), Config{Sleep: (&recordingSleep{}).sleep}, poll)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrJobFailed))
}

func TestWait_MaxPolls(t *testing.T) {
	job := &scriptedJob{statuses: []Status{StatusPending}}

	_, err := Wait(context.Background(), Config{MaxPolls: 4, Sleep: (&recordingSleep{}).sleep}, job.poll)
	assert.ErrorIs(t, err, ErrPollLimit)
	assert.Equal(t, 4, job.polls)
}

func TestWait_ContextCancelledWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &scriptedJob{statuses: []Status{StatusPending}}
	poll := func(ctx context.Context) (Job[string], error) {
		cancel()
		return job.poll(ctx)
	}

	_, err := Wait(ctx, Config{Interval: time.Hour}, poll)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, job.polls)
}

func TestWait_InvalidConfig(t *testing.T) {
	job := &scriptedJob{statuses: []Status{StatusDone}}

	_, err := Wait(context.Background(), Config{Interval: -time.Second}, job.poll)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Wait(context.Background(), Config{MaxPolls: -1}, job.poll)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Wait[string](context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, 0, job.polls)
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepContext(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "done", StatusDone.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
