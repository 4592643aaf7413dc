package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"newspaper/internal/domain"
)

type stubTasks struct {
	seen map[string]bool
}

func (s *stubTasks) AcquireScheduleTask(_ context.Context, name string, at time.Time) (bool, error) {
	key := name + at.Format(time.RFC3339)
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *stubTasks) ReleaseScheduleTask(_ context.Context, name string, at time.Time) error {
	delete(s.seen, name+at.Format(time.RFC3339))
	return nil
}

type stubQueue struct {
	jobs []domain.Job
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job domain.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Receive(context.Context) (domain.Job, domain.AckFunc, error) {
	return domain.Job{}, nil, context.Canceled
}

func TestTickEnqueuesOncePerSlot(t *testing.T) {
	tasks := &stubTasks{seen: map[string]bool{}}
	q := &stubQueue{}
	svc := NewService(tasks, q, zerolog.Nop())
	slot := time.Date(2024, 5, 12, 10, 0, 12, 0, time.UTC)

	ok, err := svc.Tick(context.Background(), slot)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.Tick(context.Background(), slot.Add(20*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	require.Len(t, q.jobs, 1)
	var payload domain.WeeklyDigestPayload
	require.NoError(t, q.jobs[0].Decode(&payload))
	require.Equal(t, domain.DigestCauseScheduled, payload.Cause)
	require.Equal(t, time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC), payload.ScheduledFor)
}

func TestTickReleasesSlotWhenEnqueueFails(t *testing.T) {
	tasks := &stubTasks{seen: map[string]bool{}}
	q := &stubQueue{err: errors.New("redis down")}
	svc := NewService(tasks, q, zerolog.Nop())
	slot := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)

	ok, err := svc.Tick(context.Background(), slot)
	require.Error(t, err)
	require.False(t, ok)
	require.Empty(t, tasks.seen)

	q.err = nil
	ok, err = svc.Tick(context.Background(), slot)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, q.jobs, 1)
}

func TestTriggerNow(t *testing.T) {
	q := &stubQueue{}
	svc := NewService(&stubTasks{seen: map[string]bool{}}, q, zerolog.Nop())

	job, err := svc.TriggerNow(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.JobWeeklyDigest, job.Kind)
	require.Len(t, q.jobs, 1)
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("europe/moscow")
	require.NoError(t, err)
	require.Equal(t, "Europe/Moscow", loc.String())

	_, err = LoadLocation("  ")
	require.ErrorIs(t, err, ErrInvalidTimezone)
	_, err = LoadLocation("Mars/Olympus")
	require.ErrorIs(t, err, ErrInvalidTimezone)
}
