package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"newspaper/internal/domain"
	"newspaper/internal/usecase/schedule"
)

type stubLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *stubLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	s := New(time.UTC, nil, time.Minute, zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunOnce(context.Background(), "weekly_digest", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := s.RunOnce(context.Background(), "weekly_digest", func(context.Context) error {
		t.Fatal("пересекающийся запуск не должен выполняться")
		return nil
	})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	wg.Wait()

	ran := false
	require.NoError(t, s.RunOnce(context.Background(), "weekly_digest", func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}

func TestRunOnceRespectsDistributedLease(t *testing.T) {
	locker := &stubLocker{held: map[string]bool{"lock:task:weekly_digest": true}}
	s := New(time.UTC, locker, time.Minute, zerolog.Nop())

	err := s.RunOnce(context.Background(), "weekly_digest", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrAlreadyRunning)

	delete(locker.held, "lock:task:weekly_digest")
	require.NoError(t, s.RunOnce(context.Background(), "weekly_digest", func(context.Context) error { return nil }))
	require.Empty(t, locker.held)
}

func TestTickLeaseDoesNotBlockDigestRun(t *testing.T) {
	locker := &stubLocker{held: map[string]bool{}}
	tickProc := New(time.UTC, locker, time.Minute, zerolog.Nop())
	workerProc := New(time.UTC, locker, time.Minute, zerolog.Nop())

	require.NotEqual(t, schedule.TickTask, string(domain.JobWeeklyDigest))

	digestRan := false
	var workerErr error
	err := tickProc.RunOnce(context.Background(), schedule.TickTask, func(ctx context.Context) error {
		// Воркер забирает задачу, пока аренда срабатывания ещё держится.
		workerErr = workerProc.RunOnce(ctx, string(domain.JobWeeklyDigest), func(context.Context) error {
			digestRan = true
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, workerErr)
	require.True(t, digestRan)
	require.Empty(t, locker.held)
}

func TestRunOncePropagatesError(t *testing.T) {
	s := New(time.UTC, nil, time.Minute, zerolog.Nop())
	boom := errors.New("boom")
	require.ErrorIs(t, s.RunOnce(context.Background(), "x", func(context.Context) error { return boom }), boom)
	require.NoError(t, s.RunOnce(context.Background(), "x", func(context.Context) error { return nil }))
}

func TestScheduleRecurringRejectsBadSpec(t *testing.T) {
	s := New(time.UTC, nil, time.Minute, zerolog.Nop())
	require.Error(t, s.ScheduleRecurring("not a cron", "x", func(context.Context, time.Time) error { return nil }))
	require.NoError(t, s.ScheduleRecurring("0 10 * * 0", "weekly_digest", func(context.Context, time.Time) error { return nil }))
}

func TestNextSundayTenAM(t *testing.T) {
	from := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC) // среда
	next, err := Next("0 10 * * 0", from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC), next)
}
