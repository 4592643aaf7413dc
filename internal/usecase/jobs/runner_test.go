package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"newspaper/internal/domain"
)

type stubStatuses struct {
	attempts map[string]int
	done     map[string]bool
}

func newStubStatuses() *stubStatuses {
	return &stubStatuses{attempts: map[string]int{}, done: map[string]bool{}}
}

func (s *stubStatuses) EnsureJob(_ context.Context, jobID string, _ domain.JobKind) (bool, int, error) {
	if s.done[jobID] {
		return true, s.attempts[jobID], nil
	}
	s.attempts[jobID]++
	return false, s.attempts[jobID], nil
}

func (s *stubStatuses) MarkJobDone(_ context.Context, jobID string) error {
	s.done[jobID] = true
	return nil
}

type stubAlerter struct{ texts []string }

func (a *stubAlerter) Alert(_ context.Context, text string) error {
	a.texts = append(a.texts, text)
	return nil
}

type ackRecorder struct{ results []bool }

func (a *ackRecorder) fn() domain.AckFunc {
	return func(success bool) error {
		a.results = append(a.results, success)
		return nil
	}
}

func newTestRunner(statuses domain.JobStatusRepo, alerter domain.Alerter, maxAttempts int) *Runner {
	return NewRunner(nil, statuses, alerter, Options{MaxAttempts: maxAttempts}, zerolog.Nop())
}

func mustJob(t *testing.T, kind domain.JobKind, payload any) domain.Job {
	t.Helper()
	job, err := domain.NewJob(kind, payload)
	require.NoError(t, err)
	return job
}

func TestProcessCompletesAndMarksDone(t *testing.T) {
	statuses := newStubStatuses()
	r := newTestRunner(statuses, nil, 3)
	var got []int64
	r.Handle(domain.JobPostCreated, Decoded(r, func(_ context.Context, p domain.PostCreatedPayload) error {
		got = append(got, p.PostID)
		return nil
	}))

	job := mustJob(t, domain.JobPostCreated, domain.PostCreatedPayload{PostID: 9})
	acks := &ackRecorder{}
	r.Process(context.Background(), job, acks.fn(), zerolog.Nop())

	require.Equal(t, []int64{9}, got)
	require.Equal(t, []bool{true}, acks.results)
	require.True(t, statuses.done[job.ID])
}

func TestProcessRetriesThenGivesUp(t *testing.T) {
	statuses := newStubStatuses()
	alerter := &stubAlerter{}
	r := newTestRunner(statuses, alerter, 3)
	calls := 0
	r.Handle(domain.JobSendEmail, func(context.Context, domain.Job) error {
		calls++
		return errors.New("smtp down")
	})

	job := mustJob(t, domain.JobSendEmail, domain.SendEmailPayload{})
	acks := &ackRecorder{}
	for i := 0; i < 3; i++ {
		r.Process(context.Background(), job, acks.fn(), zerolog.Nop())
	}

	require.Equal(t, 3, calls)
	require.Equal(t, []bool{false, false, true}, acks.results)
	require.True(t, statuses.done[job.ID])
	require.Len(t, alerter.texts, 1)
}

func TestProcessSkipsAlreadyDone(t *testing.T) {
	statuses := newStubStatuses()
	r := newTestRunner(statuses, nil, 3)
	calls := 0
	r.Handle(domain.JobWeeklyDigest, func(context.Context, domain.Job) error {
		calls++
		return nil
	})

	job := mustJob(t, domain.JobWeeklyDigest, domain.WeeklyDigestPayload{Cause: domain.DigestCauseManual})
	acks := &ackRecorder{}
	r.Process(context.Background(), job, acks.fn(), zerolog.Nop())
	r.Process(context.Background(), job, acks.fn(), zerolog.Nop())

	require.Equal(t, 1, calls)
	require.Equal(t, []bool{true, true}, acks.results)
}

func TestProcessRecoversPanic(t *testing.T) {
	r := newTestRunner(newStubStatuses(), nil, 3)
	r.Handle(domain.JobSendEmail, func(context.Context, domain.Job) error {
		panic("boom")
	})

	acks := &ackRecorder{}
	r.Process(context.Background(), mustJob(t, domain.JobSendEmail, domain.SendEmailPayload{}), acks.fn(), zerolog.Nop())
	require.Equal(t, []bool{false}, acks.results)
}

func TestProcessUnknownKindAndBadPayloadComplete(t *testing.T) {
	r := newTestRunner(newStubStatuses(), nil, 3)
	r.Handle(domain.JobPostCreated, Decoded(r, func(context.Context, domain.PostCreatedPayload) error {
		t.Fatal("обработчик не должен вызываться")
		return nil
	}))

	acks := &ackRecorder{}
	r.Process(context.Background(), domain.Job{ID: "a", Kind: "unknown"}, acks.fn(), zerolog.Nop())
	r.Process(context.Background(), domain.Job{ID: "b", Kind: domain.JobPostCreated, Payload: []byte("{broken")}, acks.fn(), zerolog.Nop())
	r.Process(context.Background(), domain.Job{Kind: domain.JobPostCreated}, acks.fn(), zerolog.Nop())

	require.Equal(t, []bool{true, true, true}, acks.results)
}

func TestProcessWithoutStatusRepo(t *testing.T) {
	r := newTestRunner(nil, nil, 2)
	r.Handle(domain.JobSendEmail, func(context.Context, domain.Job) error { return errors.New("fail") })

	acks := &ackRecorder{}
	r.Process(context.Background(), mustJob(t, domain.JobSendEmail, domain.SendEmailPayload{}), acks.fn(), zerolog.Nop())
	require.Equal(t, []bool{false}, acks.results)
}
