package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJobRejectsIncomplete(t *testing.T) {
	_, err := decodeJob([]byte(`{"kind":"send_email"}`))
	require.Error(t, err)

	_, err = decodeJob([]byte(`not json`))
	require.Error(t, err)

	job, err := decodeJob([]byte(`{"job_id":"j1","kind":"post_created","payload":{"post_id":7}}`))
	require.NoError(t, err)
	require.Equal(t, "j1", job.ID)
	require.JSONEq(t, `{"post_id":7}`, string(job.Payload))
}
