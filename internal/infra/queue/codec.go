package queue

import (
	"encoding/json"
	"fmt"

	"newspaper/internal/domain"
)

func encodeJob(job domain.Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return payload, nil
}

func decodeJob(raw []byte) (domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" || job.Kind == "" {
		return domain.Job{}, fmt.Errorf("decode job: missing id or kind")
	}
	return job, nil
}
