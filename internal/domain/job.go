package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobAccepted   JobStatus = "accepted"
	JobArrived    JobStatus = "arrived"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
	JobDeclined   JobStatus = "declined"
)

func ParseJobStatus(raw string) (JobStatus, error) {
	status := JobStatus(raw)
	switch status {
	case JobPending, JobAccepted, JobArrived, JobInProgress, JobCompleted, JobCancelled, JobDeclined:
		return status, nil
	default:
		return "", fmt.Errorf("unknown job status %q", raw)
	}
}

// Terminal reports whether no further transition is expected for the job.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCancelled, JobDeclined:
		return true
	default:
		return false
	}
}

type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	ServiceType string     `json:"serviceType,omitempty"`
	PatientName string     `json:"patientName,omitempty"`
	Address     string     `json:"address,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Amount      float64    `json:"amount,omitempty"`
}

// UnmarshalJSON accepts numeric or string ids under either "id" or "_id".
func (j *Job) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID          json.RawMessage `json:"id"`
		MongoID     json.RawMessage `json:"_id"`
		Status      JobStatus       `json:"status"`
		ServiceType string          `json:"serviceType"`
		PatientName string          `json:"patientName"`
		Address     string          `json:"address"`
		ScheduledAt *time.Time      `json:"scheduledAt"`
		Amount      float64         `json:"amount"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	raw := wire.ID
	if len(raw) == 0 {
		raw = wire.MongoID
	}
	id, err := decodeFlexibleID(raw)
	if err != nil {
		return fmt.Errorf("decode job id: %w", err)
	}

	*j = Job{
		ID:          id,
		Status:      wire.Status,
		ServiceType: wire.ServiceType,
		PatientName: wire.PatientName,
		Address:     wire.Address,
		ScheduledAt: wire.ScheduledAt,
		Amount:      wire.Amount,
	}
	return nil
}

func decodeFlexibleID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

type jobListShape int

const (
	jobListEmpty jobListShape = iota
	jobListArray
	jobListEnvelope
	jobListSingle
)

var jobListEnvelopeKeys = []string{"services", "jobs", "items", "history"}

// DecodeJobList normalizes the list shapes the backend returns (a bare array,
// an object wrapping the array, or a single job) into one slice.
func DecodeJobList(raw []byte) ([]Job, error) {
	shape, payload, err := classifyJobList(raw)
	if err != nil {
		return nil, err
	}

	switch shape {
	case jobListEmpty:
		return []Job{}, nil
	case jobListArray, jobListEnvelope:
		var jobs []Job
		if err := json.Unmarshal(payload, &jobs); err != nil {
			return nil, fmt.Errorf("decode job list: %w", err)
		}
		if jobs == nil {
			jobs = []Job{}
		}
		return jobs, nil
	case jobListSingle:
		var job Job
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		return []Job{job}, nil
	default:
		return nil, ErrUnsupportedJobShape
	}
}

func classifyJobList(raw []byte) (jobListShape, []byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return jobListEmpty, nil, nil
	}

	switch trimmed[0] {
	case '[':
		return jobListArray, trimmed, nil
	case '{':
	default:
		return 0, nil, fmt.Errorf("%w: starts with %q", ErrUnsupportedJobShape, trimmed[0])
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return 0, nil, fmt.Errorf("decode job list object: %w", err)
	}
	for _, key := range jobListEnvelopeKeys {
		if inner, ok := fields[key]; ok {
			inner = bytes.TrimSpace(inner)
			if len(inner) > 0 && inner[0] == '[' {
				return jobListEnvelope, inner, nil
			}
			if bytes.Equal(inner, []byte("null")) {
				return jobListEmpty, nil, nil
			}
		}
	}
	if len(fields) == 0 {
		return jobListEmpty, nil, nil
	}
	if _, ok := fields["id"]; ok {
		return jobListSingle, trimmed, nil
	}
	if _, ok := fields["_id"]; ok {
		return jobListSingle, trimmed, nil
	}

	return 0, nil, fmt.Errorf("%w: object without job list key", ErrUnsupportedJobShape)
}
