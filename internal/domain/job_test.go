package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJobListShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantIDs []string
	}{
		{name: "bare array", raw: `[{"id":"a","status":"pending"},{"id":"b","status":"accepted"}]`, wantIDs: []string{"a", "b"}},
		{name: "services envelope", raw: `{"services":[{"id":7,"status":"completed"}],"total":1}`, wantIDs: []string{"7"}},
		{name: "jobs envelope", raw: `{"jobs":[{"_id":"mongo-1"}]}`, wantIDs: []string{"mongo-1"}},
		{name: "single object", raw: `{"id":"solo","status":"arrived"}`, wantIDs: []string{"solo"}},
		{name: "null", raw: `null`, wantIDs: []string{}},
		{name: "empty body", raw: ``, wantIDs: []string{}},
		{name: "null envelope", raw: `{"services":null}`, wantIDs: []string{}},
		{name: "empty object", raw: `{}`, wantIDs: []string{}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			jobs, err := DecodeJobList([]byte(tc.raw))
			require.NoError(t, err)

			ids := make([]string, 0, len(jobs))
			for _, job := range jobs {
				ids = append(ids, job.ID)
			}
			assert.Equal(t, tc.wantIDs, ids)
		})
	}
}

func TestDecodeJobListRejectsUnknownShapes(t *testing.T) {
	_, err := DecodeJobList([]byte(`"nope"`))
	require.ErrorIs(t, err, ErrUnsupportedJobShape)

	_, err = DecodeJobList([]byte(`{"total":3}`))
	require.ErrorIs(t, err, ErrUnsupportedJobShape)
}

func TestDecodeJobKeepsFields(t *testing.T) {
	jobs, err := DecodeJobList([]byte(`[{"id":12,"status":"in_progress","serviceType":"wound-care","amount":42.5,"scheduledAt":"2026-10-19T09:30:00Z"}]`))
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, "12", job.ID)
	assert.Equal(t, JobInProgress, job.Status)
	assert.Equal(t, "wound-care", job.ServiceType)
	assert.InDelta(t, 42.5, job.Amount, 0.001)
	require.NotNil(t, job.ScheduledAt)
	assert.Equal(t, 9, job.ScheduledAt.Hour())
	assert.False(t, job.Status.Terminal())
	assert.True(t, JobCancelled.Terminal())
}

func TestResultDecode(t *testing.T) {
	var job Job
	ok := Result{Success: true, Data: []byte(`{"id":"j-1","status":"accepted"}`)}
	require.NoError(t, ok.Decode(&job))
	assert.Equal(t, "j-1", job.ID)
	assert.NoError(t, ok.Err())

	failed := Failure(500, "db down")
	assert.EqualError(t, failed.Decode(&job), "db down")
	assert.EqualError(t, failed.Err(), "db down")
	assert.Equal(t, 500, failed.Status)

	assert.EqualError(t, Result{}.Err(), "request failed")
}

func TestParseJobStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseJobStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, JobInProgress, status)
	assert.False(t, status.Terminal())

	_, err = ParseJobStatus("teleported")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job status")
}
