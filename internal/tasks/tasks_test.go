package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJob(t *testing.T) {
	job, err := DecodeJob(strings.NewReader(`{"job":"X","job_id":"42","queue_name":"default","arguments":[1,"a"],"extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, Job{
		Name:      "X",
		ID:        "42",
		Queue:     "default",
		Arguments: json.RawMessage(`[1,"a"]`),
	}, job)
	assert.True(t, job.EnqueuedAt.IsZero())
}

func TestDecodeJobEnqueuedAt(t *testing.T) {
	job, err := DecodeJob(strings.NewReader(`{"job":"X","enqueued_at":"2024-03-01T12:30:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), job.EnqueuedAt.UTC())

	job, err = DecodeJob(strings.NewReader(`{"job":"X","enqueued_at":"2024-03-01T14:30:00+02:00"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), job.EnqueuedAt.UTC())
}

func TestDecodeJobRejects(t *testing.T) {
	for name, body := range map[string]string{
		"empty":            "",
		"not json":         "job=X",
		"missing name":     `{"job_id":"1"}`,
		"wrong type":       `{"job":7}`,
		"array":            `[1,2,3]`,
		"bad enqueue time": `{"job":"X","enqueued_at":"yesterday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeJob(strings.NewReader(body))
			assert.ErrorIs(t, err, ErrMalformedJob)
		})
	}
}

func TestRegistryTasks(t *testing.T) {
	reg := NewRegistry()
	ran := 0
	reg.RegisterTask("CleanupTask", func(context.Context) error {
		ran++
		return nil
	})

	fn, err := reg.ResolveTask("CleanupTask")
	require.NoError(t, err)
	require.NoError(t, fn(context.Background()))
	assert.Equal(t, 1, ran)

	_, err = reg.ResolveTask("Missing")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, KindTask, resErr.Kind)
	assert.Equal(t, "Missing", resErr.Name)
}

func TestRegistryJobs(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	var got Job
	reg.RegisterJob("X", func(_ context.Context, job Job) error {
		got = job
		return nil
	})
	reg.RegisterJob("Fails", func(context.Context, Job) error { return boom })

	require.NoError(t, reg.RunJob(context.Background(), Job{Name: "X", ID: "1"}))
	assert.Equal(t, Job{Name: "X", ID: "1"}, got)

	err := reg.RunJob(context.Background(), Job{Name: "Fails"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "Fails", execErr.Name)
	assert.ErrorIs(t, err, boom)

	err = reg.RunJob(context.Background(), Job{Name: "Nope"})
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, KindJob, resErr.Kind)
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context) error { return nil }
	reg.RegisterTask("a", noop)

	assert.Panics(t, func() { reg.RegisterTask("a", noop) })
	assert.Panics(t, func() { reg.RegisterTask("", noop) })
	assert.Panics(t, func() { reg.RegisterTask("b", nil) })
	assert.Panics(t, func() { reg.RegisterJob("", func(context.Context, Job) error { return nil }) })
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTask("b", func(context.Context) error { return nil })
	reg.RegisterTask("a", func(context.Context) error { return nil })
	reg.RegisterJob("z", func(context.Context, Job) error { return nil })

	assert.Equal(t, []string{"a", "b"}, reg.TaskNames())
	assert.Equal(t, []string{"z"}, reg.JobNames())
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "", OriginFrom(context.Background()))
	assert.Equal(t, "billing", OriginFrom(WithOrigin(context.Background(), "billing")))
}
