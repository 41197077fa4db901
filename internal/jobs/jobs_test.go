package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenline/call-qa/internal/pkg/apperr"
)

func TestNewJobIDUniquePerReprocess(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(1 * time.Millisecond)

	id1 := NewJobID("records/Jane_Doe_4412.wav", t1)
	id2 := NewJobID("records/Jane_Doe_4412.wav", t2)
	assert.NotEqual(t, id1, id2, "reprocessing the same file must yield a new identity")
	assert.Contains(t, id1, "Jane_Doe_4412.wav")
	assert.NotContains(t, id1, "/")
}

func TestStateStatusMapping(t *testing.T) {
	assert.Equal(t, "processing", StateRunning.Status())
	assert.Equal(t, "completed", StateSucceeded.Status())
	assert.Equal(t, "failed", StateFailed.Status())
	assert.Equal(t, "timeout", StateTimedOut.Status())
	assert.Equal(t, "error", StateAborted.Status())

	assert.False(t, StateRunning.Terminal())
	for _, s := range []State{StateSucceeded, StateFailed, StateTimedOut, StateAborted} {
		assert.True(t, s.Terminal(), "state %s", s)
	}
}

func newJob(id string, started time.Time) Job {
	return Job{
		ID:           id,
		ExecutionRef: uuid.NewString(),
		FileID:       "Jane_Doe_4412",
		FileName:     "Jane_Doe_4412.wav",
		State:        StateRunning,
		StartedAt:    started,
	}
}

// registries under test share one behavioral contract.
func runRegistryContract(t *testing.T, r Registry) {
	ctx := context.Background()
	now := time.Now().UTC()

	job := newJob("Jane_Doe_4412.wav-1000", now)
	require.NoError(t, r.Create(ctx, job))

	err := r.Create(ctx, job)
	require.Error(t, err, "duplicate job ids must conflict")
	assert.True(t, apperr.Is(err, apperr.Conflict))

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.State)
	assert.False(t, got.IsComplete())

	byRef, err := r.GetByExecutionRef(ctx, job.ExecutionRef)
	require.NoError(t, err)
	assert.Equal(t, job.ID, byRef.ID)

	_, err = r.Get(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	// Substring lookup picks the newest match
	newer := newJob("Jane_Doe_4412.wav-2000", now.Add(time.Minute))
	require.NoError(t, r.Create(ctx, newer))
	match, err := r.FindByFileName(ctx, "Jane_Doe_4412")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, match.ID)

	_, err = r.FindByFileName(ctx, "Nobody")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	// One-way terminal transition
	require.NoError(t, r.Complete(ctx, job.ID, StateSucceeded, ""))
	got, err = r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.IsComplete())
	assert.True(t, got.IsSuccessful())
	require.NotNil(t, got.StoppedAt)

	err = r.Complete(ctx, job.ID, StateFailed, "late failure")
	require.Error(t, err, "terminal jobs are never mutated")
	assert.True(t, apperr.Is(err, apperr.Conflict))

	err = r.Complete(ctx, newer.ID, StateRunning, "")
	require.Error(t, err, "Running is not a terminal state")
}

func TestMemoryRegistry(t *testing.T) {
	runRegistryContract(t, NewMemoryRegistry())
}

func TestRedisRegistry(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	runRegistryContract(t, NewRedisRegistry(client, time.Hour))
}

func TestHubDeliversPerJob(t *testing.T) {
	h := NewHub()
	chA := h.Subscribe("job-a")
	chA2 := h.Subscribe("job-a")
	chB := h.Subscribe("job-b")

	h.Publish(Job{ID: "job-a", State: StateSucceeded})

	jobA := <-chA
	assert.Equal(t, StateSucceeded, jobA.State)
	jobA2 := <-chA2
	assert.Equal(t, "job-a", jobA2.ID)

	select {
	case j := <-chB:
		t.Fatalf("job-b subscriber received %v for job-a completion", j)
	default:
	}

	// Publishing again is a no-op: subscribers were dropped on delivery
	h.Publish(Job{ID: "job-a", State: StateFailed})
	_, open := <-chA
	assert.False(t, open)
}
