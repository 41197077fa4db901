package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/havenline/call-qa/internal/pkg/apperr"
)

// Registry stores job state for the orchestrator and the status gateway.
type Registry interface {
	// Create registers a new running job; duplicate ids are a Conflict.
	Create(ctx context.Context, job Job) error
	// Get fetches a job by its exact id.
	Get(ctx context.Context, id string) (*Job, error)
	// GetByExecutionRef fetches a job by its execution reference.
	GetByExecutionRef(ctx context.Context, ref string) (*Job, error)
	// FindByFileName matches a bare file name as a substring of job ids.
	// Legacy, best-effort lookup: when several jobs share the fragment the
	// most recently started one wins.
	FindByFileName(ctx context.Context, fragment string) (*Job, error)
	// Complete moves a job into a terminal state. Transitions out of a
	// terminal state are rejected.
	Complete(ctx context.Context, id string, state State, errMsg string) error
}

// MemoryRegistry is the single-instance in-process Registry.
type MemoryRegistry struct {
	mu   sync.RWMutex
	byID map[string]Job
}

// NewMemoryRegistry builds an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byID: make(map[string]Job)}
}

// Create registers a new job.
func (r *MemoryRegistry) Create(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[job.ID]; ok {
		return apperr.New(apperr.Conflict, "job %s already exists", job.ID)
	}
	r.byID[job.ID] = job
	return nil
}

// Get fetches a job by id.
func (r *MemoryRegistry) Get(ctx context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "job %s not found", id)
	}
	j := job
	return &j, nil
}

// GetByExecutionRef fetches a job by execution reference.
func (r *MemoryRegistry) GetByExecutionRef(ctx context.Context, ref string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.byID {
		if job.ExecutionRef == ref {
			j := job
			return &j, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "no job with execution ref %s", ref)
}

// FindByFileName matches the fragment against job ids, newest first.
func (r *MemoryRegistry) FindByFileName(ctx context.Context, fragment string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Job
	for _, job := range r.byID {
		if !strings.Contains(job.ID, fragment) {
			continue
		}
		if best == nil || job.StartedAt.After(best.StartedAt) {
			j := job
			best = &j
		}
	}
	if best == nil {
		return nil, apperr.New(apperr.NotFound, "no job matches file name %s", fragment)
	}
	return best, nil
}

// Complete moves a job one-way into a terminal state.
func (r *MemoryRegistry) Complete(ctx context.Context, id string, state State, errMsg string) error {
	if !state.Terminal() {
		return apperr.New(apperr.Validation, "state %s is not terminal", state)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[id]
	if !ok {
		return apperr.New(apperr.NotFound, "job %s not found", id)
	}
	if job.State.Terminal() {
		return apperr.New(apperr.Conflict, "job %s already terminal (%s)", id, job.State)
	}
	now := time.Now().UTC()
	job.State = state
	job.StoppedAt = &now
	job.Error = errMsg
	r.byID[id] = job
	return nil
}
