package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/havenline/call-qa/internal/pkg/apperr"
)

const (
	jobKeyPrefix = "callqa:job:"
	refKeyPrefix = "callqa:ref:"
)

// RedisRegistry is the Registry used when several API instances must see
// the same job state. Terminal jobs expire after the configured TTL.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry wraps a Redis client.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

func jobKey(id string) string  { return jobKeyPrefix + id }
func refKey(ref string) string { return refKeyPrefix + ref }

// Create registers a new job with SETNX semantics so duplicate ids fail.
func (r *RedisRegistry) Create(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	ok, err := r.client.SetNX(ctx, jobKey(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("storing job: %w", err)
	}
	if !ok {
		return apperr.New(apperr.Conflict, "job %s already exists", job.ID)
	}

	if job.ExecutionRef != "" {
		if err := r.client.Set(ctx, refKey(job.ExecutionRef), job.ID, r.ttl).Err(); err != nil {
			return fmt.Errorf("storing job ref: %w", err)
		}
	}
	return nil
}

// Get fetches a job by id.
func (r *RedisRegistry) Get(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.New(apperr.NotFound, "job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &job, nil
}

// GetByExecutionRef resolves the ref index then fetches the job.
func (r *RedisRegistry) GetByExecutionRef(ctx context.Context, ref string) (*Job, error) {
	id, err := r.client.Get(ctx, refKey(ref)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.New(apperr.NotFound, "no job with execution ref %s", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving execution ref: %w", err)
	}
	return r.Get(ctx, id)
}

// FindByFileName scans job keys for the fragment, newest start time wins.
func (r *RedisRegistry) FindByFileName(ctx context.Context, fragment string) (*Job, error) {
	var best *Job
	iter := r.client.Scan(ctx, 0, jobKeyPrefix+"*"+fragment+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), jobKeyPrefix)
		job, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if best == nil || job.StartedAt.After(best.StartedAt) {
			best = job
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning jobs: %w", err)
	}
	if best == nil {
		return nil, apperr.New(apperr.NotFound, "no job matches file name %s", fragment)
	}
	return best, nil
}

// Complete moves a job one-way into a terminal state.
func (r *RedisRegistry) Complete(ctx context.Context, id string, state State, errMsg string) error {
	if !state.Terminal() {
		return apperr.New(apperr.Validation, "state %s is not terminal", state)
	}

	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return apperr.New(apperr.Conflict, "job %s already terminal (%s)", id, job.State)
	}

	now := time.Now().UTC()
	job.State = state
	job.StoppedAt = &now
	job.Error = errMsg

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := r.client.Set(ctx, jobKey(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing job: %w", err)
	}
	return nil
}
