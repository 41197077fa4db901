// Package orchestrator drives one evaluation pipeline execution per
// ingested recording: transcription, normalization, rubric scoring,
// aggregation, and persistence, in strict sequence. Jobs run independently
// of each other; the only shared mutable state is the counselor profile
// store, which handles its own concurrency.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/havenline/call-qa/internal/jobs"
	"github.com/havenline/call-qa/internal/pkg/logger"
	"github.com/havenline/call-qa/internal/rubric"
	"github.com/havenline/call-qa/internal/scoring"
	"github.com/havenline/call-qa/internal/store"
	"github.com/havenline/call-qa/internal/transcribe"
	"github.com/havenline/call-qa/internal/transcript"
)

// Input is one ingested recording, as produced by the ingestion watcher.
type Input struct {
	Bucket             string    `json:"bucket"`
	Key                string    `json:"key"`
	FileName           string    `json:"fileName"`
	FileNameWithoutExt string    `json:"fileNameWithoutExt"`
	Timestamp          time.Time `json:"timestamp"`
}

// Scorer runs the rubric-scoring stage.
type Scorer interface {
	Score(ctx context.Context, c *transcript.Canonical) (*scoring.Result, error)
}

// ArtifactSink persists derived artifacts.
type ArtifactSink interface {
	Put(ctx context.Context, kind store.ArtifactKind, fileID string, data interface{}) error
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	registry    jobs.Registry
	hub         *jobs.Hub
	transcriber transcribe.Transcriber
	scorer      Scorer
	rubric      *rubric.Rubric
	artifacts   ArtifactSink
	profiles    store.ProfileStore
	records     store.RecordStore
	jobTimeout  time.Duration
}

// New builds an orchestrator.
func New(
	registry jobs.Registry,
	hub *jobs.Hub,
	transcriber transcribe.Transcriber,
	scorer Scorer,
	r *rubric.Rubric,
	artifacts ArtifactSink,
	profiles store.ProfileStore,
	records store.RecordStore,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		hub:         hub,
		transcriber: transcriber,
		scorer:      scorer,
		rubric:      r,
		artifacts:   artifacts,
		profiles:    profiles,
		records:     records,
		jobTimeout:  30 * time.Minute,
	}
}

// Start registers a new job for the recording and runs the pipeline in the
// background. The returned job is the Running snapshot; callers observe
// progress through the registry or the hub.
func (o *Orchestrator) Start(ctx context.Context, in Input) (*jobs.Job, error) {
	job := jobs.Job{
		ID:           jobs.NewJobID(in.Key, in.Timestamp),
		ExecutionRef: uuid.NewString(),
		FileID:       in.FileNameWithoutExt,
		FileName:     in.FileName,
		State:        jobs.StateRunning,
		StartedAt:    time.Now().UTC(),
	}
	if err := o.registry.Create(ctx, job); err != nil {
		return nil, err
	}

	logger.Info("pipeline started", "job", job.ID, "file", in.FileName)

	// The pipeline outlives the ingestion request that triggered it.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.jobTimeout)
	go func() {
		defer cancel()
		o.run(runCtx, job, in)
	}()

	return &job, nil
}

// run executes the stages in strict sequence and moves the job into its
// terminal state exactly once.
func (o *Orchestrator) run(ctx context.Context, job jobs.Job, in Input) {
	if err := o.execute(ctx, job, in); err != nil {
		state := jobs.StateFailed
		if errors.Is(err, context.DeadlineExceeded) {
			state = jobs.StateTimedOut
		}
		logger.Error("pipeline failed", "job", job.ID, "state", string(state), "error", err.Error())
		o.finish(ctx, job.ID, state, err.Error())
		return
	}
	logger.Info("pipeline completed", "job", job.ID)
	o.finish(ctx, job.ID, jobs.StateSucceeded, "")
}

func (o *Orchestrator) execute(ctx context.Context, job jobs.Job, in Input) error {
	audioURI := fmt.Sprintf("s3://%s/%s", in.Bucket, in.Key)

	raw, err := o.transcriber.Transcribe(ctx, audioURI)
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}

	canonical, err := transcript.Normalize(*raw)
	if err != nil {
		// Validation failures stop here: unsafe content never reaches
		// the scoring model.
		return fmt.Errorf("normalization: %w", err)
	}

	if err := o.artifacts.Put(ctx, store.ArtifactFormatted, in.FileNameWithoutExt, canonical); err != nil {
		return fmt.Errorf("storing formatted transcript: %w", err)
	}

	result, err := o.scorer.Score(ctx, canonical)
	if err != nil {
		return fmt.Errorf("scoring: %w", err)
	}

	// The analysis artifact is persisted even when degraded, so a
	// malformed model reply still leaves an auditable trace.
	if err := o.artifacts.Put(ctx, store.ArtifactAnalysis, in.FileNameWithoutExt, result); err != nil {
		return fmt.Errorf("storing analysis artifact: %w", err)
	}

	agg := scoring.Aggregate(o.rubric, result.Verdicts)
	if err := o.artifacts.Put(ctx, store.ArtifactAggregated, in.FileNameWithoutExt, agg); err != nil {
		return fmt.Errorf("storing aggregated artifact: %w", err)
	}

	counselorID, counselorName := store.CounselorFromFileName(in.FileName)

	// Profile bootstrapping is best-effort: recording the evaluation is
	// the primary obligation.
	if err := o.profiles.EnsureProfile(ctx, counselorID, counselorName); err != nil {
		logger.Warn("counselor profile bootstrap failed",
			"job", job.ID, "counselor", counselorID, "error", err.Error())
	}

	categoryScores := make(map[string]int, len(agg.Categories))
	for name, cs := range agg.Categories {
		categoryScores[name] = cs.MultipliedScore
	}

	rec := store.EvaluationRecord{
		CounselorID:          counselorID,
		CounselorName:        counselorName,
		EvaluationID:         store.NewEvaluationID(time.Now().UTC()),
		AudioFileName:        in.FileName,
		EvaluationDate:       time.Now().UTC().Format("2006-01-02"),
		CategoryScores:       categoryScores,
		TotalMultipliedScore: agg.TotalMultipliedScore,
		PercentageScore:      agg.PercentageScore,
		Criteria:             agg.Band,
		ArtifactKey:          store.ArtifactAggregated.Key(in.FileNameWithoutExt),
	}
	if err := o.records.WriteEvaluationRecord(ctx, rec); err != nil {
		return fmt.Errorf("writing evaluation record: %w", err)
	}

	return nil
}

// finish records the terminal state and notifies subscribers. The job
// context may already be expired (that is how timeouts arrive here), so
// bookkeeping runs detached from it.
func (o *Orchestrator) finish(ctx context.Context, jobID string, state jobs.State, errMsg string) {
	ctx = context.WithoutCancel(ctx)
	if err := o.registry.Complete(ctx, jobID, state, errMsg); err != nil {
		logger.Error("failed to record terminal state", "job", jobID, "error", err.Error())
	}
	if job, err := o.registry.Get(ctx, jobID); err == nil {
		o.hub.Publish(*job)
	}
}
