// Package ingest detects newly uploaded recordings under the records/
// prefix and hands each one to the orchestrator exactly once per process.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/havenline/call-qa/internal/config"
	"github.com/havenline/call-qa/internal/jobs"
	"github.com/havenline/call-qa/internal/orchestrator"
	"github.com/havenline/call-qa/internal/pkg/logger"
)

// S3Lister is the slice of the S3 client the watcher uses.
type S3Lister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Starter launches one pipeline execution per recording.
type Starter interface {
	Start(ctx context.Context, in orchestrator.Input) (*jobs.Job, error)
}

// Watcher polls the recordings bucket and starts a job for each object it
// has not seen before.
type Watcher struct {
	client   S3Lister
	starter  Starter
	bucket   string
	prefix   string
	interval time.Duration
	seen     map[string]bool
}

// NewWatcher builds an ingestion watcher from config.
func NewWatcher(client S3Lister, starter Starter, cfg config.IngestConfig) *Watcher {
	return &Watcher{
		client:   client,
		starter:  starter,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		interval: cfg.PollInterval(),
		seen:     make(map[string]bool),
	}
}

// Run polls until the context is canceled. The first sweep primes the seen
// set without starting jobs, so a restart does not reprocess the backlog.
func (w *Watcher) Run(ctx context.Context) {
	w.sweep(ctx, false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, true)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context, dispatch bool) {
	var token *string
	for {
		out, err := w.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(w.bucket),
			Prefix:            aws.String(w.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			logger.Warn("ingest: listing recordings failed", "error", err.Error())
			return
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if w.seen[key] || strings.HasSuffix(key, "/") {
				continue
			}
			w.seen[key] = true
			if !dispatch {
				continue
			}
			w.dispatch(ctx, key)
		}

		if out.NextContinuationToken == nil {
			return
		}
		token = out.NextContinuationToken
	}
}

func (w *Watcher) dispatch(ctx context.Context, key string) {
	fileName := key
	if i := strings.LastIndex(fileName, "/"); i >= 0 {
		fileName = fileName[i+1:]
	}
	withoutExt := fileName
	if i := strings.LastIndex(withoutExt, "."); i >= 0 {
		withoutExt = withoutExt[:i]
	}

	in := orchestrator.Input{
		Bucket:             w.bucket,
		Key:                key,
		FileName:           fileName,
		FileNameWithoutExt: withoutExt,
		Timestamp:          time.Now().UTC(),
	}

	job, err := w.starter.Start(ctx, in)
	if err != nil {
		logger.Error("ingest: failed to start pipeline", "key", key, "error", err.Error())
		return
	}
	logger.Info("ingest: recording dispatched", "key", key, "job", job.ID)
}
