package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/havenline/call-qa/internal/pkg/apperr"
	"github.com/havenline/call-qa/internal/pkg/logger"
)

// S3API is the slice of the S3 client the artifact store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ArtifactStore persists derived pipeline artifacts as JSON objects in S3.
type ArtifactStore struct {
	client S3API
	bucket string
}

// NewArtifactStore wraps an S3 client and bucket.
func NewArtifactStore(client S3API, bucket string) *ArtifactStore {
	return &ArtifactStore{client: client, bucket: bucket}
}

// Put writes one artifact for the given file id.
func (s *ArtifactStore) Put(ctx context.Context, kind ArtifactKind, fileID string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s artifact: %w", kind, err)
	}

	key := kind.Key(fileID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jsonData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting %s artifact to S3: %w", kind, err)
	}

	logger.Debug("artifact stored", "kind", kind.String(), "key", key)
	return nil
}

// Get reads one artifact, returning a NotFound error when the object does
// not exist.
func (s *ArtifactStore) Get(ctx context.Context, kind ArtifactKind, fileID string) ([]byte, error) {
	key := kind.Key(fileID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperr.New(apperr.NotFound, "artifact %s not found", key)
		}
		return nil, fmt.Errorf("getting artifact %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return data, nil
}

// GetResult probes the candidate artifact locations in order and returns
// the first one that exists, or a NotFound error when none do.
func (s *ArtifactStore) GetResult(ctx context.Context, fileID string) ([]byte, error) {
	for _, kind := range ResultCandidates {
		data, err := s.Get(ctx, kind, fileID)
		if err == nil {
			return data, nil
		}
		if !apperr.Is(err, apperr.NotFound) {
			return nil, err
		}
	}
	return nil, apperr.New(apperr.NotFound, "no result artifact for %s", fileID)
}
