package store

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/havenline/call-qa/internal/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 holds objects in a map and mimics NoSuchKey for misses.
type fakeS3 struct {
	objects map[string]string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string]string)} }

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(data))}, nil
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "transcripts/formatted/formatted_call1.json", ArtifactFormatted.Key("call1"))
	assert.Equal(t, "transcripts/llmOutput/analysis_call1.json", ArtifactAnalysis.Key("call1"))
	assert.Equal(t, "transcripts/llmOutput/aggregated_call1.json", ArtifactAggregated.Key("call1"))
	assert.Equal(t, "results/call1.json", ArtifactGeneric.Key("call1"))
}

func TestArtifactPutGet(t *testing.T) {
	s := NewArtifactStore(newFakeS3(), "artifacts")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ArtifactAggregated, "call1", map[string]int{"totalMultipliedScore": 92}))

	data, err := s.Get(ctx, ArtifactAggregated, "call1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "92")

	_, err = s.Get(ctx, ArtifactAggregated, "call2")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestGetResultProbesCandidatesInOrder(t *testing.T) {
	fake := newFakeS3()
	s := NewArtifactStore(fake, "artifacts")
	ctx := context.Background()

	// Only the aggregated artifact exists: second candidate wins.
	require.NoError(t, s.Put(ctx, ArtifactAggregated, "call1", "agg"))
	data, err := s.GetResult(ctx, "call1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "agg")

	// Once the analysis artifact exists it shadows the aggregated one.
	require.NoError(t, s.Put(ctx, ArtifactAnalysis, "call1", "analysis"))
	data, err = s.GetResult(ctx, "call1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "analysis")
}

func TestGetResultNotFound(t *testing.T) {
	s := NewArtifactStore(newFakeS3(), "artifacts")
	_, err := s.GetResult(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
