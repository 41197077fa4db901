package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenline/call-qa/internal/jobs"
	"github.com/havenline/call-qa/internal/rubric"
	"github.com/havenline/call-qa/internal/scoring"
	"github.com/havenline/call-qa/internal/store"
	"github.com/havenline/call-qa/internal/transcribe"
	"github.com/havenline/call-qa/internal/transcript"
)

type fakeTranscriber struct {
	raw *transcript.Raw
	err error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioURI string) (*transcript.Raw, error) {
	return f.raw, f.err
}

type fakeScorer struct {
	result *scoring.Result
	err    error
	calls  int
}

func (f *fakeScorer) Score(ctx context.Context, c *transcript.Canonical) (*scoring.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeArtifacts struct {
	mu   sync.Mutex
	puts map[store.ArtifactKind]interface{}
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{puts: make(map[store.ArtifactKind]interface{})}
}

func (f *fakeArtifacts) Put(ctx context.Context, kind store.ArtifactKind, fileID string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[kind] = data
	return nil
}

type failingProfiles struct {
	store.ProfileStore
}

func (f *failingProfiles) EnsureProfile(ctx context.Context, id, name string) error {
	return errors.New("dynamo unavailable")
}

func goodRaw() *transcript.Raw {
	return &transcript.Raw{
		Summary: "Caller reported a crisis; counselor assessed risk.",
		Transcript: []transcript.RawUtterance{
			{Speaker: "AGENT", Text: "Crisis line, this is Sam.", BeginTime: "00:01.000", EndTime: "00:03.000"},
			{Speaker: "CUSTOMER", Text: "I need help.", BeginTime: "00:03.500", EndTime: "00:05.000"},
		},
	}
}

func maxVerdicts(r *rubric.Rubric) map[string]scoring.Verdict {
	v := make(map[string]scoring.Verdict)
	for _, cat := range r.Categories {
		for _, c := range cat.Criteria {
			v[c.Key] = scoring.Verdict{Score: c.MaxScore, Evidence: "N/A"}
		}
	}
	return v
}

type fixture struct {
	orch      *Orchestrator
	registry  *jobs.MemoryRegistry
	hub       *jobs.Hub
	artifacts *fakeArtifacts
	profiles  store.ProfileStore
	records   *store.MemoryRecordStore
	scorer    *fakeScorer
}

func newFixture(tr transcribe.Transcriber, sc *fakeScorer, profiles store.ProfileStore) *fixture {
	f := &fixture{
		registry:  jobs.NewMemoryRegistry(),
		hub:       jobs.NewHub(),
		artifacts: newFakeArtifacts(),
		profiles:  profiles,
		records:   store.NewMemoryRecordStore(),
		scorer:    sc,
	}
	f.orch = New(f.registry, f.hub, tr, sc, rubric.Default(), f.artifacts, f.profiles, f.records)
	return f
}

func input() Input {
	return Input{
		Bucket:             "recordings",
		Key:                "records/Jane_Doe_4412.wav",
		FileName:           "Jane_Doe_4412.wav",
		FileNameWithoutExt: "Jane_Doe_4412",
		Timestamp:          time.Now().UTC(),
	}
}

// waitTerminal polls the registry until the job reaches a terminal state.
func waitTerminal(t *testing.T, f *fixture, jobID string) jobs.Job {
	t.Helper()
	var done jobs.Job
	require.Eventually(t, func() bool {
		j, err := f.registry.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		done = *j
		return j.IsComplete()
	}, 5*time.Second, 10*time.Millisecond, "job %s did not reach a terminal state", jobID)
	return done
}

func TestPipelineHappyPath(t *testing.T) {
	r := rubric.Default()
	sc := &fakeScorer{result: &scoring.Result{Verdicts: maxVerdicts(r), Summary: "s", ModelID: "model-a"}}
	f := newFixture(&fakeTranscriber{raw: goodRaw()}, sc, store.NewMemoryProfileStore([]string{"crisis-line"}))

	in := input()
	// Subscribe before starting: ids derive deterministically from key+timestamp.
	ch := f.hub.Subscribe(jobs.NewJobID(in.Key, in.Timestamp))

	job, err := f.orch.Start(context.Background(), in)
	require.NoError(t, err)

	var done jobs.Job
	select {
	case done = <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish")
	}
	assert.Equal(t, job.ID, done.ID)
	assert.Equal(t, jobs.StateSucceeded, done.State)
	assert.True(t, done.IsSuccessful())

	// All three artifacts were written
	assert.Contains(t, f.artifacts.puts, store.ArtifactFormatted)
	assert.Contains(t, f.artifacts.puts, store.ArtifactAnalysis)
	assert.Contains(t, f.artifacts.puts, store.ArtifactAggregated)

	agg, ok := f.artifacts.puts[store.ArtifactAggregated].(*scoring.Aggregated)
	require.True(t, ok)
	assert.Equal(t, 92, agg.TotalMultipliedScore)

	// Counselor derived from the filename convention
	records, err := f.records.ListByCounselor(context.Background(), "jane_doe")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Jane Doe", records[0].CounselorName)
	assert.Equal(t, 92, records[0].TotalMultipliedScore)
	assert.Equal(t, 100.0, records[0].PercentageScore)
	assert.Equal(t, scoring.BandMeets, records[0].Criteria)

	profile, err := f.profiles.Get(context.Background(), "jane_doe")
	require.NoError(t, err)
	assert.True(t, profile.Active)
}

func TestPipelineRejectsInjectionBeforeScoring(t *testing.T) {
	raw := goodRaw()
	raw.Transcript[1].Text = "<script>alert(1)</script>"
	sc := &fakeScorer{result: &scoring.Result{Verdicts: map[string]scoring.Verdict{}}}
	f := newFixture(&fakeTranscriber{raw: raw}, sc, store.NewMemoryProfileStore(nil))

	job, err := f.orch.Start(context.Background(), input())
	require.NoError(t, err)
	done := waitTerminal(t, f, job.ID)

	assert.Equal(t, jobs.StateFailed, done.State)
	assert.Contains(t, done.Error, "normalization")
	assert.Equal(t, 0, sc.calls, "scoring stage must never see a rejected transcript")
}

func TestPipelineFailsWhenAllModelsFail(t *testing.T) {
	sc := &fakeScorer{err: errors.New("all 3 scoring models failed")}
	f := newFixture(&fakeTranscriber{raw: goodRaw()}, sc, store.NewMemoryProfileStore(nil))

	job, err := f.orch.Start(context.Background(), input())
	require.NoError(t, err)
	done := waitTerminal(t, f, job.ID)

	assert.Equal(t, jobs.StateFailed, done.State)
	assert.Contains(t, done.Error, "scoring")
}

func TestPipelineDegradedResultStillPersists(t *testing.T) {
	sc := &fakeScorer{result: &scoring.Result{RawAnalysis: "not json", Summary: "s"}}
	f := newFixture(&fakeTranscriber{raw: goodRaw()}, sc, store.NewMemoryProfileStore(nil))

	job, err := f.orch.Start(context.Background(), input())
	require.NoError(t, err)
	done := waitTerminal(t, f, job.ID)

	require.Equal(t, jobs.StateSucceeded, done.State)

	// Degraded analysis artifact persisted verbatim
	res, ok := f.artifacts.puts[store.ArtifactAnalysis].(*scoring.Result)
	require.True(t, ok)
	assert.Equal(t, "not json", res.RawAnalysis)

	// Aggregation treated the degraded result as "no criteria present"
	agg := f.artifacts.puts[store.ArtifactAggregated].(*scoring.Aggregated)
	assert.Equal(t, 0, agg.TotalMultipliedScore)
	assert.Equal(t, scoring.BandNotAt, agg.Band)
}

func TestPipelineSwallowsProfileFailure(t *testing.T) {
	r := rubric.Default()
	sc := &fakeScorer{result: &scoring.Result{Verdicts: maxVerdicts(r)}}
	f := newFixture(&fakeTranscriber{raw: goodRaw()}, sc, &failingProfiles{})

	job, err := f.orch.Start(context.Background(), input())
	require.NoError(t, err)
	done := waitTerminal(t, f, job.ID)

	assert.Equal(t, jobs.StateSucceeded, done.State,
		"profile bootstrap failure must never abort the pipeline")

	records, err := f.records.ListByCounselor(context.Background(), "jane_doe")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// blockingTranscriber holds the call open until the job context expires.
type blockingTranscriber struct{}

func (b *blockingTranscriber) Transcribe(ctx context.Context, audioURI string) (*transcript.Raw, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPipelineDeadlineBecomesTimedOut(t *testing.T) {
	sc := &fakeScorer{}
	f := newFixture(&blockingTranscriber{}, sc, store.NewMemoryProfileStore(nil))
	f.orch.jobTimeout = 20 * time.Millisecond

	job, err := f.orch.Start(context.Background(), input())
	require.NoError(t, err)
	done := waitTerminal(t, f, job.ID)

	assert.Equal(t, jobs.StateTimedOut, done.State)
	assert.Equal(t, "timeout", done.State.Status())
}

func TestStartRejectsDuplicateJobIdentity(t *testing.T) {
	r := rubric.Default()
	sc := &fakeScorer{result: &scoring.Result{Verdicts: maxVerdicts(r)}}
	f := newFixture(&fakeTranscriber{raw: goodRaw()}, sc, store.NewMemoryProfileStore(nil))

	in := input()
	_, err := f.orch.Start(context.Background(), in)
	require.NoError(t, err)

	// Same key, same timestamp: identical identity is a conflict
	_, err = f.orch.Start(context.Background(), in)
	require.Error(t, err)

	// Same key, later timestamp: reprocessing gets a fresh identity
	in.Timestamp = in.Timestamp.Add(time.Second)
	_, err = f.orch.Start(context.Background(), in)
	require.NoError(t, err)
}
