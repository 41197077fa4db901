package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/havenline/call-qa/internal/pkg/apperr"
	"github.com/havenline/call-qa/internal/rubric"
	"github.com/havenline/call-qa/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedInvoker returns canned replies/errors per model id and records
// the order in which models were tried.
type scriptedInvoker struct {
	replies map[string]string
	errs    map[string]error
	tried   []string
}

func (s *scriptedInvoker) Invoke(_ context.Context, modelID, _ string) (string, error) {
	s.tried = append(s.tried, modelID)
	if err, ok := s.errs[modelID]; ok {
		return "", err
	}
	return s.replies[modelID], nil
}

func testCanonical() *transcript.Canonical {
	return &transcript.Canonical{
		Summary: "Routine check-in call.",
		Transcript: []transcript.Utterance{
			{Speaker: "AGENT", Text: "Crisis line, this is Sam.", BeginOffset: "00:01.000", EndOffset: "00:03.000"},
		},
	}
}

func verdictJSON(t *testing.T) string {
	t.Helper()
	reply := map[string]Verdict{
		"greeting_protocol": {Score: 1, Label: "met", Observation: "standard greeting used", Evidence: `"Crisis line, this is Sam." (00:01.000)`},
	}
	b, err := json.Marshal(reply)
	require.NoError(t, err)
	return string(b)
}

func TestScoreFirstModelWins(t *testing.T) {
	inv := &scriptedInvoker{replies: map[string]string{"model-a": verdictJSON(t)}}
	stage := NewStage(inv, []string{"model-a", "model-b"}, rubric.Default())

	res, err := stage.Score(context.Background(), testCanonical())
	require.NoError(t, err)
	assert.Equal(t, []string{"model-a"}, inv.tried)
	assert.Equal(t, "model-a", res.ModelID)
	assert.False(t, res.Degraded())
	assert.Equal(t, 1, res.Verdicts["greeting_protocol"].Score)
}

func TestScoreFallsBackInOrder(t *testing.T) {
	inv := &scriptedInvoker{
		replies: map[string]string{"model-c": verdictJSON(t)},
		errs: map[string]error{
			"model-a": errors.New("throttled"),
			"model-b": errors.New("timeout"),
		},
	}
	stage := NewStage(inv, []string{"model-a", "model-b", "model-c"}, rubric.Default())

	res, err := stage.Score(context.Background(), testCanonical())
	require.NoError(t, err)
	assert.Equal(t, []string{"model-a", "model-b", "model-c"}, inv.tried)
	assert.Equal(t, "model-c", res.ModelID)
}

func TestScoreAllModelsFailed(t *testing.T) {
	lastErr := errors.New("service unavailable")
	inv := &scriptedInvoker{errs: map[string]error{
		"model-a": errors.New("throttled"),
		"model-b": lastErr,
	}}
	stage := NewStage(inv, []string{"model-a", "model-b"}, rubric.Default())

	res, err := stage.Score(context.Background(), testCanonical())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperr.Is(err, apperr.External))
	assert.ErrorIs(t, err, lastErr)
}

func TestScoreDegradesOnUnparseableReply(t *testing.T) {
	inv := &scriptedInvoker{replies: map[string]string{"model-a": "I could not produce a score for this call."}}
	stage := NewStage(inv, []string{"model-a"}, rubric.Default())

	res, err := stage.Score(context.Background(), testCanonical())
	require.NoError(t, err, "a malformed reply must not abort the run")
	assert.True(t, res.Degraded())
	assert.Equal(t, "I could not produce a score for this call.", res.RawAnalysis)
	assert.Equal(t, "Routine check-in call.", res.Summary)
}

func TestScoreParsesFencedReply(t *testing.T) {
	fenced := "Here are the scores:\n```json\n" + verdictJSON(t) + "\n```"
	inv := &scriptedInvoker{replies: map[string]string{"model-a": fenced}}
	stage := NewStage(inv, []string{"model-a"}, rubric.Default())

	res, err := stage.Score(context.Background(), testCanonical())
	require.NoError(t, err)
	assert.False(t, res.Degraded())
}

func TestParseVerdictsNormalizesValues(t *testing.T) {
	verdicts, err := parseVerdicts(`{"active_listening": {"score": -3, "label": "unclear"}}`)
	require.NoError(t, err)
	v := verdicts["active_listening"]
	assert.Equal(t, 0, v.Score, "negative scores floor at zero")
	assert.Equal(t, "N/A", v.Evidence, "missing evidence becomes the N/A literal")
}
