package scoring

import (
	"encoding/json"
	"testing"

	"github.com/havenline/call-qa/internal/rubric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// maxVerdicts returns every rubric criterion at its maximum score.
func maxVerdicts(r *rubric.Rubric) map[string]Verdict {
	v := make(map[string]Verdict)
	for _, cat := range r.Categories {
		for _, c := range cat.Criteria {
			v[c.Key] = Verdict{Score: c.MaxScore, Label: "met", Observation: "fully demonstrated", Evidence: "N/A"}
		}
	}
	return v
}

func TestAggregateAllMax(t *testing.T) {
	r := rubric.Default()
	agg := Aggregate(r, maxVerdicts(r))

	assert.Equal(t, 23, agg.TotalRawScore)
	assert.Equal(t, 92, agg.TotalMultipliedScore)
	assert.Equal(t, 92, agg.TotalPossibleScore)
	assert.Equal(t, 100.0, agg.PercentageScore)
	assert.Equal(t, BandMeets, agg.Band)
	assert.Len(t, agg.Categories, 4)
}

func TestAggregateIsPureAndIdempotent(t *testing.T) {
	r := rubric.Default()
	verdicts := maxVerdicts(r)
	delete(verdicts, "safety_planning")

	first := Aggregate(r, verdicts)
	second := Aggregate(r, verdicts)
	assert.Equal(t, first, second)

	// Bit-identical on the wire too
	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestAggregateMissingCriterionContributesZero(t *testing.T) {
	r := rubric.Default()
	verdicts := maxVerdicts(r)
	delete(verdicts, "suicide_risk_inquiry") // max 2

	agg := Aggregate(r, verdicts)
	assert.Equal(t, 21, agg.TotalRawScore)
	assert.Equal(t, 84, agg.TotalMultipliedScore)

	risk := agg.Categories["Risk Assessment"]
	assert.Equal(t, 9, risk.RawScore)
	assert.Equal(t, 36, risk.MultipliedScore)
}

func TestAggregateEmptyVerdicts(t *testing.T) {
	r := rubric.Default()
	agg := Aggregate(r, map[string]Verdict{})

	assert.Equal(t, 0, agg.TotalRawScore)
	assert.Equal(t, 0, agg.TotalMultipliedScore)
	assert.Equal(t, 0.0, agg.PercentageScore)
	assert.Equal(t, BandNotAt, agg.Band)
}

func TestAggregateNilVerdicts(t *testing.T) {
	agg := Aggregate(rubric.Default(), nil)
	assert.Equal(t, 0, agg.TotalRawScore)
	assert.Equal(t, BandNotAt, agg.Band)
}

func TestBandBoundaries(t *testing.T) {
	assert.Equal(t, BandMeets, BandFor(80.0))
	assert.Equal(t, BandImprovement, BandFor(79.9))
	assert.Equal(t, BandImprovement, BandFor(70.0))
	assert.Equal(t, BandNotAt, BandFor(69.9))
	assert.Equal(t, BandMeets, BandFor(100.0))
}

func TestAggregateDoesNotClampAbove100(t *testing.T) {
	// Out-of-range model scores flow through unclamped.
	r := rubric.Default()
	verdicts := maxVerdicts(r)
	verdicts["greeting_protocol"] = Verdict{Score: 50}

	agg := Aggregate(r, verdicts)
	assert.Greater(t, agg.PercentageScore, 100.0)
	assert.Equal(t, BandMeets, agg.Band)
}
