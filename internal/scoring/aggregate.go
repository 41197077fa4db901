package scoring

import (
	"github.com/havenline/call-qa/internal/rubric"
)

// TotalPossibleScore is the fixed ceiling of the multiplied total: a raw
// maximum of 23 across 18 criteria, times the category multiplier.
const TotalPossibleScore = 92

const categoryMultiplier = 4

// Qualitative bands derived from the percentage score.
const (
	BandMeets       = "Meets Criteria"
	BandImprovement = "Improvement Needed"
	BandNotAt       = "Not at Criteria"
)

// CategoryScore is one category's contribution to the evaluation.
type CategoryScore struct {
	Name            string `json:"name"`
	RawScore        int    `json:"rawScore"`
	MultipliedScore int    `json:"multipliedScore"`
}

// Aggregated is the final deterministic evaluation for one call.
type Aggregated struct {
	Categories           map[string]CategoryScore `json:"categories"`
	TotalRawScore        int                      `json:"totalRawScore"`
	TotalMultipliedScore int                      `json:"totalMultipliedScore"`
	TotalPossibleScore   int                      `json:"totalPossibleScore"`
	PercentageScore      float64                  `json:"percentageScore"`
	Band                 string                   `json:"band"`
}

// Aggregate maps per-criterion verdicts onto the rubric's categories.
// It is pure: identical inputs always produce identical outputs, and a
// criterion absent from the verdict map contributes 0 rather than erroring.
// Scores above a criterion's maximum are passed through unclamped, so a
// misbehaving model can push the percentage above 100.
func Aggregate(r *rubric.Rubric, verdicts map[string]Verdict) *Aggregated {
	agg := &Aggregated{
		Categories:         make(map[string]CategoryScore, len(r.Categories)),
		TotalPossibleScore: TotalPossibleScore,
	}

	for _, cat := range r.Categories {
		cs := CategoryScore{Name: cat.Name}
		for _, c := range cat.Criteria {
			if v, ok := verdicts[c.Key]; ok {
				cs.RawScore += v.Score
			}
		}
		cs.MultipliedScore = cs.RawScore * categoryMultiplier
		agg.Categories[cat.Name] = cs
		agg.TotalRawScore += cs.RawScore
		agg.TotalMultipliedScore += cs.MultipliedScore
	}

	agg.PercentageScore = float64(agg.TotalMultipliedScore) / float64(TotalPossibleScore) * 100
	agg.Band = BandFor(agg.PercentageScore)
	return agg
}

// BandFor buckets a percentage score: ≥80 meets criteria, 70–79 needs
// improvement, below 70 is not at criteria.
func BandFor(pct float64) string {
	switch {
	case pct >= 80:
		return BandMeets
	case pct >= 70:
		return BandImprovement
	default:
		return BandNotAt
	}
}
