// Package scoring drives the LLM rubric-scoring stage and the deterministic
// aggregation of its verdicts into category, total, and band scores.
package scoring

// Verdict is the model's judgment for one rubric criterion.
type Verdict struct {
	Score       int    `json:"score"`
	Label       string `json:"label"`
	Observation string `json:"observation"`
	Evidence    string `json:"evidence"`
}

// Result is the outcome of the scoring stage for one job. Exactly one of
// Verdicts / RawAnalysis is populated: when the model reply fails to parse
// as JSON the stage degrades to RawAnalysis instead of failing the job,
// and aggregation proceeds as if no criteria were present.
type Result struct {
	Verdicts    map[string]Verdict `json:"verdicts,omitempty"`
	RawAnalysis string             `json:"raw_analysis,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	ModelID     string             `json:"modelId,omitempty"`
}

// Degraded reports whether the model reply could not be parsed.
func (r *Result) Degraded() bool { return r.Verdicts == nil }
