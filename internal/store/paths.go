package store

import "fmt"

// ArtifactKind names one derived artifact of the pipeline. Keys are derived
// through these typed mappings rather than string-prefix substitution, so a
// renamed prefix breaks compilation instead of silently producing misses.
type ArtifactKind int

const (
	// ArtifactFormatted is the canonical transcript persisted before scoring.
	ArtifactFormatted ArtifactKind = iota
	// ArtifactAnalysis is the scoring-stage output (verdicts or raw text).
	ArtifactAnalysis
	// ArtifactAggregated is the final aggregated evaluation.
	ArtifactAggregated
	// ArtifactGeneric is the legacy flat location some old jobs wrote to.
	ArtifactGeneric
)

// Key returns the S3 object key for this artifact kind and file id.
func (k ArtifactKind) Key(fileID string) string {
	switch k {
	case ArtifactFormatted:
		return fmt.Sprintf("transcripts/formatted/formatted_%s.json", fileID)
	case ArtifactAnalysis:
		return fmt.Sprintf("transcripts/llmOutput/analysis_%s.json", fileID)
	case ArtifactAggregated:
		return fmt.Sprintf("transcripts/llmOutput/aggregated_%s.json", fileID)
	default:
		return fmt.Sprintf("results/%s.json", fileID)
	}
}

// String names the kind for logs.
func (k ArtifactKind) String() string {
	switch k {
	case ArtifactFormatted:
		return "formatted"
	case ArtifactAnalysis:
		return "analysis"
	case ArtifactAggregated:
		return "aggregated"
	default:
		return "generic"
	}
}

// ResultCandidates is the ordered list of locations the result gateway
// probes; the first existing artifact wins.
var ResultCandidates = []ArtifactKind{ArtifactAnalysis, ArtifactAggregated, ArtifactGeneric}
