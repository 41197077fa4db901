// Package transcript defines the diarized-transcript data model and the
// normalizer that gates every transcript before it reaches the scoring model.
package transcript

// Raw is the transcript object as returned by the transcription
// collaborator, prior to validation. Field contents are untrusted.
type Raw struct {
	Summary    string         `json:"summary"`
	Transcript []RawUtterance `json:"transcript"`
}

// RawUtterance is a single untrusted diarized line.
type RawUtterance struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
}

// Canonical is a validated, sanitized transcript. It is immutable once
// produced and is the only form of transcript content forwarded to the
// scoring model.
type Canonical struct {
	Summary    string      `json:"summary"`
	Transcript []Utterance `json:"transcript"`
}

// Utterance is a validated diarized line with MM:SS.mmm offsets.
type Utterance struct {
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	BeginOffset string `json:"beginOffset"`
	EndOffset   string `json:"endOffset"`
}

// Bounds enforced by the normalizer.
const (
	MaxSummaryChars   = 5000
	MaxUtteranceChars = 10000
	MaxUtterances     = 10000
)
