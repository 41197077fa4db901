package transcript

import (
	"regexp"
	"strings"

	"github.com/havenline/call-qa/internal/pkg/apperr"
)

// Injection patterns rejected anywhere in summary or utterance text.
// Transcript content ends up embedded in model prompts and rendered in the
// dashboard, so markup and script vectors are refused outright rather than
// escaped.
var injectionPatterns = []string{
	"<script",
	"<iframe",
	"javascript:",
}

// Inline event-handler attributes, e.g. onclick= / onerror =
var eventHandlerRegex = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)

// Speaker tokens reduce to this class; anything else is stripped before
// the non-empty check.
var speakerCharRegex = regexp.MustCompile(`[^A-Z0-9_]`)

// Offsets use a fixed MM:SS.mmm format.
var offsetRegex = regexp.MustCompile(`^\d{2}:\d{2}\.\d{3}$`)

// Normalize validates and sanitizes a raw diarized transcript. It either
// returns a Canonical transcript satisfying every bound in this package,
// or a Validation error naming the first offending field/index. There is
// no partial output: one bad utterance rejects the whole transcript.
func Normalize(raw Raw) (*Canonical, error) {
	if err := checkText("summary", raw.Summary, MaxSummaryChars); err != nil {
		return nil, err
	}

	if len(raw.Transcript) == 0 {
		return nil, apperr.New(apperr.Validation, "transcript must be a non-empty array")
	}
	if len(raw.Transcript) > MaxUtterances {
		return nil, apperr.New(apperr.Validation, "transcript exceeds %d utterances (got %d)", MaxUtterances, len(raw.Transcript))
	}

	out := &Canonical{
		Summary:    raw.Summary,
		Transcript: make([]Utterance, 0, len(raw.Transcript)),
	}

	for i, u := range raw.Transcript {
		speaker := NormalizeSpeaker(u.Speaker)
		if speaker == "" {
			return nil, apperr.New(apperr.Validation, "utterance %d: speaker %q does not reduce to a valid role token", i, u.Speaker)
		}
		if err := checkTextAt(i, u.Text); err != nil {
			return nil, err
		}
		if !offsetRegex.MatchString(u.BeginTime) {
			return nil, apperr.New(apperr.Validation, "utterance %d: beginTime %q does not match MM:SS.mmm", i, u.BeginTime)
		}
		if !offsetRegex.MatchString(u.EndTime) {
			return nil, apperr.New(apperr.Validation, "utterance %d: endTime %q does not match MM:SS.mmm", i, u.EndTime)
		}

		out.Transcript = append(out.Transcript, Utterance{
			Speaker:     speaker,
			Text:        u.Text,
			BeginOffset: u.BeginTime,
			EndOffset:   u.EndTime,
		})
	}

	return out, nil
}

// NormalizeSpeaker uppercases a speaker label and strips everything outside
// [A-Z0-9_]. Returns "" when nothing survives.
func NormalizeSpeaker(s string) string {
	return speakerCharRegex.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
}

func checkText(field, s string, max int) error {
	if len(s) > max {
		return apperr.New(apperr.Validation, "%s exceeds %d characters (got %d)", field, max, len(s))
	}
	if pat := findInjection(s); pat != "" {
		return apperr.New(apperr.Validation, "%s contains disallowed pattern %q", field, pat)
	}
	return nil
}

func checkTextAt(i int, s string) error {
	if len(s) > MaxUtteranceChars {
		return apperr.New(apperr.Validation, "utterance %d: text exceeds %d characters (got %d)", i, MaxUtteranceChars, len(s))
	}
	if pat := findInjection(s); pat != "" {
		return apperr.New(apperr.Validation, "utterance %d: text contains disallowed pattern %q", i, pat)
	}
	return nil
}

func findInjection(s string) string {
	lower := strings.ToLower(s)
	for _, pat := range injectionPatterns {
		if strings.Contains(lower, pat) {
			return pat
		}
	}
	if m := eventHandlerRegex.FindString(s); m != "" {
		return m
	}
	return ""
}
