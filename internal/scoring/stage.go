package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/havenline/call-qa/internal/pkg/apperr"
	"github.com/havenline/call-qa/internal/pkg/logger"
	"github.com/havenline/call-qa/internal/rubric"
	"github.com/havenline/call-qa/internal/transcript"
)

// ModelInvoker executes one scoring request against one model and returns
// the raw text reply. Implementations wrap a concrete LLM service.
type ModelInvoker interface {
	Invoke(ctx context.Context, modelID, prompt string) (string, error)
}

// Stage scores a canonical transcript against the rubric using an ordered
// fallback chain of model identifiers: each model is tried in turn and the
// first reply wins, regardless of which model produced it.
type Stage struct {
	invoker  ModelInvoker
	modelIDs []string
	rubric   *rubric.Rubric
}

// NewStage builds a scoring stage. modelIDs must be non-empty.
func NewStage(invoker ModelInvoker, modelIDs []string, r *rubric.Rubric) *Stage {
	return &Stage{invoker: invoker, modelIDs: modelIDs, rubric: r}
}

// Score sends the transcript through the fallback chain and parses the
// winning reply. When every model fails it returns an external-service
// error wrapping the last failure. When a model answers but the reply is
// not valid JSON, Score does NOT fail: it returns a degraded Result
// carrying the raw text, and the job continues.
func (s *Stage) Score(ctx context.Context, c *transcript.Canonical) (*Result, error) {
	prompt := s.buildPrompt(c)

	var reply, winner string
	var lastErr error
	for _, modelID := range s.modelIDs {
		text, err := s.invoker.Invoke(ctx, modelID, prompt)
		if err != nil {
			lastErr = err
			logger.Warn("scoring: model failed, trying next",
				"model", modelID, "error", err.Error())
			continue
		}
		reply, winner = text, modelID
		break
	}
	if winner == "" {
		return nil, apperr.Wrap(apperr.External, lastErr,
			"all %d scoring models failed", len(s.modelIDs))
	}

	verdicts, err := parseVerdicts(reply)
	if err != nil {
		logger.Warn("scoring: reply is not parseable JSON, degrading",
			"model", winner, "error", err.Error())
		return &Result{
			RawAnalysis: reply,
			Summary:     c.Summary,
			ModelID:     winner,
		}, nil
	}

	return &Result{
		Verdicts: verdicts,
		Summary:  c.Summary,
		ModelID:  winner,
	}, nil
}

// buildPrompt renders the rubric and transcript into the scoring request.
func (s *Stage) buildPrompt(c *transcript.Canonical) string {
	var b strings.Builder

	b.WriteString("You are a quality-assurance reviewer for a crisis hotline. ")
	b.WriteString("Score the call transcript below against each rubric criterion.\n\n")

	b.WriteString("## Rubric\n")
	for _, cat := range s.rubric.Categories {
		fmt.Fprintf(&b, "### %s\n", cat.Name)
		for _, cr := range cat.Criteria {
			fmt.Fprintf(&b, "- %s (0-%d): %s\n", cr.Key, cr.MaxScore, cr.Description)
		}
	}

	b.WriteString("\n## Call Summary\n")
	b.WriteString(c.Summary)

	b.WriteString("\n\n## Transcript\n")
	for _, u := range c.Transcript {
		fmt.Fprintf(&b, "[%s - %s] %s: %s\n", u.BeginOffset, u.EndOffset, u.Speaker, u.Text)
	}

	b.WriteString("\nRespond with a single JSON object keyed by criterion key. ")
	b.WriteString(`Each value must be {"score": <integer>, "label": <short verdict>, `)
	b.WriteString(`"observation": <one-sentence rationale>, "evidence": <quoted transcript line with timestamp, or "N/A">}. `)
	b.WriteString("No text outside the JSON object.")

	return b.String()
}

// rawVerdict tolerates numeric scores arriving as JSON numbers.
type rawVerdict struct {
	Score       json.Number `json:"score"`
	Label       string      `json:"label"`
	Observation string      `json:"observation"`
	Evidence    string      `json:"evidence"`
}

// parseVerdicts decodes the model reply as a JSON object keyed by criterion
// name. Models often wrap the object in fences or preamble, so when a
// direct decode fails the outermost {...} span is tried once before giving up.
func parseVerdicts(reply string) (map[string]Verdict, error) {
	raw := make(map[string]rawVerdict)
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		start := strings.Index(reply, "{")
		end := strings.LastIndex(reply, "}")
		if start < 0 || end <= start {
			return nil, apperr.Wrap(apperr.Parse, err, "reply contains no JSON object")
		}
		if err2 := json.Unmarshal([]byte(reply[start:end+1]), &raw); err2 != nil {
			return nil, apperr.Wrap(apperr.Parse, err2, "reply is not a JSON verdict object")
		}
	}

	verdicts := make(map[string]Verdict, len(raw))
	for key, rv := range raw {
		score := 0
		if f, err := rv.Score.Float64(); err == nil {
			score = int(f)
		}
		if score < 0 {
			score = 0
		}
		evidence := rv.Evidence
		if evidence == "" {
			evidence = "N/A"
		}
		verdicts[key] = Verdict{
			Score:       score,
			Label:       rv.Label,
			Observation: rv.Observation,
			Evidence:    evidence,
		}
	}
	return verdicts, nil
}
