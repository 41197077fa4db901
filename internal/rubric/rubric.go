// Package rubric holds the QA scoring rubric: 18 named criteria grouped
// into 4 categories. The rubric content is configuration, not logic; it
// can be overridden from YAML but ships with the standard hotline rubric
// compiled in.
package rubric

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Criterion is one scored rubric item.
type Criterion struct {
	Key         string `yaml:"key" json:"key"`
	Description string `yaml:"description" json:"description"`
	MaxScore    int    `yaml:"max_score" json:"maxScore"`
}

// Category owns an ordered set of criteria.
type Category struct {
	Name     string      `yaml:"name" json:"name"`
	Criteria []Criterion `yaml:"criteria" json:"criteria"`
}

// Rubric is the full scoring specification.
type Rubric struct {
	Categories []Category `yaml:"categories" json:"categories"`
}

// Default returns the standard crisis-line QA rubric. Raw criterion maxima
// sum to 23; with the x4 category multiplier the ceiling is 92.
func Default() *Rubric {
	return &Rubric{
		Categories: []Category{
			{
				Name: "Call Opening",
				Criteria: []Criterion{
					{Key: "greeting_protocol", Description: "Answers with the standard line greeting", MaxScore: 1},
					{Key: "identifies_self", Description: "Gives their first name", MaxScore: 1},
					{Key: "confidentiality_statement", Description: "States the confidentiality policy when required", MaxScore: 1},
					{Key: "establishes_rapport", Description: "Warm, unhurried tone in the first minute", MaxScore: 1},
				},
			},
			{
				Name: "Risk Assessment",
				Criteria: []Criterion{
					{Key: "suicide_risk_inquiry", Description: "Asks directly about suicidal thoughts", MaxScore: 2},
					{Key: "risk_followup_questions", Description: "Follows affirmative answers with plan/timeline questions", MaxScore: 2},
					{Key: "means_assessment", Description: "Assesses access to means", MaxScore: 2},
					{Key: "prior_attempts_explored", Description: "Explores history of prior attempts", MaxScore: 2},
					{Key: "safety_planning", Description: "Builds or revisits a safety plan with the caller", MaxScore: 2},
					{Key: "protective_factors_explored", Description: "Identifies reasons for living / protective factors", MaxScore: 1},
				},
			},
			{
				Name: "Intervention and Support",
				Criteria: []Criterion{
					{Key: "active_listening", Description: "Reflects and paraphrases the caller's statements", MaxScore: 1},
					{Key: "validates_feelings", Description: "Validates emotions without judgment", MaxScore: 1},
					{Key: "explores_coping", Description: "Explores what has helped the caller before", MaxScore: 1},
					{Key: "collaborative_problem_solving", Description: "Develops next steps with, not for, the caller", MaxScore: 1},
					{Key: "resource_referral", Description: "Offers appropriate local resources or warm handoff", MaxScore: 1},
				},
			},
			{
				Name: "Call Closing",
				Criteria: []Criterion{
					{Key: "summarizes_call", Description: "Summarizes what was discussed and agreed", MaxScore: 1},
					{Key: "followup_plan", Description: "Confirms a concrete follow-up plan", MaxScore: 1},
					{Key: "appropriate_termination", Description: "Ends the call only once the caller is safe to end", MaxScore: 1},
				},
			},
		},
	}
}

// Load reads a rubric from a YAML file, validating its shape.
func Load(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rubric file: %w", err)
	}
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing rubric file: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks structural invariants: non-empty categories, unique
// criterion keys, positive maxima.
func (r *Rubric) Validate() error {
	if len(r.Categories) == 0 {
		return fmt.Errorf("rubric has no categories")
	}
	seen := make(map[string]bool)
	for _, cat := range r.Categories {
		if cat.Name == "" {
			return fmt.Errorf("rubric category with empty name")
		}
		if len(cat.Criteria) == 0 {
			return fmt.Errorf("rubric category %q has no criteria", cat.Name)
		}
		for _, c := range cat.Criteria {
			if c.Key == "" {
				return fmt.Errorf("rubric category %q has a criterion with empty key", cat.Name)
			}
			if seen[c.Key] {
				return fmt.Errorf("duplicate criterion key %q", c.Key)
			}
			seen[c.Key] = true
			if c.MaxScore <= 0 {
				return fmt.Errorf("criterion %q has non-positive max score", c.Key)
			}
		}
	}
	return nil
}

// CriterionCount returns the number of criteria across all categories.
func (r *Rubric) CriterionCount() int {
	n := 0
	for _, cat := range r.Categories {
		n += len(cat.Criteria)
	}
	return n
}

// MaxRawScore returns the sum of all criterion maxima.
func (r *Rubric) MaxRawScore() int {
	total := 0
	for _, cat := range r.Categories {
		for _, c := range cat.Criteria {
			total += c.MaxScore
		}
	}
	return total
}

// MaxFor returns the maximum score for a criterion key, or 0 if unknown.
func (r *Rubric) MaxFor(key string) int {
	for _, cat := range r.Categories {
		for _, c := range cat.Criteria {
			if c.Key == key {
				return c.MaxScore
			}
		}
	}
	return 0
}
