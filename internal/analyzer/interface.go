package analyzer

import "context"

// Suggestion is one targeted rewrite recommendation for a CV section.
type Suggestion struct {
	Section    string `json:"section"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// Result is the structured outcome of one analysis run.
type Result struct {
	ATSScore         int          `json:"ats_score"`
	MatchingKeywords []string     `json:"matching_keywords"`
	MissingKeywords  []string     `json:"missing_keywords"`
	Strengths        []string     `json:"strengths"`
	Improvements     []string     `json:"improvements"`
	Suggestions      []Suggestion `json:"suggestions"`
	Summary          string       `json:"summary"`

	// TokensUsed is the provider's token accounting for this run.
	TokensUsed int `json:"-"`
}

// Analyzer scores a CV against a job description.
type Analyzer interface {
	Analyze(ctx context.Context, cvText, jobDescription, language string) (*Result, error)
}
