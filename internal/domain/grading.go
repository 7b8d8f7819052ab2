package domain

import (
	"fmt"
	"strings"
)

// CriterionScore is the points and justification for one rubric criterion.
type CriterionScore struct {
	Criterion string  `json:"criterion"`
	Points    float64 `json:"points"`
	Reason    string  `json:"reason"`
}

// GradingResult is what a grader (or a reviewer's alternative) produces.
// A sentinel result has no scores and carries a diagnostic in OverallFeedback.
type GradingResult struct {
	Scores          []CriterionScore `json:"rubric_scores"`
	OverallFeedback string           `json:"overall_feedback"`
	Sentinel        bool             `json:"-"`
}

// SentinelResult builds the placeholder returned for unusable model output.
func SentinelResult(diagnostic string) GradingResult {
	return GradingResult{
		Scores:          []CriterionScore{},
		OverallFeedback: diagnostic,
		Sentinel:        true,
	}
}

// Clone returns a deep copy so reconciliation never aliases caller slices.
func (g GradingResult) Clone() GradingResult {
	out := g
	out.Scores = append([]CriterionScore(nil), g.Scores...)
	return out
}

// Score returns the entry for a criterion, if present.
func (g GradingResult) Score(criterion string) (CriterionScore, bool) {
	for _, s := range g.Scores {
		if s.Criterion == criterion {
			return s, true
		}
	}
	return CriterionScore{}, false
}

// ReviewVerdict is the fairness reviewer's opinion on a primary result.
type ReviewVerdict struct {
	Fair        bool
	Reason      string
	Confidence  float64
	Alternative *GradingResult
}

// DefaultVerdict is used whenever the reviewer cannot produce an answer.
func DefaultVerdict() ReviewVerdict {
	return ReviewVerdict{Fair: true, Confidence: 0}
}

// Normalize enforces the verdict shape: confidence within [0,1], and a
// reason plus alternative only when the verdict is unfair.
func (v ReviewVerdict) Normalize() ReviewVerdict {
	switch {
	case v.Confidence < 0 || v.Confidence != v.Confidence:
		v.Confidence = 0
	case v.Confidence > 1:
		v.Confidence = 1
	}
	if v.Fair {
		v.Reason = ""
		v.Alternative = nil
	}
	return v
}

// RunResult is the final per-submitter record of a batch.
type RunResult struct {
	AnonLabel          string
	SubmitterID        string
	Score              int
	Result             GradingResult
	Substituted        bool
	SubstitutionReason string
	Flagged            bool
	Reviewed           bool
	ReviewReason       string
	ReviewConfidence   float64
	OriginalScore      *int
	OriginalFeedback   string
	Status             SubmissionStatus
	ExtractionFailed   bool
	Overridden         bool
}

// RubricDetails renders one line per criterion for exports and review screens.
func (r RunResult) RubricDetails() string {
	lines := make([]string, 0, len(r.Result.Scores))
	for _, s := range r.Result.Scores {
		lines = append(lines, fmt.Sprintf("%s: %s pts - %s", s.Criterion, formatPoints(s.Points), s.Reason))
	}
	return strings.Join(lines, "\n")
}

func formatPoints(p float64) string {
	if p == float64(int64(p)) {
		return fmt.Sprintf("%d", int64(p))
	}
	return fmt.Sprintf("%.2f", p)
}
