// Package rubric keeps grading results consistent with the rubric they were
// produced against.
package rubric

import (
	"math"

	"GradePipeline/internal/domain"
)

// NotAddressedReason is attached to criteria the grader left out.
const NotAddressedReason = "This criterion was not addressed in the submission."

// Reconcile completes, coerces and clamps a result. Applying it twice yields
// the same result as applying it once.
func Reconcile(result domain.GradingResult, rubric domain.Rubric) domain.GradingResult {
	return Clamp(Coerce(Complete(result, rubric)), rubric)
}

// Complete makes the criterion set equal the rubric's: missing criteria get a
// zero entry, unknown and repeated criteria are dropped. Matching is exact.
func Complete(result domain.GradingResult, rubric domain.Rubric) domain.GradingResult {
	out := result.Clone()
	if len(rubric) == 0 {
		return out
	}

	known := make(map[string]bool, len(rubric))
	for _, item := range rubric {
		known[item.Criterion] = true
	}

	seen := make(map[string]bool, len(out.Scores))
	scores := make([]domain.CriterionScore, 0, len(rubric))
	for _, s := range out.Scores {
		if !known[s.Criterion] || seen[s.Criterion] {
			continue
		}
		seen[s.Criterion] = true
		scores = append(scores, s)
	}

	for _, item := range rubric {
		if seen[item.Criterion] {
			continue
		}
		seen[item.Criterion] = true
		scores = append(scores, domain.CriterionScore{
			Criterion: item.Criterion,
			Points:    0,
			Reason:    NotAddressedReason,
		})
	}

	out.Scores = scores
	return out
}

// Coerce truncates every point value toward zero.
func Coerce(result domain.GradingResult) domain.GradingResult {
	out := result.Clone()
	for i := range out.Scores {
		p := out.Scores[i].Points
		if math.IsNaN(p) || math.IsInf(p, 0) {
			out.Scores[i].Points = 0
			continue
		}
		out.Scores[i].Points = math.Trunc(p)
	}
	return out
}

// Clamp zeroes any criterion awarded more than its maximum.
func Clamp(result domain.GradingResult, rubric domain.Rubric) domain.GradingResult {
	out := result.Clone()
	for i, s := range out.Scores {
		item, ok := rubric.Item(s.Criterion)
		if !ok {
			continue
		}
		if s.Points > item.MaxPoints {
			out.Scores[i].Points = 0
		}
	}
	return out
}

// Total sums the points of a result.
func Total(result domain.GradingResult) int {
	var total float64
	for _, s := range result.Scores {
		total += s.Points
	}
	return int(math.Trunc(total))
}
