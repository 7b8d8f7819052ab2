package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"GradePipeline/internal/domain"
)

// Recommendation thresholds for Analytics.Recommendations.
const (
	highUnfairnessRate = 0.5
	largeChangeShare   = 0.3
	lowFlagConfidence  = 0.7
)

// Issue categories found in reviewer reasons.
const (
	IssueFileDetection        = "file detection"
	IssueRubricInterpretation = "rubric interpretation"
	IssueOverlyStrict         = "overly strict"
	IssueOverlyGenerous       = "overly generous"
)

var issuePatterns = []struct {
	category string
	patterns []*regexp.Regexp
}{
	{IssueFileDetection, compileAll(`did not provide specific updates`, `did not provide.*pdf`, `missing.*profile`, `no.*submission`)},
	{IssueRubricInterpretation, compileAll(`contradicts.*rubric`, `does not meet.*rubric`, `rubric.*requires`, `rubric.*expectations`)},
	{IssueOverlyStrict, compileAll(`too harsh`, `too strict`, `overly.*strict`, `should have been more lenient`)},
	{IssueOverlyGenerous, compileAll(`too lenient`, `too generous`, `overly.*generous`, `gave full credit.*despite`)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// ConfidenceBands counts flagged verdicts by reviewer confidence.
type ConfidenceBands struct {
	Low    int // below 0.4
	Medium int // 0.4 up to 0.7
	High   int // 0.7 and above
}

// Analytics summarises how the fairness review behaved over one batch.
type Analytics struct {
	Reviewed        int
	Flagged         int
	Substituted     int
	UnfairnessRate  float64
	MeanConfidence  float64
	Confidence      ConfidenceBands
	ScoreChanges    int
	MeanScoreChange float64
	MaxScoreChange  int
	RubricTotal     float64
	Issues          map[string]int
}

// Analyze computes review analytics from the results that went through the
// reviewer. Zero-filled and override-only results are not counted.
func Analyze(batch domain.BatchResult) Analytics {
	a := Analytics{
		RubricTotal: batch.Rubric.TotalPoints(),
		Issues:      map[string]int{},
	}

	var confSum, changeSum float64
	for _, r := range batch.Results {
		if !r.Reviewed {
			continue
		}
		a.Reviewed++
		if !r.Flagged {
			continue
		}

		a.Flagged++
		confSum += r.ReviewConfidence
		switch {
		case r.ReviewConfidence >= 0.7:
			a.Confidence.High++
		case r.ReviewConfidence >= 0.4:
			a.Confidence.Medium++
		default:
			a.Confidence.Low++
		}

		for _, ip := range issuePatterns {
			for _, re := range ip.patterns {
				a.Issues[ip.category] += len(re.FindAllStringIndex(r.ReviewReason, -1))
			}
		}

		if r.Substituted && r.OriginalScore != nil {
			a.Substituted++
			delta := r.Score - *r.OriginalScore
			if delta < 0 {
				delta = -delta
			}
			a.ScoreChanges++
			changeSum += float64(delta)
			a.MaxScoreChange = max(a.MaxScoreChange, delta)
		}
	}

	if a.Reviewed > 0 {
		a.UnfairnessRate = float64(a.Flagged) / float64(a.Reviewed)
	}
	if a.Flagged > 0 {
		a.MeanConfidence = confSum / float64(a.Flagged)
	}
	if a.ScoreChanges > 0 {
		a.MeanScoreChange = changeSum / float64(a.ScoreChanges)
	}
	return a
}

// Recommendations suggests prompt or rubric adjustments.
func (a Analytics) Recommendations() []string {
	var out []string
	if a.UnfairnessRate > highUnfairnessRate {
		out = append(out, fmt.Sprintf("High unfairness rate (%.0f%%): make the grader prompt more conservative or tighten the rubric.", a.UnfairnessRate*100))
	}
	if a.Issues[IssueFileDetection] > 0 {
		out = append(out, "File detection issues: tell the grader more explicitly which documents were submitted.")
	}
	if a.Issues[IssueRubricInterpretation] > 0 {
		out = append(out, "Rubric interpretation issues: add examples of meeting and not meeting each criterion.")
	}
	if a.Issues[IssueOverlyStrict] > a.Issues[IssueOverlyGenerous] {
		out = append(out, "Grading looks overly strict: weight evidence of understanding over perfect execution.")
	}
	if a.ScoreChanges > 0 && a.RubricTotal > 0 && a.MeanScoreChange/a.RubricTotal > largeChangeShare {
		out = append(out, "Large score changes: revisions suggest the rubric criteria are unclear.")
	}
	if a.Flagged > 0 && a.MeanConfidence < lowFlagConfidence {
		out = append(out, "Low reviewer confidence: clarify the review criteria and threshold.")
	}
	return out
}

// Report renders the analytics as indented text lines.
func (a Analytics) Report() string {
	if a.Reviewed == 0 {
		return "Review analytics: nothing reviewed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review analytics: %d reviewed, %d flagged (%.0f%%), %d substituted\n",
		a.Reviewed, a.Flagged, a.UnfairnessRate*100, a.Substituted)
	if a.Flagged > 0 {
		fmt.Fprintf(&b, "  confidence: mean %.2f, low %d, medium %d, high %d\n",
			a.MeanConfidence, a.Confidence.Low, a.Confidence.Medium, a.Confidence.High)
	}
	if a.ScoreChanges > 0 {
		fmt.Fprintf(&b, "  score changes: mean %.1f, max %d points\n", a.MeanScoreChange, a.MaxScoreChange)
	}
	for _, ip := range issuePatterns {
		if n := a.Issues[ip.category]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", ip.category, n)
		}
	}
	for _, r := range a.Recommendations() {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	return strings.TrimRight(b.String(), "\n")
}
