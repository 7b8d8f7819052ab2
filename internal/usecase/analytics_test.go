package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/domain"
)

func intPtr(v int) *int { return &v }

func analyticsBatch() domain.BatchResult {
	return domain.BatchResult{
		RunID:        "run-1",
		AssignmentID: "A1",
		Rubric:       testRubric,
		Results: []domain.RunResult{
			{AnonLabel: "user001", Reviewed: true, Score: 25, ReviewConfidence: 0.9},
			{AnonLabel: "user002", Reviewed: true, Flagged: true, Substituted: true, Score: 10, OriginalScore: intPtr(22),
				ReviewConfidence: 0.85, ReviewReason: "The grader was too lenient; the work does not meet the rubric."},
			{AnonLabel: "user003", Reviewed: true, Flagged: true, Score: 18, ReviewConfidence: 0.3,
				ReviewReason: "Grading was too harsh on style."},
			{AnonLabel: "user004", Reviewed: true, Flagged: true, Substituted: true, Score: 20, OriginalScore: intPtr(16),
				ReviewConfidence: 0.5, ReviewReason: "Overly strict; should have been more lenient."},
			{AnonLabel: "user005", Score: 0, Status: domain.StatusMissing},
		},
	}
}

func TestAnalyzeCountsReviewedResults(t *testing.T) {
	t.Parallel()

	a := Analyze(analyticsBatch())

	assert.Equal(t, 4, a.Reviewed)
	assert.Equal(t, 3, a.Flagged)
	assert.Equal(t, 2, a.Substituted)
	assert.InDelta(t, 0.75, a.UnfairnessRate, 1e-9)
	assert.InDelta(t, (0.85+0.3+0.5)/3, a.MeanConfidence, 1e-9)
	assert.Equal(t, ConfidenceBands{Low: 1, Medium: 1, High: 1}, a.Confidence)

	assert.Equal(t, 2, a.ScoreChanges)
	assert.InDelta(t, 8.0, a.MeanScoreChange, 1e-9)
	assert.Equal(t, 12, a.MaxScoreChange)

	assert.Equal(t, 1, a.Issues[IssueRubricInterpretation])
	assert.Equal(t, 1, a.Issues[IssueOverlyGenerous])
	assert.Equal(t, 3, a.Issues[IssueOverlyStrict])
	assert.Zero(t, a.Issues[IssueFileDetection])
}

func TestAnalyticsRecommendations(t *testing.T) {
	t.Parallel()

	recs := Analyze(analyticsBatch()).Recommendations()
	require.Len(t, recs, 4)
	assert.Contains(t, recs[0], "High unfairness rate (75%)")
	assert.Contains(t, recs[1], "Rubric interpretation")
	assert.Contains(t, recs[2], "overly strict")
	assert.Contains(t, recs[3], "Low reviewer confidence")

	calm := domain.BatchResult{Rubric: testRubric, Results: []domain.RunResult{
		{Reviewed: true, ReviewConfidence: 0.9},
		{Reviewed: true, Flagged: true, Substituted: true, Score: 5, OriginalScore: intPtr(25), ReviewConfidence: 0.95},
	}}
	recs = Analyze(calm).Recommendations()
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0], "Large score changes")
}

func TestAnalyticsReport(t *testing.T) {
	t.Parallel()

	report := Analyze(analyticsBatch()).Report()
	assert.Contains(t, report, "4 reviewed, 3 flagged (75%), 2 substituted")
	assert.Contains(t, report, "confidence: mean 0.55, low 1, medium 1, high 1")
	assert.Contains(t, report, "score changes: mean 8.0, max 12 points")
	assert.Contains(t, report, "overly strict: 3")

	assert.Equal(t, "Review analytics: nothing reviewed", Analyze(domain.BatchResult{}).Report())
}

func TestDigestIncludesReviewRate(t *testing.T) {
	t.Parallel()

	digest := Digest(analyticsBatch())
	assert.Contains(t, digest, "Review: 75% flagged, mean confidence 0.55")
	assert.NotContains(t, Digest(domain.BatchResult{RunID: "r", AssignmentID: "A1"}), "Review:")
}
