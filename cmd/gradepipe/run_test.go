package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/domain"
)

func TestBuildRequestParsesStatuses(t *testing.T) {
	t.Parallel()

	req, err := buildRequest("A1", runArgs{filter: "all", statuses: []string{"late", "On Time"}, missingAsZero: true})
	require.NoError(t, err)
	assert.Equal(t, "A1", req.AssignmentID)
	assert.Equal(t, "all", req.Filter)
	assert.True(t, req.GradeMissingAsZero)
	assert.Equal(t, []domain.SubmissionStatus{domain.StatusLate, domain.StatusOnTime}, req.StatusFilter)

	_, err = buildRequest("A1", runArgs{statuses: []string{"excused"}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	was := 20
	batch := domain.BatchResult{
		RunID:        "run-1",
		AssignmentID: "A1",
		Rubric:       domain.Rubric{{Criterion: "Thesis", MaxPoints: 30}},
		Results: []domain.RunResult{
			{AnonLabel: "user001", Status: domain.StatusOnTime, Score: 14, Reviewed: true, Flagged: true, Substituted: true, OriginalScore: &was, ReviewConfidence: 0.9},
			{AnonLabel: "user002", Status: domain.StatusLate, Score: 25, Reviewed: true, Flagged: true, ReviewConfidence: 0.3},
		},
		Failures:   []domain.Failure{{AnonLabel: "user003", Status: domain.StatusOnTime, Bucket: domain.BucketNoText, Reason: "no extractable text"}},
		ExportPath: "data/grades/A1_grades.csv",
	}

	var buf bytes.Buffer
	printSummary(&buf, batch)
	out := buf.String()

	assert.Contains(t, out, "user001")
	assert.Contains(t, out, "substituted, was 20")
	assert.Contains(t, out, "flagged, confidence 0.30")
	assert.Contains(t, out, "skipped [no-text]: no extractable text")
	assert.Contains(t, out, "Review analytics: 2 reviewed, 2 flagged (100%), 1 substituted")
	assert.Contains(t, out, "score changes: mean 6.0, max 6 points")
	assert.Contains(t, out, "exported to data/grades/A1_grades.csv")
	assert.NotContains(t, out, "1001")
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "Post?"))
	assert.True(t, confirm(strings.NewReader("YES\n"), &out, "Post?"))
	assert.False(t, confirm(strings.NewReader("\n"), &out, "Post?"))
	assert.False(t, confirm(strings.NewReader(""), &out, "Post?"))
	assert.Contains(t, out.String(), "Post? [y/N]")
}
