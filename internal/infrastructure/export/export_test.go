package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/domain"
)

func sampleResults() []domain.RunResult {
	original := 14
	return []domain.RunResult{
		{
			SubmitterID: "42", AnonLabel: "user001", Score: 20, Substituted: true,
			SubstitutionReason: "completeness undercounted", Status: domain.StatusOnTime,
			OriginalScore: &original, OriginalFeedback: "primary",
			Result: domain.GradingResult{
				Scores:          []domain.CriterionScore{{Criterion: "Clarity", Points: 10, Reason: "clear"}, {Criterion: "Completeness", Points: 10, Reason: "all, \"quoted\""}},
				OverallFeedback: "reviewer",
			},
		},
		{SubmitterID: "7", AnonLabel: "user002", Score: 3, Status: domain.StatusLate, Result: domain.GradingResult{OverallFeedback: "ok"}},
	}
}

func TestCSVExporter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := NewCSVExporter(dir).Export(context.Background(), "101", "run-1", sampleResults())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "101_grades.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{
		"real_id", "anon_label", "total_score", "substituted", "substitution_reason",
		"feedback", "rubric_details", "status", "original_score", "original_feedback",
	}, records[0])
	assert.Equal(t, "42", records[1][0])
	assert.Equal(t, "true", records[1][3])
	assert.Equal(t, "Clarity: 10 pts - clear\nCompleteness: 10 pts - all, \"quoted\"", records[1][6])
	assert.Equal(t, "14", records[1][8])
	assert.Equal(t, "", records[2][8])
	assert.Equal(t, "Late", records[2][7])
}

func TestCSVExporterRejectsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewCSVExporter(dir).Export(context.Background(), "101", "run-1", nil)
	assert.ErrorIs(t, err, ErrNothingToExport)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLInsertQueryPostgres(t *testing.T) {
	t.Parallel()

	e := NewSQLExporter(nil, Postgres, "")
	query, args, err := e.insertQuery("101", "run-1", sampleResults())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, `INSERT INTO "grading_results" (run_id,assignment_id,"real_id"`))
	assert.Contains(t, query, "$24")
	assert.Len(t, args, 24)
	assert.Equal(t, "run-1", args[0])
	assert.Equal(t, "101", args[1])
	assert.Equal(t, "42", args[2])
}

func TestSQLInsertQueryMySQL(t *testing.T) {
	t.Parallel()

	e := NewSQLExporter(nil, MySQL, "grades")
	query, args, err := e.insertQuery("101", "run-1", sampleResults()[:1])
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO `grades` (run_id,assignment_id,`real_id`"))
	assert.NotContains(t, query, "$1")
	assert.Equal(t, 12, strings.Count(query, "?"))
	assert.Len(t, args, 12)
}

func TestSQLExporterRequiresResults(t *testing.T) {
	t.Parallel()

	_, err := NewSQLExporter(nil, Postgres, "").Export(context.Background(), "1", "r", nil)
	assert.ErrorIs(t, err, ErrNothingToExport)
}
