package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradePipeline/internal/config"
	"GradePipeline/internal/domain"
	"GradePipeline/internal/infrastructure/progress"
	"GradePipeline/internal/logging"
	"GradePipeline/internal/usecase"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("GRADEPIPE_WORKSPACE", t.TempDir())
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	cfg.LMS.Root = t.TempDir()
	cfg.Metrics.Addr = ""
	cfg.Grader.APIKey = "test-key"
	return cfg
}

func TestRunRejectsMissingGraderKeyBeforeGrading(t *testing.T) {
	cfg := testConfig(t)
	cfg.Grader.APIKey = ""
	writeAssignment(t, cfg.LMS.Root, "A1")

	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	batch, err := application.Run(context.Background(), usecase.BatchRequest{AssignmentID: "A1"}, &progress.Recorder{})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "api key")
	assert.Empty(t, batch.Failures)
}

func TestRunAppliesConfiguredMissingAsZero(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.GradeMissingAsZero = true
	cfg.Pipeline.Filter = "all"
	writeAssignment(t, cfg.LMS.Root, "A1")

	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	batch, err := application.Run(context.Background(), usecase.BatchRequest{AssignmentID: "A1"}, &progress.Recorder{})
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "1003", batch.Results[0].SubmitterID)
	assert.Equal(t, domain.StatusMissing, batch.Results[0].Status)
	assert.Zero(t, batch.Results[0].Score)
	assert.FileExists(t, batch.ExportPath)
}

func writeAssignment(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rubric.yaml"), []byte(`
- id: r1
  criterion: Thesis
  maxPoints: 10
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "submissions.yaml"), []byte(`
- submitter: "1003"
  missing: true
  workflowState: unsubmitted
`), 0o644))
}

func TestRunRejectsMissingRubric(t *testing.T) {
	cfg := testConfig(t)
	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	rec := &progress.Recorder{}
	_, err = application.Run(context.Background(), usecase.BatchRequest{AssignmentID: "A1"}, rec)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.NotEmpty(t, rec.Lines())
}

func TestRunRejectsInvalidAssignment(t *testing.T) {
	cfg := testConfig(t)
	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	_, err = application.Run(context.Background(), usecase.BatchRequest{AssignmentID: "../x"}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestWatchRequiresAssignments(t *testing.T) {
	cfg := testConfig(t)
	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	assert.ErrorIs(t, application.Watch(context.Background()), domain.ErrConfiguration)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
"1001":
  score: 18
  feedback: Discussed in office hours.
"1002":
  scores:
    - criterion: Thesis
      points: 9
      reason: regraded
`), 0o644))

	overrides, err := LoadOverrides(path)
	require.NoError(t, err)
	require.Len(t, overrides, 2)
	require.NotNil(t, overrides["1001"].Score)
	assert.Equal(t, 18, *overrides["1001"].Score)
	assert.Equal(t, "Discussed in office hours.", overrides["1001"].Feedback)
	assert.Equal(t, []domain.CriterionScore{{Criterion: "Thesis", Points: 9, Reason: "regraded"}}, overrides["1002"].Scores)

	_, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
