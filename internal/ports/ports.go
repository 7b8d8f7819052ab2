package ports

import (
	"context"
	"time"

	"GradePipeline/internal/domain"
	"GradePipeline/internal/events"
)

// LMS is the learning management system the batch reads from and, after
// human approval, writes results back to.
type LMS interface {
	GetRubric(ctx context.Context, assignmentID string) (domain.Rubric, error)
	GetSubmissions(ctx context.Context, assignmentID, filter string) ([]domain.Submission, error)
	DownloadAttachments(ctx context.Context, assignmentID string, sub domain.Submission) ([]domain.FileRef, error)
	PostResults(ctx context.Context, assignmentID string, results []domain.RunResult) error
}

// MaterializeRequest describes one submitter's files and where the merged
// document should be written.
type MaterializeRequest struct {
	Files      []domain.FileRef
	OutputPath string
	Events     events.Emitter
}

// Materialized is the canonical document and text for one submitter.
type Materialized struct {
	DocumentPath string
	Text         string
	Usable       int
	Skipped      []SkippedFile
	UsedOCR      bool
}

// SkippedFile is an attachment that could not contribute to the document.
type SkippedFile struct {
	Filename string
	Reason   string
}

// Materializer turns raw attachments into a canonical document plus text.
type Materializer interface {
	Materialize(ctx context.Context, req MaterializeRequest) (Materialized, error)
}

// Grader produces the primary grading result.
type Grader interface {
	Grade(ctx context.Context, text string, rubric domain.Rubric, documentPath string) (domain.GradingResult, error)
}

// ReadinessChecker is implemented by adapters that can tell before a batch
// starts that they cannot work, e.g. for missing credentials.
type ReadinessChecker interface {
	Ready() error
}

// Reviewer audits a primary result against the submission document.
type Reviewer interface {
	Review(ctx context.Context, primary domain.GradingResult, rubric domain.Rubric, documentPath string) (domain.ReviewVerdict, error)
}

// Exporter persists a batch's results and returns where they went.
type Exporter interface {
	Export(ctx context.Context, assignmentID, runID string, results []domain.RunResult) (string, error)
}

// ProgressSink receives batch log lines and (completed, total) ticks.
type ProgressSink = events.Sink

// Notifier pushes a batch summary to a chat channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when recurring batches execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
