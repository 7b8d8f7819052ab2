package domain

import "time"

// FailureBucket classifies why a submitter produced no RunResult.
type FailureBucket string

const (
	BucketNoFiles      FailureBucket = "no-files"
	BucketNoText       FailureBucket = "no-text"
	BucketGradingError FailureBucket = "grading-error"
)

// Failure records a skipped submitter. Every skipped submitter lands in
// exactly one bucket.
type Failure struct {
	SubmitterID string
	AnonLabel   string
	Status      SubmissionStatus
	Bucket      FailureBucket
	Reason      string
}

// BatchResult aggregates one grading run over an assignment.
type BatchResult struct {
	RunID        string
	AssignmentID string
	Rubric       Rubric
	Results      []RunResult
	Failures     []Failure
	NotScheduled []string
	ExportPath   string
	Logs         []string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// FailuresIn filters failures by bucket.
func (b BatchResult) FailuresIn(bucket FailureBucket) []Failure {
	var out []Failure
	for _, f := range b.Failures {
		if f.Bucket == bucket {
			out = append(out, f)
		}
	}
	return out
}

// Substitutions counts results whose final grade came from the reviewer.
func (b BatchResult) Substitutions() int {
	n := 0
	for _, r := range b.Results {
		if r.Substituted {
			n++
		}
	}
	return n
}

// Override is a manual correction applied after consensus.
type Override struct {
	Score    *int             `yaml:"score"`
	Feedback string           `yaml:"feedback"`
	Scores   []CriterionScore `yaml:"scores"`
}
