// Package localfs is an LMS backed by a directory export:
//
//	<root>/<assignment>/rubric.yaml
//	<root>/<assignment>/submissions.yaml
//	<root>/<assignment>/files/<submitter>/<filename>
//	<root>/<assignment>/posted.json          written by PostResults
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"GradePipeline/internal/domain"
	"GradePipeline/internal/ports"
	"GradePipeline/internal/workspace"
)

// Filters accepted by GetSubmissions.
const (
	FilterSubmitted = "submitted"
	FilterLate      = "late"
	FilterAll       = "all"
)

// LMS implements ports.LMS over a local directory tree.
type LMS struct {
	root   string
	layout workspace.Layout
	logger *slog.Logger
	mu     sync.Mutex
}

var _ ports.LMS = (*LMS)(nil)

// New reads assignments from root and downloads into the workspace layout.
func New(root string, layout workspace.Layout, logger *slog.Logger) *LMS {
	if logger == nil {
		logger = slog.Default()
	}
	return &LMS{root: root, layout: layout, logger: logger}
}

type submissionRecord struct {
	Submitter     string                 `yaml:"submitter"`
	Attempt       *int                   `yaml:"attempt"`
	Late          bool                   `yaml:"late"`
	Missing       bool                   `yaml:"missing"`
	WorkflowState string                 `yaml:"workflowState"`
	Attachments   []domain.AttachmentRef `yaml:"attachments"`
}

// GetRubric loads rubric.yaml. A missing file yields an empty rubric.
func (l *LMS) GetRubric(_ context.Context, assignmentID string) (domain.Rubric, error) {
	var rb domain.Rubric
	if err := l.readYAML(assignmentID, "rubric.yaml", &rb); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Rubric{}, nil
		}
		return nil, err
	}
	return rb, nil
}

// GetSubmissions loads submissions.yaml and applies the filter.
func (l *LMS) GetSubmissions(_ context.Context, assignmentID, filter string) ([]domain.Submission, error) {
	var records []submissionRecord
	if err := l.readYAML(assignmentID, "submissions.yaml", &records); err != nil {
		return nil, err
	}

	keep, err := filterFunc(filter)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Submission, 0, len(records))
	for _, r := range records {
		sub := domain.Submission{
			SubmitterID:   r.Submitter,
			Attempt:       r.Attempt,
			Late:          r.Late,
			Missing:       r.Missing,
			WorkflowState: r.WorkflowState,
			Attachments:   r.Attachments,
		}
		if keep(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func filterFunc(filter string) (func(domain.Submission) bool, error) {
	switch filter {
	case "", FilterSubmitted:
		return domain.Submission.Submitted, nil
	case FilterLate:
		return func(s domain.Submission) bool { return s.Late }, nil
	case FilterAll:
		return func(domain.Submission) bool { return true }, nil
	default:
		return nil, fmt.Errorf("%w: unknown submission filter %q", domain.ErrConfiguration, filter)
	}
}

// DownloadAttachments copies a submitter's files into the workspace. Files
// already present are reused; individual copy failures are logged and
// skipped.
func (l *LMS) DownloadAttachments(ctx context.Context, assignmentID string, sub domain.Submission) ([]domain.FileRef, error) {
	if len(sub.Attachments) == 0 {
		return nil, nil
	}

	dest := l.layout.SubmissionDir(assignmentID, sub.SubmitterID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	files := make([]domain.FileRef, 0, len(sub.Attachments))
	for _, att := range sub.Attachments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := filepath.Base(att.Filename)
		target := filepath.Join(dest, name)
		if _, err := os.Stat(target); err == nil {
			files = append(files, domain.FileRef{Path: target, Filename: name, ContentType: att.ContentType})
			continue
		}

		if err := copyFile(l.sourcePath(assignmentID, sub.SubmitterID, att), target); err != nil {
			l.logger.Warn("download attachment failed", "assignment", assignmentID, "file", name, "error", err)
			continue
		}
		files = append(files, domain.FileRef{Path: target, Filename: name, ContentType: att.ContentType})
	}
	return files, nil
}

func (l *LMS) sourcePath(assignmentID, submitterID string, att domain.AttachmentRef) string {
	if att.URL != "" && !strings.Contains(att.URL, "://") {
		return filepath.Join(l.root, assignmentID, filepath.FromSlash(att.URL))
	}
	return filepath.Join(l.root, assignmentID, "files", submitterID, filepath.Base(att.Filename))
}

// Posted is what PostResults records per submitter.
type Posted struct {
	Score            int                   `json:"posted_grade"`
	Comment          string                `json:"comment"`
	RubricAssessment map[string]Assessment `json:"rubric_assessment"`
}

// Assessment is one rubric item's posted points.
type Assessment struct {
	Points   float64 `json:"points"`
	Comments string  `json:"comments"`
}

// PostResults writes results into posted.json, merging with earlier posts.
// Scores are keyed by rubric item id; criteria that cannot be matched are
// logged and left out.
func (l *LMS) PostResults(ctx context.Context, assignmentID string, results []domain.RunResult) error {
	rb, err := l.GetRubric(ctx, assignmentID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.root, assignmentID, "posted.json")
	posted := map[string]Posted{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &posted); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, r := range results {
		assessment := make(map[string]Assessment, len(r.Result.Scores))
		for _, s := range r.Result.Scores {
			item, ok := matchCriterion(rb, s.Criterion)
			if !ok {
				l.logger.Warn("no rubric item for criterion", "assignment", assignmentID, "submitter", r.AnonLabel, "criterion", s.Criterion)
				continue
			}
			assessment[itemKey(item)] = Assessment{Points: s.Points, Comments: s.Reason}
		}
		posted[r.SubmitterID] = Posted{Score: r.Score, Comment: r.Result.OverallFeedback, RubricAssessment: assessment}
	}

	raw, err := json.MarshalIndent(posted, "", "  ")
	if err != nil {
		return fmt.Errorf("encode posted results: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// matchCriterion finds the rubric item for a criterion name: exact match,
// then case-insensitive, then the best fuzzy match.
func matchCriterion(rb domain.Rubric, criterion string) (domain.RubricItem, bool) {
	if item, ok := rb.Item(criterion); ok {
		return item, true
	}
	for _, item := range rb {
		if strings.EqualFold(item.Criterion, criterion) {
			return item, true
		}
	}
	if matches := fuzzy.Find(criterion, rb.Criteria()); len(matches) > 0 {
		return rb[matches[0].Index], true
	}
	return domain.RubricItem{}, false
}

func itemKey(item domain.RubricItem) string {
	if item.ID != "" {
		return item.ID
	}
	return item.Criterion
}

func (l *LMS) readYAML(assignmentID, name string, v any) error {
	path := filepath.Join(l.root, assignmentID, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
