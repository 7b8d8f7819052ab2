package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"GradePipeline/internal/anonymize"
	"GradePipeline/internal/consensus"
	"GradePipeline/internal/domain"
	"GradePipeline/internal/events"
	"GradePipeline/internal/metrics"
	"GradePipeline/internal/ports"
	"GradePipeline/internal/rubric"
	"GradePipeline/internal/workspace"
)

const (
	missingReason   = "No work submitted."
	missingFeedback = "No submission received."
	overrideName    = "Manual Override"
	overrideReason  = "Instructor override"
)

var assignmentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Options tunes batch execution.
type Options struct {
	Concurrency      int
	SubmitterTimeout time.Duration
	FeedbackFooter   string
	Filter           string
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	LMS          ports.LMS
	Materializer ports.Materializer
	Grader       ports.Grader
	Reviewer     ports.Reviewer
	Exporter     ports.Exporter
	Notifier     ports.Notifier
	Resolver     *consensus.Resolver
	Layout       workspace.Layout
	Metrics      *metrics.Pipeline
	Logger       *slog.Logger
	Options      Options
}

// Pipeline grades every submitter of an assignment.
type Pipeline struct {
	lms          ports.LMS
	materializer ports.Materializer
	grader       ports.Grader
	reviewer     ports.Reviewer
	exporter     ports.Exporter
	notifier     ports.Notifier
	resolver     *consensus.Resolver
	layout       workspace.Layout
	metrics      *metrics.Pipeline
	logger       *slog.Logger
	opts         Options
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Resolver == nil {
		deps.Resolver = consensus.NewResolver(consensus.DefaultThreshold)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Options.Concurrency < 1 {
		deps.Options.Concurrency = 1
	}
	return &Pipeline{
		lms:          deps.LMS,
		materializer: deps.Materializer,
		grader:       deps.Grader,
		reviewer:     deps.Reviewer,
		exporter:     deps.Exporter,
		notifier:     deps.Notifier,
		resolver:     deps.Resolver,
		layout:       deps.Layout,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		opts:         deps.Options,
	}
}

// BatchRequest selects what a run grades.
type BatchRequest struct {
	AssignmentID string
	// RunID tags the batch; empty generates one.
	RunID string
	// Filter is passed to the LMS; empty uses Options.Filter.
	Filter string
	// Submissions, when non-nil, replaces the LMS listing.
	Submissions        []domain.Submission
	StatusFilter       []domain.SubmissionStatus
	GradeMissingAsZero bool
	// Overrides are keyed by real submitter id.
	Overrides map[string]domain.Override
}

// ValidateAssignmentID rejects ids that cannot name an LMS assignment or a
// workspace directory.
func ValidateAssignmentID(id string) error {
	if !assignmentIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid assignment id %q", domain.ErrConfiguration, id)
	}
	return nil
}

type outcome struct {
	result  *domain.RunResult
	failure *domain.Failure
}

func (o outcome) label() string {
	if o.failure != nil {
		return string(o.failure.Bucket)
	}
	return "graded"
}

// batchContext is the read-only state shared by all submitters of a run.
type batchContext struct {
	req     BatchRequest
	rubric  domain.Rubric
	mapping anonymize.Mapping
	journal *events.Journal
}

// RunBatch grades all selected submitters of an assignment. Configuration
// and integrity problems abort before any submitter is touched. Per-submitter
// problems are recorded as failures. When ctx is cancelled, submitters
// already running finish, the rest are listed in NotScheduled, and the
// partial batch is returned together with the cancellation error.
func (p *Pipeline) RunBatch(ctx context.Context, req BatchRequest, sink ports.ProgressSink) (domain.BatchResult, error) {
	req.AssignmentID = strings.TrimSpace(req.AssignmentID)
	journal := events.NewJournal(sink)
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	batch := domain.BatchResult{
		RunID:        req.RunID,
		AssignmentID: req.AssignmentID,
		StartedAt:    time.Now(),
	}

	if err := ValidateAssignmentID(req.AssignmentID); err != nil {
		journal.Emit("invalid assignment id %q", req.AssignmentID)
		batch.Logs = journal.Lines()
		return batch, err
	}

	rb, subs, mapping, err := p.prepare(ctx, req, journal)
	batch.Rubric = rb
	if err != nil {
		batch.Logs = journal.Lines()
		return batch, err
	}

	p.logger.Info("batch started", "run_id", batch.RunID, "assignment", req.AssignmentID, "submitters", len(subs))
	journal.Emit("grading %d submitter(s) for assignment %s", len(subs), req.AssignmentID)
	journal.Start(len(subs))

	bc := batchContext{req: req, rubric: rb, mapping: mapping, journal: journal}
	outcomes := make([]outcome, len(subs))
	started := make([]bool, len(subs))
	// Running submitters are detached from batch cancellation; only
	// scheduling stops.
	work := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)
	for i, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			started[i] = true
			outcomes[i] = p.gradeSubmitter(work, bc, sub)
			journal.Tick()
			return nil
		})
	}
	_ = g.Wait()

	for i, sub := range subs {
		switch {
		case !started[i]:
			batch.NotScheduled = append(batch.NotScheduled, mapping.Lookup(sub.SubmitterID))
		case outcomes[i].result != nil:
			batch.Results = append(batch.Results, *outcomes[i].result)
		case outcomes[i].failure != nil:
			batch.Failures = append(batch.Failures, *outcomes[i].failure)
		}
	}
	if len(batch.NotScheduled) > 0 {
		journal.Emit("batch cancelled: %d submitter(s) not scheduled", len(batch.NotScheduled))
	}

	p.export(work, &batch, journal)
	journal.Emit("batch complete: %d graded, %d skipped", len(batch.Results), len(batch.Failures))
	p.notify(work, batch)

	batch.FinishedAt = time.Now()
	batch.Logs = journal.Lines()
	p.logger.Info("batch finished",
		"run_id", batch.RunID,
		"graded", len(batch.Results),
		"failed", len(batch.Failures),
		"not_scheduled", len(batch.NotScheduled),
		"duration", batch.FinishedAt.Sub(batch.StartedAt))

	if err := ctx.Err(); err != nil {
		return batch, fmt.Errorf("batch %s cancelled: %w", batch.RunID, err)
	}
	return batch, nil
}

// prepare performs the batch-level checks: rubric, submitter listing and
// anonymization.
func (p *Pipeline) prepare(ctx context.Context, req BatchRequest, journal *events.Journal) (domain.Rubric, []domain.Submission, anonymize.Mapping, error) {
	if checker, ok := p.grader.(ports.ReadinessChecker); ok {
		if err := checker.Ready(); err != nil {
			journal.Emit("grader is not ready: %v", err)
			if !errors.Is(err, domain.ErrConfiguration) {
				err = fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
			}
			return nil, nil, anonymize.Mapping{}, err
		}
	}

	rb, err := p.lms.GetRubric(ctx, req.AssignmentID)
	if err != nil {
		journal.Emit("could not fetch rubric for assignment %s: %v", req.AssignmentID, err)
		return nil, nil, anonymize.Mapping{}, fmt.Errorf("%w: fetch rubric: %v", domain.ErrConfiguration, err)
	}
	warnings, err := rubric.Validate(rb)
	if err != nil {
		journal.Emit("invalid rubric: %v", err)
		return rb, nil, anonymize.Mapping{}, err
	}
	for _, w := range warnings {
		journal.Emit("rubric warning: %s", w)
	}

	subs := req.Submissions
	if subs == nil {
		filter := req.Filter
		if filter == "" {
			filter = p.opts.Filter
		}
		subs, err = p.lms.GetSubmissions(ctx, req.AssignmentID, filter)
		if err != nil {
			journal.Emit("could not list submissions: %v", err)
			return rb, nil, anonymize.Mapping{}, fmt.Errorf("list submissions: %w", err)
		}
	}
	subs = filterByStatus(subs, req.StatusFilter)

	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.SubmitterID
	}
	mapping, err := anonymize.Build(ids)
	if err != nil {
		journal.Emit("anonymization failed: %v", err)
		return rb, nil, anonymize.Mapping{}, err
	}
	return rb, subs, mapping, nil
}

func filterByStatus(subs []domain.Submission, statuses []domain.SubmissionStatus) []domain.Submission {
	if len(statuses) == 0 {
		return subs
	}
	allowed := make(map[domain.SubmissionStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	out := make([]domain.Submission, 0, len(subs))
	for _, s := range subs {
		if allowed[s.Status()] {
			out = append(out, s)
		}
	}
	return out
}

// gradeSubmitter runs every stage for one submitter and always yields
// exactly one result or failure.
func (p *Pipeline) gradeSubmitter(ctx context.Context, bc batchContext, sub domain.Submission) (out outcome) {
	label := bc.mapping.Lookup(sub.SubmitterID)
	status := sub.Status()
	emit := bc.journal.Prefixed(label + ": ")

	fail := func(bucket domain.FailureBucket, reason string) outcome {
		return outcome{failure: &domain.Failure{
			SubmitterID: sub.SubmitterID,
			AnonLabel:   label,
			Status:      status,
			Bucket:      bucket,
			Reason:      reason,
		}}
	}

	p.metrics.Begin()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("submitter panicked", "submitter", label, "panic", r)
			emit.Emit("error: %v", r)
			out = fail(domain.BucketGradingError, fmt.Sprintf("internal error: %v", r))
		}
		p.metrics.End()
		p.metrics.Outcome(out.label())
	}()

	if p.opts.SubmitterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.SubmitterTimeout)
		defer cancel()
	}

	if bc.req.GradeMissingAsZero && status == domain.StatusMissing {
		emit.Emit("no submission, assigning zero")
		result := p.finish(bc, sub, emit, zeroResult(bc.rubric, label, sub.SubmitterID))
		return outcome{result: &result}
	}

	if len(sub.Attachments) == 0 {
		emit.Emit("no submission files found, skipping")
		return fail(domain.BucketNoFiles, "no submission files")
	}
	emit.Emit("found %d file(s)", len(sub.Attachments))

	stop := p.stage("download")
	files, err := p.lms.DownloadAttachments(ctx, bc.req.AssignmentID, sub)
	stop()
	if err != nil {
		emit.Emit("error downloading files: %v", err)
		return fail(domain.BucketGradingError, fmt.Sprintf("download attachments: %v", err))
	}
	if len(files) == 0 {
		emit.Emit("downloading failed for all files, skipping")
		return fail(domain.BucketNoFiles, "all downloads failed")
	}

	// The document is named by label so nothing sent to a remote service
	// carries the real identifier.
	stop = p.stage("materialize")
	mat, err := p.materializer.Materialize(ctx, ports.MaterializeRequest{
		Files:      files,
		OutputPath: p.layout.DocumentPath(bc.req.AssignmentID, label),
		Events:     emit,
	})
	stop()
	if err != nil {
		emit.Emit("error preparing submission: %v", err)
		return fail(domain.BucketGradingError, fmt.Sprintf("materialize: %v", err))
	}
	if mat.Usable == 0 {
		emit.Emit("no usable files, skipping")
		return fail(domain.BucketNoFiles, "no usable attachments")
	}
	if strings.TrimSpace(mat.Text) == "" {
		emit.Emit("no extractable text in submission, skipping")
		return fail(domain.BucketNoText, "no extractable text in submission")
	}
	emit.Emit("extracted %d words of text", len(strings.Fields(mat.Text)))

	stop = p.stage("grade")
	primary, err := p.grader.Grade(ctx, mat.Text, bc.rubric, mat.DocumentPath)
	stop()
	if err != nil {
		emit.Emit("error grading: %v", err)
		return fail(domain.BucketGradingError, fmt.Sprintf("grade: %v", err))
	}
	if primary.Sentinel {
		emit.Emit("grader output unusable: %s", primary.OverallFeedback)
	}
	primary = rubric.Reconcile(primary, bc.rubric)
	emit.Emit("grading complete, running fairness review")

	stop = p.stage("review")
	verdict, err := p.reviewer.Review(ctx, primary, bc.rubric, mat.DocumentPath)
	stop()
	if err != nil {
		emit.Emit("error reviewing: %v", err)
		return fail(domain.BucketGradingError, fmt.Sprintf("review: %v", err))
	}

	decision := p.resolver.Resolve(primary, verdict, bc.rubric)
	result := domain.RunResult{
		AnonLabel:        label,
		SubmitterID:      sub.SubmitterID,
		Score:            decision.Score,
		Result:           decision.Final,
		Substituted:      decision.Substituted(),
		Flagged:          !decision.Verdict.Fair,
		Reviewed:         true,
		ReviewReason:     decision.Verdict.Reason,
		ReviewConfidence: decision.Verdict.Confidence,
		OriginalScore:    decision.OriginalScore,
		OriginalFeedback: decision.OriginalFeedback,
		Status:           status,
		ExtractionFailed: len(mat.Skipped) > 0,
	}
	if result.Flagged {
		result.SubstitutionReason = decision.Verdict.Reason
	}

	switch {
	case decision.Substituted():
		p.metrics.Decision("substituted")
		emit.Emit("reviewer revised grade from %d to %d points (confidence %.2f): %s",
			*decision.OriginalScore, decision.Score, decision.Verdict.Confidence, decision.Verdict.Reason)
	case decision.LowConfidence:
		p.metrics.Decision("flagged")
		emit.Emit("flagged as potentially unfair but confidence too low (%.2f), keeping original grade",
			decision.Verdict.Confidence)
	default:
		p.metrics.Decision("kept")
		emit.Emit("review passed, graded %d points", decision.Score)
	}

	result.Result.OverallFeedback = p.withFooter(result.Result.OverallFeedback)
	result = p.finish(bc, sub, emit, result)
	return outcome{result: &result}
}

// finish applies an instructor override, if any.
func (p *Pipeline) finish(bc batchContext, sub domain.Submission, emit events.Emitter, result domain.RunResult) domain.RunResult {
	override, ok := bc.req.Overrides[sub.SubmitterID]
	if !ok {
		return result
	}
	emit.Emit("manual override applied")
	return applyOverride(result, override)
}

func applyOverride(result domain.RunResult, o domain.Override) domain.RunResult {
	result.Result = result.Result.Clone()
	switch {
	case len(o.Scores) > 0:
		result.Result.Scores = append([]domain.CriterionScore(nil), o.Scores...)
		result.Score = rubric.Total(result.Result)
		if o.Score != nil {
			result.Score = *o.Score
		}
	case o.Score != nil:
		result.Score = *o.Score
		result.Result.Scores = []domain.CriterionScore{{
			Criterion: overrideName,
			Points:    float64(*o.Score),
			Reason:    overrideReason,
		}}
	}
	if o.Feedback != "" {
		result.Result.OverallFeedback = o.Feedback
	}
	result.Overridden = true
	return result
}

func (p *Pipeline) withFooter(feedback string) string {
	footer := p.opts.FeedbackFooter
	feedback = strings.TrimSpace(feedback)
	switch {
	case footer == "":
		return feedback
	case feedback == "":
		return footer
	default:
		return feedback + "\n\n" + footer
	}
}

func zeroResult(rb domain.Rubric, label, submitterID string) domain.RunResult {
	scores := make([]domain.CriterionScore, len(rb))
	for i, item := range rb {
		scores[i] = domain.CriterionScore{Criterion: item.Criterion, Points: 0, Reason: missingReason}
	}
	return domain.RunResult{
		AnonLabel:   label,
		SubmitterID: submitterID,
		Score:       0,
		Result:      domain.GradingResult{Scores: scores, OverallFeedback: missingFeedback},
		Status:      domain.StatusMissing,
	}
}

func (p *Pipeline) stage(name string) func() {
	start := time.Now()
	return func() { p.metrics.Stage(name, time.Since(start)) }
}

func (p *Pipeline) export(ctx context.Context, batch *domain.BatchResult, journal *events.Journal) {
	if len(batch.Results) == 0 {
		journal.Emit("no results to export")
		return
	}
	if p.exporter == nil {
		return
	}
	path, err := p.exporter.Export(ctx, batch.AssignmentID, batch.RunID, batch.Results)
	if err != nil {
		p.logger.Error("export failed", "run_id", batch.RunID, "error", err)
		journal.Emit("export failed: %v", err)
		return
	}
	batch.ExportPath = path
	journal.Emit("exported grades to %s", path)
}

func (p *Pipeline) notify(ctx context.Context, batch domain.BatchResult) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PublishDigest(ctx, Digest(batch)); err != nil {
		p.logger.Warn("publish digest failed", "run_id", batch.RunID, "error", err)
	}
}

// Digest summarises a batch for chat notifications. It carries labels and
// counts only.
func Digest(batch domain.BatchResult) string {
	flagged := 0
	for _, r := range batch.Results {
		if r.Flagged && !r.Substituted {
			flagged++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Grading run %s for assignment %s\n", batch.RunID, batch.AssignmentID)
	fmt.Fprintf(&b, "Graded: %d (substituted %d, flagged %d)\n", len(batch.Results), batch.Substitutions(), flagged)
	fmt.Fprintf(&b, "Skipped: no files %d, no text %d, errors %d\n",
		len(batch.FailuresIn(domain.BucketNoFiles)),
		len(batch.FailuresIn(domain.BucketNoText)),
		len(batch.FailuresIn(domain.BucketGradingError)))
	if a := Analyze(batch); a.Flagged > 0 {
		fmt.Fprintf(&b, "Review: %.0f%% flagged, mean confidence %.2f\n", a.UnfairnessRate*100, a.MeanConfidence)
	}
	if len(batch.NotScheduled) > 0 {
		fmt.Fprintf(&b, "Not scheduled: %d\n", len(batch.NotScheduled))
	}
	if batch.ExportPath != "" {
		fmt.Fprintf(&b, "Export: %s\n", batch.ExportPath)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ErrNothingToCommit is returned by Commit for a batch without results.
var ErrNothingToCommit = errors.New("no results to commit")

// Commit posts a reviewed batch to the LMS and then removes the
// assignment's downloaded and merged files.
func (p *Pipeline) Commit(ctx context.Context, batch domain.BatchResult) error {
	if len(batch.Results) == 0 {
		return ErrNothingToCommit
	}
	if err := p.lms.PostResults(ctx, batch.AssignmentID, batch.Results); err != nil {
		return fmt.Errorf("post results: %w", err)
	}
	p.logger.Info("results posted", "run_id", batch.RunID, "assignment", batch.AssignmentID, "count", len(batch.Results))

	if err := p.layout.Cleanup(batch.AssignmentID); err != nil {
		return err
	}
	return nil
}
