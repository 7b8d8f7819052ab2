package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"GradePipeline/internal/app"
	"GradePipeline/internal/config"
	"GradePipeline/internal/domain"
	"GradePipeline/internal/ports"
	"GradePipeline/internal/tui"
	"GradePipeline/internal/usecase"
)

type runArgs struct {
	filter        string
	statuses      []string
	missingAsZero bool
	concurrency   int
	interactive   bool
	post          bool
	yes           bool
	overrides     string
}

var runFlags runArgs

var runCmd = &cobra.Command{
	Use:   "run <assignment-id>",
	Short: "Grade one assignment and export the results",
	Long: `run grades every selected submitter of an assignment and writes the
results to the configured exporter. Nothing is posted to the LMS unless
--post is given; posting asks for confirmation unless --yes is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssignment(cmd, args[0], runFlags)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.filter, "filter", "", "LMS submission filter: submitted, late or all (default from config)")
	runCmd.Flags().StringSliceVar(&runFlags.statuses, "status", nil, "only grade these statuses: on-time, late, missing, resubmitted")
	runCmd.Flags().BoolVar(&runFlags.missingAsZero, "missing-as-zero", false, "record a zero for missing submissions instead of skipping them")
	runCmd.Flags().IntVar(&runFlags.concurrency, "concurrency", 0, "submitters graded in parallel (default from config)")
	runCmd.Flags().BoolVar(&runFlags.interactive, "tui", false, "show a live progress view")
	runCmd.Flags().BoolVar(&runFlags.post, "post", false, "post results to the LMS after grading")
	runCmd.Flags().BoolVarP(&runFlags.yes, "yes", "y", false, "post without asking for confirmation")
	runCmd.Flags().StringVar(&runFlags.overrides, "overrides", "", "YAML file of manual overrides keyed by submitter id")
}

func runAssignment(cmd *cobra.Command, assignmentID string, flags runArgs) error {
	ctx := cmd.Context()

	req, err := buildRequest(assignmentID, flags)
	if err != nil {
		return err
	}

	application, _, err := buildApp(ctx, func(cfg *config.Config) {
		if flags.concurrency > 0 {
			cfg.Pipeline.Concurrency = flags.concurrency
		}
		if flags.missingAsZero {
			cfg.Pipeline.GradeMissingAsZero = true
		}
		if flags.interactive {
			cfg.Logging.Level = "error"
		}
	})
	if err != nil {
		return err
	}
	defer application.Close()

	var batch domain.BatchResult
	if flags.interactive {
		err = tui.Run(ctx, "Grading assignment "+assignmentID, func(ctx context.Context, sink ports.ProgressSink) error {
			var runErr error
			batch, runErr = application.Run(ctx, req, sink)
			return runErr
		})
	} else {
		batch, err = application.Run(ctx, req, nil)
	}

	out := cmd.OutOrStdout()
	if len(batch.Results)+len(batch.Failures) > 0 {
		printSummary(out, batch)
	}
	if err != nil {
		return err
	}

	if !flags.post || len(batch.Results) == 0 {
		return nil
	}
	if !flags.yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Post %d result(s) to the LMS?", len(batch.Results))) {
		fmt.Fprintln(out, "not posted")
		return nil
	}
	if err := application.Commit(ctx, batch); err != nil {
		return err
	}
	fmt.Fprintf(out, "posted %d result(s)\n", len(batch.Results))
	return nil
}

func buildRequest(assignmentID string, flags runArgs) (usecase.BatchRequest, error) {
	req := usecase.BatchRequest{
		AssignmentID:       assignmentID,
		Filter:             flags.filter,
		GradeMissingAsZero: flags.missingAsZero,
	}
	for _, s := range flags.statuses {
		status, ok := domain.ParseStatus(s)
		if !ok {
			return req, fmt.Errorf("%w: unknown status %q", domain.ErrConfiguration, s)
		}
		req.StatusFilter = append(req.StatusFilter, status)
	}
	if flags.overrides != "" {
		overrides, err := app.LoadOverrides(flags.overrides)
		if err != nil {
			return req, err
		}
		req.Overrides = overrides
	}
	return req, nil
}

func printSummary(w io.Writer, batch domain.BatchResult) {
	fmt.Fprintf(w, "run %s, assignment %s\n", batch.RunID, batch.AssignmentID)
	for _, r := range batch.Results {
		var notes []string
		switch {
		case r.Substituted:
			notes = append(notes, fmt.Sprintf("substituted, was %d", *r.OriginalScore))
		case r.Flagged:
			notes = append(notes, fmt.Sprintf("flagged, confidence %.2f", r.ReviewConfidence))
		}
		if r.Overridden {
			notes = append(notes, "override")
		}
		if r.ExtractionFailed {
			notes = append(notes, "some files skipped")
		}
		line := fmt.Sprintf("  %s  %-11s %3d / %g", r.AnonLabel, r.Status, r.Score, batch.Rubric.TotalPoints())
		if len(notes) > 0 {
			line += "  (" + strings.Join(notes, "; ") + ")"
		}
		fmt.Fprintln(w, line)
	}
	for _, f := range batch.Failures {
		fmt.Fprintf(w, "  %s  %-11s skipped [%s]: %s\n", f.AnonLabel, f.Status, f.Bucket, f.Reason)
	}
	if len(batch.NotScheduled) > 0 {
		fmt.Fprintf(w, "  not scheduled: %s\n", strings.Join(batch.NotScheduled, ", "))
	}
	if analytics := usecase.Analyze(batch); analytics.Reviewed > 0 {
		fmt.Fprintln(w, analytics.Report())
	}
	if batch.ExportPath != "" {
		fmt.Fprintf(w, "exported to %s\n", batch.ExportPath)
	}
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
