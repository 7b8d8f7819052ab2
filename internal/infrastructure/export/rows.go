// Package export writes batch results to files or SQL tables.
package export

import (
	"strconv"

	"GradePipeline/internal/domain"
)

// Field is one named column value of an exported row.
type Field struct {
	Name  string
	Value string
}

// Row flattens a run result into ordered columns.
func Row(r domain.RunResult) []Field {
	original := ""
	if r.OriginalScore != nil {
		original = strconv.Itoa(*r.OriginalScore)
	}
	return []Field{
		{"real_id", r.SubmitterID},
		{"anon_label", r.AnonLabel},
		{"total_score", strconv.Itoa(r.Score)},
		{"substituted", strconv.FormatBool(r.Substituted)},
		{"substitution_reason", r.SubstitutionReason},
		{"feedback", r.Result.OverallFeedback},
		{"rubric_details", r.RubricDetails()},
		{"status", string(r.Status)},
		{"original_score", original},
		{"original_feedback", r.OriginalFeedback},
	}
}

// Header returns the column names of a row.
func Header(row []Field) []string {
	out := make([]string, len(row))
	for i, f := range row {
		out[i] = f.Name
	}
	return out
}

func values(row []Field) []string {
	out := make([]string, len(row))
	for i, f := range row {
		out[i] = f.Value
	}
	return out
}
