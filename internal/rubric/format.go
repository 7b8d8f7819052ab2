package rubric

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"GradePipeline/internal/domain"
)

// FormatForPrompt renders criteria and their rating bands as plain text.
func FormatForPrompt(r domain.Rubric) string {
	sections := make([]string, 0, len(r))
	for _, item := range r {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			desc = "No description provided."
		}

		var b strings.Builder
		fmt.Fprintf(&b, "- %s (%s pts): %s", item.Criterion, num(item.MaxPoints), desc)
		for _, rating := range item.Ratings {
			blurb := strings.TrimSpace(rating.LongDescription)
			if blurb == "" {
				blurb = "No explanation provided."
			}
			fmt.Fprintf(&b, "\n  • %s (%s pts): %s", rating.Description, num(rating.Points), blurb)
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n")
}

type templateScore struct {
	Criterion string `json:"criterion"`
	Points    string `json:"points"`
	Reason    string `json:"reason"`
}

type templateResult struct {
	Scores          []templateScore `json:"rubric_scores"`
	OverallFeedback string          `json:"overall_feedback"`
}

// JSONTemplate returns the response skeleton a model is asked to fill in,
// with one entry per criterion.
func JSONTemplate(r domain.Rubric) string {
	tmpl := templateResult{
		Scores:          make([]templateScore, 0, len(r)),
		OverallFeedback: "<general summary of the submission quality and suggestions>",
	}
	for _, item := range r {
		tmpl.Scores = append(tmpl.Scores, templateScore{
			Criterion: item.Criterion,
			Points:    fmt.Sprintf("<points for %s>", item.Criterion),
			Reason:    fmt.Sprintf("<reason for %s>", item.Criterion),
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tmpl); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
