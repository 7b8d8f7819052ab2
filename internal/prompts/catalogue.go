// Package prompts holds the model instructions used by the grader and the
// reviewer, embedded at build time.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/pelletier/go-toml/v2"
)

//go:embed prompts.toml
var embedded []byte

type section struct {
	System       string `toml:"system"`
	Instructions string `toml:"instructions"`
	User         string `toml:"user"`
	Vision       string `toml:"vision"`
}

type file struct {
	Grader   section `toml:"grader"`
	Reviewer section `toml:"reviewer"`
}

// GradeInput fills the grader templates.
type GradeInput struct {
	Rubric     string
	Submission string
	Template   string
}

// ReviewInput fills the reviewer template.
type ReviewInput struct {
	Rubric   string
	Primary  string
	Template string
}

// Catalogue renders prompts from parsed templates.
type Catalogue struct {
	graderSystem       string
	graderInstructions string
	reviewerSystem     string
	reviewerInstr      string
	graderUser         *template.Template
	graderVision       *template.Template
	reviewerUser       *template.Template
}

// Default parses the embedded catalogue.
func Default() (*Catalogue, error) {
	return Parse(embedded)
}

// Parse builds a catalogue from TOML source.
func Parse(raw []byte) (*Catalogue, error) {
	var f file
	if err := toml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	c := &Catalogue{
		graderSystem:       strings.TrimSpace(f.Grader.System),
		graderInstructions: strings.TrimSpace(f.Grader.Instructions),
		reviewerSystem:     strings.TrimSpace(f.Reviewer.System),
		reviewerInstr:      strings.TrimSpace(f.Reviewer.Instructions),
	}

	var err error
	if c.graderUser, err = compile("grader.user", f.Grader.User); err != nil {
		return nil, err
	}
	if c.graderVision, err = compile("grader.vision", f.Grader.Vision); err != nil {
		return nil, err
	}
	if c.reviewerUser, err = compile("reviewer.user", f.Reviewer.User); err != nil {
		return nil, err
	}
	return c, nil
}

func compile(name, src string) (*template.Template, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("prompt %s is empty", name)
	}
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("compile prompt %s: %w", name, err)
	}
	return t, nil
}

// GraderSystem is the system message for the primary grader.
func (c *Catalogue) GraderSystem() string { return c.graderSystem }

// GraderText renders the text-only grading prompt.
func (c *Catalogue) GraderText(in GradeInput) (string, error) {
	return render(c.graderUser, map[string]string{
		"Instructions": c.graderInstructions,
		"Rubric":       in.Rubric,
		"Submission":   in.Submission,
		"Template":     in.Template,
	})
}

// GraderVision renders the prompt sent alongside page images.
func (c *Catalogue) GraderVision(in GradeInput) (string, error) {
	return render(c.graderVision, map[string]string{
		"Instructions": c.graderInstructions,
		"Rubric":       in.Rubric,
		"Template":     in.Template,
	})
}

// Review renders the fairness review prompt.
func (c *Catalogue) Review(in ReviewInput) (string, error) {
	return render(c.reviewerUser, map[string]string{
		"System":       c.reviewerSystem,
		"Instructions": c.reviewerInstr,
		"Rubric":       in.Rubric,
		"Primary":      in.Primary,
		"Template":     in.Template,
	})
}

func render(t *template.Template, data map[string]string) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
