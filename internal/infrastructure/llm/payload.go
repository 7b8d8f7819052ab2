package llm

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/kaptinlin/jsonrepair"

	"GradePipeline/internal/domain"
)

const (
	invalidGradingFeedback = "The grader failed to return valid grading JSON."
	emptyGradingFeedback   = "The grader returned an empty response."
)

var validate = validator.New()

// flexNumber accepts 7, 7.5 and "7" alike.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return errors.New("points is null")
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("points %s is not numeric", string(b))
	}
	*n = flexNumber(v)
	return nil
}

type scorePayload struct {
	Criterion string      `json:"criterion" validate:"required"`
	Points    *flexNumber `json:"points" validate:"required"`
	Reason    *string     `json:"reason" validate:"required"`
}

type gradingPayload struct {
	Scores          []scorePayload `json:"rubric_scores" validate:"required,dive"`
	OverallFeedback *string        `json:"overall_feedback" validate:"required"`
}

func (p gradingPayload) result() domain.GradingResult {
	out := domain.GradingResult{
		Scores:          make([]domain.CriterionScore, 0, len(p.Scores)),
		OverallFeedback: *p.OverallFeedback,
	}
	for _, s := range p.Scores {
		out.Scores = append(out.Scores, domain.CriterionScore{
			Criterion: s.Criterion,
			Points:    float64(*s.Points),
			Reason:    *s.Reason,
		})
	}
	return out
}

type verdictPayload struct {
	Fair        *bool           `json:"fair"`
	Reason      string          `json:"reason"`
	Confidence  *flexNumber     `json:"confidence"`
	Alternative json.RawMessage `json:"suggested_grading_result"`
}

// ExtractJSON strips code fences and returns the outermost {...} span.
func ExtractJSON(text string) (string, bool) {
	if strings.Contains(text, "```") {
		text = strings.ReplaceAll(text, "```json", "")
		text = strings.ReplaceAll(text, "```", "")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeLenient decodes JSON into v, repairing it once if it is malformed.
func decodeLenient(raw string, v any) error {
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	repaired, rErr := jsonrepair.JSONRepair(raw)
	if rErr != nil || repaired == raw {
		return err
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired json: %w", err)
	}
	return nil
}

// DecodeGrading turns model output into a grading result. Anything that is
// not a schema-valid result becomes a sentinel.
func DecodeGrading(text string) domain.GradingResult {
	if strings.TrimSpace(text) == "" {
		return domain.SentinelResult(emptyGradingFeedback)
	}
	raw, ok := ExtractJSON(text)
	if !ok {
		return domain.SentinelResult(invalidGradingFeedback)
	}
	result, err := decodeGradingObject([]byte(raw))
	if err != nil {
		return domain.SentinelResult(invalidGradingFeedback)
	}
	return result
}

func decodeGradingObject(raw []byte) (domain.GradingResult, error) {
	var p gradingPayload
	if err := decodeLenient(string(raw), &p); err != nil {
		return domain.GradingResult{}, err
	}
	if err := validate.Struct(p); err != nil {
		return domain.GradingResult{}, fmt.Errorf("grading payload: %w", err)
	}
	return p.result(), nil
}

// DecodeVerdict turns reviewer output into a verdict; unreadable output
// yields the default verdict and false.
func DecodeVerdict(text string) (domain.ReviewVerdict, bool) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return domain.DefaultVerdict(), false
	}

	var p verdictPayload
	if err := decodeLenient(raw, &p); err != nil {
		return domain.DefaultVerdict(), false
	}

	v := domain.ReviewVerdict{Fair: true, Reason: p.Reason, Confidence: 0.5}
	if p.Fair != nil {
		v.Fair = *p.Fair
	}
	if p.Confidence != nil {
		v.Confidence = float64(*p.Confidence)
	}
	if !v.Fair && len(p.Alternative) > 0 && !bytes.Equal(bytes.TrimSpace(p.Alternative), []byte("null")) {
		if alt, err := decodeGradingObject(p.Alternative); err == nil {
			v.Alternative = &alt
		}
	}
	return v.Normalize(), true
}
