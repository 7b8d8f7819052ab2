package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"GradePipeline/internal/config"
	"GradePipeline/internal/domain"
	"GradePipeline/internal/materialize"
	"GradePipeline/internal/ports"
	"GradePipeline/internal/prompts"
	"GradePipeline/internal/rubric"
)

// OpenAIGrader implements ports.Grader backed by OpenAI-compatible APIs.
type OpenAIGrader struct {
	endpoint   string
	model      string
	apiKey     string
	maxTokens  int
	vision     config.VisionConfig
	renderer   materialize.PageRenderer
	prompts    *prompts.Catalogue
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ ports.Grader           = (*OpenAIGrader)(nil)
	_ ports.ReadinessChecker = (*OpenAIGrader)(nil)
)

// NewOpenAIGrader builds a grader from configuration. A nil renderer turns
// the vision path off.
func NewOpenAIGrader(cfg config.GraderConfig, catalogue *prompts.Catalogue, renderer materialize.PageRenderer, logger *slog.Logger) *OpenAIGrader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGrader{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		maxTokens:  cfg.MaxTokens,
		vision:     cfg.Vision,
		renderer:   renderer,
		prompts:    catalogue,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Ready reports missing credentials or endpoint settings.
func (g *OpenAIGrader) Ready() error {
	switch {
	case g == nil:
		return fmt.Errorf("%w: grader is nil", domain.ErrConfiguration)
	case g.apiKey == "":
		return fmt.Errorf("%w: grader api key is not set", domain.ErrConfiguration)
	case g.endpoint == "" || g.model == "":
		return fmt.Errorf("%w: grader endpoint and model are required", domain.ErrConfiguration)
	}
	return nil
}

// Grade scores the submission. Page images are tried first when a document
// is available; any failure there falls back to the text prompt.
func (g *OpenAIGrader) Grade(ctx context.Context, text string, rb domain.Rubric, documentPath string) (domain.GradingResult, error) {
	if g == nil {
		return domain.GradingResult{}, fmt.Errorf("grader is nil")
	}
	if err := g.Ready(); err != nil {
		return domain.GradingResult{}, err
	}

	input := prompts.GradeInput{
		Rubric:     rubric.FormatForPrompt(rb),
		Submission: text,
		Template:   rubric.JSONTemplate(rb),
	}

	if g.visionEnabled() && documentPath != "" {
		result, err := g.gradeVision(ctx, input, documentPath)
		if err == nil && !result.Sentinel {
			return result, nil
		}
		g.logger.Warn("vision grading failed, falling back to text", "error", err, "sentinel", result.Sentinel)
	}

	prompt, err := g.prompts.GraderText(input)
	if err != nil {
		return domain.GradingResult{}, err
	}
	content, err := g.complete(ctx, prompt)
	if err != nil {
		return domain.GradingResult{}, fmt.Errorf("grade text: %w", err)
	}
	return DecodeGrading(content), nil
}

func (g *OpenAIGrader) visionEnabled() bool {
	return g.vision.Enabled && g.renderer != nil
}

func (g *OpenAIGrader) gradeVision(ctx context.Context, input prompts.GradeInput, documentPath string) (domain.GradingResult, error) {
	dir, err := os.MkdirTemp("", "gradepipe-vision-*")
	if err != nil {
		return domain.GradingResult{}, fmt.Errorf("vision scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dpi := g.vision.DPI
	if dpi <= 0 {
		dpi = 150
	}
	pages, err := g.renderer.RenderPages(ctx, documentPath, dpi, dir)
	if err != nil {
		return domain.GradingResult{}, fmt.Errorf("render pages: %w", err)
	}
	if len(pages) == 0 {
		return domain.GradingResult{}, fmt.Errorf("document rendered no pages")
	}
	if limit := g.vision.MaxPages; limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}

	prompt, err := g.prompts.GraderVision(input)
	if err != nil {
		return domain.GradingResult{}, err
	}

	parts := []contentPart{{Type: "text", Text: prompt}}
	for _, page := range pages {
		png, err := EncodePage(page, g.vision.MaxWidth)
		if err != nil {
			return domain.GradingResult{}, err
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), Detail: "high"},
		})
	}

	content, err := g.send(ctx, []chatMessage{
		{Role: "system", Content: g.prompts.GraderSystem()},
		{Role: "user", Content: parts},
	})
	if err != nil {
		return domain.GradingResult{}, fmt.Errorf("grade vision: %w", err)
	}
	return DecodeGrading(content), nil
}

func (g *OpenAIGrader) complete(ctx context.Context, prompt string) (string, error) {
	return g.send(ctx, []chatMessage{
		{Role: "system", Content: g.prompts.GraderSystem()},
		{Role: "user", Content: prompt},
	})
}

func (g *OpenAIGrader) send(ctx context.Context, messages []chatMessage) (string, error) {
	var resp chatResponse
	err := postJSON(ctx, g.httpClient, g.endpoint, map[string]string{
		"Authorization": "Bearer " + g.apiKey,
	}, chatRequest{Model: g.model, Messages: messages, MaxTokens: g.maxTokens}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
