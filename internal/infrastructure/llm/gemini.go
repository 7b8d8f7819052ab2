package llm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"GradePipeline/internal/config"
	"GradePipeline/internal/domain"
	"GradePipeline/internal/ports"
	"GradePipeline/internal/prompts"
	"GradePipeline/internal/rubric"
)

const deleteTimeout = 15 * time.Second

// GeminiReviewer implements ports.Reviewer against the Gemini files and
// generateContent endpoints.
type GeminiReviewer struct {
	baseURL    string
	model      string
	apiKey     string
	prompts    *prompts.Catalogue
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Reviewer = (*GeminiReviewer)(nil)

// NewGeminiReviewer builds a reviewer from configuration.
func NewGeminiReviewer(cfg config.ReviewerConfig, catalogue *prompts.Catalogue, logger *slog.Logger) *GeminiReviewer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiReviewer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		prompts:    catalogue,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type uploadedFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

type generateRequest struct {
	Contents         []genContent     `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
}

// Review uploads the document, asks for a verdict and always deletes the
// upload. Remote failures yield the default verdict; only a missing
// document is an error.
func (r *GeminiReviewer) Review(ctx context.Context, primary domain.GradingResult, rb domain.Rubric, documentPath string) (domain.ReviewVerdict, error) {
	if documentPath == "" {
		return domain.ReviewVerdict{}, fmt.Errorf("%w: fairness review needs a submission document", domain.ErrPrecondition)
	}
	if _, err := os.Stat(documentPath); err != nil {
		return domain.ReviewVerdict{}, fmt.Errorf("%w: submission document %s: %v", domain.ErrPrecondition, filepath.Base(documentPath), err)
	}
	if r.apiKey == "" || r.model == "" {
		r.logger.Warn("reviewer misconfigured, keeping primary grade")
		return domain.DefaultVerdict(), nil
	}

	file, err := r.upload(ctx, documentPath)
	if err != nil {
		r.logger.Warn("review upload failed", "error", err)
		return domain.DefaultVerdict(), nil
	}
	defer r.deleteFile(ctx, file.Name)

	primaryJSON, err := json.MarshalIndent(primary, "", "  ")
	if err != nil {
		return domain.DefaultVerdict(), nil
	}
	prompt, err := r.prompts.Review(prompts.ReviewInput{
		Rubric:   rubric.FormatForPrompt(rb),
		Primary:  string(primaryJSON),
		Template: rubric.JSONTemplate(rb),
	})
	if err != nil {
		r.logger.Warn("render review prompt", "error", err)
		return domain.DefaultVerdict(), nil
	}

	text, err := r.generate(ctx, prompt, file)
	if err != nil {
		r.logger.Warn("review request failed", "error", err)
		return domain.DefaultVerdict(), nil
	}

	verdict, ok := DecodeVerdict(text)
	if !ok {
		r.logger.Warn("reviewer returned unreadable response")
	}
	return verdict, nil
}

// upload uses the two-step resumable protocol of the files endpoint.
func (r *GeminiReviewer) upload(ctx context.Context, path string) (uploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("read document: %w", err)
	}

	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": filepath.Base(path)}})
	if err != nil {
		return uploadedFile{}, fmt.Errorf("marshal upload metadata: %w", err)
	}

	start, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/upload/v1beta/files", bytes.NewReader(meta))
	if err != nil {
		return uploadedFile{}, fmt.Errorf("new request: %w", err)
	}
	start.Header.Set("x-goog-api-key", r.apiKey)
	start.Header.Set("Content-Type", "application/json")
	start.Header.Set("X-Goog-Upload-Protocol", "resumable")
	start.Header.Set("X-Goog-Upload-Command", "start")
	start.Header.Set("X-Goog-Upload-Header-Content-Length", fmt.Sprint(len(data)))
	start.Header.Set("X-Goog-Upload-Header-Content-Type", "application/pdf")

	resp, err := r.httpClient.Do(start)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("start upload: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return uploadedFile{}, fmt.Errorf("start upload: %w", err)
	}
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return uploadedFile{}, fmt.Errorf("start upload: no upload url returned")
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return uploadedFile{}, fmt.Errorf("new request: %w", err)
	}
	put.Header.Set("X-Goog-Upload-Offset", "0")
	put.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	put.Header.Set("Content-Length", fmt.Sprint(len(data)))

	resp, err = r.httpClient.Do(put)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("upload bytes: %w", err)
	}
	var out struct {
		File uploadedFile `json:"file"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return uploadedFile{}, fmt.Errorf("upload bytes: %w", err)
	}
	if out.File.Name == "" || out.File.URI == "" {
		return uploadedFile{}, fmt.Errorf("upload returned no file reference")
	}
	if out.File.MimeType == "" {
		out.File.MimeType = "application/pdf"
	}
	return out.File, nil
}

func (r *GeminiReviewer) generate(ctx context.Context, prompt string, file uploadedFile) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", r.baseURL, url.PathEscape(r.model))

	var resp generateResponse
	err := postJSON(ctx, r.httpClient, endpoint, map[string]string{"x-goog-api-key": r.apiKey}, generateRequest{
		Contents: []genContent{{
			Role: "user",
			Parts: []genPart{
				{Text: prompt},
				{FileData: &fileData{MimeType: file.MimeType, FileURI: file.URI}},
			},
		}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	}, &resp)
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

// deleteFile runs even when the review context was cancelled.
func (r *GeminiReviewer) deleteFile(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.baseURL+"/v1beta/"+name, nil)
	if err != nil {
		r.logger.Warn("delete uploaded file", "file", name, "error", err)
		return
	}
	req.Header.Set("x-goog-api-key", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("delete uploaded file", "file", name, "error", err)
		return
	}
	if err := decodeResponse(resp, nil); err != nil {
		r.logger.Warn("delete uploaded file", "file", name, "error", err)
	}
}
