// Package materialize turns a submitter's attachments into one canonical
// page-based document plus the text a grader reads.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"GradePipeline/internal/domain"
	"GradePipeline/internal/events"
	"GradePipeline/internal/ports"
)

// OCRDPI is the resolution pages are rendered at before recognition.
const OCRDPI = 300

// Deps wires the document tooling used by the materializer.
type Deps struct {
	Converters []Converter
	PDF        PDFTool
	Text       TextLayer
	Renderer   PageRenderer
	Recognizer Recognizer
	DOCXText   func(path string) (string, error)
	Logger     *slog.Logger
}

// Materializer implements ports.Materializer.
type Materializer struct {
	registry   *Registry
	pdf        PDFTool
	text       TextLayer
	renderer   PageRenderer
	recognizer Recognizer
	logger     *slog.Logger
}

var _ ports.Materializer = (*Materializer)(nil)

// New registers the PDF and DOCX handlers around the given tooling.
func New(deps Deps) *Materializer {
	if deps.PDF == nil {
		deps.PDF = PDFCPU{}
	}
	if deps.Text == nil {
		deps.Text = PlainText{}
	}
	if deps.DOCXText == nil {
		deps.DOCXText = ExtractDOCXText
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	registry := NewRegistry()
	registry.Register(pdfHandler{tool: deps.PDF})
	registry.Register(docxHandler{converters: deps.Converters, tool: deps.PDF, extract: deps.DOCXText})

	return &Materializer{
		registry:   registry,
		pdf:        deps.PDF,
		text:       deps.Text,
		renderer:   deps.Renderer,
		recognizer: deps.Recognizer,
		logger:     deps.Logger,
	}
}

// Materialize validates, converts and merges the files, then extracts text.
// Empty text is not an error; Usable == 0 means nothing could be used.
func (m *Materializer) Materialize(ctx context.Context, req ports.MaterializeRequest) (ports.Materialized, error) {
	emit := req.Events
	if emit == nil {
		emit = events.Discard
	}

	var out ports.Materialized
	var pdfs, texts []string

	workDir, err := os.MkdirTemp("", "gradepipe-materialize-*")
	if err != nil {
		return out, fmt.Errorf("prepare scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	for _, file := range req.Files {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		format := Classify(file)
		handler, err := m.registry.Resolve(format)
		if err != nil {
			emit.Emit("skipping %s: unsupported file type", file.Filename)
			out.Skipped = append(out.Skipped, ports.SkippedFile{Filename: file.Filename, Reason: "unsupported file type"})
			continue
		}

		c, err := handler.Handle(ctx, file, workDir, emit)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			emit.Emit("skipping %s: %v", file.Filename, err)
			out.Skipped = append(out.Skipped, ports.SkippedFile{Filename: file.Filename, Reason: err.Error()})
			continue
		}

		if c.PDFPath != "" {
			pdfs = append(pdfs, c.PDFPath)
		}
		if strings.TrimSpace(c.Text) != "" {
			texts = append(texts, c.Text)
		}
		out.Usable++
	}

	var docText string
	if len(pdfs) > 0 {
		if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
			return out, fmt.Errorf("prepare output dir: %w", err)
		}
		if err := m.pdf.Merge(pdfs, req.OutputPath); err != nil {
			return out, fmt.Errorf("merge documents: %w", err)
		}
		out.DocumentPath = req.OutputPath
		emit.Emit("merged %d document(s)", len(pdfs))

		text, usedOCR, err := m.extractText(ctx, req.OutputPath, emit)
		if err != nil {
			return out, err
		}
		docText, out.UsedOCR = text, usedOCR
	}

	out.Text = joinText(append([]string{docText}, texts...))
	return out, nil
}

func (m *Materializer) extractText(ctx context.Context, path string, emit events.Emitter) (string, bool, error) {
	steps := []Step[string, string]{
		{Name: "text-layer", Run: m.textLayer},
		{Name: "ocr", Run: func(ctx context.Context, path string) (string, error) {
			return m.ocr(ctx, path, emit)
		}},
	}

	text, attempts, err := RunChain(ctx, path, steps)
	for _, a := range attempts {
		m.logger.Debug("text extraction attempt", "document", filepath.Base(path), "attempt", a.String())
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		emit.Emit("no text could be extracted from the document")
		return "", false, nil
	}

	usedOCR := attempts[len(attempts)-1].Step == "ocr"
	if usedOCR {
		emit.Emit("text layer empty, recovered text with OCR")
	}
	return text, usedOCR, nil
}

func (m *Materializer) textLayer(_ context.Context, path string) (string, error) {
	pages, err := m.text.PageTexts(path)
	if err != nil {
		return "", err
	}
	text := strings.Join(pages, "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text layer is empty", ErrNotApplicable)
	}
	return strings.TrimSpace(text), nil
}

func (m *Materializer) ocr(ctx context.Context, path string, emit events.Emitter) (string, error) {
	if m.renderer == nil || m.recognizer == nil {
		return "", fmt.Errorf("%w: ocr is not configured", ErrNotApplicable)
	}

	dir, err := os.MkdirTemp("", "gradepipe-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	images, err := m.renderer.RenderPages(ctx, path, OCRDPI, dir)
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := m.recognizer.Recognize(ctx, img)
		if err != nil {
			emit.Emit("ocr failed on page %d: %v", i+1, err)
			continue
		}
		pages = append(pages, text)
	}

	text := strings.TrimSpace(strings.Join(pages, "\n"))
	if text == "" {
		return "", fmt.Errorf("%w: ocr found no text", ErrNotApplicable)
	}
	return text, nil
}

func joinText(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

type pdfHandler struct {
	tool PDFTool
}

func (pdfHandler) Format() Format { return FormatPDF }

func (h pdfHandler) Handle(_ context.Context, file domain.FileRef, _ string, _ events.Emitter) (Contribution, error) {
	if err := h.tool.Validate(file.Path); err != nil {
		return Contribution{}, err
	}
	return Contribution{PDFPath: file.Path}, nil
}

type docxHandler struct {
	converters []Converter
	tool       PDFTool
	extract    func(path string) (string, error)
}

func (docxHandler) Format() Format { return FormatDOCX }

// Handle tries each converter, then falls back to reading the text directly.
// Converted output lands in its own directory so it never replaces an
// uploaded file of the same name.
func (h docxHandler) Handle(ctx context.Context, file domain.FileRef, workDir string, emit events.Emitter) (Contribution, error) {
	outDir, err := os.MkdirTemp(workDir, "convert-*")
	if err != nil {
		return Contribution{}, fmt.Errorf("conversion dir: %w", err)
	}

	steps := make([]Step[domain.FileRef, Contribution], 0, len(h.converters)+1)
	for _, conv := range h.converters {
		steps = append(steps, Step[domain.FileRef, Contribution]{
			Name: conv.Name(),
			Run: func(ctx context.Context, f domain.FileRef) (Contribution, error) {
				pdfPath, err := conv.Convert(ctx, f.Path, outDir)
				if err != nil {
					return Contribution{}, err
				}
				if err := h.tool.Validate(pdfPath); err != nil {
					return Contribution{}, fmt.Errorf("converted output rejected: %w", err)
				}
				return Contribution{PDFPath: pdfPath}, nil
			},
		})
	}
	steps = append(steps, Step[domain.FileRef, Contribution]{
		Name: "docx-text",
		Run: func(_ context.Context, f domain.FileRef) (Contribution, error) {
			text, err := h.extract(f.Path)
			if err != nil {
				return Contribution{}, err
			}
			if strings.TrimSpace(text) == "" {
				return Contribution{}, fmt.Errorf("%w: document has no text", ErrNotApplicable)
			}
			return Contribution{Text: text}, nil
		},
	})

	c, attempts, err := RunChain(ctx, file, steps)
	for _, a := range attempts {
		if a.Outcome != OutcomeSuccess {
			emit.Emit("%s: %s", file.Filename, a.String())
		}
	}
	if err != nil {
		if errors.Is(err, ErrExhausted) {
			return Contribution{}, fmt.Errorf("could not convert or read document")
		}
		return Contribution{}, err
	}
	if c.PDFPath == "" {
		emit.Emit("%s: using directly extracted text", file.Filename)
	}
	return c, nil
}
