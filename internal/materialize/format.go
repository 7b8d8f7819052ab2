package materialize

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"GradePipeline/internal/domain"
	"GradePipeline/internal/events"
)

// Format is the declared kind of an attachment.
type Format string

const (
	FormatPDF         Format = "pdf"
	FormatDOCX        Format = "docx"
	FormatUnsupported Format = "unsupported"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Classify decides a file's format from its extension, then from the content
// type the LMS reported.
func Classify(file domain.FileRef) Format {
	name := file.Filename
	if name == "" {
		name = file.Path
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	}

	mediaType, _, _ := strings.Cut(file.ContentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/pdf":
		return FormatPDF
	case docxContentType:
		return FormatDOCX
	default:
		return FormatUnsupported
	}
}

// Contribution is what one attachment adds to the canonical document.
type Contribution struct {
	PDFPath string
	Text    string
}

// Handler turns an attachment of one format into a contribution.
type Handler interface {
	Format() Format
	// workDir is private to one Materialize call and removed after the merge.
	Handle(ctx context.Context, file domain.FileRef, workDir string, emit events.Emitter) (Contribution, error)
}

// Registry keeps a mapping from formats to their handlers.
type Registry struct {
	handlers map[Format]Handler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[Format]Handler{}}
}

// Register adds or replaces a handler.
func (r *Registry) Register(h Handler) {
	if r.handlers == nil {
		r.handlers = map[Format]Handler{}
	}
	r.handlers[h.Format()] = h
}

// Resolve returns the handler for a format or an error if it is absent.
func (r *Registry) Resolve(format Format) (Handler, error) {
	if h, ok := r.handlers[format]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("no handler for format %s", format)
}
