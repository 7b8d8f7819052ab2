package materialize

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrInvalidPDF covers unreadable, encrypted and empty documents.
var ErrInvalidPDF = errors.New("invalid pdf")

// PDFTool validates and merges page-based documents.
type PDFTool interface {
	Validate(path string) error
	Merge(paths []string, outPath string) error
}

// TextLayer reads the embedded text of each page.
type TextLayer interface {
	PageTexts(path string) ([]string, error)
}

// PDFCPU implements PDFTool with pdfcpu.
type PDFCPU struct{}

var _ PDFTool = PDFCPU{}

// Validate accepts only readable, unencrypted documents with at least one page.
func (PDFCPU) Validate(path string) error {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if ctx.Encrypt != nil {
		return fmt.Errorf("%w: document is encrypted", ErrInvalidPDF)
	}
	if ctx.PageCount < 1 {
		return fmt.Errorf("%w: document has no pages", ErrInvalidPDF)
	}
	return nil
}

// Merge concatenates documents in the given order. A single input is copied.
func (PDFCPU) Merge(paths []string, outPath string) error {
	switch len(paths) {
	case 0:
		return fmt.Errorf("merge: no input documents")
	case 1:
		return copyFile(paths[0], outPath)
	}
	if err := api.MergeCreateFile(paths, outPath, false, nil); err != nil {
		return fmt.Errorf("merge %d documents: %w", len(paths), err)
	}
	return nil
}

// PlainText implements TextLayer with ledongthuc/pdf.
type PlainText struct{}

var _ TextLayer = PlainText{}

// PageTexts returns one string per page. Pages whose text cannot be decoded
// come back empty.
func (PlainText) PageTexts(path string) (texts []string, err error) {
	defer func() {
		// The reader panics on some malformed content streams.
		if r := recover(); r != nil {
			err = fmt.Errorf("read text layer: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	texts = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, pErr := page.GetPlainText(nil)
		if pErr != nil {
			texts = append(texts, "")
			continue
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
