package materialize

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// PageRenderer rasterises each page of a PDF into an image file.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdfPath string, dpi int, outDir string) ([]string, error)
}

// Recognizer reads text from a single page image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Poppler renders pages with pdftoppm.
type Poppler struct {
	Binary  string
	Timeout time.Duration
}

var _ PageRenderer = Poppler{}

// RenderPages writes page-N.png files and returns them in page order.
func (p Poppler) RenderPages(ctx context.Context, pdfPath string, dpi int, outDir string) ([]string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not installed", ErrNotApplicable, bin)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	prefix := filepath.Join(outDir, "page")
	if _, err := run(ctx, timeout, path, "-r", fmt.Sprint(dpi), "-png", pdfPath, prefix); err != nil {
		return nil, fmt.Errorf("render pages: %w", err)
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	// pdftoppm zero-pads page numbers to a common width.
	sort.Strings(pages)
	return pages, nil
}

// Tesseract recognises text after grayscale and contrast preprocessing.
type Tesseract struct {
	Binary  string
	PSM     int
	Timeout time.Duration
}

var _ Recognizer = Tesseract{}

// Recognize returns the text tesseract finds on the page image.
func (t Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	bin := t.Binary
	if bin == "" {
		bin = "tesseract"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s not installed", ErrNotApplicable, bin)
	}
	psm := t.PSM
	if psm == 0 {
		psm = 6
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	prepared, err := Preprocess(imagePath)
	if err != nil {
		return "", err
	}
	defer os.Remove(prepared)

	out, err := run(ctx, timeout, path, prepared, "stdout", "--psm", fmt.Sprint(psm))
	if err != nil {
		return "", fmt.Errorf("recognize %s: %w", filepath.Base(imagePath), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Preprocess writes a grayscale, contrast-boosted copy of the image next to
// it and returns the new path.
func Preprocess(imagePath string) (string, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("open page image: %w", err)
	}

	var out image.Image = imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)

	ext := filepath.Ext(imagePath)
	target := strings.TrimSuffix(imagePath, ext) + ".ocr.png"
	if err := imaging.Save(out, target); err != nil {
		return "", fmt.Errorf("save preprocessed image: %w", err)
	}
	return target, nil
}
