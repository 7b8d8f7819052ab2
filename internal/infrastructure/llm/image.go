package llm

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// EncodePage loads a rendered page, shrinks it to maxWidth (if positive and
// smaller than the page) and returns PNG bytes.
func EncodePage(path string, maxWidth int) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page %s: %w", path, err)
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
