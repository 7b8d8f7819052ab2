package materialize

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const documentPart = "word/document.xml"

// Self-closing WordprocessingML tags would otherwise swallow their siblings
// once parsed as HTML.
var selfClosing = regexp.MustCompile(`<(w:[A-Za-z]+)([^<>]*?)/>`)

// ExtractDOCXText reads body paragraphs followed by table cell text from a
// .docx package, without any external converter.
func ExtractDOCXText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var raw []byte
	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", documentPart, err)
		}
		raw, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", documentPart, err)
		}
		break
	}
	if raw == nil {
		return "", fmt.Errorf("docx has no %s", documentPart)
	}

	return documentText(string(raw))
}

func documentText(xml string) (string, error) {
	xml = selfClosing.ReplaceAllString(xml, "<$1$2></$1>")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(xml))
	if err != nil {
		return "", fmt.Errorf("parse document xml: %w", err)
	}

	body := elements(doc.Selection, "w:body").First()
	if body.Length() == 0 {
		return "", nil
	}

	var paragraphs []string
	body.Children().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "w:p" {
			return
		}
		if text := paragraphText(s); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	var cells []string
	elements(body, "w:tc").Each(func(_ int, cell *goquery.Selection) {
		var parts []string
		elements(cell, "w:p").Each(func(_ int, p *goquery.Selection) {
			if text := paragraphText(p); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			cells = append(cells, strings.Join(parts, "\n"))
		}
	})

	return strings.TrimSpace(strings.Join(append(paragraphs, cells...), "\n")), nil
}

func paragraphText(p *goquery.Selection) string {
	var b strings.Builder
	elements(p, "w:t", "w:tab", "w:br").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "w:t":
			b.WriteString(s.Text())
		case "w:tab":
			b.WriteString("\t")
		case "w:br":
			b.WriteString("\n")
		}
	})
	return strings.TrimSpace(b.String())
}

// elements finds descendants by their namespaced tag name. CSS selectors do
// not cope with the colon in WordprocessingML names.
func elements(root *goquery.Selection, names ...string) *goquery.Selection {
	return root.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		name := goquery.NodeName(s)
		for _, want := range names {
			if name == want {
				return true
			}
		}
		return false
	})
}
