package convert

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/ivioje/globe-scholars/internal/shared/pdfdoc"
)

// ErrEmptyRender marks a rendered PDF whose text layer lost the document's content.
var ErrEmptyRender = errors.New("rendered pdf has no text")

const (
	fontFamily = "Helvetica"
	bodySize   = 11.0
	lineHeight = 5.5
)

// RenderPDF lays out paragraphs on A4 pages. An empty document still
// yields a single blank page.
func RenderPDF(title string, paras []Paragraph) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.SetCreator("globe-scholars", true)
	if title != "" {
		doc.SetTitle(title, true)
	}
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	for _, p := range paras {
		text := tr(strings.ReplaceAll(p.Text, "\t", "    "))
		switch p.Kind {
		case KindTitle:
			doc.SetFont(fontFamily, "B", 20)
			doc.MultiCell(0, 9, text, "", "C", false)
			doc.Ln(4)
		case KindHeading:
			doc.SetFont(fontFamily, "B", headingSize(p.Level))
			doc.Ln(2)
			doc.MultiCell(0, 7, text, "", "L", false)
			doc.Ln(1)
		case KindListItem:
			doc.SetFont(fontFamily, "", bodySize)
			doc.SetX(doc.GetX() + 5)
			doc.MultiCell(0, lineHeight, tr("• ")+text, "", "L", false)
		default:
			doc.SetFont(fontFamily, "", bodySize)
			if text == "" {
				doc.Ln(lineHeight)
				continue
			}
			doc.MultiCell(0, lineHeight, text, "", "J", false)
			doc.Ln(1.5)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// checkRendered reads the text layer back out of a rendered PDF. A document
// with visible text must not come out blank.
func checkRendered(pdf []byte, paras []Paragraph) error {
	if !hasText(paras) {
		return nil
	}
	text, err := pdfdoc.Text(pdf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyRender, err)
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyRender
	}
	return nil
}

func hasText(paras []Paragraph) bool {
	for _, p := range paras {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

func headingSize(level int) float64 {
	switch {
	case level <= 1:
		return 16
	case level == 2:
		return 14
	default:
		return 12
	}
}

// DOCXToPDF converts a DOCX payload into a PDF document.
func DOCXToPDF(data []byte, title string) ([]byte, error) {
	paras, err := ParseDOCX(data)
	if err != nil {
		return nil, err
	}
	return RenderPDF(title, paras)
}
