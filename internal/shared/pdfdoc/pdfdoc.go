// Package pdfdoc inspects PDF payloads: structural validation with pdfcpu
// and plain-text extraction with ledongthuc/pdf.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalidPDF marks payloads that are not parseable PDF documents.
var ErrInvalidPDF = errors.New("invalid pdf")

var magic = []byte("%PDF-")

var configOnce sync.Once

func relaxedConfig() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// HasMagic reports whether data starts with the PDF header.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Validate parses data as a PDF and returns its page count.
func Validate(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidPDF)
	}
	if !HasMagic(data) {
		return 0, fmt.Errorf("%w: missing %%PDF- header", ErrInvalidPDF)
	}
	pages, err := api.PageCount(bytes.NewReader(data), relaxedConfig())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if pages < 1 {
		return 0, fmt.Errorf("%w: no pages", ErrInvalidPDF)
	}
	return pages, nil
}

// Text extracts the plain text content of a PDF. The reader panics on some
// malformed inputs; those panics are reported as ErrInvalidPDF.
func Text(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
