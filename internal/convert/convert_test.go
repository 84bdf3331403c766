package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivioje/globe-scholars/internal/queue"
	"github.com/ivioje/globe-scholars/internal/shared/pdfdoc"
	"github.com/ivioje/globe-scholars/internal/shared/storage/object/local"
	"github.com/ivioje/globe-scholars/internal/works"
)

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Title"/></w:pPr><w:r><w:t>Tidal Patterns</w:t></w:r></w:p>
    <w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Methods</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">We measured </w:t></w:r><w:r><w:t>water levels.</w:t></w:r></w:p>
    <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/></w:numPr></w:pPr><w:r><w:t>Buoy A</w:t><w:tab/><w:t>north</w:t></w:r></w:p>
    <w:p><w:r><w:t>Line one</w:t><w:br/><w:t>Line two</w:t></w:r></w:p>
  </w:body>
</w:document>`

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
	}
	if documentXML != "" {
		files["word/document.xml"] = documentXML
	}
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseDOCXClassifiesParagraphs(t *testing.T) {
	paras, err := ParseDOCX(buildDOCX(t, sampleDocumentXML))
	require.NoError(t, err)

	want := []Paragraph{
		{Kind: KindTitle, Text: "Tidal Patterns"},
		{Kind: KindHeading, Level: 2, Text: "Methods"},
		{Kind: KindBody, Text: "We measured water levels."},
		{Kind: KindListItem, Text: "Buoy A\tnorth"},
		{Kind: KindBody, Text: "Line one\nLine two"},
	}
	assert.Equal(t, want, paras)
}

func TestParseDOCXRejectsUnreadable(t *testing.T) {
	cases := map[string][]byte{
		"empty":           nil,
		"not a zip":       []byte("%PDF-1.4 definitely not a docx"),
		"no document.xml": buildDOCX(t, ""),
		"broken xml":      buildDOCX(t, "<w:document><w:body><w:p>"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDOCX(data)
			assert.ErrorIs(t, err, ErrUnreadableDocument)
		})
	}
}

func TestRenderPDFProducesValidDocument(t *testing.T) {
	pdf, err := DOCXToPDF(buildDOCX(t, sampleDocumentXML), "Tidal Patterns")
	require.NoError(t, err)

	pages, err := pdfdoc.Validate(pdf)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)

	text, err := pdfdoc.Text(pdf)
	require.NoError(t, err)
	assert.Contains(t, text, "Methods")
	assert.Contains(t, text, "water levels.")
}

func TestRenderPDFEmptyDocumentHasOnePage(t *testing.T) {
	pdf, err := RenderPDF("", nil)
	require.NoError(t, err)
	pages, err := pdfdoc.Validate(pdf)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestCheckRenderedRequiresTextLayer(t *testing.T) {
	paras := []Paragraph{{Kind: KindBody, Text: "Salinity gradients"}}
	rendered, err := RenderPDF("Tides", paras)
	require.NoError(t, err)
	assert.NoError(t, checkRendered(rendered, paras))

	blank, err := RenderPDF("", nil)
	require.NoError(t, err)
	assert.NoError(t, checkRendered(blank, nil), "an empty document renders blank")
	assert.NoError(t, checkRendered(blank, []Paragraph{{Text: "   "}}))
	assert.ErrorIs(t, checkRendered(blank, paras), ErrEmptyRender)
	assert.ErrorIs(t, checkRendered([]byte("garbage"), paras), ErrEmptyRender)
}

type processorEnv struct {
	svc       *works.Service
	processor *Processor
	queue     *queue.MemoryClient
}

func newProcessorEnv(t *testing.T) *processorEnv {
	t.Helper()
	store := local.New(t.TempDir())
	q := queue.NewMemoryClient()
	svc := &works.Service{Repo: works.NewMemoryRepo(), Store: store, JobQueue: q}
	return &processorEnv{svc: svc, processor: NewProcessor(svc, store), queue: q}
}

func (e *processorEnv) upload(t *testing.T, body []byte) works.Work {
	t.Helper()
	w, err := e.svc.Create(context.Background(), works.CreateInput{
		Title:               "Tidal Patterns",
		Authors:             "Marie Tharp",
		PublicationYear:     2024,
		UploaderID:          "acct-1",
		FileName:            "tides.docx",
		DeclaredContentType: works.ContentTypeDOCX,
		Size:                int64(len(body)),
		Body:                bytes.NewReader(body),
	})
	require.NoError(t, err)
	return w
}

func TestProcessorConvertsQueuedWork(t *testing.T) {
	env := newProcessorEnv(t)
	w := env.upload(t, buildDOCX(t, sampleDocumentXML))

	msgs := env.queue.Drain()
	require.Len(t, msgs, 1)
	require.NoError(t, env.processor.ProcessConversion(context.Background(), msgs[0].WorkID))

	got, err := env.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, works.StatusCompleted, got.ConversionStatus)
	assert.Equal(t, 100, got.ConversionProgress)
	assert.True(t, got.HasConverted())

	servable, _, err := env.svc.ResolveServable(context.Background(), w.ID)
	require.NoError(t, err)
	defer servable.Body.Close()
	assert.Equal(t, "tides.pdf", servable.Filename)
	assert.Equal(t, works.ContentTypePDF, servable.ContentType)
	data, err := io.ReadAll(servable.Body)
	require.NoError(t, err)
	text, err := pdfdoc.Text(data)
	require.NoError(t, err)
	assert.Contains(t, text, "Tidal Patterns")

	require.NoError(t, env.processor.ProcessConversion(context.Background(), w.ID), "redelivery is discarded")
	again, err := env.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ConvertedKey, again.ConvertedKey)
}

func TestProcessorMarksUnreadableDocumentFailed(t *testing.T) {
	env := newProcessorEnv(t)
	w := env.upload(t, []byte("PK\x03\x04this is not really a zip"))

	require.NoError(t, env.processor.ProcessConversion(context.Background(), w.ID))

	got, err := env.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, works.StatusFailed, got.ConversionStatus)
	assert.False(t, got.HasConverted())
	assert.Less(t, got.ConversionProgress, 100)

	servable, _, err := env.svc.ResolveServable(context.Background(), w.ID)
	require.NoError(t, err)
	defer servable.Body.Close()
	assert.Equal(t, "tides.docx", servable.Filename, "failed conversions serve the original")
}

func TestProcessorDiscardsDeletedWork(t *testing.T) {
	env := newProcessorEnv(t)
	w := env.upload(t, buildDOCX(t, sampleDocumentXML))
	require.NoError(t, env.svc.Delete(context.Background(), w.ID, "acct-1"))

	assert.NoError(t, env.processor.ProcessConversion(context.Background(), w.ID))
	assert.NoError(t, env.processor.ProcessConversion(context.Background(), "never-existed"))
	assert.NoError(t, env.processor.ProcessConversion(context.Background(), "00000000-0000-0000-0000-000000000000"))
}

func TestProcessorSkipsPDFWorks(t *testing.T) {
	env := newProcessorEnv(t)
	pdf, err := RenderPDF("x", []Paragraph{{Text: "hello"}})
	require.NoError(t, err)
	w, err := env.svc.Create(context.Background(), works.CreateInput{
		Title:               "Already PDF",
		Authors:             "A",
		PublicationYear:     2024,
		UploaderID:          "acct-1",
		FileName:            "paper.pdf",
		DeclaredContentType: works.ContentTypePDF,
		Size:                int64(len(pdf)),
		Body:                bytes.NewReader(pdf),
	})
	require.NoError(t, err)

	require.NoError(t, env.processor.ProcessConversion(context.Background(), w.ID))
	got, err := env.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, works.StatusCompleted, got.ConversionStatus)
	assert.False(t, got.HasConverted())
	assert.True(t, strings.HasSuffix(got.OriginalFilename, ".pdf"))
}
