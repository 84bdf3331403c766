package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnreadableDocument marks payloads that are not Word documents we can parse.
var ErrUnreadableDocument = errors.New("unreadable docx document")

// ParagraphKind classifies a paragraph for layout.
type ParagraphKind int

const (
	KindBody ParagraphKind = iota
	KindTitle
	KindHeading
	KindListItem
)

// Paragraph is one block of text from word/document.xml.
type Paragraph struct {
	Kind  ParagraphKind
	Level int
	Text  string
}

const maxDocumentXML = 64 << 20

// ParseDOCX reads the paragraphs of a DOCX payload in document order.
func ParseDOCX(data []byte) ([]Paragraph, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnreadableDocument)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("%w: word/document.xml not found", ErrUnreadableDocument)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	defer rc.Close()

	return parseDocumentXML(io.LimitReader(rc, maxDocumentXML))
}

func parseDocumentXML(r io.Reader) ([]Paragraph, error) {
	decoder := xml.NewDecoder(r)
	var (
		out    []Paragraph
		cur    *Paragraph
		text   strings.Builder
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				cur = &Paragraph{Kind: KindBody}
				text.Reset()
			case "pStyle":
				if cur != nil {
					cur.Kind, cur.Level = classifyStyle(attr(t, "val"))
				}
			case "numPr":
				if cur != nil && cur.Kind == KindBody {
					cur.Kind = KindListItem
				}
			case "t":
				inText = true
			case "tab":
				if cur != nil {
					text.WriteString("\t")
				}
			case "br", "cr":
				if cur != nil {
					text.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cur != nil {
					cur.Text = strings.TrimRight(text.String(), " \t\n")
					out = append(out, *cur)
					cur = nil
				}
			}
		case xml.CharData:
			if inText && cur != nil {
				text.Write(t)
			}
		}
	}
	return out, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func classifyStyle(style string) (ParagraphKind, int) {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch {
	case s == "title":
		return KindTitle, 0
	case strings.HasPrefix(s, "heading"):
		level := 1
		if n := strings.TrimPrefix(s, "heading"); len(n) == 1 && n[0] >= '1' && n[0] <= '9' {
			level = int(n[0] - '0')
		}
		return KindHeading, level
	case strings.HasPrefix(s, "listparagraph"):
		return KindListItem, 0
	default:
		return KindBody, 0
	}
}
