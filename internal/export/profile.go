// Package export renders downloadable scholar profiles.
package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/ivioje/globe-scholars/internal/accounts"
)

const fontFamily = "Helvetica"

// RenderProfile lays out a one-page CV-style summary of a scholar.
func RenderProfile(p accounts.PublicProfile) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.SetTitle(p.DisplayName+" - Scholar Profile", true)
	doc.SetCreator("globe-scholars", true)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont(fontFamily, "B", 22)
	doc.SetTextColor(44, 62, 80)
	doc.MultiCell(0, 10, tr(p.DisplayName), "", "L", false)
	doc.SetDrawColor(52, 152, 219)
	doc.SetLineWidth(0.6)
	y := doc.GetY() + 1
	doc.Line(20, y, 190, y)
	doc.Ln(5)

	doc.SetTextColor(51, 51, 51)
	field := func(label, value string) {
		if value == "" {
			return
		}
		doc.SetFont(fontFamily, "B", 11)
		doc.CellFormat(28, 7, tr(label+":"), "", 0, "L", false, 0, "")
		doc.SetFont(fontFamily, "", 11)
		doc.MultiCell(0, 7, tr(value), "", "L", false)
	}
	field("Username", p.Username)
	field("Affiliation", p.Affiliation)
	field("Country", p.Country)
	field("Website", p.Website)

	section := func(title, body string) {
		doc.Ln(4)
		doc.SetFont(fontFamily, "B", 15)
		doc.SetTextColor(52, 152, 219)
		doc.MultiCell(0, 8, tr(title), "", "L", false)
		doc.SetFont(fontFamily, "", 11)
		doc.SetTextColor(51, 51, 51)
		doc.MultiCell(0, 6, tr(body), "", "L", false)
	}
	if p.Bio != "" {
		section("About", p.Bio)
	}
	section("Scholar Since", p.MemberSince.Format("January 2006"))
	section("Uploaded Works", uploadsLine(p.UploadCount))

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render profile: %w", err)
	}
	return buf.Bytes(), nil
}

func uploadsLine(n int) string {
	if n == 1 {
		return "1 scholarly work uploaded"
	}
	return strconv.Itoa(n) + " scholarly works uploaded"
}

// Filename is the attachment name for a scholar's exported profile.
func Filename(username string) string {
	return username + "_profile.pdf"
}
