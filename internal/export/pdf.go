package export

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/pavelanni/reflector/internal/model"
)

const pdfFont = "DejaVu"

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
)

// PDF lays out the plain-text report on A4 pages.
func PDF(rec *model.ExportRecord, generatedAt time.Time) ([]byte, error) {
	text, err := Report(rec, generatedAt)
	if err != nil {
		return nil, err
	}
	return renderPDF(string(text), generatedAt, true)
}

func renderPDF(text string, generatedAt time.Time, compress bool) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetCreationDate(generatedAt)
	pdf.SetTitle(reportTitle, true)
	pdf.AddUTF8FontFromBytes(pdfFont, "", fontRegular)
	pdf.AddUTF8FontFromBytes(pdfFont, "B", fontBold)
	pdf.AddPage()

	lines := strings.Split(strings.TrimRight(bmpOnly(text), "\n"), "\n")
	// Title and underline are replaced by a bold heading.
	pdf.SetFont(pdfFont, "B", 16)
	pdf.Cell(0, 10, lines[0])
	pdf.Ln(12)

	pdf.SetFont(pdfFont, "", 11)
	_, lineHeight := pdf.GetFontSize()
	for _, line := range lines[2:] {
		if strings.HasSuffix(line, ":") && !strings.HasPrefix(line, "-") {
			pdf.SetFont(pdfFont, "B", 11)
			pdf.MultiCell(0, lineHeight*1.5, line, "", "L", false)
			pdf.SetFont(pdfFont, "", 11)
			continue
		}
		pdf.MultiCell(0, lineHeight*1.5, line, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// bmpOnly replaces runes outside the Basic Multilingual Plane with U+FFFD.
// gofpdf writes UTF-8 text as two-byte code units and cannot encode them.
func bmpOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return '�'
		}
		return r
	}, s)
}
