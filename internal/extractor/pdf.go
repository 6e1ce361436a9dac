package extractor

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/fourthplaces/extractor/internal/ai"
)

var pdfLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// RenderPDF writes an Extraction to outPath as a minimal PDF archival
// export, rendering its content plus a References section built from
// Sources, preserving Markdown links as clickable PDF links. Grounded on the
// teacher's writeSimplePDF: simple line-by-line layout, no full Markdown
// rendering.
func RenderPDF(e ai.Extraction, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	writeMarkdownLines(pdf, e.Content)

	if len(e.Sources) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 8, "References", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		for i, s := range e.Sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			pdf.WriteLinkString(5, fmt.Sprintf("%d. %s", i+1, title), s.URL)
			pdf.Ln(6)
		}
	}

	return pdf.OutputFileAndClose(outPath)
}

func writeMarkdownLines(pdf *gofpdf.Fpdf, markdown string) {
	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s := strings.TrimSpace(line)
		if s == "" {
			pdf.Ln(5)
			continue
		}
		if strings.HasPrefix(s, "#") {
			i := 0
			for i < len(s) && s[i] == '#' {
				i++
			}
			text := strings.TrimSpace(s[i:])
			if text == "" {
				continue
			}
			size := 14.0
			if i >= 2 {
				size = 12.0
			}
			pdf.SetFont("Helvetica", "B", size)
			pdf.CellFormat(0, 8, text, "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		parts := pdfLinkRe.FindAllStringSubmatchIndex(s, -1)
		if len(parts) == 0 {
			pdf.MultiCell(0, 5, s, "", "L", false)
			continue
		}
		pos := 0
		for _, m := range parts {
			if m[0] > pos {
				pdf.Write(5, s[pos:m[0]])
			}
			text := s[m[2]:m[3]]
			url := s[m[4]:m[5]]
			if strings.HasPrefix(url, "#") {
				pdf.Write(5, text)
			} else {
				pdf.WriteLinkString(5, text, url)
			}
			pos = m[1]
		}
		if pos < len(s) {
			pdf.Write(5, s[pos:])
		}
		pdf.Ln(6)
	}
}
