// Package pdftest builds small, fully valid PDFs for tests. Every page
// carries a text label PAGE-NNNN (1-based) and a MediaBox whose width
// encodes the page number, so page identity survives a copy.
package pdftest

import (
	"bytes"
	"fmt"
	"testing"
)

// PageHeight is the MediaBox height of every generated page.
const PageHeight = 400

// Label returns the text label drawn on 1-based page n.
func Label(n int) string { return fmt.Sprintf("PAGE-%04d", n) }

// PageWidth returns the MediaBox width of 1-based page n.
func PageWidth(n int) int { return 300 + n }

// Build returns an n-page PDF and fails the test on error.
func Build(tb testing.TB, n int) []byte {
	tb.Helper()
	b, err := BuildPDF(n)
	if err != nil {
		tb.Fatalf("build %d-page pdf: %v", n, err)
	}
	return b
}

// BuildPDF writes an n-page PDF 1.4 file with a classic xref table.
//
// Object layout: 1 catalog, 2 page tree, 3 font, then for page i
// (0-based) object 4+2i is the page and 5+2i its content stream.
func BuildPDF(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative page count %d", n)
	}
	var buf bytes.Buffer
	total := 3 + 2*n
	offsets := make([]int, total+1)

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	obj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")

	var kids bytes.Buffer
	for i := 0; i < n; i++ {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", 4+2*i)
	}
	obj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), n))
	obj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i := 0; i < n; i++ {
		page := i + 1
		obj(4+2*i, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			PageWidth(page), PageHeight, 5+2*i))
		content := fmt.Sprintf("BT /F1 24 Tf 40 200 Td (%s) Tj ET", Label(page))
		obj(5+2*i, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", total+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, xref)
	return buf.Bytes(), nil
}
