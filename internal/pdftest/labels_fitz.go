package pdftest

import (
	"regexp"
	"testing"

	fitz "github.com/gen2brain/go-fitz"
)

var labelRe = regexp.MustCompile(`PAGE-\d{4}`)

// PageLabels opens data with MuPDF and returns the label found on each
// page, in page order. A page without a label yields "".
func PageLabels(tb testing.TB, data []byte) []string {
	tb.Helper()
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		tb.Fatalf("open pdf with mupdf: %v", err)
	}
	defer doc.Close()

	out := make([]string, doc.NumPage())
	for i := range out {
		text, err := doc.Text(i)
		if err != nil {
			tb.Fatalf("text of page %d: %v", i+1, err)
		}
		out[i] = labelRe.FindString(text)
	}
	return out
}

// Labels returns the expected labels for 1-based pages start..end.
func Labels(start, end int) []string {
	var out []string
	for p := start; p <= end; p++ {
		out = append(out, Label(p))
	}
	return out
}
