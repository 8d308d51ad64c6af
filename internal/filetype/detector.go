package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes detects the actual file type from content, ignoring whatever
// name or MIME type the client declared.
func (d *Detector) DetectBytes(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Int("bytes", len(data)).Msg("detected file type")
	return info
}

// RequirePDF returns an error unless data is a PDF.
func (d *Detector) RequirePDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty input")
	}
	info := d.DetectBytes(data)
	if !info.Supported {
		return fmt.Errorf("%s", info.Description)
	}
	return nil
}

// classify marks PDFs as the only supported input.
func (d *Detector) classify(info *FileTypeInfo) {
	// mimetype may append parameters, e.g. "text/plain; charset=utf-8"
	base := info.MIMEType
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch {
	case base == pdfMIME:
		info.Supported = true
		info.Description = "PDF document"
	default:
		info.Supported = false
		info.Description = fmt.Sprintf("unsupported file type: %s", base)
	}
}

// DeclaredPDF reports whether a client-declared content type names a PDF.
// Browsers send "application/pdf" for dropped PDFs; pickers may send
// anything, so callers only log a mismatch and rely on DetectBytes.
func DeclaredPDF(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct == pdfMIME
}
