package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfrange/internal/filetype"
	"github.com/local/pdfrange/internal/metrics"
	"github.com/local/pdfrange/internal/pdfdoc"
)

// Extract is a finished single-range extraction, ready for download.
type Extract struct {
	Range    PageRange
	Data     []byte
	Pages    int
	Filename string
}

// Message is the success line shown after a download.
func (e *Extract) Message() string {
	if e.Pages == 1 {
		return "Successfully extracted 1 page!"
	}
	return fmt.Sprintf("Successfully extracted %d pages!", e.Pages)
}

// Orchestrator turns raw bytes into Sources and page ranges into extracts.
// It holds no per-user state; see Session for that.
type Orchestrator struct {
	engine   pdfdoc.Engine
	detector *filetype.Detector
}

func New(engine pdfdoc.Engine) *Orchestrator {
	return &Orchestrator{engine: engine, detector: filetype.New()}
}

// LoadSource checks that raw is a PDF, parses it and returns a Source.
func (o *Orchestrator) LoadSource(ctx context.Context, name string, raw []byte) (*Source, error) {
	if err := o.detector.RequirePDF(raw); err != nil {
		return nil, &LoadError{Reason: ReasonNotPDF, Err: err}
	}
	n, err := o.engine.PageCount(ctx, raw)
	if err != nil {
		return nil, &LoadError{Reason: ReasonInvalid, Err: err}
	}
	return NewSource(name, raw, n), nil
}

// ExtractRange copies pages start..end of src into a new document. The
// source is never modified; on failure no bytes are returned.
func (o *Orchestrator) ExtractRange(ctx context.Context, src *Source, start, end int) (*Extract, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	r := PageRange{Start: start, End: end}
	if err := r.Validate(src.PageCount()); err != nil {
		return nil, err
	}

	began := time.Now()
	data, err := o.engine.CopyPages(ctx, src.data, r.Indices())
	metrics.ObserveExtraction(time.Since(began), r.Len(), err == nil)
	if err != nil {
		return nil, &ExtractionError{Range: r, Err: err}
	}

	log.Debug().Str("file", src.Name()).Str("range", r.String()).Int("bytes", len(data)).Dur("took", time.Since(began)).Msg("range extracted")
	return &Extract{
		Range:    r,
		Data:     data,
		Pages:    r.Len(),
		Filename: r.Filename(),
	}, nil
}
