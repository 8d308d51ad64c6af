package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

func init() {
	// pdfcpu otherwise creates a config dir under the user's home.
	api.DisableConfigDir()
}

// ErrNoPages is returned when CopyPages is asked for nothing.
var ErrNoPages = errors.New("no pages selected")

// Options configures the pdfcpu engine.
type Options struct {
	// Strict turns on pdfcpu's strict validation. Relaxed mode accepts the
	// small format violations most real-world writers produce.
	Strict bool
}

// PDFCPU implements Engine with github.com/pdfcpu/pdfcpu.
type PDFCPU struct {
	strict bool
}

// NewPDFCPU returns a pdfcpu-backed engine.
func NewPDFCPU(opts Options) *PDFCPU {
	return &PDFCPU{strict: opts.Strict}
}

// conf returns a fresh configuration; pdfcpu writes into it during a run.
func (e *PDFCPU) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if e.strict {
		conf.ValidationMode = model.ValidationStrict
	} else {
		conf.ValidationMode = model.ValidationRelaxed
	}
	return conf
}

func (e *PDFCPU) PageCount(ctx context.Context, data []byte) (n int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer recoverInto(&err, "page count")
	n, err = api.PageCount(readerFor(data), e.conf())
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}

// CopyPages requires strictly ascending indices: pdfcpu's trim keeps the
// selected pages in document order, so any other order could not be honoured.
func (e *PDFCPU) CopyPages(ctx context.Context, data []byte, indices []int) (out []byte, err error) {
	sel, err := Selection(indices)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer recoverInto(&err, "copy pages")

	var buf bytes.Buffer
	if err := api.Trim(readerFor(data), &buf, sel, e.conf()); err != nil {
		return nil, fmt.Errorf("pdfcpu trim %v: %w", sel, err)
	}

	// The copy is only handed out once it reads back with the right page count.
	got, err := api.PageCount(readerFor(buf.Bytes()), e.conf())
	if err != nil {
		return nil, fmt.Errorf("verify extracted document: %w", err)
	}
	if got != len(indices) {
		return nil, fmt.Errorf("verify extracted document: got %d pages, want %d", got, len(indices))
	}
	log.Debug().Strs("selection", sel).Int("pages", got).Int("bytes", buf.Len()).Msg("pages copied")
	return buf.Bytes(), nil
}

// Selection turns strictly ascending 0-based indices into pdfcpu's
// 1-based page selection, collapsing runs: [0 1 2 5] -> ["1-3" "6"].
func Selection(indices []int) ([]string, error) {
	if len(indices) == 0 {
		return nil, ErrNoPages
	}
	var sel []string
	start := indices[0]
	prev := start
	flush := func() {
		if start == prev {
			sel = append(sel, strconv.Itoa(start+1))
		} else {
			sel = append(sel, strconv.Itoa(start+1)+"-"+strconv.Itoa(prev+1))
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("negative page index %d", start)
	}
	for _, idx := range indices[1:] {
		if idx <= prev {
			return nil, fmt.Errorf("page indices must be strictly ascending: %d after %d", idx, prev)
		}
		if idx != prev+1 {
			flush()
			start = idx
		}
		prev = idx
	}
	flush()
	return sel, nil
}

// minReadSize is the smallest input pdfcpu can find the last xref section
// in: it seeks back from the end in 512-byte blocks and fails when the
// first seek lands before the start of the file.
const minReadSize = 512

// readerFor pads inputs shorter than minReadSize with line feeds after
// %%EOF, which readers ignore, so valid tiny documents still parse.
func readerFor(data []byte) *bytes.Reader {
	if len(data) >= minReadSize {
		return bytes.NewReader(data)
	}
	padded := make([]byte, 2*minReadSize)
	n := copy(padded, data)
	for i := n; i < len(padded); i++ {
		padded[i] = '\n'
	}
	return bytes.NewReader(padded)
}

func recoverInto(err *error, op string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdfcpu %s panicked: %v", op, r)
	}
}
