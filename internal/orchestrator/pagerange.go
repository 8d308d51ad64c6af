package orchestrator

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange is a 1-indexed inclusive page span.
type PageRange struct {
	Start int
	End   int
}

// ParseRange reads the raw start and end fields. Blank or non-integer
// fields produce a MissingInputError; the numbers themselves are not
// checked here, see Validate.
func ParseRange(start, end string) (PageRange, error) {
	s, okS := parsePage(start)
	e, okE := parsePage(end)
	var missing []string
	if !okS {
		missing = append(missing, "start")
	}
	if !okE {
		missing = append(missing, "end")
	}
	if len(missing) > 0 {
		return PageRange{}, &MissingInputError{Fields: missing}
	}
	return PageRange{Start: s, End: e}, nil
}

func parsePage(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks r against a document of pageCount pages. Checks run in
// a fixed order and the first failure is returned.
func (r PageRange) Validate(pageCount int) error {
	if r.Start < 1 || r.End < 1 {
		return &OutOfRangeError{Start: r.Start, End: r.End, PageCount: pageCount, BelowOne: true}
	}
	if r.Start > pageCount || r.End > pageCount {
		return &OutOfRangeError{Start: r.Start, End: r.End, PageCount: pageCount}
	}
	if r.Start > r.End {
		return &OrderError{Start: r.Start, End: r.End}
	}
	return nil
}

// Len is the number of pages in a valid range.
func (r PageRange) Len() int { return r.End - r.Start + 1 }

// Indices returns the 0-based page indices start-1 .. end-1.
func (r PageRange) Indices() []int {
	if r.End < r.Start {
		return nil
	}
	idx := make([]int, 0, r.Len())
	for p := r.Start; p <= r.End; p++ {
		idx = append(idx, p-1)
	}
	return idx
}

// Filename is the download name for an extract of r.
func (r PageRange) Filename() string {
	return fmt.Sprintf("extracted_pages_%d-%d.pdf", r.Start, r.End)
}

func (r PageRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }
