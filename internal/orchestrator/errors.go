package orchestrator

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a load or extraction is already running for the session.
var ErrBusy = errors.New("an operation is already in progress for this session")

// ErrNoSource is returned when extracting before a PDF was loaded.
var ErrNoSource = errors.New("no PDF loaded")

// LoadReason classifies a LoadError.
type LoadReason string

const (
	ReasonNotPDF  LoadReason = "not_pdf"
	ReasonInvalid LoadReason = "invalid"
)

// LoadError means the input could not be parsed as a PDF.
type LoadError struct {
	Reason LoadReason
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load pdf (%s): %v", e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// MissingInputError means a range bound was absent or not an integer.
type MissingInputError struct {
	Fields []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing or non-numeric page number: %v", e.Fields)
}

// OutOfRangeError means a bound lies outside [1, PageCount].
type OutOfRangeError struct {
	Start     int
	End       int
	PageCount int
	// BelowOne is true when the lower bound check failed, false when
	// a bound exceeded PageCount.
	BelowOne bool
}

func (e *OutOfRangeError) Error() string {
	if e.BelowOne {
		return fmt.Sprintf("page numbers must be greater than 0 (start=%d end=%d)", e.Start, e.End)
	}
	return fmt.Sprintf("page numbers cannot exceed %d (start=%d end=%d)", e.PageCount, e.Start, e.End)
}

// OrderError means start is greater than end.
type OrderError struct {
	Start int
	End   int
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("start page %d must be less than or equal to end page %d", e.Start, e.End)
}

// ExtractionError wraps an engine failure after validation passed.
type ExtractionError struct {
	Range PageRange
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract pages %s: %v", e.Range, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// UserMessage renders err the way the page shows it to a person.
func UserMessage(err error) string {
	var (
		loadErr    *LoadError
		missingErr *MissingInputError
		rangeErr   *OutOfRangeError
		orderErr   *OrderError
		extractErr *ExtractionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &loadErr):
		return "Error loading PDF. Please make sure it's a valid PDF file."
	case errors.As(err, &missingErr):
		return "Please enter both start and end page numbers"
	case errors.As(err, &rangeErr):
		if rangeErr.BelowOne {
			return "Page numbers must be greater than 0"
		}
		return fmt.Sprintf("Page numbers cannot exceed %d", rangeErr.PageCount)
	case errors.As(err, &orderErr):
		return "Start page must be less than or equal to end page"
	case errors.As(err, &extractErr):
		return "Error extracting pages. Please try again."
	case errors.Is(err, ErrBusy):
		return "Please wait for the current operation to finish"
	case errors.Is(err, ErrNoSource):
		return "Please load a PDF first"
	default:
		return "Something went wrong. Please try again."
	}
}

// resultLabel is the metrics label for an operation outcome.
func resultLabel(err error) string {
	var (
		loadErr    *LoadError
		missingErr *MissingInputError
		rangeErr   *OutOfRangeError
		orderErr   *OrderError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNoSource):
		return "no_source"
	case errors.As(err, &loadErr):
		return string(loadErr.Reason)
	case errors.As(err, &missingErr):
		return "missing_input"
	case errors.As(err, &rangeErr):
		return "out_of_range"
	case errors.As(err, &orderErr):
		return "order"
	default:
		return "failed"
	}
}
