// Package pdfdoc adapts a PDF library to the small capability the
// extraction orchestrator needs: count pages, and copy a run of pages
// into a new serialized document.
package pdfdoc

import "context"

// Engine parses and assembles PDFs. Implementations never modify the
// input slice and must be safe for concurrent use.
type Engine interface {
	// PageCount parses data and returns the number of pages.
	PageCount(ctx context.Context, data []byte) (int, error)

	// CopyPages creates a new document holding the pages of data at the
	// given 0-based indices, in the given order, and returns it serialized.
	// Either a complete document is returned or an error; never both.
	CopyPages(ctx context.Context, data []byte, indices []int) ([]byte, error)
}
