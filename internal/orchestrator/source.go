package orchestrator

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Source is a loaded PDF. It is immutable: it keeps a private copy of the
// bytes it was built from and only hands out copies.
type Source struct {
	name        string
	data        []byte
	pageCount   int
	fingerprint string
	loadedAt    time.Time
}

// NewSource wraps already-parsed PDF bytes. Callers outside this package
// use it to restore a Source from a session store.
func NewSource(name string, data []byte, pageCount int) *Source {
	sum := blake2b.Sum256(data)
	return &Source{
		name:        name,
		data:        bytes.Clone(data),
		pageCount:   pageCount,
		fingerprint: hex.EncodeToString(sum[:]),
		loadedAt:    time.Now(),
	}
}

func (s *Source) Name() string        { return s.name }
func (s *Source) PageCount() int      { return s.pageCount }
func (s *Source) Size() int           { return len(s.data) }
func (s *Source) LoadedAt() time.Time { return s.loadedAt }

// Fingerprint is the hex blake2b-256 digest of the PDF bytes.
func (s *Source) Fingerprint() string { return s.fingerprint }

// Bytes returns a copy of the PDF bytes.
func (s *Source) Bytes() []byte { return bytes.Clone(s.data) }

// Message is the status line shown after a successful load.
func (s *Source) Message() string {
	return fmt.Sprintf("PDF loaded successfully! %d pages found.", s.pageCount)
}
