package logger

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitLevelAndFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "pdfrange.log")
	if err := Init(Options{Level: "warn", File: file, MaxSizeMB: 1}); err != nil {
		t.Fatal(err)
	}
	defer Close()

	if got := log.Logger.GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", got)
	}
	if Get().GetLevel() != zerolog.WarnLevel {
		t.Error("Get returned a different logger")
	}
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	if err := Init(Options{Level: "loud"}); err != nil {
		t.Fatal(err)
	}
	if got := log.Logger.GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", got)
	}
}

func TestAxiomWriterDropsDebug(t *testing.T) {
	c := &axiomClient{ch: make(chan axiom.Event, 4)}
	w := &axiomWriter{client: c}

	lines := []string{
		`{"level":"debug","message":"noise"}`,
		`{"level":"info","message":"loaded","session_id":"s1"}`,
		`not json`,
	}
	for _, l := range lines {
		n, err := w.Write([]byte(l))
		if err != nil || n != len(l) {
			t.Fatalf("Write(%q) = %d, %v", l, n, err)
		}
	}

	if len(c.ch) != 2 {
		t.Fatalf("forwarded %d events, want 2", len(c.ch))
	}
	ev := <-c.ch
	if ev["service"] != serviceName || ev["session_id"] != "s1" {
		t.Errorf("unexpected event %v", ev)
	}
	ev = <-c.ch
	if ev["message"] != "not json" {
		t.Errorf("raw line not wrapped: %v", ev)
	}
}

func TestAxiomSendDropsWhenFull(t *testing.T) {
	c := &axiomClient{ch: make(chan axiom.Event, 1)}
	c.Send(axiom.Event{"a": 1})
	c.Send(axiom.Event{"b": 2})
	if len(c.ch) != 1 {
		t.Errorf("buffered %d, want 1", len(c.ch))
	}
	if c.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", c.Dropped())
	}
}

func TestForSession(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	defer func() { log.Logger = prev }()
	log.Logger = zerolog.New(&buf)

	l := ForSession("abc")
	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"session_id":"abc"`) {
		t.Errorf("log line %q lacks session id", buf.String())
	}
}

type fakeIngester struct {
	mu      sync.Mutex
	batches [][]axiom.Event
	err     error
	failed  uint64
}

func (f *fakeIngester) IngestEvents(_ context.Context, _ string, events []axiom.Event, _ ...ingest.Option) (*ingest.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, append([]axiom.Event(nil), events...))
	return &ingest.Status{Ingested: uint64(len(events)) - f.failed, Failed: f.failed}, nil
}

func (f *fakeIngester) events() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestAxiomClientShipsOnClose(t *testing.T) {
	in := &fakeIngester{}
	c := startAxiomClient(in, "test", time.Hour)
	for i := 0; i < axiomBatchSize+5; i++ {
		c.Send(axiom.Event{"i": i})
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if got := in.events(); got != axiomBatchSize+5 {
		t.Errorf("shipped %d events, want %d", got, axiomBatchSize+5)
	}
}

func TestAxiomShipReportsFailureStreak(t *testing.T) {
	var out bytes.Buffer
	in := &fakeIngester{err: errors.New("401 unauthorized")}
	c := &axiomClient{ingest: in, dataset: "test", errOut: &out}

	batch := []axiom.Event{{"a": 1}, {"b": 2}}
	for i := 0; i < 3; i++ {
		if err := c.ship(batch); err == nil {
			t.Fatal("ship succeeded against a failing ingester")
		}
	}
	if got := strings.Count(out.String(), "failed"); got != 1 {
		t.Errorf("reported %d failures, want 1 per streak:\n%s", got, out.String())
	}
	if c.Dropped() != 6 {
		t.Errorf("dropped = %d, want 6", c.Dropped())
	}

	in.err = nil
	if err := c.ship(batch); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "recovered") {
		t.Errorf("recovery not reported:\n%s", out.String())
	}

	in.failed = 1
	if err := c.ship(batch); err == nil {
		t.Error("partial rejection not surfaced")
	}
	if c.Dropped() != 7 {
		t.Errorf("dropped = %d, want 7", c.Dropped())
	}
}
