package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "pdfrange"

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

var (
	global zerolog.Logger
	ax     *axiomClient
)

// Init sets up global logger: file rotation, optional console, optional Axiom forwarding.
func Init(opts Options) error {
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	var writers []io.Writer

	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}

	// Optional Axiom writer (info+)
	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = client
			writers = append(writers, &axiomWriter{client: client})
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
	log.Logger = global
	return nil
}

// Close flushes any buffered external loggers.
func Close() {
	if ax != nil {
		if err := ax.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		}
		ax = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// ForSession returns a child of the global logger tagged with a session id.
func ForSession(id string) zerolog.Logger {
	return log.Logger.With().Str("session_id", id).Logger()
}

// axiomWriter forwards zerolog JSON lines to Axiom (dropping debug level).
type axiomWriter struct{ client *axiomClient }

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]interface{}{"message": string(p), "level": "info"}
	}
	if lvl, ok := ev["level"].(string); ok && (lvl == "debug" || lvl == "trace") {
		return len(p), nil
	}
	ev["service"] = serviceName
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.client.Send(axiom.Event(ev))
	return len(p), nil
}

// ingester is the part of *axiom.Client the shipper needs.
type ingester interface {
	IngestEvents(ctx context.Context, dataset string, events []axiom.Event, options ...ingest.Option) (*ingest.Status, error)
}

const (
	axiomBatchSize = 200
	axiomBuffer    = 1000
)

// axiomClient buffers events and ships them in batches. Lost events are
// counted. Ingest failures go to stderr once per failure streak; logging
// them through zerolog would feed them back into this client.
type axiomClient struct {
	ingest  ingester
	dataset string
	ch      chan axiom.Event
	done    chan struct{}
	stopped chan struct{}
	errOut  io.Writer

	dropped atomic.Int64
	failing atomic.Bool
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return startAxiomClient(c, dataset, flushEvery), nil
}

func startAxiomClient(in ingester, dataset string, flushEvery time.Duration) *axiomClient {
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	ac := &axiomClient{
		ingest:  in,
		dataset: dataset,
		ch:      make(chan axiom.Event, axiomBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		errOut:  os.Stderr,
	}
	go ac.loop(flushEvery)
	return ac
}

// Send queues ev without blocking; a full buffer drops it.
func (a *axiomClient) Send(ev axiom.Event) {
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of events lost to a full buffer or a failed ingest.
func (a *axiomClient) Dropped() int64 { return a.dropped.Load() }

func (a *axiomClient) ship(batch []axiom.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status, err := a.ingest.IngestEvents(ctx, a.dataset, batch)
	switch {
	case err != nil:
		a.dropped.Add(int64(len(batch)))
	case status != nil && status.Failed > 0:
		a.dropped.Add(int64(status.Failed))
		err = fmt.Errorf("%d of %d events rejected", status.Failed, len(batch))
	}

	if err != nil {
		if a.failing.CompareAndSwap(false, true) {
			fmt.Fprintf(a.errOut, "axiom ingest into %s failed: %v\n", a.dataset, err)
		}
		return err
	}
	if a.failing.CompareAndSwap(true, false) {
		fmt.Fprintf(a.errOut, "axiom ingest into %s recovered (%d events dropped so far)\n", a.dataset, a.Dropped())
	}
	return nil
}

func (a *axiomClient) loop(flushEvery time.Duration) {
	defer close(a.stopped)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]axiom.Event, 0, axiomBatchSize)
	add := func(ev axiom.Event) {
		batch = append(batch, ev)
		if len(batch) >= axiomBatchSize {
			_ = a.ship(batch)
			batch = batch[:0]
		}
	}
	flush := func() {
		if len(batch) > 0 {
			_ = a.ship(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case <-a.done:
			// Ship whatever is still buffered before stopping.
			for {
				select {
				case ev := <-a.ch:
					add(ev)
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-a.ch:
			add(ev)
		}
	}
}

// Close ships buffered events and stops the loop.
func (a *axiomClient) Close() error {
	close(a.done)
	<-a.stopped
	if n := a.Dropped(); n > 0 {
		return fmt.Errorf("axiom: %d events dropped", n)
	}
	return nil
}
