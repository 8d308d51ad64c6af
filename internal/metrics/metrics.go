package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfrange",
			Name:      "loads_total",
			Help:      "Source document loads by result (success, not_pdf, invalid, busy)",
		},
		[]string{"result"},
	)

	extractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfrange",
			Name:      "extractions_total",
			Help:      "Range extractions by result (success, missing_input, out_of_range, order, failed, busy, no_source)",
		},
		[]string{"result"},
	)

	extractionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pdfrange",
			Name:      "extraction_duration_seconds",
			Help:      "Duration of successful and failed engine extractions",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pagesExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfrange",
			Name:      "pages_extracted_total",
			Help:      "Total pages written into extracted documents",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfrange",
			Name:      "sessions_active",
			Help:      "Live sessions in the session store",
		},
	)

	initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(loads, extractions, extractionLatency, pagesExtracted, sessionsActive)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncLoad(result string)       { loads.WithLabelValues(result).Inc() }
func IncExtraction(result string) { extractions.WithLabelValues(result).Inc() }

// ObserveExtraction records an engine run; pages is only counted on success.
func ObserveExtraction(dur time.Duration, pages int, ok bool) {
	extractionLatency.Observe(dur.Seconds())
	if ok {
		pagesExtracted.Add(float64(pages))
	}
}

func SetSessions(n int) { sessionsActive.Set(float64(n)) }
