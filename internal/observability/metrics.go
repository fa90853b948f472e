package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalogcrawler/internal/logger"
)

// Metrics are the crawl counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PagesFetched   *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	PaginationEnds prometheus.Counter
	RecordsEmitted prometheus.Counter
	SinkErrors     prometheus.Counter
	MissingFields  *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_fetched_total",
			Help: "Pages delivered to the crawler, by request kind",
		}, []string{"kind"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_errors_total",
			Help: "Fetches that failed after all retries, by request kind",
		}, []string{"kind"}),
		PaginationEnds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_pagination_ends_total",
			Help: "Listing pages without pagination links",
		}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_records_emitted_total",
			Help: "Product records handed to the sinks",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_sink_errors_total",
			Help: "Failed sink writes",
		}),
		MissingFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_missing_fields_total",
			Help: "Product fields absent from a detail page",
		}, []string{"field"}),
	}
	reg.MustRegister(
		m.PagesFetched,
		m.FetchErrors,
		m.PaginationEnds,
		m.RecordsEmitted,
		m.SinkErrors,
		m.MissingFields,
	)
	return m
}

func (m *Metrics) PageFetched(kind string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(kind).Inc()
}

func (m *Metrics) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) PaginationEnded() {
	if m == nil {
		return
	}
	m.PaginationEnds.Inc()
}

func (m *Metrics) RecordEmitted() {
	if m == nil {
		return
	}
	m.RecordsEmitted.Inc()
}

func (m *Metrics) SinkFailed() {
	if m == nil {
		return
	}
	m.SinkErrors.Inc()
}

// FieldMissing lets Metrics observe the extractor.
func (m *Metrics) FieldMissing(field string) {
	if m == nil {
		return
	}
	m.MissingFields.WithLabelValues(field).Inc()
}

// Start serves /metrics for g on port in the background. A listener failure
// is logged; the crawl keeps running without metrics.
func Start(port string, g prometheus.Gatherer, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", logger.Error(err))
		}
	}()
	return srv
}
