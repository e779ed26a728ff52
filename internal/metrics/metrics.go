// Package metrics exposes Prometheus metrics for the loop server.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Catalog lookup results.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Metrics holds the Prometheus collectors of one server instance.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
	rendersTotal   *prometheus.CounterVec
	catalogLookups *prometheus.CounterVec
	mediaSequence  *prometheus.GaugeVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsloop_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsloop_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	rendersTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsloop_playlist_renders_total",
		Help: "Total number of media playlists rendered, by playlist type",
	}, []string{"type"})
	catalogLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsloop_catalog_lookups_total",
		Help: "Catalog cache lookups by result (hit, miss, error)",
	}, []string{"result"})
	mediaSequence := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hlsloop_media_sequence",
		Help: "Last media sequence number served per channel",
	}, []string{"channel"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		rendersTotal,
		catalogLookups,
		mediaSequence,
	)

	return &Metrics{
		registry:       registry,
		requestsTotal:  requestsTotal,
		errorsTotal:    errorsTotal,
		rendersTotal:   rendersTotal,
		catalogLookups: catalogLookups,
		mediaSequence:  mediaSequence,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncRenders counts a rendered playlist of the given type.
func (m *Metrics) IncRenders(playlistType string) {
	m.rendersTotal.WithLabelValues(playlistType).Inc()
}

// IncCatalogLookup counts a catalog lookup with one of the Lookup* results.
func (m *Metrics) IncCatalogLookup(result string) {
	m.catalogLookups.WithLabelValues(result).Inc()
}

// SetMediaSequence records the media sequence last served for a channel.
func (m *Metrics) SetMediaSequence(channelID int, seq uint64) {
	m.mediaSequence.WithLabelValues(strconv.Itoa(channelID)).Set(float64(seq))
}

// Registry returns the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
