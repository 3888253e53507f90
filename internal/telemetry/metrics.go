// Package telemetry exposes Prometheus metrics for merges, emitted events,
// decode failures and the HTTP audit API.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/ringtrail/internal/catalog"
)

const namespace = "ringtrail"

var (
	Registry = prometheus.NewRegistry()

	MergesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Presence merges applied.",
		},
	)

	MergeDeltaEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_delta_entries_total",
			Help:      "Presence entries changed by merges.",
		},
	)

	MergeExpiredEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_expired_entries_total",
			Help:      "Presence entries removed because they outlived the ttl.",
		},
	)

	PresenceEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_entries",
			Help:      "Entries currently held in the presence state.",
		},
	)

	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Catalog events emitted, by envelope kind and variant.",
		},
		[]string{"kind", "variant"},
	)

	DecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Catalog decode failures, by reason.",
		},
		[]string{"reason"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)
)

func init() {
	Registry.MustRegister(
		MergesTotal, MergeDeltaEntries, MergeExpiredEntries, PresenceEntries,
		EventsEmitted, DecodeErrors, RequestsTotal, RequestDuration,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveMerge records one merge outcome.
func ObserveMerge(changed, expired, size int) {
	MergesTotal.Inc()
	MergeDeltaEntries.Add(float64(changed))
	MergeExpiredEntries.Add(float64(expired))
	PresenceEntries.Set(float64(size))
}

// ObserveEvent counts one emitted catalog event.
func ObserveEvent(ev catalog.Event) {
	EventsEmitted.WithLabelValues(ev.EventKind(), catalog.Variant(ev)).Inc()
}

// ObserveDecodeError counts a decode failure under a reason derived from the
// catalog error type.
func ObserveDecodeError(err error) {
	DecodeErrors.WithLabelValues(DecodeReason(err)).Inc()
}

// DecodeReason classifies a decode error.
func DecodeReason(err error) string {
	var (
		missing   *catalog.MissingRequiredFieldError
		unknown   *catalog.UnknownVariantError
		field     *catalog.FieldError
		malformed *catalog.MalformedError
	)
	switch {
	case errors.As(err, &missing):
		return "missing_required_field"
	case errors.As(err, &unknown):
		return "unknown_variant"
	case errors.As(err, &field):
		return "invalid_field"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "other"
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
