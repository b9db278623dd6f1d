package obs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics groups Prometheus collectors for HTTP observability.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers and returns HTTP metrics collectors.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}
	} else {
		sort.Float64s(buckets)
	}
	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	registerCollector(reg, m.ReqTotal, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.ReqTotal = v
		}
	})
	registerCollector(reg, m.ReqDur, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.HistogramVec); ok {
			m.ReqDur = v
		}
	})
	registerCollector(reg, m.InFlight, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Gauge); ok {
			m.InFlight = v
		}
	})
	return m
}

// ParseBucketsCSV parses a comma separated list of millisecond bucket bounds.
// Invalid entries are skipped; an empty result falls back to the defaults.
func ParseBucketsCSV(raw string) []float64 {
	var buckets []float64
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil && v > 0 {
			buckets = append(buckets, v)
		}
	}
	return buckets
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

var (
	domainOnce sync.Once

	// QuoteTransitionsTotal counts quote lifecycle transitions by target status and outcome.
	QuoteTransitionsTotal *prometheus.CounterVec
	// SignatureRequestsTotal counts signature request emails scheduled for delivery.
	SignatureRequestsTotal prometheus.Counter
	// SignaturesAppliedTotal counts accepted quotes by signature path.
	SignaturesAppliedTotal prometheus.Counter
	// PDFRenderTotal counts PDF render job outcomes.
	PDFRenderTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers CRM domain collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_transitions_total",
			Help:      "Count of quote lifecycle transitions by target status and outcome.",
		}, []string{"status", "result"})
		SignatureRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_requests_total",
			Help:      "Number of signature request emails scheduled for delivery.",
		})
		SignaturesAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_applied_total",
			Help:      "Number of quotes accepted through the remote signature flow.",
		})
		PDFRenderTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_render_total",
			Help:      "Count of quote PDF render outcomes.",
		}, []string{"result"})

		registerCollector(reg, QuoteTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteTransitionsTotal = v
			}
		})
		registerCollector(reg, SignatureRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SignatureRequestsTotal = v
			}
		})
		registerCollector(reg, SignaturesAppliedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SignaturesAppliedTotal = v
			}
		})
		registerCollector(reg, PDFRenderTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PDFRenderTotal = v
			}
		})
	})
}

// IncQuoteTransition bumps the transition counter when metrics are registered.
func IncQuoteTransition(status, result string) {
	if QuoteTransitionsTotal != nil {
		QuoteTransitionsTotal.WithLabelValues(status, result).Inc()
	}
}

// IncSignatureRequest bumps the signature request counter when registered.
func IncSignatureRequest() {
	if SignatureRequestsTotal != nil {
		SignatureRequestsTotal.Inc()
	}
}

// IncSignatureApplied bumps the applied-signature counter when registered.
func IncSignatureApplied() {
	if SignaturesAppliedTotal != nil {
		SignaturesAppliedTotal.Inc()
	}
}

// IncPDFRender bumps the PDF render outcome counter when registered.
func IncPDFRender(result string) {
	if PDFRenderTotal != nil {
		PDFRenderTotal.WithLabelValues(result).Inc()
	}
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
