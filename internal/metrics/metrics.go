package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP requests and the
// polling/sync subsystems.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	probesTotal      *prometheus.CounterVec
	scrapesTotal     *prometheus.CounterVec
	newFollowers     prometheus.Counter
	welcomesTotal    *prometheus.CounterVec
	syncFetchesTotal *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "growthwatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "growthwatch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	probesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "growthwatch",
		Subsystem: "poller",
		Name:      "probes_total",
		Help:      "Follower count probe attempts by outcome.",
	}, []string{"outcome"})

	scrapesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "growthwatch",
		Subsystem: "poller",
		Name:      "scrapes_total",
		Help:      "Follower list scrape attempts by outcome.",
	}, []string{"outcome"})

	newFollowers := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "growthwatch",
		Subsystem: "poller",
		Name:      "new_followers_total",
		Help:      "Genuinely new followers discovered by reconciliation.",
	})

	welcomesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "growthwatch",
		Subsystem: "welcome",
		Name:      "dispatches_total",
		Help:      "Welcome dispatch attempts by outcome.",
	}, []string{"outcome"})

	syncFetchesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "growthwatch",
		Subsystem: "sync",
		Name:      "fetches_total",
		Help:      "Sync queue per-profile fetch results.",
	}, []string{"outcome"})

	collectors := []prometheus.Collector{
		requestDuration, requestTotal,
		probesTotal, scrapesTotal, newFollowers, welcomesTotal, syncFetchesTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:         registry,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		probesTotal:      probesTotal,
		scrapesTotal:     scrapesTotal,
		newFollowers:     newFollowers,
		welcomesTotal:    welcomesTotal,
		syncFetchesTotal: syncFetchesTotal,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// RecordProbe counts one follower-count probe.
func (c *Collector) RecordProbe(ok bool) {
	c.probesTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordScrape counts one follower-list scrape; ok means a non-empty list.
func (c *Collector) RecordScrape(ok bool) {
	c.scrapesTotal.WithLabelValues(outcome(ok)).Inc()
}

// AddNewFollowers counts newly discovered followers.
func (c *Collector) AddNewFollowers(n int) {
	if n > 0 {
		c.newFollowers.Add(float64(n))
	}
}

// RecordWelcome counts one welcome dispatch attempt.
func (c *Collector) RecordWelcome(ok bool) {
	c.welcomesTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordSyncFetch counts one sync queue fetch result. Outcomes:
// "success", "skipped_today", "not_found", "error".
func (c *Collector) RecordSyncFetch(result string) {
	c.syncFetchesTotal.WithLabelValues(result).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
