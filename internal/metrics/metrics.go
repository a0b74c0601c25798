// Package metrics exposes Prometheus collectors for the portal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presensi/internal/apperr"
	"presensi/internal/ratelimit"
)

// Collector holds every portal metric.
type Collector struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	authDecisions *prometheus.CounterVec
	rateDecisions *prometheus.CounterVec
	scans         *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presensi_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "presensi_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presensi_auth_decisions_total",
			Help: "Gatekeeper outcomes; result is ALLOWED or a rejection code.",
		}, []string{"result"}),
		rateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presensi_rate_limit_decisions_total",
			Help: "Rate limiter decisions.",
		}, []string{"decision"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presensi_scans_total",
			Help: "Kiosk scans; result is ACCEPTED or a rejection code.",
		}, []string{"result"}),
	}
	reg.MustRegister(c.requests, c.duration, c.authDecisions, c.rateDecisions, c.scans)
	return c
}

// RecordAuth counts a gatekeeper outcome. An empty code means allowed.
func (c *Collector) RecordAuth(code apperr.Code) {
	c.authDecisions.WithLabelValues(resultLabel(code, "ALLOWED")).Inc()
}

// RecordRateLimit counts a limiter decision.
func (c *Collector) RecordRateLimit(d ratelimit.Decision) {
	c.rateDecisions.WithLabelValues(d.Outcome.String()).Inc()
}

// RecordScanAccepted counts an accepted scan.
func (c *Collector) RecordScanAccepted() {
	c.scans.WithLabelValues("ACCEPTED").Inc()
}

// RecordScanRejected counts a rejected scan.
func (c *Collector) RecordScanRejected(code apperr.Code) {
	c.scans.WithLabelValues(resultLabel(code, "ACCEPTED")).Inc()
}

func resultLabel(code apperr.Code, ok string) string {
	if code == "" {
		return ok
	}
	return string(code)
}

// GinMiddleware records request counts and latency by route template.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.requests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
