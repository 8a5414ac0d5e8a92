// Package metrics exposes Prometheus counters for logins, tokens and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
)

var _ auth.Recorder = (*Collector)(nil)

// Collector records auth outcomes and request metrics.
type Collector struct {
	logins          *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	tokensVerified  *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpd_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpd_tokens_issued_total",
			Help: "Signed tokens by kind",
		}, []string{"kind"}),
		tokensVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpd_token_verifications_total",
			Help: "Token verifications by expected kind and outcome",
		}, []string{"kind", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpd_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lpd_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpd_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.logins,
		c.tokensIssued,
		c.tokensVerified,
		c.requests,
		c.requestDuration,
		c.rateLimited,
	)
	return c
}

func (c *Collector) LoginAttempt(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) TokenIssued(kind auth.TokenKind) {
	c.tokensIssued.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) TokenVerified(kind auth.TokenKind, outcome string) {
	c.tokensVerified.WithLabelValues(string(kind), outcome).Inc()
}

// ObserveRequest records one finished request. route is the matched pattern, not the raw path.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RateLimited records a rejected request.
func (c *Collector) RateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// Handler serves the scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
