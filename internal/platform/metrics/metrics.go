// Package metrics exposes Prometheus collectors for the HTTP surface and the
// consultation intake pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palu_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palu_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "palu_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	consultationsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palu_consultations_classified_total",
			Help: "Consultations classified, by severity level and classification",
		},
		[]string{"severity_level", "classification"},
	)

	intakeRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palu_intake_records_total",
			Help: "Records received per intake source and outcome",
		},
		[]string{"source", "outcome"},
	)

	extractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palu_extraction_duration_seconds",
			Help:    "Structured extraction call duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
)

// Intake outcomes.
const (
	OutcomeStored   = "stored"
	OutcomeRejected = "rejected"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency labelled by the matched
// route template, so path parameters do not inflate cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Recorder feeds the business collectors. The zero value is ready to use.
type Recorder struct{}

// Classified counts one classification verdict.
func (Recorder) Classified(level, classification string) {
	consultationsClassified.WithLabelValues(level, classification).Inc()
}

// Ingested counts one intake record for source with the given outcome.
func (Recorder) Ingested(source, outcome string) {
	intakeRecords.WithLabelValues(source, outcome).Inc()
}

// Extracted observes one extraction call.
func (Recorder) Extracted(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	extractionDuration.WithLabelValues(status).Observe(d.Seconds())
}
