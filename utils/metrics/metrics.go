package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/norachat/agentic/domain"
)

// Recorder owns every counter and summary of the chat service and the
// registry they live in, so tests can assert against isolated instances.
type Recorder struct {
	registry *prometheus.Registry

	RequestsTotal      prometheus.Counter
	SuccessfulRequests prometheus.Counter
	FailedRequests     prometheus.Counter
	RequestDuration    prometheus.Summary
	TokenCount         prometheus.Summary
	LocalModelUsage    prometheus.Counter
	APIModelUsage      prometheus.Counter
	TimeoutErrors      prometheus.Counter
	APIErrors          prometheus.Counter
	UnknownErrors      prometheus.Counter
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		RequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_requests_total",
			Help: "Total number of requests",
		}),
		SuccessfulRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_successful_requests_total",
			Help: "Total number of successful requests",
		}),
		FailedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_failed_requests_total",
			Help: "Total number of failed requests",
		}),
		RequestDuration: factory.NewSummary(prometheus.SummaryOpts{
			Name: "app_request_duration_seconds",
			Help: "Time spent processing request",
		}),
		TokenCount: factory.NewSummary(prometheus.SummaryOpts{
			Name: "app_token_count",
			Help: "Number of tokens generated per response",
		}),
		LocalModelUsage: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_local_model_usage",
			Help: "Number of times the local model was used",
		}),
		APIModelUsage: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_api_model_usage",
			Help: "Number of times the API model was used",
		}),
		TimeoutErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_timeout_errors_total",
			Help: "Total number of timeout errors",
		}),
		APIErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_api_errors_total",
			Help: "Total number of API errors",
		}),
		UnknownErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "app_unknown_errors_total",
			Help: "Total number of unknown errors",
		}),
	}
}

func (r *Recorder) RequestStarted() {
	r.RequestsTotal.Inc()
}

func (r *Recorder) RequestSucceeded() {
	r.SuccessfulRequests.Inc()
}

// RequestFailed counts the failure and exactly one of the per-kind counters.
func (r *Recorder) RequestFailed(kind domain.ErrorKind) {
	r.FailedRequests.Inc()
	switch kind {
	case domain.ErrorTimeout:
		r.TimeoutErrors.Inc()
	case domain.ErrorBackend:
		r.APIErrors.Inc()
	default:
		r.UnknownErrors.Inc()
	}
}

func (r *Recorder) LocalModelUsed() {
	r.LocalModelUsage.Inc()
}

func (r *Recorder) APIModelUsed() {
	r.APIModelUsage.Inc()
}

func (r *Recorder) ObserveTokenCount(count int) {
	r.TokenCount.Observe(float64(count))
}

func (r *Recorder) ObserveDuration(d time.Duration) {
	r.RequestDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry for test assertions.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns the text exposition handler for this recorder.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on its own listener, unauthenticated. Blocks.
func (r *Recorder) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
