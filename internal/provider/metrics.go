package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess       = "success"
	statusError         = "error"
	statusEmptyResponse = "error_empty_response"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galgame_provider_requests_total",
			Help: "Total number of requests to the text-generation provider.",
		},
		[]string{"client", "model", "status"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galgame_provider_request_duration_seconds",
			Help:    "Histogram of provider request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"client", "model"},
	)
	promptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galgame_provider_prompt_tokens",
			Help:    "Histogram of prompt token counts (reported by the provider or estimated).",
			Buckets: prometheus.LinearBuckets(250, 250, 20), // 250 .. 5000
		},
		[]string{"model"},
	)
)

func observe(client, model, status string, started time.Time) {
	requestsTotal.With(prometheus.Labels{"client": client, "model": model, "status": status}).Inc()
	if status == statusSuccess {
		requestDuration.With(prometheus.Labels{"client": client, "model": model}).Observe(time.Since(started).Seconds())
	}
}

func observePromptTokens(model string, n int) {
	if n > 0 {
		promptTokens.With(prometheus.Labels{"model": model}).Observe(float64(n))
	}
}
