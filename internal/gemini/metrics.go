package gemini

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planward_generations_total",
		Help: "Generation calls by model and outcome.",
	}, []string{"model", "outcome"})

	generationTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planward_generation_tokens_total",
		Help: "Token usage by model and direction.",
	}, []string{"model", "direction"})

	generationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planward_generation_latency_seconds",
		Help:    "Generation call latency.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 120},
	}, []string{"model"})
)

func observeGeneration(model string, res Result) {
	generationsTotal.WithLabelValues(model, string(res.Status)).Inc()
	generationTokens.WithLabelValues(model, "prompt").Add(float64(res.PromptTokens))
	generationTokens.WithLabelValues(model, "completion").Add(float64(res.CompletionTokens))
	generationLatency.WithLabelValues(model).Observe(res.LatencyMS / 1000)
}
