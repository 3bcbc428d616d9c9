package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medinsight_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medinsight_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medinsight_agent_answers_total",
			Help: "Answered questions by final status.",
		},
		[]string{"status"},
	)
	answerDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medinsight_agent_answer_duration_seconds",
			Help:    "End-to-end latency of one answer including retries and narration.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medinsight_agent_attempts_total",
			Help: "Sandbox executions performed by the self-correction loop, by outcome.",
		},
		[]string{"outcome"},
	)
	attemptsPerAnswer = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medinsight_agent_attempts_per_answer",
			Help:    "Number of executions needed per answered question.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medinsight_llm_requests_total",
			Help: "Language model requests by operation and result.",
		},
		[]string{"operation", "result"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medinsight_llm_request_duration_seconds",
			Help:    "Language model request latency including transport retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"operation"},
	)
	sandboxExecutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medinsight_sandbox_execution_duration_seconds",
			Help:    "Sandbox execution latency by outcome.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	artifactWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medinsight_artifact_writes_total",
			Help: "Result artifact writes by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		answersTotal,
		answerDurationSeconds,
		attemptsTotal,
		attemptsPerAnswer,
		llmRequestsTotal,
		llmRequestDurationSeconds,
		sandboxExecutionDurationSeconds,
		artifactWritesTotal,
	)
}

func ObserveAnswer(status string, attempts int, elapsed time.Duration) {
	answersTotal.WithLabelValues(status).Inc()
	answerDurationSeconds.Observe(elapsed.Seconds())
	if attempts > 0 {
		attemptsPerAnswer.Observe(float64(attempts))
	}
}

func ObserveAttempt(outcome string) {
	attemptsTotal.WithLabelValues(outcome).Inc()
}

func ObserveLLMRequest(operation string, err error, elapsed time.Duration) {
	llmRequestsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	llmRequestDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func ObserveSandboxExecution(outcome string, elapsed time.Duration) {
	sandboxExecutionDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func ObserveArtifactWrite(err error) {
	artifactWritesTotal.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
