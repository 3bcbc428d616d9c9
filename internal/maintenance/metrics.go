package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medinsight_artifact_retention_runs_total",
			Help: "Total number of artifact retention runs by status.",
		},
		[]string{"status"},
	)
	artifactsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medinsight_artifacts_pruned_total",
			Help: "Total number of answer artifacts deleted by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medinsight_artifact_integrity_runs_total",
			Help: "Total number of artifact integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityArtifactsCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medinsight_artifact_integrity_checked_total",
			Help: "Total number of artifacts decoded by integrity checks.",
		},
	)
	integrityCorruptArtifactsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medinsight_artifact_integrity_corrupt_total",
			Help: "Total number of artifacts that failed to load during integrity checks.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		artifactsPrunedTotal,
		integrityRunsTotal,
		integrityArtifactsCheckedTotal,
		integrityCorruptArtifactsTotal,
	)
}
