package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string            `yaml:"record"`
			Alert  string            `yaml:"alert"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

// Metric families registered by internal/observability and internal/maintenance.
var exportedMetrics = []string{
	"medinsight_http_requests_total",
	"medinsight_http_request_duration_seconds",
	"medinsight_agent_answers_total",
	"medinsight_agent_answer_duration_seconds",
	"medinsight_agent_attempts_total",
	"medinsight_agent_attempts_per_answer",
	"medinsight_llm_requests_total",
	"medinsight_llm_request_duration_seconds",
	"medinsight_sandbox_execution_duration_seconds",
	"medinsight_artifact_writes_total",
	"medinsight_artifact_retention_runs_total",
	"medinsight_artifacts_pruned_total",
	"medinsight_artifact_integrity_runs_total",
	"medinsight_artifact_integrity_checked_total",
	"medinsight_artifact_integrity_corrupt_total",
}

var rawMetricPattern = regexp.MustCompile(`medinsight_[a-z_]+`)

func TestRecordingRulesReferenceExportedMetrics(t *testing.T) {
	rules := loadRules(t, "medinsight_recording_rules.yaml")

	requiredRecords := []string{
		"medinsight:slo_answer_latency_seconds_p95",
		"medinsight:slo_answer_failure_ratio_15m",
		"medinsight:slo_llm_error_ratio_5m",
		"medinsight:slo_integrity_failures_24h",
		"medinsight:slo_integrity_corrupt_24h",
		"medinsight:slo_http_error_rate_5m",
	}
	records := map[string]bool{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			records[rule.Record] = true
			for _, name := range rawMetricPattern.FindAllString(rule.Expr, -1) {
				if !isExported(name) {
					t.Fatalf("record %s references unknown metric %q", rule.Record, name)
				}
			}
		}
	}
	for _, record := range requiredRecords {
		if !records[record] {
			t.Fatalf("recording rules missing record %q", record)
		}
	}
}

func TestAlertRulesUseRecordedSeries(t *testing.T) {
	recording := loadRules(t, "medinsight_recording_rules.yaml")
	records := map[string]bool{}
	for _, group := range recording.Groups {
		for _, rule := range group.Rules {
			records[rule.Record] = true
		}
	}

	alerts := loadRules(t, "medinsight_rules.yaml")
	requiredAlerts := map[string]bool{
		"MedInsightAnswerLatencyP95High":     false,
		"MedInsightAnswerFailureRatioHigh":   false,
		"MedInsightModelErrorsHigh":          false,
		"MedInsightIntegrityRunFailed":       false,
		"MedInsightCorruptArtifactsDetected": false,
	}
	recordPattern := regexp.MustCompile(`medinsight:[a-z0-9_]+`)
	for _, group := range alerts.Groups {
		for _, rule := range group.Rules {
			if _, ok := requiredAlerts[rule.Alert]; ok {
				requiredAlerts[rule.Alert] = true
			}
			switch rule.Labels["severity"] {
			case "warning", "critical":
			default:
				t.Fatalf("alert %s has severity %q", rule.Alert, rule.Labels["severity"])
			}
			for _, series := range recordPattern.FindAllString(rule.Expr, -1) {
				if !records[series] {
					t.Fatalf("alert %s uses unrecorded series %q", rule.Alert, series)
				}
			}
		}
	}
	for alert, found := range requiredAlerts {
		if !found {
			t.Fatalf("rules missing alert %q", alert)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml"))
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	text := string(content)

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"job_name: medinsight-api",
		"medinsight_rules.yaml",
		"medinsight_recording_rules.yaml",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func isExported(name string) bool {
	for _, metric := range exportedMetrics {
		if name == metric || strings.HasPrefix(name, metric+"_") {
			return true
		}
	}
	return false
}

func loadRules(t *testing.T, name string) ruleFile {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	var rules ruleFile
	if err := yaml.Unmarshal(content, &rules); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no rule groups", name)
	}
	return rules
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
