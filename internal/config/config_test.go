package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("medinsight-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Agent.DBPath != "db/medinsight.duckdb" {
		t.Fatalf("Agent.DBPath = %q", cfg.Agent.DBPath)
	}
	if cfg.Agent.RowCap != 50 {
		t.Fatalf("Agent.RowCap = %d", cfg.Agent.RowCap)
	}
	if cfg.Agent.ExecTimeout != 30*time.Second {
		t.Fatalf("Agent.ExecTimeout = %s", cfg.Agent.ExecTimeout)
	}
	if cfg.Agent.MaxRetries != 3 {
		t.Fatalf("Agent.MaxRetries = %d", cfg.Agent.MaxRetries)
	}
	if cfg.Agent.PreviewRows != 40 {
		t.Fatalf("Agent.PreviewRows = %d", cfg.Agent.PreviewRows)
	}
	if cfg.AI.BaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.TransportRetries != 2 {
		t.Fatalf("AI.TransportRetries = %d", cfg.AI.TransportRetries)
	}
	if cfg.Artifacts.Backend != ArtifactBackendLocal {
		t.Fatalf("Artifacts.Backend = %q", cfg.Artifacts.Backend)
	}
	if cfg.Journal.Enabled {
		t.Fatal("Journal.Enabled should default to false")
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if !cfg.Maintenance.Enabled || cfg.Maintenance.RetentionAge != 720*time.Hour || cfg.Maintenance.IntegrityDays != 2 {
		t.Fatalf("Maintenance = %+v", cfg.Maintenance)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("medinsight-api", mapLookup(map[string]string{"MEDINSIGHT_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Artifacts.Backend != ArtifactBackendS3 {
		t.Fatalf("Artifacts.Backend = %q", cfg.Artifacts.Backend)
	}
	if !cfg.Artifacts.UseSSL {
		t.Fatal("Artifacts.UseSSL should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"MEDINSIGHT_PROFILE":              "test",
		"MEDINSIGHT_HTTP_ADDR":            ":9999",
		"MEDINSIGHT_DB_PATH":              "/data/medinsight.duckdb",
		"MEDINSIGHT_ROW_CAP":              "25",
		"MEDINSIGHT_EXEC_TIMEOUT":         "5s",
		"MEDINSIGHT_MAX_RETRIES":          "1",
		"MEDINSIGHT_HISTORY_TURNS":        "2",
		"MEDINSIGHT_PREVIEW_ROWS":         "10",
		"MEDINSIGHT_LANGUAGE":             "en",
		"MEDINSIGHT_AI_MODEL":             "openai/gpt-4o-mini",
		"MEDINSIGHT_AI_TEMPERATURE":       "0.2",
		"MEDINSIGHT_AI_TIMEOUT":           "12s",
		"MEDINSIGHT_AI_TRANSPORT_RETRIES": "4",
		"MEDINSIGHT_ARTIFACTS_BACKEND":    "S3",
		"MEDINSIGHT_ARTIFACTS_BUCKET":     "answers",
		"MEDINSIGHT_JOURNAL_ENABLED":      "true",
		"MEDINSIGHT_JOURNAL_DSN":          "postgres://example",
		"MEDINSIGHT_LOG_LEVEL":            "error",
		"MEDINSIGHT_AUTH_STATIC_KEYS":     "k1:clinic:analyst",
		"MEDINSIGHT_MAINTENANCE_ENABLED":  "true",
		"MEDINSIGHT_ARTIFACTS_RETENTION":  "48h",
	})
	cfg, err := Load("medinsight-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Agent.DBPath != "/data/medinsight.duckdb" {
		t.Fatalf("Agent.DBPath = %q", cfg.Agent.DBPath)
	}
	if cfg.Agent.RowCap != 25 || cfg.Agent.MaxRetries != 1 || cfg.Agent.HistoryTurns != 2 || cfg.Agent.PreviewRows != 10 {
		t.Fatalf("Agent = %+v", cfg.Agent)
	}
	if cfg.Agent.ExecTimeout != 5*time.Second {
		t.Fatalf("Agent.ExecTimeout = %s", cfg.Agent.ExecTimeout)
	}
	if cfg.Agent.Language != "en" {
		t.Fatalf("Agent.Language = %q", cfg.Agent.Language)
	}
	if cfg.AI.Model != "openai/gpt-4o-mini" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.2 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 12*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.AI.TransportRetries != 4 {
		t.Fatalf("AI.TransportRetries = %d", cfg.AI.TransportRetries)
	}
	if cfg.Artifacts.Backend != ArtifactBackendS3 || cfg.Artifacts.Bucket != "answers" {
		t.Fatalf("Artifacts = %+v", cfg.Artifacts)
	}
	if !cfg.Journal.Enabled || cfg.Journal.DSN != "postgres://example" {
		t.Fatalf("Journal = %+v", cfg.Journal)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.StaticKeys != "k1:clinic:analyst" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if !cfg.Maintenance.Enabled || cfg.Maintenance.RetentionAge != 48*time.Hour {
		t.Fatalf("Maintenance = %+v", cfg.Maintenance)
	}
}

func TestLoadPrefersPrefixedAPIKeyOverOpenRouterFallback(t *testing.T) {
	cfg, err := Load("medinsight", mapLookup(map[string]string{"OPENROUTER_API_KEY": "fallback"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "fallback" {
		t.Fatalf("AI.APIKey = %q, want fallback", cfg.AI.APIKey)
	}

	cfg, err = Load("medinsight", mapLookup(map[string]string{
		"OPENROUTER_API_KEY":    "fallback",
		"MEDINSIGHT_AI_API_KEY": "primary",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "primary" {
		t.Fatalf("AI.APIKey = %q, want primary", cfg.AI.APIKey)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"MEDINSIGHT_PROFILE": "oops"},
		{"MEDINSIGHT_HTTP_READ_TIMEOUT": "NaN"},
		{"MEDINSIGHT_ROW_CAP": "0"},
		{"MEDINSIGHT_ROW_CAP": "many"},
		{"MEDINSIGHT_EXEC_TIMEOUT": "0s"},
		{"MEDINSIGHT_MAX_RETRIES": "-1"},
		{"MEDINSIGHT_PREVIEW_ROWS": "0"},
		{"MEDINSIGHT_AI_TEMPERATURE": "bad"},
		{"MEDINSIGHT_AI_TRANSPORT_RETRIES": "-2"},
		{"MEDINSIGHT_ARTIFACTS_BACKEND": "ftp"},
		{"MEDINSIGHT_ARTIFACTS_BACKEND": "s3", "MEDINSIGHT_ARTIFACTS_BUCKET": ""},
		{"MEDINSIGHT_JOURNAL_ENABLED": "true", "MEDINSIGHT_JOURNAL_DSN": " "},
		{"MEDINSIGHT_AUTH_REQUIRED": "not-bool"},
		{"MEDINSIGHT_LOG_LEVEL": "verbose"},
		{"MEDINSIGHT_ARTIFACTS_RETENTION": "0s"},
		{"MEDINSIGHT_ARTIFACTS_INTEGRITY_DAYS": "0"},
	}
	for _, env := range tests {
		_, err := Load("medinsight-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
