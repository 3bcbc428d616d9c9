package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medinsight/medinsight/internal/auth"
	"github.com/medinsight/medinsight/internal/maintenance"
)

type fakeMaintenance struct {
	retention    maintenance.RetentionSummary
	integrity    maintenance.IntegritySummary
	integrityErr error
}

func (f fakeMaintenance) RunRetentionOnce(context.Context) (maintenance.RetentionSummary, error) {
	return f.retention, nil
}

func (f fakeMaintenance) RunIntegrityCheckOnce(context.Context) (maintenance.IntegritySummary, error) {
	return f.integrity, f.integrityErr
}

func post(t *testing.T, h http.Handler, path, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRetentionRunReturnsSummary(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Maintenance: fakeMaintenance{retention: maintenance.RetentionSummary{ArtifactsDeleted: 4}},
	})

	rr := post(t, h, "/v1/maintenance/retention/run", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	summary, _ := decodeBody(t, rr)["summary"].(map[string]any)
	if summary["artifacts_deleted"] != float64(4) {
		t.Fatalf("summary = %v", summary)
	}
}

func TestIntegrityRunReportsFailure(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Maintenance: fakeMaintenance{
			integrity:    maintenance.IntegritySummary{ArtifactsChecked: 2, CorruptArtifacts: 1},
			integrityErr: errors.New("integrity check found 1 issue(s)"),
		},
	})

	rr := post(t, h, "/v1/maintenance/integrity/run", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "INTEGRITY_CHECK_FAILED" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestMaintenanceRoutesRequireOperator(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"MEDINSIGHT_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:clinic:analyst,k2:ops:operator")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Maintenance:    fakeMaintenance{},
	})

	if rr := post(t, h, "/v1/maintenance/retention/run", "k1"); rr.Code != http.StatusForbidden {
		t.Fatalf("analyst status = %d", rr.Code)
	}
	if rr := post(t, h, "/v1/maintenance/retention/run", "k2"); rr.Code != http.StatusOK {
		t.Fatalf("operator status = %d", rr.Code)
	}
}

func TestMaintenanceRoutesReturn501WhenUnconfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	for _, path := range []string{"/v1/maintenance/retention/run", "/v1/maintenance/integrity/run"} {
		if rr := post(t, h, path, ""); rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
}
