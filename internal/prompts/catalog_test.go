package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medinsight/medinsight/internal/schema"
)

func TestDefaultCatalogCarriesDomainKnowledge(t *testing.T) {
	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	for _, name := range []string{"patients", "prescriptions", "diagnoses", "drugs", "insight_cost_by_disease"} {
		if _, ok := catalog.Tables[name]; !ok {
			t.Fatalf("table hint %q missing", name)
		}
	}
	if len(catalog.Examples) == 0 || len(catalog.Rules) == 0 || len(catalog.Broadening) == 0 {
		t.Fatalf("catalog missing examples, rules or broadening heuristics")
	}
	var coldCodes bool
	for _, synonym := range catalog.Synonyms {
		if strings.Contains(synonym.Meaning, "J00-J06") {
			coldCodes = true
		}
	}
	if !coldCodes {
		t.Fatal("expected the common-cold synonym to map to J00-J06")
	}
}

func TestSchemaHintsConvertsRoles(t *testing.T) {
	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	hints := catalog.SchemaHints()
	if got := hints.Tables["insight_gender_disease"].Role; got != schema.RoleAggregate {
		t.Fatalf("insight_gender_disease role = %q", got)
	}
	if got := hints.Tables["patients"].Role; got != schema.RoleRaw {
		t.Fatalf("patients role = %q", got)
	}
	if len(hints.JoinHints) != len(catalog.JoinHints) {
		t.Fatalf("join hints = %v", hints.JoinHints)
	}
}

func TestRenderSynthesisSystemListsRulesAndSynonyms(t *testing.T) {
	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	out, err := catalog.Render(SynthesisSystem, map[string]any{
		"Rules":    catalog.Rules,
		"Synonyms": catalog.Synonyms,
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "1. "+catalog.Rules[0]) {
		t.Fatalf("first rule not numbered:\n%s", out)
	}
	if !strings.Contains(out, "простуда, ОРВИ") {
		t.Fatalf("synonym terms not joined:\n%s", out)
	}
}

func TestRenderRepairTemplatesEmbedFailedSQL(t *testing.T) {
	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	out, err := catalog.Render(ErrorRepair, map[string]any{"SQL": "SELECT nope FROM drugs", "Error": "column nope not found"})
	if err != nil {
		t.Fatalf("Render(error_repair) error = %v", err)
	}
	if !strings.Contains(out, "SELECT nope FROM drugs") || !strings.Contains(out, "column nope not found") {
		t.Fatalf("error repair prompt = %s", out)
	}

	out, err = catalog.Render(EmptyRepair, map[string]any{"SQL": "SELECT 1 WHERE false", "Heuristics": catalog.Broadening})
	if err != nil {
		t.Fatalf("Render(empty_repair) error = %v", err)
	}
	if !strings.Contains(out, "ILIKE") {
		t.Fatalf("empty repair prompt lacks broadening heuristics: %s", out)
	}
}

func TestRenderErrorExhaustedMessage(t *testing.T) {
	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	out, err := catalog.Render(ErrorExhausted, map[string]any{"Error": "query timed out after 30s"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.HasSuffix(out, "query timed out after 30s") {
		t.Fatalf("message = %q", out)
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if _, err := catalog.Render(ErrorRepair, map[string]any{"SQL": "SELECT 1"}); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := catalog.Render("nope", nil); err == nil {
		t.Fatal("expected unknown template error")
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	custom := strings.Replace(string(defaultCatalog), "Нет данных по вашему запросу.", "No data.", 1)
	if err := os.WriteFile(path, []byte(custom), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if catalog.Messages.NoData != "No data." {
		t.Fatalf("NoData = %q", catalog.Messages.NoData)
	}
}

func TestParseRejectsIncompleteCatalogs(t *testing.T) {
	tests := []string{
		"tables: [",
		"templates:\n  synthesis_system: hi\n",
		strings.Replace(string(defaultCatalog), "no_data: Нет данных по вашему запросу.", "no_data: \"\"", 1),
		strings.Replace(string(defaultCatalog), "Database error: {{.Error}}", "Database error: {{.Error", 1),
	}
	for _, data := range tests {
		if _, err := Parse([]byte(data)); err == nil {
			t.Fatalf("Parse() expected error for %q", data[:min(len(data), 40)])
		}
	}
}

func TestLanguageName(t *testing.T) {
	if LanguageName("") != "Russian" || LanguageName("EN") != "English" || LanguageName("fr") != "fr" {
		t.Fatal("unexpected language names")
	}
}
