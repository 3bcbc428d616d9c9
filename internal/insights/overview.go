// Package insights computes the fixed dashboard figures for the prescriptions
// database. Every query goes through the read-only sandbox.
package insights

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medinsight/medinsight/internal/observability"
	"github.com/medinsight/medinsight/internal/query"
)

type section struct {
	name string
	sql  string
}

var (
	patientKPISection = section{"patients", `
SELECT COUNT(*) AS total_patients,
       AVG(date_diff('year', дата_рождения, CURRENT_DATE)) AS average_age
FROM patients`}
	prescriptionKPISection = section{"prescriptions", `SELECT COUNT(*) AS total_prescriptions FROM prescriptions`}
	genderSection          = section{"gender", `
SELECT пол, COUNT(*) AS patients
FROM patients
GROUP BY пол
ORDER BY patients DESC`}
	districtSection = section{"districts", `
SELECT район_проживания, COUNT(*) AS patients
FROM patients
WHERE район_проживания IS NOT NULL
GROUP BY район_проживания
ORDER BY patients DESC`}
	monthlySection = section{"monthly", `
SELECT strftime(дата_рецепта, '%Y-%m') AS month, COUNT(*) AS prescriptions
FROM prescriptions
GROUP BY month
ORDER BY month`}
	costSection = section{"cost_by_disease", `
SELECT disease_group, avg_cost_per_prescription, avg_cost_per_patient
FROM insight_cost_by_disease
ORDER BY avg_cost_per_patient DESC
LIMIT 10`}
	regionSection = section{"region_prescriptions", `
SELECT region, SUM(prescriptions_count) AS total_prescriptions
FROM insight_region_drug_choice
GROUP BY region
ORDER BY total_prescriptions DESC`}
	diseaseClassSection = section{"disease_classes", `
SELECT d.класс_заболевания, COUNT(*) AS cases
FROM prescriptions p
JOIN diagnoses d ON p.код_диагноза = d.код_мкб
GROUP BY d.класс_заболевания
ORDER BY cases DESC
LIMIT 20`}
	genderGapSection = section{"gender_gap", `
SELECT disease_group, male_patients, female_patients, female_minus_male
FROM insight_gender_disease
ORDER BY female_minus_male DESC`}
)

// Overview holds the headline figures and the series behind them. A section
// that fails is reported in Errors and left empty.
type Overview struct {
	TotalPatients       int64             `json:"total_patients"`
	AverageAge          float64           `json:"average_age"`
	TopDistrict         string            `json:"top_district"`
	TotalPrescriptions  int64             `json:"total_prescriptions"`
	Gender              query.Table       `json:"-"`
	Districts           query.Table       `json:"-"`
	Monthly             query.Table       `json:"-"`
	CostByDisease       query.Table       `json:"-"`
	RegionPrescriptions query.Table       `json:"-"`
	DiseaseClasses      query.Table       `json:"-"`
	GenderGap           query.Table       `json:"-"`
	Errors              map[string]string `json:"errors,omitempty"`
}

// Tables returns the overview series keyed by section name.
func (o Overview) Tables() map[string]query.Table {
	return map[string]query.Table{
		genderSection.name:       o.Gender,
		districtSection.name:     o.Districts,
		monthlySection.name:      o.Monthly,
		costSection.name:         o.CostByDisease,
		regionSection.name:       o.RegionPrescriptions,
		diseaseClassSection.name: o.DiseaseClasses,
		genderGapSection.name:    o.GenderGap,
	}
}

type Service struct {
	engine query.Engine
	logger *slog.Logger
}

func NewService(engine query.Engine, logger *slog.Logger) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger}, nil
}

// Overview runs every section. It fails only when ctx is done.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	overview := Overview{Errors: map[string]string{}}

	if table, ok := s.run(ctx, &overview, patientKPISection); ok && len(table.Rows) > 0 {
		overview.TotalPatients = asInt(table.Rows[0][0])
		overview.AverageAge = asFloat(table.Rows[0][1])
	}
	if table, ok := s.run(ctx, &overview, prescriptionKPISection); ok && len(table.Rows) > 0 {
		overview.TotalPrescriptions = asInt(table.Rows[0][0])
	}
	overview.Districts, _ = s.run(ctx, &overview, districtSection)
	if len(overview.Districts.Rows) > 0 {
		if name, ok := overview.Districts.Rows[0][0].(string); ok {
			overview.TopDistrict = name
		}
	}
	overview.Gender, _ = s.run(ctx, &overview, genderSection)
	overview.Monthly, _ = s.run(ctx, &overview, monthlySection)
	overview.CostByDisease, _ = s.run(ctx, &overview, costSection)
	overview.RegionPrescriptions, _ = s.run(ctx, &overview, regionSection)
	overview.DiseaseClasses, _ = s.run(ctx, &overview, diseaseClassSection)
	overview.GenderGap, _ = s.run(ctx, &overview, genderGapSection)

	if err := ctx.Err(); err != nil {
		return Overview{}, err
	}
	if len(overview.Errors) == 0 {
		overview.Errors = nil
	}
	return overview, nil
}

func (s *Service) run(ctx context.Context, overview *Overview, sec section) (query.Table, bool) {
	if ctx.Err() != nil {
		return query.Table{}, false
	}
	table, err := s.engine.Execute(ctx, query.Request{SQL: sec.sql})
	if err != nil {
		overview.Errors[sec.name] = err.Error()
		s.logger.LogAttrs(ctx, slog.LevelWarn, "overview section failed",
			observability.TraceAttr(ctx),
			slog.String("section", sec.name),
			slog.Any("error", err),
		)
		return query.Table{}, false
	}
	return table, true
}

func asInt(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func asFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}
