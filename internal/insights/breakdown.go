package insights

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/medinsight/medinsight/internal/query"
)

var (
	ErrClassRequired   = errors.New("disease class is required")
	ErrUnknownClass    = errors.New("unknown disease class")
	ErrUnknownDistrict = errors.New("unknown district")
	ErrUnknownSeason   = errors.New("unknown season")
)

// classBreakdownTop diagnoses are listed by name; the rest share one row.
const classBreakdownTop = 6

// Seasons in calendar order. December opens winter.
var Seasons = []string{"Зима", "Весна", "Лето", "Осень"}

// DiagnosisShare is one slice of a class breakdown. Diagnoses is 1 except for
// the folded remainder row.
type DiagnosisShare struct {
	Diagnosis string  `json:"diagnosis"`
	Cases     int64   `json:"cases"`
	Share     float64 `json:"share_percent"`
	Diagnoses int64   `json:"diagnoses"`
}

// ClassBreakdown is the diagnosis frequency inside one disease class.
type ClassBreakdown struct {
	Class     string           `json:"class"`
	Total     int64            `json:"total"`
	Diagnoses []DiagnosisShare `json:"diagnoses"`
}

// The ranking is bucketed in SQL so the result never exceeds
// classBreakdownTop+1 rows whatever the engine row cap is.
const classBreakdownSQL = `
WITH counts AS (
    SELECT d.название_диагноза AS diagnosis, COUNT(*) AS cases
    FROM prescriptions p
    JOIN diagnoses d ON p.код_диагноза = d.код_мкб
    WHERE d.класс_заболевания = %s
    GROUP BY d.название_диагноза
), ranked AS (
    SELECT diagnosis, cases,
           row_number() OVER (ORDER BY cases DESC, diagnosis) AS position
    FROM counts
)
SELECT least(position, %d) AS bucket,
       MIN(diagnosis) AS diagnosis,
       CAST(SUM(cases) AS BIGINT) AS cases,
       COUNT(*) AS diagnoses,
       CAST(SUM(SUM(cases)) OVER () AS BIGINT) AS total
FROM ranked
GROUP BY bucket
ORDER BY bucket`

// ClassBreakdown ranks the diagnoses prescribed under class. Diagnoses past
// the sixth are folded into one "Остальные" row.
func (s *Service) ClassBreakdown(ctx context.Context, class string) (ClassBreakdown, error) {
	class = strings.TrimSpace(class)
	if class == "" {
		return ClassBreakdown{}, ErrClassRequired
	}
	statement := fmt.Sprintf(classBreakdownSQL, quoteLiteral(class), classBreakdownTop+1)
	table, err := s.engine.Execute(ctx, query.Request{SQL: statement})
	if err != nil {
		return ClassBreakdown{}, fmt.Errorf("class breakdown %q: %w", class, err)
	}
	if len(table.Rows) == 0 {
		return ClassBreakdown{}, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	breakdown := ClassBreakdown{Class: class, Total: asInt(table.Rows[0][4])}
	for _, row := range table.Rows {
		share := DiagnosisShare{
			Cases:     asInt(row[2]),
			Diagnoses: asInt(row[3]),
		}
		if asInt(row[0]) > classBreakdownTop {
			share.Diagnosis = fmt.Sprintf("Остальные (%d диагнозов)", share.Diagnoses)
		} else if name, ok := row[1].(string); ok {
			share.Diagnosis = name
		}
		if breakdown.Total > 0 {
			share.Share = math.Round(float64(share.Cases)/float64(breakdown.Total)*10000) / 100
		}
		breakdown.Diagnoses = append(breakdown.Diagnoses, share)
	}
	return breakdown, nil
}

const districtStatsSQL = `
SELECT district,
       COUNT(DISTINCT patient) AS patients,
       COUNT(diagnosis_code) AS prescriptions,
       mode(disease_class) AS top_class
FROM (
    SELECT pt.район_проживания AS district,
           pt.id_пациента AS patient,
           p.код_диагноза AS diagnosis_code,
           d.класс_заболевания AS disease_class
    FROM patients pt
    LEFT JOIN prescriptions p ON p.id_пациента = pt.id_пациента
    LEFT JOIN diagnoses d ON p.код_диагноза = d.код_мкб
    WHERE pt.район_проживания IS NOT NULL%s
)
GROUP BY district
ORDER BY prescriptions DESC, district`

// DistrictStats reports patients, prescriptions and the most frequent disease
// class per district. A non-empty name keeps the districts whose upper-cased
// name contains it; no match is ErrUnknownDistrict listing a few known names.
func (s *Service) DistrictStats(ctx context.Context, name string) (query.Table, error) {
	name = cleanLookup(name)
	filter := ""
	if name != "" {
		filter = fmt.Sprintf("\n      AND strpos(upper(pt.район_проживания), %s) > 0", quoteLiteral(strings.ToUpper(name)))
	}
	table, err := s.engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(districtStatsSQL, filter)})
	if err != nil {
		return query.Table{}, fmt.Errorf("district stats: %w", err)
	}
	if name == "" || len(table.Rows) > 0 {
		return table, nil
	}

	all, err := s.engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(districtStatsSQL, ""), RowLimit: 5})
	if err != nil {
		return query.Table{}, fmt.Errorf("%w: %s", ErrUnknownDistrict, name)
	}
	known := make([]string, 0, len(all.Rows))
	for _, row := range all.Rows {
		if district, ok := row[0].(string); ok {
			known = append(known, district)
		}
	}
	return query.Table{}, fmt.Errorf("%w: %s (available: %s)", ErrUnknownDistrict, name, strings.Join(known, ", "))
}

const seasonStatsSQL = `
SELECT season,
       COUNT(*) AS prescriptions,
       COUNT(DISTINCT patient) AS patients,
       mode(disease_class) AS top_class
FROM (
    SELECT CASE
               WHEN month(p.дата_рецепта) IN (12, 1, 2) THEN 'Зима'
               WHEN month(p.дата_рецепта) IN (3, 4, 5) THEN 'Весна'
               WHEN month(p.дата_рецепта) IN (6, 7, 8) THEN 'Лето'
               ELSE 'Осень'
           END AS season,
           p.id_пациента AS patient,
           d.класс_заболевания AS disease_class
    FROM prescriptions p
    LEFT JOIN diagnoses d ON p.код_диагноза = d.код_мкб
    WHERE p.дата_рецепта IS NOT NULL
)%s
GROUP BY season
ORDER BY list_position(['Зима', 'Весна', 'Лето', 'Осень'], season)`

// SeasonStats reports prescriptions per season. An empty season returns all
// four; anything other than a season name is ErrUnknownSeason.
func (s *Service) SeasonStats(ctx context.Context, season string) (query.Table, error) {
	season = cleanLookup(season)
	filter := ""
	if season != "" {
		canonical, ok := canonicalSeason(season)
		if !ok {
			return query.Table{}, fmt.Errorf("%w: %s (available: %s)", ErrUnknownSeason, season, strings.Join(Seasons, ", "))
		}
		filter = "\nWHERE season = " + quoteLiteral(canonical)
	}
	table, err := s.engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(seasonStatsSQL, filter)})
	if err != nil {
		return query.Table{}, fmt.Errorf("season stats: %w", err)
	}
	return table, nil
}

func canonicalSeason(name string) (string, bool) {
	for _, season := range Seasons {
		if strings.EqualFold(season, name) {
			return season, true
		}
	}
	return "", false
}

// cleanLookup strips the quotes a model or a shell tends to leave around a
// lookup value.
func cleanLookup(value string) string {
	return strings.TrimSpace(strings.NewReplacer(`"`, "", "'", "", "«", "", "»", "").Replace(value))
}

// quoteLiteral renders value as a DuckDB string literal. The sandbox takes SQL
// text only, so lookups are inlined rather than bound.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
