package simulator

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// ExportJSON writes the result as indented JSON.
func (r *Result) ExportJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode simulation %s: %w", r.ID, err)
	}

	return nil
}

// ExportCSV writes one row per scenario (baseline first) with the metric
// vector and deltas, for spreadsheet-side comparison.
func (r *Result) ExportCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := []string{
		"scenario",
		"service_readiness",
		"reliability",
		"cost_efficiency",
		"branding_exposure",
		"energy_efficiency",
		"average_composite",
		"ready_count",
		"constraint_violations",
		"recommendation_count",
		"confidence",
		"overall_score",
		"delta_overall_score",
	}

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	rows := [][]string{metricsRow("baseline", r.Baseline, 0)}

	for _, scenario := range r.Scenarios {
		rows = append(rows, metricsRow(scenario.Name, scenario.Metrics, scenario.Delta.OverallScore))
	}

	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return nil
}

func metricsRow(name string, m Metrics, deltaOverall float64) []string {
	return []string{
		name,
		formatFloat(m.ServiceReadiness),
		formatFloat(m.Reliability),
		formatFloat(m.CostEfficiency),
		formatFloat(m.BrandingExposure),
		formatFloat(m.EnergyEfficiency),
		formatFloat(m.AverageComposite),
		strconv.Itoa(m.ReadyCount),
		strconv.Itoa(m.ConstraintViolations),
		strconv.Itoa(m.RecommendationCount),
		formatFloat(m.Confidence),
		formatFloat(m.OverallScore),
		formatFloat(deltaOverall),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
