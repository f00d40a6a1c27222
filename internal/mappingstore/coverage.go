package mappingstore

import (
	"context"

	"crossbridge/internal/output"
)

// CoverageReport summarizes how much of a run resolved to code.
// The three *_covered/*_used fields count distinct values across the run.
type CoverageReport struct {
	RunID               string   `json:"run_id"`
	TotalTests          int      `json:"total_tests"`
	TestsWithCodePaths  int      `json:"tests_with_code_paths"`
	CodePathsCovered    int      `json:"code_paths_covered"`
	PageObjectsUsed     int      `json:"page_objects_used"`
	MethodsUsed         int      `json:"methods_used"`
	StepsWithoutMapping []string `json:"steps_without_mapping"`
	CoveragePercentage  float64  `json:"coverage_percentage"`
}

// CoverageReport computes the report for a run. A run with no records
// reports zero tests and 0%. StepsWithoutMapping holds one entry per test
// without code paths, so its length is TotalTests - TestsWithCodePaths.
func (s *Store) CoverageReport(ctx context.Context, runID string) (*CoverageReport, error) {
	recs, err := s.Records(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &CoverageReport{
		RunID:               runID,
		TotalTests:          len(recs),
		StepsWithoutMapping: []string{},
	}
	codePaths := make(map[string]struct{})
	pageObjects := make(map[string]struct{})
	methods := make(map[string]struct{})

	for _, rec := range recs {
		m := rec.Mapping
		for _, v := range m.CodePaths {
			codePaths[v] = struct{}{}
		}
		for _, v := range m.PageObjects {
			pageObjects[v] = struct{}{}
		}
		for _, v := range m.Methods {
			methods[v] = struct{}{}
		}

		if m.HasCodePaths() {
			report.TestsWithCodePaths++
			continue
		}
		report.StepsWithoutMapping = append(report.StepsWithoutMapping, m.Step)
	}

	report.CodePathsCovered = len(codePaths)
	report.PageObjectsUsed = len(pageObjects)
	report.MethodsUsed = len(methods)
	report.CoveragePercentage = output.Percentage(report.TestsWithCodePaths, report.TotalTests)
	return report, nil
}
