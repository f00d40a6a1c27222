package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"crossbridge/internal/impact"
	"crossbridge/internal/mapping"
	"crossbridge/internal/mappingstore"
	"crossbridge/internal/output"
	"crossbridge/internal/telemetry"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// writeResponse renders resp in format. Types without a human rendering
// fall back to JSON.
func writeResponse(w io.Writer, resp interface{}, format OutputFormat) error {
	var out string
	var err error
	switch format {
	case FormatJSON:
		out, err = formatJSON(resp)
	case FormatHuman:
		out, err = formatHuman(resp)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *mapping.StepMapping:
		return formatMappingHuman(v), nil
	case []*mapping.StepMapping:
		parts := make([]string, len(v))
		for i, m := range v {
			parts[i] = formatMappingHuman(m)
		}
		return strings.Join(parts, "\n"), nil
	case *mappingstore.CoverageReport:
		return formatCoverageHuman(v), nil
	case impact.Stats:
		return formatStatsHuman(v), nil
	case *telemetry.Report:
		return formatTraceHuman(v), nil
	case []string:
		if len(v) == 0 {
			return "(none)", nil
		}
		return strings.Join(v, "\n"), nil
	default:
		return formatJSON(resp)
	}
}

func formatMappingHuman(m *mapping.StepMapping) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step: %s\n", m.Step)
	if m.IsEmpty() {
		b.WriteString("  (unmapped)\n")
		return b.String()
	}
	writeList(&b, "Page objects", m.PageObjects)
	writeList(&b, "Methods", m.Methods)
	writeList(&b, "Code paths", m.CodePaths)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "    - %s\n", it)
	}
}

func formatCoverageHuman(r *mappingstore.CoverageReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "Tests: %d (%d with code paths, %s%%)\n", r.TotalTests, r.TestsWithCodePaths, output.FormatFloat(r.CoveragePercentage))
	fmt.Fprintf(&b, "Code paths covered: %d\n", r.CodePathsCovered)
	fmt.Fprintf(&b, "Page objects used: %d\n", r.PageObjectsUsed)
	fmt.Fprintf(&b, "Methods used: %d\n", r.MethodsUsed)
	if len(r.StepsWithoutMapping) > 0 {
		b.WriteString("Steps without mapping:\n")
		for _, s := range r.StepsWithoutMapping {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	return b.String()
}

func formatStatsHuman(s impact.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Facts: %d  Tests: %d  Elements: %d\n", s.TotalFacts, s.TotalTests, s.TotalElements)
	fmt.Fprintf(&b, "Average confidence: %s\n", output.FormatFloat(s.AverageConfidence))
	if len(s.BySource) > 0 {
		sources := make([]string, 0, len(s.BySource))
		for src := range s.BySource {
			sources = append(sources, string(src))
		}
		sort.Strings(sources)
		b.WriteString("By source:\n")
		for _, src := range sources {
			fmt.Fprintf(&b, "  %-14s %d\n", src, s.BySource[impact.Source(src)])
		}
	}
	if len(s.TopElements) > 0 {
		b.WriteString("Top elements:\n")
		for _, el := range s.TopElements {
			fmt.Fprintf(&b, "  %-40s %d tests\n", el.Element, el.Tests)
		}
	}
	return b.String()
}

func formatTraceHuman(r *telemetry.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hits: %d  Recorded: %d  Unmatched: %d  Ambiguous: %d\n",
		r.Accepted, r.Recorded, len(r.Unmatched), len(r.Ambiguous))
	fmt.Fprintf(&b, "Trace quality: %s (score %s)\n", r.Quality.Level, output.FormatFloat(r.Quality.Score))
	for _, w := range r.Quality.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}
