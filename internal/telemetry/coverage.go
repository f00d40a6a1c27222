package telemetry

import "crossbridge/internal/output"

// ComputeQuality grades hits by how much location data they carried and how
// many matched at the exact or strong tier.
func ComputeQuality(hits []Hit, matches []Match) TraceQuality {
	if len(hits) == 0 {
		return TraceQuality{
			Level:    CoverageInsufficient,
			Warnings: []string{"No hits received"},
		}
	}

	total := float64(len(hits))
	withFilePath := 0
	withLineNumber := 0
	for _, h := range hits {
		if h.FilePath != "" {
			withFilePath++
		}
		if h.LineNumber > 0 {
			withLineNumber++
		}
	}
	attrFilePath := float64(withFilePath) / total
	attrLineNumber := float64(withLineNumber) / total
	attrOverall := attrFilePath*0.7 + attrLineNumber*0.3

	effective := 0
	for _, m := range matches {
		if m.Quality == MatchExact || m.Quality == MatchStrong {
			effective++
		}
	}
	effectiveRate := 0.0
	if len(matches) > 0 {
		effectiveRate = float64(effective) / float64(len(matches))
	}

	score := attrOverall*0.4 + effectiveRate*0.6

	var level CoverageLevel
	switch {
	case score >= 0.8:
		level = CoverageHigh
	case score >= 0.6:
		level = CoverageMedium
	case score >= 0.4:
		level = CoverageLow
	default:
		level = CoverageInsufficient
	}

	var warnings []string
	if effectiveRate < 0.5 {
		warnings = append(warnings, "Low match rate; most hits matched weakly or not at all")
	}
	if attrFilePath < 0.5 {
		warnings = append(warnings, "Most hits missing file_path; match quality limited")
	}

	return TraceQuality{
		WithFilePath:   output.RoundFloat(attrFilePath),
		WithLineNumber: output.RoundFloat(attrLineNumber),
		EffectiveRate:  output.RoundFloat(effectiveRate),
		Score:          output.RoundFloat(score),
		Level:          level,
		Warnings:       warnings,
	}
}
