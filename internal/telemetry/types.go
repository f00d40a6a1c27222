// Package telemetry turns runtime trace and coverage hits into impact facts.
// A hit says "while test T ran, this function executed"; the Matcher ties it
// to a known code element with a confidence that reflects how much of the hit
// lined up with the element.
package telemetry

import "time"

// MatchQuality is how well a hit matched a known element
type MatchQuality string

const (
	// MatchExact is file path + function name + line number (0.95)
	MatchExact MatchQuality = "exact"
	// MatchStrong is file path + function name (0.85)
	MatchStrong MatchQuality = "strong"
	// MatchWeak is a function name unique across all known elements (0.60)
	MatchWeak MatchQuality = "weak"
	// MatchAmbiguous is more than one candidate at the best tier reached
	MatchAmbiguous MatchQuality = "ambiguous"
	// MatchUnmatched is no candidate at all
	MatchUnmatched MatchQuality = "unmatched"
)

// Confidence returns the fact confidence for a match quality
func (q MatchQuality) Confidence() float64 {
	switch q {
	case MatchExact:
		return 0.95
	case MatchStrong:
		return 0.85
	case MatchWeak:
		return 0.60
	default:
		return 0.0
	}
}

// Matched reports whether q produces a fact
func (q MatchQuality) Matched() bool {
	return q == MatchExact || q == MatchStrong || q == MatchWeak
}

// CoverageLevel grades a batch of hits
type CoverageLevel string

const (
	CoverageHigh         CoverageLevel = "high"
	CoverageMedium       CoverageLevel = "medium"
	CoverageLow          CoverageLevel = "low"
	CoverageInsufficient CoverageLevel = "insufficient"
)

// Hit is one observation from a tracer or coverage tool. Function may be
// bare ("login") or qualified ("LoginPage.login").
type Hit struct {
	TestID     string    `json:"test_id"`
	FilePath   string    `json:"file_path,omitempty"`
	Function   string    `json:"function"`
	LineNumber int       `json:"line_number,omitempty"`
	Count      int64     `json:"count,omitempty"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// Match is the outcome of matching one hit
type Match struct {
	Element    string       `json:"element,omitempty"`
	Quality    MatchQuality `json:"quality"`
	Confidence float64      `json:"confidence"`
	Basis      []string     `json:"basis"`
	Candidates []string     `json:"candidates,omitempty"`
}

// Rejected is a hit that produced no fact
type Rejected struct {
	Hit        Hit          `json:"hit"`
	Quality    MatchQuality `json:"quality"`
	Candidates []string     `json:"candidates,omitempty"`
}

// Report summarizes one ingestion
type Report struct {
	Accepted  int            `json:"accepted"`
	Recorded  int            `json:"recorded"`
	ByQuality map[string]int `json:"by_quality"`
	Unmatched []Rejected     `json:"unmatched"`
	Ambiguous []Rejected     `json:"ambiguous"`
	Quality   TraceQuality   `json:"quality"`
}

// TraceQuality grades how useful a batch of hits was
type TraceQuality struct {
	WithFilePath   float64       `json:"with_file_path"`
	WithLineNumber float64       `json:"with_line_number"`
	EffectiveRate  float64       `json:"effective_rate"`
	Score          float64       `json:"score"`
	Level          CoverageLevel `json:"level"`
	Warnings       []string      `json:"warnings,omitempty"`
}
