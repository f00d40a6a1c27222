package impact

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	cberrors "crossbridge/internal/errors"
)

// Source identifies how a fact was observed
type Source string

const (
	SourceStaticAST    Source = "static_ast"
	SourceRuntimeTrace Source = "runtime_trace"
	SourceCoverage     Source = "coverage"
	SourceAI           Source = "ai"
	SourceManual       Source = "manual"
	SourceInferred     Source = "inferred"
)

// AllSources lists every Source in declaration order
var AllSources = []Source{
	SourceStaticAST,
	SourceRuntimeTrace,
	SourceCoverage,
	SourceAI,
	SourceManual,
	SourceInferred,
}

// DefaultConfidence is the confidence a source gets when the producer does
// not supply one
var DefaultConfidence = map[Source]float64{
	SourceStaticAST:    0.85,
	SourceRuntimeTrace: 0.9,
	SourceCoverage:     0.95,
	SourceAI:           0.7,
	SourceManual:       1.0,
	SourceInferred:     0.6,
}

// ParseSource parses a source name
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if src.Valid() {
		return src, nil
	}
	return "", fmt.Errorf("unknown impact source %q", s)
}

// Valid reports whether s is a known source
func (s Source) Valid() bool {
	_, ok := DefaultConfidence[s]
	return ok
}

// Fact is one observation that a test exercises a code element.
// Element is a page object name or a code path.
type Fact struct {
	TestID     string    `json:"test_id" validate:"required"`
	Element    string    `json:"element" validate:"required"`
	Source     Source    `json:"source" validate:"required,oneof=static_ast runtime_trace coverage ai manual inferred"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=1"`
	ObservedAt time.Time `json:"observed_at"`
}

// FactKey is the identity of a fact
type FactKey struct {
	TestID  string
	Element string
	Source  Source
}

// Key returns the fact's identity
func (f Fact) Key() FactKey {
	return FactKey{TestID: f.TestID, Element: f.Element, Source: f.Source}
}

var factValidate = validator.New()

// Validate checks required fields, the source and the confidence range
func (f Fact) Validate() error {
	if err := factValidate.Struct(f); err != nil {
		return cberrors.NewValidationError("invalid impact fact (%s, %s, %s): %v", f.TestID, f.Element, f.Source, err)
	}
	return nil
}

// merge folds other into f: the higher confidence and the later observation
// time win independently
func (f *Fact) merge(other Fact) {
	if other.Confidence > f.Confidence {
		f.Confidence = other.Confidence
	}
	if other.ObservedAt.After(f.ObservedAt) {
		f.ObservedAt = other.ObservedAt
	}
}

// ElementCount is one row of the most-referenced elements table
type ElementCount struct {
	Element string `json:"element"`
	Tests   int    `json:"tests"`
	Facts   int    `json:"facts"`
}

// Stats summarizes an index
type Stats struct {
	TotalFacts        int            `json:"total_facts"`
	TotalTests        int            `json:"total_tests"`
	TotalElements     int            `json:"total_elements"`
	AverageConfidence float64        `json:"average_confidence"`
	BySource          map[Source]int `json:"by_source"`
	TopElements       []ElementCount `json:"top_elements"`
}
