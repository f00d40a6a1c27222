package impact

import (
	"context"
	"sort"
	"time"

	"crossbridge/internal/codepath"
	"crossbridge/internal/output"
)

// Index is the in-memory reverse index. It is not safe for concurrent use;
// parallel producers each fill their own Index and the results are merged
// (see Collect).
type Index struct {
	facts map[FactKey]*Fact
	order []FactKey

	byElement map[string][]FactKey
	byTest    map[string][]string

	// elements in first-seen order, and elements grouped by simple name
	elements []string
	bySimple map[string][]string
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{
		facts:     make(map[FactKey]*Fact),
		byElement: make(map[string][]FactKey),
		byTest:    make(map[string][]string),
		bySimple:  make(map[string][]string),
	}
}

// Record upserts one fact. An existing (test, element, source) triple keeps
// the higher of the two confidences. A zero observedAt means now.
func (idx *Index) Record(testID, element string, source Source, confidence float64, observedAt time.Time) error {
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	return idx.RecordFact(Fact{
		TestID:     testID,
		Element:    element,
		Source:     source,
		Confidence: confidence,
		ObservedAt: observedAt,
	})
}

// RecordFact is Record for a prepared Fact
func (idx *Index) RecordFact(f Fact) error {
	if err := f.Validate(); err != nil {
		return err
	}
	idx.upsert(f)
	recordFactMetric(context.Background(), f.Source)
	return nil
}

func (idx *Index) upsert(f Fact) {
	key := f.Key()
	if existing, ok := idx.facts[key]; ok {
		existing.merge(f)
		return
	}

	stored := f
	idx.facts[key] = &stored
	idx.order = append(idx.order, key)

	if _, seen := idx.byElement[f.Element]; !seen {
		idx.elements = append(idx.elements, f.Element)
		simple := codepath.SimpleName(f.Element)
		idx.bySimple[simple] = append(idx.bySimple[simple], f.Element)
	}
	idx.byElement[f.Element] = append(idx.byElement[f.Element], key)

	if !containsString(idx.byTest[f.TestID], f.Element) {
		idx.byTest[f.TestID] = append(idx.byTest[f.TestID], f.Element)
	}
}

// Len returns the number of facts
func (idx *Index) Len() int {
	return len(idx.order)
}

// Get returns the fact for a triple
func (idx *Index) Get(testID, element string, source Source) (Fact, bool) {
	f, ok := idx.facts[FactKey{TestID: testID, Element: element, Source: source}]
	if !ok {
		return Fact{}, false
	}
	return *f, true
}

// Facts returns every fact in first-seen order
func (idx *Index) Facts() []Fact {
	out := make([]Fact, 0, len(idx.order))
	for _, k := range idx.order {
		out = append(out, *idx.facts[k])
	}
	return out
}

// ImpactedBy returns the sorted ids of tests with a fact of at least
// minConfidence on element.
//
// Adapters spell the same element differently ("LoginPage" and
// "com.example.pages.LoginPage"), so elements are also compared by simple
// name. A bare name matches every element with that simple name. A qualified
// name is matched exactly and only falls back to simple names when the exact
// lookup finds nothing.
func (idx *Index) ImpactedBy(element string, minConfidence float64) []string {
	simple := codepath.SimpleName(element)

	var tests []string
	if simple != element {
		tests = idx.testsFor([]string{element}, minConfidence)
		if len(tests) > 0 {
			return tests
		}
	}
	return idx.testsFor(idx.bySimple[simple], minConfidence)
}

func (idx *Index) testsFor(elements []string, minConfidence float64) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, el := range elements {
		for _, k := range idx.byElement[el] {
			f := idx.facts[k]
			if f.Confidence < minConfidence {
				continue
			}
			if _, dup := seen[f.TestID]; dup {
				continue
			}
			seen[f.TestID] = struct{}{}
			out = append(out, f.TestID)
		}
	}
	sort.Strings(out)
	return out
}

// TestsFor returns the sorted elements a test touches
func (idx *Index) TestsFor(testID string) []string {
	out := append([]string{}, idx.byTest[testID]...)
	sort.Strings(out)
	return out
}

// Statistics summarizes the index. TopElements holds at most topN elements
// ordered by the number of distinct tests referencing them; ties keep
// first-seen order. topN <= 0 means all.
func (idx *Index) Statistics(topN int) Stats {
	stats := Stats{
		TotalFacts:    len(idx.order),
		TotalTests:    len(idx.byTest),
		TotalElements: len(idx.elements),
		BySource:      make(map[Source]int),
		TopElements:   []ElementCount{},
	}
	if len(idx.order) == 0 {
		return stats
	}

	var sum float64
	for _, k := range idx.order {
		f := idx.facts[k]
		sum += f.Confidence
		stats.BySource[f.Source]++
	}
	stats.AverageConfidence = output.RoundFloat(sum / float64(len(idx.order)))

	counts := make([]ElementCount, 0, len(idx.elements))
	for _, el := range idx.elements {
		keys := idx.byElement[el]
		tests := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			tests[k.TestID] = struct{}{}
		}
		counts = append(counts, ElementCount{Element: el, Tests: len(tests), Facts: len(keys)})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Tests > counts[j].Tests
	})
	if topN > 0 && len(counts) > topN {
		counts = counts[:topN]
	}
	stats.TopElements = counts
	return stats
}

// Merge folds other into idx with the same max rule as Record. The result
// does not depend on merge order, apart from first-seen order used for
// Statistics ties.
func (idx *Index) Merge(other *Index) {
	if other == nil {
		return
	}
	for _, k := range other.order {
		idx.upsert(*other.facts[k])
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
