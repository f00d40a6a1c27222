package mapping

import (
	"strings"

	"crossbridge/internal/codepath"
	"crossbridge/internal/signals"
)

// Resolver builds StepMappings from a Registry snapshot. The result depends
// only on the step text and the registry contents, so repeated calls return
// identical mappings.
type Resolver struct {
	registry *signals.Registry
}

// NewResolver creates a resolver over registry
func NewResolver(registry *signals.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve maps one step. A step nothing matches yields an empty mapping.
func (r *Resolver) Resolve(stepText string) *StepMapping {
	step := signals.Normalize(stepText)
	m := New(step)

	for _, sig := range r.registry.MatchNormalized(step) {
		m.Signals = append(m.Signals, sig)
		apply(m, sig)
	}
	return m
}

// ResolveBatch maps every step, keeping input order
func (r *Resolver) ResolveBatch(stepTexts []string) []*StepMapping {
	out := make([]*StepMapping, len(stepTexts))
	for i, text := range stepTexts {
		out[i] = r.Resolve(text)
	}
	return out
}

func apply(m *StepMapping, sig signals.StepSignal) {
	switch sig.Type {
	case signals.PageObject:
		// "Class" or "Class.method"
		m.AddPageObject(codepath.LeadingSegment(sig.Value))
	case signals.Method:
		// "method" or "Class.method"
		m.AddMethod(codepath.TrailingSegment(sig.Value))
	case signals.CodePath:
		m.AddCodePath(sig.Value)
		ref := codepath.Parse(sig.Value)
		m.AddPageObject(ref.ClassName)
		m.AddMethod(ref.MethodName)
	case signals.Decorator, signals.Annotation:
		if strings.Contains(sig.Value, codepath.Separator) {
			m.AddCodePath(sig.Value)
		}
	}
}
