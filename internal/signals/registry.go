package signals

import "fmt"

// MatchMode selects how the substring phase of Match scans patterns
type MatchMode string

const (
	// MatchAuto scans linearly until the registry holds AutomatonThreshold
	// distinct patterns, then switches to the automaton
	MatchAuto MatchMode = "auto"
	// MatchLinear checks every registration with strings.Contains
	MatchLinear MatchMode = "linear"
	// MatchAutomaton always uses the Aho-Corasick automaton
	MatchAutomaton MatchMode = "automaton"
)

// DefaultAutomatonThreshold is the distinct-pattern count at which MatchAuto
// switches to the automaton
const DefaultAutomatonThreshold = 256

// ParseMatchMode parses a configured matcher name
func ParseMatchMode(s string) (MatchMode, error) {
	switch m := MatchMode(s); m {
	case MatchAuto, MatchLinear, MatchAutomaton:
		return m, nil
	case "":
		return MatchAuto, nil
	}
	return "", fmt.Errorf("unknown matcher %q (want auto, linear or automaton)", s)
}

// Registration is one (pattern, signal) pair in registration order
type Registration struct {
	Pattern string     `json:"pattern"`
	Signal  StepSignal `json:"signal"`
}

type entry struct {
	pattern   string
	patternID int
	signal    StepSignal
}

// Registry stores adapter-contributed pattern to signal facts for one
// discovery pass. Registration is append-only; Clear wipes everything.
//
// A Registry is not safe for concurrent use. Parallel discovery gives each
// worker its own Registry.
type Registry struct {
	exact map[string][]StepSignal
	order []entry

	// distinct normalized patterns, indexed by first registration
	patternIDs map[string]int
	patterns   []string

	mode      MatchMode
	threshold int
	automaton *automaton // nil until built, reset by Register
}

// Option configures a Registry
type Option func(*Registry)

// WithMatchMode sets the substring matcher
func WithMatchMode(mode MatchMode) Option {
	return func(r *Registry) {
		r.mode = mode
	}
}

// WithAutomatonThreshold sets the MatchAuto switch-over point
func WithAutomatonThreshold(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		mode:      MatchAuto,
		threshold: DefaultAutomatonThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.exact = make(map[string][]StepSignal)
	r.order = nil
	r.patternIDs = make(map[string]int)
	r.patterns = nil
	r.automaton = nil
}

// Register normalizes pattern and records signal under it. Registering the
// same pattern again accumulates signals.
func (r *Registry) Register(pattern string, signal StepSignal) {
	normalized := Normalize(pattern)
	signal = NewStepSignal(signal.Type, signal.Value, signal.Metadata)

	id, ok := r.patternIDs[normalized]
	if !ok {
		id = len(r.patterns)
		r.patternIDs[normalized] = id
		r.patterns = append(r.patterns, normalized)
		r.automaton = nil
	}

	r.exact[normalized] = append(r.exact[normalized], signal)
	r.order = append(r.order, entry{pattern: normalized, patternID: id, signal: signal})
}

// Match returns the signals for stepText: every signal registered under the
// exact normalized step, in registration order, followed by every signal
// whose pattern occurs inside the step, in global registration order,
// skipping (type, value) pairs already collected. It returns an empty slice
// when nothing matches.
func (r *Registry) Match(stepText string) []StepSignal {
	return r.MatchNormalized(Normalize(stepText))
}

// MatchNormalized is Match for a step already passed through Normalize
func (r *Registry) MatchNormalized(step string) []StepSignal {
	result := make([]StepSignal, 0)
	seen := make(map[Key]struct{})

	for _, s := range r.exact[step] {
		result = append(result, s)
		seen[s.Key()] = struct{}{}
	}

	contains := r.containsFunc(step)
	for _, e := range r.order {
		if e.pattern == "" || !contains(e) {
			continue
		}
		k := e.signal.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, e.signal)
	}

	return result
}

// containsFunc picks the substring test for one Match call
func (r *Registry) containsFunc(step string) func(entry) bool {
	if !r.useAutomaton() {
		return func(e entry) bool {
			return containsPattern(step, e.pattern)
		}
	}

	if r.automaton == nil {
		r.automaton = buildAutomaton(r.patterns)
	}
	found := r.automaton.find(step)
	return func(e entry) bool {
		return found[e.patternID]
	}
}

func (r *Registry) useAutomaton() bool {
	switch r.mode {
	case MatchAutomaton:
		return true
	case MatchLinear:
		return false
	default:
		return len(r.patterns) >= r.threshold
	}
}

// Clear drops all registrations
func (r *Registry) Clear() {
	r.reset()
}

// Count returns the number of registrations
func (r *Registry) Count() int {
	return len(r.order)
}

// Patterns returns the distinct normalized patterns in first-registration order
func (r *Registry) Patterns() []string {
	out := make([]string, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Registrations returns every (pattern, signal) pair in registration order
func (r *Registry) Registrations() []Registration {
	out := make([]Registration, len(r.order))
	for i, e := range r.order {
		out[i] = Registration{Pattern: e.pattern, Signal: e.signal}
	}
	return out
}
