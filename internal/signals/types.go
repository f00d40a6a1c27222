// Package signals holds the adapter-facing half of the traceability engine:
// the typed StepSignal facts adapters contribute during discovery, the step
// normalization shared with the resolver, and the Registry that answers
// deterministic step-to-signal lookups.
package signals

import (
	"fmt"
	"strings"
)

// SignalType is the closed set of signal kinds
type SignalType string

const (
	// PageObject values are "Class" or "Class.method"
	PageObject SignalType = "PAGE_OBJECT"
	// Method values are "method" or "Class.method"
	Method SignalType = "METHOD"
	// CodePath values are full code path strings
	CodePath SignalType = "CODE_PATH"
	// Decorator values are framework decorators, sometimes carrying a code path
	Decorator SignalType = "DECORATOR"
	// Annotation values are framework annotations, sometimes carrying a code path
	Annotation SignalType = "ANNOTATION"
)

// AllTypes lists every SignalType in declaration order
var AllTypes = []SignalType{PageObject, Method, CodePath, Decorator, Annotation}

// ParseSignalType accepts the canonical upper-case spelling, case-insensitively
func ParseSignalType(s string) (SignalType, error) {
	t := SignalType(strings.ToUpper(strings.TrimSpace(s)))
	if t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown signal type %q", s)
}

// Valid reports whether t is one of the known kinds
func (t SignalType) Valid() bool {
	switch t {
	case PageObject, Method, CodePath, Decorator, Annotation:
		return true
	}
	return false
}

// String implements fmt.Stringer
func (t SignalType) String() string {
	return string(t)
}

// MarshalText implements encoding.TextMarshaler
func (t SignalType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown signal type %q", string(t))
	}
	return []byte(t), nil
}

// UnmarshalText implements encoding.TextUnmarshaler; unknown kinds are rejected
func (t *SignalType) UnmarshalText(text []byte) error {
	parsed, err := ParseSignalType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// StepSignal links a step pattern to a code element. Treat it as immutable:
// NewStepSignal copies the metadata map so later writes by the caller do not
// leak into a registry.
type StepSignal struct {
	Type     SignalType     `json:"type"`
	Value    string         `json:"value"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewStepSignal builds a signal, copying metadata
func NewStepSignal(t SignalType, value string, metadata map[string]any) StepSignal {
	return StepSignal{Type: t, Value: value, Metadata: cloneMetadata(metadata)}
}

// Key identifies a signal for de-duplication during matching
type Key struct {
	Type  SignalType
	Value string
}

// Key returns the (type, value) pair
func (s StepSignal) Key() Key {
	return Key{Type: s.Type, Value: s.Value}
}

func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
