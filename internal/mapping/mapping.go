// Package mapping turns step text into a StepMapping: the page objects,
// methods and code paths the step exercises, derived from the signals a
// Registry holds for it.
package mapping

import (
	"encoding/json"

	"crossbridge/internal/signals"
)

// StepMapping accumulates the code elements one step resolves to.
// The three name lists are ordered sets: no duplicates, first-seen order.
// Signals lists every signal that contributed, in match order.
type StepMapping struct {
	Step        string               `json:"step"`
	PageObjects []string             `json:"page_objects"`
	Methods     []string             `json:"methods"`
	CodePaths   []string             `json:"code_paths"`
	Signals     []signals.StepSignal `json:"signals"`
}

// New returns an empty mapping for a normalized step
func New(step string) *StepMapping {
	return &StepMapping{
		Step:        step,
		PageObjects: []string{},
		Methods:     []string{},
		CodePaths:   []string{},
		Signals:     []signals.StepSignal{},
	}
}

// AddPageObject appends name unless empty or already present
func (m *StepMapping) AddPageObject(name string) bool {
	return addUnique(&m.PageObjects, name)
}

// AddMethod appends name unless empty or already present
func (m *StepMapping) AddMethod(name string) bool {
	return addUnique(&m.Methods, name)
}

// AddCodePath appends path unless empty or already present
func (m *StepMapping) AddCodePath(path string) bool {
	return addUnique(&m.CodePaths, path)
}

// IsEmpty reports whether the step resolved to nothing
func (m *StepMapping) IsEmpty() bool {
	return len(m.PageObjects) == 0 && len(m.Methods) == 0 && len(m.CodePaths) == 0
}

// HasCodePaths reports whether at least one code path was resolved
func (m *StepMapping) HasCodePaths() bool {
	return len(m.CodePaths) > 0
}

// Absorb merges other into m with insert-if-absent semantics. Values already
// in m keep their position; new ones are appended in other's order. Signals
// are de-duplicated by (type, value). m.Step is kept unless it is empty.
func (m *StepMapping) Absorb(other *StepMapping) {
	if other == nil {
		return
	}
	if m.Step == "" {
		m.Step = other.Step
	}
	for _, v := range other.PageObjects {
		m.AddPageObject(v)
	}
	for _, v := range other.Methods {
		m.AddMethod(v)
	}
	for _, v := range other.CodePaths {
		m.AddCodePath(v)
	}

	seen := make(map[signals.Key]struct{}, len(m.Signals))
	for _, s := range m.Signals {
		seen[s.Key()] = struct{}{}
	}
	for _, s := range other.Signals {
		if _, ok := seen[s.Key()]; ok {
			continue
		}
		seen[s.Key()] = struct{}{}
		m.Signals = append(m.Signals, s)
	}
}

// Clone returns a deep copy
func (m *StepMapping) Clone() *StepMapping {
	out := New(m.Step)
	out.PageObjects = append(out.PageObjects, m.PageObjects...)
	out.Methods = append(out.Methods, m.Methods...)
	out.CodePaths = append(out.CodePaths, m.CodePaths...)
	for _, s := range m.Signals {
		out.Signals = append(out.Signals, signals.NewStepSignal(s.Type, s.Value, s.Metadata))
	}
	return out
}

// MarshalJSON writes empty lists as [] rather than null
func (m StepMapping) MarshalJSON() ([]byte, error) {
	type plain StepMapping
	p := plain(m)
	fillEmpty((*StepMapping)(&p))
	return json.Marshal(p)
}

// UnmarshalJSON accepts null or missing lists as empty
func (m *StepMapping) UnmarshalJSON(data []byte) error {
	type plain StepMapping
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = StepMapping(p)
	fillEmpty(m)
	return nil
}

func fillEmpty(m *StepMapping) {
	if m.PageObjects == nil {
		m.PageObjects = []string{}
	}
	if m.Methods == nil {
		m.Methods = []string{}
	}
	if m.CodePaths == nil {
		m.CodePaths = []string{}
	}
	if m.Signals == nil {
		m.Signals = []signals.StepSignal{}
	}
}

func addUnique(list *[]string, v string) bool {
	if v == "" {
		return false
	}
	for _, existing := range *list {
		if existing == v {
			return false
		}
	}
	*list = append(*list, v)
	return true
}
