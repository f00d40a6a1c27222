package signals

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sig(t SignalType, v string) StepSignal {
	return NewStepSignal(t, v, nil)
}

func TestRegistry_Match(t *testing.T) {
	t.Run("exact match returns signals in registration order", func(t *testing.T) {
		r := NewRegistry()
		r.Register("user logs in", sig(PageObject, "LoginPage"))
		r.Register("Given user logs in", sig(Method, "login"))

		got := r.Match("When user logs in")
		want := []StepSignal{sig(PageObject, "LoginPage"), sig(Method, "login")}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Match() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("contains match follows global registration order", func(t *testing.T) {
		r := NewRegistry()
		r.Register("admin", sig(PageObject, "AdminPage"))
		r.Register("logs in", sig(PageObject, "LoginPage"))
		r.Register("dashboard", sig(PageObject, "DashboardPage"))

		got := r.Match("user logs in as admin")
		want := []StepSignal{sig(PageObject, "AdminPage"), sig(PageObject, "LoginPage")}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Match() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("exact signals come before contains signals", func(t *testing.T) {
		r := NewRegistry()
		r.Register("logs", sig(Method, "log"))
		r.Register("user logs in", sig(PageObject, "LoginPage"))

		got := r.Match("user logs in")
		want := []StepSignal{sig(PageObject, "LoginPage"), sig(Method, "log")}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Match() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("contains phase skips pairs already collected", func(t *testing.T) {
		r := NewRegistry()
		r.Register("user logs in", sig(PageObject, "LoginPage"))
		r.Register("logs in", sig(PageObject, "LoginPage"))
		r.Register("user", sig(PageObject, "LoginPage"))
		r.Register("user", sig(Method, "login"))

		got := r.Match("user logs in")
		want := []StepSignal{sig(PageObject, "LoginPage"), sig(Method, "login")}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Match() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no match returns empty slice", func(t *testing.T) {
		r := NewRegistry()
		r.Register("user logs in", sig(PageObject, "LoginPage"))

		got := r.Match("user logs out")
		if got == nil || len(got) != 0 {
			t.Errorf("Match() = %#v, want empty non-nil slice", got)
		}
	})

	t.Run("empty pattern matches only the empty step", func(t *testing.T) {
		r := NewRegistry()
		r.Register("", sig(Decorator, "@step"))

		if got := r.Match("   "); len(got) != 1 {
			t.Errorf("Match(empty) = %v, want 1 signal", got)
		}
		if got := r.Match("user logs in"); len(got) != 0 {
			t.Errorf("Match(non-empty) = %v, want none", got)
		}
	})

	t.Run("registering mutable metadata does not leak", func(t *testing.T) {
		r := NewRegistry()
		md := map[string]any{"line": 10}
		r.Register("user logs in", NewStepSignal(CodePath, "a.py::A.b", md))
		md["line"] = 99

		got := r.Match("user logs in")
		if got[0].Metadata["line"] != 10 {
			t.Errorf("metadata = %v, want line=10", got[0].Metadata)
		}
	})
}

func TestRegistry_Introspection(t *testing.T) {
	r := NewRegistry()
	r.Register("Given user logs in", sig(PageObject, "LoginPage"))
	r.Register("user logs in", sig(Method, "login"))
	r.Register("user logs out", sig(Method, "logout"))

	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
	if diff := cmp.Diff([]string{"user logs in", "user logs out"}, r.Patterns()); diff != "" {
		t.Errorf("Patterns() mismatch (-want +got):\n%s", diff)
	}
	regs := r.Registrations()
	if len(regs) != 3 || regs[2].Pattern != "user logs out" || regs[2].Signal.Value != "logout" {
		t.Errorf("Registrations() = %+v", regs)
	}

	r.Clear()
	if r.Count() != 0 || len(r.Patterns()) != 0 {
		t.Errorf("Clear() left state: count=%d patterns=%v", r.Count(), r.Patterns())
	}
	if got := r.Match("user logs in"); len(got) != 0 {
		t.Errorf("Match() after Clear() = %v", got)
	}
}

func TestRegistry_AutomatonMatchesLinear(t *testing.T) {
	words := []string{"user", "logs", "in", "out", "admin", "clicks", "the", "button", "page", "login", "a", "b", "ab", "ba"}
	rng := rand.New(rand.NewSource(42))
	phrase := func(max int) string {
		n := 1 + rng.Intn(max)
		s := ""
		for i := 0; i < n; i++ {
			if i > 0 {
				s += " "
			}
			s += words[rng.Intn(len(words))]
		}
		return s
	}

	linear := NewRegistry(WithMatchMode(MatchLinear))
	auto := NewRegistry(WithMatchMode(MatchAutomaton))
	for i := 0; i < 300; i++ {
		p := phrase(3)
		s := sig(AllTypes[rng.Intn(len(AllTypes))], fmt.Sprintf("v%d", rng.Intn(40)))
		linear.Register(p, s)
		auto.Register(p, s)
	}

	for i := 0; i < 500; i++ {
		step := phrase(8)
		want := linear.Match(step)
		got := auto.Match(step)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("automaton diverged for %q (-linear +automaton):\n%s", step, diff)
		}
	}
}

func TestRegistry_AutoModeSwitchesAtThreshold(t *testing.T) {
	r := NewRegistry(WithAutomatonThreshold(2))
	r.Register("one", sig(Method, "one"))
	if r.useAutomaton() {
		t.Fatalf("useAutomaton() = true below threshold")
	}
	r.Register("two", sig(Method, "two"))
	if !r.useAutomaton() {
		t.Fatalf("useAutomaton() = false at threshold")
	}

	got := r.Match("one and two")
	want := []StepSignal{sig(Method, "one"), sig(Method, "two")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Match() mismatch (-want +got):\n%s", diff)
	}

	// registering after a build must invalidate the automaton
	r.Register("three", sig(Method, "three"))
	if got := r.Match("three"); len(got) != 1 || got[0].Value != "three" {
		t.Errorf("Match(three) = %v", got)
	}
}

func TestAutomaton_OverlappingPatterns(t *testing.T) {
	a := buildAutomaton([]string{"he", "she", "his", "hers", ""})
	found := a.find("ushers")
	want := []bool{true, true, false, true, false}
	if diff := cmp.Diff(want, found); diff != "" {
		t.Errorf("find() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMatchMode(t *testing.T) {
	for _, s := range []string{"auto", "linear", "automaton", ""} {
		if _, err := ParseMatchMode(s); err != nil {
			t.Errorf("ParseMatchMode(%q) error = %v", s, err)
		}
	}
	if _, err := ParseMatchMode("regex"); err == nil {
		t.Errorf("ParseMatchMode(regex) expected error")
	}
}
