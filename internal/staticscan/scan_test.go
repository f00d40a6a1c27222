package staticscan

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"crossbridge/internal/impact"
)

func TestClassifier(t *testing.T) {
	c := newClassifier(Options{Known: []string{"Dashboard"}})
	tests := []struct {
		name string
		want bool
	}{
		{"LoginPage", true},
		{"Dashboard", true},
		{"Page", false},
		{"loginPage", false},
		{"LoginHelper", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.isPageObject(tt.name); got != tt.want {
			t.Errorf("isPageObject(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	custom := newClassifier(Options{Suffixes: []string{"Screen"}})
	if !custom.isPageObject("LoginScreen") || custom.isPageObject("LoginPage") {
		t.Error("custom suffixes not honored")
	}
}

func TestLanguageFromPath(t *testing.T) {
	for path, want := range map[string]Language{"tests/test_a.py": LangPython, "src/ATest.JAVA": LangJava} {
		if got, ok := LanguageFromPath(path); !ok || got != want {
			t.Errorf("LanguageFromPath(%s) = %s, %v", path, got, ok)
		}
	}
	if _, ok := LanguageFromPath("a.feature"); ok {
		t.Error("feature files are not scanned")
	}
}

func TestRecord(t *testing.T) {
	idx := impact.NewIndex()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	err := Record(idx, []Finding{
		{TestID: "tests/test_login.py::test_login", PageObject: "LoginPage"},
		{TestID: "tests/test_login.py::test_admin", PageObject: "LoginPage"},
	}, at)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"tests/test_login.py::test_admin", "tests/test_login.py::test_login"}
	if diff := cmp.Diff(want, idx.ImpactedBy("LoginPage", 0.85)); diff != "" {
		t.Errorf("ImpactedBy() mismatch (-want +got):\n%s", diff)
	}
	f, _ := idx.Get("tests/test_login.py::test_login", "LoginPage", impact.SourceStaticAST)
	if f.Confidence != 0.85 || !f.ObservedAt.Equal(at) {
		t.Errorf("fact = %+v", f)
	}
}
