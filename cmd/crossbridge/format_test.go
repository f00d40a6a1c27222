package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"crossbridge/internal/impact"
	"crossbridge/internal/mapping"
	"crossbridge/internal/mappingstore"
	"crossbridge/internal/testutil"
)

func TestGolden_HumanRendering(t *testing.T) {
	t.Run("mapping", func(t *testing.T) {
		m := mapping.New("user logs in")
		m.AddPageObject("LoginPage")
		m.AddMethod("login")
		m.AddCodePath("pages/login_page.py::LoginPage.login")

		var buf bytes.Buffer
		if err := writeResponse(&buf, m, FormatHuman); err != nil {
			t.Fatal(err)
		}
		testutil.CompareGolden(t, "mapping.txt", buf.Bytes())
	})

	t.Run("stats", func(t *testing.T) {
		stats := impact.Stats{
			TotalFacts:        3,
			TotalTests:        2,
			TotalElements:     2,
			AverageConfidence: 0.9,
			BySource:          map[impact.Source]int{impact.SourceStaticAST: 2, impact.SourceCoverage: 1},
			TopElements: []impact.ElementCount{
				{Element: "LoginPage", Tests: 2, Facts: 2},
				{Element: "pages/cart_page.py::CartPage.open", Tests: 1, Facts: 1},
			},
		}

		var buf bytes.Buffer
		if err := writeResponse(&buf, stats, FormatHuman); err != nil {
			t.Fatal(err)
		}
		testutil.CompareGolden(t, "stats.txt", buf.Bytes())
	})
}

func TestWriteResponse(t *testing.T) {
	m := mapping.New("user logs in")
	m.AddPageObject("LoginPage")
	m.AddCodePath("pages/login_page.py::LoginPage.login")

	t.Run("human mapping", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResponse(&buf, m, FormatHuman); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"Step: user logs in", "Page objects:", "- LoginPage", "- pages/login_page.py::LoginPage.login"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "Methods:") {
			t.Errorf("empty section rendered:\n%s", out)
		}
	})

	t.Run("human unmapped", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResponse(&buf, mapping.New("nothing"), FormatHuman); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "(unmapped)") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("human coverage", func(t *testing.T) {
		var buf bytes.Buffer
		report := &mappingstore.CoverageReport{RunID: "r1", TotalTests: 3, TestsWithCodePaths: 2, CoveragePercentage: 66.67, StepsWithoutMapping: []string{"user opens cart"}}
		if err := writeResponse(&buf, report, FormatHuman); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "Tests: 3 (2 with code paths, 66.67%)") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("empty list", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResponse(&buf, []string{}, FormatHuman); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "(none)\n" {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResponse(&buf, []string{"t1", "t2"}, FormatJSON); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "[\n  \"t1\",\n  \"t2\"\n]\n" {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := writeResponse(&bytes.Buffer{}, m, OutputFormat("xml")); err == nil {
			t.Error("expected error")
		}
	})
}

func TestParseMetadata(t *testing.T) {
	got, err := parseMetadata([]string{"browser=chrome", "retries=2", "headless=true", "note=a=b"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"browser": "chrome", "retries": float64(2), "headless": true, "note": "a=b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseMetadata() mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseMetadata([]string{bad}); err == nil {
			t.Errorf("parseMetadata(%q) expected error", bad)
		}
	}
}

func TestComputeDiffAndMask(t *testing.T) {
	current := map[string]interface{}{
		"version": float64(1),
		"storage": map[string]interface{}{
			"backend":     "postgres",
			"postgresUrl": "postgres://u:p@db/x",
			"object":      map[string]interface{}{"secretKey": "s3cr3t", "bucket": ""},
		},
	}
	defaults := map[string]interface{}{
		"version": float64(1),
		"storage": map[string]interface{}{
			"backend":     "file",
			"postgresUrl": "",
			"object":      map[string]interface{}{"secretKey": "", "bucket": ""},
		},
	}

	diff := computeDiff(current, defaults)
	maskSecrets(diff)
	want := map[string]interface{}{
		"storage": map[string]interface{}{
			"backend":     "postgres",
			"postgresUrl": "********",
			"object":      map[string]interface{}{"secretKey": "********"},
		},
	}
	if d := cmp.Diff(want, diff); d != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", d)
	}
}
