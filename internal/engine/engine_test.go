package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"crossbridge/internal/config"
	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/impact"
	"crossbridge/internal/telemetry"
)

const manifest = `framework: behave
signals:
  - pattern: user logs in
    type: PAGE_OBJECT
    value: LoginPage
  - pattern: user logs in
    type: CODE_PATH
    value: pages/login_page.py::LoginPage.login
  - pattern: opens the cart
    type: CODE_PATH
    value: pages/cart_page.py::CartPage.open
`

func openEngine(t *testing.T, mutate func(*config.Config)) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "signals.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.Registry.Manifests = []string{"signals.yaml"}
	cfg.Impact.FactStore = "memory"
	if mutate != nil {
		mutate(cfg)
	}
	e, err := Open(context.Background(), cfg, root, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, root
}

func TestOpen_LoadsManifests(t *testing.T) {
	e, _ := openEngine(t, nil)
	if e.Registry().Count() != 3 {
		t.Errorf("Registry().Count() = %d, want 3", e.Registry().Count())
	}

	m := e.Resolve("Given user logs in")
	if diff := cmp.Diff([]string{"LoginPage"}, m.PageObjects); diff != "" {
		t.Errorf("PageObjects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"pages/login_page.py::LoginPage.login"}, m.CodePaths); diff != "" {
		t.Errorf("CodePaths mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "redis"
	_, err := Open(context.Background(), cfg, t.TempDir(), nil)
	if !cberrors.IsCode(err, cberrors.ConfigInvalid) {
		t.Errorf("Open() error = %v, want CONFIG_INVALID", err)
	}
}

func TestOpen_MissingManifest(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Impact.FactStore = "memory"
	cfg.Registry.Manifests = []string{"missing.yaml"}
	if _, err := Open(context.Background(), cfg, t.TempDir(), nil); err == nil {
		t.Error("Open() expected error for a missing manifest")
	}
}

func TestRecordTestAndIndexRun(t *testing.T) {
	ctx := context.Background()
	e, _ := openEngine(t, nil)

	runID, m, err := e.RecordTest(ctx, "tests/test_login.py::test_login", "", []string{"Given user logs in", "When user opens the cart"}, nil)
	if err != nil {
		t.Fatalf("RecordTest() error = %v", err)
	}
	if runID == "" {
		t.Fatal("RecordTest() returned an empty run id")
	}
	if m.Step != "user logs in" {
		t.Errorf("Step = %q, want the first step", m.Step)
	}
	wantPaths := []string{"pages/login_page.py::LoginPage.login", "pages/cart_page.py::CartPage.open"}
	if diff := cmp.Diff(wantPaths, m.CodePaths); diff != "" {
		t.Errorf("CodePaths mismatch (-want +got):\n%s", diff)
	}

	n, err := e.IndexRun(ctx, runID)
	if err != nil {
		t.Fatalf("IndexRun() error = %v", err)
	}
	// two page objects and two code paths
	if n != 4 {
		t.Errorf("IndexRun() = %d facts, want 4", n)
	}
	f, ok := e.Index().Get("tests/test_login.py::test_login", "LoginPage", impact.SourceStaticAST)
	if !ok || f.Confidence != 0.85 {
		t.Errorf("Get() = %+v, %v", f, ok)
	}

	got := e.ImpactedBy("pages/cart_page.py::CartPage.open", -1)
	if diff := cmp.Diff([]string{"tests/test_login.py::test_login"}, got); diff != "" {
		t.Errorf("ImpactedBy() mismatch (-want +got):\n%s", diff)
	}

	tests, err := e.FindTests(ctx, "pages/login_page.py", "")
	if err != nil {
		t.Fatalf("FindTests() error = %v", err)
	}
	if diff := cmp.Diff([]string{"tests/test_login.py::test_login"}, tests); diff != "" {
		t.Errorf("FindTests() mismatch (-want +got):\n%s", diff)
	}

	report, err := e.Coverage(ctx, runID)
	if err != nil {
		t.Fatalf("Coverage() error = %v", err)
	}
	if report.TotalTests != 1 || report.CoveragePercentage != 100 {
		t.Errorf("Coverage() = %+v", report)
	}
}

func TestRecordTest_KeepsExplicitRunID(t *testing.T) {
	ctx := context.Background()
	e, _ := openEngine(t, nil)

	runID, _, err := e.RecordTest(ctx, "tests/test_login.py::test_login", "run-1", []string{"Given user logs in"}, nil)
	if err != nil {
		t.Fatalf("RecordTest() error = %v", err)
	}
	if runID != "run-1" {
		t.Fatalf("RecordTest() run = %q, want run-1", runID)
	}
	n, err := e.IndexRun(ctx, runID)
	if err != nil {
		t.Fatalf("IndexRun() error = %v", err)
	}
	if n == 0 {
		t.Error("IndexRun() found no facts for the returned run")
	}
}

func TestRecordFact_DefaultConfidence(t *testing.T) {
	ctx := context.Background()
	e, _ := openEngine(t, func(c *config.Config) {
		c.Impact.Confidence = map[string]float64{"manual": 0.75}
	})

	if err := e.RecordFact(ctx, "t1", "LoginPage", impact.SourceManual, -1); err != nil {
		t.Fatalf("RecordFact() error = %v", err)
	}
	f, ok := e.Index().Get("t1", "LoginPage", impact.SourceManual)
	if !ok || f.Confidence != 0.75 {
		t.Errorf("Get() = %+v, %v; want confidence 0.75", f, ok)
	}

	if err := e.RecordFact(ctx, "t1", "LoginPage", "guess", 0.5); err == nil {
		t.Error("RecordFact() expected error for an unknown source")
	}
}

func TestIngestTrace(t *testing.T) {
	ctx := context.Background()
	e, _ := openEngine(t, nil)

	catalog := telemetry.NewCatalog()
	catalog.AddCodePath("pages/login_page.py::LoginPage.login")
	hits := []telemetry.Hit{
		{TestID: "t1", FilePath: "pages/login_page.py", Function: "login"},
		{TestID: "t1", Function: "nowhere"},
	}

	report, err := e.IngestTrace(ctx, hits, catalog, impact.SourceRuntimeTrace)
	if err != nil {
		t.Fatalf("IngestTrace() error = %v", err)
	}
	if report.Recorded != 1 || len(report.Unmatched) != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := e.ImpactedBy("pages/login_page.py::LoginPage.login", 0); len(got) != 1 {
		t.Errorf("ImpactedBy() = %v, want [t1]", got)
	}
}

func TestFactsSurviveReopen(t *testing.T) {
	for _, store := range []string{"sqlite", "badger"} {
		t.Run(store, func(t *testing.T) {
			ctx := context.Background()
			root := t.TempDir()
			cfg := config.DefaultConfig()
			cfg.Storage.Backend = "sqlite"
			cfg.Impact.FactStore = store

			e, err := Open(ctx, cfg, root, nil)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if err := e.RecordFact(ctx, "t1", "LoginPage", impact.SourceCoverage, 0.9); err != nil {
				t.Fatalf("RecordFact() error = %v", err)
			}
			if err := e.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			reopened, err := Open(ctx, cfg, root, nil)
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			defer reopened.Close()

			f, ok := reopened.Index().Get("t1", "LoginPage", impact.SourceCoverage)
			if !ok || f.Confidence != 0.9 {
				t.Errorf("Get() after reopen = %+v, %v", f, ok)
			}
			stats := reopened.Statistics()
			if stats.TotalFacts != 1 {
				t.Errorf("Statistics().TotalFacts = %d, want 1", stats.TotalFacts)
			}
		})
	}
}
