package mappingstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/mapping"
	"crossbridge/internal/signals"
)

func newMapping(step string, codePaths ...string) *mapping.StepMapping {
	m := mapping.New(step)
	for _, cp := range codePaths {
		m.AddCodePath(cp)
	}
	return m
}

// backends runs fn against every Backend implementation in this package
func backends(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Run("file", func(t *testing.T) {
		fn(t, New(NewFileBackend(t.TempDir()), nil))
	})
	t.Run("object", func(t *testing.T) {
		fn(t, New(newObjectBackend(newFakeObjects(), "bucket", "crossbridge"), nil))
	})
}

func TestStore_SaveAndLoad(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		m := newMapping("user logs in", "pages/login_page.py::LoginPage.login")
		m.AddPageObject("LoginPage")

		loc, err := s.Save(ctx, m, "tests/test_login.py::test_login", "run-1", map[string]any{"framework": "pytest"})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if loc == "" {
			t.Error("Save() returned an empty location")
		}

		got, ok, err := s.Load(ctx, "tests/test_login.py::test_login", "run-1")
		if err != nil || !ok {
			t.Fatalf("Load() = %v, %v, %v", got, ok, err)
		}
		if diff := cmp.Diff(m, got); diff != "" {
			t.Errorf("Load() mismatch (-want +got):\n%s", diff)
		}

		rec, _, _ := s.LoadRecord(ctx, "tests/test_login.py::test_login", "run-1")
		if rec.Metadata["framework"] != "pytest" || rec.RunID != "run-1" {
			t.Errorf("record = %+v", rec)
		}
	})
}

func TestStore_LookupMissIsNotAnError(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		m, ok, err := s.Load(ctx, "missing", "no-run")
		if err != nil || ok || m != nil {
			t.Errorf("Load(missing) = %v, %v, %v", m, ok, err)
		}
		all, err := s.LoadAll(ctx, "no-run")
		if err != nil || len(all) != 0 || all == nil {
			t.Errorf("LoadAll(unknown) = %v, %v", all, err)
		}
		tests, err := s.FindTestsByCodePath(ctx, "a.py::A.b", "")
		if err != nil || len(tests) != 0 {
			t.Errorf("FindTestsByCodePath() = %v, %v", tests, err)
		}
		runs, err := s.Runs(ctx)
		if err != nil || len(runs) != 0 {
			t.Errorf("Runs() = %v, %v", runs, err)
		}
	})
}

func TestStore_SaveMergesExisting(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		first := newMapping("user logs in", "pages/login.py::LoginPage.login")
		first.AddPageObject("LoginPage")
		if _, err := s.Save(ctx, first, "t1", "run-1", map[string]any{"a": 1, "b": "old"}); err != nil {
			t.Fatal(err)
		}

		second := newMapping("user logs in", "pages/home.py::HomePage.open")
		second.Signals = append(second.Signals, signals.NewStepSignal(signals.CodePath, "pages/home.py::HomePage.open", nil))
		if _, err := s.Save(ctx, second, "t1", "run-1", map[string]any{"b": "new"}); err != nil {
			t.Fatal(err)
		}

		rec, ok, err := s.LoadRecord(ctx, "t1", "run-1")
		if err != nil || !ok {
			t.Fatal(err)
		}
		want := []string{"pages/login.py::LoginPage.login", "pages/home.py::HomePage.open"}
		if diff := cmp.Diff(want, rec.Mapping.CodePaths); diff != "" {
			t.Errorf("CodePaths mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"LoginPage"}, rec.Mapping.PageObjects); diff != "" {
			t.Errorf("PageObjects lost on merge (-want +got):\n%s", diff)
		}
		// JSON numbers come back as float64
		if rec.Metadata["a"] != float64(1) || rec.Metadata["b"] != "new" {
			t.Errorf("Metadata = %v", rec.Metadata)
		}
	})
}

func TestStore_SaveBatch(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		locs, err := s.SaveBatch(ctx,
			[]*mapping.StepMapping{
				newMapping("a", "a.py::A.a"),
				newMapping("b"),
				newMapping("a", "a.py::A.b"),
			},
			[]string{"t1", "t2", "t1"},
			"run-1", nil,
		)
		if err != nil {
			t.Fatalf("SaveBatch() error = %v", err)
		}
		if len(locs) != 3 || locs[0] != locs[2] {
			t.Errorf("locations = %v", locs)
		}

		all, err := s.LoadAll(ctx, "run-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Fatalf("LoadAll() has %d mappings, want 2", len(all))
		}
		if diff := cmp.Diff([]string{"a.py::A.a", "a.py::A.b"}, all["t1"].CodePaths); diff != "" {
			t.Errorf("duplicate ids were not merged (-want +got):\n%s", diff)
		}
	})
}

func TestStore_SaveBatchValidatesBeforeWriting(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		tests := []struct {
			name     string
			mappings []*mapping.StepMapping
			ids      []string
			run      string
		}{
			{"length mismatch", []*mapping.StepMapping{newMapping("a"), newMapping("b")}, []string{"t1"}, "run-1"},
			{"empty run", []*mapping.StepMapping{newMapping("a")}, []string{"t1"}, ""},
			{"empty test id", []*mapping.StepMapping{newMapping("a"), newMapping("b")}, []string{"t1", " "}, "run-1"},
			{"nil mapping", []*mapping.StepMapping{newMapping("a"), nil}, []string{"t1", "t2"}, "run-1"},
		}
		for _, tt := range tests {
			_, err := s.SaveBatch(ctx, tt.mappings, tt.ids, tt.run, nil)
			if !cberrors.IsCode(err, cberrors.ValidationError) {
				t.Errorf("%s: error = %v, want ValidationError", tt.name, err)
			}
		}

		runs, err := s.Runs(ctx)
		if err != nil || len(runs) != 0 {
			t.Errorf("rejected batches wrote data: runs = %v, %v", runs, err)
		}
	})
}

func TestStore_CoverageReport(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		withPO := newMapping("user opens cart")
		withPO.AddPageObject("CartPage")

		_, err := s.SaveBatch(ctx,
			[]*mapping.StepMapping{
				newMapping("user logs in", "pages/login.py::LoginPage.login", "pages/login.py::LoginPage.submit"),
				newMapping("user logs out", "pages/login.py::LoginPage.logout", "pages/login.py::LoginPage.login"),
				withPO,
			},
			[]string{"t1", "t2", "t3"},
			"run-1", nil,
		)
		if err != nil {
			t.Fatal(err)
		}

		report, err := s.CoverageReport(ctx, "run-1")
		if err != nil {
			t.Fatal(err)
		}
		want := &CoverageReport{
			RunID:               "run-1",
			TotalTests:          3,
			TestsWithCodePaths:  2,
			CodePathsCovered:    3,
			PageObjectsUsed:     1,
			MethodsUsed:         0,
			StepsWithoutMapping: []string{"user opens cart"},
			CoveragePercentage:  66.67,
		}
		if diff := cmp.Diff(want, report); diff != "" {
			t.Errorf("CoverageReport() mismatch (-want +got):\n%s", diff)
		}

		empty, err := s.CoverageReport(ctx, "nothing")
		if err != nil {
			t.Fatal(err)
		}
		if empty.TotalTests != 0 || empty.CoveragePercentage != 0 || empty.StepsWithoutMapping == nil {
			t.Errorf("empty report = %+v", empty)
		}
	})
}

func TestStore_CoverageReportListsEveryUnmappedTest(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		_, err := s.SaveBatch(ctx,
			[]*mapping.StepMapping{
				newMapping("user opens cart"),
				newMapping("user opens cart"),
				newMapping("user logs in", "pages/login.py::LoginPage.login"),
			},
			[]string{"t1", "t2", "t3"},
			"run-1", nil,
		)
		if err != nil {
			t.Fatal(err)
		}

		report, err := s.CoverageReport(ctx, "run-1")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"user opens cart", "user opens cart"}, report.StepsWithoutMapping); diff != "" {
			t.Errorf("StepsWithoutMapping mismatch (-want +got):\n%s", diff)
		}
		if got, want := len(report.StepsWithoutMapping), report.TotalTests-report.TestsWithCodePaths; got != want {
			t.Errorf("len(StepsWithoutMapping) = %d, want %d", got, want)
		}
	})
}

func TestStore_DotPrefixedIDs(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		save := func(test, run string, cps ...string) {
			t.Helper()
			if _, err := s.Save(ctx, newMapping("step", cps...), test, run, nil); err != nil {
				t.Fatal(err)
			}
		}
		save(".smoke::test_login", ".nightly", "pages/login.py::LoginPage.login")
		save("..", ".nightly")
		save("t1", "..", "pages/login.py::LoginPage.login")
		save("t2", ".", "pages/cart.py::CartPage.add")

		all, err := s.LoadAll(ctx, ".nightly")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 || all[".smoke::test_login"] == nil || all[".."] == nil {
			t.Errorf("LoadAll() = %v", all)
		}

		report, err := s.CoverageReport(ctx, ".nightly")
		if err != nil {
			t.Fatal(err)
		}
		if report.TotalTests != 2 || report.TestsWithCodePaths != 1 {
			t.Errorf("CoverageReport() = %+v", report)
		}

		runs, err := s.Runs(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{".", "..", ".nightly"}, runs); diff != "" {
			t.Errorf("Runs() mismatch (-want +got):\n%s", diff)
		}

		got, err := s.FindTestsByCodePath(ctx, "pages/login.py", "")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{".smoke::test_login", "t1"}, got); diff != "" {
			t.Errorf("FindTestsByCodePath() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestStore_FindTestsByCodePath(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		save := func(test, run string, cps ...string) {
			t.Helper()
			if _, err := s.Save(ctx, newMapping("step", cps...), test, run, nil); err != nil {
				t.Fatal(err)
			}
		}
		save("t1", "run-a", "pages/login.py::LoginPage.login")
		save("t2", "run-a", "pages/cart.py::CartPage.add")
		save("t3", "run-b", "pages/login.py::LoginPage.login")
		save("t1", "run-b", "pages/login.py::LoginPage.login")
		save("t4", "run-b", "pages/login.py::LoginPage.logout")

		tests := []struct {
			name string
			path string
			run  string
			want []string
		}{
			{"single run", "pages/login.py::LoginPage.login", "run-a", []string{"t1"}},
			{"all runs deduplicated", "pages/login.py::LoginPage.login", "", []string{"t1", "t3"}},
			{"file path matches members", "pages/login.py", "", []string{"t1", "t3", "t4"}},
			{"no match", "pages/none.py::X.y", "", []string{}},
			{"unknown run", "pages/login.py::LoginPage.login", "run-z", []string{}},
		}
		for _, tt := range tests {
			got, err := s.FindTestsByCodePath(ctx, tt.path, tt.run)
			if err != nil {
				t.Fatalf("%s: error = %v", tt.name, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("%s: mismatch (-want +got):\n%s", tt.name, diff)
			}
		}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.FindTestsByCodePath(cancelled, "pages/login.py", "")
		if !cberrors.IsCode(err, cberrors.Timeout) {
			t.Errorf("cancelled scan error = %v, want Timeout", err)
		}
	})
}

func TestStore_ExportImport(t *testing.T) {
	backends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		_, err := s.SaveBatch(ctx,
			[]*mapping.StepMapping{newMapping("a", "a.py::A.a"), newMapping("b")},
			[]string{"t1", "t2"}, "run-1", map[string]any{"framework": "behave"},
		)
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		n, err := s.Export(ctx, "run-1", &buf)
		if err != nil || n != 2 {
			t.Fatalf("Export() = %d, %v", n, err)
		}

		runID, n, err := s.Import(ctx, bytes.NewReader(buf.Bytes()), "run-2")
		if err != nil || n != 2 || runID != "run-2" {
			t.Fatalf("Import() = %q, %d, %v", runID, n, err)
		}

		original, _ := s.LoadAll(ctx, "run-1")
		copied, _ := s.LoadAll(ctx, "run-2")
		if diff := cmp.Diff(original, copied); diff != "" {
			t.Errorf("imported run differs (-original +copied):\n%s", diff)
		}
		rec, _, _ := s.LoadRecord(ctx, "t1", "run-2")
		if rec.RunID != "run-2" || rec.Metadata["framework"] != "behave" {
			t.Errorf("imported record = %+v", rec)
		}

		if _, _, err := s.Import(ctx, bytes.NewReader([]byte("not zstd")), ""); err == nil {
			t.Error("Import(garbage) expected error")
		}
	})
}

func TestFileBackend_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	fb := NewFileBackend(dir)
	s := New(fb, nil)
	ctx := context.Background()

	if _, err := s.Save(ctx, newMapping("a", "a.py"), "t1", "run-1", nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fb.Location("run-1", "t1"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.Load(ctx, "t1", "run-1"); !cberrors.IsCode(err, cberrors.DeserializationError) {
		t.Errorf("Load() error = %v, want DeserializationError", err)
	}
	if _, err := s.CoverageReport(ctx, "run-1"); !cberrors.IsCode(err, cberrors.DeserializationError) {
		t.Errorf("CoverageReport() error = %v, want DeserializationError", err)
	}
	if _, err := s.Save(ctx, newMapping("a"), "t1", "run-1", nil); !cberrors.IsCode(err, cberrors.DeserializationError) {
		t.Errorf("Save() over a corrupt record error = %v, want DeserializationError", err)
	}
}

func TestFileBackend_LayoutAndDescriptor(t *testing.T) {
	dir := t.TempDir()
	fb := NewFileBackend(dir)
	fb.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	s := New(fb, nil)
	ctx := context.Background()

	loc, err := s.Save(ctx, newMapping("a"), "tests/test_login.py::test_login", "run 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "run+1", "tests%2Ftest_login.py%3A%3Atest_login.json")
	if loc != want {
		t.Errorf("location = %s, want %s", loc, want)
	}

	desc, ok, err := fb.Describe("run 1")
	if err != nil || !ok {
		t.Fatalf("Describe() = %v, %v, %v", desc, ok, err)
	}
	if desc.RunID != "run 1" || desc.Tests != 1 || !desc.CreatedAt.Equal(fb.now()) {
		t.Errorf("descriptor = %+v", desc)
	}

	runs, _ := s.Runs(ctx)
	if diff := cmp.Diff([]string{"run 1"}, runs); diff != "" {
		t.Errorf("Runs() mismatch (-want +got):\n%s", diff)
	}

	loc, err = s.Save(ctx, newMapping("a"), ".smoke", "..", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "%2E.", "%2Esmoke.json"); loc != want {
		t.Errorf("dot-prefixed location = %s, want %s", loc, want)
	}
}

func TestFileBackend_PutIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	fb := NewFileBackend(dir)
	ctx := context.Background()

	if err := fb.Put(ctx, "run-1", []Blob{{TestID: "a", Data: []byte("old-a")}}); err != nil {
		t.Fatal(err)
	}
	// a directory where b's record should go makes the second write fail
	if err := os.MkdirAll(fb.Location("run-1", "b"), 0o755); err != nil {
		t.Fatal(err)
	}

	err := fb.Put(ctx, "run-1", []Blob{
		{TestID: "a", Data: []byte("new-a")},
		{TestID: "c", Data: []byte("new-c")},
		{TestID: "b", Data: []byte("new-b")},
	})
	if !cberrors.IsCode(err, cberrors.StorageError) {
		t.Fatalf("Put() error = %v, want StorageError", err)
	}

	if data, _ := fb.Get(ctx, "run-1", "a"); string(data) != "old-a" {
		t.Errorf("a = %q, want restored old-a", data)
	}
	if data, _ := fb.Get(ctx, "run-1", "c"); data != nil {
		t.Errorf("c = %q, want removed", data)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "run-1"))
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" && e.Name() != descriptorName {
			t.Errorf("leftover file %s", e.Name())
		}
	}
}
