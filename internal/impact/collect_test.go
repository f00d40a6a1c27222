package impact

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCollect(t *testing.T) {
	producer := func(test string, conf float64) Producer {
		return func(ctx context.Context, idx *Index) error {
			return idx.Record(test, "LoginPage", SourceStaticAST, conf, t0)
		}
	}

	idx, err := Collect(context.Background(),
		producer("t1", 0.6),
		producer("t2", 0.8),
		producer("t1", 0.9),
	)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if diff := cmp.Diff([]string{"t1", "t2"}, idx.ImpactedBy("LoginPage", 0)); diff != "" {
		t.Errorf("ImpactedBy mismatch (-want +got):\n%s", diff)
	}
	f, _ := idx.Get("t1", "LoginPage", SourceStaticAST)
	if f.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", f.Confidence)
	}
}

func TestCollect_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := Collect(context.Background(),
		func(ctx context.Context, idx *Index) error { return boom },
		func(ctx context.Context, idx *Index) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)
	if !errors.Is(err, boom) {
		t.Errorf("Collect() error = %v, want boom", err)
	}
}

func TestCollect_NoProducers(t *testing.T) {
	idx, err := Collect(context.Background())
	if err != nil || idx.Len() != 0 {
		t.Errorf("Collect() = %v, %v", idx, err)
	}
}

type memStore struct {
	facts map[FactKey]Fact
}

func (s *memStore) Upsert(ctx context.Context, facts ...Fact) error {
	for _, f := range facts {
		if old, ok := s.facts[f.Key()]; ok {
			old.merge(f)
			f = old
		}
		s.facts[f.Key()] = f
	}
	return nil
}

func (s *memStore) Facts(ctx context.Context) ([]Fact, error) {
	out := make([]Fact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestID < out[j].TestID })
	return out, nil
}

func TestPersistAndLoad(t *testing.T) {
	store := &memStore{facts: make(map[FactKey]Fact)}
	idx := NewIndex()
	mustRecord(t, idx, "a", "LoginPage", SourceStaticAST, 0.85, t0)
	mustRecord(t, idx, "b", "CartPage", SourceCoverage, 0.95, t0)

	if err := Persist(context.Background(), idx, store); err != nil {
		t.Fatal(err)
	}
	if err := Persist(context.Background(), NewIndex(), store); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Errorf("Len() = %d, want 2", loaded.Len())
	}
	if diff := cmp.Diff([]string{"a"}, loaded.ImpactedBy("LoginPage", 0.8)); diff != "" {
		t.Errorf("ImpactedBy mismatch (-want +got):\n%s", diff)
	}
}
