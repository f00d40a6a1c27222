package badger

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/impact"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openInMemory(t *testing.T) *FactStore {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFactStore_UpsertKeepsMax(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	f := impact.Fact{TestID: "t", Element: "LoginPage", Source: impact.SourceStaticAST, Confidence: 0.7, ObservedAt: t0}
	require.NoError(t, s.Upsert(ctx, f))

	lower := f
	lower.Confidence = 0.5
	lower.ObservedAt = t0.Add(time.Hour)
	require.NoError(t, s.Upsert(ctx, lower))

	facts, err := s.Facts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 0.7, facts[0].Confidence)
	assert.True(t, facts[0].ObservedAt.Equal(t0.Add(time.Hour)))

	higher := f
	higher.Confidence = 0.9
	require.NoError(t, s.Upsert(ctx, higher))

	facts, err = s.Facts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.9, facts[0].Confidence)
}

func TestFactStore_FirstInsertionOrder(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	// keys sort z < a would reverse this; Facts must follow insertion
	require.NoError(t, s.Upsert(ctx,
		impact.Fact{TestID: "z", Element: "LoginPage", Source: impact.SourceAI, Confidence: 0.7, ObservedAt: t0},
		impact.Fact{TestID: "a", Element: "LoginPage", Source: impact.SourceAI, Confidence: 0.7, ObservedAt: t0},
	))
	require.NoError(t, s.Upsert(ctx,
		impact.Fact{TestID: "m", Element: "CartPage", Source: impact.SourceManual, Confidence: 1, ObservedAt: t0},
		impact.Fact{TestID: "z", Element: "LoginPage", Source: impact.SourceAI, Confidence: 0.8, ObservedAt: t0},
	))

	facts, err := s.Facts(ctx)
	require.NoError(t, err)
	var ids []string
	for _, f := range facts {
		ids = append(ids, f.TestID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
	assert.Equal(t, 0.8, facts[0].Confidence)
}

func TestFactStore_RejectsInvalid(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	err := s.Upsert(ctx,
		impact.Fact{TestID: "ok", Element: "LoginPage", Source: impact.SourceAI, Confidence: 0.7},
		impact.Fact{TestID: "bad", Element: "LoginPage", Source: impact.SourceAI, Confidence: 1.5},
	)
	assert.True(t, cberrors.IsCode(err, cberrors.ValidationError))

	err = s.Upsert(ctx, impact.Fact{TestID: "a\x00b", Element: "LoginPage", Source: impact.SourceAI, Confidence: 0.7})
	assert.True(t, cberrors.IsCode(err, cberrors.ValidationError))

	facts, err := s.Facts(ctx)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestFactStore_CorruptValue(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	key := factKey(impact.Fact{TestID: "t", Element: "e", Source: impact.SourceAI})
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte("{not json"))
	}))

	_, err := s.Facts(ctx)
	assert.True(t, cberrors.IsCode(err, cberrors.DeserializationError), "got %v", err)
}

func TestFactStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, impact.Fact{TestID: "t", Element: "LoginPage", Source: impact.SourceCoverage, Confidence: 0.95, ObservedAt: t0}))
	require.NoError(t, s.Compact())
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	idx, err := impact.Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, idx.ImpactedBy("LoginPage", 0.9))
	assert.Equal(t, "badger:"+dir, s.Location())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
