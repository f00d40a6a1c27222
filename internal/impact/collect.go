package impact

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Producer fills an index it owns. Producers run concurrently, so a producer
// must not share state with another.
type Producer func(ctx context.Context, idx *Index) error

// Collect runs producers in parallel, each into a private Index, then merges
// the results in producer order into a new Index. The first producer error
// cancels the rest and is returned.
func Collect(ctx context.Context, producers ...Producer) (*Index, error) {
	ctx, span := startCollectSpan(ctx, len(producers))
	defer span.End()
	start := time.Now()

	partial := make([]*Index, len(producers))
	g, gCtx := errgroup.WithContext(ctx)
	for i, produce := range producers {
		i, produce := i, produce
		g.Go(func() error {
			idx := NewIndex()
			if err := produce(gCtx, idx); err != nil {
				return fmt.Errorf("producer %d: %w", i, err)
			}
			partial[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		recordCollectMetrics(ctx, time.Since(start), false)
		return nil, err
	}

	result := NewIndex()
	for _, idx := range partial {
		result.Merge(idx)
	}
	recordCollectMetrics(ctx, time.Since(start), true)
	return result, nil
}

// FactStore persists facts. Upsert must apply the max-confidence rule per
// (test, element, source).
type FactStore interface {
	Upsert(ctx context.Context, facts ...Fact) error
	Facts(ctx context.Context) ([]Fact, error)
}

// Load rebuilds an index from a store
func Load(ctx context.Context, store FactStore) (*Index, error) {
	facts, err := store.Facts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	idx := NewIndex()
	for _, f := range facts {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		idx.upsert(f)
	}
	return idx, nil
}

// Persist writes every fact of idx to store
func Persist(ctx context.Context, idx *Index, store FactStore) error {
	if idx.Len() == 0 {
		return nil
	}
	if err := store.Upsert(ctx, idx.Facts()...); err != nil {
		return fmt.Errorf("persist facts: %w", err)
	}
	return nil
}
