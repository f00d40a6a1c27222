package engine

import (
	"context"
	"fmt"

	"crossbridge/internal/impact"
	"crossbridge/internal/mapping"
	"crossbridge/internal/mappingstore"
	"crossbridge/internal/signals"
	"crossbridge/internal/staticscan"
	"crossbridge/internal/telemetry"
)

// LoadManifest registers a manifest file's entries and returns how many
func (e *Engine) LoadManifest(path string) (int, error) {
	m, err := signals.LoadManifest(path)
	if err != nil {
		return 0, err
	}
	n := signals.RegisterManifest(e.registry, m)
	e.logger.Debug("Manifest registered", "path", path, "signals", n)
	return n, nil
}

// Resolve maps one step
func (e *Engine) Resolve(step string) *mapping.StepMapping {
	return e.resolver.Resolve(step)
}

// ResolveTest maps every step of a test and folds the results into one
// mapping. Its Step is the first step's normalized text.
func (e *Engine) ResolveTest(steps []string) *mapping.StepMapping {
	m := mapping.New("")
	for _, sm := range e.resolver.ResolveBatch(steps) {
		m.Absorb(sm)
	}
	return m
}

// RecordTest resolves a test's steps and saves the mapping under runID.
// An empty runID starts a new run.
func (e *Engine) RecordTest(ctx context.Context, testID, runID string, steps []string, metadata map[string]any) (string, *mapping.StepMapping, error) {
	m := e.ResolveTest(steps)
	if runID == "" {
		runID = mappingstore.NewRunID()
	}
	if _, err := e.store.Save(ctx, m, testID, runID, metadata); err != nil {
		return "", nil, err
	}
	return runID, m, nil
}

// IndexRun records one fact per (test, page object) and (test, code path)
// of a run's records, under the configured mapping source. It returns the
// number of facts recorded.
func (e *Engine) IndexRun(ctx context.Context, runID string) (int, error) {
	records, err := e.store.Records(ctx, runID)
	if err != nil {
		return 0, err
	}

	source := impact.Source(e.cfg.Impact.MappingSource)
	confidence := e.cfg.SourceConfidence(source)
	sub := impact.NewIndex()
	for _, rec := range records {
		for _, po := range rec.Mapping.PageObjects {
			if err := sub.Record(rec.TestID, po, source, confidence, rec.Timestamp); err != nil {
				return 0, fmt.Errorf("index %s: %w", rec.TestID, err)
			}
		}
		for _, cp := range rec.Mapping.CodePaths {
			if err := sub.Record(rec.TestID, cp, source, confidence, rec.Timestamp); err != nil {
				return 0, fmt.Errorf("index %s: %w", rec.TestID, err)
			}
		}
	}

	if err := e.absorb(ctx, sub); err != nil {
		return 0, err
	}
	e.logger.Info("Run indexed", "run", runID, "tests", len(records), "facts", sub.Len())
	return sub.Len(), nil
}

// RecordFact records one fact. A negative confidence takes the configured
// default for source.
func (e *Engine) RecordFact(ctx context.Context, testID, element string, source impact.Source, confidence float64) error {
	if confidence < 0 {
		confidence = e.cfg.SourceConfidence(source)
	}
	sub := impact.NewIndex()
	if err := sub.Record(testID, element, source, confidence, e.now()); err != nil {
		return err
	}
	return e.absorb(ctx, sub)
}

// IngestTrace matches runtime hits against catalog and records the matched
// ones under source
func (e *Engine) IngestTrace(ctx context.Context, hits []telemetry.Hit, catalog *telemetry.Catalog, source impact.Source) (*telemetry.Report, error) {
	in, err := telemetry.NewIngester(telemetry.NewMatcher(catalog), source, e.logger)
	if err != nil {
		return nil, err
	}
	sub := impact.NewIndex()
	report, err := in.Ingest(ctx, hits, sub)
	if err != nil {
		return nil, err
	}
	if err := e.absorb(ctx, sub); err != nil {
		return nil, err
	}
	return report, nil
}

// Scan runs the static scanner over each root concurrently and records the
// findings. It returns the number of facts recorded.
func (e *Engine) Scan(ctx context.Context, opts staticscan.Options, roots ...string) (int, error) {
	scanner := staticscan.NewScanner(opts, e.logger)
	producers := make([]impact.Producer, 0, len(roots))
	for _, root := range roots {
		producers = append(producers, scanner.Producer(e.resolvePath(root)))
	}
	sub, err := impact.Collect(ctx, producers...)
	if err != nil {
		return 0, err
	}
	if err := e.absorb(ctx, sub); err != nil {
		return 0, err
	}
	return sub.Len(), nil
}

// absorb merges sub into the live index and persists its facts
func (e *Engine) absorb(ctx context.Context, sub *impact.Index) error {
	if e.facts != nil {
		if err := impact.Persist(ctx, sub, e.facts); err != nil {
			return err
		}
	}
	e.index.Merge(sub)
	return nil
}

// ImpactedBy returns the tests likely affected by a change to element. A
// negative minConfidence takes the configured default.
func (e *Engine) ImpactedBy(element string, minConfidence float64) []string {
	if minConfidence < 0 {
		minConfidence = e.cfg.Impact.MinConfidence
	}
	return e.index.ImpactedBy(element, minConfidence)
}

// TestsFor returns the elements a test touches
func (e *Engine) TestsFor(testID string) []string {
	return e.index.TestsFor(testID)
}

// Statistics summarizes the index using the configured top-N
func (e *Engine) Statistics() impact.Stats {
	return e.index.Statistics(e.cfg.Impact.TopN)
}

// Coverage reports on one run
func (e *Engine) Coverage(ctx context.Context, runID string) (*mappingstore.CoverageReport, error) {
	return e.store.CoverageReport(ctx, runID)
}

// FindTests searches stored mappings for codePath, bounded by the configured
// scan timeout. An empty runID searches every run.
func (e *Engine) FindTests(ctx context.Context, codePath, runID string) ([]string, error) {
	if ms := e.cfg.Impact.ScanTimeoutMs; ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, msDuration(ms))
		defer cancel()
	}
	return e.store.FindTestsByCodePath(ctx, codePath, runID)
}
