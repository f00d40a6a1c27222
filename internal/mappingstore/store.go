package mappingstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"crossbridge/internal/codepath"
	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/mapping"
	"crossbridge/internal/slogutil"
)

// Store is the mapping persistence and query surface
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a store over backend. A nil logger discards.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Store{backend: backend, logger: logger, now: time.Now}
}

// NewRunID returns a fresh run id
func NewRunID() string {
	return uuid.NewString()
}

// Backend returns the underlying backend
func (s *Store) Backend() Backend {
	return s.backend
}

// Save persists one mapping and returns its location. Saving a
// (run, test) pair that already exists merges into the stored record.
func (s *Store) Save(ctx context.Context, m *mapping.StepMapping, testID, runID string, metadata map[string]any) (string, error) {
	locs, err := s.SaveBatch(ctx, []*mapping.StepMapping{m}, []string{testID}, runID, metadata)
	if err != nil {
		return "", err
	}
	return locs[0], nil
}

// SaveBatch persists mappings[i] under testIDs[i], all in runID, and
// returns the locations in input order. Input is validated before anything
// is written, and the backend write is all-or-nothing. A test id repeated
// in the batch merges its mappings in order.
func (s *Store) SaveBatch(ctx context.Context, mappings []*mapping.StepMapping, testIDs []string, runID string, metadata map[string]any) ([]string, error) {
	if err := validateBatch(mappings, testIDs, runID); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "mappingstore.SaveBatch", runID)
	defer span.End()

	now := s.now().UTC()
	pending := make(map[string]*Record, len(testIDs))
	var order []string
	for i, testID := range testIDs {
		rec := &Record{
			TestID:    testID,
			RunID:     runID,
			Timestamp: now,
			Mapping:   mappings[i].Clone(),
			Metadata:  cloneMap(metadata),
		}
		if existing, ok := pending[testID]; ok {
			existing.merge(rec)
			continue
		}
		pending[testID] = rec
		order = append(order, testID)
	}

	recs := make([]*Record, 0, len(order))
	for _, testID := range order {
		recs = append(recs, pending[testID])
	}
	if err := s.putRecords(ctx, runID, recs); err != nil {
		span.RecordError(err)
		return nil, err
	}

	locs := make([]string, len(testIDs))
	for i, testID := range testIDs {
		locs[i] = s.backend.Location(runID, testID)
	}
	return locs, nil
}

// putRecords merges each record into the stored one, if any, and writes
// them all in one backend call. recs must have distinct test ids.
func (s *Store) putRecords(ctx context.Context, runID string, recs []*Record) error {
	blobs := make([]Blob, 0, len(recs))
	for _, rec := range recs {
		stored, ok, err := s.loadRecord(ctx, rec.TestID, runID)
		if err != nil {
			return err
		}
		if ok {
			stored.merge(rec)
			rec = stored
		}
		data, err := EncodeRecord(rec)
		if err != nil {
			return err
		}
		blobs = append(blobs, Blob{TestID: rec.TestID, Data: data})
	}

	if err := s.backend.Put(ctx, runID, blobs); err != nil {
		return err
	}
	recordSaves(ctx, len(blobs))

	s.logger.Debug("Saved mapping records",
		"run_id", runID,
		"records", len(blobs),
	)
	return nil
}

func validateBatch(mappings []*mapping.StepMapping, testIDs []string, runID string) error {
	if len(mappings) != len(testIDs) {
		return cberrors.NewValidationError("got %d mappings and %d test ids", len(mappings), len(testIDs))
	}
	if strings.TrimSpace(runID) == "" {
		return cberrors.NewValidationError("run id is required")
	}
	for i, testID := range testIDs {
		if strings.TrimSpace(testID) == "" {
			return cberrors.NewValidationError("test id at index %d is empty", i)
		}
		if mappings[i] == nil {
			return cberrors.NewValidationError("mapping at index %d (%s) is nil", i, testID)
		}
	}
	return nil
}

// Load returns the mapping for (testID, runID). ok is false when absent.
func (s *Store) Load(ctx context.Context, testID, runID string) (*mapping.StepMapping, bool, error) {
	rec, ok, err := s.loadRecord(ctx, testID, runID)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.Mapping, true, nil
}

// LoadRecord is Load returning the whole record
func (s *Store) LoadRecord(ctx context.Context, testID, runID string) (*Record, bool, error) {
	return s.loadRecord(ctx, testID, runID)
}

func (s *Store) loadRecord(ctx context.Context, testID, runID string) (*Record, bool, error) {
	data, err := s.backend.Get(ctx, runID, testID)
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	rec, err := DecodeRecord(data, s.backend.Location(runID, testID))
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Records returns every record of a run ordered by test id. An unknown run
// yields an empty slice.
func (s *Store) Records(ctx context.Context, runID string) ([]*Record, error) {
	blobs, err := s.backend.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	recs := make([]*Record, 0, len(blobs))
	for _, b := range blobs {
		rec, err := DecodeRecord(b.Data, s.backend.Location(runID, b.TestID))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].TestID < recs[j].TestID })
	return recs, nil
}

// LoadAll returns every mapping of a run keyed by test id
func (s *Store) LoadAll(ctx context.Context, runID string) (map[string]*mapping.StepMapping, error) {
	recs, err := s.Records(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*mapping.StepMapping, len(recs))
	for _, rec := range recs {
		out[rec.TestID] = rec.Mapping
	}
	return out, nil
}

// Runs lists the known runs in sorted order
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	runs, err := s.backend.Runs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(runs)
	return runs, nil
}

// FindTestsByCodePath returns the sorted ids of tests whose mapping contains
// codePath. A bare file path also matches code paths inside that file. An
// empty runID searches every run; that scan checks ctx between runs and
// reports cancellation as a Timeout error.
func (s *Store) FindTestsByCodePath(ctx context.Context, codePath, runID string) ([]string, error) {
	runs := []string{runID}
	if runID == "" {
		var err error
		if runs, err = s.Runs(ctx); err != nil {
			return nil, err
		}
	}

	ctx, span := startSpan(ctx, "mappingstore.FindTestsByCodePath", runID)
	defer span.End()

	match := codePathMatcher(codePath)
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return nil, timeoutError(err, run)
		}
		recs, err := s.Records(ctx, run)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, timeoutError(err, run)
			}
			return nil, err
		}
		for _, rec := range recs {
			if _, dup := seen[rec.TestID]; dup {
				continue
			}
			for _, cp := range rec.Mapping.CodePaths {
				if match(cp) {
					seen[rec.TestID] = struct{}{}
					out = append(out, rec.TestID)
					break
				}
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func codePathMatcher(query string) func(string) bool {
	if strings.Contains(query, codepath.Separator) {
		return func(cp string) bool { return cp == query }
	}
	return func(cp string) bool {
		return cp == query || codepath.Parse(cp).FilePath == query
	}
}

func timeoutError(cause error, run string) error {
	return cberrors.NewBridgeError(cberrors.Timeout, fmt.Sprintf("cross-run search stopped at run %s", run), cause).
		WithDetails(map[string]string{"run_id": run})
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
