package mappingstore

import (
	"encoding/json"
	"fmt"
	"time"

	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/mapping"
)

// Record is the persisted form of one test's mapping in one run
type Record struct {
	TestID    string               `json:"test_id"`
	RunID     string               `json:"run_id"`
	Timestamp time.Time            `json:"timestamp"`
	Mapping   *mapping.StepMapping `json:"mapping"`
	Metadata  map[string]any       `json:"metadata"`
}

// EncodeRecord renders a record as indented JSON
func EncodeRecord(rec *Record) ([]byte, error) {
	out := *rec
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if out.Mapping == nil {
		out.Mapping = mapping.New("")
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record %s/%s: %w", rec.RunID, rec.TestID, err)
	}
	return data, nil
}

// DecodeRecord parses a persisted record. Any structural problem, including a
// missing test id or mapping, is a DeserializationError naming location.
func DecodeRecord(data []byte, location string) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, cberrors.NewDeserializationError(location, err)
	}
	if rec.TestID == "" {
		return nil, cberrors.NewDeserializationError(location, fmt.Errorf("record has no test_id"))
	}
	if rec.Mapping == nil {
		return nil, cberrors.NewDeserializationError(location, fmt.Errorf("record has no mapping"))
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return &rec, nil
}

// merge folds a newer save into rec: mapping values are added if absent,
// metadata keys from newer win, and the timestamp moves forward
func (rec *Record) merge(newer *Record) {
	rec.Mapping.Absorb(newer.Mapping)
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any, len(newer.Metadata))
	}
	for k, v := range newer.Metadata {
		rec.Metadata[k] = v
	}
	if newer.Timestamp.After(rec.Timestamp) {
		rec.Timestamp = newer.Timestamp
	}
}
