package mappingstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/version"
)

const bundleFormat = "crossbridge-run-bundle"

// bundleHeader is the first line of an export bundle
type bundleHeader struct {
	Format  string `json:"format"`
	Schema  int    `json:"schema"`
	RunID   string `json:"run_id"`
	Records int    `json:"records"`
}

// Export writes a run as a zstd-compressed JSON-lines bundle: a header line
// followed by one record per line in test id order. It returns the number of
// records written.
func (s *Store) Export(ctx context.Context, runID string, w io.Writer) (int, error) {
	recs, err := s.Records(ctx, runID)
	if err != nil {
		return 0, err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)

	header := bundleHeader{Format: bundleFormat, Schema: version.RecordSchema, RunID: runID, Records: len(recs)}
	if err := enc.Encode(header); err != nil {
		_ = zw.Close()
		return 0, fmt.Errorf("write bundle header: %w", err)
	}
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			_ = zw.Close()
			return 0, fmt.Errorf("write record %s: %w", rec.TestID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish bundle: %w", err)
	}
	return len(recs), nil
}

// Import reads a bundle written by Export and saves its records with the
// usual merge-on-save rule. intoRun overrides the bundle's run id when set.
// The whole bundle is decoded before anything is written.
func (s *Store) Import(ctx context.Context, r io.Reader, intoRun string) (string, int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return "", 0, fmt.Errorf("open zstd reader: %w", err)
	}
	defer zr.Close()

	const location = "bundle"
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", 0, cberrors.NewDeserializationError(location, err)
		}
		return "", 0, cberrors.NewDeserializationError(location, fmt.Errorf("empty bundle"))
	}
	var header bundleHeader
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return "", 0, cberrors.NewDeserializationError(location+":1", err)
	}
	if header.Format != bundleFormat {
		return "", 0, cberrors.NewDeserializationError(location+":1", fmt.Errorf("not a run bundle (format %q)", header.Format))
	}
	if header.Schema > version.RecordSchema {
		return "", 0, cberrors.NewDeserializationError(location+":1", fmt.Errorf("bundle schema %d is newer than supported %d", header.Schema, version.RecordSchema))
	}

	runID := header.RunID
	if intoRun != "" {
		runID = intoRun
	}
	if runID == "" {
		return "", 0, cberrors.NewValidationError("bundle has no run id; pass one explicitly")
	}

	byTest := make(map[string]*Record)
	var recs []*Record
	line := 1
	for sc.Scan() {
		line++
		rec, err := DecodeRecord(sc.Bytes(), fmt.Sprintf("%s:%d", location, line))
		if err != nil {
			return "", 0, err
		}
		rec.RunID = runID
		if existing, ok := byTest[rec.TestID]; ok {
			existing.merge(rec)
			continue
		}
		byTest[rec.TestID] = rec
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return "", 0, cberrors.NewDeserializationError(location, err)
	}
	if line-1 != header.Records {
		return "", 0, cberrors.NewDeserializationError(location, fmt.Errorf("bundle declares %d records, found %d", header.Records, line-1))
	}
	if len(recs) == 0 {
		return runID, 0, nil
	}

	if err := s.putRecords(ctx, runID, recs); err != nil {
		return "", 0, err
	}
	s.logger.Info("Imported run bundle", "run_id", runID, "records", len(recs))
	return runID, len(recs), nil
}
