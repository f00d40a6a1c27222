package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/mappingstore"
)

// MappingRepository keeps mapping records in the step_mapping_record table.
// It implements mappingstore.Backend.
type MappingRepository struct {
	db  *DB
	now func() time.Time
}

// NewMappingRepository creates a new mapping record repository
func NewMappingRepository(db *DB) *MappingRepository {
	return &MappingRepository{db: db, now: time.Now}
}

var _ mappingstore.Backend = (*MappingRepository)(nil)

// Get returns the payload of one record, or nil when absent
func (r *MappingRepository) Get(ctx context.Context, runID, testID string) ([]byte, error) {
	var payload []byte
	err := r.db.conn.QueryRowContext(ctx,
		r.db.q(`SELECT payload FROM step_mapping_record WHERE run_id = ? AND test_id = ?`),
		runID, testID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.NewStorageError("failed to read mapping record", err)
	}
	return payload, nil
}

// Put writes all blobs in one transaction
func (r *MappingRepository) Put(ctx context.Context, runID string, blobs []mappingstore.Blob) error {
	if len(blobs) == 0 {
		return nil
	}
	recordedAt := formatTime(r.now())
	query := r.db.q(`
		INSERT INTO step_mapping_record (run_id, test_id, recorded_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, test_id) DO UPDATE SET
			recorded_at = excluded.recorded_at,
			payload = excluded.payload`)

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, b := range blobs {
			if _, err := stmt.ExecContext(ctx, runID, b.TestID, recordedAt, b.Data); err != nil {
				return fmt.Errorf("write %s/%s: %w", runID, b.TestID, err)
			}
		}
		return nil
	})
	if err != nil {
		return cberrors.NewStorageError("failed to store mapping records", err)
	}
	return nil
}

// List returns every record of a run ordered by test id
func (r *MappingRepository) List(ctx context.Context, runID string) ([]mappingstore.Blob, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		r.db.q(`SELECT test_id, payload FROM step_mapping_record WHERE run_id = ? ORDER BY test_id`),
		runID,
	)
	if err != nil {
		return nil, cberrors.NewStorageError("failed to list mapping records", err)
	}
	defer func() { _ = rows.Close() }()

	blobs := make([]mappingstore.Blob, 0)
	for rows.Next() {
		var b mappingstore.Blob
		if err := rows.Scan(&b.TestID, &b.Data); err != nil {
			return nil, cberrors.NewStorageError("failed to scan mapping record", err)
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, cberrors.NewStorageError("failed to read mapping records", err)
	}
	return blobs, nil
}

// Runs returns the distinct run ids in sorted order
func (r *MappingRepository) Runs(ctx context.Context) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT DISTINCT run_id FROM step_mapping_record ORDER BY run_id`)
	if err != nil {
		return nil, cberrors.NewStorageError("failed to list runs", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, cberrors.NewStorageError("failed to scan run id", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// Location describes a record's row
func (r *MappingRepository) Location(runID, testID string) string {
	return fmt.Sprintf("%s#step_mapping_record/%s/%s", r.db.location, runID, testID)
}
