package mappingstore

import "context"

// Blob is one encoded record
type Blob struct {
	TestID string
	Data   []byte
}

// Backend is the byte-level persistence a Store runs on. Implementations
// exist for local files, the relational schema and object storage.
type Backend interface {
	// Get returns the record bytes for (runID, testID), or nil when absent
	Get(ctx context.Context, runID, testID string) ([]byte, error)
	// Put writes every blob of one run. It either stores all of them or none;
	// a blob replaces any record with the same test id.
	Put(ctx context.Context, runID string, blobs []Blob) error
	// List returns every record of a run ordered by test id. An unknown run
	// yields an empty slice.
	List(ctx context.Context, runID string) ([]Blob, error)
	// Runs returns the known run ids in sorted order
	Runs(ctx context.Context) ([]string, error)
	// Location describes where (runID, testID) is stored
	Location(runID, testID string) string
}
