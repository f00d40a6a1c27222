// Package mappingstore persists StepMappings keyed by (run id, test id) and
// answers the questions asked of them afterwards: load a run, find the tests
// that touch a code path across runs, and summarize a run's coverage.
//
// A Store encodes records and delegates bytes to a Backend. Backends exist for
// the local filesystem (FileBackend), object storage (ObjectBackend) and the
// relational schema (storage.MappingRepository).
//
// Unknown runs and tests are not errors: they load as absent or empty. A
// record that exists but cannot be decoded is always an error.
package mappingstore
