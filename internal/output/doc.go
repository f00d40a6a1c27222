// Package output provides deterministic number formatting for reports.
//
// Reports derived from the same persisted records must be byte-identical
// across runs, so every ratio and average passes through RoundTo before it
// is encoded.
package output
