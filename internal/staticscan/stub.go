//go:build !cgo

package staticscan

import (
	"context"
	"log/slog"
)

// Scanner is a stub for non-CGO builds.
type Scanner struct{}

// NewScanner returns a scanner whose methods return ErrNoCGO.
func NewScanner(opts Options, logger *slog.Logger) *Scanner {
	return &Scanner{}
}

// IsAvailable returns false when CGO is disabled.
func IsAvailable() bool {
	return false
}

// ScanSource returns ErrNoCGO.
func (s *Scanner) ScanSource(ctx context.Context, path string, source []byte, lang Language) ([]Finding, error) {
	return nil, ErrNoCGO
}

// ScanDir returns ErrNoCGO.
func (s *Scanner) ScanDir(ctx context.Context, root string) ([]Finding, Summary, error) {
	return nil, Summary{}, ErrNoCGO
}
