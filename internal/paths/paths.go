package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is the per-repository state directory
const StateDirName = ".crossbridge"

// StateDir returns <repoRoot>/.crossbridge
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, StateDirName)
}

// DatabasePath returns the default sqlite database location
func DatabasePath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "crossbridge.db")
}

// RunsDir returns the root directory of the file mapping store
func RunsDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "runs")
}

// FactsDir returns the default badger directory for impact facts
func FactsDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "facts")
}

// LogsDir returns the log directory
func LogsDir(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "logs")
}

// EnsureDir creates dir and its parents if missing and returns it
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// CanonicalizePath converts an absolute path to a repo-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to repo root
// - Converts backslashes to forward slashes
func CanonicalizePath(absolutePath string, repoRoot string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	repoRootResolved, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		if os.IsNotExist(err) {
			repoRootResolved = repoRoot
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(repoRootResolved, resolved)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(relativePath), nil
}

// IsWithinRepo checks if a path is within the repository root
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := CanonicalizePath(path, repoRoot)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(canonical, "..")
}

// NormalizePath converts backslashes to forward slashes and drops a leading "./".
// Code paths compare as plain strings, so every producer must agree on this form.
func NormalizePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}
