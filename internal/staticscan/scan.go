// Package staticscan finds page objects constructed inside test functions by
// parsing test sources with tree-sitter, and records each (test, page object)
// pair as a static_ast impact fact.
//
// Python tests are functions named test* (module level or inside a class).
// Java tests are methods annotated @Test. A call or constructor counts when
// its callee names a known page object or a capitalized type ending in one of
// the configured suffixes.
package staticscan

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"crossbridge/internal/impact"
)

// ErrNoCGO is returned when scanning is unavailable due to missing CGO.
var ErrNoCGO = errors.New("static scan requires CGO (tree-sitter)")

// Language is a supported source language
type Language string

const (
	LangPython Language = "python"
	LangJava   Language = "java"
)

// LanguageFromPath picks the language from a file extension
func LanguageFromPath(path string) (Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return LangPython, true
	case ".java":
		return LangJava, true
	}
	return "", false
}

// Options controls what counts as a page object
type Options struct {
	// Suffixes of capitalized type names treated as page objects; default ["Page"]
	Suffixes []string
	// Known page object names, matched regardless of suffix
	Known []string
}

// Finding is one page object used by one test
type Finding struct {
	TestID     string   `json:"test_id"`
	PageObject string   `json:"page_object"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Language   Language `json:"language"`
}

// Summary counts what a directory scan saw
type Summary struct {
	Files    int `json:"files"`
	Skipped  int `json:"skipped"`
	Tests    int `json:"tests"`
	Findings int `json:"findings"`
}

type classifier struct {
	suffixes []string
	known    map[string]struct{}
}

func newClassifier(opts Options) classifier {
	c := classifier{suffixes: opts.Suffixes, known: make(map[string]struct{}, len(opts.Known))}
	if len(c.suffixes) == 0 {
		c.suffixes = []string{"Page"}
	}
	for _, k := range opts.Known {
		c.known[k] = struct{}{}
	}
	return c
}

func (c classifier) isPageObject(name string) bool {
	if name == "" {
		return false
	}
	if _, ok := c.known[name]; ok {
		return true
	}
	first := []rune(name)[0]
	if !unicode.IsUpper(first) {
		return false
	}
	for _, s := range c.suffixes {
		if strings.HasSuffix(name, s) && len(name) > len(s) {
			return true
		}
	}
	return false
}

// Record adds one static_ast fact per distinct (test, page object) pair,
// at the static_ast default confidence
func Record(idx *impact.Index, findings []Finding, observedAt time.Time) error {
	confidence := impact.DefaultConfidence[impact.SourceStaticAST]
	for _, f := range findings {
		if err := idx.Record(f.TestID, f.PageObject, impact.SourceStaticAST, confidence, observedAt); err != nil {
			return err
		}
	}
	return nil
}

// Producer scans root and records its findings, for impact.Collect
func (s *Scanner) Producer(root string) impact.Producer {
	return func(ctx context.Context, idx *impact.Index) error {
		findings, _, err := s.ScanDir(ctx, root)
		if err != nil {
			return err
		}
		return Record(idx, findings, time.Time{})
	}
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	switch name {
	case "node_modules", "vendor", "__pycache__", "venv", "target", "build":
		return true
	}
	return false
}
