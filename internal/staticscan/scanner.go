//go:build cgo

package staticscan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/python"

	"crossbridge/internal/codepath"
	"crossbridge/internal/slogutil"
)

// Scanner extracts page object usage from test sources. It is safe for
// concurrent use; every parse gets its own tree-sitter parser.
type Scanner struct {
	classes classifier
	logger  *slog.Logger
}

// NewScanner creates a scanner. A nil logger discards.
func NewScanner(opts Options, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Scanner{classes: newClassifier(opts), logger: logger}
}

// IsAvailable reports whether scanning works in this build
func IsAvailable() bool {
	return true
}

// ScanSource scans one file's source. path is used verbatim as the file part
// of test ids. Findings are in source order, one per (test, page object).
func (s *Scanner) ScanSource(ctx context.Context, path string, source []byte, lang Language) ([]Finding, error) {
	var tsLang *sitter.Language
	switch lang {
	case LangPython:
		tsLang = python.GetLanguage()
	case LangJava:
		tsLang = java.GetLanguage()
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tsLang)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	w := &walker{path: path, source: source, lang: lang, classes: s.classes}
	switch lang {
	case LangPython:
		w.python(tree.RootNode(), "")
	case LangJava:
		w.java(tree.RootNode(), "")
	}
	return w.findings, nil
}

// ScanDir walks root and scans every Python and Java file. Test ids use
// slash-separated paths relative to root. Unreadable or unparsable files are
// skipped and counted.
func (s *Scanner) ScanDir(ctx context.Context, root string) ([]Finding, Summary, error) {
	var summary Summary
	findings := make([]Finding, 0)
	tests := make(map[string]struct{})

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		lang, ok := LanguageFromPath(path)
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		source, err := os.ReadFile(path)
		if err != nil {
			summary.Skipped++
			s.logger.Debug("Skipping unreadable file", "path", rel, "error", err.Error())
			return nil
		}
		found, err := s.ScanSource(ctx, rel, source, lang)
		if err != nil {
			summary.Skipped++
			s.logger.Debug("Skipping unparsable file", "path", rel, "error", err.Error())
			return nil
		}
		summary.Files++
		for _, f := range found {
			tests[f.TestID] = struct{}{}
		}
		findings = append(findings, found...)
		return nil
	})
	if err != nil {
		return nil, summary, err
	}

	summary.Tests = len(tests)
	summary.Findings = len(findings)
	s.logger.Info("Static scan complete",
		"root", root,
		"files", summary.Files,
		"skipped", summary.Skipped,
		"tests", summary.Tests,
		"findings", summary.Findings,
	)
	return findings, summary, nil
}

type walker struct {
	path     string
	source   []byte
	lang     Language
	classes  classifier
	findings []Finding
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

// python visits module and class bodies looking for test functions
func (w *walker) python(n *sitter.Node, class string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "class_definition":
			w.python(child.ChildByFieldName("body"), w.text(child.ChildByFieldName("name")))
		case "decorated_definition":
			w.python(child, class)
		case "function_definition":
			name := w.text(child.ChildByFieldName("name"))
			if strings.HasPrefix(name, "test") {
				w.collect(child.ChildByFieldName("body"), testID(w.path, class, name))
			}
		}
	}
}

// java visits class bodies looking for @Test methods
func (w *walker) java(n *sitter.Node, class string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "class_declaration":
			w.java(child.ChildByFieldName("body"), w.text(child.ChildByFieldName("name")))
		case "method_declaration":
			if w.hasTestAnnotation(child) {
				name := w.text(child.ChildByFieldName("name"))
				w.collect(child.ChildByFieldName("body"), testID(w.path, class, name))
			}
		}
	}
}

func (w *walker) hasTestAnnotation(method *sitter.Node) bool {
	for i := 0; i < int(method.NamedChildCount()); i++ {
		mods := method.NamedChild(i)
		if mods.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(mods.NamedChildCount()); j++ {
			a := mods.NamedChild(j)
			if a.Type() != "marker_annotation" && a.Type() != "annotation" {
				continue
			}
			if codepath.TrailingSegment(w.text(a.ChildByFieldName("name"))) == "Test" {
				return true
			}
		}
	}
	return false
}

// collect records every page object constructed or called under body
func (w *walker) collect(body *sitter.Node, test string) {
	if body == nil {
		return
	}
	seen := make(map[string]struct{})
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		var callee string
		switch n.Type() {
		case "call":
			callee = w.calleeName(n.ChildByFieldName("function"))
		case "object_creation_expression":
			callee = w.calleeName(n.ChildByFieldName("type"))
		}
		if callee != "" && w.classes.isPageObject(callee) {
			if _, dup := seen[callee]; !dup {
				seen[callee] = struct{}{}
				w.findings = append(w.findings, Finding{
					TestID:     test,
					PageObject: callee,
					File:       w.path,
					Line:       int(n.StartPoint().Row) + 1,
					Language:   w.lang,
				})
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(body)
}

// calleeName reduces pages.LoginPage, com.x.LoginPage and LoginPage<T> to LoginPage
func (w *walker) calleeName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier", "type_identifier":
		return w.text(n)
	case "attribute":
		return w.text(n.ChildByFieldName("attribute"))
	case "scoped_type_identifier":
		return codepath.TrailingSegment(w.text(n))
	case "generic_type":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if name := w.calleeName(n.NamedChild(i)); name != "" {
				return name
			}
		}
	}
	return ""
}

func testID(path, class, name string) string {
	return codepath.New(path, class, name).FullPath()
}
