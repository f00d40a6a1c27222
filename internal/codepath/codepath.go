// Package codepath implements the platform-wide code path grammar:
//
//	path    := file_path ("::" segment)?
//	segment := Identifier ("." Identifier)?
//
// e.g. "pages/login_page.py::LoginPage.login". A dotted segment splits on
// the first dot into (class, method). A lone segment is a class when it starts
// with an uppercase letter and a function otherwise; that is a naming
// convention, not something verified against the source language.
//
// Parsing never fails. Anything that does not fit the grammar degrades to a
// file-path-only Reference.
package codepath

import (
	"strings"
	"unicode"
)

// Separator divides the file path from the symbol segment
const Separator = "::"

// Reference identifies a file and optionally a class and method within it.
// Empty strings and a zero LineNumber mean "absent".
type Reference struct {
	FilePath   string `json:"file_path"`
	ClassName  string `json:"class_name,omitempty"`
	MethodName string `json:"method_name,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`
}

// New builds a Reference. Pass "" for absent class or method.
func New(filePath, className, methodName string) Reference {
	return Reference{FilePath: filePath, ClassName: className, MethodName: methodName}
}

// FullPath renders the canonical code path string.
// A method without a class renders as "file::method" so module-level
// functions survive a Parse round trip.
func (r Reference) FullPath() string {
	switch {
	case r.ClassName != "" && r.MethodName != "":
		return r.FilePath + Separator + r.ClassName + "." + r.MethodName
	case r.ClassName != "":
		return r.FilePath + Separator + r.ClassName
	case r.MethodName != "":
		return r.FilePath + Separator + r.MethodName
	default:
		return r.FilePath
	}
}

// String implements fmt.Stringer
func (r Reference) String() string {
	return r.FullPath()
}

// HasSymbol reports whether the reference names a class or method
func (r Reference) HasSymbol() bool {
	return r.ClassName != "" || r.MethodName != ""
}

// Parse decomposes a code path string. It never fails.
func Parse(s string) Reference {
	idx := strings.Index(s, Separator)
	if idx < 0 {
		return Reference{FilePath: s}
	}

	file := s[:idx]
	segment := s[idx+len(Separator):]
	ref := Reference{FilePath: file}

	if dot := strings.IndexByte(segment, '.'); dot >= 0 {
		class, method := segment[:dot], segment[dot+1:]
		if !IsIdentifier(class) || !IsIdentifier(method) {
			return ref
		}
		ref.ClassName = class
		ref.MethodName = method
		return ref
	}

	if !IsIdentifier(segment) {
		return ref
	}
	if startsUpper(segment) {
		ref.ClassName = segment
	} else {
		ref.MethodName = segment
	}
	return ref
}

// IsIdentifier reports whether s is a letter or underscore followed by
// letters, digits or underscores.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// LeadingSegment returns the part of a dotted name before the first dot
func LeadingSegment(s string) string {
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		return s[:dot]
	}
	return s
}

// TrailingSegment returns the part of a dotted name after the last dot
func TrailingSegment(s string) string {
	if dot := strings.LastIndexByte(s, '.'); dot >= 0 {
		return s[dot+1:]
	}
	return s
}

// SimpleName reduces an element to the name used when qualified and short
// spellings of the same element must compare equal:
//
//	"com.example.pages.LoginPage"        -> "LoginPage"
//	"pages/login_page.py::LoginPage"     -> "LoginPage"
//	"pages/login_page.py::LoginPage.go"  -> "go"
//	"pages/login_page.py"                -> "pages/login_page.py"
//
// A bare file path is its own simple name; its extension is not a name.
func SimpleName(element string) string {
	if idx := strings.LastIndex(element, Separator); idx >= 0 {
		return TrailingSegment(element[idx+len(Separator):])
	}
	if strings.ContainsAny(element, "/\\") {
		return element
	}
	return TrailingSegment(element)
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
