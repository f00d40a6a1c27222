package telemetry

import (
	"sort"
	"strconv"
	"strings"

	"crossbridge/internal/codepath"
)

// ElementIndex provides element lookup for matching
type ElementIndex interface {
	// FindByLocation finds the element defined at file:line
	FindByLocation(filePath string, line int) *Element
	// FindByFile returns all elements in a file
	FindByFile(filePath string) []*Element
	// FindByName returns all elements whose simple name matches name's
	FindByName(name string) []*Element
}

// Element is a known code element hits can match
type Element struct {
	Ref codepath.Reference
}

// Path is the canonical code path
func (e *Element) Path() string {
	return e.Ref.FullPath()
}

// Name is the qualified symbol name: "Class.method", "method" or "Class"
func (e *Element) Name() string {
	switch {
	case e.Ref.ClassName != "" && e.Ref.MethodName != "":
		return e.Ref.ClassName + "." + e.Ref.MethodName
	case e.Ref.MethodName != "":
		return e.Ref.MethodName
	default:
		return e.Ref.ClassName
	}
}

// Matcher matches hits to known elements
type Matcher struct {
	index ElementIndex
}

// NewMatcher creates a matcher over index
func NewMatcher(index ElementIndex) *Matcher {
	return &Matcher{index: index}
}

// Match finds the element a hit belongs to, trying the tiers in order:
// exact (file, function and line), strong (file and function), weak
// (function name unique among all elements). Several candidates at a tier
// make the hit ambiguous; it does not fall through to a weaker tier.
func (m *Matcher) Match(hit Hit) Match {
	if hit.FilePath != "" && hit.LineNumber > 0 {
		if e := m.index.FindByLocation(hit.FilePath, hit.LineNumber); e != nil && namesMatch(e.Name(), hit.Function) {
			return matched(e, MatchExact, "file_path", "function", "line_number")
		}
	}

	if hit.FilePath != "" {
		candidates := filterByName(m.index.FindByFile(hit.FilePath), hit.Function)
		switch len(candidates) {
		case 0:
		case 1:
			return matched(candidates[0], MatchStrong, "file_path", "function")
		default:
			return ambiguous(candidates, "ambiguous_in_file")
		}
	}

	if hit.Function != "" {
		candidates := filterByName(m.index.FindByName(hit.Function), hit.Function)
		switch len(candidates) {
		case 0:
		case 1:
			return matched(candidates[0], MatchWeak, "function_global")
		default:
			return ambiguous(candidates, "ambiguous_function_name")
		}
	}

	return Match{
		Quality:    MatchUnmatched,
		Confidence: 0,
		Basis:      []string{"no_match"},
	}
}

func matched(e *Element, q MatchQuality, basis ...string) Match {
	return Match{
		Element:    e.Path(),
		Quality:    q,
		Confidence: q.Confidence(),
		Basis:      basis,
	}
}

func ambiguous(candidates []*Element, basis string) Match {
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path()
	}
	sort.Strings(paths)
	return Match{
		Quality:    MatchAmbiguous,
		Confidence: 0,
		Basis:      []string{basis},
		Candidates: paths,
	}
}

// namesMatch compares an element name with a traced function name. Either
// side may carry extra leading qualification:
//
//	"LoginPage.login" vs "login"
//	"login" vs "pages.login_page.LoginPage.login"
func namesMatch(indexName, traceName string) bool {
	if indexName == traceName {
		return true
	}
	if indexName == "" || traceName == "" {
		return false
	}
	if strings.HasSuffix(indexName, "."+traceName) {
		return true
	}
	return strings.HasSuffix(traceName, "."+indexName)
}

func filterByName(elements []*Element, name string) []*Element {
	var matches []*Element
	for _, e := range elements {
		if namesMatch(e.Name(), name) {
			matches = append(matches, e)
		}
	}
	return matches
}

// Catalog is an in-memory ElementIndex
type Catalog struct {
	byFile     map[string][]*Element
	byName     map[string][]*Element
	byLocation map[string]*Element
	seen       map[string]struct{}
	count      int
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.Clear()
	return c
}

var _ ElementIndex = (*Catalog)(nil)

// Add indexes a reference. File-only references are ignored since no hit can
// name them. Adding a path twice keeps the first; a later copy with a line
// number fills in the location.
func (c *Catalog) Add(ref codepath.Reference) {
	if !ref.HasSymbol() {
		return
	}
	e := &Element{Ref: ref}
	path := e.Path()
	if _, dup := c.seen[path]; !dup {
		c.seen[path] = struct{}{}
		c.count++
		c.byFile[ref.FilePath] = append(c.byFile[ref.FilePath], e)
		simple := codepath.TrailingSegment(e.Name())
		c.byName[simple] = append(c.byName[simple], e)
	}
	if ref.LineNumber > 0 {
		key := locationKey(ref.FilePath, ref.LineNumber)
		if _, taken := c.byLocation[key]; !taken {
			c.byLocation[key] = e
		}
	}
}

// AddCodePath parses and indexes a code path string
func (c *Catalog) AddCodePath(s string) {
	c.Add(codepath.Parse(s))
}

func locationKey(file string, line int) string {
	return file + ":" + strconv.Itoa(line)
}

// FindByLocation implements ElementIndex
func (c *Catalog) FindByLocation(filePath string, line int) *Element {
	return c.byLocation[locationKey(filePath, line)]
}

// FindByFile implements ElementIndex
func (c *Catalog) FindByFile(filePath string) []*Element {
	return c.byFile[filePath]
}

// FindByName implements ElementIndex
func (c *Catalog) FindByName(name string) []*Element {
	return c.byName[codepath.TrailingSegment(name)]
}

// Len returns the number of distinct elements
func (c *Catalog) Len() int {
	return c.count
}

// Clear removes all elements
func (c *Catalog) Clear() {
	c.byFile = make(map[string][]*Element)
	c.byName = make(map[string][]*Element)
	c.byLocation = make(map[string]*Element)
	c.seen = make(map[string]struct{})
	c.count = 0
}
