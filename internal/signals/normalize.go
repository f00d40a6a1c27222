package signals

import "strings"

// bddKeywords may lead a step and carry no meaning for matching
var bddKeywords = map[string]struct{}{
	"given": {},
	"when":  {},
	"then":  {},
	"and":   {},
	"but":   {},
}

// Normalize lowercases text, collapses whitespace and strips one leading BDD
// keyword. The resolver and the registry must both use this function; any
// divergence silently breaks matching.
//
// A keyword standing alone ("Given") is kept: stripping it would turn a real
// step into the empty step.
func Normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) > 1 {
		if _, ok := bddKeywords[fields[0]]; ok {
			fields = fields[1:]
		}
	}
	return strings.Join(fields, " ")
}
