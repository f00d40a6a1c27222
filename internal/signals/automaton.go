package signals

import "strings"

// automaton is a byte-level Aho-Corasick matcher over the registry's distinct
// patterns. It only answers "which patterns occur in this step"; ordering and
// de-duplication stay in Registry.MatchNormalized, so switching matchers
// never changes Match results.
type automaton struct {
	nodes    []acNode
	patterns int
}

type acNode struct {
	next map[byte]int
	fail int
	out  []int // pattern ids ending here, including via fail links
}

func buildAutomaton(patterns []string) *automaton {
	a := &automaton{
		nodes:    []acNode{{next: make(map[byte]int)}},
		patterns: len(patterns),
	}

	for id, p := range patterns {
		if p == "" {
			continue
		}
		cur := 0
		for i := 0; i < len(p); i++ {
			nxt, ok := a.nodes[cur].next[p[i]]
			if !ok {
				a.nodes = append(a.nodes, acNode{next: make(map[byte]int)})
				nxt = len(a.nodes) - 1
				a.nodes[cur].next[p[i]] = nxt
			}
			cur = nxt
		}
		a.nodes[cur].out = append(a.nodes[cur].out, id)
	}

	// BFS so every fail target is finished before its dependants
	queue := make([]int, 0, len(a.nodes))
	for _, child := range a.nodes[0].next {
		a.nodes[child].fail = 0
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for b, child := range a.nodes[cur].next {
			f := a.nodes[cur].fail
			for f != 0 {
				if _, ok := a.nodes[f].next[b]; ok {
					break
				}
				f = a.nodes[f].fail
			}
			if target, ok := a.nodes[f].next[b]; ok && target != child {
				a.nodes[child].fail = target
			} else {
				a.nodes[child].fail = 0
			}
			a.nodes[child].out = append(a.nodes[child].out, a.nodes[a.nodes[child].fail].out...)
			queue = append(queue, child)
		}
	}

	return a
}

// find reports, by pattern id, which patterns occur in text
func (a *automaton) find(text string) []bool {
	found := make([]bool, a.patterns)
	cur := 0
	for i := 0; i < len(text); i++ {
		b := text[i]
		for cur != 0 {
			if _, ok := a.nodes[cur].next[b]; ok {
				break
			}
			cur = a.nodes[cur].fail
		}
		if nxt, ok := a.nodes[cur].next[b]; ok {
			cur = nxt
		}
		for _, id := range a.nodes[cur].out {
			found[id] = true
		}
	}
	return found
}

// containsPattern is the linear matcher's test
func containsPattern(step, pattern string) bool {
	return strings.Contains(step, pattern)
}
