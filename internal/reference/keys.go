package reference

import "fmt"

// AssignKeys returns one unique key per reference, in order. Colliding cite
// keys get -2, -3, ... appended, the first occurrence keeping the bare key.
func AssignKeys(refs []*Reference) []string {
	taken := make(map[string]bool, len(refs))
	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = UniqueKey(taken, ref.CiteKey())
		taken[keys[i]] = true
	}
	return keys
}

// UniqueKey returns base if it is free, otherwise the first free base-N
// starting at 2.
func UniqueKey(taken map[string]bool, base string) string {
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
