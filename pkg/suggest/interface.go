// Package suggest is the static item source: a per-trigger catalog indexed by a
// patricia trie for prefix lookups, with case-folded substring filtering as the
// default match strategy.
package suggest

import "github.com/bastiangx/mentionserve/pkg/mention"

// Source defines the interface for static item lookups.
type Source interface {
	// Lookup returns the items for trigger that match query, in insertion order.
	Lookup(trigger string, query mention.Query) []mention.Item

	// Add appends items to the list of a trigger.
	Add(trigger string, items ...mention.Item)

	// Stats returns statistics about the loaded items.
	Stats() map[string]int
}

// MatchMode selects how queries are compared to item values.
type MatchMode uint8

const (
	// MatchSubstring keeps items whose folded value contains the folded query.
	MatchSubstring MatchMode = iota
	// MatchPrefix keeps items whose folded value starts with the folded query.
	MatchPrefix
)

// ParseMatchMode maps a config string to a MatchMode. Unknown strings fall
// back to MatchSubstring.
func ParseMatchMode(s string) MatchMode {
	if s == "prefix" {
		return MatchPrefix
	}
	return MatchSubstring
}

func (m MatchMode) String() string {
	if m == MatchPrefix {
		return "prefix"
	}
	return "substring"
}
