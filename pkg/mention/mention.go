// Package mention holds the data model shared by the scanner, the dispatcher,
// the candidate assembler and the insertion coordinator.
//
// Items come in from static catalogs or search lookups, are normalized into
// MenuItem or ComboboxItem rows for presentation, and end up in the document
// as a Token once the user picks one.
package mention

import (
	"strings"
)

// Placeholder is the rune a token occupies in a flattened document text.
// Scanning treats it as the start of a fresh text run.
const Placeholder = '\uFFFC'

// Mode selects which of the two presentation variants an engine runs.
type Mode uint8

const (
	// ModeMenu anchors the list to the caret; it opens and closes with scanner activity.
	ModeMenu Mode = iota
	// ModeCombobox is detached from the caret and can be toggled independently.
	ModeCombobox
)

func (m Mode) String() string {
	switch m {
	case ModeMenu:
		return "menu"
	case ModeCombobox:
		return "combobox"
	default:
		return "unknown"
	}
}

// Query is the text typed after a trigger. A null query means the trigger was
// just typed and nothing follows it yet; an empty query is a distinct state
// (for example an opened enclosure with nothing inside).
type Query struct {
	text  string
	valid bool
}

// NullQuery returns the query of a freshly typed trigger.
func NullQuery() Query { return Query{} }

// QueryOf wraps s as a non-null query.
func QueryOf(s string) Query { return Query{text: s, valid: true} }

// IsNull reports whether nothing has been typed after the trigger.
func (q Query) IsNull() bool { return !q.valid }

// Text returns the query text, "" for a null query.
func (q Query) Text() string { return q.text }

// IsBlank reports whether the query is null or empty.
func (q Query) IsBlank() bool { return !q.valid || q.text == "" }

func (q Query) String() string {
	if !q.valid {
		return "<null>"
	}
	return q.text
}

// Pair is the (trigger, query) unit produced by a scan. Pairs are comparable,
// which is what change detection relies on.
type Pair struct {
	Trigger string
	Query   Query
}

// Item is a retrieved candidate: a mandatory value plus optional metadata.
// A bare display string is an Item with empty Data.
type Item struct {
	Value string
	Data  Metadata
}

// Plain builds an Item from a bare string.
func Plain(value string) Item {
	return Item{Value: value}
}

// Plains builds Items from bare strings, keeping their order.
func Plains(values ...string) []Item {
	items := make([]Item, len(values))
	for i, v := range values {
		items[i] = Plain(v)
	}
	return items
}

// MenuItem is the normalized row shown in menu mode.
type MenuItem struct {
	Trigger      string
	Value        string
	DisplayValue string
	Data         Metadata
	// Creatable marks the synthetic "create new" entry.
	Creatable bool
}

// ItemType distinguishes the kinds of combobox rows.
type ItemType uint8

const (
	// ItemValue rows come from retrieved or current-document items.
	ItemValue ItemType = iota
	// ItemTrigger rows let the user pick a trigger when none is active.
	ItemTrigger
	// ItemAdditional rows are fixed, caller supplied extras.
	ItemAdditional
)

func (t ItemType) String() string {
	switch t {
	case ItemTrigger:
		return "trigger"
	case ItemValue:
		return "value"
	case ItemAdditional:
		return "additional"
	default:
		return "unknown"
	}
}

// ComboboxItem is the normalized row shown in combobox mode.
type ComboboxItem struct {
	Type         ItemType
	Value        string
	DisplayValue string
	Data         Metadata
	Creatable    bool
}

// Token is a mention inserted into the document.
type Token struct {
	ID      string
	Trigger string
	Value   string
	Data    Metadata
}

// Key returns the composite trigger+value key used for deduplication.
func (t Token) Key() string {
	return Key(t.Trigger, t.Value)
}

// Text renders the token as the literal text the user would have typed.
func (t Token) Text() string {
	return t.Trigger + t.Value
}

// Key builds the composite deduplication key for a trigger and a value.
func Key(trigger, value string) string {
	var b strings.Builder
	b.Grow(len(trigger) + len(value))
	b.WriteString(trigger)
	b.WriteString(value)
	return b.String()
}

// SearchState is the lifecycle of one dispatched (trigger, query) pair.
type SearchState uint8

const (
	SearchIdle SearchState = iota
	SearchDebouncing
	SearchInFlight
	SearchResolved
	SearchCancelled
	SearchFailed
)

func (s SearchState) String() string {
	switch s {
	case SearchIdle:
		return "idle"
	case SearchDebouncing:
		return "debouncing"
	case SearchInFlight:
		return "in_flight"
	case SearchResolved:
		return "resolved"
	case SearchCancelled:
		return "cancelled"
	case SearchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pending reports whether a result is still expected.
func (s SearchState) Pending() bool {
	return s == SearchDebouncing || s == SearchInFlight
}
