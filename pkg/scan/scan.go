// Package scan finds the active trigger around the caret and extracts its query.
package scan

import (
	"sort"
	"unicode"

	"github.com/bastiangx/mentionserve/pkg/boundary"
	"github.com/bastiangx/mentionserve/pkg/mention"
)

// Match is an active trigger found by a scan. Positions are rune offsets into
// the scanned text.
type Match struct {
	Trigger string
	Query   mention.Query
	// Start is the offset of the first trigger rune.
	Start int
	// End is the exclusive end of the span an insertion replaces. It covers the
	// closing enclosure delimiter when one follows the query.
	End int
	// Enclosed is set when the query was opened with the enclosure delimiter.
	Enclosed bool
}

// Pair returns the comparable (trigger, query) unit of the match.
func (m Match) Pair() mention.Pair {
	return mention.Pair{Trigger: m.Trigger, Query: m.Query}
}

type trigger struct {
	text  string
	runes []rune
	order int
}

// Scanner resolves the active trigger for a text and caret.
type Scanner struct {
	classifier *boundary.Classifier
	// triggers sorted longest first, declaration order among equal lengths
	triggers []trigger
	longest  int
}

// New builds a Scanner. Triggers keep their declaration order for tie-breaks.
func New(classifier *boundary.Classifier, triggers []string) *Scanner {
	s := &Scanner{classifier: classifier}
	for i, t := range triggers {
		r := []rune(t)
		s.triggers = append(s.triggers, trigger{text: t, runes: r, order: i})
		if len(r) > s.longest {
			s.longest = len(r)
		}
	}
	sort.SliceStable(s.triggers, func(i, j int) bool {
		return len(s.triggers[i].runes) > len(s.triggers[j].runes)
	})
	return s
}

// Scan looks backwards from caret for the closest valid trigger whose query
// reaches the caret unbroken. ok is false when no trigger is active.
func (s *Scanner) Scan(text []rune, caret int) (Match, bool) {
	if caret < 0 || caret > len(text) {
		return Match{}, false
	}
	// allow for the trigger, both delimiters and the query itself
	window := s.classifier.MaxLength() + s.longest + 2
	lowest := caret - window
	if lowest < 0 {
		lowest = 0
	}

	for pos := caret - 1; pos >= lowest; pos-- {
		r := text[pos]
		if r == '\n' || r == '\r' || r == mention.Placeholder {
			break
		}
		t, ok := s.triggerAt(text, pos, caret)
		if !ok {
			continue
		}
		atStart := pos == 0
		var prev rune
		if !atStart {
			prev = text[pos-1]
		}
		if !s.classifier.ValidStart(prev, atStart) {
			continue
		}
		if m, ok := s.extract(text, t, pos, caret); ok {
			return m, true
		}
	}
	return Match{}, false
}

// triggerAt returns the longest trigger starting at pos and ending at or
// before the caret.
func (s *Scanner) triggerAt(text []rune, pos, caret int) (trigger, bool) {
	for _, t := range s.triggers {
		end := pos + len(t.runes)
		if end > caret {
			continue
		}
		if runesEqual(text[pos:end], t.runes) {
			return t, true
		}
	}
	return trigger{}, false
}

func (s *Scanner) extract(text []rune, t trigger, pos, caret int) (Match, bool) {
	qStart := pos + len(t.runes)
	m := Match{Trigger: t.text, Start: pos, End: caret}

	if qStart == caret {
		m.Query = mention.NullQuery()
		return m, true
	}

	if s.classifier.Opens(text[qStart]) {
		return s.extractEnclosed(text, m, qStart+1, caret)
	}

	if unicode.IsSpace(text[qStart]) {
		return Match{}, false
	}
	if caret-qStart > s.classifier.MaxLength() {
		return Match{}, false
	}
	for _, r := range text[qStart:caret] {
		if s.classifier.Terminates(r, false) {
			return Match{}, false
		}
	}
	// another trigger inside the query ends it, even one that could not start a mention
	if s.containsTrigger(text[qStart:caret]) {
		return Match{}, false
	}
	m.Query = mention.QueryOf(string(text[qStart:caret]))
	return m, true
}

func (s *Scanner) containsTrigger(q []rune) bool {
	for i := range q {
		for _, t := range s.triggers {
			if i+len(t.runes) <= len(q) && runesEqual(q[i:i+len(t.runes)], t.runes) {
				return true
			}
		}
	}
	return false
}

func (s *Scanner) extractEnclosed(text []rune, m Match, qStart, caret int) (Match, bool) {
	m.Enclosed = true
	closing := s.classifier.Enclosure().Close
	for i := qStart; i < caret; i++ {
		r := text[i]
		if !s.classifier.Terminates(r, true) {
			continue
		}
		// the closing delimiter must be the last rune before the caret
		if r == closing && i == caret-1 {
			m.Query = mention.QueryOf(string(text[qStart:i]))
			return m, true
		}
		return Match{}, false
	}
	if caret-qStart > s.classifier.MaxLength() {
		return Match{}, false
	}
	m.Query = mention.QueryOf(string(text[qStart:caret]))
	// consume a closing delimiter sitting right at the caret
	if caret < len(text) && text[caret] == closing {
		m.End = caret + 1
	}
	return m, true
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
