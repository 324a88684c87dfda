package scan

import "github.com/bastiangx/mentionserve/pkg/mention"

// Tracker remembers the last scan result and reports only real changes, so
// repeated scans of unchanged text cause no downstream work.
type Tracker struct {
	active bool
	last   mention.Pair
}

// Update records a scan result and reports whether the (trigger, query) pair
// differs from the previous one.
func (t *Tracker) Update(m Match, ok bool) bool {
	if !ok {
		changed := t.active
		t.active = false
		t.last = mention.Pair{}
		return changed
	}
	pair := m.Pair()
	if t.active && t.last == pair {
		return false
	}
	t.active = true
	t.last = pair
	return true
}

// Current returns the last active pair.
func (t *Tracker) Current() (mention.Pair, bool) {
	return t.last, t.active
}

// Reset forgets the last pair without reporting a change.
func (t *Tracker) Reset() {
	t.active = false
	t.last = mention.Pair{}
}
