// Package present tracks what the surrounding component should render: whether
// the list is open, whether it is still loading, which rows it shows and which
// row is highlighted.
//
// Every method returns a Change and a flag; the flag is false when the call
// did not alter anything, so callers notify exactly once per real transition.
package present

import (
	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/mention"
)

// Status is the openness of the list.
type Status uint8

const (
	Closed Status = iota
	Loading
	Ready
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// NoHighlight is the highlight index when no row is focused.
const NoHighlight = -1

// Snapshot is a read-only copy of the machine state.
type Snapshot struct {
	Mode      mention.Mode
	Status    Status
	List      *candidate.List
	Highlight int
	// Explicit is set when a combobox was opened by the user rather than by a trigger.
	Explicit bool
}

func (s Snapshot) IsOpen() bool { return s.Status != Closed }

// Highlighted returns the focused row, if any.
func (s Snapshot) Highlighted() (candidate.Row, bool) {
	if s.Highlight == NoHighlight {
		return candidate.Row{}, false
	}
	return s.List.Row(s.Highlight)
}

// Change describes one transition.
type Change struct {
	Opened        bool
	Closed        bool
	StatusChanged bool
	ItemsChanged  bool
	FocusChanged  bool
	Snapshot      Snapshot
}

// Machine is the presentation state machine. It is not safe for concurrent
// use; the engine serializes access.
type Machine struct {
	mode      mention.Mode
	status    Status
	list      *candidate.List
	highlight int
	explicit  bool
}

func NewMachine(mode mention.Mode) *Machine {
	return &Machine{mode: mode, highlight: NoHighlight}
}

func (m *Machine) Mode() mention.Mode { return m.mode }

func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Mode:      m.mode,
		Status:    m.status,
		List:      m.list,
		Highlight: m.highlight,
		Explicit:  m.explicit,
	}
}

// initialHighlight is where focus lands on a fresh list.
func (m *Machine) initialHighlight(l *candidate.List) int {
	if m.mode == mention.ModeMenu && l.Len() > 0 {
		return 0
	}
	return NoHighlight
}

// transition applies a target state and reports what differed.
func (m *Machine) transition(status Status, list *candidate.List, highlight int, explicit bool) (Change, bool) {
	prev := m.Snapshot()
	m.status, m.list, m.highlight, m.explicit = status, list, highlight, explicit

	c := Change{
		Opened:        prev.Status == Closed && status != Closed,
		Closed:        prev.Status != Closed && status == Closed,
		StatusChanged: prev.Status != status,
		ItemsChanged:  prev.List != list,
		FocusChanged:  prev.Highlight != highlight,
		Snapshot:      m.Snapshot(),
	}
	return c, c.StatusChanged || c.ItemsChanged || c.FocusChanged
}

// Load marks a lookup for trigger as pending. Rows of the same trigger stay
// visible until the result arrives; rows of another trigger, or trigger rows,
// are dropped so nothing stale can be picked.
func (m *Machine) Load(trigger string) (Change, bool) {
	if l := m.list; l != nil && l.Active && l.Trigger == trigger {
		return m.transition(Loading, l, m.highlight, m.explicit)
	}
	return m.transition(Loading, nil, NoHighlight, m.explicit)
}

// Show presents list as ready. Passing the list already shown is a no-op.
func (m *Machine) Show(list *candidate.List) (Change, bool) {
	highlight := m.highlight
	if list != m.list {
		highlight = m.initialHighlight(list)
	}
	return m.transition(Ready, list, highlight, m.explicit)
}

// Open presents list and marks the machine as explicitly opened.
func (m *Machine) Open(list *candidate.List) (Change, bool) {
	highlight := m.highlight
	if list != m.list {
		highlight = m.initialHighlight(list)
	}
	return m.transition(Ready, list, highlight, true)
}

// SetExplicit marks how the machine was opened. It is not a render change.
func (m *Machine) SetExplicit(v bool) {
	m.explicit = v
}

// Close hides the list and forgets it.
func (m *Machine) Close() (Change, bool) {
	return m.transition(Closed, nil, NoHighlight, false)
}

// Next moves the highlight forward, wrapping at the end.
func (m *Machine) Next() (Change, bool) {
	n := m.list.Len()
	if m.status == Closed || n == 0 {
		return Change{}, false
	}
	h := 0
	if m.highlight != NoHighlight {
		h = (m.highlight + 1) % n
	}
	return m.transition(m.status, m.list, h, m.explicit)
}

// Prev moves the highlight backward, wrapping at the start.
func (m *Machine) Prev() (Change, bool) {
	n := m.list.Len()
	if m.status == Closed || n == 0 {
		return Change{}, false
	}
	h := n - 1
	if m.highlight != NoHighlight {
		h = (m.highlight - 1 + n) % n
	}
	return m.transition(m.status, m.list, h, m.explicit)
}

// Highlight focuses row i, or clears focus with NoHighlight. Out of range
// indexes are ignored.
func (m *Machine) Highlight(i int) (Change, bool) {
	if m.status == Closed || i < NoHighlight || i >= m.list.Len() {
		return Change{}, false
	}
	return m.transition(m.status, m.list, i, m.explicit)
}
