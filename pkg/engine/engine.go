// Package engine ties mention detection, lookup, candidate assembly,
// presentation and insertion together behind one event-driven facade.
//
// The host calls TextChanged after every edit of the document. The engine
// scans around the caret, dispatches the active (trigger, query) pair, and
// reports what to render through Callbacks. All state lives behind one mutex;
// callbacks run after it is released.
package engine

import (
	"sync"

	"github.com/bastiangx/mentionserve/pkg/boundary"
	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/dispatch"
	"github.com/bastiangx/mentionserve/pkg/insert"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/present"
	"github.com/bastiangx/mentionserve/pkg/scan"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var (
	ErrWrongMode          = errors.New("operation not available in this mode")
	ErrNoActiveTrigger    = errors.New("no active trigger")
	ErrNoSuchItem         = errors.New("no such item")
	ErrNothingHighlighted = errors.New("nothing highlighted")
	ErrStopped            = errors.New("engine stopped")
)

// Document is the host document as the engine sees it.
type Document interface {
	insert.Target
	// Runes returns the flattened text, one mention.Placeholder per token.
	Runes() []rune
	Caret() int
	Mentions() []mention.Token
	TokenBefore(pos int) (mention.Token, bool)
}

// State is a point-in-time view of the engine.
type State struct {
	present.Snapshot
	Active bool
	Pair   mention.Pair
	Search mention.SearchState
	// Err is the last search failure for the active pair.
	Err error
}

type Engine struct {
	mu      sync.Mutex
	stopped bool
	pending []func()

	doc  Document
	opts Options
	log  *log.Logger

	scanner    *scan.Scanner
	tracker    scan.Tracker
	dispatcher *dispatch.Dispatcher
	assembler  *candidate.Assembler
	machine    *present.Machine
	coord      *insert.Coordinator

	lastErr error
}

// New validates opts and builds an engine over doc.
func New(doc Document, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	classifier, err := boundary.New(opts.rules(), opts.Triggers)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		doc:       doc,
		opts:      opts,
		log:       opts.Logger,
		scanner:   scan.New(classifier, opts.Triggers),
		assembler: candidate.New(opts.assemblerConfig()),
		machine:   present.NewMachine(opts.Mode()),
		coord:     insert.NewCoordinator(classifier.Enclosure()),
	}
	if e.log == nil {
		e.log = log.Default()
	}
	if opts.Search != nil {
		e.dispatcher = dispatch.NewSearch(opts.Search, opts.SearchDelay, opts.Scheduler, e.onResult)
	} else {
		e.dispatcher = dispatch.NewStatic(opts.Static)
	}
	e.log.Debugf("engine: mode=%s triggers=%q static=%t", opts.Mode(), opts.Triggers, e.dispatcher.IsStatic())
	return e, nil
}

// Options returns the options the engine was built with.
func (e *Engine) Options() Options { return e.opts }

// unlock releases the lock and runs queued callbacks in order.
func (e *Engine) unlock() {
	queued := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, f := range queued {
		f()
	}
}

func (e *Engine) queue(f func()) {
	e.pending = append(e.pending, f)
}

// emit queues the notifications for one machine transition.
func (e *Engine) emit(c present.Change, changed bool) {
	if !changed {
		return
	}
	cb := e.opts.Callbacks
	if cb.OnChange != nil {
		e.queue(func() { cb.OnChange(c) })
	}
	if c.Opened && cb.OnOpen != nil {
		e.queue(func() { cb.OnOpen(c.Snapshot) })
	}
	if c.Closed && cb.OnClose != nil {
		e.queue(func() { cb.OnClose(c.Snapshot) })
	}
	if c.FocusChanged && c.Snapshot.Mode == mention.ModeCombobox && cb.OnFocusChange != nil {
		row, ok := c.Snapshot.Highlighted()
		e.queue(func() { cb.OnFocusChange(row, ok) })
	}
}

// TextChanged rescans the document. Call it after every edit or caret move.
func (e *Engine) TextChanged() {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return
	}
	e.rescanLocked()
}

func (e *Engine) rescanLocked() {
	m, ok := e.scanner.Scan(e.doc.Runes(), e.doc.Caret())
	if !e.tracker.Update(m, ok) {
		return
	}
	if !ok {
		e.log.Debugf("engine: trigger lost")
		e.deactivateLocked()
		return
	}
	e.log.Debugf("engine: active trigger=%q query=%s", m.Trigger, m.Query)
	e.activateLocked(m.Pair())
}

func (e *Engine) activateLocked(pair mention.Pair) {
	e.lastErr = nil
	res, done := e.dispatcher.Dispatch(pair)
	if done {
		e.showLocked(res)
		return
	}
	e.emit(e.machine.Load(pair.Trigger))
}

func (e *Engine) deactivateLocked() {
	e.dispatcher.Cancel()
	e.lastErr = nil
	if e.machine.Mode() == mention.ModeCombobox && e.machine.Snapshot().Explicit {
		e.emit(e.machine.Show(e.assembler.Assemble(candidate.Input{})))
		return
	}
	e.emit(e.machine.Close())
}

func (e *Engine) showLocked(res dispatch.Result) {
	in := candidate.Input{
		Active:  true,
		Trigger: res.Pair.Trigger,
		Query:   res.Pair.Query,
	}
	// a failed lookup shows no suggestions at all, synthetic rows included
	if res.Err != nil {
		e.emit(e.machine.Show(e.assembler.Empty(in)))
		return
	}
	in.Items = res.Items
	in.Current = e.doc.Mentions()
	e.emit(e.machine.Show(e.assembler.Assemble(in)))
}

// onResult receives asynchronous search completions.
func (e *Engine) onResult(res dispatch.Result) {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped || !e.dispatcher.IsCurrent(res.Generation) {
		return
	}
	if pair, ok := e.tracker.Current(); !ok || pair != res.Pair {
		return
	}
	e.lastErr = res.Err
	e.showLocked(res)
}

// HandleBackspace handles a backspace key press. With ShowMentionsOnDelete
// set and a token right before the caret, the token is turned back into text
// and scanning resumes on it; the return value is then true and the host
// must not delete anything itself.
func (e *Engine) HandleBackspace() bool {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped || !e.opts.ShowMentionsOnDelete {
		return false
	}
	caret := e.doc.Caret()
	tok, ok := e.doc.TokenBefore(caret)
	if !ok {
		return false
	}
	if _, err := e.coord.Apply(e.doc, e.coord.Unwrap(caret, tok)); err != nil {
		e.log.Warnf("engine: unwrapping mention %q: %v", tok.Key(), err)
		return false
	}
	e.rescanLocked()
	return true
}

// Select picks row i of the presented list.
func (e *Engine) Select(i int) error {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return ErrStopped
	}
	snap := e.machine.Snapshot()
	if !snap.IsOpen() {
		return errors.Wrap(ErrNoSuchItem, "list is closed")
	}
	row, ok := snap.List.Row(i)
	if !ok {
		return errors.Wrapf(ErrNoSuchItem, "index %d of %d", i, snap.List.Len())
	}
	return e.selectLocked(row)
}

// SelectHighlighted picks the highlighted row.
func (e *Engine) SelectHighlighted() error {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return ErrStopped
	}
	row, ok := e.machine.Snapshot().Highlighted()
	if !ok {
		return ErrNothingHighlighted
	}
	return e.selectLocked(row)
}

func (e *Engine) selectLocked(row candidate.Row) error {
	sel := Selection{Row: row, Caret: e.doc.Caret()}

	switch row.Type {
	case mention.ItemAdditional:
		e.closeLocked()

	case mention.ItemTrigger:
		caret, err := e.coord.Apply(e.doc, e.coord.PlanTrigger(sel.Caret, row.Trigger))
		if err != nil {
			return err
		}
		sel.Caret = caret
		e.rescanLocked()

	default:
		m, ok := e.scanner.Scan(e.doc.Runes(), e.doc.Caret())
		if !ok {
			return ErrNoActiveTrigger
		}
		r, err := e.coord.Plan(m, row)
		if err != nil {
			return err
		}
		caret, err := e.coord.Apply(e.doc, r)
		if err != nil {
			return err
		}
		sel.Token, sel.Caret = r.Token, caret
		e.log.Debugf("engine: inserted %q at %d", r.Token.Key(), r.Start)
		e.closeLocked()
		// the caret now sits after a token, which never scans as a trigger
		m, ok = e.scanner.Scan(e.doc.Runes(), e.doc.Caret())
		e.tracker.Update(m, ok)
	}

	if cb := e.opts.Callbacks.OnSelect; cb != nil {
		e.queue(func() { cb(sel) })
	}
	return nil
}

func (e *Engine) closeLocked() {
	e.dispatcher.Cancel()
	e.lastErr = nil
	e.emit(e.machine.Close())
}

// Next highlights the next row.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return
	}
	e.emit(e.machine.Next())
}

// Prev highlights the previous row.
func (e *Engine) Prev() {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return
	}
	e.emit(e.machine.Prev())
}

// Highlight focuses row i; present.NoHighlight clears the focus.
func (e *Engine) Highlight(i int) error {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return ErrStopped
	}
	snap := e.machine.Snapshot()
	if i < present.NoHighlight || i >= snap.List.Len() {
		return errors.Wrapf(ErrNoSuchItem, "index %d of %d", i, snap.List.Len())
	}
	e.emit(e.machine.Highlight(i))
	return nil
}

// Blur tells a menu that the editor lost focus. With InsertOnBlur the
// highlighted row is selected, otherwise the menu closes. Comboboxes ignore it.
func (e *Engine) Blur() error {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped || e.machine.Mode() != mention.ModeMenu || !e.machine.Snapshot().IsOpen() {
		return nil
	}
	if e.opts.insertOnBlur() {
		if row, ok := e.machine.Snapshot().Highlighted(); ok {
			err := e.selectLocked(row)
			if !errors.Is(err, insert.ErrTriggerMismatch) {
				return err
			}
			e.log.Debugf("engine: blur dropped %q: %v", row.Value, err)
		}
	}
	e.closeLocked()
	return nil
}

// Cancel dismisses the list. It stays closed until the active pair changes.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return
	}
	e.closeLocked()
}

// Open opens a combobox explicitly. With a trigger active it shows that
// trigger's candidates, otherwise the trigger rows.
func (e *Engine) Open() error {
	e.mu.Lock()
	defer e.unlock()
	return e.openLocked()
}

func (e *Engine) openLocked() error {
	if e.stopped {
		return ErrStopped
	}
	if e.machine.Mode() != mention.ModeCombobox {
		return errors.Wrap(ErrWrongMode, "open needs a combobox")
	}
	e.machine.SetExplicit(true)
	if e.machine.Snapshot().IsOpen() {
		return nil
	}
	if pair, ok := e.tracker.Current(); ok {
		e.activateLocked(pair)
		return nil
	}
	e.emit(e.machine.Show(e.assembler.Assemble(candidate.Input{})))
	return nil
}

// Close closes a combobox explicitly.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.machine.Mode() != mention.ModeCombobox {
		return errors.Wrap(ErrWrongMode, "close needs a combobox")
	}
	e.closeLocked()
	return nil
}

// Toggle flips a combobox between open and closed.
func (e *Engine) Toggle() error {
	e.mu.Lock()
	defer e.unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.machine.Mode() != mention.ModeCombobox {
		return errors.Wrap(ErrWrongMode, "toggle needs a combobox")
	}
	if e.machine.Snapshot().IsOpen() {
		e.closeLocked()
		return nil
	}
	return e.openLocked()
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	pair, active := e.tracker.Current()
	return State{
		Snapshot: e.machine.Snapshot(),
		Active:   active,
		Pair:     pair,
		Search:   e.dispatcher.State(),
		Err:      e.lastErr,
	}
}

// Stop abandons pending work. Later calls are no-ops.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.dispatcher.Cancel()
}
