// Package dispatch turns (trigger, query) changes into item lookups.
//
// Static sources resolve synchronously. Search sources are debounced, and
// every dispatch bumps a generation counter; a lookup result is delivered only
// if its captured generation is still current, so a slow stale response can
// never overwrite a fresher one.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// DefaultDelay is the debounce window applied to search lookups.
const DefaultDelay = 250 * time.Millisecond

// StaticSource filters a fixed trigger → items mapping locally.
type StaticSource interface {
	Lookup(trigger string, query mention.Query) []mention.Item
}

// Searcher is an asynchronous lookup. Implementations should honour ctx, but
// the dispatcher does not rely on it: cancelled lookups are simply ignored.
type Searcher interface {
	Search(ctx context.Context, trigger string, query mention.Query) ([]mention.Item, error)
}

// SearchFunc adapts a function to Searcher.
type SearchFunc func(ctx context.Context, trigger string, query mention.Query) ([]mention.Item, error)

func (f SearchFunc) Search(ctx context.Context, trigger string, query mention.Query) ([]mention.Item, error) {
	return f(ctx, trigger, query)
}

// Result is the outcome of one dispatched pair.
type Result struct {
	Pair       mention.Pair
	Items      []mention.Item
	State      mention.SearchState
	Err        error
	Generation uint64
}

// Dispatcher owns the SearchState of the active pair.
type Dispatcher struct {
	mu sync.Mutex

	static   StaticSource
	searcher Searcher
	delay    time.Duration
	sched    Scheduler
	onResult func(Result)

	gen    uint64
	pair   mention.Pair
	state  mention.SearchState
	timer  Timer
	cancel context.CancelFunc
}

// NewStatic builds a dispatcher over a synchronous source.
func NewStatic(src StaticSource) *Dispatcher {
	return &Dispatcher{static: src}
}

// NewSearch builds a debounced dispatcher over an asynchronous source.
// onResult receives every non-stale completion; it is called without any
// dispatcher lock held, from a timer or lookup goroutine.
func NewSearch(s Searcher, delay time.Duration, sched Scheduler, onResult func(Result)) *Dispatcher {
	if delay < 0 {
		delay = DefaultDelay
	}
	if sched == nil {
		sched = SystemScheduler()
	}
	return &Dispatcher{
		searcher: s,
		delay:    delay,
		sched:    sched,
		onResult: onResult,
	}
}

// IsStatic reports whether lookups resolve synchronously.
func (d *Dispatcher) IsStatic() bool { return d.static != nil || d.searcher == nil }

// Dispatch starts work for a new pair and supersedes any previous one.
// For static sources the result is returned directly with done set.
// Otherwise the returned Result only carries the new pending state.
func (d *Dispatcher) Dispatch(pair mention.Pair) (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	d.pair = pair
	gen := d.gen

	if d.IsStatic() {
		var items []mention.Item
		if d.static != nil {
			items = d.static.Lookup(pair.Trigger, pair.Query)
		}
		d.state = mention.SearchResolved
		return Result{Pair: pair, Items: items, State: d.state, Generation: gen}, true
	}

	// nothing typed after the trigger yet, so there is nothing to wait for
	if pair.Query.IsNull() || d.delay == 0 {
		d.startLocked(gen, pair)
	} else {
		d.state = mention.SearchDebouncing
		d.timer = d.sched.AfterFunc(d.delay, func() { d.fire(gen) })
	}
	return Result{Pair: pair, State: d.state, Generation: gen}, false
}

// Cancel abandons the active pair. Its pending timer is stopped and an
// in-flight lookup is ignored when it resolves.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	if d.state.Pending() {
		d.state = mention.SearchCancelled
	} else {
		d.state = mention.SearchIdle
	}
}

// State returns the SearchState of the current pair.
func (d *Dispatcher) State() mention.SearchState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Generation returns the current generation counter.
func (d *Dispatcher) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen
}

// IsCurrent reports whether gen still identifies the active pair.
func (d *Dispatcher) IsCurrent(gen uint64) bool {
	return d.Generation() == gen
}

func (d *Dispatcher) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		return
	}
	d.timer = nil
	d.startLocked(gen, d.pair)
}

func (d *Dispatcher) startLocked(gen uint64, pair mention.Pair) {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.state = mention.SearchInFlight
	log.Debugf("dispatch: lookup gen=%d trigger=%q query=%s", gen, pair.Trigger, pair.Query)

	go func() {
		items, err := d.lookup(ctx, pair)
		d.finish(gen, pair, items, err)
	}()
}

// lookup calls the searcher, turning a panic into an error.
func (d *Dispatcher) lookup(ctx context.Context, pair mention.Pair) (items []mention.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("search panicked: %v", r)
		}
	}()
	return d.searcher.Search(ctx, pair.Trigger, pair.Query)
}

func (d *Dispatcher) finish(gen uint64, pair mention.Pair, items []mention.Item, err error) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		log.Debugf("dispatch: dropping stale result gen=%d", gen)
		return
	}
	d.cancel = nil
	res := Result{Pair: pair, Generation: gen}
	if err != nil {
		d.state = mention.SearchFailed
		res.Err = err
		log.Warnf("dispatch: search failed trigger=%q query=%s: %v", pair.Trigger, pair.Query, err)
	} else {
		d.state = mention.SearchResolved
		res.Items = items
	}
	res.State = d.state
	cb := d.onResult
	d.mu.Unlock()

	if cb != nil {
		cb(res)
	}
}

func (d *Dispatcher) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
