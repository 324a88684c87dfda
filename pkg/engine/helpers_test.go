package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/dispatch"
	"github.com/bastiangx/mentionserve/pkg/document"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/present"
	"github.com/bastiangx/mentionserve/pkg/suggest"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, f func()) dispatch.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) fire() int {
	s.mu.Lock()
	timers := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()

	n := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if run {
			t.f()
			n++
		}
	}
	return n
}

type call struct {
	query   mention.Query
	release chan []mention.Item
	fail    chan error
}

type gateSearcher struct {
	calls chan *call
}

func newGateSearcher() *gateSearcher {
	return &gateSearcher{calls: make(chan *call, 16)}
}

func (g *gateSearcher) Search(ctx context.Context, _ string, query mention.Query) ([]mention.Item, error) {
	c := &call{query: query, release: make(chan []mention.Item, 1), fail: make(chan error, 1)}
	g.calls <- c
	select {
	case items := <-c.release:
		return items, nil
	case err := <-c.fail:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gateSearcher) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a search call")
		return nil
	}
}

func (g *gateSearcher) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-g.calls:
		t.Fatalf("unexpected search call for query %s", c.query)
	case <-time.After(50 * time.Millisecond):
	}
}

// recorder counts callbacks.
type recorder struct {
	mu       sync.Mutex
	changes  []present.Change
	opens    int
	closes   int
	selects  []Selection
	focus    []string
	notified chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notified: make(chan struct{}, 64)}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnChange: func(c present.Change) {
			r.mu.Lock()
			r.changes = append(r.changes, c)
			r.mu.Unlock()
			r.notified <- struct{}{}
		},
		OnOpen: func(present.Snapshot) {
			r.mu.Lock()
			r.opens++
			r.mu.Unlock()
		},
		OnClose: func(present.Snapshot) {
			r.mu.Lock()
			r.closes++
			r.mu.Unlock()
		},
		OnSelect: func(s Selection) {
			r.mu.Lock()
			r.selects = append(r.selects, s)
			r.mu.Unlock()
		},
		OnFocusChange: func(row candidate.Row, ok bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if !ok {
				r.focus = append(r.focus, "<none>")
				return
			}
			r.focus = append(r.focus, row.Value)
		},
	}
}

func (r *recorder) changeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notified:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func people() *suggest.Catalog {
	c := suggest.NewCatalog(suggest.MatchSubstring)
	c.Add("@", mention.Plains("alice", "alan", "bob", "John Doe")...)
	c.Add("#", mention.Plains("bug", "feature")...)
	return c
}

type fixture struct {
	doc *document.Buffer
	eng *Engine
	rec *recorder
}

func newFixture(t *testing.T, text string, mutate func(*Options)) *fixture {
	t.Helper()
	rec := newRecorder()
	opts := DefaultOptions()
	opts.Triggers = []string{"@", "#"}
	opts.Static = people()
	opts.Callbacks = rec.callbacks()
	if mutate != nil {
		mutate(&opts)
	}
	doc := document.New(text)
	eng, err := New(doc, opts)
	require.NoError(t, err)
	t.Cleanup(eng.Stop)
	return &fixture{doc: doc, eng: eng, rec: rec}
}

func (f *fixture) typ(s string) {
	f.doc.Type(s)
	f.eng.TextChanged()
}

func displays(l *candidate.List) []string {
	var out []string
	for i := 0; i < l.Len(); i++ {
		row, _ := l.Row(i)
		out = append(out, row.DisplayValue)
	}
	return out
}
