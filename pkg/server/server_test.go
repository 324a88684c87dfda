package server

import (
	"bytes"
	"io"
	"testing"

	"github.com/bastiangx/mentionserve/pkg/engine"
	"github.com/bastiangx/mentionserve/pkg/insert"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func people() *suggest.Catalog {
	c := suggest.NewCatalog(suggest.MatchSubstring)
	c.Add("@", mention.Plains("alice", "alan", "bob")...)
	c.Add("#", mention.Plains("bug", "feature")...)
	return c
}

func menuFactory(doc engine.Document, cb engine.Callbacks) (*engine.Engine, error) {
	opts := engine.DefaultOptions()
	opts.Triggers = []string{"@", "#"}
	opts.Static = people()
	opts.Callbacks = cb
	return engine.New(doc, opts)
}

func comboboxFactory(doc engine.Document, cb engine.Callbacks) (*engine.Engine, error) {
	opts := engine.DefaultOptions()
	opts.Triggers = []string{"@", "#"}
	opts.Static = people()
	opts.Combobox = &engine.ComboboxOptions{}
	opts.Callbacks = cb
	return engine.New(doc, opts)
}

type harness struct {
	srv *Server
	out *bytes.Buffer
	dec *msgpack.Decoder
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	out := &bytes.Buffer{}
	opts.Logger = log.New(io.Discard)
	srv, err := New(out, menuFactory, opts)
	require.NoError(t, err)
	return &harness{srv: srv, out: out, dec: msgpack.NewDecoder(out)}
}

func intp(i int) *int { return &i }

func (h *harness) do(t *testing.T, req Request) Response {
	t.Helper()
	h.srv.Handle(req)
	var resp Response
	require.NoError(t, h.dec.Decode(&resp))
	require.Equal(t, req.ID, resp.ID)
	require.Equal(t, "ok", resp.Status)
	return resp
}

func (h *harness) fail(t *testing.T, req Request) ErrorResponse {
	t.Helper()
	h.srv.Handle(req)
	var resp ErrorResponse
	require.NoError(t, h.dec.Decode(&resp))
	require.Equal(t, req.ID, resp.ID)
	return resp
}

func values(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Value
	}
	return out
}

func TestTypeAndSelect(t *testing.T) {
	h := newHarness(t, Options{})

	resp := h.do(t, Request{ID: "1", Op: "type", Text: "hi @al"})
	require.NotNil(t, resp.State)
	assert.Equal(t, "menu", resp.State.Mode)
	assert.Equal(t, "ready", resp.State.Status)
	assert.True(t, resp.State.Active)
	assert.Equal(t, "@", resp.State.Trigger)
	require.NotNil(t, resp.State.Query)
	assert.Equal(t, "al", *resp.State.Query)
	assert.Equal(t, []string{"alice", "alan"}, values(resp.State.Items))
	assert.Equal(t, 0, resp.State.Highlight)
	assert.Equal(t, 6, resp.Doc.Caret)

	resp = h.do(t, Request{ID: "2", Op: "next"})
	assert.Equal(t, 1, resp.State.Highlight)

	resp = h.do(t, Request{ID: "3", Op: "select", Index: intp(0)})
	require.NotNil(t, resp.Selected)
	assert.Equal(t, "alice", resp.Selected.Value)
	assert.Equal(t, "@", resp.Selected.Trigger)
	assert.NotEmpty(t, resp.Selected.ID)
	assert.Equal(t, "closed", resp.State.Status)
	assert.Equal(t, "hi @alice", resp.Doc.Text)
	require.Len(t, resp.Doc.Mentions, 1)
	assert.Equal(t, resp.Selected.ID, resp.Doc.Mentions[0].ID)
}

func TestFreshTriggerHasNullQuery(t *testing.T) {
	h := newHarness(t, Options{})
	resp := h.do(t, Request{ID: "1", Op: "set", Text: "@", Caret: intp(1)})
	assert.True(t, resp.State.Active)
	assert.Nil(t, resp.State.Query)
	assert.Equal(t, []string{"alice", "alan", "bob"}, values(resp.State.Items))
}

func TestBackspaceAndCancel(t *testing.T) {
	h := newHarness(t, Options{})
	h.do(t, Request{ID: "1", Op: "type", Text: "#bu"})

	resp := h.do(t, Request{ID: "2", Op: "backspace"})
	assert.Equal(t, "#b", resp.Doc.Text)
	require.NotNil(t, resp.State.Query)
	assert.Equal(t, "b", *resp.State.Query)

	resp = h.do(t, Request{ID: "3", Op: "cancel"})
	assert.Equal(t, "closed", resp.State.Status)
	assert.Empty(t, resp.State.Items)
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t, Options{MaxTextLength: 8})
	h.do(t, Request{ID: "0", Op: "type", Text: "@a"})

	tests := []struct {
		name string
		req  Request
		code int
	}{
		{"unknown op", Request{ID: "a", Op: "frobnicate"}, CodeBadRequest},
		{"missing index", Request{ID: "b", Op: "select"}, CodeBadRequest},
		{"caret out of range", Request{ID: "c", Op: "caret", Caret: intp(99)}, CodeBadRequest},
		{"no such item", Request{ID: "d", Op: "select", Index: intp(9)}, CodeNotFound},
		{"combobox op in menu mode", Request{ID: "e", Op: "toggle"}, CodeConflict},
		{"text too long", Request{ID: "f", Op: "set", Text: "far too long text"}, CodeTooLarge},
		{"document would grow too long", Request{ID: "g", Op: "type", Text: "1234567"}, CodeTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.fail(t, tc.req)
			assert.Equal(t, tc.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}

	// failed requests leave the document alone
	resp := h.do(t, Request{ID: "z", Op: "state"})
	assert.Equal(t, "@a", resp.Doc.Text)
}

func TestRowOfAnotherTriggerIsAConflict(t *testing.T) {
	err := errors.Wrap(insert.ErrTriggerMismatch, "selecting")
	assert.Equal(t, CodeConflict, codeFor(err))
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RequestsPerSecond: 0.001, Burst: 1})
	h.do(t, Request{ID: "1", Op: "health"})
	resp := h.fail(t, Request{ID: "2", Op: "health"})
	assert.Equal(t, CodeRateLimited, resp.Code)
}

func TestServeStream(t *testing.T) {
	in := &bytes.Buffer{}
	enc := msgpack.NewEncoder(in)
	require.NoError(t, enc.Encode(Request{ID: "1", Op: "type", Text: "@b"}))
	require.NoError(t, enc.Encode(Request{ID: "2", Op: "state"}))

	out := &bytes.Buffer{}
	srv, err := New(out, menuFactory, Options{Logger: log.New(io.Discard)})
	require.NoError(t, err)
	require.NoError(t, srv.Serve(in))

	dec := msgpack.NewDecoder(out)
	var ready Event
	require.NoError(t, dec.Decode(&ready))
	assert.Equal(t, "ready", ready.Event)
	assert.Equal(t, srv.Session(), ready.Session)

	for _, id := range []string{"1", "2"} {
		var resp Response
		require.NoError(t, dec.Decode(&resp))
		assert.Equal(t, id, resp.ID)
		assert.Equal(t, []string{"bob"}, values(resp.State.Items))
	}
}

func TestServeRejectsGarbage(t *testing.T) {
	out := &bytes.Buffer{}
	srv, err := New(out, menuFactory, Options{Logger: log.New(io.Discard)})
	require.NoError(t, err)
	assert.Error(t, srv.Serve(bytes.NewReader([]byte{0xc1})))

	dec := msgpack.NewDecoder(out)
	var ready Event
	require.NoError(t, dec.Decode(&ready))
	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestReloadSwitchesMode(t *testing.T) {
	h := newHarness(t, Options{})
	h.do(t, Request{ID: "1", Op: "type", Text: "@al"})

	require.NoError(t, h.srv.Reload(comboboxFactory))
	var ev Event
	require.NoError(t, h.dec.Decode(&ev))
	assert.Equal(t, "reload", ev.Event)
	require.NotNil(t, ev.State)
	assert.Equal(t, "combobox", ev.State.Mode)
	assert.Equal(t, []string{"alice", "alan"}, values(ev.State.Items))

	resp := h.do(t, Request{ID: "2", Op: "toggle"})
	assert.Equal(t, "closed", resp.State.Status)
	assert.Equal(t, "@al", resp.Doc.Text)
}
