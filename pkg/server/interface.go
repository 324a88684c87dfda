/*
Package server implements msgpack IPC for the mention engine.

The server keeps one document and one engine per process. Clients send
msgpack maps on stdin and read msgpack maps from stdout; messages are
concatenated without framing.

Every request carries an id and an op:

	{"id": "r1", "op": "type", "text": "hi @al"}

The response echoes the id and carries the presentation state and the
document after the op was applied:

	{"id": "r1", "status": "ok", "state": {"status": "ready", "trigger": "@", "query": "al",
	 "items": [{"type": "value", "v": "alice", "d": "alice"}], "hl": 0}, "doc": {...}, "t": 42}

Search lookups finish after the response was written; their results are
pushed as events:

	{"event": "change", "session": "…", "state": {...}}

# Ops

	set        replace the document text (text, optional caret)
	type       insert text at the caret
	backspace  delete before the caret; over a mention it may reopen the menu
	caret      move the caret (caret)
	select     pick row i
	next, prev, highlight (i)
	blur, cancel
	open, close, toggle (combobox only)
	state, health

Errors use the shape {"id": "r1", "e": "message", "c": 404}.
*/
package server

// Request is one client message.
type Request struct {
	ID    string `msgpack:"id"`
	Op    string `msgpack:"op"`
	Text  string `msgpack:"text,omitempty"`
	Caret *int   `msgpack:"caret,omitempty"`
	Index *int   `msgpack:"i,omitempty"`
}

// Item is one presented row.
type Item struct {
	Type      string         `msgpack:"type"`
	Trigger   string         `msgpack:"trigger,omitempty"`
	Value     string         `msgpack:"v"`
	Display   string         `msgpack:"d"`
	Creatable bool           `msgpack:"c,omitempty"`
	Data      map[string]any `msgpack:"data,omitempty"`
}

// Mention is a token in the document.
type Mention struct {
	ID      string         `msgpack:"id"`
	Trigger string         `msgpack:"trigger"`
	Value   string         `msgpack:"v"`
	Data    map[string]any `msgpack:"data,omitempty"`
}

// State mirrors engine.State.
type State struct {
	Mode    string `msgpack:"mode"`
	Status  string `msgpack:"status"`
	Active  bool   `msgpack:"active"`
	Trigger string `msgpack:"trigger,omitempty"`
	// Query is nil while the query is null.
	Query     *string `msgpack:"query,omitempty"`
	Search    string  `msgpack:"search"`
	Items     []Item  `msgpack:"items"`
	Highlight int     `msgpack:"hl"`
	Explicit  bool    `msgpack:"explicit,omitempty"`
	Error     string  `msgpack:"error,omitempty"`
}

// Document is the document after a request.
type Document struct {
	Text     string    `msgpack:"text"`
	Caret    int       `msgpack:"caret"`
	Mentions []Mention `msgpack:"mentions"`
}

// Response answers a Request.
type Response struct {
	ID       string    `msgpack:"id"`
	Status   string    `msgpack:"status"`
	State    *State    `msgpack:"state,omitempty"`
	Doc      *Document `msgpack:"doc,omitempty"`
	Selected *Mention  `msgpack:"selected,omitempty"`
	// TimeTaken is in microseconds.
	TimeTaken int64 `msgpack:"t"`
}

// Event is pushed without a request: on startup, on asynchronous state
// changes and after a config reload.
type Event struct {
	Event   string `msgpack:"event"`
	Session string `msgpack:"session"`
	State   *State `msgpack:"state,omitempty"`
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
