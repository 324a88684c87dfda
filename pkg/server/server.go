package server

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bastiangx/mentionserve/internal/logger"
	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/document"
	"github.com/bastiangx/mentionserve/pkg/engine"
	"github.com/bastiangx/mentionserve/pkg/insert"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/present"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimited  = errors.New("rate limited")
	ErrTextTooLong  = errors.New("text too long")
	ErrUnknownOp    = errors.New("unknown op")
	ErrMissingField = errors.New("missing field")
)

// Status codes carried in ErrorResponse.Code.
const (
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeConflict    = 409
	CodeTooLarge    = 413
	CodeRateLimited = 429
	CodeInternal    = 500
)

// EngineFactory builds an engine over doc with the given callbacks. The
// server calls it at startup and again on every reload.
type EngineFactory func(doc engine.Document, cb engine.Callbacks) (*engine.Engine, error)

// Options tunes a Server.
type Options struct {
	// RequestsPerSecond and Burst configure the request limiter; a
	// non-positive rate disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxTextLength caps set/type payloads in runes; zero disables the cap.
	MaxTextLength int
	Logger        *log.Logger
}

// Server handles msgpack IPC for one document.
type Server struct {
	session string
	opts    Options
	log     *log.Logger
	limiter *rate.Limiter

	outMu sync.Mutex
	out   *bufio.Writer
	enc   *msgpack.Encoder

	mu       sync.Mutex
	doc      *document.Buffer
	eng      *engine.Engine
	handling atomic.Bool
	selected *mention.Token
}

// New creates a server writing to w and builds its first engine.
func New(w io.Writer, factory EngineFactory, opts Options) (*Server, error) {
	bw := bufio.NewWriter(w)
	s := &Server{
		session: uuid.NewString(),
		opts:    opts,
		log:     opts.Logger,
		out:     bw,
		enc:     msgpack.NewEncoder(bw),
		doc:     document.New(""),
	}
	if s.log == nil {
		s.log = logger.New("server")
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	eng, err := factory(s.doc, s.callbacks())
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return s, nil
}

// Session identifies this server process in events.
func (s *Server) Session() string { return s.session }

func (s *Server) callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnChange: func(present.Change) {
			// changes inside a request are reported by its response
			if s.handling.Load() {
				return
			}
			s.pushState("change")
		},
		OnSelect: func(sel engine.Selection) {
			if sel.Token != nil {
				tok := *sel.Token
				s.selected = &tok
			}
		},
	}
}

// Reload swaps in an engine built by factory. The document is kept and
// rescanned under the new rules. On error the old engine stays.
func (s *Server) Reload(factory EngineFactory) error {
	s.mu.Lock()
	eng, err := factory(s.doc, s.callbacks())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.eng
	s.eng = eng
	s.handling.Store(true)
	eng.TextChanged()
	s.handling.Store(false)
	s.mu.Unlock()

	old.Stop()
	s.log.Debugf("engine reloaded")
	s.pushState("reload")
	return nil
}

// Serve reads requests from r until EOF.
func (s *Server) Serve(r io.Reader) error {
	s.log.Debugf("Starting server, session %s", s.session)
	if err := s.send(Event{Event: "ready", Session: s.session}); err != nil {
		return err
	}

	dec := msgpack.NewDecoder(bufio.NewReader(r))
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.log.Errorf("Decoding request: %v", err)
			s.sendError("", errors.Wrap(err, "malformed request"), CodeBadRequest)
			return errors.Wrap(err, "decode request")
		}
		s.Handle(req)
	}
}

// Handle processes one request and writes its response.
func (s *Server) Handle(req Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.sendError(req.ID, ErrRateLimited, CodeRateLimited)
		return
	}

	start := time.Now()
	s.mu.Lock()
	s.handling.Store(true)
	s.selected = nil
	err := s.apply(req)
	s.handling.Store(false)
	resp := Response{ID: req.ID, Status: "ok"}
	if err == nil {
		st := toState(s.eng.State())
		resp.State = &st
		resp.Doc = s.document()
		if s.selected != nil {
			m := toMention(*s.selected)
			resp.Selected = &m
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Debugf("request %s op=%s failed: %v", req.ID, req.Op, err)
		s.sendError(req.ID, err, codeFor(err))
		return
	}
	resp.TimeTaken = time.Since(start).Microseconds()
	if err := s.send(resp); err != nil {
		s.log.Errorf("Writing response: %v", err)
	}
}

func (s *Server) checkText(text string) error {
	if s.opts.MaxTextLength > 0 && len([]rune(text)) > s.opts.MaxTextLength {
		return errors.Wrapf(ErrTextTooLong, "%d runes, limit %d", len([]rune(text)), s.opts.MaxTextLength)
	}
	return nil
}

func needIndex(req Request) (int, error) {
	if req.Index == nil {
		return 0, errors.Wrapf(ErrMissingField, "%s needs i", req.Op)
	}
	return *req.Index, nil
}

func (s *Server) apply(req Request) error {
	switch req.Op {
	case "set":
		if err := s.checkText(req.Text); err != nil {
			return err
		}
		s.doc.SetText(req.Text)
		if req.Caret != nil {
			if err := s.doc.MoveCaret(*req.Caret); err != nil {
				return err
			}
		}
		s.eng.TextChanged()
	case "type":
		if err := s.checkText(req.Text); err != nil {
			return err
		}
		if s.opts.MaxTextLength > 0 && s.doc.Len()+len([]rune(req.Text)) > s.opts.MaxTextLength {
			return errors.Wrap(ErrTextTooLong, "document would exceed the limit")
		}
		s.doc.Type(req.Text)
		s.eng.TextChanged()
	case "backspace":
		if !s.eng.HandleBackspace() {
			s.doc.Backspace()
			s.eng.TextChanged()
		}
	case "caret":
		if req.Caret == nil {
			return errors.Wrap(ErrMissingField, "caret needs caret")
		}
		if err := s.doc.MoveCaret(*req.Caret); err != nil {
			return err
		}
		s.eng.TextChanged()
	case "select":
		i, err := needIndex(req)
		if err != nil {
			return err
		}
		return s.eng.Select(i)
	case "highlight":
		i, err := needIndex(req)
		if err != nil {
			return err
		}
		return s.eng.Highlight(i)
	case "next":
		s.eng.Next()
	case "prev":
		s.eng.Prev()
	case "blur":
		return s.eng.Blur()
	case "cancel":
		s.eng.Cancel()
	case "open":
		return s.eng.Open()
	case "close":
		return s.eng.Close()
	case "toggle":
		return s.eng.Toggle()
	case "state", "health":
	default:
		return errors.Wrapf(ErrUnknownOp, "%q", req.Op)
	}
	return nil
}

func codeFor(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrTextTooLong):
		return CodeTooLarge
	case errors.Is(err, engine.ErrNoSuchItem), errors.Is(err, engine.ErrNothingHighlighted):
		return CodeNotFound
	case errors.Is(err, engine.ErrWrongMode), errors.Is(err, engine.ErrNoActiveTrigger),
		errors.Is(err, insert.ErrTriggerMismatch):
		return CodeConflict
	case errors.Is(err, ErrUnknownOp), errors.Is(err, ErrMissingField), errors.Is(err, document.ErrSpanOutOfRange):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

func (s *Server) pushState(event string) {
	s.mu.Lock()
	st := toState(s.eng.State())
	s.mu.Unlock()
	if err := s.send(Event{Event: event, Session: s.session, State: &st}); err != nil {
		s.log.Errorf("Writing %s event: %v", event, err)
	}
}

func (s *Server) send(v any) error {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		return errors.Wrap(err, "encode")
	}
	return errors.Wrap(s.out.Flush(), "flush")
}

func (s *Server) sendError(id string, err error, code int) {
	if sendErr := s.send(ErrorResponse{ID: id, Error: err.Error(), Code: code}); sendErr != nil {
		s.log.Errorf("Writing error response: %v", sendErr)
	}
}

func (s *Server) document() *Document {
	toks := s.doc.Mentions()
	d := &Document{
		Text:     s.doc.String(),
		Caret:    s.doc.Caret(),
		Mentions: make([]Mention, len(toks)),
	}
	for i, t := range toks {
		d.Mentions[i] = toMention(t)
	}
	return d
}

func toMention(t mention.Token) Mention {
	return Mention{ID: t.ID, Trigger: t.Trigger, Value: t.Value, Data: dataMap(t.Data)}
}

func dataMap(md mention.Metadata) map[string]any {
	if md.Len() == 0 {
		return nil
	}
	return md.Map()
}

func toState(st engine.State) State {
	out := State{
		Mode:      st.Mode.String(),
		Status:    st.Status.String(),
		Active:    st.Active,
		Search:    st.Search.String(),
		Highlight: st.Highlight,
		Explicit:  st.Explicit,
		Items:     []Item{},
	}
	if st.Active {
		out.Trigger = st.Pair.Trigger
		if !st.Pair.Query.IsNull() {
			q := st.Pair.Query.Text()
			out.Query = &q
		}
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	for i := 0; i < st.List.Len(); i++ {
		row, _ := st.List.Row(i)
		out.Items = append(out.Items, toItem(row))
	}
	return out
}

func toItem(row candidate.Row) Item {
	return Item{
		Type:      row.Type.String(),
		Trigger:   row.Trigger,
		Value:     row.Value,
		Display:   row.DisplayValue,
		Creatable: row.Creatable,
		Data:      dataMap(row.Data),
	}
}
