// Package insert computes and applies the document edits behind a selection.
package insert

import (
	"strings"
	"unicode"

	"github.com/bastiangx/mentionserve/pkg/boundary"
	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/scan"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotInsertable is returned for rows that do not edit the document.
	ErrNotInsertable = errors.New("row does not insert into the document")
	// ErrTriggerMismatch is returned for a row listed under another trigger
	// than the one active at the caret.
	ErrTriggerMismatch = errors.New("row belongs to another trigger")
)

// Target is the writable side of a document.
type Target interface {
	ReplaceWithToken(start, end int, tok mention.Token) (int, error)
	ReplaceWithText(start, end int, text string) (int, error)
}

// Replacement is one planned edit: [Start,End) becomes either Token or Text.
type Replacement struct {
	Start int
	End   int
	Token *mention.Token
	Text  string
}

// Coordinator plans and applies replacements.
type Coordinator struct {
	enclosure *boundary.Enclosure
	newID     func() string
}

// NewCoordinator returns a coordinator. enc is the active enclosure, nil when
// none is configured; it is used to re-wrap values when a token is unwrapped.
func NewCoordinator(enc *boundary.Enclosure) *Coordinator {
	return &Coordinator{enclosure: enc, newID: uuid.NewString}
}

// Plan turns a selected value row into a token replacing the scanned span,
// enclosure delimiters included.
func (c *Coordinator) Plan(m scan.Match, row candidate.Row) (Replacement, error) {
	if row.Type != mention.ItemValue {
		return Replacement{}, errors.Wrapf(ErrNotInsertable, "%s row %q", row.Type, row.Value)
	}
	if row.Trigger != m.Trigger {
		return Replacement{}, errors.Wrapf(ErrTriggerMismatch, "row %q listed for %q, caret is in %q", row.Value, row.Trigger, m.Trigger)
	}
	tok := mention.Token{
		ID:      c.newID(),
		Trigger: m.Trigger,
		Value:   row.Value,
		Data:    row.Data,
	}
	return Replacement{Start: m.Start, End: m.End, Token: &tok}, nil
}

// PlanTrigger inserts a bare trigger at caret; used for combobox trigger rows.
func (c *Coordinator) PlanTrigger(caret int, trigger string) Replacement {
	return Replacement{Start: caret, End: caret, Text: trigger}
}

// Unwrap turns the token ending at pos back into the literal text the user
// would have typed, so that scanning picks it up again.
func (c *Coordinator) Unwrap(pos int, tok mention.Token) Replacement {
	text := tok.Text()
	if c.enclosure != nil && strings.IndexFunc(tok.Value, unicode.IsSpace) >= 0 {
		text = tok.Trigger + string(c.enclosure.Open) + tok.Value + string(c.enclosure.Close)
	}
	return Replacement{Start: pos - 1, End: pos, Text: text}
}

// Apply performs r on t and returns the new caret.
func (c *Coordinator) Apply(t Target, r Replacement) (int, error) {
	if r.Token != nil {
		caret, err := t.ReplaceWithToken(r.Start, r.End, *r.Token)
		return caret, errors.Wrap(err, "insert mention")
	}
	caret, err := t.ReplaceWithText(r.Start, r.End, r.Text)
	return caret, errors.Wrap(err, "insert text")
}
