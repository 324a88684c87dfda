// Package document is an in-memory document model: a sequence of text runes
// and atomic mention tokens with a caret.
//
// Positions are rune offsets into the flattened text, where every token counts
// as one mention.Placeholder rune.
package document

import (
	"strings"
	"sync"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/cockroachdb/errors"
)

var ErrSpanOutOfRange = errors.New("span out of range")

type cell struct {
	r   rune
	tok *mention.Token
}

func (c cell) flat() rune {
	if c.tok != nil {
		return mention.Placeholder
	}
	return c.r
}

// Buffer is safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	cells []cell
	caret int
}

// New returns a buffer holding text with the caret at the end.
func New(text string) *Buffer {
	b := &Buffer{}
	b.SetText(text)
	return b
}

// SetText replaces the whole content, dropping every token.
func (b *Buffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cells = textCells(text)
	b.caret = len(b.cells)
}

func textCells(text string) []cell {
	out := make([]cell, 0, len(text))
	for _, r := range text {
		out = append(out, cell{r: r})
	}
	return out
}

// Type inserts text at the caret and moves the caret past it.
func (b *Buffer) Type(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ins := textCells(text)
	b.splice(b.caret, b.caret, ins)
	b.caret += len(ins)
}

// Backspace removes the cell before the caret. It reports whether anything
// was removed.
func (b *Buffer) Backspace() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.caret == 0 {
		return false
	}
	b.splice(b.caret-1, b.caret, nil)
	b.caret--
	return true
}

// MoveCaret places the caret at pos.
func (b *Buffer) MoveCaret(pos int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos < 0 || pos > len(b.cells) {
		return errors.Wrapf(ErrSpanOutOfRange, "caret %d not in [0,%d]", pos, len(b.cells))
	}
	b.caret = pos
	return nil
}

func (b *Buffer) Caret() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.caret
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cells)
}

// Runes returns the flattened text.
func (b *Buffer) Runes() []rune {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]rune, len(b.cells))
	for i, c := range b.cells {
		out[i] = c.flat()
	}
	return out
}

// Mentions lists the tokens in document order.
func (b *Buffer) Mentions() []mention.Token {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []mention.Token
	for _, c := range b.cells {
		if c.tok != nil {
			out = append(out, *c.tok)
		}
	}
	return out
}

// TokenBefore returns the token immediately before pos, if there is one.
func (b *Buffer) TokenBefore(pos int) (mention.Token, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if pos <= 0 || pos > len(b.cells) || b.cells[pos-1].tok == nil {
		return mention.Token{}, false
	}
	return *b.cells[pos-1].tok, true
}

func (b *Buffer) checkSpan(start, end int) error {
	if start < 0 || end < start || end > len(b.cells) {
		return errors.Wrapf(ErrSpanOutOfRange, "[%d,%d) not in [0,%d]", start, end, len(b.cells))
	}
	return nil
}

// ReplaceWithToken swaps [start,end) for tok and returns the caret, which is
// placed right after the token.
func (b *Buffer) ReplaceWithToken(start, end int, tok mention.Token) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkSpan(start, end); err != nil {
		return b.caret, err
	}
	t := tok
	b.splice(start, end, []cell{{tok: &t}})
	b.caret = start + 1
	return b.caret, nil
}

// ReplaceWithText swaps [start,end) for text and returns the caret, placed at
// the end of the inserted text.
func (b *Buffer) ReplaceWithText(start, end int, text string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkSpan(start, end); err != nil {
		return b.caret, err
	}
	ins := textCells(text)
	b.splice(start, end, ins)
	b.caret = start + len(ins)
	return b.caret, nil
}

func (b *Buffer) splice(start, end int, ins []cell) {
	out := make([]cell, 0, len(b.cells)-(end-start)+len(ins))
	out = append(out, b.cells[:start]...)
	out = append(out, ins...)
	out = append(out, b.cells[end:]...)
	b.cells = out
}

// String renders tokens as their literal trigger+value text.
func (b *Buffer) String() string {
	return b.render(func(t mention.Token) string { return t.Text() })
}

// Render shows tokens in brackets and the caret as '|'; used by the debug CLI.
func (b *Buffer) Render() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sb strings.Builder
	for i, c := range b.cells {
		if i == b.caret {
			sb.WriteRune('|')
		}
		if c.tok != nil {
			sb.WriteString("[" + c.tok.Text() + "]")
			continue
		}
		sb.WriteRune(c.r)
	}
	if b.caret == len(b.cells) {
		sb.WriteRune('|')
	}
	return sb.String()
}

func (b *Buffer) render(tok func(mention.Token) string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sb strings.Builder
	for _, c := range b.cells {
		if c.tok != nil {
			sb.WriteString(tok(*c.tok))
			continue
		}
		sb.WriteRune(c.r)
	}
	return sb.String()
}
