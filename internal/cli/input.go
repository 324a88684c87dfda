// Package cli is an interactive line editor for trying mention detection from a terminal.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/document"
	"github.com/bastiangx/mentionserve/pkg/engine"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/present"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var (
	docStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"})
	highlightStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"}).
			Background(lipgloss.AdaptiveColor{Light: "#907aa9", Dark: "#c4a7e7"})
	dimStyle = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#9893a5", Dark: "#6e6a86"})
)

const help = `text       type at the caret (a trailing "\" types a space)
:<n>       select row n
:next      highlight the next row (:prev for the previous one)
:bs        backspace
:esc       dismiss the list
:blur      leave the editor
:open      open the combobox (:close, :toggle)
:caret <n> move the caret
:clear     empty the document
:help      this text`

// InputHandler feeds terminal lines into a document and prints the engine
// state after every edit.
type InputHandler struct {
	doc *document.Buffer
	out io.Writer

	mu       sync.Mutex
	eng      *engine.Engine
	handling atomic.Bool
}

// NewInputHandler creates a handler editing doc. Wire Callbacks into the
// engine options and call SetEngine before Start.
func NewInputHandler(doc *document.Buffer, out io.Writer) *InputHandler {
	return &InputHandler{doc: doc, out: out}
}

// SetEngine installs or replaces the engine. A replaced engine is stopped.
func (h *InputHandler) SetEngine(eng *engine.Engine) {
	h.mu.Lock()
	old := h.eng
	h.eng = eng
	h.handling.Store(true)
	eng.TextChanged()
	h.handling.Store(false)
	h.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// Callbacks prints search results that land after the command returned,
// and announces selections.
func (h *InputHandler) Callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnChange: func(c present.Change) {
			if h.handling.Load() {
				return
			}
			h.print(c.Snapshot)
		},
		OnSelect: func(sel engine.Selection) {
			if sel.Token != nil {
				log.Debugf("inserted %s (id %s)", sel.Token.Text(), sel.Token.ID)
			}
		},
	}
}

// Start runs the loop until in is exhausted.
func (h *InputHandler) Start(in io.Reader) error {
	fmt.Fprintln(h.out, dimStyle.Render("MentionServe CLI, :help for commands"))
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(h.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if err := h.HandleLine(line); err != nil {
			log.Errorf("%v", err)
		}
	}
}

// HandleLine runs one command or types one line of text.
func (h *InputHandler) HandleLine(line string) error {
	h.mu.Lock()
	h.handling.Store(true)
	err := h.run(line)
	h.handling.Store(false)
	st := h.eng.State()
	h.mu.Unlock()

	if err != nil {
		return err
	}
	if line == ":help" {
		return nil
	}
	h.print(st.Snapshot)
	return nil
}

func (h *InputHandler) run(line string) error {
	if !strings.HasPrefix(line, ":") || line == ":" {
		// trailing "\" stands for a space the terminal would trim visually
		if strings.HasSuffix(line, `\`) {
			line = strings.TrimSuffix(line, `\`) + " "
		}
		h.doc.Type(line)
		h.eng.TextChanged()
		return nil
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	if n, err := strconv.Atoi(cmd); err == nil {
		return h.eng.Select(n - 1)
	}
	switch cmd {
	case "next", "n":
		h.eng.Next()
	case "prev", "p":
		h.eng.Prev()
	case "bs":
		if !h.eng.HandleBackspace() {
			h.doc.Backspace()
			h.eng.TextChanged()
		}
	case "esc":
		h.eng.Cancel()
	case "blur":
		return h.eng.Blur()
	case "open":
		return h.eng.Open()
	case "close":
		return h.eng.Close()
	case "toggle":
		return h.eng.Toggle()
	case "caret":
		pos, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return errors.Newf("caret needs a number: %q", arg)
		}
		if err := h.doc.MoveCaret(pos); err != nil {
			return err
		}
		h.eng.TextChanged()
	case "clear":
		h.doc.SetText("")
		h.eng.TextChanged()
	case "help":
		fmt.Fprintln(h.out, help)
	default:
		return errors.Newf("unknown command %q", cmd)
	}
	return nil
}

func (h *InputHandler) print(snap present.Snapshot) {
	fmt.Fprintln(h.out, Render(h.doc.Render(), snap))
}

// Render formats a document line followed by the visible rows.
func Render(doc string, snap present.Snapshot) string {
	var b strings.Builder
	b.WriteString(docStyle.Render(doc))
	switch snap.Status {
	case present.Closed:
		return b.String()
	case present.Loading:
		if snap.List.Empty() {
			b.WriteString("\n  " + dimStyle.Render("searching..."))
			return b.String()
		}
	}
	if snap.List.Empty() {
		b.WriteString("\n  " + dimStyle.Render("no matches"))
		return b.String()
	}
	for i := 0; i < snap.List.Len(); i++ {
		row, _ := snap.List.Row(i)
		line := fmt.Sprintf("%2d. %s", i+1, label(row))
		if i == snap.Highlight {
			line = highlightStyle.Render(line)
		} else {
			line = rowStyle.Render(line)
		}
		b.WriteString("\n  " + line)
	}
	return b.String()
}

func label(row candidate.Row) string {
	switch {
	case row.Type == mention.ItemTrigger:
		return row.DisplayValue + " " + dimStyle.Render("(trigger)")
	case row.Creatable:
		return row.DisplayValue + " " + dimStyle.Render("(new)")
	case row.Type == mention.ItemAdditional:
		return row.DisplayValue + " " + dimStyle.Render("(extra)")
	default:
		return row.DisplayValue
	}
}
