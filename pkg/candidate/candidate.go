// Package candidate turns retrieved items into the rows a menu or combobox
// presents.
//
// Assembly runs in a fixed order: organic items, then mentions already in the
// document, then the synthetic creatable entry, then combobox extras. The
// per-trigger limit is applied last, so later stages are the first to be
// pushed out.
package candidate

import (
	"strings"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/suggest"
)

const (
	// DefaultCreatableTemplate renders the creatable entry; {{name}} is the query.
	DefaultCreatableTemplate = "Add '{{name}}'"
	// NamePlaceholder is substituted by the query in creatable templates.
	NamePlaceholder = "{{name}}"
	// DefaultLimit is the default number of rows per trigger.
	DefaultLimit = 5
	// Unlimited disables truncation. Any negative limit means the same.
	Unlimited = -1
)

// CreatableRule controls the synthetic entry for one trigger.
type CreatableRule struct {
	Enabled  bool
	Template string
}

// Render returns the display text for query.
func (r CreatableRule) Render(query string) string {
	tpl := r.Template
	if tpl == "" {
		tpl = DefaultCreatableTemplate
	}
	return strings.ReplaceAll(tpl, NamePlaceholder, query)
}

// Creatable holds the default rule plus per-trigger overrides.
type Creatable struct {
	Default   CreatableRule
	ByTrigger map[string]CreatableRule
}

func (c Creatable) For(trigger string) CreatableRule {
	if r, ok := c.ByTrigger[trigger]; ok {
		return r
	}
	return c.Default
}

// Limit holds the default row limit plus per-trigger overrides.
type Limit struct {
	Default   int
	ByTrigger map[string]int
}

// For returns the limit for trigger; negative means unlimited.
func (l Limit) For(trigger string) int {
	if n, ok := l.ByTrigger[trigger]; ok {
		return n
	}
	return l.Default
}

// Config is the assembler configuration.
type Config struct {
	Mode                mention.Mode
	Triggers            []string
	Creatable           Creatable
	Limit               Limit
	ShowCurrentMentions bool
	// AdditionalItems are appended in combobox mode regardless of the query.
	AdditionalItems []mention.ComboboxItem
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                mention.ModeMenu,
		Limit:               Limit{Default: DefaultLimit},
		ShowCurrentMentions: true,
	}
}

// Input is everything one assembly needs.
type Input struct {
	// Active is false when no trigger is in scope (combobox only).
	Active  bool
	Trigger string
	Query   mention.Query
	// Items are the organic results, already filtered by the source.
	Items []mention.Item
	// Current are the mention tokens present in the document.
	Current []mention.Token
}

// List is an assembled, render-ready list. Exactly one of Menu or Combobox is
// populated depending on the mode. A List is never mutated after assembly, so
// pointer identity tells a presenter whether the rows changed.
type List struct {
	Trigger  string
	Query    mention.Query
	Active   bool
	Menu     []mention.MenuItem
	Combobox []mention.ComboboxItem
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Menu) + len(l.Combobox)
}

// Empty reports whether the list has no rows.
func (l *List) Empty() bool { return l.Len() == 0 }

type entry struct {
	kind      mention.ItemType
	value     string
	display   string
	data      mention.Metadata
	creatable bool
}

// Assembler builds Lists from Inputs.
type Assembler struct {
	cfg Config
}

func New(cfg Config) *Assembler {
	return &Assembler{cfg: cfg}
}

func (a *Assembler) Config() Config { return a.cfg }

// Assemble runs the pipeline for in.
func (a *Assembler) Assemble(in Input) *List {
	var entries []entry
	if in.Active {
		entries = a.triggered(in)
	} else if a.cfg.Mode == mention.ModeCombobox {
		entries = a.idle()
	}
	return a.build(in, entries)
}

// Empty returns a list for in with no rows, not even synthetic ones.
func (a *Assembler) Empty(in Input) *List {
	return a.build(in, nil)
}

func (a *Assembler) triggered(in Input) []entry {
	entries := make([]entry, 0, len(in.Items)+1)
	seen := make(map[string]struct{}, len(in.Items))

	for _, it := range in.Items {
		seen[mention.Key(in.Trigger, it.Value)] = struct{}{}
		entries = append(entries, entry{kind: mention.ItemValue, value: it.Value, display: it.Value, data: it.Data})
	}

	if a.cfg.ShowCurrentMentions {
		needle := suggest.Fold(in.Query.Text())
		for _, tok := range in.Current {
			if tok.Trigger != in.Trigger {
				continue
			}
			if _, dup := seen[tok.Key()]; dup {
				continue
			}
			if needle != "" && !strings.Contains(suggest.Fold(tok.Value), needle) {
				continue
			}
			seen[tok.Key()] = struct{}{}
			entries = append(entries, entry{kind: mention.ItemValue, value: tok.Value, display: tok.Value, data: tok.Data})
		}
	}

	if rule := a.cfg.Creatable.For(in.Trigger); rule.Enabled && !in.Query.IsBlank() {
		q := in.Query.Text()
		exists := false
		for _, e := range entries {
			if e.value == q {
				exists = true
				break
			}
		}
		if !exists {
			entries = append(entries, entry{
				kind:      mention.ItemValue,
				value:     q,
				display:   rule.Render(q),
				creatable: true,
			})
		}
	}

	if a.cfg.Mode == mention.ModeCombobox {
		entries = append(entries, a.additional()...)
	}

	if limit := a.cfg.Limit.For(in.Trigger); limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// idle lists one row per trigger followed by the extras.
func (a *Assembler) idle() []entry {
	entries := make([]entry, 0, len(a.cfg.Triggers)+len(a.cfg.AdditionalItems))
	for _, t := range a.cfg.Triggers {
		entries = append(entries, entry{kind: mention.ItemTrigger, value: t, display: t})
	}
	return append(entries, a.additional()...)
}

func (a *Assembler) additional() []entry {
	out := make([]entry, 0, len(a.cfg.AdditionalItems))
	for _, it := range a.cfg.AdditionalItems {
		display := it.DisplayValue
		if display == "" {
			display = it.Value
		}
		out = append(out, entry{kind: mention.ItemAdditional, value: it.Value, display: display, data: it.Data})
	}
	return out
}

func (a *Assembler) build(in Input, entries []entry) *List {
	l := &List{Trigger: in.Trigger, Query: in.Query, Active: in.Active}
	if a.cfg.Mode == mention.ModeCombobox {
		l.Combobox = make([]mention.ComboboxItem, len(entries))
		for i, e := range entries {
			l.Combobox[i] = mention.ComboboxItem{
				Type:         e.kind,
				Value:        e.value,
				DisplayValue: e.display,
				Data:         e.data,
				Creatable:    e.creatable,
			}
		}
		return l
	}
	l.Menu = make([]mention.MenuItem, len(entries))
	for i, e := range entries {
		l.Menu[i] = mention.MenuItem{
			Trigger:      in.Trigger,
			Value:        e.value,
			DisplayValue: e.display,
			Data:         e.data,
			Creatable:    e.creatable,
		}
	}
	return l
}

// Row is a mode-independent view of one list entry.
type Row struct {
	Type         mention.ItemType
	Trigger      string
	Value        string
	DisplayValue string
	Data         mention.Metadata
	Creatable    bool
}

// Row returns entry i of the list.
func (l *List) Row(i int) (Row, bool) {
	if l == nil || i < 0 || i >= l.Len() {
		return Row{}, false
	}
	if l.Combobox != nil {
		it := l.Combobox[i]
		trigger := l.Trigger
		if it.Type == mention.ItemTrigger {
			trigger = it.Value
		}
		return Row{
			Type:         it.Type,
			Trigger:      trigger,
			Value:        it.Value,
			DisplayValue: it.DisplayValue,
			Data:         it.Data,
			Creatable:    it.Creatable,
		}, true
	}
	it := l.Menu[i]
	return Row{
		Type:         mention.ItemValue,
		Trigger:      it.Trigger,
		Value:        it.Value,
		DisplayValue: it.DisplayValue,
		Data:         it.Data,
		Creatable:    it.Creatable,
	}, true
}
