package engine

import (
	"time"

	"github.com/bastiangx/mentionserve/pkg/boundary"
	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/dispatch"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/present"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// ErrConfigurationConflict is returned when mutually exclusive options are
// combined: menu with combobox options, or a static with a search source.
var ErrConfigurationConflict = errors.New("configuration conflict")

// MenuOptions configures the caret-anchored menu.
type MenuOptions struct {
	// InsertOnBlur selects the highlighted item when the editor loses focus.
	InsertOnBlur bool
}

// ComboboxOptions configures the detached combobox.
type ComboboxOptions struct {
	// AdditionalItems are fixed rows appended after the candidates.
	AdditionalItems []mention.ComboboxItem
}

// Selection is passed to OnSelect.
type Selection struct {
	Row candidate.Row
	// Token is the inserted mention, nil for trigger and additional rows.
	Token *mention.Token
	Caret int
}

// Callbacks are invoked after the engine releases its lock, so they may call
// back into the engine.
type Callbacks struct {
	// OnChange fires once for every transition that alters what is rendered.
	OnChange      func(present.Change)
	OnOpen        func(present.Snapshot)
	OnClose       func(present.Snapshot)
	OnSelect      func(Selection)
	OnFocusChange func(row candidate.Row, ok bool)
}

// Options configures an Engine. Start from DefaultOptions.
//
// Menu and Combobox form a union: set at most one of them. With neither set
// the engine runs a menu with InsertOnBlur enabled. Static and Search are
// likewise exclusive.
type Options struct {
	Triggers       []string
	Punctuation    string
	AllowSpaces    bool
	Enclosure      *boundary.Enclosure
	MaxQueryLength int

	Creatable            candidate.Creatable
	Limit                candidate.Limit
	ShowMentionsOnDelete bool
	ShowCurrentMentions  bool

	Static dispatch.StaticSource
	Search dispatch.Searcher
	// SearchDelay is the debounce window; zero disables debouncing.
	SearchDelay time.Duration
	Scheduler   dispatch.Scheduler

	Menu     *MenuOptions
	Combobox *ComboboxOptions

	Callbacks Callbacks
	Logger    *log.Logger
}

// DefaultOptions returns the documented defaults with a single "@" trigger.
func DefaultOptions() Options {
	return Options{
		Triggers:            []string{"@"},
		AllowSpaces:         true,
		MaxQueryLength:      boundary.DefaultMaxLength,
		Limit:               candidate.Limit{Default: candidate.DefaultLimit},
		ShowCurrentMentions: true,
		SearchDelay:         dispatch.DefaultDelay,
	}
}

// Mode returns the presentation mode the options select.
func (o Options) Mode() mention.Mode {
	if o.Combobox != nil {
		return mention.ModeCombobox
	}
	return mention.ModeMenu
}

// Validate checks the option unions and the boundary rules.
func (o Options) Validate() error {
	if o.Menu != nil && o.Combobox != nil {
		return errors.WithHint(
			errors.Wrap(ErrConfigurationConflict, "both menu and combobox options supplied"),
			"configure exactly one presentation mode",
		)
	}
	if o.Static != nil && o.Search != nil {
		return errors.WithHint(
			errors.Wrap(ErrConfigurationConflict, "both static items and a search source supplied"),
			"configure exactly one item source",
		)
	}
	return boundary.Validate(o.rules(), o.Triggers)
}

func (o Options) rules() boundary.Rules {
	return boundary.Rules{
		Punctuation: o.Punctuation,
		AllowSpaces: o.AllowSpaces,
		Enclosure:   o.Enclosure,
		MaxLength:   o.MaxQueryLength,
	}
}

func (o Options) insertOnBlur() bool {
	if o.Combobox != nil {
		return false
	}
	if o.Menu == nil {
		return true
	}
	return o.Menu.InsertOnBlur
}

func (o Options) assemblerConfig() candidate.Config {
	cfg := candidate.Config{
		Mode:                o.Mode(),
		Triggers:            o.Triggers,
		Creatable:           o.Creatable,
		Limit:               o.Limit,
		ShowCurrentMentions: o.ShowCurrentMentions,
	}
	if o.Combobox != nil {
		cfg.AdditionalItems = o.Combobox.AdditionalItems
	}
	return cfg
}
