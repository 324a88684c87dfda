/*
Package config manages the TOML configuration of mentionserve.

The file mirrors engine.Options: a [mentions] table for detection and
candidate rules, exactly one of [menu] or [combobox] for the presentation
mode, plus [catalog], [search] and [server] tables for the binary.
*/
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/bastiangx/mentionserve/internal/utils"
	"github.com/bastiangx/mentionserve/pkg/boundary"
	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/dispatch"
	"github.com/bastiangx/mentionserve/pkg/engine"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// Config holds the entire config structure
type Config struct {
	Mentions MentionsConfig  `toml:"mentions"`
	Menu     *MenuConfig     `toml:"menu,omitempty"`
	Combobox *ComboboxConfig `toml:"combobox,omitempty"`
	Catalog  CatalogConfig   `toml:"catalog"`
	Search   SearchConfig    `toml:"search"`
	Server   ServerConfig    `toml:"server"`
}

// MentionsConfig holds detection and assembly options.
type MentionsConfig struct {
	Triggers    []string `toml:"triggers"`
	Punctuation string   `toml:"punctuation"`
	AllowSpaces bool     `toml:"allow_spaces"`
	// Enclosure is empty or an [open, close] pair of single characters.
	Enclosure []string `toml:"enclosure"`

	Creatable         bool   `toml:"creatable"`
	CreatableTemplate string `toml:"creatable_template"`
	// CreatableByTrigger maps a trigger to false (disabled), true (default
	// template) or a template string.
	CreatableByTrigger map[string]any `toml:"creatable_by_trigger"`

	// MenuItemLimit caps the rows per trigger; -1 is unlimited.
	MenuItemLimit          int            `toml:"menu_item_limit"`
	MenuItemLimitByTrigger map[string]int `toml:"menu_item_limit_by_trigger"`

	ShowMentionsOnDelete             bool   `toml:"show_mentions_on_delete"`
	ShowCurrentMentionsAsSuggestions bool   `toml:"show_current_mentions_as_suggestions"`
	SearchDelayMS                    int    `toml:"search_delay_ms"`
	Match                            string `toml:"match"`
	MaxQueryLength                   int    `toml:"max_query_length"`
}

// MenuConfig holds caret-anchored menu options.
type MenuConfig struct {
	InsertOnBlur bool `toml:"insert_on_blur"`
}

// ComboboxConfig holds detached combobox options.
type ComboboxConfig struct {
	AdditionalItems []AdditionalItem `toml:"additional_items"`
}

// AdditionalItem is a fixed combobox row.
type AdditionalItem struct {
	Value   string         `toml:"value"`
	Display string         `toml:"display,omitempty"`
	Data    map[string]any `toml:"data,omitempty"`
}

// CatalogConfig points at static item files.
type CatalogConfig struct {
	// Path is a TOML file or a directory of them, relative to the config file.
	Path string `toml:"path"`
}

// SearchConfig enables search mode.
type SearchConfig struct {
	// DBPath is a SQLite database; when set the engine runs in search mode.
	DBPath     string `toml:"db_path"`
	FetchLimit int    `toml:"fetch_limit"`
}

// ServerConfig has IPC server options.
type ServerConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxTextLength     int     `toml:"max_text_length"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Mentions: MentionsConfig{
			Triggers:                         []string{"@", "#"},
			AllowSpaces:                      true,
			CreatableTemplate:                candidate.DefaultCreatableTemplate,
			MenuItemLimit:                    candidate.DefaultLimit,
			ShowCurrentMentionsAsSuggestions: true,
			SearchDelayMS:                    int(dispatch.DefaultDelay / time.Millisecond),
			Match:                            suggest.MatchSubstring.String(),
			MaxQueryLength:                   boundary.DefaultMaxLength,
		},
		Menu: &MenuConfig{InsertOnBlur: true},
		Catalog: CatalogConfig{
			Path: "mentions.toml",
		},
		Search: SearchConfig{
			FetchLimit: 100,
		},
		Server: ServerConfig{
			RequestsPerSecond: 200,
			Burst:             50,
			MaxTextLength:     65536,
		},
	}
}

// GetConfigDir returns the first writable config directory, falling back to
// the executable directory.
func GetConfigDir() (string, error) {
	for _, dir := range utils.ConfigDirCandidates() {
		if res := utils.CheckDirStatus(dir); res.Writable {
			return dir, nil
		}
	}
	return "", errors.New("no writable config directory")
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from the -config flag
// 2. Default path: [UserConfigDir]/mentionserve/config.toml
// 3. Builtin defaults
//
// A configuration conflict is never papered over by a fallback.
func LoadConfigWithPriority(customPath string) (*Config, string, error) {
	if customPath != "" {
		if _, statErr := os.Stat(customPath); statErr == nil {
			cfg, err := LoadConfig(customPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customPath)
				return cfg, customPath, nil
			}
			if errors.Is(err, engine.ErrConfigurationConflict) {
				return nil, customPath, err
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customPath, err)
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customPath, statErr)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}
	cfg, err := InitConfig(defaultPath)
	if err != nil {
		return nil, defaultPath, err
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return cfg, defaultPath, nil
}

// InitConfig loads config from path or writes the defaults there if missing.
func InitConfig(path string) (*Config, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		log.Warnf("Failed to create config directory for %s: %v. Using built-in defaults...", path, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(path) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", path, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", path)
		return cfg, nil
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		if errors.Is(err, engine.ErrConfigurationConflict) {
			return nil, err
		}
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", path, err)
		return DefaultConfig(), nil
	}
	return cfg, nil
}

// LoadConfig loads a TOML file over the defaults. Syntax errors fall back to
// a per-key partial parse; defining both [menu] and [combobox] is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := utils.LoadTOMLFile(path, cfg)
	if err != nil {
		return tryPartialParse(path)
	}
	if err := cfg.applyModeTables(md.IsDefined("menu"), md.IsDefined("combobox")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyModeTables resolves the menu/combobox union after decoding over the
// defaults, which always carry a menu table.
func (c *Config) applyModeTables(menu, combobox bool) error {
	if menu && combobox {
		return errors.WithHint(
			errors.Wrap(engine.ErrConfigurationConflict, "both [menu] and [combobox] are defined"),
			"keep only one of the two tables",
		)
	}
	if combobox {
		c.Menu = nil
		if c.Combobox == nil {
			c.Combobox = &ComboboxConfig{}
		}
	}
	return nil
}

// tryPartialParse recovers what it can from a file the struct decoder
// rejected, for example because of a type mismatch.
func tryPartialParse(path string) (*Config, error) {
	cfg := DefaultConfig()

	raw, err := utils.ParseTOMLWithRecovery(path)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", path, err)
		return cfg, nil
	}

	if section, ok := utils.ExtractSection(raw, "mentions"); ok {
		extractMentionsConfig(section, &cfg.Mentions)
	}
	menu, hasMenu := utils.ExtractSection(raw, "menu")
	combobox, hasCombobox := utils.ExtractSection(raw, "combobox")
	if hasMenu {
		if v, ok := utils.ExtractBool(menu, "insert_on_blur"); ok {
			cfg.Menu.InsertOnBlur = v
		}
	}
	if err := cfg.applyModeTables(hasMenu, hasCombobox); err != nil {
		return nil, err
	}
	if hasCombobox {
		cfg.Combobox.AdditionalItems = extractAdditionalItems(combobox)
	}
	if section, ok := utils.ExtractSection(raw, "catalog"); ok {
		if v, ok := utils.ExtractString(section, "path"); ok {
			cfg.Catalog.Path = v
		}
	}
	if section, ok := utils.ExtractSection(raw, "search"); ok {
		if v, ok := utils.ExtractString(section, "db_path"); ok {
			cfg.Search.DBPath = v
		}
		if v, ok := utils.ExtractInt64(section, "fetch_limit"); ok {
			cfg.Search.FetchLimit = v
		}
	}
	if section, ok := utils.ExtractSection(raw, "server"); ok {
		extractServerConfig(section, &cfg.Server)
	}

	if err := cfg.Validate(); err != nil {
		log.Warnf("Recovered config from %s is invalid: %v. Using all defaults.", path, err)
		return DefaultConfig(), nil
	}
	return cfg, nil
}

func extractMentionsConfig(data map[string]any, m *MentionsConfig) {
	if v, ok := utils.ExtractStrings(data, "triggers"); ok {
		m.Triggers = v
	}
	if v, ok := utils.ExtractString(data, "punctuation"); ok {
		m.Punctuation = v
	}
	if v, ok := utils.ExtractBool(data, "allow_spaces"); ok {
		m.AllowSpaces = v
	}
	if v, ok := utils.ExtractStrings(data, "enclosure"); ok {
		m.Enclosure = v
	}
	if v, ok := utils.ExtractBool(data, "creatable"); ok {
		m.Creatable = v
	}
	if v, ok := utils.ExtractString(data, "creatable_template"); ok {
		m.CreatableTemplate = v
	}
	if v, ok := data["creatable_by_trigger"].(map[string]any); ok {
		m.CreatableByTrigger = v
	}
	if v, ok := utils.ExtractInt64(data, "menu_item_limit"); ok {
		m.MenuItemLimit = v
	}
	if v, ok := utils.ExtractBool(data, "menu_item_limit"); ok && !v {
		m.MenuItemLimit = candidate.Unlimited
	}
	if v, ok := utils.ExtractIntMap(data, "menu_item_limit_by_trigger"); ok {
		m.MenuItemLimitByTrigger = v
	}
	if v, ok := utils.ExtractBool(data, "show_mentions_on_delete"); ok {
		m.ShowMentionsOnDelete = v
	}
	if v, ok := utils.ExtractBool(data, "show_current_mentions_as_suggestions"); ok {
		m.ShowCurrentMentionsAsSuggestions = v
	}
	if v, ok := utils.ExtractInt64(data, "search_delay_ms"); ok {
		m.SearchDelayMS = v
	}
	if v, ok := utils.ExtractString(data, "match"); ok {
		m.Match = v
	}
	if v, ok := utils.ExtractInt64(data, "max_query_length"); ok {
		m.MaxQueryLength = v
	}
}

func extractAdditionalItems(data map[string]any) []AdditionalItem {
	var entries []map[string]any
	switch arr := data["additional_items"].(type) {
	case []map[string]any:
		entries = arr
	case []any:
		for _, v := range arr {
			if m, ok := v.(map[string]any); ok {
				entries = append(entries, m)
			}
		}
	}
	out := make([]AdditionalItem, 0, len(entries))
	for _, entry := range entries {
		value, ok := utils.ExtractString(entry, "value")
		if !ok {
			continue
		}
		display, _ := utils.ExtractString(entry, "display")
		md, _ := utils.ExtractSection(entry, "data")
		out = append(out, AdditionalItem{Value: value, Display: display, Data: md})
	}
	return out
}

func extractServerConfig(data map[string]any, s *ServerConfig) {
	if v, ok := utils.ExtractFloat(data, "requests_per_second"); ok {
		s.RequestsPerSecond = v
	}
	if v, ok := utils.ExtractInt64(data, "burst"); ok {
		s.Burst = v
	}
	if v, ok := utils.ExtractInt64(data, "max_text_length"); ok {
		s.MaxTextLength = v
	}
}

// Validate checks the file-level shape, then the engine rules.
func (c *Config) Validate() error {
	if c.Menu != nil && c.Combobox != nil {
		return errors.Wrap(engine.ErrConfigurationConflict, "both menu and combobox configured")
	}
	if _, err := c.enclosure(); err != nil {
		return err
	}
	for trigger, v := range c.Mentions.CreatableByTrigger {
		switch v.(type) {
		case bool, string:
		default:
			return errors.Newf("creatable_by_trigger[%q]: want bool or string, got %T", trigger, v)
		}
	}
	if _, err := c.additionalItems(); err != nil {
		return err
	}
	opts, err := c.EngineOptions()
	if err != nil {
		return err
	}
	return opts.Validate()
}

func (c *Config) enclosure() (*boundary.Enclosure, error) {
	enc := c.Mentions.Enclosure
	if len(enc) == 0 {
		return nil, nil
	}
	if len(enc) != 2 || utf8.RuneCountInString(enc[0]) != 1 || utf8.RuneCountInString(enc[1]) != 1 {
		return nil, errors.WithHint(
			errors.Wrapf(boundary.ErrInvalidBoundary, "enclosure %q", enc),
			`use a pair of single characters, e.g. ["[", "]"]`,
		)
	}
	open, _ := utf8.DecodeRuneInString(enc[0])
	closing, _ := utf8.DecodeRuneInString(enc[1])
	return &boundary.Enclosure{Open: open, Close: closing}, nil
}

func (c *Config) additionalItems() ([]mention.ComboboxItem, error) {
	if c.Combobox == nil {
		return nil, nil
	}
	out := make([]mention.ComboboxItem, 0, len(c.Combobox.AdditionalItems))
	for _, it := range c.Combobox.AdditionalItems {
		md, err := mention.MetadataFromMap(it.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "additional item %q", it.Value)
		}
		out = append(out, mention.ComboboxItem{
			Type:         mention.ItemAdditional,
			Value:        it.Value,
			DisplayValue: it.Display,
			Data:         md,
		})
	}
	return out, nil
}

func (c *Config) creatable() candidate.Creatable {
	m := c.Mentions
	out := candidate.Creatable{
		Default: candidate.CreatableRule{Enabled: m.Creatable, Template: m.CreatableTemplate},
	}
	if len(m.CreatableByTrigger) == 0 {
		return out
	}
	out.ByTrigger = make(map[string]candidate.CreatableRule, len(m.CreatableByTrigger))
	for trigger, v := range m.CreatableByTrigger {
		switch v := v.(type) {
		case bool:
			out.ByTrigger[trigger] = candidate.CreatableRule{Enabled: v, Template: m.CreatableTemplate}
		case string:
			out.ByTrigger[trigger] = candidate.CreatableRule{Enabled: true, Template: v}
		}
	}
	return out
}

// MatchMode returns the static matching mode.
func (c *Config) MatchMode() suggest.MatchMode {
	return suggest.ParseMatchMode(c.Mentions.Match)
}

// EngineOptions converts the file form into engine options. Item sources,
// callbacks and the logger are left for the caller.
func (c *Config) EngineOptions() (engine.Options, error) {
	enc, err := c.enclosure()
	if err != nil {
		return engine.Options{}, err
	}
	extra, err := c.additionalItems()
	if err != nil {
		return engine.Options{}, err
	}

	m := c.Mentions
	opts := engine.DefaultOptions()
	opts.Triggers = m.Triggers
	opts.Punctuation = m.Punctuation
	opts.AllowSpaces = m.AllowSpaces
	opts.Enclosure = enc
	opts.MaxQueryLength = m.MaxQueryLength
	opts.Creatable = c.creatable()
	opts.Limit = candidate.Limit{Default: m.MenuItemLimit, ByTrigger: m.MenuItemLimitByTrigger}
	opts.ShowMentionsOnDelete = m.ShowMentionsOnDelete
	opts.ShowCurrentMentions = m.ShowCurrentMentionsAsSuggestions
	opts.SearchDelay = time.Duration(m.SearchDelayMS) * time.Millisecond

	if c.Menu != nil {
		opts.Menu = &engine.MenuOptions{InsertOnBlur: c.Menu.InsertOnBlur}
	}
	if c.Combobox != nil {
		opts.Combobox = &engine.ComboboxOptions{AdditionalItems: extra}
	}
	return opts, nil
}

// CatalogPath resolves the catalog path against the config file location.
func (c *Config) CatalogPath(configPath string) string {
	return utils.ResolveRelative(configPath, c.Catalog.Path)
}

// SearchDBPath resolves the database path against the config file location.
func (c *Config) SearchDBPath(configPath string) string {
	if c.Search.DBPath == ":memory:" {
		return c.Search.DBPath
	}
	return utils.ResolveRelative(configPath, c.Search.DBPath)
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	path, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return SaveConfig(DefaultConfig(), path)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(path string) string {
	if path == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(path)
}

// SaveConfig saves into a TOML file
func SaveConfig(c *Config, path string) error {
	return utils.SaveTOMLFile(c, path)
}

// Encode renders the config as TOML, used by the CLI to print it.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
