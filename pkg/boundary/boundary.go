// Package boundary decides where a mention may start and where its query ends.
package boundary

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/cockroachdb/errors"
)

// DefaultPunctuation is the boundary character set used when none is configured.
const DefaultPunctuation = `.,*?$|#{}()^[]\/!%'"~=<>_:;`

// DefaultMaxLength is the hard query length limit, in runes.
const DefaultMaxLength = 75

// ErrInvalidBoundary is returned for rule sets that would make scanning ambiguous.
var ErrInvalidBoundary = errors.New("invalid boundary configuration")

// Enclosure is a delimiter pair that lets a query contain whitespace.
type Enclosure struct {
	Open  rune
	Close rune
}

// Rules configures the classifier.
type Rules struct {
	// Punctuation lists the boundary characters. Empty selects DefaultPunctuation
	// without the trigger and enclosure characters.
	Punctuation string
	AllowSpaces bool
	// Enclosure is honoured only when AllowSpaces is set.
	Enclosure *Enclosure
	// MaxLength caps the query length in runes. Zero selects DefaultMaxLength.
	MaxLength int
}

// Classifier answers start/end questions for one rule set and trigger set.
type Classifier struct {
	rules        Rules
	punctuation  map[rune]struct{}
	triggerRunes map[rune]struct{}
}

// New validates rules against the configured triggers and builds a Classifier.
func New(rules Rules, triggers []string) (*Classifier, error) {
	rules.Punctuation = effectivePunctuation(rules, triggers)
	if rules.MaxLength <= 0 {
		rules.MaxLength = DefaultMaxLength
	}
	if err := Validate(rules, triggers); err != nil {
		return nil, err
	}

	c := &Classifier{
		rules:        rules,
		punctuation:  make(map[rune]struct{}, utf8.RuneCountInString(rules.Punctuation)),
		triggerRunes: make(map[rune]struct{}),
	}
	for _, r := range rules.Punctuation {
		c.punctuation[r] = struct{}{}
	}
	for _, t := range triggers {
		for _, r := range t {
			c.triggerRunes[r] = struct{}{}
		}
	}
	return c, nil
}

// Validate reports configuration errors up front instead of mid-scan.
func Validate(rules Rules, triggers []string) error {
	punct := effectivePunctuation(rules, triggers)
	if len(triggers) == 0 {
		return errors.WithHint(errors.Wrap(ErrInvalidBoundary, "no triggers configured"),
			`configure at least one trigger such as "@"`)
	}

	seen := make(map[string]struct{}, len(triggers))
	for _, t := range triggers {
		if t == "" {
			return errors.Wrap(ErrInvalidBoundary, "empty trigger")
		}
		if _, dup := seen[t]; dup {
			return errors.Wrapf(ErrInvalidBoundary, "duplicate trigger %q", t)
		}
		seen[t] = struct{}{}
		for _, r := range t {
			if unicode.IsSpace(r) || r == mention.Placeholder {
				return errors.Wrapf(ErrInvalidBoundary, "trigger %q contains whitespace", t)
			}
			if strings.ContainsRune(punct, r) {
				return errors.WithHint(
					errors.Wrapf(ErrInvalidBoundary, "trigger %q contains punctuation %q", t, string(r)),
					"remove the trigger characters from the punctuation list")
			}
		}
	}

	if enc := rules.Enclosure; enc != nil {
		if enc.Open == 0 || enc.Close == 0 {
			return errors.Wrap(ErrInvalidBoundary, "enclosure needs both delimiters")
		}
		if unicode.IsSpace(enc.Open) || unicode.IsSpace(enc.Close) {
			return errors.Wrap(ErrInvalidBoundary, "enclosure delimiters cannot be whitespace")
		}
		for _, t := range triggers {
			if strings.ContainsRune(t, enc.Open) || strings.ContainsRune(t, enc.Close) {
				return errors.Wrapf(ErrInvalidBoundary, "enclosure overlaps trigger %q", t)
			}
		}
		if strings.ContainsRune(punct, enc.Open) || strings.ContainsRune(punct, enc.Close) {
			return errors.WithHint(
				errors.Wrapf(ErrInvalidBoundary, "enclosure %q…%q overlaps the punctuation set",
					string(enc.Open), string(enc.Close)),
				"remove the delimiters from the punctuation list")
		}
	}
	return nil
}

// effectivePunctuation applies the default set. The default drops the
// enclosure delimiters and trigger characters; an explicit set is taken as
// is and validated.
func effectivePunctuation(rules Rules, triggers []string) string {
	if rules.Punctuation != "" {
		return rules.Punctuation
	}
	return strings.Map(func(r rune) rune {
		if enc := rules.Enclosure; enc != nil && (r == enc.Open || r == enc.Close) {
			return -1
		}
		for _, t := range triggers {
			if strings.ContainsRune(t, r) {
				return -1
			}
		}
		return r
	}, DefaultPunctuation)
}

// Rules returns the effective rules, defaults applied.
func (c *Classifier) Rules() Rules { return c.rules }

// MaxLength returns the hard query length in runes.
func (c *Classifier) MaxLength() int { return c.rules.MaxLength }

// IsPunctuation reports whether r is a configured boundary character.
func (c *Classifier) IsPunctuation(r rune) bool {
	_, ok := c.punctuation[r]
	return ok
}

// IsTriggerRune reports whether r appears in any trigger.
func (c *Classifier) IsTriggerRune(r rune) bool {
	_, ok := c.triggerRunes[r]
	return ok
}

// ValidStart reports whether a trigger may begin right after prev.
// atStart is true when there is no previous rune in the text run.
func (c *Classifier) ValidStart(prev rune, atStart bool) bool {
	if atStart || prev == mention.Placeholder {
		return true
	}
	if c.IsTriggerRune(prev) {
		return false
	}
	return unicode.IsSpace(prev) || c.IsPunctuation(prev)
}

// Enclosure returns the active enclosure, nil unless spaces are allowed.
func (c *Classifier) Enclosure() *Enclosure {
	if !c.rules.AllowSpaces {
		return nil
	}
	return c.rules.Enclosure
}

// Opens reports whether r opens the active enclosure.
func (c *Classifier) Opens(r rune) bool {
	enc := c.Enclosure()
	return enc != nil && r == enc.Open
}

// Terminates reports whether r ends a query. Inside an opened enclosure only
// the closing delimiter and hard breaks end it.
func (c *Classifier) Terminates(r rune, enclosed bool) bool {
	if r == '\n' || r == '\r' || r == mention.Placeholder {
		return true
	}
	if enclosed {
		return r == c.rules.Enclosure.Close
	}
	if c.IsPunctuation(r) {
		return true
	}
	return unicode.IsSpace(r) && !c.rules.AllowSpaces
}
