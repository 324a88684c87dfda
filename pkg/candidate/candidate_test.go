package candidate

import (
	"fmt"
	"testing"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func menuDisplays(l *List) []string {
	out := make([]string, len(l.Menu))
	for i, it := range l.Menu {
		out[i] = it.DisplayValue
	}
	return out
}

func comboRows(l *List) []string {
	out := make([]string, len(l.Combobox))
	for i, it := range l.Combobox {
		out[i] = it.Type.String() + ":" + it.DisplayValue
	}
	return out
}

func TestLimitProperty(t *testing.T) {
	for _, limit := range []int{0, 1, 3, 5, Unlimited} {
		for n := 0; n <= 8; n++ {
			t.Run(fmt.Sprintf("L=%d/N=%d", limit, n), func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.Limit = Limit{Default: limit}
				items := make([]mention.Item, n)
				for i := range items {
					items[i] = mention.Plain(fmt.Sprintf("item%d", i))
				}
				l := New(cfg).Assemble(Input{Active: true, Trigger: "@", Query: mention.NullQuery(), Items: items})

				want := n
				if limit >= 0 && n > limit {
					want = limit
				}
				assert.Equal(t, want, l.Len())
			})
		}
	}
}

func TestPerTriggerLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limit = Limit{Default: 2, ByTrigger: map[string]int{"#": Unlimited}}
	a := New(cfg)
	items := mention.Plains("a", "b", "c", "d")

	assert.Equal(t, 2, a.Assemble(Input{Active: true, Trigger: "@", Items: items}).Len())
	assert.Equal(t, 4, a.Assemble(Input{Active: true, Trigger: "#", Items: items}).Len())
}

func TestCreatableEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Creatable = Creatable{Default: CreatableRule{Enabled: true}}
	a := New(cfg)

	l := a.Assemble(Input{Active: true, Trigger: "#", Query: mention.QueryOf("urgent"), Items: mention.Plains("urgent-ish")})
	require.Equal(t, 2, l.Len())
	last := l.Menu[1]
	assert.True(t, last.Creatable)
	assert.Equal(t, "Add 'urgent'", last.DisplayValue)
	assert.Equal(t, "urgent", last.Value)
	assert.Equal(t, "#", last.Trigger)
}

func TestCreatableSuppressed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Creatable = Creatable{Default: CreatableRule{Enabled: true}}
	a := New(cfg)

	tests := []struct {
		name  string
		query mention.Query
		items []mention.Item
	}{
		{"null query", mention.NullQuery(), nil},
		{"empty query", mention.QueryOf(""), nil},
		{"exact organic match", mention.QueryOf("bug"), mention.Plains("bug", "bugfix")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := a.Assemble(Input{Active: true, Trigger: "#", Query: tc.query, Items: tc.items})
			for _, it := range l.Menu {
				assert.False(t, it.Creatable)
			}
		})
	}

	// case-sensitive comparison: "Bug" is still creatable next to "bug"
	l := a.Assemble(Input{Active: true, Trigger: "#", Query: mention.QueryOf("Bug"), Items: mention.Plains("bug")})
	require.Equal(t, 2, l.Len())
	assert.True(t, l.Menu[1].Creatable)
}

func TestCreatablePerTriggerTemplate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Creatable = Creatable{
		Default: CreatableRule{Enabled: true},
		ByTrigger: map[string]CreatableRule{
			"#": {Enabled: true, Template: "Create tag {{name}}"},
			"@": {Enabled: false},
			"/": {Enabled: true, Template: "New command"},
		},
	}
	a := New(cfg)

	l := a.Assemble(Input{Active: true, Trigger: "#", Query: mention.QueryOf("x")})
	assert.Equal(t, []string{"Create tag x"}, menuDisplays(l))

	l = a.Assemble(Input{Active: true, Trigger: "@", Query: mention.QueryOf("x")})
	assert.Empty(t, l.Menu)

	l = a.Assemble(Input{Active: true, Trigger: "/", Query: mention.QueryOf("x")})
	assert.Equal(t, []string{"New command"}, menuDisplays(l))

	l = a.Assemble(Input{Active: true, Trigger: ":", Query: mention.QueryOf("x")})
	assert.Equal(t, []string{"Add 'x'"}, menuDisplays(l))
}

func TestCurrentMentions(t *testing.T) {
	cfg := DefaultConfig()
	a := New(cfg)
	current := []mention.Token{
		{Trigger: "@", Value: "alice"},
		{Trigger: "@", Value: "Alfred"},
		{Trigger: "#", Value: "alpha"},
		{Trigger: "@", Value: "bob"},
		{Trigger: "@", Value: "Alfred"},
	}

	l := a.Assemble(Input{
		Active:  true,
		Trigger: "@",
		Query:   mention.QueryOf("al"),
		Items:   mention.Plains("alice", "alan"),
		Current: current,
	})
	assert.Equal(t, []string{"alice", "alan", "Alfred"}, menuDisplays(l))

	cfg.ShowCurrentMentions = false
	l = New(cfg).Assemble(Input{Active: true, Trigger: "@", Query: mention.QueryOf("al"), Current: current})
	assert.Empty(t, l.Menu)
}

func TestPriorityUnderTruncation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = mention.ModeCombobox
	cfg.Limit = Limit{Default: 3}
	cfg.Creatable = Creatable{Default: CreatableRule{Enabled: true}}
	cfg.AdditionalItems = []mention.ComboboxItem{{Value: "help", DisplayValue: "Help"}}
	a := New(cfg)

	in := Input{
		Active:  true,
		Trigger: "@",
		Query:   mention.QueryOf("a"),
		Items:   mention.Plains("ann"),
		Current: []mention.Token{{Trigger: "@", Value: "dana"}},
	}
	l := a.Assemble(in)
	assert.Equal(t, []string{"value:ann", "value:dana", "value:Add 'a'"}, comboRows(l))

	in.Items = mention.Plains("ann", "abe")
	l = a.Assemble(in)
	assert.Equal(t, []string{"value:ann", "value:abe", "value:dana"}, comboRows(l))

	cfg.Limit = Limit{Default: Unlimited}
	l = New(cfg).Assemble(in)
	assert.Equal(t, []string{"value:ann", "value:abe", "value:dana", "value:Add 'a'", "additional:Help"}, comboRows(l))
}

func TestComboboxIdleRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = mention.ModeCombobox
	cfg.Triggers = []string{"@", "#"}
	cfg.Limit = Limit{Default: 1}
	cfg.AdditionalItems = []mention.ComboboxItem{{Value: "help"}}

	l := New(cfg).Assemble(Input{})
	assert.Equal(t, []string{"trigger:@", "trigger:#", "additional:help"}, comboRows(l))

	row, ok := l.Row(1)
	require.True(t, ok)
	assert.Equal(t, mention.ItemTrigger, row.Type)
	assert.Equal(t, "#", row.Trigger)
}

func TestMenuIdleIsEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Triggers = []string{"@"}
	l := New(cfg).Assemble(Input{})
	assert.True(t, l.Empty())
	_, ok := l.Row(0)
	assert.False(t, ok)
}

func TestOrderPreserved(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limit = Limit{Default: Unlimited}
	items := mention.Plains("zulu", "alpha", "mike")
	l := New(cfg).Assemble(Input{Active: true, Trigger: "@", Items: items})
	assert.Equal(t, []string{"zulu", "alpha", "mike"}, menuDisplays(l))
}
