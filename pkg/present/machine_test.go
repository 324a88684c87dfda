package present

import (
	"testing"

	"github.com/bastiangx/mentionserve/pkg/candidate"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func menuList(values ...string) *candidate.List {
	l := &candidate.List{Trigger: "@", Active: true}
	for _, v := range values {
		l.Menu = append(l.Menu, mention.MenuItem{Trigger: "@", Value: v, DisplayValue: v})
	}
	return l
}

func comboList(values ...string) *candidate.List {
	l := &candidate.List{Trigger: "@", Active: true, Combobox: []mention.ComboboxItem{}}
	for _, v := range values {
		l.Combobox = append(l.Combobox, mention.ComboboxItem{Type: mention.ItemValue, Value: v, DisplayValue: v})
	}
	return l
}

func TestMenuLifecycle(t *testing.T) {
	m := NewMachine(mention.ModeMenu)

	c, ok := m.Load("@")
	require.True(t, ok)
	assert.True(t, c.Opened)
	assert.Equal(t, Loading, c.Snapshot.Status)

	_, ok = m.Load("@")
	assert.False(t, ok, "repeated load is a no-op")

	l := menuList("alice", "bob")
	c, ok = m.Show(l)
	require.True(t, ok)
	assert.False(t, c.Opened)
	assert.True(t, c.ItemsChanged)
	assert.True(t, c.StatusChanged)
	assert.Equal(t, 0, c.Snapshot.Highlight)

	_, ok = m.Show(l)
	assert.False(t, ok, "same list reference is a no-op")

	c, ok = m.Close()
	require.True(t, ok)
	assert.True(t, c.Closed)
	assert.Nil(t, c.Snapshot.List)

	_, ok = m.Close()
	assert.False(t, ok)
}

func TestShowFromClosedOpensDirectly(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	c, ok := m.Show(menuList("a"))
	require.True(t, ok)
	assert.True(t, c.Opened)
	assert.Equal(t, Ready, c.Snapshot.Status)
}

func TestEmptyMenuHasNoHighlight(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	c, _ := m.Show(menuList())
	assert.Equal(t, NoHighlight, c.Snapshot.Highlight)
	_, ok := c.Snapshot.Highlighted()
	assert.False(t, ok)
}

func TestComboboxStartsUnfocused(t *testing.T) {
	m := NewMachine(mention.ModeCombobox)
	c, ok := m.Open(comboList("a", "b"))
	require.True(t, ok)
	assert.True(t, c.Snapshot.Explicit)
	assert.Equal(t, NoHighlight, c.Snapshot.Highlight)

	c, ok = m.Next()
	require.True(t, ok)
	assert.True(t, c.FocusChanged)
	assert.False(t, c.ItemsChanged)
	row, ok := c.Snapshot.Highlighted()
	require.True(t, ok)
	assert.Equal(t, "a", row.Value)

	c, ok = m.Highlight(NoHighlight)
	require.True(t, ok)
	assert.True(t, c.FocusChanged)
	assert.Equal(t, NoHighlight, c.Snapshot.Highlight)
}

func TestNavigationWraps(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	m.Show(menuList("a", "b", "c"))

	var got []int
	for i := 0; i < 4; i++ {
		c, ok := m.Next()
		require.True(t, ok)
		got = append(got, c.Snapshot.Highlight)
	}
	assert.Equal(t, []int{1, 2, 0, 1}, got)

	c, _ := m.Prev()
	assert.Equal(t, 0, c.Snapshot.Highlight)
	c, _ = m.Prev()
	assert.Equal(t, 2, c.Snapshot.Highlight)
}

func TestPrevFromNoHighlight(t *testing.T) {
	m := NewMachine(mention.ModeCombobox)
	m.Open(comboList("a", "b", "c"))
	c, ok := m.Prev()
	require.True(t, ok)
	assert.Equal(t, 2, c.Snapshot.Highlight)
}

func TestHighlightBounds(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	m.Show(menuList("a", "b"))

	_, ok := m.Highlight(0)
	assert.False(t, ok, "already highlighted")
	_, ok = m.Highlight(2)
	assert.False(t, ok)
	_, ok = m.Highlight(-2)
	assert.False(t, ok)
	c, ok := m.Highlight(1)
	require.True(t, ok)
	assert.Equal(t, 1, c.Snapshot.Highlight)
}

func TestNavigationWhileClosed(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	_, ok := m.Next()
	assert.False(t, ok)
	_, ok = m.Prev()
	assert.False(t, ok)
	_, ok = m.Highlight(0)
	assert.False(t, ok)
}

func TestNewListResetsHighlight(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	m.Show(menuList("a", "b"))
	m.Next()

	c, ok := m.Show(menuList("c", "d"))
	require.True(t, ok)
	assert.True(t, c.FocusChanged)
	assert.Equal(t, 0, c.Snapshot.Highlight)
}

func TestLoadKeepsRows(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	l := menuList("a")
	m.Show(l)

	c, ok := m.Load("@")
	require.True(t, ok)
	assert.False(t, c.ItemsChanged)
	assert.Same(t, l, c.Snapshot.List)
	assert.Equal(t, Loading, c.Snapshot.Status)
}

func TestLoadDropsRowsOfAnotherTrigger(t *testing.T) {
	m := NewMachine(mention.ModeMenu)
	m.Show(menuList("alice"))

	c, ok := m.Load("#")
	require.True(t, ok)
	assert.True(t, c.ItemsChanged)
	assert.True(t, c.FocusChanged)
	assert.Nil(t, c.Snapshot.List)
	assert.Equal(t, NoHighlight, c.Snapshot.Highlight)
	_, highlighted := c.Snapshot.Highlighted()
	assert.False(t, highlighted)
}

func TestLoadDropsIdleTriggerRows(t *testing.T) {
	m := NewMachine(mention.ModeCombobox)
	idle := &candidate.List{Combobox: []mention.ComboboxItem{{Type: mention.ItemTrigger, Value: "@", DisplayValue: "@"}}}
	m.Open(idle)

	c, ok := m.Load("@")
	require.True(t, ok)
	assert.Nil(t, c.Snapshot.List)
	assert.True(t, c.Snapshot.Explicit)
}
