package suggest

import (
	"sort"
	"strings"
	"sync"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
	"golang.org/x/text/cases"
)

// list is the ordered item list of one trigger plus its prefix index.
type list struct {
	items  []mention.Item
	folded []string
	// trie maps a folded value to the positions holding it
	trie *patricia.Trie
}

// Catalog is the default Source. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	lists   map[string]*list
	match   MatchMode
	total   int
	longest int
}

func NewCatalog(match MatchMode) *Catalog {
	return &Catalog{
		lists: make(map[string]*list),
		match: match,
	}
}

// Fold returns the case-insensitive form used for matching.
// cases.Caser is stateful, so a fresh one is built per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func (c *Catalog) Add(trigger string, items ...mention.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lists[trigger]
	if !ok {
		l = &list{trie: patricia.NewTrie()}
		c.lists[trigger] = l
	}
	caser := cases.Fold()
	for _, it := range items {
		pos := len(l.items)
		folded := caser.String(it.Value)
		l.items = append(l.items, it)
		l.folded = append(l.folded, folded)

		key := patricia.Prefix(folded)
		if existing := l.trie.Get(key); existing != nil {
			l.trie.Set(key, append(existing.([]int), pos))
		} else {
			l.trie.Insert(key, []int{pos})
		}
		c.total++
		if len(it.Value) > c.longest {
			c.longest = len(it.Value)
		}
	}
}

func (c *Catalog) Lookup(trigger string, query mention.Query) []mention.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.lists[trigger]
	if !ok {
		return nil
	}
	if query.IsBlank() {
		out := make([]mention.Item, len(l.items))
		copy(out, l.items)
		return out
	}

	folded := Fold(query.Text())
	var positions []int
	if c.match == MatchPrefix {
		positions = searchTrie(l.trie, folded)
	} else {
		for i, v := range l.folded {
			if strings.Contains(v, folded) {
				positions = append(positions, i)
			}
		}
	}

	out := make([]mention.Item, len(positions))
	for i, p := range positions {
		out[i] = l.items[p]
	}
	return out
}

// searchTrie collects every position under the folded prefix. The trie visits
// keys in byte order, so positions are re-sorted to restore insertion order.
func searchTrie(trie *patricia.Trie, folded string) []int {
	var positions []int
	err := trie.VisitSubtree(patricia.Prefix(folded), func(p patricia.Prefix, item patricia.Item) error {
		switch v := item.(type) {
		case []int:
			positions = append(positions, v...)
		default:
			log.Errorf("Unknown item type: %T for value %s", item, p)
		}
		return nil
	})
	if err != nil {
		log.Errorf("Error visiting trie subtree: %v", err)
		return nil
	}
	sort.Ints(positions)
	return positions
}

// Triggers returns the triggers that have items, sorted.
func (c *Catalog) Triggers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.lists))
	for t := range c.lists {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		"totalItems":   c.total,
		"triggers":     len(c.lists),
		"longestValue": c.longest,
		"prefixMatch":  boolInt(c.match == MatchPrefix),
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
