// Package catalog loads static mention items from TOML catalog files.
//
// A catalog file lists the items of one default trigger, either as bare
// strings or as tables carrying metadata:
//
//	trigger = "@"
//	values  = ["alice", "bob"]
//
//	[[items]]
//	value = "carol"
//	[items.data]
//	team = "core"
//	admin = true
//
//	[[items]]
//	trigger = "#"
//	value = "urgent"
//
// Files are applied in name order, so the item order inside a trigger is
// stable across runs.
package catalog

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// Sink receives loaded items. suggest.Catalog satisfies it.
type Sink interface {
	Add(trigger string, items ...mention.Item)
}

type fileItem struct {
	Trigger string         `toml:"trigger"`
	Value   string         `toml:"value"`
	Data    map[string]any `toml:"data"`
}

type file struct {
	Trigger string     `toml:"trigger"`
	Values  []string   `toml:"values"`
	Items   []fileItem `toml:"items"`
}

// FileInfo describes one catalog file found on disk.
type FileInfo struct {
	Path      string
	ItemCount int
}

// Stats summarizes a load.
type Stats struct {
	Files     int
	Items     int
	ByTrigger map[string]int
	Skipped   int
}

// Loader reads catalog files from a file or a directory.
type Loader struct {
	path string
}

// NewLoader creates a loader for a single .toml file or a directory of them.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// GetAvailable lists the catalog files under the loader path, sorted by name.
func (l *Loader) GetAvailable() ([]FileInfo, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog path %s", l.path)
	}
	if !info.IsDir() {
		return []FileInfo{{Path: l.path}}, nil
	}

	pattern := filepath.Join(l.path, "*.toml")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan for catalog files")
	}
	sort.Strings(files)

	out := make([]FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, FileInfo{Path: f})
	}
	return out, nil
}

// Load reads every available file into sink. A file that fails to parse is
// skipped with a warning; the remaining files still load.
func (l *Loader) Load(sink Sink) (Stats, error) {
	files, err := l.GetAvailable()
	if err != nil {
		return Stats{}, err
	}
	if len(files) == 0 {
		return Stats{}, errors.Newf("no catalog files found in %s", l.path)
	}

	stats := Stats{ByTrigger: make(map[string]int)}
	for _, f := range files {
		byTrigger, order, err := LoadFile(f.Path)
		if err != nil {
			log.Warnf("Skipping catalog %s: %v", f.Path, err)
			stats.Skipped++
			continue
		}
		for _, trig := range order {
			items := byTrigger[trig]
			sink.Add(trig, items...)
			stats.Items += len(items)
			stats.ByTrigger[trig] += len(items)
		}
		stats.Files++
		log.Debugf("Catalog %s loaded: %d triggers", f.Path, len(order))
	}
	return stats, nil
}

// LoadFile parses one catalog file. It returns the items grouped by trigger
// and the order in which the triggers first appeared.
func LoadFile(path string) (map[string][]mention.Item, []string, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, nil, errors.Wrapf(err, "decode %s", path)
	}

	byTrigger := make(map[string][]mention.Item)
	var order []string
	add := func(trig string, it mention.Item) {
		if _, ok := byTrigger[trig]; !ok {
			order = append(order, trig)
		}
		byTrigger[trig] = append(byTrigger[trig], it)
	}

	for _, v := range f.Values {
		if f.Trigger == "" {
			return nil, nil, errors.Newf("%s: values need a top-level trigger", path)
		}
		add(f.Trigger, mention.Plain(v))
	}
	for i, it := range f.Items {
		trig := it.Trigger
		if trig == "" {
			trig = f.Trigger
		}
		if trig == "" {
			return nil, nil, errors.Newf("%s: item %d has no trigger", path, i)
		}
		if it.Value == "" {
			return nil, nil, errors.Newf("%s: item %d has no value", path, i)
		}
		data, err := mention.MetadataFromMap(it.Data)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "%s: item %q", path, it.Value)
		}
		add(trig, mention.Item{Value: it.Value, Data: data})
	}
	return byTrigger, order, nil
}
