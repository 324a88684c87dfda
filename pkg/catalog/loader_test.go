package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/suggest"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const people = `
trigger = "@"
values = ["alice", "bob"]

[[items]]
value = "carol"
[items.data]
team = "core"
admin = true
age = 41

[[items]]
trigger = "#"
value = "urgent"
`

func TestLoadFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "people.toml", people)

	byTrigger, order, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"@", "#"}, order)
	require.Len(t, byTrigger["@"], 3)
	assert.Equal(t, "carol", byTrigger["@"][2].Value)

	team, ok := byTrigger["@"][2].Data.Get("team")
	require.True(t, ok)
	assert.Equal(t, mention.KindString, team.Kind())
	age, _ := byTrigger["@"][2].Data.Get("age")
	assert.Equal(t, mention.KindNumber, age.Kind())
	assert.Equal(t, "urgent", byTrigger["#"][0].Value)
}

func TestLoadFileRejectsNestedMetadata(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.toml", `
trigger = "@"
[[items]]
value = "x"
[items.data.nested]
deep = 1
`)
	_, _, err := LoadFile(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mention.ErrInvalidMetadata))
}

func TestLoadFileRequiresTrigger(t *testing.T) {
	p := writeFile(t, t.TempDir(), "orphan.toml", `values = ["a"]`)
	_, _, err := LoadFile(p)
	assert.Error(t, err)
}

func TestLoaderDirectorySkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01-people.toml", people)
	writeFile(t, dir, "02-broken.toml", `trigger = [`)
	writeFile(t, dir, "03-tags.toml", `
trigger = "#"
values = ["bug", "feature"]
`)
	writeFile(t, dir, "notes.txt", "ignored")

	cat := suggest.NewCatalog(suggest.MatchSubstring)
	stats, err := NewLoader(dir).Load(cat)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 6, stats.Items)
	assert.Equal(t, 3, stats.ByTrigger["#"])

	tags := cat.Lookup("#", mention.NullQuery())
	require.Len(t, tags, 3)
	assert.Equal(t, "urgent", tags[0].Value, "files load in name order")
	assert.Equal(t, "bug", tags[1].Value)
}

func TestLoaderMissingPath(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope")).Load(suggest.NewCatalog(suggest.MatchSubstring))
	assert.Error(t, err)
}

func TestLoaderEmptyDirectory(t *testing.T) {
	_, err := NewLoader(t.TempDir()).Load(suggest.NewCatalog(suggest.MatchSubstring))
	assert.Error(t, err)
}
