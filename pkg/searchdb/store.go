// Package searchdb is an asynchronous search source backed by SQLite.
//
// Items live in one table keyed by trigger; the folded value column makes the
// LIKE filter case-insensitive beyond ASCII. Metadata is stored as a msgpack
// blob of ordered key/value pairs.
package searchdb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/bastiangx/mentionserve/pkg/mention"
	"github.com/bastiangx/mentionserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"

	_ "modernc.org/sqlite"
)

// DefaultFetchLimit caps the rows returned by one lookup.
const DefaultFetchLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS mention_items (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	sigil    TEXT NOT NULL,
	value    TEXT NOT NULL,
	folded   TEXT NOT NULL,
	position INTEGER NOT NULL,
	metadata BLOB
);
CREATE INDEX IF NOT EXISTS idx_mention_items_trigger ON mention_items(sigil, position);
`

// Store implements dispatch.Searcher over a SQLite database.
type Store struct {
	db         *sql.DB
	fetchLimit int
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// one connection keeps ":memory:" databases alive and writes serialized
	db.SetMaxOpenConns(1)
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "create mention_items schema")
	}
	return &Store{db: db, fetchLimit: DefaultFetchLimit}, nil
}

// SetFetchLimit changes the per-lookup row cap. Non-positive values are ignored.
func (s *Store) SetFetchLimit(n int) {
	if n > 0 {
		s.fetchLimit = n
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type field struct {
	Key   string `msgpack:"k"`
	Value any    `msgpack:"v"`
}

func encodeMetadata(md mention.Metadata) ([]byte, error) {
	if md.Len() == 0 {
		return nil, nil
	}
	fields := md.Fields()
	out := make([]field, len(fields))
	for i, f := range fields {
		out[i] = field{Key: f.Key, Value: f.Value.Interface()}
	}
	return msgpack.Marshal(out)
}

func decodeMetadata(b []byte) (mention.Metadata, error) {
	if len(b) == 0 {
		return mention.Metadata{}, nil
	}
	var fields []field
	if err := msgpack.Unmarshal(b, &fields); err != nil {
		return mention.Metadata{}, errors.Wrap(err, "decode metadata")
	}
	out := make([]mention.Field, 0, len(fields))
	for _, f := range fields {
		v, err := mention.ValueOf(f.Value)
		if err != nil {
			return mention.Metadata{}, errors.Wrapf(err, "key %q", f.Key)
		}
		out = append(out, mention.Field{Key: f.Key, Value: v})
	}
	return mention.NewMetadata(out...), nil
}

// Put appends items to a trigger, after any existing ones.
func (s *Store) Put(ctx context.Context, trigger string, items ...mention.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM mention_items WHERE sigil = ?`, trigger)
	if err := row.Scan(&next); err != nil {
		return errors.Wrap(err, "next position")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO mention_items (sigil, value, folded, position, metadata) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for i, it := range items {
		blob, err := encodeMetadata(it.Data)
		if err != nil {
			return errors.Wrapf(err, "encode %q", it.Value)
		}
		if _, err := stmt.ExecContext(ctx, trigger, it.Value, suggest.Fold(it.Value), next+i, blob); err != nil {
			return errors.Wrapf(err, "insert %q", it.Value)
		}
	}
	return tx.Commit()
}

// Add satisfies catalog.Sink so catalog files can seed the database.
func (s *Store) Add(trigger string, items ...mention.Item) {
	if err := s.Put(context.Background(), trigger, items...); err != nil {
		log.Errorf("searchdb: seeding %q failed: %v", trigger, err)
	}
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Search returns items of trigger whose value contains the query, in
// insertion order.
func (s *Store) Search(ctx context.Context, trigger string, query mention.Query) ([]mention.Item, error) {
	pattern := "%" + escapeLike(suggest.Fold(query.Text())) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT value, metadata FROM mention_items
		WHERE sigil = ? AND folded LIKE ? ESCAPE '\'
		ORDER BY position
		LIMIT ?`, trigger, pattern, s.fetchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "query mention_items")
	}
	defer rows.Close()

	var items []mention.Item
	for rows.Next() {
		var value string
		var blob []byte
		if err := rows.Scan(&value, &blob); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		data, err := decodeMetadata(blob)
		if err != nil {
			return nil, err
		}
		items = append(items, mention.Item{Value: value, Data: data})
	}
	return items, rows.Err()
}

// Count returns the number of stored items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mention_items`).Scan(&n)
	return n, err
}
