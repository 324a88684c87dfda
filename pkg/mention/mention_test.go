package mention

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryStates(t *testing.T) {
	null := NullQuery()
	empty := QueryOf("")
	text := QueryOf("ali")

	assert.True(t, null.IsNull())
	assert.True(t, null.IsBlank())
	assert.False(t, empty.IsNull())
	assert.True(t, empty.IsBlank())
	assert.False(t, text.IsBlank())
	assert.NotEqual(t, null, empty, "null and empty queries must stay distinct")
	assert.Equal(t, Pair{"@", QueryOf("ali")}, Pair{"@", text})
}

func TestTokenKey(t *testing.T) {
	tok := Token{Trigger: "@", Value: "alice"}
	assert.Equal(t, "@alice", tok.Key())
	assert.Equal(t, Key("@", "alice"), tok.Key())
	assert.Equal(t, "@alice", tok.Text())
}

func TestValueOf(t *testing.T) {
	testCases := []struct {
		input       any
		kind        Kind
		wantErr     bool
		description string
	}{
		{nil, KindAbsent, false, "nil is absent"},
		{"x", KindString, false, "string"},
		{true, KindBool, false, "bool"},
		{int64(3), KindNumber, false, "toml integer"},
		{uint8(7), KindNumber, false, "msgpack small uint"},
		{2.5, KindNumber, false, "float"},
		{map[string]any{"a": 1}, KindAbsent, true, "nested map rejected"},
		{[]any{1, 2}, KindAbsent, true, "array rejected"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			v, err := ValueOf(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMetadata))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, v.Kind())
		})
	}
}

func TestMetadataFromMapIsSortedAndValidated(t *testing.T) {
	md, err := MetadataFromMap(map[string]any{"role": "admin", "age": int64(30), "active": true})
	require.NoError(t, err)

	fields := md.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "active", fields[0].Key)
	assert.Equal(t, "age", fields[1].Key)
	assert.Equal(t, "role", fields[2].Key)

	n, ok := fields[1].Value.Num()
	assert.True(t, ok)
	assert.Equal(t, 30.0, n)

	_, err = MetadataFromMap(map[string]any{"nested": map[string]any{}})
	assert.True(t, errors.Is(err, ErrInvalidMetadata))
}

func TestMetadataWithDoesNotMutate(t *testing.T) {
	base := NewMetadata(Field{Key: "a", Value: String("1")})
	next := base.With("a", String("2")).With("b", Bool(true))

	v, _ := base.Get("a")
	s, _ := v.Str()
	assert.Equal(t, "1", s)
	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, next.Len())
	assert.False(t, base.Equal(next))
	assert.Equal(t, map[string]any{"a": "2", "b": true}, next.Map())
}
