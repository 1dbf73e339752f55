package mangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/userdata/internal/model"
)

func TestMangle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "alphanumeric passes through", input: "alice42", expected: "alice42"},
		{name: "underscore becomes dollar", input: "shared_1", expected: "shared$1"},
		{name: "space is hex escaped", input: "a b", expected: "a$20$b"},
		{name: "quote is hex escaped", input: `x"; DROP TABLE user; --`, expected: "x$22$$3b$$20$DROP$20$TABLE$20$user$3b$$20$$2d$$2d$"},
		{name: "dollar is hex escaped", input: "a$b", expected: "a$24$b"},
		{name: "leading digit is escaped", input: "1up", expected: "$31$up"},
		{name: "multibyte is escaped per byte", input: "é", expected: "$c3$$a9$"},
		{name: "url", input: "http://x.org/g", expected: "http$3a$$2f$$2f$x$2e$org$2f$g"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Mangle(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
			assert.NoError(t, ValidateIdentifier(result))
		})
	}
}

func TestMangleEmpty(t *testing.T) {
	_, err := Mangle("")
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
}

func TestMangleIsIdentityOnSafeNames(t *testing.T) {
	for _, name := range []string{"user", "games", "Player", "g1", "abcXYZ0123456789"} {
		result, err := Mangle(name)
		require.NoError(t, err)
		assert.Equal(t, name, result)

		again, err := Mangle(result)
		require.NoError(t, err)
		assert.Equal(t, result, again)
	}
}

func TestMangleOutputNeverContainsUnderscore(t *testing.T) {
	inputs := []string{"_", "__init__", "a_b_c", "\x00", "\xff", "ünïcödé", "' OR 1=1"}
	for _, input := range inputs {
		result, err := Mangle(input)
		require.NoError(t, err, input)
		assert.NotContains(t, result, "_", input)
		assert.Regexp(t, `^[A-Za-z_$][A-Za-z0-9_$]*$`, result, input)
	}
}

// Escapes and underscores share the '$' alphabet, so distinct names can
// mangle alike. Storage refuses the second of such a pair.
func TestMangleIsNotInjective(t *testing.T) {
	pairs := [][2]string{
		{"a$b", "a_24_b"},
		{"1", "_31_"},
	}
	for _, pair := range pairs {
		first, err := Mangle(pair[0])
		require.NoError(t, err)
		second, err := Mangle(pair[1])
		require.NoError(t, err)
		assert.Equal(t, first, second, pair[0])
	}
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"user", "_x", "$x", "a1", "ud_alice_games", "a$20$b"}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{"", "1a", "a-b", "a b", "a;", `"a"`, "ä"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateIdentifier(name), model.ErrInvalidIdentifier, name)
	}
}

func TestTableName(t *testing.T) {
	name, err := TableName("ud_", "alice", "game", "g_1", "player")
	require.NoError(t, err)
	assert.Equal(t, "ud_alice_game_g$1_player", name)

	name, err = TableName("", "user")
	require.NoError(t, err)
	assert.Equal(t, "user", name)
}

func TestTableNameRejectsBadPrefix(t *testing.T) {
	_, err := TableName("ud-", "alice")
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)

	_, err = TableName("ud_")
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
}

func TestPrefixSeparatesNamespaces(t *testing.T) {
	data, err := Prefix("ud_", "alice", "data", "g1")
	require.NoError(t, err)
	assert.Equal(t, "ud_alice_data_g1_", data)

	gameTable, err := TableName("ud_", "alice", "game", "g1", "player")
	require.NoError(t, err)
	assert.NotContains(t, gameTable, data)

	// "a_b" and "a" + "b" must not share a namespace.
	joined, err := Prefix("ud_", "a_b")
	require.NoError(t, err)
	split, err := Prefix("ud_", "a", "b")
	require.NoError(t, err)
	assert.NotEqual(t, joined, split)
}
