package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	pairs, err := parseKeyValues([]string{"language=Go", "style=terse", "empty="})
	require.NoError(t, err)
	assert.Equal(t, "Go", pairs["language"])
	assert.Equal(t, "terse", pairs["style"])
	assert.Equal(t, "", pairs["empty"])

	// Values may contain '=' themselves.
	pairs, err = parseKeyValues([]string{"query=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "a=b", pairs["query"])

	_, err = parseKeyValues([]string{"no-separator"})
	assert.Error(t, err)
	_, err = parseKeyValues([]string{"=value"})
	assert.Error(t, err)

	pairs, err = parseKeyValues(nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestBuildCallArguments(t *testing.T) {
	origArgs, origJSON := callArgs, callJSON
	defer func() { callArgs, callJSON = origArgs, origJSON }()

	callArgs = []string{"path=/tmp/x"}
	callJSON = ""
	arguments, err := buildCallArguments()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", arguments["path"])

	// --json takes precedence and preserves JSON types.
	callJSON = `{"count": 3, "deep": {"ok": true}}`
	arguments, err = buildCallArguments()
	require.NoError(t, err)
	assert.Equal(t, float64(3), arguments["count"])
	assert.NotContains(t, arguments, "path")

	callJSON = `{not json`
	_, err = buildCallArguments()
	assert.Error(t, err)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one line", firstLine("one line"))
	assert.Equal(t, "first", firstLine("first\nsecond\nthird"))
	assert.Equal(t, "", firstLine(""))
	assert.Equal(t, "", firstLine("\nbody"))
}
