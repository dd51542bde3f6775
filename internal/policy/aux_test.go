package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFunctionArgs(t *testing.T) {
	args, err := ParseFunctionArgs(strings.NewReader("XD_GET 2\nget_a XD_SET 1\n\nother_get XD_GET 2\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"XD_GET": 2, "XD_SET": 1}, args)
}

func TestParseFunctionArgsConflict(t *testing.T) {
	_, err := ParseFunctionArgs(strings.NewReader("f XD_GET 2\ng XD_GET 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different numbers of arguments")
}

func TestParseFunctionArgsMalformed(t *testing.T) {
	_, err := ParseFunctionArgs(strings.NewReader("XD_GET\n"))
	assert.Error(t, err)
	_, err = ParseFunctionArgs(strings.NewReader("XD_GET two\n"))
	assert.Error(t, err)
}

func TestParseOneWay(t *testing.T) {
	used, err := ParseOneWay(strings.NewReader("f LOG 1\ng LOG 0\nSEND 1\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"LOG": true}, used)
}
