package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// twoLevelPolicy has two data labels, two function labels with one CDF
// towards each level, and a TAG taint that is never declared.
const twoLevelPolicy = `[
  {"cle-label": "ORANGE", "cle-json": {"level": "orange",
    "cdf": [{"remotelevel": "purple", "direction": "egress", "guarddirective": {"operation": "allow"}}]}},
  {"cle-label": "PURPLE", "cle-json": {"level": "purple"}},
  {"cle-label": "XD_GET", "cle-json": {"level": "purple", "cdf": [
    {"remotelevel": "orange", "direction": "bidirectional", "guarddirective": {"operation": "allow"},
     "argtaints": [["TAG_REQUEST_GET"]], "codtaints": ["PURPLE"], "rettaints": ["TAG_RESPONSE_GET"]},
    {"remotelevel": "purple", "direction": "bidirectional", "guarddirective": {"operation": "deny"},
     "argtaints": [["TAG_REQUEST_GET"]], "codtaints": ["PURPLE"], "rettaints": ["TAG_RESPONSE_GET"]}]}},
  {"cle-label": "MAIN", "cle-json": {"level": "orange", "cdf": [
    {"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"},
     "argtaints": [], "codtaints": ["ORANGE"], "rettaints": ["ORANGE"]}]}}
]`

func loadModel(t *testing.T, doc string, opts Options) *Model {
	t.Helper()
	if opts.MaxParams == 0 {
		opts.MaxParams = 4
	}
	m, err := Load([]byte(doc), opts)
	require.NoError(t, err)
	return m
}

func validationRule(t *testing.T, doc string, opts Options) int {
	t.Helper()
	if opts.MaxParams == 0 {
		opts.MaxParams = 4
	}
	_, err := Load([]byte(doc), opts)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Rule
}
