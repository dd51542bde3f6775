package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fnEntry(label, cdfs string) string {
	return fmt.Sprintf(`{"cle-label": %q, "cle-json": {"level": "orange", "cdf": [%s]}}`, label, cdfs)
}

const okCDF = `{"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"},
  "argtaints": [["D"]], "codtaints": ["D"], "rettaints": []}`

const dataD = `{"cle-label": "D", "cle-json": {"level": "orange"}}`

func TestValidationRules(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		opts Options
		rule int
	}{
		{"missing body", `[{"cle-label": "A"}]`, Options{MaxParams: 4}, 1},
		{"non-string label", `[{"cle-label": 3, "cle-json": {"level": "x"}}]`, Options{MaxParams: 4}, 1},
		{"duplicate label", `[` + dataD + `,` + dataD + `]`, Options{MaxParams: 4}, 2},
		{"missing level", `[{"cle-label": "A", "cle-json": {}}]`, Options{MaxParams: 4}, 3},
		{"null level", `[{"cle-label": "A", "cle-json": {"level": "nullLevel"}}]`, Options{MaxParams: 4}, 4},
		{"empty cdf list", `[{"cle-label": "A", "cle-json": {"level": "x", "cdf": []}}]`, Options{MaxParams: 4}, 5},
		{"cdf not a list", `[{"cle-label": "A", "cle-json": {"level": "x", "cdf": {}}}]`, Options{MaxParams: 4}, 5},
		{"missing cdf field", `[` + fnEntry("F", `{"remotelevel": "orange", "direction": "egress"}`) + `]`, Options{MaxParams: 4}, 6},
		{"null remote level", `[` + fnEntry("F", `{"remotelevel": "nullLevel", "direction": "egress", "guarddirective": {"operation": "allow"}}`) + `]`, Options{MaxParams: 4}, 7},
		{"oneway with used return",
			`[` + fnEntry("F", `{"remotelevel": "orange", "direction": "egress", "oneway": true, "guarddirective": {"operation": "allow"}}`) + `]`,
			Options{MaxParams: 4, ReturnUsed: map[string]bool{"F": true}}, 8},
		{"bad direction", `[` + fnEntry("F", `{"remotelevel": "orange", "direction": "up", "guarddirective": {"operation": "allow"}}`) + `]`, Options{MaxParams: 4}, 9},
		{"bad operation", `[` + fnEntry("F", `{"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "maybe"}}`) + `]`, Options{MaxParams: 4}, 10},
		{"missing operation", `[` + fnEntry("F", `{"remotelevel": "orange", "direction": "egress", "guarddirective": {}}`) + `]`, Options{MaxParams: 4}, 10},
		{"partial taints", `[` + dataD + `,` + fnEntry("F", `{"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"}, "codtaints": ["D"]}`) + `]`, Options{MaxParams: 4}, 11},
		{"taints not lists", `[` + dataD + `,` + fnEntry("F", `{"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"}, "argtaints": ["D"], "codtaints": ["D"], "rettaints": []}`) + `]`, Options{MaxParams: 4}, 12},
		{"unknown taint", `[` + fnEntry("F", okCDF) + `]`, Options{MaxParams: 4}, 13},
		{"too many args", `[` + dataD + `,` + fnEntry("F", okCDF) + `]`, Options{MaxParams: 0}, 14},
		{"arity mismatch", `[` + dataD + `,` + fnEntry("F", okCDF) + `]`, Options{MaxParams: 4, FunctionArgs: map[string]int{"F": 2}}, 15},
		{"differing taints", `[` + dataD + `,` + fnEntry("F", okCDF+`,`+`{"remotelevel": "purple", "direction": "egress", "guarddirective": {"operation": "allow"},
  "argtaints": [], "codtaints": ["D"], "rettaints": []}`) + `]`, Options{MaxParams: 4}, 16},
		{"duplicate remote level", `[` + dataD + `,` + fnEntry("F", okCDF+`,`+okCDF) + `]`, Options{MaxParams: 4}, 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc), tt.opts)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.rule, ve.Rule, ve.Error())
		})
	}
}

func TestFunctionLabelIsNotADataLabel(t *testing.T) {
	doc := `[` + dataD + `,` + fnEntry("F", okCDF) + `,` +
		fnEntry("G", `{"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"},
  "argtaints": [], "codtaints": ["F"], "rettaints": []}`) + `]`
	assert.Equal(t, 13, validationRule(t, doc, Options{MaxParams: 4}))
}

func TestTagTaintsAccepted(t *testing.T) {
	doc := `[` + fnEntry("F", `{"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"},
  "argtaints": [["TAG_REQUEST_F"]], "codtaints": [], "rettaints": ["TAG_RESPONSE_F"]}`) + `]`
	require.NoError(t, Validate(mustParse(t, doc), Options{MaxParams: 4}))
}

func TestValidationErrorNamesLabelAndRule(t *testing.T) {
	_, err := Load([]byte(`[{"cle-label": "A", "cle-json": {"level": "nullLevel"}}]`), Options{MaxParams: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule 4")
	assert.Contains(t, err.Error(), "A")
}

func TestValidateParseRejectsNonList(t *testing.T) {
	_, err := Parse([]byte(`{"cle-label": "A"}`))
	assert.Error(t, err)
}

func mustParse(t *testing.T, doc string) []Entry {
	t.Helper()
	entries, err := Parse([]byte(doc))
	require.NoError(t, err)
	return entries
}
