package policy

import (
	"fmt"
	"strings"
	"testing"
)

func BenchmarkLoad_TwoLevels(b *testing.B) {
	data := []byte(twoLevelPolicy)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Load(data, Options{MaxParams: 4}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLoad_ManyFunctions(b *testing.B) {
	// 200 function labels, each with a CDF towards both levels
	var sb strings.Builder
	sb.WriteString(`[{"cle-label": "ORANGE", "cle-json": {"level": "orange"}},
 {"cle-label": "PURPLE", "cle-json": {"level": "purple"}}`)
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, `,
 {"cle-label": "F%d", "cle-json": {"level": "orange", "cdf": [
  {"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"},
   "argtaints": [["ORANGE"], ["ORANGE"]], "codtaints": ["ORANGE"], "rettaints": ["ORANGE"]},
  {"remotelevel": "purple", "direction": "egress", "guarddirective": {"operation": "redact"},
   "argtaints": [["ORANGE"], ["ORANGE"]], "codtaints": ["ORANGE"], "rettaints": ["PURPLE"]}]}}`, i)
	}
	sb.WriteString("]")
	data := []byte(sb.String())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Load(data, Options{MaxParams: 4}); err != nil {
			b.Fatal(err)
		}
	}
}
