package policy

import "testing"

func FuzzLoad(f *testing.F) {
	f.Add([]byte(twoLevelPolicy))
	f.Add([]byte(`[{"cle-label": "A", "cle-json": {"level": "orange"}}]`))
	f.Add([]byte(`- cle-label: A
  cle-json:
    level: orange
    cdf: [{remotelevel: purple, direction: egress, guarddirective: {operation: allow}, argtaints: [[A]], codtaints: [], rettaints: []}]
`))
	f.Add([]byte{})
	f.Add([]byte(`{{{not yaml at all`))

	f.Fuzz(func(t *testing.T, data []byte) {
		// must not panic; a model that loads must be internally consistent
		m, err := Load(data, Options{MaxParams: 2})
		if err != nil {
			return
		}
		for i := 1; i < m.NumLabels(); i++ {
			if id, ok := m.LabelID(m.Label(i).Name); !ok || id != i {
				t.Fatalf("label %d does not round-trip", i)
			}
		}
		for i := 1; i < m.NumCDFs(); i++ {
			c := m.CDF(i)
			if m.CDFFor(c.Owner, c.Remote) != i {
				t.Fatalf("cdf %s is not reachable from its owner and level", c.ID)
			}
		}
	})
}
