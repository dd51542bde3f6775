package policy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/enclavecheck/internal/digest"
	"github.com/ppiankov/enclavecheck/internal/model"
)

// Index 0 of labels, levels, enclaves and CDFs is always the null entity.
const (
	NullLabel = 0
	NullLevel = 0
	NullCDF   = 0
)

// Label is a named taint at exactly one level.
type Label struct {
	Name      string
	Level     int
	Function  bool
	Synthetic bool
}

// CDF is one cross-domain flow rule of a label.
type CDF struct {
	ID        string
	Owner     int
	Remote    int
	Direction model.Direction
	Guard     model.GuardOperation
	OneWay    bool
}

// Model is the validated, frozen policy with its lookup tables.
type Model struct {
	labels     []Label
	labelIndex map[string]int
	levels     []string
	levelIndex map[string]int
	cdfs       []CDF
	byRemote   [][]int

	// indexed [cdf][label]; arg is [cdf][param][label]
	ret, cod, arc [][]bool
	arg           [][][]bool

	maxParams   int
	referenced  []string
	fingerprint uint64
}

// Load parses and builds a model in one step.
func Load(data []byte, opts Options) (*Model, error) {
	entries, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(entries, opts)
}

// New validates entries and builds the frozen model.
func New(entries []Entry, opts Options) (*Model, error) {
	specs, err := validate(entries, opts)
	if err != nil {
		return nil, err
	}

	m := &Model{
		labelIndex: make(map[string]int),
		levelIndex: map[string]int{nullLevel: NullLevel},
		levels:     []string{nullLevel},
		maxParams:  opts.MaxParams,
	}
	for _, s := range specs {
		if _, ok := m.levelIndex[s.level]; !ok {
			m.levelIndex[s.level] = len(m.levels)
			m.levels = append(m.levels, s.level)
		}
	}

	// function labels first, stable within each group
	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].function && !specs[j].function
	})

	m.labels = []Label{{Name: nullLabel, Level: NullLevel}}
	for _, s := range specs {
		m.labels = append(m.labels, Label{Name: s.name, Level: m.levelIndex[s.level], Function: s.function})
	}
	m.referenced = referencedTaints(specs)
	m.labels = closeTaints(m.labels, m.referenced)
	for i, l := range m.labels {
		m.labelIndex[l.Name] = i
	}

	m.buildCDFs(specs)
	m.fingerprint = m.computeFingerprint()
	return m, nil
}

// referencedTaints lists every taint named by a function CDF, in first
// appearance order.
func referencedTaints(specs []labelSpec) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ts []string) {
		for _, t := range ts {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	for _, s := range specs {
		if !s.function {
			continue
		}
		for _, c := range s.cdfs {
			for _, a := range c.arg {
				add(a)
			}
			add(c.cod)
			add(c.ret)
		}
	}
	return out
}

// closeTaints appends a synthetic null-level label for every referenced
// taint that is not declared. Applying it to its own output adds nothing.
func closeTaints(labels []Label, referenced []string) []Label {
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l.Name] = true
	}
	out := labels
	for _, t := range referenced {
		if known[t] {
			continue
		}
		known[t] = true
		out = append(out, Label{Name: t, Level: NullLevel, Synthetic: true})
	}
	return out
}

func (m *Model) buildCDFs(specs []labelSpec) {
	nl := len(m.labels)
	m.byRemote = make([][]int, nl)
	for i := range m.byRemote {
		m.byRemote[i] = make([]int, len(m.levels))
	}

	m.cdfs = []CDF{{ID: nullCDFName, Owner: NullLabel, Remote: NullLevel}}
	m.appendTables()

	for _, s := range specs {
		owner := m.labelIndex[s.name]
		i := 0
		for _, c := range s.cdfs {
			remote, ok := m.levelIndex[c.remote]
			if !ok {
				// no label lives at that level, so no enclave can be on the far side
				continue
			}
			id := len(m.cdfs)
			m.cdfs = append(m.cdfs, CDF{
				ID:        s.name + "_cdf_" + strconv.Itoa(i),
				Owner:     owner,
				Remote:    remote,
				Direction: c.direction,
				Guard:     c.guard,
				OneWay:    c.oneWay,
			})
			m.appendTables()
			m.byRemote[owner][remote] = id
			i++

			if !s.function {
				continue
			}
			for _, t := range c.ret {
				m.ret[id][m.labelIndex[t]] = true
				m.arc[id][m.labelIndex[t]] = true
			}
			for _, t := range c.cod {
				m.cod[id][m.labelIndex[t]] = true
				m.arc[id][m.labelIndex[t]] = true
			}
			for p, ts := range c.arg {
				for _, t := range ts {
					m.arg[id][p][m.labelIndex[t]] = true
					m.arc[id][m.labelIndex[t]] = true
				}
			}
			m.arc[id][owner] = true
		}
	}
}

func (m *Model) appendTables() {
	nl := len(m.labels)
	m.ret = append(m.ret, make([]bool, nl))
	m.cod = append(m.cod, make([]bool, nl))
	m.arc = append(m.arc, make([]bool, nl))
	params := make([][]bool, m.maxParams)
	for p := range params {
		params[p] = make([]bool, nl)
	}
	m.arg = append(m.arg, params)
}

func (m *Model) computeFingerprint() uint64 {
	var b strings.Builder
	for _, l := range m.labels {
		fmt.Fprintf(&b, "L %s %s %t\n", l.Name, m.levels[l.Level], l.Function)
	}
	for id, c := range m.cdfs {
		fmt.Fprintf(&b, "C %s %s %s %s %t ", c.ID, m.labels[c.Owner].Name, m.levels[c.Remote], c.Guard, c.OneWay)
		for l := range m.labels {
			fmt.Fprintf(&b, "%d", boolBit(m.ret[id][l])<<2|boolBit(m.cod[id][l])<<1|boolBit(m.arc[id][l]))
		}
		for p := 0; p < m.maxParams; p++ {
			b.WriteByte('/')
			for l := range m.labels {
				fmt.Fprintf(&b, "%d", boolBit(m.arg[id][p][l]))
			}
		}
		b.WriteByte('\n')
	}
	return digest.Sum64(b.String())
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Labels returns the ordered labels: the null label, function labels, data
// labels, then synthetic TAG labels.
func (m *Model) Labels() []Label { return append([]Label(nil), m.labels...) }

// Label returns label i.
func (m *Model) Label(i int) Label { return m.labels[i] }

// NumLabels returns the number of labels including synthetic ones.
func (m *Model) NumLabels() int { return len(m.labels) }

// LabelID resolves a label name.
func (m *Model) LabelID(name string) (int, bool) {
	i, ok := m.labelIndex[name]
	return i, ok
}

// Levels returns level names, nullLevel first.
func (m *Model) Levels() []string { return append([]string(nil), m.levels...) }

// NumLevels returns the number of levels including nullLevel.
func (m *Model) NumLevels() int { return len(m.levels) }

// Level returns the name of level i.
func (m *Model) Level(i int) string { return m.levels[i] }

// Enclaves returns enclave names. Enclave i is the enclave of level i.
func (m *Model) Enclaves() []string {
	out := make([]string, len(m.levels))
	for i := range m.levels {
		out[i] = m.Enclave(i)
	}
	return out
}

// Enclave returns the name of enclave i.
func (m *Model) Enclave(i int) string {
	if i == NullLevel {
		return nullEnclave
	}
	return m.levels[i] + "_E"
}

// GuardOperations lists every guard operation the model can hold.
func (m *Model) GuardOperations() []model.GuardOperation {
	return []model.GuardOperation{model.GuardNull, model.GuardAllow, model.GuardDeny, model.GuardRedact}
}

// CDFs returns all CDFs, the null CDF first.
func (m *Model) CDFs() []CDF { return append([]CDF(nil), m.cdfs...) }

// CDF returns CDF i.
func (m *Model) CDF(i int) CDF { return m.cdfs[i] }

// NumCDFs returns the number of CDFs including the null CDF.
func (m *Model) NumCDFs() int { return len(m.cdfs) }

// CDFFor returns the CDF of label at the given remote level, or NullCDF.
func (m *Model) CDFFor(label, level int) int { return m.byRemote[label][level] }

// RetTaint reports whether label is a return taint of cdf.
func (m *Model) RetTaint(cdf, label int) bool { return m.ret[cdf][label] }

// CodTaint reports whether label is a code taint of cdf.
func (m *Model) CodTaint(cdf, label int) bool { return m.cod[cdf][label] }

// ARCTaint reports whether label is in the union of argument, return and
// code taints of cdf, or is its owner.
func (m *Model) ARCTaint(cdf, label int) bool { return m.arc[cdf][label] }

// ArgTaint reports whether label is a taint of argument param of cdf.
// Parameters beyond the configured maximum have no taints.
func (m *Model) ArgTaint(cdf, param, label int) bool {
	if param < 0 || param >= m.maxParams {
		return false
	}
	return m.arg[cdf][param][label]
}

// MaxParams returns the maximum number of function parameters modeled.
func (m *Model) MaxParams() int { return m.maxParams }

// ReferencedTaints returns every taint named by a function CDF.
func (m *Model) ReferencedTaints() []string { return append([]string(nil), m.referenced...) }

// Fingerprint identifies the semantic content of the model.
func (m *Model) Fingerprint() string { return digest.String(m.fingerprint) }
