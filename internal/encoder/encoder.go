// Package encoder translates a program graph and a policy into a boolean
// satisfiability instance whose solutions are compliant enclave and taint
// assignments. Every constraint is guarded by a selector literal so that an
// unsatisfiable instance yields a named core.
package encoder

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/ppiankov/enclavecheck/internal/digest"
	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/pdg"
	"github.com/ppiankov/enclavecheck/internal/policy"
)

// Options tunes the encoding.
type Options struct {
	// UniversalLabel names a policy label that may only be taken by nodes of
	// unpinned classes. Empty disables the rule.
	UniversalLabel string
	Logger         *slog.Logger
}

// Constraint is one named, individually retractable assertion.
type Constraint struct {
	Seq       int        `json:"seq"`
	ID        uint64     `json:"id"`
	Kind      model.Kind `json:"kind"`
	Rule      string     `json:"rule"`
	Entity    int        `json:"entity,omitempty"`
	Args      []string   `json:"args,omitempty"`
	Assertion string     `json:"assertion"`

	sel z.Lit
}

// Key is a readable stable identifier: kind/rule/entity-or-args.
func (c Constraint) Key() string {
	if c.Kind == model.KindPolicy {
		return string(c.Kind) + "/" + c.Rule + "/" + strings.Join(c.Args, ",")
	}
	return string(c.Kind) + "/" + c.Rule + "/" + strconv.Itoa(c.Entity)
}

// Stats describes the size of an encoding.
type Stats struct {
	Nodes       int           `json:"nodes"`
	Edges       int           `json:"edges"`
	Constraints int           `json:"constraints"`
	Facts       int           `json:"facts"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Encoding is a compiled instance ready to solve.
type Encoding struct {
	graph  *pdg.Graph
	policy *policy.Model
	log    *slog.Logger

	c         *logic.C
	enc       [][]z.Lit // [node-1][enclave]
	taint     [][]z.Lit // [node-1][label]
	clauses   [][]z.Lit
	sameEnc   map[[2]int]z.Lit
	sameLab   map[[2]int]z.Lit
	facts     map[string]z.Lit

	universal int
	pinned    map[int]bool

	constraints    []Constraint
	formulas       []z.Lit
	contradictions []Contradiction
	bySel          map[z.Lit]int

	solver *gini.Gini
	stats  Stats
}

// Encode builds the instance. Encoding contradictions do not fail; they are
// recorded and make the instance unsatisfiable without solving.
func Encode(g *pdg.Graph, p *policy.Model, opts Options) (*Encoding, error) {
	start := time.Now()
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	for _, n := range g.Nodes() {
		if n.Annotated() {
			if _, ok := p.LabelID(n.Label); !ok {
				return nil, &UnknownLabelError{Node: n.ID, Label: n.Label}
			}
		}
	}

	e := &Encoding{
		graph:     g,
		policy:    p,
		log:       log,
		c:         logic.NewC(),
		sameEnc:   make(map[[2]int]z.Lit),
		sameLab:   make(map[[2]int]z.Lit),
		facts:     make(map[string]z.Lit),
		universal: -1,
		bySel:     make(map[z.Lit]int),
	}
	e.stats.Nodes = g.NumNodes()
	e.stats.Edges = g.NumEdges()

	e.harden()
	if len(e.contradictions) > 0 {
		for _, ct := range e.contradictions {
			log.Warn("model inconsistency detected, instance is unsatisfiable",
				"rule", ct.Rule, "edge", ct.Edge)
		}
		e.stats.Elapsed = time.Since(start)
		return e, nil
	}

	if opts.UniversalLabel != "" {
		if id, ok := p.LabelID(opts.UniversalLabel); ok {
			e.universal = id
			e.pinned = pinnedClasses(g)
		} else {
			log.Warn("universal label not in policy, rule disabled", "label", opts.UniversalLabel)
		}
	}

	e.declareVariables()
	e.encodeNodes()
	e.encodeEdges()
	e.compile()

	e.stats.Elapsed = time.Since(start)
	log.Info("encoded instance",
		"nodes", e.stats.Nodes,
		"edges", e.stats.Edges,
		"constraints", e.stats.Constraints,
		"facts", e.stats.Facts,
		"elapsed", e.stats.Elapsed)
	return e, nil
}

// Constraints returns the named constraints in assertion order.
func (e *Encoding) Constraints() []Constraint { return e.constraints }

// Contradictions returns the inconsistencies found before solving.
func (e *Encoding) Contradictions() []Contradiction { return e.contradictions }

// Stats returns the encoding size.
func (e *Encoding) Stats() Stats { return e.stats }

func (e *Encoding) declareVariables() {
	n := e.graph.NumNodes()
	nk := e.policy.NumLevels()
	nl := e.policy.NumLabels()
	e.enc = make([][]z.Lit, n)
	e.taint = make([][]z.Lit, n)
	for i := 0; i < n; i++ {
		e.enc[i] = e.fresh(nk)
		e.taint[i] = e.fresh(nl)
		e.exactlyOne(e.enc[i])
		e.exactlyOne(e.taint[i])
	}
}

func (e *Encoding) fresh(n int) []z.Lit {
	out := make([]z.Lit, n)
	for i := range out {
		out[i] = e.c.Lit()
	}
	return out
}

// exactlyOne adds background clauses. At-most-one uses the sequential
// counter encoding above four literals.
func (e *Encoding) exactlyOne(xs []z.Lit) {
	e.clauses = append(e.clauses, append([]z.Lit(nil), xs...))
	if len(xs) <= 4 {
		for i := 0; i < len(xs); i++ {
			for j := i + 1; j < len(xs); j++ {
				e.clauses = append(e.clauses, []z.Lit{xs[i].Not(), xs[j].Not()})
			}
		}
		return
	}
	s := e.fresh(len(xs) - 1)
	e.clauses = append(e.clauses, []z.Lit{xs[0].Not(), s[0]})
	for i := 1; i < len(xs)-1; i++ {
		e.clauses = append(e.clauses,
			[]z.Lit{xs[i].Not(), s[i]},
			[]z.Lit{s[i-1].Not(), s[i]},
			[]z.Lit{xs[i].Not(), s[i-1].Not()})
	}
	last := len(xs) - 1
	e.clauses = append(e.clauses, []z.Lit{xs[last].Not(), s[last-1].Not()})
}

// assert registers formula f under a fresh selector. Formulas that are
// constantly true can never take part in a conflict and are dropped.
func (e *Encoding) assert(kind model.Kind, rule string, entity int, args []string, f z.Lit, assertion string) {
	if f == e.c.T {
		return
	}
	seq := len(e.constraints)
	parts := append([]string{string(kind), rule, strconv.Itoa(entity)}, args...)
	ct := Constraint{
		Seq:       seq,
		ID:        digest.Sum64(parts...),
		Kind:      kind,
		Rule:      rule,
		Entity:    entity,
		Args:      args,
		Assertion: assertion,
		sel:       e.c.Lit(),
	}
	e.constraints = append(e.constraints, ct)
	e.formulas = append(e.formulas, f)
	e.bySel[ct.sel] = seq
	e.stats.Constraints++
	if kind == model.KindPolicy {
		e.stats.Facts++
	}
}

func (e *Encoding) node(id int, rule string, f z.Lit, assertion string) {
	e.assert(model.KindNode, rule, id, nil, f, assertion)
}

func (e *Encoding) edge(id int, rule string, f z.Lit, assertion string) {
	e.assert(model.KindEdge, rule, id, nil, f, assertion)
}

func (e *Encoding) compile() {
	g := gini.New()
	e.c.ToCnf(g)
	for _, cl := range e.clauses {
		for _, m := range cl {
			g.Add(m)
		}
		g.Add(z.LitNull)
	}
	for _, ct := range e.constraints {
		g.Add(ct.sel.Not())
		g.Add(e.formulas[ct.Seq])
		g.Add(z.LitNull)
	}
	e.solver = g
}

func (e *Encoding) enclaveName(k int) string { return e.policy.Enclave(k) }

func (e *Encoding) labelName(l int) string { return e.policy.Label(l).Name }

func sx(format string, args ...any) string { return fmt.Sprintf(format, args...) }
