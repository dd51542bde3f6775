package encoder

import (
	"github.com/go-air/gini/z"

	"github.com/ppiankov/enclavecheck/internal/pdg"
)

// inEnclave is the literal "node n sits in enclave k".
func (e *Encoding) inEnclave(n, k int) z.Lit { return e.enc[n-1][k] }

// hasTaint is the literal "node n carries label l".
func (e *Encoding) hasTaint(n, l int) z.Lit { return e.taint[n-1][l] }

func (e *Encoding) and(xs ...z.Lit) z.Lit { return e.c.Ands(xs...) }

func (e *Encoding) or(xs ...z.Lit) z.Lit { return e.c.Ors(xs...) }

func (e *Encoding) implies(a, b z.Lit) z.Lit { return e.c.Implies(a, b) }

// sameEnclave holds when a and b share an enclave. It ranges over every
// enclave, the null one included.
func (e *Encoding) sameEnclave(a, b int) z.Lit {
	if a > b {
		a, b = b, a
	}
	if a == b {
		return e.c.T
	}
	key := [2]int{a, b}
	if m, ok := e.sameEnc[key]; ok {
		return m
	}
	xs := make([]z.Lit, 0, e.policy.NumLevels())
	for k := 0; k < e.policy.NumLevels(); k++ {
		xs = append(xs, e.c.And(e.inEnclave(a, k), e.inEnclave(b, k)))
	}
	m := e.or(xs...)
	e.sameEnc[key] = m
	return m
}

// xd holds when the edge between a and b crosses an enclave boundary.
func (e *Encoding) xd(a, b int) z.Lit { return e.sameEnclave(a, b).Not() }

// sameTaint holds when a and b carry the same label.
func (e *Encoding) sameTaint(a, b int) z.Lit {
	if a > b {
		a, b = b, a
	}
	if a == b {
		return e.c.T
	}
	key := [2]int{a, b}
	if m, ok := e.sameLab[key]; ok {
		return m
	}
	xs := make([]z.Lit, 0, e.policy.NumLabels())
	for l := 0; l < e.policy.NumLabels(); l++ {
		xs = append(xs, e.c.And(e.hasTaint(a, l), e.hasTaint(b, l)))
	}
	m := e.or(xs...)
	e.sameLab[key] = m
	return m
}

// isFn holds when the label of n is a function annotation.
func (e *Encoding) isFn(n int) z.Lit {
	xs := make([]z.Lit, 0, e.policy.NumLabels())
	for l := 0; l < e.policy.NumLabels(); l++ {
		xs = append(xs, e.c.And(e.hasTaint(n, l), e.functionFact(l)))
	}
	return e.or(xs...)
}

// candidates lists the labels n can carry: its own label when annotated,
// otherwise every label. Only universally quantified formulas are narrowed
// this way; the taints constraint covers the rest.
func (e *Encoding) candidates(n int) []int {
	nd := e.graph.Node(n)
	if nd.Annotated() {
		id, _ := e.policy.LabelID(nd.Label)
		return []int{id}
	}
	out := make([]int, e.policy.NumLabels())
	for l := range out {
		out[l] = l
	}
	return out
}

func (e *Encoding) labelOf(n int) int {
	id, _ := e.policy.LabelID(e.graph.Node(n).Label)
	return id
}

func (e *Encoding) levelOf(l int) int { return e.policy.Label(l).Level }

// xdPermits holds when, if a and b sit in different enclaves, the label of
// tainted may flow to the level of the enclave of placed. Pairs where the
// label already lives at that level cannot be cross-domain and are skipped.
func (e *Encoding) xdPermits(a, b, tainted, placed int) z.Lit {
	xd := e.xd(a, b)
	var xs []z.Lit
	for _, l := range e.candidates(tainted) {
		for k := 1; k < e.policy.NumLevels(); k++ {
			if k == e.levelOf(l) {
				continue
			}
			lhs := e.and(xd, e.hasTaint(tainted, l), e.inEnclave(placed, k))
			xs = append(xs, e.implies(lhs, e.permits(l, k)))
		}
	}
	return e.and(xs...)
}

// classOf returns the class a node belongs to, directly or through its
// enclosing function.
func classOf(g *pdg.Graph, id int) int {
	n := g.Node(id)
	if n.Class != 0 {
		return n.Class
	}
	if n.Function != 0 && n.Function != id {
		return g.Node(n.Function).Class
	}
	return 0
}
