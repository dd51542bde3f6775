package encoder

import "github.com/ppiankov/enclavecheck/internal/pdg"

// harden looks for graph shapes no labeling can satisfy. A user-annotated
// function reached through a pointer would have to carry both its own label
// and that of every pointer aimed at it.
func (e *Encoding) harden() {
	g := e.graph
	for _, ed := range g.EdgesOf(pdg.DataPointsTo) {
		d := g.Node(ed.Dst)
		if d.Type.FunctionLike() && d.Annotated() {
			e.contradictions = append(e.contradictions, Contradiction{
				Rule:      "FunctionPtrSinglyTainted",
				Edge:      ed.ID,
				Assertion: sx("(=> (isFunctionLike %d) (not (userAnnotatedFunction %d)))", d.ID, d.ID),
			})
		}
	}
	for _, ed := range g.Invocations() {
		if g.IsIndirectCall(ed) && g.Node(ed.Dst).Annotated() {
			e.contradictions = append(e.contradictions, Contradiction{
				Rule:      "IndirectCalleeSinglyTainted",
				Edge:      ed.ID,
				Assertion: sx("(=> (indirectCall %d) (not (userAnnotatedFunction %d)))", ed.Src, ed.Dst),
			})
		}
	}
}

// pinnedClasses returns the classes whose nodes may not take the universal
// label: classes that are annotated, have an annotated member, or exchange
// edges with annotated code outside them.
func pinnedClasses(g *pdg.Graph) map[int]bool {
	pinned := make(map[int]bool)
	annotatedOrInAnnotated := func(id int) bool {
		if g.Node(id).Annotated() {
			return true
		}
		_, ok := g.AnnotatedFunction(id)
		return ok
	}
	for _, n := range g.Nodes() {
		if n.Type == pdg.Annotation || !n.Annotated() {
			continue
		}
		if n.Type == pdg.DeclRecord {
			pinned[n.ID] = true
		}
		if c := classOf(g, n.ID); c != 0 {
			pinned[c] = true
		}
	}
	for _, ed := range g.Edges() {
		cs, cd := classOf(g, ed.Src), classOf(g, ed.Dst)
		if g.Node(ed.Src).Type == pdg.DeclRecord {
			cs = ed.Src
		}
		if g.Node(ed.Dst).Type == pdg.DeclRecord {
			cd = ed.Dst
		}
		if cs == cd {
			continue
		}
		if cs != 0 && annotatedOrInAnnotated(ed.Dst) {
			pinned[cs] = true
		}
		if cd != 0 && annotatedOrInAnnotated(ed.Src) {
			pinned[cd] = true
		}
	}
	return pinned
}
