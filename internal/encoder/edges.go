package encoder

import (
	"github.com/go-air/gini/z"

	"github.com/ppiankov/enclavecheck/internal/pdg"
)

const xdPrefix = "(=> (distinct (nodeEnclave %d) (nodeEnclave %d)) "

// touchesAnnotation reports edges to or from annotation pseudo-nodes, which
// carry no program semantics.
func (e *Encoding) touchesAnnotation(ed pdg.Edge) bool {
	return e.graph.Node(ed.Src).Type == pdg.Annotation || e.graph.Node(ed.Dst).Type == pdg.Annotation
}

func (e *Encoding) encodeEdges() {
	g := e.graph
	for _, ed := range g.EnclaveSafeEdges() {
		if e.touchesAnnotation(ed) {
			continue
		}
		rule := "EnclaveSafeDataEdges"
		if ed.Type.Structural() || ed.Type == pdg.ControlEntry {
			rule = "NonCallRetControlEnclaveSafe"
		}
		e.edge(ed.ID, rule, e.sameEnclave(ed.Src, ed.Dst),
			sx("(= (nodeEnclave %d) (nodeEnclave %d))", ed.Src, ed.Dst))
	}
	for _, ed := range g.EdgesOf(pdg.RecordInherit) {
		if !e.touchesAnnotation(ed) {
			e.edge(ed.ID, "inheritTaint", e.sameTaint(ed.Src, ed.Dst),
				sx("(= (taint %d) (taint %d))", ed.Src, ed.Dst))
		}
	}
	for _, ed := range g.EdgesOf(pdg.ControlReturn) {
		if !e.touchesAnnotation(ed) {
			e.edge(ed.ID, "XDReturnAllowed", e.xdPermits(ed.Src, ed.Dst, ed.Src, ed.Dst),
				xdAllowed(ed.Src, ed.Dst, ed.Src, ed.Dst))
		}
	}
	for _, ed := range g.Invocations() {
		if !e.touchesAnnotation(ed) {
			e.invocation(ed)
		}
	}
	for _, ed := range g.EdgesOf(pdg.DataPointsTo) {
		if !e.touchesAnnotation(ed) {
			e.pointsTo(ed)
		}
	}
	for _, ed := range g.EdgesOf(pdg.DataDefUse) {
		if e.touchesAnnotation(ed) || !(g.IsGlobal(ed.Src) || g.IsGlobal(ed.Dst)) {
			continue
		}
		e.edge(ed.ID, "XDGlobalDataAllowed", e.xdPermits(ed.Src, ed.Dst, ed.Src, ed.Dst),
			xdAllowed(ed.Src, ed.Dst, ed.Src, ed.Dst))
	}
	for _, ed := range g.EdgesOf(pdg.DataArgPass) {
		if !e.touchesAnnotation(ed) {
			e.argPass(ed)
		}
	}
	for _, ed := range g.EdgesOf(pdg.DataReturn) {
		if !e.touchesAnnotation(ed) {
			e.dataReturn(ed)
		}
	}
	for _, ed := range g.DataEdges() {
		switch ed.Type {
		case pdg.DataPointsTo, pdg.DataArgPass, pdg.DataReturn:
			continue
		}
		if !e.touchesAnnotation(ed) {
			e.externData(ed)
		}
	}
}

func xdAllowed(a, b, tainted, placed int) string {
	return sx(xdPrefix+"(allowOrRedact (hasGuardOperation (cdfForRemoteLevel (taint %d) (hasEnclaveLevel (nodeEnclave %d))))))",
		a, b, tainted, placed)
}

func (e *Encoding) invocation(ed pdg.Edge) {
	s, d := ed.Src, ed.Dst
	if !e.graph.Node(d).Annotated() {
		e.edge(ed.ID, "XDCallBlest", e.sameEnclave(s, d),
			sx(xdPrefix+"(userAnnotatedFunction %d))", s, d, d))
	}
	e.edge(ed.ID, "XDCallAllowed", e.xdPermits(s, d, d, s), xdAllowed(s, d, d, s))
	if e.graph.IsIndirectCall(ed) {
		e.edge(ed.ID, "IndirectCallSameEnclave", e.sameEnclave(s, d),
			sx("(= (nodeEnclave %d) (nodeEnclave %d))", s, d))
	}
}

func (e *Encoding) pointsTo(ed pdg.Edge) {
	s, d := ed.Src, ed.Dst
	g := e.graph
	f := e.xdPermits(s, d, d, s)
	if g.FunctionLike(d) {
		f = e.c.And(f, e.sameEnclave(s, d))
	}
	e.edge(ed.ID, "XDPointsToAllowed", f,
		sx(xdPrefix+"(and %s (not (isFunctionLike %d))))", s, d,
			sx("(allowOrRedact (hasGuardOperation (cdfForRemoteLevel (taint %d) (hasEnclaveLevel (nodeEnclave %d)))))", d, s), d))

	eq := sx("(= (taint %d) (taint %d))", s, d)
	if fs, fd := g.Node(s).Function, g.Node(d).Function; fs != 0 && fs == fd {
		e.edge(ed.ID, "intraFunPointsToTaintsMatch", e.sameTaint(s, d), eq)
		return
	}
	e.edge(ed.ID, "interFunPointsToTaintsMatch", e.c.Or(e.xd(s, d), e.sameTaint(s, d)),
		sx("(or (distinct (nodeEnclave %d) (nodeEnclave %d)) %s)", s, d, eq))
}

func (e *Encoding) argPass(ed pdg.Edge) {
	s, d := ed.Src, ed.Dst
	g := e.graph
	e.edge(ed.ID, "XDArgPassAllowed", e.xdPermits(s, d, s, d), xdAllowed(s, d, s, d))

	eq := sx("(= (taint %d) (taint %d))", s, d)
	switch {
	case g.Node(d).Type == pdg.DeclParam:
		fn, annotated := g.AnnotatedFunction(d)
		if !annotated {
			e.edge(ed.ID, "argumentToUnannotatedTaintsMatch", e.sameTaint(s, d), eq)
			return
		}
		e.edge(ed.ID, "argumentInArgtaints", e.inArgs(s, d, fn, s, g.Node(d).Param),
			argTaints(s, d, fn, s, g.Node(d).Param))
	case g.Node(s).Type == pdg.DeclParam:
		fn, annotated := g.AnnotatedFunction(s)
		if !annotated {
			e.edge(ed.ID, "argPassOutFromUnannotatedTaintsMatch", e.sameTaint(s, d), eq)
			return
		}
		e.edge(ed.ID, "argPassOutInArgtaints", e.inArgs(s, d, fn, d, g.Node(s).Param),
			argTaints(s, d, fn, d, g.Node(s).Param))
	}
}

// inArgs holds when the edge crosses enclaves, or every label the tainted
// endpoint may carry is an argument taint of fn at position param.
func (e *Encoding) inArgs(s, d, fn, tainted, param int) z.Lit {
	lf := e.labelOf(fn)
	var xs []z.Lit
	for _, l := range e.candidates(tainted) {
		xs = append(xs, e.implies(e.hasTaint(tainted, l), e.inArg(lf, e.levelOf(l), param, l)))
	}
	return e.c.Or(e.xd(s, d), e.and(xs...))
}

func argTaints(s, d, fn, tainted, param int) string {
	return sx("(or (distinct (nodeEnclave %d) (nodeEnclave %d)) (hasArgtaints (cdfForRemoteLevel (taint %d) (hasLabelLevel (taint %d))) %d (taint %d)))",
		s, d, fn, tainted, param, tainted)
}

func (e *Encoding) dataReturn(ed pdg.Edge) {
	s, d := ed.Src, ed.Dst
	g := e.graph
	e.edge(ed.ID, "XDReturnDataAllowed", e.xdPermits(s, d, s, d), xdAllowed(s, d, s, d))

	fn, annotated := g.AnnotatedFunction(s)
	if !annotated {
		e.edge(ed.ID, "retEdgeFromUnannotatedTaintsMatch", e.sameTaint(s, d),
			sx("(= (taint %d) (taint %d))", s, d))
		return
	}
	lf := e.labelOf(fn)
	var xs []z.Lit
	for _, l := range e.candidates(d) {
		xs = append(xs, e.implies(e.hasTaint(d, l), e.inRet(lf, e.levelOf(l), l)))
	}
	e.edge(ed.ID, "returnNodeInRettaints", e.c.Or(e.xd(s, d), e.and(xs...)),
		sx("(or (distinct (nodeEnclave %d) (nodeEnclave %d)) (hasRettaints (cdfForRemoteLevel (taint %d) (hasLabelLevel (taint %d))) (taint %d)))",
			s, d, fn, d, d))
}

// externData matches labels across data edges that touch code outside any
// function. Data flowing into an annotated function must be one of its
// collateral taints.
func (e *Encoding) externData(ed pdg.Edge) {
	s, d := ed.Src, ed.Dst
	g := e.graph
	if g.FunctionLike(s) || g.FunctionLike(d) {
		return
	}
	fs, fd := g.Node(s).Function, g.Node(d).Function
	eq := sx("(= (taint %d) (taint %d))", s, d)
	switch {
	case fs == 0 && fd == 0:
		e.edge(ed.ID, "externExternDataEdgeTaintsMatch", e.sameTaint(s, d), eq)
		return
	case fs != 0 && fd != 0:
		return
	}
	extern, fn := s, fd
	if fs != 0 {
		extern, fn = d, fs
	}
	if !g.Node(fn).Annotated() {
		e.edge(ed.ID, "externDataEdgeTaintsMatch", e.sameTaint(s, d), eq)
		return
	}
	lf := e.labelOf(fn)
	var xs []z.Lit
	for _, l := range e.candidates(extern) {
		xs = append(xs, e.implies(e.hasTaint(extern, l), e.inARC(lf, e.levelOf(l), l)))
	}
	e.edge(ed.ID, "externDataEdgeInArctaints", e.and(xs...),
		sx("(hasARCtaints (cdfForRemoteLevel (taint %d) (hasLabelLevel (taint %d))) (taint %d))", fn, extern, extern))
}
