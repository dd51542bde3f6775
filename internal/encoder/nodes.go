package encoder

import (
	"github.com/go-air/gini/z"

	"github.com/ppiankov/enclavecheck/internal/pdg"
)

func (e *Encoding) encodeNodes() {
	for _, n := range e.graph.Nodes() {
		if n.Type == pdg.Annotation {
			e.node(n.ID, "AnnotationHasNoEnclave", e.inEnclave(n.ID, 0),
				sx("(= (nodeEnclave %d) nullEnclave)", n.ID))
			continue
		}
		if n.Annotated() {
			e.node(n.ID, "taints", e.hasTaint(n.ID, e.labelOf(n.ID)),
				sx("(= (taint %d) %s)", n.ID, n.Label))
		}
		e.placeNode(n)
		e.levelNode(n)
		e.annotationPlacement(n)
		if fn := n.Function; fn != 0 && fn != n.ID && !n.Type.FunctionLike() {
			e.functionContent(n, fn)
		}
		if n.Class != 0 && n.Class != n.ID && (n.Function == 0 || n.Function == n.ID) {
			e.classMember(n)
		}
		if e.universal >= 0 {
			e.universalLabel(n)
		}
	}
}

// placeNode ties a node to the enclave of its function or class. Free
// standing nodes only need some enclave.
func (e *Encoding) placeNode(n pdg.Node) {
	switch {
	case n.Function != 0 && n.Function != n.ID:
		e.node(n.ID, "NodeEnclaveIsFunEnclave", e.sameEnclave(n.ID, n.Function),
			sx("(= (nodeEnclave %d) (nodeEnclave %d))", n.ID, n.Function))
	case n.Class != 0 && n.Class != n.ID:
		e.node(n.ID, "NodeEnclaveIsClassEnclave", e.sameEnclave(n.ID, n.Class),
			sx("(= (nodeEnclave %d) (nodeEnclave %d))", n.ID, n.Class))
	default:
		e.node(n.ID, "NodeHasEnclave", e.inEnclave(n.ID, 0).Not(),
			sx("(not (= (nodeEnclave %d) nullEnclave))", n.ID))
	}
}

func (e *Encoding) levelNode(n pdg.Node) {
	var xs []z.Lit
	for _, l := range e.candidates(n.ID) {
		lhs := e.c.And(e.hasTaint(n.ID, l), e.levelFact(l))
		xs = append(xs, e.implies(lhs, e.inEnclave(n.ID, e.levelOf(l))))
	}
	e.node(n.ID, "NodeLevelAtEnclaveLevel", e.and(xs...),
		sx("(= (hasEnclaveLevel (nodeEnclave %d)) (hasLabelLevel (taint %d)))", n.ID, n.ID))
}

// annotationPlacement keeps function annotations on functions the user
// annotated, and data annotations everywhere else.
func (e *Encoding) annotationPlacement(n pdg.Node) {
	notFn := sx("(not (isFunctionAnnotation (taint %d)))", n.ID)
	switch {
	case n.Type.FunctionLike() && n.Annotated():
		e.node(n.ID, "annotationOnFunctionIsFunAnnotation", e.isFn(n.ID),
			sx("(isFunctionAnnotation (taint %d))", n.ID))
	case n.Type.FunctionLike():
		e.node(n.ID, "FnAnnotationByUserOnly", e.isFn(n.ID).Not(), notFn)
	case n.Type == pdg.DeclRecord && n.Annotated():
		e.node(n.ID, "annotationOnClassIsNodeAnnotation", e.isFn(n.ID).Not(), notFn)
	case n.Type == pdg.DeclField && n.Annotated():
		e.node(n.ID, "annotationOnFieldIsNodeAnnotation", e.isFn(n.ID).Not(), notFn)
	default:
		e.node(n.ID, "FnAnnotationForFnOnly", e.isFn(n.ID).Not(), notFn)
	}
}

// functionContent constrains a node inside function fn. Content of an
// unannotated function shares its label; an annotated function may coerce
// its content to any taint its flow rules list.
func (e *Encoding) functionContent(n pdg.Node, fn int) {
	if !e.graph.Node(fn).Annotated() {
		e.node(n.ID, "UnannotatedFunContentTaintMatch", e.sameTaint(n.ID, fn),
			sx("(= (taint %d) (taint %d))", n.ID, fn))
		return
	}
	lf := e.labelOf(fn)
	var xs []z.Lit
	for _, l := range e.candidates(n.ID) {
		lhs := e.c.And(e.hasTaint(fn, lf), e.hasTaint(n.ID, l))
		xs = append(xs, e.implies(lhs, e.inARC(lf, e.levelOf(l), l)))
	}
	e.node(n.ID, "AnnotatedFunContentCoercible", e.and(xs...),
		sx("(hasARCtaints (cdfForRemoteLevel (taint %d) (hasLabelLevel (taint %d))) (taint %d))", fn, n.ID, n.ID))
}

func (e *Encoding) classMember(n pdg.Node) {
	cls := n.Class
	classAnnotated := e.graph.Node(cls).Annotated()
	same := e.sameTaint(n.ID, cls)
	eq := sx("(= (taint %d) (taint %d))", n.ID, cls)

	switch n.Type {
	case pdg.DeclField:
		if classAnnotated {
			return
		}
		e.node(n.ID, "UnannotatedClassTaintsMatch", same, eq)
		if n.Annotated() {
			e.node(n.ID, "noAnnotatedDataForUnannotatedClass", e.c.F,
				sx("(not (userAnnotated %d))", n.ID))
		}
	case pdg.DeclMethod:
		if !n.Annotated() {
			e.node(n.ID, "unannotatedMethodGetsClassTaint", same, eq)
		}
	case pdg.DeclDestructor:
		if !n.Annotated() {
			e.node(n.ID, "unannotatedDestructorGetsClassTaint", same, eq)
		}
	case pdg.DeclConstructor:
		if !n.Annotated() {
			e.node(n.ID, "unannotatedConstructorGetsClassTaint", same, eq)
			return
		}
		lf := e.labelOf(n.ID)
		var xs []z.Lit
		for _, lc := range e.candidates(cls) {
			lhs := e.c.And(e.hasTaint(n.ID, lf), e.hasTaint(cls, lc))
			xs = append(xs, e.implies(lhs, e.inRet(lf, e.levelOf(lc), lc)))
		}
		e.node(n.ID, "annotatedConstructorReturnsClassTaint", e.and(xs...),
			sx("(hasRettaints (cdfForRemoteLevel (taint %d) (hasLabelLevel (taint %d))) (taint %d))", n.ID, cls, cls))
	}
}

// universalLabel keeps the universal label off nodes outside any class and
// off nodes of pinned classes.
func (e *Encoding) universalLabel(n pdg.Node) {
	all := e.hasTaint(n.ID, e.universal)
	name := e.labelName(e.universal)
	cls := classOf(e.graph, n.ID)
	if n.Type == pdg.DeclRecord {
		cls = n.ID
	}
	switch {
	case cls == 0:
		e.node(n.ID, "definitionForALL", all.Not(),
			sx("(not (= (taint %d) %s))", n.ID, name))
	case e.pinned[cls]:
		e.node(n.ID, "definitionForALL", e.c.Or(e.pinnedFact(cls).Not(), all.Not()),
			sx("(=> (isPinned %d) (not (= (taint %d) %s)))", cls, n.ID, name))
	}
}
