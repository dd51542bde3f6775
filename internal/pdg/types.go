package pdg

import "fmt"

// NodeType is the kind of a program graph node. The declaration order is the
// order nodes are grouped in the node table.
type NodeType int

const (
	DeclVar NodeType = iota
	DeclFunction
	DeclRecord
	DeclField
	DeclMethod
	DeclParam
	DeclConstructor
	DeclDestructor
	StmtDecl
	StmtCall
	StmtCompound
	StmtRef
	StmtField
	StmtThis
	StmtReturn
	StmtOther
	Annotation

	NumNodeTypes = int(Annotation) + 1
)

var nodeTypeNames = [NumNodeTypes]string{
	"Decl.Var", "Decl.Function", "Decl.Record", "Decl.Field", "Decl.Method",
	"Decl.Param", "Decl.Constructor", "Decl.Destructor",
	"Stmt.Decl", "Stmt.Call", "Stmt.Compound", "Stmt.Ref", "Stmt.Field",
	"Stmt.This", "Stmt.Return", "Stmt.Other",
	"Annotation",
}

func (t NodeType) String() string {
	if t < 0 || int(t) >= NumNodeTypes {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// ParseNodeType maps a node type name from the node table.
func ParseNodeType(s string) (NodeType, bool) {
	for i, name := range nodeTypeNames {
		if name == s {
			return NodeType(i), true
		}
	}
	return 0, false
}

// FunctionLike reports whether nodes of this type are function definitions.
func (t NodeType) FunctionLike() bool {
	switch t {
	case DeclFunction, DeclMethod, DeclConstructor, DeclDestructor:
		return true
	}
	return false
}

// EdgeType is the kind of a program graph edge, in edge table order.
type EdgeType int

const (
	RecordField EdgeType = iota
	RecordMethod
	RecordConstructor
	RecordDestructor
	RecordInherit
	ControlReturn
	ControlEntry
	ControlFunctionInvocation
	ControlMethodInvocation
	ControlConstructorInvocation
	ControlDestructorInvocation
	DataPointsTo
	DataDefUse
	DataArgPass
	DataReturn
	DataObject
	DataFieldAccess
	DataInstanceOf
	DataDecl
	DataChild

	NumEdgeTypes = int(DataChild) + 1
)

var edgeTypeNames = [NumEdgeTypes]string{
	"Record.Field", "Record.Method", "Record.Constructor", "Record.Destructor", "Record.Inherit",
	"Control.Return", "Control.Entry",
	"Control.FunctionInvocation", "Control.MethodInvocation",
	"Control.ConstructorInvocation", "Control.DestructorInvocation",
	"Data.PointsTo", "Data.DefUse", "Data.ArgPass", "Data.Return", "Data.Object",
	"Data.FieldAccess", "Data.InstanceOf", "Data.Decl", "Data.Child",
}

func (t EdgeType) String() string {
	if t < 0 || int(t) >= NumEdgeTypes {
		return fmt.Sprintf("EdgeType(%d)", int(t))
	}
	return edgeTypeNames[t]
}

// ParseEdgeType maps an edge type name from the edge table.
func ParseEdgeType(s string) (EdgeType, bool) {
	for i, name := range edgeTypeNames {
		if name == s {
			return EdgeType(i), true
		}
	}
	return 0, false
}

// Structural reports Record.* edges.
func (t EdgeType) Structural() bool { return t <= RecordInherit }

// Invocation reports the four call edge kinds.
func (t EdgeType) Invocation() bool {
	return t >= ControlFunctionInvocation && t <= ControlDestructorInvocation
}

// Data reports Data.* edges.
func (t EdgeType) Data() bool { return t >= DataPointsTo }
