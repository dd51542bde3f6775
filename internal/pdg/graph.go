package pdg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/enclavecheck/internal/digest"
)

// NoParam marks a node that is not a function parameter.
const NoParam = -1

// Node is one row of the node table.
type Node struct {
	ID       int
	Type     NodeType
	Line     int
	Label    string
	Function int
	Class    int
	Param    int
	File     string
	Start    int
	End      int
	Name     string
}

// Annotated reports whether the user put a label on the node.
func (n Node) Annotated() bool { return n.Label != "" }

// Global reports a variable declared outside any function or class.
func (n Node) Global() bool {
	return n.Type == DeclVar && n.Function == 0 && n.Class == 0
}

// Edge is one row of the edge table.
type Edge struct {
	ID   int
	Type EdgeType
	Src  int
	Dst  int
}

// Range is an inclusive id range. The empty range is {0, -1}.
type Range struct {
	First int
	Last  int
}

var emptyRange = Range{First: 0, Last: -1}

// Empty reports whether the range holds no ids.
func (r Range) Empty() bool { return r.Last < r.First }

// Len returns the number of ids in the range.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Last - r.First + 1
}

// Contains reports whether id lies in the range.
func (r Range) Contains(id int) bool { return id >= r.First && id <= r.Last }

// StructuralCorruptionError reports input tables that violate the grouping
// and numbering preconditions. It is fatal; nothing downstream can recover.
type StructuralCorruptionError struct {
	Table  string
	Row    int
	Detail string
}

func (e *StructuralCorruptionError) Error() string {
	return fmt.Sprintf("pdg: corrupt %s table at row %d: %s", e.Table, e.Row, e.Detail)
}

// Graph is the immutable program graph.
type Graph struct {
	nodes      []Node
	edges      []Edge
	nodeRanges [NumNodeTypes]Range
	edgeRanges [NumEdgeTypes]Range
	maxParams  int

	// call sites that dereference a pointer to reach their callee
	indirect map[int]bool
}

// New builds a graph from tables grouped by type in taxonomy order with ids
// equal to their 1-based row position.
func New(nodes []Node, edges []Edge, maxParams int) (*Graph, error) {
	g := &Graph{
		nodes:     nodes,
		edges:     edges,
		maxParams: maxParams,
		indirect:  make(map[int]bool),
	}
	for i := range g.nodeRanges {
		g.nodeRanges[i] = emptyRange
	}
	for i := range g.edgeRanges {
		g.edgeRanges[i] = emptyRange
	}

	last := -1
	for i, n := range nodes {
		if n.ID != i+1 {
			return nil, &StructuralCorruptionError{Table: "node", Row: i + 1, Detail: fmt.Sprintf("id %d does not match row position", n.ID)}
		}
		t := int(n.Type)
		if t < last {
			return nil, &StructuralCorruptionError{Table: "node", Row: i + 1, Detail: fmt.Sprintf("%s after %s", n.Type, NodeType(last))}
		}
		if t != last {
			g.nodeRanges[t] = Range{First: n.ID, Last: n.ID}
			last = t
		} else {
			g.nodeRanges[t].Last = n.ID
		}
		if n.Function < 0 || n.Function > len(nodes) || n.Class < 0 || n.Class > len(nodes) {
			return nil, &StructuralCorruptionError{Table: "node", Row: i + 1, Detail: "enclosing function or class out of range"}
		}
	}

	last = -1
	for i, e := range edges {
		if e.ID != i+1 {
			return nil, &StructuralCorruptionError{Table: "edge", Row: i + 1, Detail: fmt.Sprintf("id %d does not match row position", e.ID)}
		}
		t := int(e.Type)
		if t < last {
			return nil, &StructuralCorruptionError{Table: "edge", Row: i + 1, Detail: fmt.Sprintf("%s after %s", e.Type, EdgeType(last))}
		}
		if t != last {
			g.edgeRanges[t] = Range{First: e.ID, Last: e.ID}
			last = t
		} else {
			g.edgeRanges[t].Last = e.ID
		}
		if e.Src < 1 || e.Src > len(nodes) || e.Dst < 1 || e.Dst > len(nodes) {
			return nil, &StructuralCorruptionError{Table: "edge", Row: i + 1, Detail: fmt.Sprintf("endpoint %d -> %d outside node ids", e.Src, e.Dst)}
		}
	}

	for _, e := range g.EdgesOf(DataPointsTo) {
		if g.Node(e.Src).Type == StmtCall {
			g.indirect[e.Src] = true
		}
	}
	return g, nil
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int { return len(g.edges) }

// MaxParams returns the maximum number of function parameters modeled.
func (g *Graph) MaxParams() int { return g.maxParams }

// Node returns the node with the given id.
func (g *Graph) Node(id int) Node { return g.nodes[id-1] }

// Edge returns the edge with the given id.
func (g *Graph) Edge(id int) Edge { return g.edges[id-1] }

// Nodes returns all nodes in id order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns all edges in id order.
func (g *Graph) Edges() []Edge { return g.edges }

// NodeRange returns the id range of a node type.
func (g *Graph) NodeRange(t NodeType) Range { return g.nodeRanges[t] }

// EdgeRange returns the id range of an edge type.
func (g *Graph) EdgeRange(t EdgeType) Range { return g.edgeRanges[t] }

// EdgesOf returns the edges of one type.
func (g *Graph) EdgesOf(t EdgeType) []Edge {
	r := g.edgeRanges[t]
	if r.Empty() {
		return nil
	}
	return g.edges[r.First-1 : r.Last]
}

// FunctionLike reports whether node id is a function, method, constructor
// or destructor.
func (g *Graph) FunctionLike(id int) bool { return g.Node(id).Type.FunctionLike() }

// IsGlobal reports whether node id is a global variable.
func (g *Graph) IsGlobal(id int) bool { return g.Node(id).Global() }

// AnnotatedFunction reports whether node id lies in a user-annotated
// function, and returns that function.
func (g *Graph) AnnotatedFunction(id int) (int, bool) {
	fn := g.Node(id).Function
	if fn == 0 {
		return 0, false
	}
	return fn, g.Node(fn).Annotated()
}

// IsIndirectCall reports whether an invocation edge reaches its callee
// through a pointer: its call site has an outgoing points-to edge.
func (g *Graph) IsIndirectCall(e Edge) bool {
	return e.Type.Invocation() && g.indirect[e.Src]
}

// Invocations returns all call edges of the four invocation kinds.
func (g *Graph) Invocations() []Edge {
	var out []Edge
	for t := ControlFunctionInvocation; t <= ControlDestructorInvocation; t++ {
		out = append(out, g.EdgesOf(t)...)
	}
	return out
}

// DataEdges returns all Data.* edges.
func (g *Graph) DataEdges() []Edge {
	var out []Edge
	for t := DataPointsTo; int(t) < NumEdgeTypes; t++ {
		out = append(out, g.EdgesOf(t)...)
	}
	return out
}

// EnclaveSafeEdges returns edges whose endpoints must share an enclave
// regardless of policy: Record.*, Control.Entry, the local data edges, and
// def-use edges without a global endpoint.
func (g *Graph) EnclaveSafeEdges() []Edge {
	var out []Edge
	for t := RecordField; t <= RecordInherit; t++ {
		out = append(out, g.EdgesOf(t)...)
	}
	out = append(out, g.EdgesOf(ControlEntry)...)
	for _, e := range g.EdgesOf(DataDefUse) {
		if !g.IsGlobal(e.Src) && !g.IsGlobal(e.Dst) {
			out = append(out, e)
		}
	}
	for t := DataObject; int(t) < NumEdgeTypes; t++ {
		out = append(out, g.EdgesOf(t)...)
	}
	return out
}

// Labels returns the distinct user labels in the graph, sorted.
func (g *Graph) Labels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.nodes {
		if n.Annotated() && !seen[n.Label] {
			seen[n.Label] = true
			out = append(out, n.Label)
		}
	}
	sort.Strings(out)
	return out
}

// Fingerprint identifies the content of both tables.
func (g *Graph) Fingerprint() string {
	var b strings.Builder
	for _, n := range g.nodes {
		b.WriteString(strings.Join([]string{
			strconv.Itoa(n.ID), n.Type.String(), strconv.Itoa(n.Line), n.Label,
			strconv.Itoa(n.Function), strconv.Itoa(n.Class), strconv.Itoa(n.Param),
			n.File, strconv.Itoa(n.Start), strconv.Itoa(n.End),
		}, ","))
		b.WriteByte('\n')
	}
	for _, e := range g.edges {
		fmt.Fprintf(&b, "%d,%s,%d,%d\n", e.ID, e.Type, e.Src, e.Dst)
	}
	return digest.String(digest.Sum64(b.String()))
}

// Regroup orders edges by type, keeping relative order within a type, and
// renumbers them so they satisfy the table precondition. Produced edges
// appended after the extracted ones are consumed this way.
func Regroup(edges []Edge) []Edge {
	out := append([]Edge(nil), edges...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}
