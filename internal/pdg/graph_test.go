package pdg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample is a small program: a global, a function with a parameter, a call
// site and a return statement.
const sampleNodes = `id,type,line,label,function,class,param,file,start,end,name
1,Decl.Var,1,ORANGE,0,0,,a.c,0,9,g
2,Decl.Function,3,,0,0,,a.c,11,80,f
3,Decl.Function,10,XD_GET,0,0,,a.c,82,120,get
4,Decl.Param,3,,2,0,0,a.c,18,24,p
5,Stmt.Call,4,,2,0,,a.c,30,40,
6,Stmt.Return,5,,2,0,,a.c,42,60,
`

const sampleEdges = `id,type,src,dst
1,Control.Entry,2,5
2,Control.FunctionInvocation,5,3
3,Data.DefUse,1,5
4,Data.DefUse,4,6
5,Data.ArgPass,5,4
`

func sampleGraph(t *testing.T) *Graph {
	t.Helper()
	nodes, err := ReadNodes(strings.NewReader(sampleNodes))
	require.NoError(t, err)
	edges, err := ReadEdges(strings.NewReader(sampleEdges))
	require.NoError(t, err)
	g, err := New(nodes, edges, 4)
	require.NoError(t, err)
	return g
}

func TestReadNodes(t *testing.T) {
	g := sampleGraph(t)
	require.Equal(t, 6, g.NumNodes())

	n := g.Node(1)
	assert.Equal(t, DeclVar, n.Type)
	assert.Equal(t, "ORANGE", n.Label)
	assert.True(t, n.Global())
	assert.True(t, n.Annotated())
	assert.Equal(t, NoParam, n.Param)
	assert.Equal(t, "g", n.Name)

	p := g.Node(4)
	assert.Equal(t, 0, p.Param)
	assert.Equal(t, 2, p.Function)
	assert.False(t, p.Global())
}

func TestRangesAreContiguousAndCoverAllIDs(t *testing.T) {
	g := sampleGraph(t)

	covered := make(map[int]NodeType)
	for i := 0; i < NumNodeTypes; i++ {
		r := g.NodeRange(NodeType(i))
		for id := r.First; id <= r.Last; id++ {
			_, dup := covered[id]
			require.False(t, dup, "node %d in two ranges", id)
			covered[id] = NodeType(i)
			assert.Equal(t, NodeType(i), g.Node(id).Type)
		}
	}
	assert.Len(t, covered, g.NumNodes())

	edgeCount := 0
	for i := 0; i < NumEdgeTypes; i++ {
		edgeCount += g.EdgeRange(EdgeType(i)).Len()
	}
	assert.Equal(t, g.NumEdges(), edgeCount)

	assert.True(t, g.NodeRange(Annotation).Empty())
	assert.Equal(t, Range{First: 2, Last: 3}, g.NodeRange(DeclFunction))
}

func TestDerivedSets(t *testing.T) {
	g := sampleGraph(t)
	assert.Len(t, g.Invocations(), 1)
	assert.Len(t, g.DataEdges(), 3)

	var safe []int
	for _, e := range g.EnclaveSafeEdges() {
		safe = append(safe, e.ID)
	}
	// the def-use from the global is not structurally safe
	assert.ElementsMatch(t, []int{1, 4}, safe)

	assert.True(t, g.FunctionLike(3))
	assert.False(t, g.FunctionLike(4))
	fn, annotated := g.AnnotatedFunction(5)
	assert.Equal(t, 2, fn)
	assert.False(t, annotated)
	assert.Equal(t, []string{"ORANGE", "XD_GET"}, g.Labels())
}

func TestIndirectCall(t *testing.T) {
	nodes, err := ReadNodes(strings.NewReader(sampleNodes))
	require.NoError(t, err)
	edges, err := ReadEdges(strings.NewReader(sampleEdges))
	require.NoError(t, err)
	edges = Regroup(append(edges, Edge{Type: DataPointsTo, Src: 5, Dst: 3}))
	g, err := New(nodes, edges, 4)
	require.NoError(t, err)

	inv := g.Invocations()
	require.Len(t, inv, 1)
	assert.True(t, g.IsIndirectCall(inv[0]))
	assert.Equal(t, DataPointsTo, g.Edge(3).Type)
}

func TestCorruptTables(t *testing.T) {
	nodes, err := ReadNodes(strings.NewReader(sampleNodes))
	require.NoError(t, err)

	tests := []struct {
		name  string
		nodes []Node
		edges []Edge
	}{
		{"id mismatch", []Node{{ID: 2, Type: DeclVar}}, nil},
		{"type out of order", []Node{{ID: 1, Type: DeclFunction}, {ID: 2, Type: DeclVar}}, nil},
		{"edge endpoint", nodes, []Edge{{ID: 1, Type: DataDefUse, Src: 1, Dst: 99}}},
		{"edge type out of order", nodes, []Edge{
			{ID: 1, Type: DataDefUse, Src: 1, Dst: 2},
			{ID: 2, Type: ControlEntry, Src: 1, Dst: 2},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nodes, tt.edges, 4)
			var sce *StructuralCorruptionError
			assert.ErrorAs(t, err, &sce)
		})
	}
}

func TestReadRejectsUnknownType(t *testing.T) {
	_, err := ReadNodes(strings.NewReader("1,Decl.Thing,1,,0,0,,a.c,0,1\n"))
	var sce *StructuralCorruptionError
	assert.ErrorAs(t, err, &sce)

	_, err = ReadEdges(strings.NewReader("1,Data.Teleport,1,2\n"))
	assert.ErrorAs(t, err, &sce)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := sampleGraph(t)
	b := sampleGraph(t)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	nodes, _ := ReadNodes(strings.NewReader(strings.Replace(sampleNodes, "ORANGE", "PURPLE", 1)))
	edges, _ := ReadEdges(strings.NewReader(sampleEdges))
	c, err := New(nodes, edges, 4)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
