package ptfuse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/enclavecheck/internal/pdg"
)

func graph(t *testing.T) *pdg.Graph {
	t.Helper()
	nodes, err := pdg.ReadNodes(strings.NewReader(`1,Decl.Var,1,,0,0,,a.c,0,9
2,Decl.Var,2,ORANGE,0,0,,a.c,10,19
3,Decl.Var,3,PURPLE,0,0,,a.c,20,29
4,Decl.Function,4,,0,0,,a.c,30,90
`))
	require.NoError(t, err)
	edges, err := pdg.ReadEdges(strings.NewReader("1,Data.DefUse,2,1\n"))
	require.NoError(t, err)
	g, err := pdg.New(nodes, edges, 4)
	require.NoError(t, err)
	return g
}

func TestProduce(t *testing.T) {
	ptNodes, err := ReadNodes(strings.NewReader(`1,ValPN,'p',,
2,ObjPN,'x',,
3,ObjPN,'y',,
4,ValPN,'f',7,
5,ValPN,'unmapped',,
`))
	require.NoError(t, err)
	ptEdges, err := ReadEdges(strings.NewReader("1,2\n1,3\n1,2\n4,1\n1,5\n"))
	require.NoError(t, err)
	refs, err := ReadDeclRefs(strings.NewReader(`p,,,a.c,3
x,,,a.c,12
y,,,a.c,25
f,7,,a.c,40
`))
	require.NoError(t, err)

	f := &Fuser{Nodes: ptNodes, Edges: ptEdges, Refs: refs}
	var producer EdgeProducer = f
	edges, err := producer.Produce(graph(t))
	require.NoError(t, err)

	require.Len(t, edges, 3)
	assert.Equal(t, pdg.Edge{ID: 2, Type: pdg.DataPointsTo, Src: 1, Dst: 2}, edges[0])
	assert.Equal(t, pdg.Edge{ID: 3, Type: pdg.DataPointsTo, Src: 1, Dst: 3}, edges[1])
	assert.Equal(t, pdg.Edge{ID: 4, Type: pdg.DataPointsTo, Src: 4, Dst: 1}, edges[2])
}

func TestProduceSkipsSelfLoops(t *testing.T) {
	f := &Fuser{
		Nodes: []PTNode{{ID: 1, LLID: LLID{Name: "a"}}, {ID: 2, LLID: LLID{Name: "b"}}},
		Edges: []PTEdge{{Src: 1, Dst: 2}},
		Refs: []DeclRef{
			{ID: LLID{Name: "a"}, File: "a.c", Offset: 5},
			{ID: LLID{Name: "b"}, File: "a.c", Offset: 6},
		},
	}
	edges, err := f.Produce(graph(t))
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestProduceUnknownPointerNode(t *testing.T) {
	f := &Fuser{Edges: []PTEdge{{Src: 1, Dst: 2}}}
	_, err := f.Produce(graph(t))
	assert.Error(t, err)
}

func TestLLIDNormalization(t *testing.T) {
	assert.Equal(t, LLID{Name: "f", Param: 2}, newLLID("f", 5, 2))
	assert.Equal(t, LLID{Name: "f", Inst: 5}, newLLID("f", 5, 0))
	assert.Equal(t, LLID{Name: "f"}, newLLID("f", 0, 0))
}

func TestProducedEdgesRegroup(t *testing.T) {
	g := graph(t)
	f := &Fuser{
		Nodes: []PTNode{{ID: 1, LLID: LLID{Name: "p"}}, {ID: 2, LLID: LLID{Name: "x"}}},
		Edges: []PTEdge{{Src: 1, Dst: 2}},
		Refs: []DeclRef{
			{ID: LLID{Name: "p"}, File: "a.c", Offset: 1},
			{ID: LLID{Name: "x"}, File: "a.c", Offset: 15},
		},
	}
	extra, err := f.Produce(g)
	require.NoError(t, err)
	merged := pdg.Regroup(append(append([]pdg.Edge(nil), g.Edges()...), extra...))
	g2, err := pdg.New(g.Nodes(), merged, 4)
	require.NoError(t, err)
	assert.Equal(t, pdg.Range{First: 1, Last: 1}, g2.EdgeRange(pdg.DataPointsTo))
	assert.Equal(t, pdg.Range{First: 2, Last: 2}, g2.EdgeRange(pdg.DataDefUse))
}
