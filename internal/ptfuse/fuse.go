// Package ptfuse turns the results of an external pointer analysis into
// Data.PointsTo edges of the program graph.
package ptfuse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/enclavecheck/internal/pdg"
)

// EdgeProducer contributes extra edges to a program graph.
type EdgeProducer interface {
	Produce(g *pdg.Graph) ([]pdg.Edge, error)
}

// LLID identifies a value in the analyzed intermediate representation: a
// global name, optionally narrowed to an instruction or a parameter. Zero
// means absent.
type LLID struct {
	Name  string
	Inst  int
	Param int
}

func newLLID(name string, inst, param int) LLID {
	switch {
	case param != 0:
		return LLID{Name: name, Param: param}
	case inst != 0:
		return LLID{Name: name, Inst: inst}
	}
	return LLID{Name: name}
}

// DeclRef places an LLID at a source offset.
type DeclRef struct {
	ID     LLID
	File   string
	Offset int
}

// PTNode is a node of the pointer analysis graph.
type PTNode struct {
	ID   int
	Type string
	LLID LLID
}

// PTEdge says Src may point to Dst.
type PTEdge struct {
	Src int
	Dst int
}

// Fuser maps pointer analysis edges onto declaration nodes.
type Fuser struct {
	Nodes []PTNode
	Edges []PTEdge
	Refs  []DeclRef
}

// Produce returns one Data.PointsTo edge per distinct pair of declarations
// related by the pointer analysis. Ids continue after the graph's edges;
// pass the combined table through pdg.Regroup before building a graph.
func (f *Fuser) Produce(g *pdg.Graph) ([]pdg.Edge, error) {
	idx := g.DeclIndex()
	decls := make(map[LLID]int, len(f.Refs))
	for _, r := range f.Refs {
		if id, ok := idx.Lookup(r.File, r.Offset); ok {
			decls[r.ID] = id
		}
	}

	nodes := make(map[int]LLID, len(f.Nodes))
	for _, n := range f.Nodes {
		nodes[n.ID] = n.LLID
	}

	type pair struct{ src, dst int }
	seen := make(map[pair]bool)
	var out []pdg.Edge
	next := g.NumEdges() + 1
	for _, e := range f.Edges {
		src, okS := nodes[e.Src]
		dst, okD := nodes[e.Dst]
		if !okS || !okD {
			return nil, fmt.Errorf("ptfuse: edge %d -> %d references unknown pointer node", e.Src, e.Dst)
		}
		s, okS := decls[src]
		d, okD := decls[dst]
		if !okS || !okD || s == d {
			continue
		}
		p := pair{s, d}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, pdg.Edge{ID: next, Type: pdg.DataPointsTo, Src: s, Dst: d})
		next++
	}
	return out, nil
}

// ReadNodes parses the pointer analysis node table. The last three columns
// are the LLID: global name, instruction index, parameter index.
func ReadNodes(r io.Reader) ([]PTNode, error) {
	var out []PTNode
	err := readCSV(r, '\'', func(rec []string) error {
		if len(rec) < 5 {
			return fmt.Errorf("expected at least 5 columns, got %d", len(rec))
		}
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return err
		}
		llid, err := parseLLID(rec[len(rec)-3:])
		if err != nil {
			return err
		}
		out = append(out, PTNode{ID: id, Type: rec[1], LLID: llid})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ptfuse: read nodes: %w", err)
	}
	return out, nil
}

// ReadEdges parses the pointer analysis edge table (src,dst).
func ReadEdges(r io.Reader) ([]PTEdge, error) {
	var out []PTEdge
	err := readCSV(r, '"', func(rec []string) error {
		if len(rec) < 2 {
			return fmt.Errorf("expected 2 columns, got %d", len(rec))
		}
		src, err := strconv.Atoi(rec[0])
		if err != nil {
			return err
		}
		dst, err := strconv.Atoi(rec[1])
		if err != nil {
			return err
		}
		out = append(out, PTEdge{Src: src, Dst: dst})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ptfuse: read edges: %w", err)
	}
	return out, nil
}

// ReadDeclRefs parses the declaration reference table
// (global,inst,param,file,offset).
func ReadDeclRefs(r io.Reader) ([]DeclRef, error) {
	var out []DeclRef
	err := readCSV(r, '"', func(rec []string) error {
		if len(rec) < 5 {
			return fmt.Errorf("expected 5 columns, got %d", len(rec))
		}
		llid, err := parseLLID(rec[0:3])
		if err != nil {
			return err
		}
		off, err := atoiOr(rec[4])
		if err != nil {
			return err
		}
		out = append(out, DeclRef{ID: llid, File: rec[3], Offset: off})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ptfuse: read declaration refs: %w", err)
	}
	return out, nil
}

func parseLLID(cols []string) (LLID, error) {
	inst, err := atoiOr(cols[1])
	if err != nil {
		return LLID{}, err
	}
	param, err := atoiOr(cols[2])
	if err != nil {
		return LLID{}, err
	}
	return newLLID(cols[0], inst, param), nil
}

func atoiOr(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// readCSV reads records with the given quote character. encoding/csv only
// knows '"', so single-quoted tables are unquoted per field.
func readCSV(r io.Reader, quote rune, fn func(rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line++
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
			if quote != '"' {
				rec[i] = strings.Trim(rec[i], string(quote))
			}
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}
