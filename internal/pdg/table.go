package pdg

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Node table columns: id,type,line,label,function,class,param,file,start,end
// with an optional trailing name. Edge table columns: id,type,src,dst.
const (
	nodeColumns    = 10
	nodeColumnsMax = 11
	edgeColumns    = 4
)

// ReadNodes parses a node table. A header row starting with "id" is skipped.
func ReadNodes(r io.Reader) ([]Node, error) {
	var nodes []Node
	err := readTable(r, "node", func(row int, rec []string) error {
		if len(rec) < nodeColumns || len(rec) > nodeColumnsMax {
			return &StructuralCorruptionError{Table: "node", Row: row, Detail: fmt.Sprintf("expected %d columns, got %d", nodeColumns, len(rec))}
		}
		t, ok := ParseNodeType(rec[1])
		if !ok {
			return &StructuralCorruptionError{Table: "node", Row: row, Detail: fmt.Sprintf("unknown node type %q", rec[1])}
		}
		var ints [7]int
		for i, col := range []int{0, 2, 4, 5, 6, 8, 9} {
			def := 0
			if col == 6 {
				def = NoParam
			}
			v, err := atoiOr(rec[col], def)
			if err != nil {
				return &StructuralCorruptionError{Table: "node", Row: row, Detail: fmt.Sprintf("column %d: %v", col+1, err)}
			}
			ints[i] = v
		}
		n := Node{
			ID:       ints[0],
			Type:     t,
			Line:     ints[1],
			Label:    rec[3],
			Function: ints[2],
			Class:    ints[3],
			Param:    ints[4],
			File:     rec[7],
			Start:    ints[5],
			End:      ints[6],
		}
		if len(rec) == nodeColumnsMax {
			n.Name = rec[10]
		}
		nodes = append(nodes, n)
		return nil
	})
	return nodes, err
}

// ReadEdges parses an edge table. A header row starting with "id" is skipped.
func ReadEdges(r io.Reader) ([]Edge, error) {
	var edges []Edge
	err := readTable(r, "edge", func(row int, rec []string) error {
		if len(rec) != edgeColumns {
			return &StructuralCorruptionError{Table: "edge", Row: row, Detail: fmt.Sprintf("expected %d columns, got %d", edgeColumns, len(rec))}
		}
		t, ok := ParseEdgeType(rec[1])
		if !ok {
			return &StructuralCorruptionError{Table: "edge", Row: row, Detail: fmt.Sprintf("unknown edge type %q", rec[1])}
		}
		var ints [3]int
		for i, col := range []int{0, 2, 3} {
			v, err := strconv.Atoi(rec[col])
			if err != nil {
				return &StructuralCorruptionError{Table: "edge", Row: row, Detail: fmt.Sprintf("column %d: %v", col+1, err)}
			}
			ints[i] = v
		}
		edges = append(edges, Edge{ID: ints[0], Type: t, Src: ints[1], Dst: ints[2]})
		return nil
	})
	return edges, err
}

func readTable(r io.Reader, table string, fn func(row int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comment = '#'

	row := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pdg: read %s table: %w", table, err)
		}
		row++
		for i := range rec {
			rec[i] = strings.Trim(strings.TrimSpace(rec[i]), "'")
		}
		if row == 1 && strings.EqualFold(rec[0], "id") {
			row = 0
			continue
		}
		if err := fn(row, rec); err != nil {
			return err
		}
	}
}

func atoiOr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
