// Package explain turns an unsatisfiable core into text a developer can act
// on: every conflicting constraint is anchored to the source lines and
// policy entries it came from.
package explain

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/enclavecheck/internal/encoder"
	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/pdg"
)

const (
	header     = "; EXPLANATION FOR UNSATISFIABILITY\n"
	footer     = "\n(check-sat)"
	factPrefix = "; Fact: "
)

// Item is one explained assertion.
type Item struct {
	Kind      model.Kind
	Rule      string
	Entity    int
	Args      []string
	Assertion string
}

// Items collects what makes res unsatisfiable: the encoding contradictions
// when there are any, the core otherwise.
func Items(res *encoder.Result) []Item {
	var out []Item
	for _, c := range res.Contradictions {
		out = append(out, Item{Kind: model.KindEdge, Rule: c.Rule, Entity: c.Edge, Assertion: c.Assertion})
	}
	for _, c := range res.Core {
		out = append(out, Item{Kind: c.Kind, Rule: c.Rule, Entity: c.Entity, Args: c.Args, Assertion: c.Assertion})
	}
	return out
}

// Render writes the explanation for items over graph g.
func Render(w io.Writer, g *pdg.Graph, items []Item) error {
	var b strings.Builder
	b.WriteString(header)
	for _, it := range items {
		b.WriteString("\n")
		b.WriteString(block(g, it))
		fmt.Fprintf(&b, "\n(assert %s)\n", it.Assertion)
	}
	b.WriteString(footer)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("explain: write: %w", err)
	}
	return nil
}

// String renders items to a string.
func String(g *pdg.Graph, items []Item) string {
	var b strings.Builder
	_ = Render(&b, g, items)
	return b.String()
}

func block(g *pdg.Graph, it Item) string {
	switch it.Kind {
	case model.KindNode:
		if it.Entity < 1 || it.Entity > g.NumNodes() {
			break
		}
		return "; NODE\n" + location(g, it.Entity) + "; Rule:\n;     " + Message(it.Rule)
	case model.KindEdge:
		if it.Entity < 1 || it.Entity > g.NumEdges() {
			break
		}
		e := g.Edge(it.Entity)
		return "; EDGE FROM\n" + location(g, e.Src) +
			"; TO\n" + location(g, e.Dst) +
			"; Rule:\n;     " + Message(it.Rule)
	case model.KindPolicy:
		return factPrefix + Message(it.Rule, it.Args...)
	}
	return "; Rule:\n;     " + Message(it.Rule)
}

func location(g *pdg.Graph, id int) string {
	n := g.Node(id)
	return fmt.Sprintf(";     File:     %s\n;     Function: %s\n;     Line:     %d\n;     Label:    %s\n",
		n.File, functionOf(g, n), n.Line, n.Label)
}

func functionOf(g *pdg.Graph, n pdg.Node) string {
	if n.Function == 0 || n.Function > g.NumNodes() {
		return "None"
	}
	fn := g.Node(n.Function)
	if fn.Name != "" {
		return fn.Name
	}
	return "node " + strconv.Itoa(fn.ID) + " at line " + strconv.Itoa(fn.Line)
}
