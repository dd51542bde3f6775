package backend

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/enclavecheck/internal/pdg"
	"github.com/ppiankov/enclavecheck/internal/policy"
)

// WriteInstance writes the MiniZinc data for g and p: the policy tables
// first, then the graph ranges and relations, then one constraint per user
// annotation.
func WriteInstance(w io.Writer, g *pdg.Graph, p *policy.Model) error {
	var b strings.Builder
	writePolicy(&b, p)
	b.WriteString("\n\n")
	writeGraph(&b, g)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("backend: write minizinc instance: %w", err)
	}
	return nil
}

func mznSet(b *strings.Builder, name, open string, elems []string) {
	end := "]"
	if open == "{" {
		end = "}"
	}
	fmt.Fprintf(b, "%s = %s %s %s;\n", name, open, strings.Join(elems, ", "), end)
}

func mznArray(b *strings.Builder, name string, dims []string, rows []string) {
	fmt.Fprintf(b, "%s = array%dd(%s, [\n  %s\n]);\n", name, len(dims), strings.Join(dims, ", "), strings.Join(rows, ",\n  "))
}

func bools(n int, at func(i int) bool) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.FormatBool(at(i))
	}
	return out
}

func writePolicy(b *strings.Builder, p *policy.Model) {
	mznSet(b, "Level", "{", p.Levels())
	mznSet(b, "Enclave", "{", p.Enclaves())
	mznSet(b, "hasEnclaveLevel", "[", p.Levels())
	b.WriteString("\n")

	labels := p.Labels()
	cdfs := p.CDFs()
	names := make([]string, len(labels))
	levels := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
		levels[i] = p.Level(l.Level)
	}
	mznSet(b, "cleLabel", "{", names)
	mznSet(b, "hasLabelLevel", "[", levels)
	mznSet(b, "isFunctionAnnotation", "[", bools(len(labels), func(i int) bool { return labels[i].Function }))

	ids := make([]string, len(cdfs))
	owners := make([]string, len(cdfs))
	remotes := make([]string, len(cdfs))
	dirs := make([]string, len(cdfs))
	guards := make([]string, len(cdfs))
	for i, c := range cdfs {
		ids[i] = c.ID
		owners[i] = labels[c.Owner].Name
		remotes[i] = p.Level(c.Remote)
		dirs[i] = c.Direction.String()
		guards[i] = c.Guard.String()
	}
	mznSet(b, "cdf", "{", ids)
	mznSet(b, "fromCleLabel", "[", owners)
	mznSet(b, "hasRemotelevel", "[", remotes)
	mznSet(b, "hasDirection", "[", dirs)
	mznSet(b, "hasGuardOperation", "[", guards)
	mznSet(b, "isOneway", "[", bools(len(cdfs), func(i int) bool { return cdfs[i].OneWay }))

	rows := make([]string, len(labels))
	for l := range labels {
		row := make([]string, p.NumLevels())
		for k := range row {
			row[k] = cdfs[p.CDFFor(l, k)].ID
		}
		rows[l] = strings.Join(row, ", ")
	}
	mznArray(b, "cdfForRemoteLevel", []string{"cleLabel", "Level"}, rows)

	table := func(name string, at func(c, l int) bool) {
		rows := make([]string, len(cdfs))
		for c := range cdfs {
			rows[c] = strings.Join(bools(len(labels), func(l int) bool { return at(c, l) }), ", ")
		}
		mznArray(b, name, []string{"cdf", "cleLabel"}, rows)
	}
	table("hasRettaints", p.RetTaint)
	table("hasCodtaints", p.CodTaint)

	argRows := make([]string, len(cdfs))
	for c := range cdfs {
		var flat []string
		for param := 0; param < p.MaxParams(); param++ {
			flat = append(flat, bools(len(labels), func(l int) bool { return p.ArgTaint(c, param, l) })...)
		}
		argRows[c] = strings.Join(flat, ", ")
	}
	mznArray(b, "hasArgtaints", []string{"cdf", "paramIdx", "cleLabel"}, argRows)
	table("hasARCtaints", p.ARCTaint)
}

func mznRange(b *strings.Builder, name string, r pdg.Range) {
	if r.Empty() {
		fmt.Fprintf(b, "%s = 0 .. -1;\n", name)
		return
	}
	fmt.Fprintf(b, "%s = %d .. %d;\n", name, r.First, r.Last)
}

func mznRelation(b *strings.Builder, name string, vals []string) {
	fmt.Fprintf(b, "%s = [\n%s\n];\n", name, strings.Join(vals, ","))
}

func writeGraph(b *strings.Builder, g *pdg.Graph) {
	for t := pdg.NodeType(0); int(t) < pdg.NumNodeTypes; t++ {
		r := g.NodeRange(t)
		// the external model has no annotation node set
		if t == pdg.Annotation && r.Empty() {
			continue
		}
		mznRange(b, strings.ReplaceAll(t.String(), ".", "_"), r)
	}
	mznRange(b, "NodeIdx", pdg.Range{First: 1, Last: g.NumNodes()})
	for t := pdg.EdgeType(0); int(t) < pdg.NumEdgeTypes; t++ {
		mznRange(b, strings.ReplaceAll(t.String(), ".", "_"), g.EdgeRange(t))
	}
	mznRange(b, "EdgeIdx", pdg.Range{First: 1, Last: g.NumEdges()})

	var global, params, class, annotated, function []string
	for _, n := range g.Nodes() {
		if n.Type == pdg.DeclVar {
			global = append(global, strconv.FormatBool(n.Global()))
		}
		if n.Type == pdg.DeclParam {
			params = append(params, strconv.Itoa(max(n.Param, 0)))
		}
		class = append(class, strconv.Itoa(n.Class))
		annotated = append(annotated, strconv.FormatBool(n.Annotated()))
		function = append(function, strconv.Itoa(n.Function))
	}
	var src, dst []string
	for _, e := range g.Edges() {
		src = append(src, strconv.Itoa(e.Src))
		dst = append(dst, strconv.Itoa(e.Dst))
	}
	mznRelation(b, "isGlobal", global)
	mznRelation(b, "hasClass", class)
	mznRelation(b, "userAnnotatedNode", annotated)
	mznRelation(b, "hasFunction", function)
	mznRelation(b, "hasSource", src)
	mznRelation(b, "hasDest", dst)
	mznRelation(b, "hasParamIdx", params)
	fmt.Fprintf(b, "MaxFnParams = %d;\n", g.MaxParams())

	for _, n := range g.Nodes() {
		if n.Annotated() {
			fmt.Fprintf(b, "constraint :: \"TaintOnNodeIdx%d\" taint[%d] = %s;\n", n.ID, n.ID, n.Label)
		}
	}
}
