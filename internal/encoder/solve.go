package encoder

import (
	"sort"
	"time"

	"github.com/go-air/gini/z"

	"github.com/ppiankov/enclavecheck/internal/model"
)

// Result is the outcome of solving an encoding.
type Result struct {
	Status         model.Status       `json:"status"`
	Assignment     []model.Assignment `json:"assignment,omitempty"`
	Core           []Constraint       `json:"core,omitempty"`
	Contradictions []Contradiction    `json:"contradictions,omitempty"`
	Stats          Stats              `json:"stats"`
	Solves         int                `json:"solves"`
	SolveTime      time.Duration      `json:"solve_time"`
}

// Solve decides the instance. On UNSAT the core lists the constraints that
// conflict, in assertion order; with minimize every constraint in it is
// necessary. An instance with contradictions is unsatisfiable without
// running the solver.
func (e *Encoding) Solve(minimize bool) (*Result, error) {
	start := time.Now()
	res := &Result{Contradictions: e.contradictions, Stats: e.stats}
	if len(e.contradictions) > 0 {
		res.Status = model.Unsatisfiable
		return res, nil
	}

	all := make([]int, len(e.constraints))
	for i := range all {
		all[i] = i
	}
	switch e.solve(all, res) {
	case 1:
		res.Status = model.Satisfiable
		res.Assignment = e.assignment()
	case -1:
		res.Status = model.Unsatisfiable
		core := e.why()
		if minimize {
			var err error
			if core, err = e.minimize(core, res); err != nil {
				return nil, err
			}
		}
		res.Core = make([]Constraint, len(core))
		for i, seq := range core {
			res.Core[i] = e.constraints[seq]
		}
	default:
		return nil, ErrIndeterminate
	}
	res.SolveTime = time.Since(start)
	e.log.Info("solved instance",
		"status", res.Status,
		"core", len(res.Core),
		"solves", res.Solves,
		"elapsed", res.SolveTime)
	return res, nil
}

func (e *Encoding) solve(seqs []int, res *Result) int {
	sels := make([]z.Lit, len(seqs))
	for i, seq := range seqs {
		sels[i] = e.constraints[seq].sel
	}
	e.solver.Assume(sels...)
	res.Solves++
	return e.solver.Solve()
}

// why maps the failed assumptions of the last solve back to constraint
// sequence numbers.
func (e *Encoding) why() []int {
	failed := e.solver.Why(nil)
	out := make([]int, 0, len(failed))
	for _, m := range failed {
		if seq, ok := e.bySel[m]; ok {
			out = append(out, seq)
		}
	}
	sort.Ints(out)
	return out
}

// minimize drops constraints one at a time, keeping a drop whenever the rest
// stays unsatisfiable. Constraints before the cursor are necessary, so the
// smaller core returned by the solver always keeps them as its prefix.
func (e *Encoding) minimize(core []int, res *Result) ([]int, error) {
	for i := 0; i < len(core); {
		trial := make([]int, 0, len(core)-1)
		trial = append(trial, core[:i]...)
		trial = append(trial, core[i+1:]...)
		switch e.solve(trial, res) {
		case -1:
			core = e.why()
		case 1:
			i++
		default:
			return nil, ErrIndeterminate
		}
	}
	return core, nil
}

func (e *Encoding) assignment() []model.Assignment {
	out := make([]model.Assignment, 0, e.graph.NumNodes())
	for id := 1; id <= e.graph.NumNodes(); id++ {
		a := model.Assignment{Node: id}
		for k, m := range e.enc[id-1] {
			if e.solver.Value(m) {
				a.Enclave = e.enclaveName(k)
				break
			}
		}
		for l, m := range e.taint[id-1] {
			if e.solver.Value(m) {
				a.Taint = e.labelName(l)
				break
			}
		}
		out = append(out, a)
	}
	return out
}
