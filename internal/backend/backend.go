// Package backend provides interchangeable ways of deciding a verification
// instance. The gini backend explains failures; the MiniZinc backend hands
// the instance to an external constraint solver.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/enclavecheck/internal/encoder"
	"github.com/ppiankov/enclavecheck/internal/pdg"
	"github.com/ppiankov/enclavecheck/internal/policy"
)

// Instance is one graph checked against one policy.
type Instance struct {
	Graph          *pdg.Graph
	Policy         *policy.Model
	Minimize       bool
	UniversalLabel string
}

// Outcome is a backend verdict. Result always carries the status; the
// core is only filled by backends that can explain.
type Outcome struct {
	Backend string          `json:"backend"`
	Result  *encoder.Result `json:"result"`
	Raw     string          `json:"raw,omitempty"`
}

// Backend decides instances.
type Backend interface {
	Name() string
	Solve(ctx context.Context, in *Instance) (*Outcome, error)
}

// SolverError reports a solver that produced no verdict. Output is kept
// verbatim for the operator; the run is never retried.
type SolverError struct {
	Backend  string
	ExitCode int
	Output   string
	Err      error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: solver failed: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("backend %s: solver failed with exit code %d", e.Backend, e.ExitCode)
}

func (e *SolverError) Unwrap() error { return e.Err }

// Names lists the selectable backends.
var Names = []string{"gini", "minizinc"}

// New returns the backend called name.
func New(name string, mzn MiniZincConfig, logger *slog.Logger) (Backend, error) {
	switch name {
	case "", "gini":
		return &Gini{Logger: logger}, nil
	case "minizinc":
		return NewMiniZinc(mzn, logger), nil
	}
	return nil, fmt.Errorf("backend: unknown backend %q", name)
}

// Gini encodes the instance into named constraints and solves it in
// process. Solving does not observe ctx once started.
type Gini struct {
	Logger *slog.Logger
}

func (b *Gini) Name() string { return "gini" }

func (b *Gini) Solve(ctx context.Context, in *Instance) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := encoder.Encode(in.Graph, in.Policy, encoder.Options{
		UniversalLabel: in.UniversalLabel,
		Logger:         b.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backend gini: %w", err)
	}
	res, err := enc.Solve(in.Minimize)
	if err != nil {
		return nil, &SolverError{Backend: b.Name(), Err: err}
	}
	return &Outcome{Backend: b.Name(), Result: res}, nil
}
