package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/enclavecheck/internal/encoder"
	"github.com/ppiankov/enclavecheck/internal/model"
)

const unsatMarker = "=====UNSATISFIABLE====="

// MiniZincConfig locates the external solver and the constraint model it
// runs the instance against.
type MiniZincConfig struct {
	Binary string
	Solver string
	Model  string
	// Workdir receives instance.mzn. Empty uses a temporary directory that is
	// removed after the run.
	Workdir string
}

// MiniZinc runs the external minizinc binary. It reports a verdict and, when
// satisfiable, the assignment the model prints; it cannot explain failures.
type MiniZinc struct {
	cfg MiniZincConfig
	log *slog.Logger
}

// NewMiniZinc fills defaults for unset fields.
func NewMiniZinc(cfg MiniZincConfig, logger *slog.Logger) *MiniZinc {
	if cfg.Binary == "" {
		cfg.Binary = "minizinc"
	}
	if cfg.Solver == "" {
		cfg.Solver = "Gecode"
	}
	if cfg.Model == "" {
		cfg.Model = "model.mzn"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MiniZinc{cfg: cfg, log: logger}
}

func (m *MiniZinc) Name() string { return "minizinc" }

func (m *MiniZinc) Solve(ctx context.Context, in *Instance) (*Outcome, error) {
	start := time.Now()
	constraintModel, err := os.ReadFile(m.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("backend minizinc: read model: %w", err)
	}

	dir := m.cfg.Workdir
	if dir == "" {
		dir, err = os.MkdirTemp("", "enclavecheck-mzn-")
		if err != nil {
			return nil, fmt.Errorf("backend minizinc: temp dir: %w", err)
		}
		defer os.RemoveAll(dir)
	}

	var doc bytes.Buffer
	doc.Write(constraintModel)
	doc.WriteString("\n\n")
	if err := WriteInstance(&doc, in.Graph, in.Policy); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "instance.mzn")
	if err := os.WriteFile(path, doc.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("backend minizinc: write instance: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.cfg.Binary, "--no-optimize", "--solver", m.cfg.Solver, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	raw := stdout.String() + stderr.String()
	if runErr != nil {
		serr := &SolverError{Backend: m.Name(), Output: raw, Err: runErr}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			serr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			serr.Err = ctx.Err()
		}
		return nil, serr
	}
	if strings.Contains(stdout.String(), "Error") {
		return nil, &SolverError{Backend: m.Name(), Output: raw}
	}

	res, err := parseOutput(stdout.String())
	if err != nil {
		return nil, &SolverError{Backend: m.Name(), Output: raw, Err: err}
	}
	res.Stats = encoder.Stats{
		Nodes:   in.Graph.NumNodes(),
		Edges:   in.Graph.NumEdges(),
		Elapsed: time.Since(start),
	}
	res.Solves = 1
	res.SolveTime = res.Stats.Elapsed
	m.log.Info("minizinc finished", "status", res.Status, "elapsed", res.SolveTime)
	return &Outcome{Backend: m.Name(), Result: res, Raw: raw}, nil
}

var (
	enclaveArray = regexp.MustCompile(`(?m)^\s*nodeEnclave\s*=\s*\[([^\]]*)\]`)
	taintArray   = regexp.MustCompile(`(?m)^\s*taint\s*=\s*\[([^\]]*)\]`)
)

// parseOutput reads the verdict and, for a solution, the nodeEnclave and
// taint arrays the model prints.
func parseOutput(out string) (*encoder.Result, error) {
	if strings.Contains(out, unsatMarker) {
		return &encoder.Result{Status: model.Unsatisfiable}, nil
	}
	em := enclaveArray.FindStringSubmatch(out)
	tm := taintArray.FindStringSubmatch(out)
	if em == nil || tm == nil {
		return nil, errors.New("no verdict and no assignment in solver output")
	}
	enclaves, taints := splitArray(em[1]), splitArray(tm[1])
	if len(enclaves) != len(taints) {
		return nil, fmt.Errorf("assignment arrays differ in length: %d enclaves, %d taints", len(enclaves), len(taints))
	}
	res := &encoder.Result{Status: model.Satisfiable}
	for i := range enclaves {
		res.Assignment = append(res.Assignment, model.Assignment{Node: i + 1, Enclave: enclaves[i], Taint: taints[i]})
	}
	return res, nil
}

func splitArray(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		f = strings.Trim(strings.TrimSpace(f), `"`)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
