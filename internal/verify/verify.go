// Package verify runs one verification end to end: it loads the program
// graph and policy from URLs, solves the instance on the selected backend,
// writes the artifacts and records the run.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/ppiankov/enclavecheck/internal/audit"
	"github.com/ppiankov/enclavecheck/internal/backend"
	"github.com/ppiankov/enclavecheck/internal/encoder"
	"github.com/ppiankov/enclavecheck/internal/explain"
	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/pdg"
	"github.com/ppiankov/enclavecheck/internal/policy"
	"github.com/ppiankov/enclavecheck/internal/ptfuse"
	"github.com/ppiankov/enclavecheck/internal/store"
)

// Artifact names under the output URL.
const (
	AssignmentFile  = "assignment.txt"
	CoreFile        = "core.txt"
	ExplanationFile = "explanation.txt"
	InstanceFile    = "instance.mzn"
)

// Inputs addresses the tables of one instance. Nodes, Edges and Policy are
// required; the points-to tables are used only when all three are set.
type Inputs struct {
	Nodes        string `json:"nodes"`
	Edges        string `json:"edges"`
	Policy       string `json:"policy"`
	FunctionArgs string `json:"function_args,omitempty"`
	OneWay       string `json:"one_way,omitempty"`
	PTNodes      string `json:"pt_nodes,omitempty"`
	PTEdges      string `json:"pt_edges,omitempty"`
	PTDeclares   string `json:"pt_declares,omitempty"`
}

func (in Inputs) pointsTo() bool {
	return in.PTNodes != "" && in.PTEdges != "" && in.PTDeclares != ""
}

// Options configures a Runner.
type Options struct {
	MaxFnParams    int
	Backend        string
	Minimize       bool
	UniversalLabel string
	// Output is the URL artifacts are written under. Empty writes nothing.
	Output   string
	Journal  string
	Store    string
	MiniZinc backend.MiniZincConfig
	Logger   *slog.Logger
}

// Report is the outcome of one run.
type Report struct {
	RunID       string          `json:"run_id"`
	Backend     string          `json:"backend"`
	Status      model.Status    `json:"status"`
	PolicyHash  string          `json:"policy_hash"`
	GraphHash   string          `json:"graph_hash"`
	Result      *encoder.Result `json:"result"`
	Explanation string          `json:"explanation,omitempty"`
	Artifacts   []string        `json:"artifacts,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	Elapsed     time.Duration   `json:"elapsed"`
}

// Runner executes verifications. It is safe to reuse across runs but runs
// one at a time.
type Runner struct {
	fs   afs.Service
	opts Options
	log  *slog.Logger
}

// New returns a runner reading and writing through afs.
func New(opts Options) *Runner {
	return NewWithService(afs.New(), opts)
}

// NewWithService returns a runner using fs for all URL access.
func NewWithService(fs afs.Service, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{fs: fs, opts: opts, log: logger}
}

func (r *Runner) download(ctx context.Context, what, location string) ([]byte, error) {
	data, err := r.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("verify: read %s %s: %w", what, location, err)
	}
	return data, nil
}

// LoadPolicy reads and validates the policy with its auxiliary maps.
func (r *Runner) LoadPolicy(ctx context.Context, in Inputs) (*policy.Model, error) {
	data, err := r.download(ctx, "policy", in.Policy)
	if err != nil {
		return nil, err
	}
	opts := policy.Options{MaxParams: r.opts.MaxFnParams}
	if in.FunctionArgs != "" {
		raw, err := r.download(ctx, "function args", in.FunctionArgs)
		if err != nil {
			return nil, err
		}
		if opts.FunctionArgs, err = policy.ParseFunctionArgs(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
	}
	if in.OneWay != "" {
		raw, err := r.download(ctx, "one-way map", in.OneWay)
		if err != nil {
			return nil, err
		}
		if opts.ReturnUsed, err = policy.ParseOneWay(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
	}
	m, err := policy.Load(data, opts)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return m, nil
}

// LoadGraph reads the node and edge tables and, when the points-to tables
// are given, fuses the pointer analysis edges into the graph.
func (r *Runner) LoadGraph(ctx context.Context, in Inputs) (*pdg.Graph, error) {
	raw, err := r.download(ctx, "nodes", in.Nodes)
	if err != nil {
		return nil, err
	}
	nodes, err := pdg.ReadNodes(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if raw, err = r.download(ctx, "edges", in.Edges); err != nil {
		return nil, err
	}
	edges, err := pdg.ReadEdges(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	g, err := pdg.New(nodes, edges, r.opts.MaxFnParams)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if !in.pointsTo() {
		return g, nil
	}

	f, err := r.loadFuser(ctx, in)
	if err != nil {
		return nil, err
	}
	produced, err := f.Produce(g)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	r.log.Debug("points-to edges fused", "edges", len(produced))
	if len(produced) == 0 {
		return g, nil
	}
	g, err = pdg.New(nodes, pdg.Regroup(append(edges, produced...)), r.opts.MaxFnParams)
	if err != nil {
		return nil, fmt.Errorf("verify: fused graph: %w", err)
	}
	return g, nil
}

func (r *Runner) loadFuser(ctx context.Context, in Inputs) (*ptfuse.Fuser, error) {
	f := &ptfuse.Fuser{}
	raw, err := r.download(ctx, "points-to nodes", in.PTNodes)
	if err != nil {
		return nil, err
	}
	if f.Nodes, err = ptfuse.ReadNodes(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if raw, err = r.download(ctx, "points-to edges", in.PTEdges); err != nil {
		return nil, err
	}
	if f.Edges, err = ptfuse.ReadEdges(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if raw, err = r.download(ctx, "points-to declarations", in.PTDeclares); err != nil {
		return nil, err
	}
	if f.Refs, err = ptfuse.ReadDeclRefs(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return f, nil
}

// Emit writes the MiniZinc instance of in to w.
func (r *Runner) Emit(ctx context.Context, in Inputs, w io.Writer) error {
	p, err := r.LoadPolicy(ctx, in)
	if err != nil {
		return err
	}
	g, err := r.LoadGraph(ctx, in)
	if err != nil {
		return err
	}
	return backend.WriteInstance(w, g, p)
}

// Run verifies one instance. The returned error is nil for both verdicts;
// it reports inputs that could not be loaded or a backend that failed.
func (r *Runner) Run(ctx context.Context, in Inputs) (*Report, error) {
	start := time.Now()
	p, err := r.LoadPolicy(ctx, in)
	if err != nil {
		return nil, err
	}
	g, err := r.LoadGraph(ctx, in)
	if err != nil {
		return nil, err
	}

	b, err := backend.New(r.opts.Backend, r.opts.MiniZinc, r.log)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		RunID:      uuid.NewString(),
		Backend:    b.Name(),
		PolicyHash: p.Fingerprint(),
		GraphHash:  g.Fingerprint(),
		StartedAt:  start.UTC(),
	}
	log := r.log.With("run", rep.RunID, "backend", rep.Backend)
	log.Info("verifying", "nodes", g.NumNodes(), "edges", g.NumEdges(), "labels", p.NumLabels())

	out, err := b.Solve(ctx, &backend.Instance{
		Graph:          g,
		Policy:         p,
		Minimize:       r.opts.Minimize,
		UniversalLabel: r.opts.UniversalLabel,
	})
	if err != nil {
		return nil, err
	}
	rep.Result = out.Result
	rep.Status = out.Result.Status
	if rep.Status == model.Unsatisfiable {
		rep.Explanation = explain.String(g, explain.Items(out.Result))
	}
	rep.Elapsed = time.Since(start)
	log.Info("verified", "status", rep.Status, "core", len(out.Result.Core),
		"contradictions", len(out.Result.Contradictions), "elapsed", rep.Elapsed)

	if err := r.writeArtifacts(ctx, rep, g, p); err != nil {
		return rep, err
	}
	if err := r.record(ctx, rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func (r *Runner) writeArtifacts(ctx context.Context, rep *Report, g *pdg.Graph, p *policy.Model) error {
	if r.opts.Output == "" {
		return nil
	}
	files := map[string]string{}
	switch rep.Status {
	case model.Satisfiable:
		files[AssignmentFile] = FormatAssignment(rep.Result.Assignment)
	case model.Unsatisfiable:
		files[CoreFile] = FormatCore(rep.Result)
		files[ExplanationFile] = rep.Explanation
	}
	if rep.Backend == "minizinc" {
		var b strings.Builder
		if err := backend.WriteInstance(&b, g, p); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		files[InstanceFile] = b.String()
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dest := url.Join(r.opts.Output, name)
		if err := r.fs.Upload(ctx, dest, file.DefaultFileOsMode, strings.NewReader(files[name])); err != nil {
			return fmt.Errorf("verify: write %s: %w", dest, err)
		}
		rep.Artifacts = append(rep.Artifacts, dest)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, rep *Report) error {
	if r.opts.Journal != "" {
		j, err := audit.Open(r.opts.Journal)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		err = j.Append(audit.RunEntry{
			RunID:          rep.RunID,
			Backend:        rep.Backend,
			PolicyHash:     rep.PolicyHash,
			GraphHash:      rep.GraphHash,
			Status:         string(rep.Status),
			Constraints:    rep.Result.Stats.Constraints,
			CoreSize:       len(rep.Result.Core),
			CoreRules:      coreRules(rep.Result.Core),
			Contradictions: len(rep.Result.Contradictions),
			ElapsedMillis:  rep.Elapsed.Milliseconds(),
		})
		if cerr := j.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}
	if r.opts.Store != "" {
		s, err := store.Open(r.opts.Store)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		defer s.Close()
		err = s.SaveRun(ctx, store.Run{
			ID:          rep.RunID,
			StartedAt:   rep.StartedAt,
			Backend:     rep.Backend,
			PolicyHash:  rep.PolicyHash,
			GraphHash:   rep.GraphHash,
			Status:      rep.Status,
			Constraints: rep.Result.Stats.Constraints,
			CoreSize:    len(rep.Result.Core),
			Elapsed:     rep.Elapsed,
		}, rep.Result.Assignment, rep.Result.Core)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}
	return nil
}

func coreRules(core []encoder.Constraint) []string {
	seen := make(map[string]bool)
	var rules []string
	for _, c := range core {
		if !seen[c.Rule] {
			seen[c.Rule] = true
			rules = append(rules, c.Rule)
		}
	}
	sort.Strings(rules)
	return rules
}

// FormatAssignment renders one "node enclave taint" line per node.
func FormatAssignment(as []model.Assignment) string {
	var b strings.Builder
	for _, a := range as {
		fmt.Fprintf(&b, "%d %s %s\n", a.Node, a.Enclave, a.Taint)
	}
	return b.String()
}

// FormatCore renders contradictions, then core constraints, one per line
// as "<key> <assertion>".
func FormatCore(res *encoder.Result) string {
	var b strings.Builder
	for _, c := range res.Contradictions {
		fmt.Fprintf(&b, "contradiction/%s/%d %s\n", c.Rule, c.Edge, c.Assertion)
	}
	for _, c := range res.Core {
		fmt.Fprintf(&b, "%s %s\n", c.Key(), c.Assertion)
	}
	return b.String()
}

// LocalPath returns the filesystem path behind location, or "" when it
// names another storage scheme.
func LocalPath(location string) string {
	if strings.HasPrefix(location, "file://") {
		location = strings.TrimPrefix(location, "file://")
	} else if strings.Contains(location, "://") {
		return ""
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return location
	}
	return abs
}
