package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/enclavecheck/internal/backend"
	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/verify"
	"github.com/ppiankov/enclavecheck/internal/watch"
)

var (
	inputs verify.Inputs

	verifyMaxParams int
	verifyBackend   string
	verifyMinimize  bool
	verifyUniversal string
	verifyOutput    string
	verifyFormat    string
	verifyJournal   string
	verifyStore     string
	verifyModel     string
	verifyWatch     bool
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	addInputFlags(verifyCmd, true)
	f := verifyCmd.Flags()
	f.StringVar(&inputs.PTNodes, "pt-nodes", "", "Points-to node table URL")
	f.StringVar(&inputs.PTEdges, "pt-edges", "", "Points-to edge table URL")
	f.StringVar(&inputs.PTDeclares, "pt-declares", "", "Points-to declaration table URL")
	f.StringVar(&verifyBackend, "backend", "", "Solver backend (gini|minizinc)")
	f.BoolVar(&verifyMinimize, "minimize", true, "Minimize the unsat core")
	f.StringVar(&verifyUniversal, "universal-label", "", "Label that every unannotated node may take")
	f.StringVarP(&verifyOutput, "output", "o", "", "Output URL for artifacts")
	f.StringVarP(&verifyFormat, "format", "f", "", "Output format (text|json)")
	f.StringVar(&verifyJournal, "journal", "", "Append the run to this JSONL journal")
	f.StringVar(&verifyStore, "store", "", "Archive the run in this SQLite database")
	f.StringVar(&verifyModel, "minizinc-model", "", "Constraint model for the minizinc backend")
	f.BoolVarP(&verifyWatch, "watch", "w", false, "Re-verify when a local input file changes")
}

// addInputFlags registers the table flags shared by verify, validate and emit.
func addInputFlags(cmd *cobra.Command, graph bool) {
	f := cmd.Flags()
	if graph {
		f.StringVar(&inputs.Nodes, "nodes", "", "Node table URL (required)")
		f.StringVar(&inputs.Edges, "edges", "", "Edge table URL (required)")
		cmd.MarkFlagRequired("nodes")
		cmd.MarkFlagRequired("edges")
	}
	f.StringVar(&inputs.Policy, "policy", "", "Policy URL, JSON or YAML (required)")
	f.StringVar(&inputs.FunctionArgs, "function-args", "", "Function arity map URL")
	f.StringVar(&inputs.OneWay, "one-way", "", "One-way safety map URL")
	f.IntVar(&verifyMaxParams, "max-fn-params", 0, "Maximum number of function parameters (default from config)")
	cmd.MarkFlagRequired("policy")
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a program graph against a policy",
	Long: "Loads the node and edge tables and the policy, solves the instance and\n" +
		"writes assignment.txt on success or core.txt and explanation.txt on failure.\n\n" +
		"Exit code 0 if satisfiable, 2 if unsatisfiable, 69 if the solver fails,\n" +
		"78 if the inputs or configuration are invalid.",
	RunE: runVerify,
}

// runOptions merges the config file with the flags that were set.
func runOptions(cmd *cobra.Command) verify.Options {
	opts := verify.Options{
		MaxFnParams:    cfg.MaxFnParams,
		Backend:        cfg.Backend,
		Minimize:       cfg.MinimizeCore,
		UniversalLabel: cfg.UniversalLabel,
		Output:         cfg.Output,
		Journal:        cfg.Journal,
		Store:          cfg.Store,
		MiniZinc: backend.MiniZincConfig{
			Binary: cfg.MiniZinc.Binary,
			Solver: cfg.MiniZinc.Solver,
			Model:  cfg.MiniZinc.Model,
		},
		Logger: logger,
	}
	f := cmd.Flags()
	if f.Changed("max-fn-params") {
		opts.MaxFnParams = verifyMaxParams
	}
	if f.Lookup("backend") == nil {
		return opts
	}
	if f.Changed("backend") {
		opts.Backend = verifyBackend
	}
	if f.Changed("minimize") {
		opts.Minimize = verifyMinimize
	}
	if f.Changed("universal-label") {
		opts.UniversalLabel = verifyUniversal
	}
	if f.Changed("output") {
		opts.Output = verifyOutput
	}
	if f.Changed("journal") {
		opts.Journal = verifyJournal
	}
	if f.Changed("store") {
		opts.Store = verifyStore
	}
	if f.Changed("minizinc-model") {
		opts.MiniZinc.Model = verifyModel
	}
	return opts
}

func runVerify(cmd *cobra.Command, args []string) error {
	opts := runOptions(cmd)
	format := cfg.Format
	if cmd.Flags().Changed("format") {
		format = verifyFormat
	}
	r := verify.New(opts)
	out := cmd.OutOrStdout()

	once := func(ctx context.Context) (*verify.Report, error) {
		rep, err := r.Run(ctx, inputs)
		if err != nil {
			return nil, err
		}
		return rep, printReport(out, rep, format)
	}

	if !verifyWatch {
		rep, err := once(cmd.Context())
		if err != nil {
			return err
		}
		if rep.Status == model.Unsatisfiable {
			return &ExitError{Code: ExitUnsatisfiable}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if _, err := once(ctx); err != nil {
		logger.Error("verification failed", "error", err)
	}
	var paths []string
	for _, u := range []string{inputs.Nodes, inputs.Edges, inputs.Policy, inputs.FunctionArgs,
		inputs.OneWay, inputs.PTNodes, inputs.PTEdges, inputs.PTDeclares} {
		if p := verify.LocalPath(u); u != "" && p != "" {
			paths = append(paths, p)
		}
	}
	w, err := watch.New(paths, func(ctx context.Context) error {
		_, err := once(ctx)
		return err
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("watching inputs", "files", w.Files())
	return w.Run(ctx)
}

func printReport(w io.Writer, rep *verify.Report, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	res := rep.Result
	fmt.Fprintf(w, "%s  run %s  backend %s  %d constraints  %s\n",
		rep.Status, rep.RunID, rep.Backend, res.Stats.Constraints, rep.Elapsed.Round(time.Millisecond))
	switch rep.Status {
	case model.Satisfiable:
		fmt.Fprint(w, verify.FormatAssignment(res.Assignment))
	case model.Unsatisfiable:
		if rep.Explanation != "" {
			fmt.Fprintln(w, rep.Explanation)
		} else {
			fmt.Fprintf(w, "backend %s does not explain unsatisfiable instances\n", rep.Backend)
		}
	}
	for _, a := range rep.Artifacts {
		fmt.Fprintf(w, "wrote %s\n", a)
	}
	return nil
}
