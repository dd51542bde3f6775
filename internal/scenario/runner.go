// Package scenario runs batches of verification cases with expected
// verdicts, for regression testing policies against known programs.
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/verify"
)

// Expected verdicts.
const (
	ExpectSatisfiable   = "satisfiable"
	ExpectUnsatisfiable = "unsatisfiable"
	actualError         = "error"
)

// Run verifies every case of s. Cases are independent; nothing is written
// and no run is recorded. base resolves relative table paths.
func Run(ctx context.Context, s *Scenario, base string, opts verify.Options) *RunResult {
	opts.Output, opts.Journal, opts.Store = "", "", ""
	if s.MaxFnParams > 0 {
		opts.MaxFnParams = s.MaxFnParams
	}
	if s.Minimize != nil {
		opts.Minimize = *s.Minimize
	}
	r := verify.New(opts)
	resolve := resolver(base)

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}
	for i, c := range s.Cases {
		cr := CaseResult{
			Index:    i + 1,
			Name:     c.Name,
			Expected: strings.ToLower(c.Expect),
		}
		rep, err := r.Run(ctx, c.inputs(resolve))
		switch {
		case err != nil:
			cr.Actual = actualError
			cr.Reason = err.Error()
		default:
			cr.Actual = strings.ToLower(string(rep.Status))
			if rep.Status == model.Unsatisfiable {
				cr.MissingRules = missingRules(c.ExpectRules, rep)
			}
		}
		cr.Passed = cr.Actual == cr.Expected && len(cr.MissingRules) == 0
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}
	return result
}

func missingRules(want []string, rep *verify.Report) []string {
	have := make(map[string]bool)
	for _, c := range rep.Result.Core {
		have[c.Rule] = true
	}
	for _, c := range rep.Result.Contradictions {
		have[c.Rule] = true
	}
	var missing []string
	for _, rule := range want {
		if !have[rule] {
			missing = append(missing, rule)
		}
	}
	return missing
}

func resolver(base string) func(string) string {
	return func(p string) string {
		if p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
			return p
		}
		return filepath.Join(base, p)
	}
}

// Load parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	for i, c := range s.Cases {
		switch strings.ToLower(c.Expect) {
		case ExpectSatisfiable, ExpectUnsatisfiable:
		default:
			return nil, fmt.Errorf("scenario %s: case %d: expect must be %q or %q", path, i+1, ExpectSatisfiable, ExpectUnsatisfiable)
		}
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and runs it with tables resolved next
// to the file.
func LoadAndRun(ctx context.Context, path string, opts verify.Options) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(ctx, s, filepath.Dir(path), opts)
	result.File = path
	return result, nil
}
