package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/enclavecheck/internal/verify"
)

const nodesCSV = `1,Decl.Function,10,FA,0,0,,main.c,0,40,fa
2,Decl.Function,50,FB,0,0,,main.c,50,90,fb
3,Stmt.Call,12,,1,0,,main.c,20,25,
`

const edgesCSV = `1,Control.FunctionInvocation,3,2
`

const policyTemplate = `[
  {"cle-label": "ORANGE", "cle-json": {"level": "orange"}},
  {"cle-label": "PURPLE", "cle-json": {"level": "purple"}},
  {"cle-label": "FA", "cle-json": {"level": "orange", "cdf": [
    {"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"},
     "argtaints": [], "codtaints": ["ORANGE"], "rettaints": ["ORANGE"]}]}},
  {"cle-label": "FB", "cle-json": {"level": "purple", "cdf": [
    {"remotelevel": "purple", "direction": "egress", "guarddirective": {"operation": "allow"},
     "argtaints": [], "codtaints": ["PURPLE"], "rettaints": ["PURPLE"]},
    {"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "GUARD"},
     "argtaints": [], "codtaints": ["PURPLE"], "rettaints": ["PURPLE"]}]}}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeTables lays out one graph and an allowing and a denying policy.
func writeTables(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "nodes.csv", nodesCSV)
	writeFile(t, dir, "edges.csv", edgesCSV)
	writeFile(t, dir, "allow.json", strings.Replace(policyTemplate, "GUARD", "allow", 1))
	writeFile(t, dir, "deny.json", strings.Replace(policyTemplate, "GUARD", "deny", 1))
	return dir
}

func options() verify.Options {
	return verify.Options{MaxFnParams: 4, Minimize: true}
}

func TestAllCasesPass(t *testing.T) {
	dir := writeTables(t)
	s := &Scenario{
		Name: "cross-domain call",
		Cases: []Case{
			{Name: "allowed", Nodes: "nodes.csv", Edges: "edges.csv", Policy: "allow.json", Expect: "satisfiable"},
			{Name: "denied", Nodes: "nodes.csv", Edges: "edges.csv", Policy: "deny.json", Expect: "UNSATISFIABLE",
				ExpectRules: []string{"XDCallAllowed"}},
		},
	}

	result := Run(context.Background(), s, dir, options())
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %d; cases: %+v", result.Failed, result.Cases)
	}
	if result.Passed != 2 {
		t.Errorf("expected 2 passed, got %d", result.Passed)
	}
}

func TestWrongVerdictDetected(t *testing.T) {
	dir := writeTables(t)
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{
			{Name: "denied", Nodes: "nodes.csv", Edges: "edges.csv", Policy: "deny.json", Expect: "satisfiable"},
		},
	}

	result := Run(context.Background(), s, dir, options())
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	if result.Cases[0].Actual != "unsatisfiable" {
		t.Errorf("expected actual unsatisfiable, got %q", result.Cases[0].Actual)
	}
}

func TestMissingCoreRuleFails(t *testing.T) {
	dir := writeTables(t)
	s := &Scenario{
		Name: "rule expectation",
		Cases: []Case{
			{Name: "denied", Nodes: "nodes.csv", Edges: "edges.csv", Policy: "deny.json", Expect: "unsatisfiable",
				ExpectRules: []string{"XDCallAllowed", "XDReturnAllowed"}},
		},
	}

	result := Run(context.Background(), s, dir, options())
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	c := result.Cases[0]
	if len(c.MissingRules) != 1 || c.MissingRules[0] != "XDReturnAllowed" {
		t.Errorf("expected XDReturnAllowed missing, got %v", c.MissingRules)
	}
}

func TestUnreadableCaseReportsError(t *testing.T) {
	dir := writeTables(t)
	s := &Scenario{
		Cases: []Case{
			{Name: "absent", Nodes: "nodes.csv", Edges: "missing.csv", Policy: "allow.json", Expect: "satisfiable"},
		},
	}

	result := Run(context.Background(), s, dir, options())
	c := result.Cases[0]
	if c.Passed || c.Actual != "error" {
		t.Errorf("expected error case, got %+v", c)
	}
	if !strings.Contains(c.Reason, "missing.csv") {
		t.Errorf("expected reason to name the table, got %q", c.Reason)
	}
}

func TestLoadAndRunFromFile(t *testing.T) {
	dir := writeTables(t)
	path := writeFile(t, dir, "calls.yaml", `
cases:
  - name: allowed
    nodes: nodes.csv
    edges: edges.csv
    policy: allow.json
    expect: satisfiable
`)

	result, err := LoadAndRun(context.Background(), path, options())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
	if result.File != path {
		t.Errorf("expected file path set, got %q", result.File)
	}
	if result.Name != "calls" {
		t.Errorf("expected name from file, got %q", result.Name)
	}
}

func TestInvalidScenarioYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", ":::not yaml\x00")

	if _, err := LoadAndRun(context.Background(), path, options()); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestUnknownExpectation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
cases:
  - {nodes: n.csv, edges: e.csv, policy: p.json, expect: allow}
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "expect must be") {
		t.Errorf("expected expectation error, got %v", err)
	}
}

func TestEmptyCasesList(t *testing.T) {
	result := Run(context.Background(), &Scenario{Name: "empty"}, t.TempDir(), options())
	if result.Total != 0 || result.Failed != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "ok", Total: 1, Passed: 1},
		{Name: "bad", Total: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, Name: "denied", Expected: "satisfiable", Actual: "unsatisfiable", MissingRules: []string{"XDCallAllowed"}},
		}},
	}
	out := FormatText(results)
	for _, want := range []string{
		"Checking 2 scenario files",
		"PASS  ok (1/1)",
		"FAIL  bad (0/1)",
		"expected satisfiable, got unsatisfiable",
		"core lacks XDCallAllowed",
		"1 of 2 cases passed. 1 of 2 scenarios failed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "x", Total: 0}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "x"`) {
		t.Errorf("unexpected JSON: %s", out)
	}
}
