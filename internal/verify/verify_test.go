package verify

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/ppiankov/enclavecheck/internal/audit"
	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/policy"
	"github.com/ppiankov/enclavecheck/internal/store"
)

const callNodes = `id,type,line,label,function,class,param,file,start,end,name
1,Decl.Function,10,FA,0,0,,main.c,0,40,fa
2,Decl.Function,50,FB,0,0,,main.c,50,90,fb
3,Stmt.Call,12,,1,0,,main.c,20,25,
`

const callEdges = `id,type,src,dst
1,Control.FunctionInvocation,3,2
`

func callPolicy(guard string) string {
	return fmt.Sprintf(`[
  {"cle-label": "ORANGE", "cle-json": {"level": "orange"}},
  {"cle-label": "PURPLE", "cle-json": {"level": "purple"}},
  {"cle-label": "FA", "cle-json": {"level": "orange", "cdf": [
    {"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"},
     "argtaints": [], "codtaints": ["ORANGE"], "rettaints": ["ORANGE"]},
    {"remotelevel": "purple", "direction": "egress", "guarddirective": {"operation": "deny"},
     "argtaints": [], "codtaints": ["ORANGE"], "rettaints": ["ORANGE"]}]}},
  {"cle-label": "FB", "cle-json": {"level": "purple", "cdf": [
    {"remotelevel": "purple", "direction": "egress", "guarddirective": {"operation": "allow"},
     "argtaints": [], "codtaints": ["PURPLE"], "rettaints": ["PURPLE"]},
    {"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "%s"},
     "argtaints": [], "codtaints": ["PURPLE"], "rettaints": ["PURPLE"]}]}}
]`, guard)
}

type fixture struct {
	fs   afs.Service
	root string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{fs: afs.New(), root: "mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_")}
}

func (f *fixture) put(t *testing.T, name, content string) string {
	t.Helper()
	u := f.root + "/in/" + name
	require.NoError(t, f.fs.Upload(context.Background(), u, file.DefaultFileOsMode, strings.NewReader(content)))
	return u
}

func (f *fixture) get(t *testing.T, u string) string {
	t.Helper()
	data, err := f.fs.DownloadWithURL(context.Background(), u)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) inputs(t *testing.T, guard string) Inputs {
	return Inputs{
		Nodes:  f.put(t, "nodes.csv", callNodes),
		Edges:  f.put(t, "edges.csv", callEdges),
		Policy: f.put(t, "policy.json", callPolicy(guard)),
	}
}

func TestRunSatisfiable(t *testing.T) {
	f := newFixture(t)
	out := f.root + "/out"
	r := NewWithService(f.fs, Options{MaxFnParams: 4, Minimize: true, Output: out})

	rep, err := r.Run(context.Background(), f.inputs(t, "allow"))
	require.NoError(t, err)
	assert.Equal(t, model.Satisfiable, rep.Status)
	assert.Equal(t, "gini", rep.Backend)
	assert.NotEmpty(t, rep.RunID)
	assert.Empty(t, rep.Explanation)
	require.Equal(t, []string{out + "/" + AssignmentFile}, rep.Artifacts)

	assert.Equal(t, "1 orange_E FA\n2 purple_E FB\n3 orange_E ORANGE\n", f.get(t, rep.Artifacts[0]))
}

func TestRunUnsatisfiableWritesExplanation(t *testing.T) {
	f := newFixture(t)
	out := f.root + "/out"
	r := NewWithService(f.fs, Options{MaxFnParams: 4, Minimize: true, Output: out})

	rep, err := r.Run(context.Background(), f.inputs(t, "deny"))
	require.NoError(t, err)
	assert.Equal(t, model.Unsatisfiable, rep.Status)
	require.Len(t, rep.Artifacts, 2)

	core := f.get(t, out+"/"+CoreFile)
	assert.Contains(t, core, "edge/XDCallAllowed/1 ")
	assert.Contains(t, core, "policy/hasGuardOperation/")

	expl := f.get(t, out+"/"+ExplanationFile)
	assert.True(t, strings.HasPrefix(expl, "; EXPLANATION FOR UNSATISFIABILITY"))
	assert.True(t, strings.HasSuffix(expl, "(check-sat)"))
	assert.Equal(t, rep.Explanation, expl)
}

func TestRunRecordsJournalAndStore(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	journal := filepath.Join(dir, "journal.jsonl")
	db := filepath.Join(dir, "runs.db")
	r := NewWithService(f.fs, Options{MaxFnParams: 4, Minimize: true, Journal: journal, Store: db})

	in := f.inputs(t, "deny")
	rep, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), f.inputs(t, "allow"))
	require.NoError(t, err)

	v := audit.Verify(journal)
	assert.True(t, v.Valid, v.Error)
	assert.Equal(t, 2, v.Lines)

	h, err := audit.Read(journal, audit.Filter{Status: "UNSATISFIABLE"})
	require.NoError(t, err)
	require.Len(t, h.Entries, 1)
	assert.Equal(t, rep.RunID, h.Entries[0].RunID)
	assert.Contains(t, h.Entries[0].CoreRules, "XDCallAllowed")

	s, err := store.Open(db)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	core, err := s.Core(context.Background(), rep.RunID)
	require.NoError(t, err)
	assert.Len(t, core, len(rep.Result.Core))
}

func TestLoadPolicyUsesAuxMaps(t *testing.T) {
	f := newFixture(t)
	oneWay := `[
  {"cle-label": "FB", "cle-json": {"level": "purple", "cdf": [
    {"remotelevel": "orange", "direction": "egress", "guarddirective": {"operation": "allow"}, "oneway": true}]}}
]`
	in := Inputs{
		Policy: f.put(t, "policy.json", oneWay),
		OneWay: f.put(t, "oneway.txt", "fb FB 0\n"),
	}
	_, err := NewWithService(f.fs, Options{MaxFnParams: 4}).LoadPolicy(context.Background(), in)
	var verr *policy.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 8, verr.Rule)

	in.OneWay = f.put(t, "oneway.txt", "fb FB 1\n")
	_, err = NewWithService(f.fs, Options{MaxFnParams: 4}).LoadPolicy(context.Background(), in)
	assert.NoError(t, err)
}

func TestMissingInput(t *testing.T) {
	f := newFixture(t)
	in := f.inputs(t, "allow")
	in.Edges = f.root + "/in/absent.csv"
	_, err := NewWithService(f.fs, Options{MaxFnParams: 4}).Run(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read edges")
}

func TestUnknownBackend(t *testing.T) {
	f := newFixture(t)
	_, err := NewWithService(f.fs, Options{MaxFnParams: 4, Backend: "cvc5"}).Run(context.Background(), f.inputs(t, "allow"))
	assert.ErrorContains(t, err, "unknown backend")
}

func TestEmit(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	require.NoError(t, NewWithService(f.fs, Options{MaxFnParams: 4}).Emit(context.Background(), f.inputs(t, "allow"), &buf))
	assert.Contains(t, buf.String(), "cleLabel")
	assert.Contains(t, buf.String(), "MaxFnParams")
}

func TestFormatCoreListsContradictionsFirst(t *testing.T) {
	f := newFixture(t)
	rep, err := NewWithService(f.fs, Options{MaxFnParams: 4, Minimize: true}).Run(context.Background(), f.inputs(t, "deny"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(FormatCore(rep.Result)), "\n")
	assert.Len(t, lines, len(rep.Result.Core))
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/tmp/x.csv", LocalPath("file:///tmp/x.csv"))
	assert.Equal(t, "/tmp/x.csv", LocalPath("/tmp/x.csv"))
	assert.Equal(t, "", LocalPath("mem://localhost/x.csv"))
}
