package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/enclavecheck/internal/encoder"
	"github.com/ppiankov/enclavecheck/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSatisfiableRunRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := Run{
		ID: "r1", StartedAt: started, Backend: "gini",
		PolicyHash: "hwh64:01", GraphHash: "hwh64:02",
		Status: model.Satisfiable, Constraints: 42, Elapsed: 1500 * time.Millisecond,
	}
	assignment := []model.Assignment{
		{Node: 2, Enclave: "purple_E", Taint: "FB"},
		{Node: 1, Enclave: "orange_E", Taint: "FA"},
	}
	require.NoError(t, s.SaveRun(ctx, run, assignment, nil))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	a, err := s.Assignment(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []model.Assignment{assignment[1], assignment[0]}, a)

	core, err := s.Core(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, core)
}

func TestUnsatisfiableRunKeepsCore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	core := []encoder.Constraint{
		{Seq: 3, Kind: model.KindNode, Rule: "taints", Entity: 2, Assertion: "(= (taint 2) FB)"},
		{Seq: 9, Kind: model.KindPolicy, Rule: "hasGuardOperation", Args: []string{"FB_cdf_1", "deny"}, Assertion: "(= (hasGuardOperation FB_cdf_1) deny)"},
	}
	run := Run{ID: "r2", StartedAt: time.Now(), Backend: "gini", Status: model.Unsatisfiable, CoreSize: len(core)}
	require.NoError(t, s.SaveRun(ctx, run, nil, core))

	rows, err := s.Core(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CoreRow{Seq: 3, Kind: model.KindNode, Rule: "taints", Entity: 2, Assertion: "(= (taint 2) FB)"}, rows[0])
	assert.Equal(t, []string{"FB_cdf_1", "deny"}, rows[1].Args)
}

func TestRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(ctx, Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), Backend: "gini", Status: model.Satisfiable}, nil, nil))
	}
	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDuplicateRunRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	run := Run{ID: "dup", StartedAt: time.Now(), Backend: "gini", Status: model.Satisfiable}
	require.NoError(t, s.SaveRun(ctx, run, nil, nil))
	assert.Error(t, s.SaveRun(ctx, run, nil, nil))
}

func TestUnknownRun(t *testing.T) {
	_, err := openStore(t).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
