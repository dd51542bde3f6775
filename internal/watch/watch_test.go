package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerunsAfterChange(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policy, []byte("[]"), 0o644))

	runs := make(chan struct{}, 4)
	w, err := New([]string{policy, "", filepath.Join(dir, "absent.csv")}, func(context.Context) error {
		runs <- struct{}{}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Files())
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// several writes in a burst collapse into one run
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(policy, []byte("[ ]"), 0o644))
	}
	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("verification did not run after change")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestIgnoresUnwatchedFiles(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policy, []byte("[]"), 0o644))

	var calls atomic.Int32
	w, err := New([]string{policy}, func(context.Context) error {
		calls.Add(1)
		return errors.New("logged, not returned")
	}, nil)
	require.NoError(t, err)
	w.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, calls.Load())
}

func TestNothingToWatch(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "absent")}, func(context.Context) error { return nil }, nil)
	assert.ErrorContains(t, err, "no local input files")
}
