package tcc

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_CallsOnChangeOnce(t *testing.T) {
	r := require.New(t)

	// given
	dir := t.TempDir()
	path := filepath.Join(dir, "TCC.db")
	r.NoError(os.WriteFile(path, []byte("v1"), 0o644))

	var calls atomic.Int32
	w, err := Watch([]string{path}, 50*time.Millisecond, func() { calls.Add(1) }, nil)
	r.NoError(err)
	defer w.Close()

	// when - a burst of writes to the database and its journal
	r.NoError(os.WriteFile(path, []byte("v2"), 0o644))
	r.NoError(os.WriteFile(path+"-wal", []byte("wal"), 0o644))
	r.NoError(os.WriteFile(path, []byte("v3"), 0o644))

	// then
	r.Eventually(func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	r.Equal(int32(1), calls.Load())
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TCC.db")

	var calls atomic.Int32
	w, err := Watch([]string{path}, 20*time.Millisecond, func() { calls.Add(1) }, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.db"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Zero(t, calls.Load())
}

func TestWatch_NoWatchableDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent", "TCC.db")

	w, err := Watch([]string{missing}, 0, func() {}, nil)

	assert.Nil(t, w)
	assert.Error(t, err)
}

func TestWatcher_CloseTwice(t *testing.T) {
	w, err := Watch([]string{filepath.Join(t.TempDir(), "TCC.db")}, 0, func() {}, nil)
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
