package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesLogEntries(t *testing.T) {
	dir := t.TempDir()

	repo, err := New(dir, "proxy.log", nil)
	require.NoError(t, err)

	repo.Info("hello", map[string]interface{}{"host": "a.example"})
	repo.Error("boom", assertErr{"backend unreachable"}, nil)
	require.NoError(t, repo.Close())

	data, err := os.ReadFile(filepath.Join(dir, "proxy.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "boom")
	assert.Contains(t, string(data), "backend unreachable")
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
