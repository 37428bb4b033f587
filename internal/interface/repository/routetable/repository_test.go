package routetable

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StartiOne/upstream-proxy/internal/domain"
)

func TestNewCreatesDefaultFileWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")

	repo, err := New(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, 0, len(repo.Table().Snapshot()))
}

func TestLoadParsesExistingRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	contents := `routes:
  - hostnames: ["a.example"]
    endpoint:
      tcp:
        host: 127.0.0.1
        port: 9001
  - hostnames: ["*"]
    endpoint:
      ipc: /tmp/backend.sock
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	repo, err := New(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	ep, ok := repo.Table().Lookup("a.example")
	require.True(t, ok)
	assert.Equal(t, domain.EndpointTCP, ep.Kind)
	assert.Equal(t, 9001, ep.Port)

	ep, ok = repo.Table().Lookup("unknown.example")
	require.True(t, ok)
	assert.Equal(t, domain.EndpointIPC, ep.Kind)
}

func TestSetEntriesReplacesTableWithoutTouchingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")

	repo, err := New(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	repo.SetEntries([]domain.RouteEntry{
		{Hostnames: []string{"a.example"}, Endpoint: domain.Endpoint{Kind: domain.EndpointTCP, Host: "127.0.0.1", Port: 1}},
	})

	_, ok := repo.Table().Lookup("a.example")
	assert.True(t, ok)
}

func TestReloadPicksUpFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes: []\n"), 0o644))

	repo, err := New(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.Table().Lookup("a.example")
	assert.False(t, ok)

	updated := `routes:
  - hostnames: ["a.example"]
    endpoint:
      tcp:
        host: 127.0.0.1
        port: 9002
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, repo.Reload())

	ep, ok := repo.Table().Lookup("a.example")
	require.True(t, ok)
	assert.Equal(t, 9002, ep.Port)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes: []\n"), 0o644))

	repo, err := New(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	updated := `routes:
  - hostnames: ["a.example"]
    endpoint:
      tcp:
        host: 127.0.0.1
        port: 9003
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		_, ok := repo.Table().Lookup("a.example")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
