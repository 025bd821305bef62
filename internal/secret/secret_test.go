package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvStore(t *testing.T) {
	s := NewEnvStore("")
	assert.Equal(t, "COLLECTOR_SECRET_PG_MAIN_1", s.VarName("pg-main.1"))

	t.Setenv(s.VarName("pg-main"), "hunter2")
	v, err := s.Get("pg-main")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(v))

	v, err = s.Get("missing")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set("k", []byte("v")))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	require.NoError(t, s.Delete("k"))
	v, err = s.Get("k")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestChainFallsThrough(t *testing.T) {
	a, b := NewMemoryStore(), NewMemoryStore()
	require.NoError(t, b.Set("k", []byte("from-b")))
	c := Chain{a, b}

	v, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "from-b", string(v))

	require.NoError(t, c.Set("k", []byte("from-a")))
	v, _ = c.Get("k")
	assert.Equal(t, "from-a", string(v))
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secrets.yaml")
	require.NoError(t, NewFileStore(path).Set("db:1", []byte("hunter2")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A fresh store reads what the first one wrote.
	s := NewFileStore(path)
	v, err := s.Get("db:1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(v))

	require.NoError(t, s.Delete("db:1"))
	require.NoError(t, s.Delete("db:1"))
	v, err = s.Get("db:1")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestFileStoreMissingFile(t *testing.T) {
	v, err := NewFileStore(filepath.Join(t.TempDir(), "none.yaml")).Get("k")
	require.NoError(t, err)
	assert.Empty(t, v)
}
