package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONLocked_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, WriteJSONLocked(path, payload{Name: "demo"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got payload
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "demo", got.Name)
}

func TestFileLock_TryLockFailsWhileHeld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.db")

	first := New(path)
	require.NoError(t, first.Lock())
	defer first.Unlock()

	second := New(path)
	acquired, err := second.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestAtomicWriteJSON_CreatesParentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deeper")
	path := filepath.Join(dir, "out.json")

	require.NoError(t, AtomicWriteJSON(path, map[string]int{"a": 1}))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
