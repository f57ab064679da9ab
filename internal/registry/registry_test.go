package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rparedes/taskgraph/internal/model"
)

func noop(ctx context.Context, task model.Task, jobCtx JobContext) (model.HandlerResult, error) {
	return model.HandlerResult{}, nil
}

func TestRegister_DuplicateRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Definition{Service: "docs", Command: "write", Handler: noop}))

	err := r.Register(Definition{Service: "docs", Command: "write", Handler: noop})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, r.Len())
}

func TestHasGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Definition{Service: "docs", Command: "write", AllowInPlanMode: false, Handler: noop}))

	assert.True(t, r.Has("docs", "write"))
	assert.False(t, r.Has("docs", "read"))

	h, ok := r.Get("docs", "write")
	require.True(t, ok)
	assert.NotNil(t, h)

	_, ok = r.Get("docs", "missing")
	assert.False(t, ok)
}

func TestAvailableServicesAndCommands(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Definition{Service: "docs", Command: "write", Handler: noop}))
	require.NoError(t, r.Register(Definition{Service: "docs", Command: "delete", Handler: noop}))
	require.NoError(t, r.Register(Definition{Service: "blob", Command: "put", Handler: noop}))

	assert.Equal(t, []string{"blob", "docs"}, r.AvailableServices())
	assert.Equal(t, []string{"delete", "write"}, r.Commands("docs"))
}

// TestCatalogRegistryBijection verifies that catalog entries and
// registry entries are in one-to-one correspondence.
func TestCatalogRegistryBijection(t *testing.T) {
	r := New()
	defs := []Definition{
		{Service: "docs", Command: "write", Description: "write a doc", Handler: noop},
		{Service: "docs", Command: "delete", Description: "delete a doc", Handler: noop},
		{Service: "blob", Command: "put", Description: "store a blob", AllowInPlanMode: true, Handler: noop},
	}
	for _, d := range defs {
		require.NoError(t, r.Register(d))
	}

	catalog := r.Catalog()
	require.Len(t, catalog, len(defs))

	seen := make(map[string]CatalogEntry)
	for _, entry := range catalog {
		seen[key(entry.Service, entry.Command)] = entry
	}

	for _, d := range defs {
		entry, ok := seen[key(d.Service, d.Command)]
		require.True(t, ok, "catalog missing entry for %s/%s", d.Service, d.Command)
		assert.Equal(t, d.Description, entry.Description)
		assert.Equal(t, d.AllowInPlanMode, entry.AllowInPlanMode)

		def, ok := r.GetDefinition(d.Service, d.Command)
		require.True(t, ok)
		assert.Equal(t, d.Description, def.Description)
	}
}
