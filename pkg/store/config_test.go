package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigStore_StoreFetchTarget(t *testing.T) {
	ps := NewMemStore()
	c := NewConfigStore(ps)

	id, err := c.Store(RawSpec("v1"))
	require.NoError(t, err)
	require.NoError(t, c.SetTargetConfig(id, "1.0.0", ""))

	target, err := c.GetTargetConfig()
	require.NoError(t, err)
	require.Equal(t, id, target)

	got, err := c.Fetch(id)
	require.NoError(t, err)
	require.Equal(t, RawSpec("v1"), got)
}

func TestConfigStore_SetTargetConfig_RefusesVersionDowngrade(t *testing.T) {
	ps := NewMemStore()
	c := NewConfigStore(ps)
	id, err := c.Store(RawSpec("v1"))
	require.NoError(t, err)

	err = c.SetTargetConfig(id, "1.0.0", "2.0.0")
	require.Error(t, err)
}

func TestConfigStore_GC_KeepsTargetAndReferenced(t *testing.T) {
	ps := NewMemStore()
	c := NewConfigStore(ps)
	target, err := c.Store(RawSpec("target"))
	require.NoError(t, err)
	referenced, err := c.Store(RawSpec("referenced"))
	require.NoError(t, err)
	orphan, err := c.Store(RawSpec("orphan"))
	require.NoError(t, err)
	require.NoError(t, c.SetTargetConfig(target, "1.0.0", ""))

	require.NoError(t, c.GC(map[string]bool{referenced: true}))

	ids, err := c.List()
	require.NoError(t, err)
	require.Contains(t, ids, target)
	require.Contains(t, ids, referenced)
	require.NotContains(t, ids, orphan)
}
