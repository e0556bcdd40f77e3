package cache

import (
	"testing"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = core.Identity{Provider: "slack", ExternalID: "U-alice"}
	bob   = core.Identity{Provider: "slack", ExternalID: "U-bob"}
)

func TestKey(t *testing.T) {
	t.Run("equivalent queries share a key", func(t *testing.T) {
		a := Key([]core.Identity{alice}, "Deploy   Checklist", core.Filters{})
		b := Key([]core.Identity{alice}, "deploy checklist", core.Filters{})
		assert.Equal(t, a, b)
	})

	t.Run("caller order does not matter", func(t *testing.T) {
		a := Key([]core.Identity{alice, bob}, "deploy checklist", core.Filters{})
		b := Key([]core.Identity{bob, alice}, "deploy checklist", core.Filters{})
		assert.Equal(t, a, b)
	})

	t.Run("different principals never share a key", func(t *testing.T) {
		a := Key([]core.Identity{alice}, "deploy checklist", core.Filters{})
		b := Key([]core.Identity{bob}, "deploy checklist", core.Filters{})
		assert.NotEqual(t, a, b)
	})

	t.Run("filters change the key", func(t *testing.T) {
		a := Key([]core.Identity{alice}, "deploy checklist", core.Filters{})
		b := Key([]core.Identity{alice}, "deploy checklist", core.Filters{Sources: []string{"slack"}})
		assert.NotEqual(t, a, b)
	})

	t.Run("filter source order does not matter", func(t *testing.T) {
		a := Key(nil, "q", core.Filters{Sources: []string{"slack", "gdrive"}})
		b := Key(nil, "q", core.Filters{Sources: []string{"gdrive", "slack"}})
		assert.Equal(t, a, b)
	})
}

func TestCache(t *testing.T) {
	c, err := New[string](128, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	t.Run("miss then hit", func(t *testing.T) {
		_, ok := c.Get([]core.Identity{alice}, "deploy checklist", core.Filters{})
		assert.False(t, ok)

		c.Set([]core.Identity{alice}, "deploy checklist", core.Filters{}, "cached-response")
		c.Wait()

		got, ok := c.Get([]core.Identity{alice}, "Deploy  Checklist", core.Filters{})
		require.True(t, ok)
		assert.Equal(t, "cached-response", got)
	})

	t.Run("principal isolation", func(t *testing.T) {
		c.Set([]core.Identity{alice}, "team budget", core.Filters{}, "alice-view")
		c.Wait()

		_, ok := c.Get([]core.Identity{bob}, "team budget", core.Filters{})
		assert.False(t, ok)
		_, ok = c.Get(nil, "team budget", core.Filters{})
		assert.False(t, ok)
	})
}

func TestCacheTTL(t *testing.T) {
	c, err := New[int](128, 50*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	c.Set(nil, "ephemeral", core.Filters{}, 42)
	c.Wait()

	got, ok := c.Get(nil, "ephemeral", core.Filters{})
	require.True(t, ok)
	assert.Equal(t, 42, got)

	time.Sleep(100 * time.Millisecond)
	_, ok = c.Get(nil, "ephemeral", core.Filters{})
	assert.False(t, ok)
}
