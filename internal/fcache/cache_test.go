package fcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caiquemiranda/backend-base/internal/fcache"
)

func TestCache_PutAndGet(t *testing.T) {
	c, err := fcache.New(4, 1<<20)
	require.NoError(t, err)

	c.Put(fcache.Key("/a.html"), []byte("aaa"))
	c.Put(fcache.Key("/b.html"), []byte("bbb"))

	v, ok := c.Get(fcache.Key("/a.html"))
	assert.True(t, ok)
	assert.Equal(t, "aaa", string(v))

	_, ok = c.Get(fcache.Key("/missing.html"))
	assert.False(t, ok)

	assert.Equal(t, 2, c.Count())
}

func TestCache_ReplaceKeepsCount(t *testing.T) {
	c, err := fcache.New(2, 1<<20)
	require.NoError(t, err)

	k := fcache.Key("/x")
	c.Put(k, []byte("v1"))
	c.Put(k, []byte("v2"))

	v, ok := c.Get(k)
	assert.True(t, ok)
	assert.Equal(t, "v2", string(v))
	assert.Equal(t, 1, c.Count())
}

func TestCache_EvictsWhenOverBudget(t *testing.T) {
	// one shard so eviction order is observable
	c, err := fcache.New(1, 100)
	require.NoError(t, err)

	payload := make([]byte, 40)

	c.Put(1, payload)
	c.Put(2, payload)

	// touch key 1 so key 2 is the eviction candidate
	_, ok := c.Get(1)
	require.True(t, ok)

	evicted := c.Put(3, payload)
	assert.True(t, evicted)

	_, ok = c.Get(2)
	assert.False(t, ok)

	_, ok = c.Get(1)
	assert.True(t, ok)

	_, ok = c.Get(3)
	assert.True(t, ok)
}

func TestCache_RejectsValueLargerThanShard(t *testing.T) {
	c, err := fcache.New(2, 100)
	require.NoError(t, err)

	// each shard holds 50 bytes
	evicted := c.Put(7, make([]byte, 60))
	assert.False(t, evicted)

	_, ok := c.Get(7)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Count())
}

func TestCache_Purge(t *testing.T) {
	c, err := fcache.New(4, 1<<20)
	require.NoError(t, err)

	for i := uint64(0); i < 10; i++ {
		c.Put(i, []byte("x"))
	}
	require.Equal(t, 10, c.Count())

	c.Purge()
	assert.Equal(t, 0, c.Count())

	_, ok := c.Get(3)
	assert.False(t, ok)
}

func TestCache_InvalidConstruction(t *testing.T) {
	_, err := fcache.New(0, 100)
	assert.ErrorIs(t, err, fcache.ErrInvalidSharding)

	_, err = fcache.New(4, 0)
	assert.ErrorIs(t, err, fcache.ErrIllegalCapacity)
}

func TestDefaultBudget(t *testing.T) {
	assert.GreaterOrEqual(t, fcache.DefaultBudget(), uint64(8<<20))
}

func TestKey_Deterministic(t *testing.T) {
	assert.Equal(t, fcache.Key("/same"), fcache.Key("/same"))
	assert.NotEqual(t, fcache.Key("/one"), fcache.Key("/two"))
}
