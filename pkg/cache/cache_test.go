package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_Eviction(t *testing.T) {
	c := New[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3") // 容量为 2，最久未使用的 a 被淘汰

	_, ok := c.Get("a")
	assert.False(t, ok)

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	// b 刚被访问过，再写入时淘汰 c
	c.Set("d", "4")
	_, ok = c.Get("c")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := New[int](10, 20*time.Millisecond)

	c.Set("k", 42)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c := New[int](10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
