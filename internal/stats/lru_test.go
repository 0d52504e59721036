package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_Eviction(t *testing.T) {
	c := newLRU[int](2)
	c.set("a", 1)
	c.set("b", 2)

	// 讀取 a 讓 b 成為最久未使用
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.set("c", 3)
	_, ok = c.get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.len())

	c.set("a", 10)
	v, _ = c.get("a")
	assert.Equal(t, 10, v)

	c.delete("a")
	_, ok = c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.len())
}
