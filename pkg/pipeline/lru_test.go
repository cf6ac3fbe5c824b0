package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_AddAndContains(t *testing.T) {
	c := newLRUCache(2)
	assert.False(t, c.Contains("a"))

	c.Add("a")
	assert.True(t, c.Contains("a"))
}

func TestLRUCache_EvictsOldestWhenOverCapacity(t *testing.T) {
	c := newLRUCache(2)
	c.Add("a")
	c.Add("b")
	c.Add("c") // evicts "a"

	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
	assert.Equal(t, 2, c.Len())
}

func TestLRUCache_ContainsPromotesToMostRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	c.Add("a")
	c.Add("b")
	c.Contains("a") // touch "a", making "b" the oldest
	c.Add("c")      // should evict "b", not "a"

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}
