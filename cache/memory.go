package cache

import (
	"sync"

	"go.uber.org/atomic"
)

// MemoryCache is a process-local Cache. It is safe for concurrent use.
type MemoryCache struct {
	mu     sync.RWMutex
	groups map[Group]map[string]interface{}

	suspendWrites  atomic.Bool
	suspendDeletes atomic.Bool
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{groups: make(map[Group]map[string]interface{})}
}

// SuspendWrites toggles the global switch and returns its previous state.
func (c *MemoryCache) SuspendWrites(suspend bool) bool {
	return c.suspendWrites.Swap(suspend)
}

func (c *MemoryCache) SuspendDeletes(suspend bool) bool {
	return c.suspendDeletes.Swap(suspend)
}

func (c *MemoryCache) WritesSuspended() bool {
	return c.suspendWrites.Load()
}

func (c *MemoryCache) DeletesSuspended() bool {
	return c.suspendDeletes.Load()
}

func (c *MemoryCache) Add(group Group, key string, value interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.groupLocked(group)
	if _, exists := entries[key]; exists {
		return false
	}
	entries[key] = value
	return true
}

func (c *MemoryCache) Get(group Group, key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.groups[group][key]
	return value, ok
}

func (c *MemoryCache) Set(group Group, key string, value interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.groupLocked(group)[key] = value
	return true
}

func (c *MemoryCache) Delete(group Group, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.groups[group]
	if !ok {
		return false
	}
	if _, exists := entries[key]; !exists {
		return false
	}
	delete(entries, key)
	return true
}

// Flush empties every group.
func (c *MemoryCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[Group]map[string]interface{})
}

// Len counts the entries of one group.
func (c *MemoryCache) Len(group Group) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups[group])
}

func (c *MemoryCache) groupLocked(group Group) map[string]interface{} {
	entries, ok := c.groups[group]
	if !ok {
		entries = make(map[string]interface{})
		c.groups[group] = entries
	}
	return entries
}
