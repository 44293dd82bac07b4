// Package cache holds the grouped key/value store queries are cached in and
// the LastChanged tokens used to invalidate whole groups at once.
package cache

import (
	"strings"

	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
)

// Group is a cache namespace. Keys only collide within one group.
type Group struct {
	name string
}

// NewGroup normalizes name to snake case, so "OrderItems" and "order_items"
// address the same group.
func NewGroup(name string) Group {
	return Group{name: strcase.ToSnake(strings.TrimSpace(name))}
}

func (g Group) String() string {
	return g.name
}

func (g Group) IsZero() bool {
	return g.name == ""
}

// By is the group mapping values of column to primary keys.
func (g Group) By(column string) Group {
	return Group{name: g.name + "-by-" + column}
}

// Cache is a grouped key/value store.
type Cache interface {
	// Add stores value only when key is not present
	Add(group Group, key string, value interface{}) bool
	Get(group Group, key string) (interface{}, bool)
	Set(group Group, key string, value interface{}) bool
	Delete(group Group, key string) bool

	// WritesSuspended reports that Add and Set must be skipped
	WritesSuspended() bool
	// DeletesSuspended reports that Delete must be skipped
	DeletesSuspended() bool
}

const lastChangedKey = "last_changed"

// LastChanged returns the group's invalidation token, creating one the first
// time the group is used.
func LastChanged(c Cache, group Group) string {
	if token, ok := c.Get(group, lastChangedKey); ok {
		if s, isString := token.(string); isString && s != "" {
			return s
		}
	}
	return BumpLastChanged(c, group)
}

// BumpLastChanged replaces the group's token, orphaning every key computed
// with the previous one. Tokens are UUIDv7 values and sort by time.
func BumpLastChanged(c Cache, group Group) string {
	token := newToken()
	c.Set(group, lastChangedKey, token)
	return token
}

func newToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
