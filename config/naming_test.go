package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamingConventionToTableName(t *testing.T) {
	nc := NewDefaultNaming()
	assert.NotNil(t, nc)
	assert.Equal(t, "wp_orders", nc.ToTableName("wp_", "orders"))
	assert.Equal(t, "wp_order_items", nc.ToTableName("wp_", "OrderItems"))
	assert.Equal(t, "order_items", nc.ToTableName("", "orderItems"))
}

func TestNamingConventionToCacheGroup(t *testing.T) {
	nc := NewDefaultNaming()
	assert.Equal(t, "orders", nc.ToCacheGroup("orders"))
	assert.Equal(t, "order_items", nc.ToCacheGroup("OrderItems"))
}

func TestNamingConventionToItemName(t *testing.T) {
	nc := NewDefaultNaming()
	assert.Equal(t, "order", nc.ToItemName("orders"))
	assert.Equal(t, "order_item", nc.ToItemName("OrderItems"))
	assert.Equal(t, "category", nc.ToItemName("categories"))
	assert.Equal(t, "address", nc.ToItemName("addresses"))
	assert.Equal(t, "address", nc.ToItemName("address"))
}
