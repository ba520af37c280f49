package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSellerEarnings(t *testing.T) {
	o := &Order{Price: 100}
	assert.InDelta(t, 80.0, o.SellerEarnings(), 0.0001)

	o.Price = 49.99
	assert.InDelta(t, 39.992, o.SellerEarnings(), 0.0001)

	o.Price = 0
	assert.Zero(t, o.SellerEarnings())
}

func TestOrderStatusIsTerminal(t *testing.T) {
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusInProgress.IsTerminal())
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency("USD"))
	assert.True(t, ValidCurrency("EUR"))
	assert.False(t, ValidCurrency("INR"))
	assert.False(t, ValidCurrency("usd"))
	assert.False(t, ValidCurrency(""))
}
