package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarValidate(t *testing.T) {
	ok := Bar{Open: 100, High: 105, Low: 95, Close: 102}
	assert.NoError(t, ok.Validate())

	bad := Bar{Open: 100, High: 95, Low: 90, Close: 102}
	assert.Error(t, bad.Validate()) // close exceeds high

	zeroLow := Bar{Open: 1, High: 2, Low: 0, Close: 1}
	assert.Error(t, zeroLow.Validate())
}

func TestOrderKindValidate(t *testing.T) {
	assert.NoError(t, Market().Validate(Buy))
	assert.Error(t, Limit(0).Validate(Buy))
	assert.Error(t, Stop(-1).Validate(Sell))

	assert.NoError(t, StopLimit(10, 10).Validate(Buy))
	assert.Error(t, StopLimit(11, 10).Validate(Buy)) // buy requires stop <= limit
	assert.Error(t, StopLimit(9, 10).Validate(Sell)) // sell requires stop >= limit
}

func TestOrderKindString(t *testing.T) {
	assert.Equal(t, "market", Market().String())
	assert.Contains(t, Limit(1.5).String(), "limit")
}

func TestOrderValidate(t *testing.T) {
	o := &Order{ID: "o1", Side: Buy, Kind: Market(), Quantity: 10}
	assert.NoError(t, o.Validate())

	bad := &Order{ID: "o2", Side: Buy, Kind: Market(), Quantity: 0}
	assert.Error(t, bad.Validate())

	badSide := &Order{ID: "o3", Side: "sideways", Kind: Market(), Quantity: 1}
	assert.Error(t, badSide.Validate())
}

func TestOrderStatusActive(t *testing.T) {
	assert.True(t, OrderStatus{Tag: StatusPending}.Active())
	assert.True(t, OrderStatus{Tag: StatusPartiallyFilled}.Active())
	assert.False(t, OrderStatus{Tag: StatusFilled}.Active())
	assert.False(t, OrderStatus{Tag: StatusCancelled}.Active())
}
