package book

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels(t *testing.T) {
	assert.Equal(t, Price(math.MaxUint64), MaxPrice)
	assert.Equal(t, Price(0), MinPrice)
	assert.Equal(t, OrderID(math.MaxUint64), TombstoneOrderID)
}

func TestPriceArithmetic(t *testing.T) {
	assert.Equal(t, Price(15), Price(10).Add(Price(5)))
	assert.Equal(t, Price(5), Price(10).Sub(Price(5)))
	assert.Equal(t, Price(0), Price(10).Sub(Price(10)))
}

func TestPriceSubUnderflowPanics(t *testing.T) {
	assert.Panics(t, func() {
		Price(1).Sub(Price(2))
	})
}

func TestVolumeSubUnderflowPanics(t *testing.T) {
	assert.Panics(t, func() {
		Volume(0).Sub(Volume(1))
	})
}

func TestBalanceArithmetic(t *testing.T) {
	assert.Equal(t, Balance(700), Balance(350).Add(Balance(350)))
	assert.Equal(t, Balance(1), Balance(350).Sub(Balance(349)))
}
