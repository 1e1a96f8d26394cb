// Package book holds the price ladder — the ordered map from price to
// resting quotes — and the matching kernel that walks it for taker
// orders. See orderbook.go for the ladder and matching.go for the
// algorithm.
package book

import "math"

// Price, Volume, Balance, OrderID and UserID are distinct nominal types
// over uint64 so that a caller can't accidentally pass a volume where a
// price is expected. Arithmetic is only defined between same-typed
// values; subtraction is a caller-side precondition (the remainder must
// not underflow) and panics if violated rather than wrapping, since an
// underflow here means the caller has already broken book invariants.
type (
	Price   uint64
	Volume  uint64
	Balance uint64
	OrderID uint64
	UserID  uint64
)

// MaxPrice and MinPrice are the sentinels meaning "no ask" and "no bid"
// respectively on a freshly created or fully-exhausted book side.
const (
	MaxPrice Price = math.MaxUint64
	MinPrice Price = 0
)

// TombstoneOrderID marks a quote slot as logically deleted. A live quote
// must never use this id; the caller owns that invariant (§7 of the
// design: reusing it is a programming error, not a recoverable outcome).
const TombstoneOrderID OrderID = math.MaxUint64

func (p Price) Add(o Price) Price { return p + o }

func (p Price) Sub(o Price) Price {
	if o > p {
		panic("book: price subtraction underflow")
	}
	return p - o
}

func (v Volume) Add(o Volume) Volume { return v + o }

func (v Volume) Sub(o Volume) Volume {
	if o > v {
		panic("book: volume subtraction underflow")
	}
	return v - o
}

func (b Balance) Add(o Balance) Balance { return b + o }

func (b Balance) Sub(o Balance) Balance {
	if o > b {
		panic("book: balance subtraction underflow")
	}
	return b - o
}
