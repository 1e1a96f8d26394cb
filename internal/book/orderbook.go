package book

import "github.com/tidwall/btree"

// entry is the value stored in each side's btree: a price point and the
// level resting at it. The comparator only ever looks at Price, so a
// bare &entry{Price: p} is a valid search pivot.
type entry struct {
	Price Price
	Level *Level
}

// Outcome reports how an AddBid/AddAsk insertion landed.
type Outcome int

const (
	PlacedExisting Outcome = iota
	PlacedNew
	PlacedNewBest
	CrossedSpread
)

// Cancellation reports the result of a cancel request.
type Cancellation int

const (
	WasCancelled Cancellation = iota
	NotFound
)

// OrderBook is the price ladder for a single instrument: two ordered
// maps from price to level (bids descending, asks ascending) plus the
// cached best price on each side. The zero value is not usable; use New.
type OrderBook struct {
	bestAsk Price
	bestBid Price
	bids    *btree.BTreeG[*entry] // sorted greatest price first
	asks    *btree.BTreeG[*entry] // sorted least price first
}

// New returns an empty order book: no bid, no ask.
func New() *OrderBook {
	bids := btree.NewBTreeG(func(a, b *entry) bool {
		return a.Price > b.Price
	})
	asks := btree.NewBTreeG(func(a, b *entry) bool {
		return a.Price < b.Price
	})
	return &OrderBook{
		bestAsk: MaxPrice,
		bestBid: MinPrice,
		bids:    bids,
		asks:    asks,
	}
}

func (b *OrderBook) BestBid() Price { return b.bestBid }
func (b *OrderBook) BestAsk() Price { return b.bestAsk }

// Spread is best ask minus best bid. Undefined (and not meaningful)
// while either side is at its sentinel.
func (b *OrderBook) Spread() Price {
	return b.bestAsk.Sub(b.bestBid)
}

// AddBid inserts a resting buy quote at price. Preconditions: quote.Volume
// > 0, quote.OrderID != TombstoneOrderID; violating either is a
// programming error in the caller, not a recoverable outcome.
func (b *OrderBook) AddBid(price Price, quote Quote) Outcome {
	if price >= b.bestAsk {
		return CrossedSpread
	}
	outcome := b.place(b.bids, price, quote)
	if outcome != CrossedSpread && price > b.bestBid {
		b.bestBid = price
		return PlacedNewBest
	}
	return outcome
}

// AddAsk inserts a resting sell quote at price. Same preconditions as AddBid.
func (b *OrderBook) AddAsk(price Price, quote Quote) Outcome {
	if price <= b.bestBid {
		return CrossedSpread
	}
	outcome := b.place(b.asks, price, quote)
	if outcome != CrossedSpread && price < b.bestAsk {
		b.bestAsk = price
		return PlacedNewBest
	}
	return outcome
}

func (b *OrderBook) place(side *btree.BTreeG[*entry], price Price, quote Quote) Outcome {
	if e, ok := side.GetMut(&entry{Price: price}); ok {
		wasEmpty := e.Level.TotalVolume == 0
		e.Level.TotalVolume = e.Level.TotalVolume.Add(quote.Volume)
		e.Level.Quotes = append(e.Level.Quotes, quote)
		if wasEmpty {
			return PlacedNew
		}
		return PlacedExisting
	}
	lvl := newLevel()
	lvl.TotalVolume = quote.Volume
	lvl.Quotes = append(lvl.Quotes, quote)
	side.Set(&entry{Price: price, Level: lvl})
	return PlacedNew
}

// Cancel removes the first live quote matching order_id at price,
// tombstoning it in place and running compaction if the tombstone
// threshold is crossed. Does not itself update BestBid/BestAsk; a
// level whose live volume drops to zero is cleaned up lazily by the
// next matching traversal that observes it (§4.1).
func (b *OrderBook) Cancel(price Price, orderID OrderID) Cancellation {
	if c := cancelInLevel(b.bids, price, orderID); c == WasCancelled {
		return c
	}
	return cancelInLevel(b.asks, price, orderID)
}

func cancelInLevel(side *btree.BTreeG[*entry], price Price, orderID OrderID) Cancellation {
	e, ok := side.GetMut(&entry{Price: price})
	if !ok {
		return NotFound
	}
	for i := range e.Level.Quotes {
		q := &e.Level.Quotes[i]
		if q.IsTombstone() || q.OrderID != orderID {
			continue
		}
		e.Level.TotalVolume = e.Level.TotalVolume.Sub(q.Volume)
		*q = tombstone()
		e.Level.TombstoneCount++
		e.Level.maybeCompact()
		return WasCancelled
	}
	return NotFound
}

// AskVolume is the total live volume resting on the ask side.
func (b *OrderBook) AskVolume() Volume {
	return sumVolume(b.asks)
}

// BidVolume is the total live volume resting on the bid side.
func (b *OrderBook) BidVolume() Volume {
	return sumVolume(b.bids)
}

func sumVolume(side *btree.BTreeG[*entry]) Volume {
	var total Volume
	side.Scan(func(e *entry) bool {
		total = total.Add(e.Level.TotalVolume)
		return true
	})
	return total
}

// LevelView is a read-only snapshot of one price level, cheap enough for
// a frontend to poll without cloning the whole book (SPEC_FULL.md's
// supplemented read path).
type LevelView struct {
	Price       Price
	TotalVolume Volume
}

// AskLevels returns a live-volume view of every ask level in ascending
// price order.
func (b *OrderBook) AskLevels() []LevelView {
	return levelViews(b.asks)
}

// BidLevels returns a live-volume view of every bid level in descending
// price order.
func (b *OrderBook) BidLevels() []LevelView {
	return levelViews(b.bids)
}

func levelViews(side *btree.BTreeG[*entry]) []LevelView {
	views := make([]LevelView, 0, side.Len())
	side.Scan(func(e *entry) bool {
		views = append(views, LevelView{Price: e.Price, TotalVolume: e.Level.TotalVolume})
		return true
	})
	return views
}

// Copy returns a deep, independent copy of the book: every level and
// quote is duplicated so the original can keep mutating without the
// copy observing it (§5 snapshot semantics).
func (b *OrderBook) Copy() *OrderBook {
	cp := &OrderBook{bestAsk: b.bestAsk, bestBid: b.bestBid}
	cp.bids = btree.NewBTreeG(func(a, c *entry) bool { return a.Price > c.Price })
	cp.asks = btree.NewBTreeG(func(a, c *entry) bool { return a.Price < c.Price })
	b.bids.Scan(func(e *entry) bool {
		cp.bids.Set(&entry{Price: e.Price, Level: e.Level.copy()})
		return true
	})
	b.asks.Scan(func(e *entry) bool {
		cp.asks.Set(&entry{Price: e.Price, Level: e.Level.copy()})
		return true
	})
	return cp
}
