package book

import "github.com/tidwall/btree"

// MatchType distinguishes which side(s) a given Match record closed out.
type MatchType int

const (
	// MakerFilled: the resting quote was fully consumed, the taker still
	// has remaining target volume to fill from further levels.
	MakerFilled MatchType = iota
	// TakerFilled: the taker's remaining target volume was fully
	// consumed by a partial bite out of the resting quote.
	TakerFilled
	// BothFilled: the resting quote's remaining volume and the taker's
	// remaining target volume reached zero on the very same match.
	BothFilled
)

// Match is one trade: a single maker-taker pairing at the maker's
// resting price. Volume is the quantity traded in this pairing, not the
// taker's aggregate.
type Match struct {
	MakerOrderID OrderID
	TakerOrderID OrderID
	Price        Price
	Volume       Volume
	Type         MatchType
}

// OutcomeKind tags how a taker order terminated.
type OutcomeKind int

const (
	Filled OutcomeKind = iota
	PartiallyFilled
	MarketVolumeExhausted
	FailedInsufficientFunds
)

// TxnOutcome is the result of running the matching kernel for one taker
// order. NewBestPrice is meaningful for Filled/PartiallyFilled.
// VolumeTransacted is meaningful for PartiallyFilled/MarketVolumeExhausted.
type TxnOutcome struct {
	Kind             OutcomeKind
	NewBestPrice     Price
	VolumeTransacted Volume
}

// ExecuteMarketBuy sweeps the ask side for targetVol, gated by a balance
// dry run against availableQuoteBalance (§4.2). Appends matches to
// matches (caller owns the buffer, typically reused across commands per
// §4.4) and returns the outcome. The book is left unmutated if the
// balance gate rejects the order.
func (b *OrderBook) ExecuteMarketBuy(takerID OrderID, targetVol Volume, availableQuoteBalance Balance, matches *[]Match) TxnOutcome {
	if cost, ok := dryRunCost(b.asks, b.bestAsk, targetVol, availableQuoteBalance); !ok {
		_ = cost
		return TxnOutcome{Kind: FailedInsufficientFunds}
	}
	outcome := b.runKernel(b.asks, b.bestAsk, true, takerID, targetVol, nil, matches)
	switch outcome.Kind {
	case Filled, PartiallyFilled:
		b.bestAsk = outcome.NewBestPrice
	case MarketVolumeExhausted:
		b.bestAsk = MaxPrice
	}
	return outcome
}

// ExecuteMarketSell sweeps the bid side for targetVol. The external
// account module is expected to have reserved base inventory before
// submitting the order (§4.2); there is no symmetric balance gate here.
func (b *OrderBook) ExecuteMarketSell(takerID OrderID, targetVol Volume, matches *[]Match) TxnOutcome {
	outcome := b.runKernel(b.bids, b.bestBid, false, takerID, targetVol, nil, matches)
	switch outcome.Kind {
	case Filled, PartiallyFilled:
		b.bestBid = outcome.NewBestPrice
	case MarketVolumeExhausted:
		b.bestBid = MinPrice
	}
	return outcome
}

// ExecuteLimitBuy matches against the ask side up to limitPrice and
// rests any unfilled residual as a bid at limitPrice (§4.3).
func (b *OrderBook) ExecuteLimitBuy(takerID OrderID, limitPrice Price, targetVol Volume, matches *[]Match) TxnOutcome {
	outcome := b.runKernel(b.asks, b.bestAsk, true, takerID, targetVol, &limitPrice, matches)
	switch outcome.Kind {
	case Filled:
		b.bestAsk = outcome.NewBestPrice
	case PartiallyFilled:
		b.bestAsk = outcome.NewBestPrice
		b.restResidual(true, takerID, limitPrice, targetVol.Sub(outcome.VolumeTransacted))
	case MarketVolumeExhausted:
		b.bestAsk = MaxPrice
		b.restResidual(true, takerID, limitPrice, targetVol.Sub(outcome.VolumeTransacted))
	}
	return outcome
}

// ExecuteLimitSell matches against the bid side down to limitPrice and
// rests any unfilled residual as an ask at limitPrice (§4.3).
func (b *OrderBook) ExecuteLimitSell(takerID OrderID, limitPrice Price, targetVol Volume, matches *[]Match) TxnOutcome {
	outcome := b.runKernel(b.bids, b.bestBid, false, takerID, targetVol, &limitPrice, matches)
	switch outcome.Kind {
	case Filled:
		b.bestBid = outcome.NewBestPrice
	case PartiallyFilled:
		b.bestBid = outcome.NewBestPrice
		b.restResidual(false, takerID, limitPrice, targetVol.Sub(outcome.VolumeTransacted))
	case MarketVolumeExhausted:
		b.bestBid = MinPrice
		b.restResidual(false, takerID, limitPrice, targetVol.Sub(outcome.VolumeTransacted))
	}
	return outcome
}

// restResidual inserts the unfilled remainder of a limit order on its
// own side. This can never cross: the opposite side's best has just
// been set past limitPrice (or to its sentinel) by the caller.
func (b *OrderBook) restResidual(isBuy bool, takerID OrderID, limitPrice Price, residual Volume) {
	if residual == 0 {
		return
	}
	quote := Quote{OrderID: takerID, Volume: residual}
	if isBuy {
		b.AddBid(limitPrice, quote)
	} else {
		b.AddAsk(limitPrice, quote)
	}
}

// dryRunCost walks the ask ladder from pivot without mutating it,
// accumulating the quote-currency cost of filling up to targetVol. It
// returns (cost, false) as soon as the running cost would exceed
// balance, short-circuiting before the real mutating pass runs.
func dryRunCost(asks *btree.BTreeG[*entry], pivot Price, targetVol Volume, balance Balance) (Balance, bool) {
	remaining := targetVol
	var cost Balance
	ok := true
	asks.Ascend(&entry{Price: pivot}, func(e *entry) bool {
		if remaining == 0 {
			return false
		}
		take := remaining
		if e.Level.TotalVolume < take {
			take = e.Level.TotalVolume
		}
		cost = cost.Add(Balance(take) * Balance(e.Price))
		if cost > balance {
			ok = false
			return false
		}
		remaining = remaining.Sub(take)
		return true
	})
	return cost, ok
}

// runKernel is the directional matching kernel (§4.2), shared by all
// four Execute* entry points. ascending selects ask-side (buy) vs
// bid-side (sell) traversal order; limit is nil for market orders.
func (b *OrderBook) runKernel(side *btree.BTreeG[*entry], pivot Price, ascending bool, takerID OrderID, targetVol Volume, limit *Price, matches *[]Match) TxnOutcome {
	remaining := targetVol
	var toDelete []Price
	var outcome TxnOutcome
	terminated := false

	visit := func(e *entry) bool {
		price := e.Price
		lvl := e.Level

		if limit != nil {
			if (ascending && price > *limit) || (!ascending && price < *limit) {
				outcome = TxnOutcome{Kind: PartiallyFilled, VolumeTransacted: targetVol.Sub(remaining), NewBestPrice: price}
				terminated = true
				return false
			}
		}

		if remaining == 0 {
			outcome = TxnOutcome{Kind: Filled, NewBestPrice: price}
			terminated = true
			return false
		}

		if remaining >= lvl.TotalVolume {
			countdown := remaining
			for _, q := range lvl.Quotes {
				if q.IsTombstone() {
					continue
				}
				countdown = countdown.Sub(q.Volume)
				typ := MakerFilled
				if countdown == 0 {
					typ = BothFilled
				}
				*matches = append(*matches, Match{MakerOrderID: q.OrderID, TakerOrderID: takerID, Price: price, Volume: q.Volume, Type: typ})
			}
			remaining = remaining.Sub(lvl.TotalVolume)
			lvl.clear()
			toDelete = append(toDelete, price)
			return true
		}

		lvl.TotalVolume = lvl.TotalVolume.Sub(remaining)
		consumed := 0
		for i := range lvl.Quotes {
			q := &lvl.Quotes[i]
			if q.IsTombstone() {
				continue
			}
			switch {
			case remaining < q.Volume:
				q.Volume = q.Volume.Sub(remaining)
				*matches = append(*matches, Match{MakerOrderID: q.OrderID, TakerOrderID: takerID, Price: price, Volume: remaining, Type: TakerFilled})
				remaining = 0
			case remaining == q.Volume:
				*matches = append(*matches, Match{MakerOrderID: q.OrderID, TakerOrderID: takerID, Price: price, Volume: q.Volume, Type: BothFilled})
				*q = tombstone()
				remaining = 0
				consumed++
			default:
				remaining = remaining.Sub(q.Volume)
				*matches = append(*matches, Match{MakerOrderID: q.OrderID, TakerOrderID: takerID, Price: price, Volume: q.Volume, Type: MakerFilled})
				*q = tombstone()
				consumed++
			}
			if remaining == 0 {
				break
			}
		}
		lvl.TombstoneCount += consumed
		lvl.maybeCompact()
		outcome = TxnOutcome{Kind: Filled, NewBestPrice: price}
		terminated = true
		return false
	}

	if ascending {
		side.AscendMut(&entry{Price: pivot}, visit)
	} else {
		side.DescendMut(&entry{Price: pivot}, visit)
	}

	for _, p := range toDelete {
		side.Delete(&entry{Price: p})
	}

	if !terminated {
		outcome = TxnOutcome{Kind: MarketVolumeExhausted, VolumeTransacted: targetVol.Sub(remaining)}
	}
	return outcome
}
