// Package eventloop owns a single book.OrderBook and serializes every
// mutation through one goroutine (§4.4/§5): commands arrive on an
// inbound channel, are applied to the book in arrival order, and the
// resulting matches (or an on-demand snapshot) are pushed to outbound
// channels. There is no suspension point inside a command; the only
// blocking point is the receive on the inbound channel and, potentially,
// the send of that command's matches (or of a snapshot) if the outbound
// channel is bounded and slow to drain (§5 backpressure).
package eventloop

import (
	"context"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/book"
)

// matchBufferInitCapacity mirrors the original fills buffer sizing: large
// enough that a typical command's matches don't force a reallocation.
const matchBufferInitCapacity = 1000

// CommandKind is the event loop's command alphabet (§4.4).
type CommandKind int

const (
	MarketBuy CommandKind = iota
	MarketSell
	LimitBuy
	LimitSell
	Cancel
	SendSnapshot
)

// Command is one inbound instruction. Which fields are meaningful
// depends on Kind:
//   - MarketBuy: ID, TargetVolume, AvailableQuoteBalance
//   - MarketSell: ID, TargetVolume
//   - LimitBuy / LimitSell: ID, Price, TargetVolume
//   - Cancel: Price, OrderID (ID is unused)
//   - SendSnapshot: no fields used
//
// id must be unique across the book's lifetime for any non-SendSnapshot
// command; book.TombstoneOrderID is reserved. The caller owns allocation
// and uniqueness (§6): the core does not validate it twice.
type Command struct {
	Kind                  CommandKind
	ID                    book.OrderID
	OrderID               book.OrderID // Cancel target order id
	Price                 book.Price
	TargetVolume          book.Volume
	AvailableQuoteBalance book.Balance
}

// Loop is the single owner of one book.OrderBook.
type Loop struct {
	book      *book.OrderBook
	orders    <-chan Command
	matches   chan<- book.Match
	snapshots chan<- *book.OrderBook
	matchBuf  []book.Match
}

// New builds a loop over a fresh order book, reading commands from
// orders and publishing matches/snapshots to the given channels.
func New(orders <-chan Command, matches chan<- book.Match, snapshots chan<- *book.OrderBook) *Loop {
	return &Loop{
		book:      book.New(),
		orders:    orders,
		matches:   matches,
		snapshots: snapshots,
		matchBuf:  make([]book.Match, 0, matchBufferInitCapacity),
	}
}

// Book exposes the live book for library-style embedding independent of
// the event loop (§6). Callers embedding the loop inside a single
// goroutine may use this directly instead of going through the channels.
func (l *Loop) Book() *book.OrderBook { return l.book }

// Run drives the loop until ctx is cancelled or the orders channel
// closes. It is meant to be supervised by a tomb.Tomb, matching the
// teacher's worker-pool/server goroutine lifecycle.
func (l *Loop) Run(t *tomb.Tomb, ctx context.Context) error {
	log.Info().Msg("order book event loop starting")
	defer log.Info().Msg("order book event loop stopped")

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ctx.Done():
			return nil
		case cmd, ok := <-l.orders:
			if !ok {
				return nil
			}
			l.handle(cmd)
		}
	}
}

// handle applies one command to the book and drains matches. This is
// the latency-critical path: no logging, allocation beyond the match
// buffer's amortized growth, or I/O happens here (§5).
func (l *Loop) handle(cmd Command) {
	switch cmd.Kind {
	case MarketBuy:
		l.book.ExecuteMarketBuy(cmd.ID, cmd.TargetVolume, cmd.AvailableQuoteBalance, &l.matchBuf)
	case MarketSell:
		l.book.ExecuteMarketSell(cmd.ID, cmd.TargetVolume, &l.matchBuf)
	case LimitBuy:
		l.book.ExecuteLimitBuy(cmd.ID, cmd.Price, cmd.TargetVolume, &l.matchBuf)
	case LimitSell:
		l.book.ExecuteLimitSell(cmd.ID, cmd.Price, cmd.TargetVolume, &l.matchBuf)
	case Cancel:
		l.book.Cancel(cmd.Price, cmd.OrderID)
		return
	case SendSnapshot:
		l.snapshots <- l.book.Copy()
		return
	}
	l.drainMatches()
}

// drainMatches pushes the buffered matches in order, then resets the
// buffer's length while retaining its capacity (§4.4).
func (l *Loop) drainMatches() {
	for _, m := range l.matchBuf {
		l.matches <- m
	}
	l.matchBuf = l.matchBuf[:0]
}
