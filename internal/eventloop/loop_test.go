package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/book"
)

const recvTimeout = time.Second

func newTestLoop() (*Loop, chan Command, chan book.Match, chan *book.OrderBook) {
	orders := make(chan Command, 16)
	matches := make(chan book.Match, 16)
	snapshots := make(chan *book.OrderBook, 4)
	return New(orders, matches, snapshots), orders, matches, snapshots
}

func runLoop(t *testing.T, l *Loop) (*tomb.Tomb, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var tb tomb.Tomb
	tb.Go(func() error { return l.Run(&tb, ctx) })
	return &tb, cancel
}

func TestLoopRestsLimitOrdersAndEmitsNoMatches(t *testing.T) {
	l, orders, matches, _ := newTestLoop()
	tb, cancel := runLoop(t, l)
	defer cancel()

	orders <- Command{Kind: LimitBuy, ID: book.OrderID(1), Price: book.Price(10), TargetVolume: book.Volume(5)}

	select {
	case m := <-matches:
		t.Fatalf("unexpected match for a resting limit order: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, book.Price(10), l.Book().BestBid())
	cancel()
	_ = tb.Wait()
}

func TestLoopMarketBuyEmitsMatchesInOrder(t *testing.T) {
	l, orders, matches, _ := newTestLoop()
	tb, cancel := runLoop(t, l)
	defer cancel()

	orders <- Command{Kind: LimitSell, ID: book.OrderID(1), Price: book.Price(10), TargetVolume: book.Volume(5)}
	orders <- Command{Kind: LimitSell, ID: book.OrderID(2), Price: book.Price(10), TargetVolume: book.Volume(5)}
	orders <- Command{Kind: MarketBuy, ID: book.OrderID(100), TargetVolume: book.Volume(7), AvailableQuoteBalance: book.Balance(1000)}

	var got []book.Match
	for i := 0; i < 2; i++ {
		select {
		case m := <-matches:
			got = append(got, m)
		case <-time.After(recvTimeout):
			t.Fatal("timed out waiting for matches")
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, book.OrderID(1), got[0].MakerOrderID)
	assert.Equal(t, book.MakerFilled, got[0].Type)
	assert.Equal(t, book.OrderID(2), got[1].MakerOrderID)
	assert.Equal(t, book.TakerFilled, got[1].Type)

	cancel()
	_ = tb.Wait()
}

func TestLoopCancelDoesNotEmitMatches(t *testing.T) {
	l, orders, matches, _ := newTestLoop()
	tb, cancel := runLoop(t, l)
	defer cancel()

	orders <- Command{Kind: LimitBuy, ID: book.OrderID(1), Price: book.Price(10), TargetVolume: book.Volume(5)}
	orders <- Command{Kind: Cancel, Price: book.Price(10), OrderID: book.OrderID(1)}

	select {
	case m := <-matches:
		t.Fatalf("cancel must not drain a match: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	_ = tb.Wait()
}

func TestLoopSendSnapshotDeliversIndependentCopy(t *testing.T) {
	l, orders, _, snapshots := newTestLoop()
	tb, cancel := runLoop(t, l)
	defer cancel()

	orders <- Command{Kind: LimitBuy, ID: book.OrderID(1), Price: book.Price(10), TargetVolume: book.Volume(5)}
	orders <- Command{Kind: SendSnapshot}

	select {
	case snap := <-snapshots:
		assert.Equal(t, book.Price(10), snap.BestBid())
		orders <- Command{Kind: LimitBuy, ID: book.OrderID(2), Price: book.Price(20), TargetVolume: book.Volume(5)}
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, book.Price(10), snap.BestBid(), "snapshot must not observe later mutation")
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for snapshot")
	}

	cancel()
	_ = tb.Wait()
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	l, _, _, _ := newTestLoop()
	tb, cancel := runLoop(t, l)

	cancel()
	err := tb.Wait()
	assert.NoError(t, err)
}
