package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/book"
	"matchcore/internal/eventloop"
)

const testRecvTimeout = 2 * time.Second

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	orders := make(chan eventloop.Command, 16)
	matches := make(chan book.Match, 16)
	snapshots := make(chan *book.OrderBook, 4)

	loop := eventloop.New(orders, matches, snapshots)
	srv := NewServer("127.0.0.1:0", orders, matches, snapshots)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.addr = ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var tb tomb.Tomb
	tb.Go(func() error { return loop.Run(&tb, ctx) })
	tb.Go(func() error { return srv.Run(&tb, ctx) })

	// Give the listener a moment to bind before clients dial it.
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", srv.addr)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	return srv.addr, func() {
		cancel()
		_ = tb.Wait()
	}
}

func TestServerAcceptsPlaceOrderAndAcksIt(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	msg := NewOrder(KindLimitBuy, book.Price(10), book.Volume(5), book.Balance(0))
	require.NoError(t, WriteMessage(conn, msg.Marshal()))

	typ, body, err := ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, TypeReport, typ)

	report, err := DecodeReport(body)
	require.NoError(t, err)
	assert.Equal(t, ReportAccepted, report.Kind)
	assert.Equal(t, msg.ClientToken, report.ClientToken)
	assert.NotZero(t, report.OrderID)
}

func TestServerRoutesMatchToBothSides(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	maker, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer maker.Close()
	taker, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer taker.Close()

	askMsg := NewOrder(KindLimitSell, book.Price(10), book.Volume(5), book.Balance(0))
	require.NoError(t, WriteMessage(maker, askMsg.Marshal()))
	requireReportKind(t, maker, ReportAccepted)

	buyMsg := NewOrder(KindMarketBuy, book.Price(0), book.Volume(5), book.Balance(1000))
	require.NoError(t, WriteMessage(taker, buyMsg.Marshal()))
	requireReportKind(t, taker, ReportAccepted)

	makerReport := requireReportKind(t, maker, ReportMatch)
	takerReport := requireReportKind(t, taker, ReportMatch)

	assert.Equal(t, book.Volume(5), makerReport.Volume)
	assert.Equal(t, book.Volume(5), takerReport.Volume)
	assert.Equal(t, makerReport.OrderID, takerReport.Counterparty)
	assert.Equal(t, takerReport.OrderID, makerReport.Counterparty)
}

func requireReportKind(t *testing.T, conn net.Conn, kind ReportKind) Report {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(testRecvTimeout))
	typ, body, err := ReadMessage(conn)
	require.NoError(t, err)
	require.Equal(t, TypeReport, typ)
	report, err := DecodeReport(body)
	require.NoError(t, err)
	require.Equal(t, kind, report.Kind)
	return report
}
