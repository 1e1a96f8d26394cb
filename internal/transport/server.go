// Package transport is the TCP frontend: it is not part of the matching
// core (§1), but every core still needs a wire to the outside world, and
// this is the thin mapper that owns it. It decodes wire orders into
// eventloop.Command values, allocates the OrderID the core treats as an
// opaque caller-supplied key (§3/§6), and routes the resulting matches
// and snapshots back to whichever connection is waiting on them.
//
// Adapted from the teacher's internal/net/server.go and internal/worker.go.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/book"
	"matchcore/internal/eventloop"
)

var errUnknownMessageType = errors.New("transport: unknown message type")

// conn wraps one accepted connection with a write mutex: reports for a
// connection arrive from several independent goroutines (the
// connection's own worker for acks and errors, the shared match
// dispatcher, and the snapshot dispatcher), and net.Conn.Write is
// not safe for concurrent use.
type conn struct {
	nc net.Conn
	mu sync.Mutex
}

func (c *conn) writeReport(r Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteMessage(c.nc, r.Marshal()); err != nil {
		log.Error().Err(err).Str("remote", c.nc.RemoteAddr().String()).Msg("failed to write report")
	}
}

// Server accepts connections, decodes wire messages, and feeds a shared
// eventloop.Loop over the channels it was built with. One Server serves
// exactly one order book.
type Server struct {
	addr      string
	orders    chan<- eventloop.Command
	matches   <-chan book.Match
	snapshots <-chan *book.OrderBook

	nextID uint64 // atomic, allocated per accepted NewOrderMessage

	mu    sync.Mutex
	conns map[book.OrderID]*conn

	snapMu    sync.Mutex
	snapQueue []*conn

	pool WorkerPool
}

const connectionWorkers = 32

func NewServer(addr string, orders chan<- eventloop.Command, matches <-chan book.Match, snapshots <-chan *book.OrderBook) *Server {
	return &Server{
		addr:      addr,
		orders:    orders,
		matches:   matches,
		snapshots: snapshots,
		conns:     make(map[book.OrderID]*conn),
		pool:      NewWorkerPool(connectionWorkers),
	}
}

// Run listens on s.addr until ctx is cancelled, supervised by t. Matches
// the teacher's Server.Run(t *tomb.Tomb) shape.
func (s *Server) Run(t *tomb.Tomb, ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", s.addr).Msg("transport listening")

	t.Go(func() error { s.pool.Setup(t, s.workConn); return nil })
	t.Go(func() error { return s.acceptLoop(t, ln) })
	t.Go(func() error { return s.dispatchMatches(t) })
	t.Go(func() error { return s.dispatchSnapshots(t) })

	select {
	case <-t.Dying():
	case <-ctx.Done():
	}
	_ = ln.Close()
	log.Info().Msg("transport stopped")
	return nil
}

func (s *Server) acceptLoop(t *tomb.Tomb, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
				return err
			}
		}
		s.pool.AddTask(&conn{nc: nc})
	}
}

// workConn adapts handleConn to the WorkerPool's WorkerFunc shape: one
// task is one connection's entire lifetime, not a single message.
func (s *Server) workConn(t *tomb.Tomb, task any) error {
	return s.handleConn(t, task.(*conn))
}

// handleConn reads one connection's messages until it closes or errors.
// Each decoded message is dispatched synchronously: parsing is cheap and
// the only blocking step is the send onto s.orders, which the single
// event loop drains in command order (§5).
func (s *Server) handleConn(t *tomb.Tomb, c *conn) error {
	defer c.nc.Close()
	addr := c.nc.RemoteAddr().String()
	log.Info().Str("remote", addr).Msg("connection accepted")
	defer log.Info().Str("remote", addr).Msg("connection closed")

	for {
		typ, body, err := ReadMessage(c.nc)
		if err != nil {
			return nil
		}
		if err := s.dispatch(t, c, typ, body); err != nil {
			c.writeReport(Report{Kind: ReportError, Err: err.Error()})
		}
	}
}

func (s *Server) dispatch(t *tomb.Tomb, c *conn, typ MessageType, body []byte) error {
	switch typ {
	case TypeNewOrder:
		m, err := unmarshalNewOrder(body)
		if err != nil {
			return err
		}
		id := book.OrderID(atomic.AddUint64(&s.nextID, 1))
		s.mu.Lock()
		s.conns[id] = c
		s.mu.Unlock()
		c.writeReport(Report{Kind: ReportAccepted, ClientToken: m.ClientToken, OrderID: id})
		select {
		case s.orders <- m.toCommand(id):
		case <-t.Dying():
		}
		return nil
	case TypeCancelOrder:
		m, err := unmarshalCancelOrder(body)
		if err != nil {
			return err
		}
		select {
		case s.orders <- m.toCommand():
		case <-t.Dying():
		}
		return nil
	case TypeSnapshotRequest:
		if _, err := unmarshalSnapshotRequest(body); err != nil {
			return err
		}
		s.snapMu.Lock()
		s.snapQueue = append(s.snapQueue, c)
		s.snapMu.Unlock()
		select {
		case s.orders <- eventloop.Command{Kind: eventloop.SendSnapshot}:
		case <-t.Dying():
		}
		return nil
	default:
		return errUnknownMessageType
	}
}

// dispatchMatches routes every match produced by the event loop to
// whichever connections are waiting on the maker and/or taker order ids.
// An order id with no registered connection is skipped; a registered
// connection that has since closed is still written to, and the failed
// write is logged. Either way the core has already committed the match
// regardless of who is listening.
func (s *Server) dispatchMatches(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case m, ok := <-s.matches:
			if !ok {
				return nil
			}
			s.routeMatch(m)
		}
	}
}

func (s *Server) routeMatch(m book.Match) {
	s.mu.Lock()
	maker := s.conns[m.MakerOrderID]
	taker := s.conns[m.TakerOrderID]
	s.mu.Unlock()

	if maker != nil {
		maker.writeReport(Report{Kind: ReportMatch, OrderID: m.MakerOrderID, Counterparty: m.TakerOrderID, Price: m.Price, Volume: m.Volume, MatchType: m.Type})
	}
	if taker != nil {
		taker.writeReport(Report{Kind: ReportMatch, OrderID: m.TakerOrderID, Counterparty: m.MakerOrderID, Price: m.Price, Volume: m.Volume, MatchType: m.Type})
	}
}

// dispatchSnapshots pops the oldest pending snapshot request and writes
// the requesting connection one ReportLevel per ask/bid level. Requests
// are served FIFO; nothing ties a specific snapshot to the request that
// triggered it beyond arrival order, matching the event loop's own
// single-threaded command ordering guarantee (§5).
func (s *Server) dispatchSnapshots(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case snap, ok := <-s.snapshots:
			if !ok {
				return nil
			}
			s.snapMu.Lock()
			if len(s.snapQueue) == 0 {
				s.snapMu.Unlock()
				continue
			}
			c := s.snapQueue[0]
			s.snapQueue = s.snapQueue[1:]
			s.snapMu.Unlock()

			for _, lvl := range snap.AskLevels() {
				c.writeReport(Report{Kind: ReportLevel, Price: lvl.Price, Volume: lvl.TotalVolume})
			}
			for _, lvl := range snap.BidLevels() {
				c.writeReport(Report{Kind: ReportLevel, Price: lvl.Price, Volume: lvl.TotalVolume})
			}
		}
	}
}
