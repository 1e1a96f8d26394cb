package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/book"
	"matchcore/internal/eventloop"
	"matchcore/internal/transport"
)

const (
	commandChanSize  = 1000
	matchChanSize    = 1000
	snapshotChanSize = 4
)

func main() {
	addr := flag.String("addr", "0.0.0.0:9001", "TCP address to listen on")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	orders := make(chan eventloop.Command, commandChanSize)
	matches := make(chan book.Match, matchChanSize)
	snapshots := make(chan *book.OrderBook, snapshotChanSize)

	loop := eventloop.New(orders, matches, snapshots)
	srv := transport.NewServer(*addr, orders, matches, snapshots)

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error { return loop.Run(t, ctx) })
	t.Go(func() error { return srv.Run(t, ctx) })

	<-ctx.Done()
	t.Kill(nil)
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("matchcore exited with error")
	}
}
