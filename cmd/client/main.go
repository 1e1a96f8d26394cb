package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"matchcore/internal/book"
	"matchcore/internal/transport"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matchcore server")
	action := flag.String("action", "place", "action to perform: ['place', 'cancel', 'snapshot']")

	kindStr := flag.String("kind", "limit-buy", "order kind: market-buy, market-sell, limit-buy, limit-sell")
	price := flag.Uint64("price", 0, "limit price (ignored for market orders)")
	volume := flag.Uint64("volume", 0, "order volume")
	balance := flag.Uint64("balance", 0, "available quote balance (market-buy only)")

	cancelPrice := flag.Uint64("cancel-price", 0, "price of the resting order to cancel")
	cancelOrderID := flag.Uint64("cancel-id", 0, "order id to cancel")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *serverAddr)

	go readReports(conn)

	switch *action {
	case "place":
		kind, err := parseKind(*kindStr)
		if err != nil {
			log.Fatal(err)
		}
		msg := transport.NewOrder(kind, book.Price(*price), book.Volume(*volume), book.Balance(*balance))
		if err := transport.WriteMessage(conn, msg.Marshal()); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> sent %s order (token %s)\n", *kindStr, msg.ClientToken)
	case "cancel":
		msg := transport.Cancel(book.Price(*cancelPrice), book.OrderID(*cancelOrderID))
		if err := transport.WriteMessage(conn, msg.Marshal()); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for order %d at price %d\n", *cancelOrderID, *cancelPrice)
	case "snapshot":
		msg := transport.SnapshotRequest()
		if err := transport.WriteMessage(conn, msg.Marshal()); err != nil {
			log.Fatalf("failed to request snapshot: %v", err)
		}
		fmt.Println("-> requested snapshot")
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (press Ctrl+C to exit)")
	select {}
}

func parseKind(s string) (transport.OrderKind, error) {
	switch s {
	case "market-buy":
		return transport.KindMarketBuy, nil
	case "market-sell":
		return transport.KindMarketSell, nil
	case "limit-buy":
		return transport.KindLimitBuy, nil
	case "limit-sell":
		return transport.KindLimitSell, nil
	default:
		return 0, fmt.Errorf("unknown order kind: %s", s)
	}
}

func readReports(conn net.Conn) {
	for {
		typ, body, err := transport.ReadMessage(conn)
		if err != nil {
			fmt.Printf("connection closed: %v\n", err)
			os.Exit(0)
		}
		if typ != transport.TypeReport {
			continue
		}
		report, err := transport.DecodeReport(body)
		if err != nil {
			log.Printf("malformed report: %v", err)
			continue
		}
		printReport(report)
	}
}

func printReport(r transport.Report) {
	switch r.Kind {
	case transport.ReportAccepted:
		fmt.Printf("\n[ACCEPTED] order id %d (token %s)\n", r.OrderID, r.ClientToken)
	case transport.ReportMatch:
		fmt.Printf("\n[MATCH] order %d vs %d | price %d | volume %d | %s\n", r.OrderID, r.Counterparty, r.Price, r.Volume, matchTypeString(r.MatchType))
	case transport.ReportError:
		fmt.Printf("\n[ERROR] %s\n", r.Err)
	case transport.ReportLevel:
		fmt.Printf("\n[LEVEL] price %d | volume %d\n", r.Price, r.Volume)
	}
}

func matchTypeString(t book.MatchType) string {
	switch t {
	case book.MakerFilled:
		return "maker-filled"
	case book.TakerFilled:
		return "taker-filled"
	case book.BothFilled:
		return "both-filled"
	default:
		return "unknown"
	}
}
