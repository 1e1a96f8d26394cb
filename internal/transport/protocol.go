package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"matchcore/internal/book"
	"matchcore/internal/eventloop"
)

// MessageType is the first byte on the wire, adapted from the teacher's
// internal/net/messages.go enum.
type MessageType uint8

const (
	TypeNewOrder MessageType = iota
	TypeCancelOrder
	TypeSnapshotRequest
	TypeReport
)

// OrderKind selects one of the four taker operations a NewOrderMessage
// can carry (§4.2/§4.3). There is no separate "side" field: the kind
// already implies it.
type OrderKind uint8

const (
	KindMarketBuy OrderKind = iota
	KindMarketSell
	KindLimitBuy
	KindLimitSell
)

var ErrShortMessage = errors.New("transport: message shorter than its fixed header")

// NewOrderMessage is the wire form of a taker order. ClientToken is
// generated by the client and echoed back on every Report derived from
// this order, so a caller can correlate asynchronous reports with the
// submission that produced them without waiting for the core to hand
// back an OrderID synchronously (the core only assigns/accepts an
// OrderID once the event loop has actually processed the command).
//
// Wire layout (fixed, 41 bytes, all integers big-endian):
//
//	ClientToken [16]byte
//	Kind        uint8
//	Price       uint64
//	Volume      uint64
//	Balance     uint64  (AvailableQuoteBalance; 0 unless Kind == KindMarketBuy)
type NewOrderMessage struct {
	ClientToken uuid.UUID
	Kind        OrderKind
	Price       book.Price
	Volume      book.Volume
	Balance     book.Balance
}

const newOrderMessageLen = 16 + 1 + 8 + 8 + 8

func NewOrder(kind OrderKind, price book.Price, volume book.Volume, balance book.Balance) NewOrderMessage {
	return NewOrderMessage{
		ClientToken: uuid.New(),
		Kind:        kind,
		Price:       price,
		Volume:      volume,
		Balance:     balance,
	}
}

func (m NewOrderMessage) Marshal() []byte {
	buf := make([]byte, 1+newOrderMessageLen)
	buf[0] = byte(TypeNewOrder)
	copy(buf[1:17], m.ClientToken[:])
	buf[17] = byte(m.Kind)
	binary.BigEndian.PutUint64(buf[18:26], uint64(m.Price))
	binary.BigEndian.PutUint64(buf[26:34], uint64(m.Volume))
	binary.BigEndian.PutUint64(buf[34:42], uint64(m.Balance))
	return buf
}

func unmarshalNewOrder(body []byte) (NewOrderMessage, error) {
	if len(body) < newOrderMessageLen {
		return NewOrderMessage{}, ErrShortMessage
	}
	var m NewOrderMessage
	copy(m.ClientToken[:], body[0:16])
	m.Kind = OrderKind(body[16])
	m.Price = book.Price(binary.BigEndian.Uint64(body[17:25]))
	m.Volume = book.Volume(binary.BigEndian.Uint64(body[25:33]))
	m.Balance = book.Balance(binary.BigEndian.Uint64(body[33:41]))
	return m, nil
}

// toCommand lowers a wire order into an eventloop.Command, assigning id
// (allocated by the server, not the client — §1's "ID uniqueness is the
// caller's responsibility" lands on this layer).
func (m NewOrderMessage) toCommand(id book.OrderID) eventloop.Command {
	switch m.Kind {
	case KindMarketBuy:
		return eventloop.Command{Kind: eventloop.MarketBuy, ID: id, TargetVolume: m.Volume, AvailableQuoteBalance: m.Balance}
	case KindMarketSell:
		return eventloop.Command{Kind: eventloop.MarketSell, ID: id, TargetVolume: m.Volume}
	case KindLimitBuy:
		return eventloop.Command{Kind: eventloop.LimitBuy, ID: id, Price: m.Price, TargetVolume: m.Volume}
	default:
		return eventloop.Command{Kind: eventloop.LimitSell, ID: id, Price: m.Price, TargetVolume: m.Volume}
	}
}

// CancelOrderMessage asks the core to cancel a resting order. The
// client must remember the (price, order id) pair itself; the core
// does not index orders by any other key (§4.1).
//
// Wire layout (32 bytes): ClientToken [16]byte, Price uint64, OrderID uint64.
type CancelOrderMessage struct {
	ClientToken uuid.UUID
	Price       book.Price
	OrderID     book.OrderID
}

const cancelOrderMessageLen = 16 + 8 + 8

func Cancel(price book.Price, orderID book.OrderID) CancelOrderMessage {
	return CancelOrderMessage{ClientToken: uuid.New(), Price: price, OrderID: orderID}
}

func (m CancelOrderMessage) Marshal() []byte {
	buf := make([]byte, 1+cancelOrderMessageLen)
	buf[0] = byte(TypeCancelOrder)
	copy(buf[1:17], m.ClientToken[:])
	binary.BigEndian.PutUint64(buf[17:25], uint64(m.Price))
	binary.BigEndian.PutUint64(buf[25:33], uint64(m.OrderID))
	return buf
}

func unmarshalCancelOrder(body []byte) (CancelOrderMessage, error) {
	if len(body) < cancelOrderMessageLen {
		return CancelOrderMessage{}, ErrShortMessage
	}
	var m CancelOrderMessage
	copy(m.ClientToken[:], body[0:16])
	m.Price = book.Price(binary.BigEndian.Uint64(body[16:24]))
	m.OrderID = book.OrderID(binary.BigEndian.Uint64(body[24:32]))
	return m, nil
}

func (m CancelOrderMessage) toCommand() eventloop.Command {
	return eventloop.Command{Kind: eventloop.Cancel, Price: m.Price, OrderID: m.OrderID}
}

// SnapshotRequestMessage carries only its 16-byte ClientToken: the server responds with a
// sequence of Reports describing the current book depth.
type SnapshotRequestMessage struct {
	ClientToken uuid.UUID
}

func SnapshotRequest() SnapshotRequestMessage {
	return SnapshotRequestMessage{ClientToken: uuid.New()}
}

func (m SnapshotRequestMessage) Marshal() []byte {
	buf := make([]byte, 1+16)
	buf[0] = byte(TypeSnapshotRequest)
	copy(buf[1:17], m.ClientToken[:])
	return buf
}

func unmarshalSnapshotRequest(body []byte) (SnapshotRequestMessage, error) {
	if len(body) < 16 {
		return SnapshotRequestMessage{}, ErrShortMessage
	}
	var m SnapshotRequestMessage
	copy(m.ClientToken[:], body[0:16])
	return m, nil
}

// ReportKind distinguishes the four shapes a Report can take.
type ReportKind uint8

const (
	ReportMatch ReportKind = iota
	ReportAccepted
	ReportError
	ReportLevel
)

// Report is the only outbound message shape. Which fields are populated
// depends on Kind:
//   - ReportMatch: OrderID (maker), Counterparty (taker), Price, Volume, MatchType
//   - ReportAccepted: OrderID is the id the server assigned to the submission
//   - ReportError: Err
//   - ReportLevel: Price, Volume (one ask/bid level row of a snapshot reply)
type Report struct {
	Kind         ReportKind
	ClientToken  uuid.UUID
	OrderID      book.OrderID
	Counterparty book.OrderID
	Price        book.Price
	Volume       book.Volume
	MatchType    book.MatchType
	Err          string
}

func (r Report) Marshal() []byte {
	errBytes := []byte(r.Err)
	buf := make([]byte, 1+16+1+8+8+8+8+1+2+len(errBytes))
	i := 0
	buf[i] = byte(TypeReport)
	i++
	copy(buf[i:i+16], r.ClientToken[:])
	i += 16
	buf[i] = byte(r.Kind)
	i++
	binary.BigEndian.PutUint64(buf[i:i+8], uint64(r.OrderID))
	i += 8
	binary.BigEndian.PutUint64(buf[i:i+8], uint64(r.Counterparty))
	i += 8
	binary.BigEndian.PutUint64(buf[i:i+8], uint64(r.Price))
	i += 8
	binary.BigEndian.PutUint64(buf[i:i+8], uint64(r.Volume))
	i += 8
	buf[i] = byte(r.MatchType)
	i++
	binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(errBytes)))
	i += 2
	copy(buf[i:], errBytes)
	return buf
}

// DecodeReport parses the body of a TypeReport message (the bytes after
// the type byte, as returned by ReadMessage).
func DecodeReport(body []byte) (Report, error) {
	return unmarshalReport(body)
}

func unmarshalReport(body []byte) (Report, error) {
	const fixedLen = 16 + 1 + 8 + 8 + 8 + 8 + 1 + 2
	if len(body) < fixedLen {
		return Report{}, ErrShortMessage
	}
	var r Report
	i := 0
	copy(r.ClientToken[:], body[i:i+16])
	i += 16
	r.Kind = ReportKind(body[i])
	i++
	r.OrderID = book.OrderID(binary.BigEndian.Uint64(body[i : i+8]))
	i += 8
	r.Counterparty = book.OrderID(binary.BigEndian.Uint64(body[i : i+8]))
	i += 8
	r.Price = book.Price(binary.BigEndian.Uint64(body[i : i+8]))
	i += 8
	r.Volume = book.Volume(binary.BigEndian.Uint64(body[i : i+8]))
	i += 8
	r.MatchType = book.MatchType(body[i])
	i++
	errLen := int(binary.BigEndian.Uint16(body[i : i+2]))
	i += 2
	if len(body) < i+errLen {
		return Report{}, ErrShortMessage
	}
	r.Err = string(body[i : i+errLen])
	return r, nil
}

// ReadMessage reads one length-prefixed message from r: a uint32
// big-endian length followed by that many bytes, the first of which is
// the MessageType. Mirrors the teacher's net/messages.go framing.
func ReadMessage(r io.Reader) (MessageType, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return 0, nil, fmt.Errorf("transport: zero-length message")
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return MessageType(payload[0]), payload[1:], nil
}

// WriteMessage writes one length-prefixed message: frame is the result
// of a Marshal() call, type byte included.
func WriteMessage(w io.Writer, frame []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}
