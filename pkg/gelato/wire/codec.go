package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/jabolina/gelato/pkg/gelato/types"
)

const headerSize = 3 // id: u8, length: u16 big-endian

// Encode renders a frame using the shared header: id, big-endian
// payload length, payload. Decode(Encode(f)) == f for every Frame.
func Encode(f Frame) ([]byte, error) {
	var payload bytes.Buffer
	switch m := f.(type) {
	case NewOrder:
		writeOrder(&payload, m.Order)
	case CapturePayment:
		writeOrder(&payload, m.Order)
	case FinishPayment:
		writeU16(&payload, m.OrderID)
		writeU16(&payload, uint16(m.Port))
	case CancelPayment:
		writeU16(&payload, m.OrderID)
		writeU16(&payload, uint16(m.Port))
	case PaymentAccepted:
		writeOrder(&payload, m.Order)
	case PaymentDeclined:
		writeOrder(&payload, m.Order)
	case FlavourReleased:
		for _, f := range types.AllFlavours {
			payload.WriteByte(byte(f))
			writeU32(&payload, m.Stock[f])
		}
	case Election:
		writeU16(&payload, uint16(2*len(m.IDs)))
		for _, id := range m.IDs {
			writeU16(&payload, uint16(id))
		}
	case Coordinator:
		writeU16(&payload, uint16(m.MaxID))
	case NewLeader:
		writeU16(&payload, uint16(m.LeaderPort))
		writeU16(&payload, uint16(m.LeaderNext))
	case NewPendingOrder:
		writeU16(&payload, uint16(m.Owner))
		writeOrder(&payload, m.Order)
	case OrderDone:
		writeU16(&payload, m.OrderID)
	case Ping:
		// empty payload
	default:
		return nil, types.NewParseError("unknown frame type %T", f)
	}

	if payload.Len() > 0xFFFF {
		return nil, types.NewParseError("frame payload too large: %d bytes", payload.Len())
	}

	out := make([]byte, 0, headerSize+payload.Len())
	out = append(out, byte(f.FrameID()))
	out = append(out, 0, 0)
	binary.BigEndian.PutUint16(out[1:3], uint16(payload.Len()))
	out = append(out, payload.Bytes()...)
	return out, nil
}

// Decode reads a single frame from buf. It returns (nil, 0, nil) when
// fewer than 3+length bytes are available — never a partial consume.
// A malformed or unrecognized frame id returns a ParseError with the
// header's declared length still reported, so the caller can skip it.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < headerSize {
		return nil, 0, nil
	}
	id := ID(buf[0])
	length := int(binary.BigEndian.Uint16(buf[1:3]))
	total := headerSize + length
	if len(buf) < total {
		return nil, 0, nil
	}
	payload := buf[headerSize:total]
	frame, err := decodePayload(id, payload)
	return frame, total, err
}

func decodePayload(id ID, payload []byte) (Frame, error) {
	r := bytes.NewReader(payload)
	switch id {
	case IDNewOrder:
		order, err := readOrder(r)
		return NewOrder{Order: order}, err
	case IDCapturePayment:
		order, err := readOrder(r)
		return CapturePayment{Order: order}, err
	case IDFinishPayment:
		orderID, port, err := readOrderIDAndPort(r)
		return FinishPayment{OrderID: orderID, Port: port}, err
	case IDCancelPayment:
		orderID, port, err := readOrderIDAndPort(r)
		return CancelPayment{OrderID: orderID, Port: port}, err
	case IDPaymentAccepted:
		order, err := readOrder(r)
		return PaymentAccepted{Order: order}, err
	case IDPaymentDeclined:
		order, err := readOrder(r)
		return PaymentDeclined{Order: order}, err
	case IDFlavourReleased:
		stock := make(types.FlavoursStock, len(types.AllFlavours))
		for r.Len() > 0 {
			flavourID, err := readU8(r)
			if err != nil {
				return nil, types.NewParseError("flavour released: %v", err)
			}
			count, err := readU32(r)
			if err != nil {
				return nil, types.NewParseError("flavour released: %v", err)
			}
			stock[types.Flavour(flavourID)] = count
		}
		return FlavourReleased{Stock: stock}, nil
	case IDElection:
		nbytes, err := readU16(r)
		if err != nil {
			return nil, types.NewParseError("election: %v", err)
		}
		ids := make([]types.Port, 0, nbytes/2)
		for i := 0; i < int(nbytes)/2; i++ {
			id, err := readU16(r)
			if err != nil {
				return nil, types.NewParseError("election: %v", err)
			}
			ids = append(ids, types.Port(id))
		}
		return Election{IDs: ids}, nil
	case IDCoordinator:
		maxID, err := readU16(r)
		if err != nil {
			return nil, types.NewParseError("coordinator: %v", err)
		}
		return Coordinator{MaxID: types.Port(maxID)}, nil
	case IDNewLeader:
		leader, err := readU16(r)
		if err != nil {
			return nil, types.NewParseError("new leader: %v", err)
		}
		next, err := readU16(r)
		if err != nil {
			return nil, types.NewParseError("new leader: %v", err)
		}
		return NewLeader{LeaderPort: types.Port(leader), LeaderNext: types.Port(next)}, nil
	case IDNewPendingOrder:
		owner, err := readU16(r)
		if err != nil {
			return nil, types.NewParseError("new pending order: %v", err)
		}
		order, err := readOrder(r)
		return NewPendingOrder{Owner: types.Port(owner), Order: order}, err
	case IDOrderDone:
		orderID, err := readU16(r)
		if err != nil {
			return nil, types.NewParseError("order done: %v", err)
		}
		return OrderDone{OrderID: orderID}, nil
	case IDPing:
		return Ping{}, nil
	default:
		return nil, types.NewParseError("unknown frame id %d", id)
	}
}

func readOrderIDAndPort(r *bytes.Reader) (uint16, types.Port, error) {
	orderID, err := readU16(r)
	if err != nil {
		return 0, 0, types.NewParseError("order id/port: %v", err)
	}
	port, err := readU16(r)
	if err != nil {
		return 0, 0, types.NewParseError("order id/port: %v", err)
	}
	return orderID, types.Port(port), nil
}

// writeOrder encodes "u16 id, u8 n_containers, n_containers x Container".
func writeOrder(buf *bytes.Buffer, order types.Order) {
	writeU16(buf, order.ID)
	buf.WriteByte(byte(len(order.Containers)))
	for _, c := range order.Containers {
		writeContainer(buf, c)
	}
}

// writeContainer encodes "u16 size, u8 n_flavours, n_flavours x u8".
func writeContainer(buf *bytes.Buffer, c types.Container) {
	writeU16(buf, c.Size)
	buf.WriteByte(byte(len(c.Flavours)))
	for _, f := range c.Flavours {
		buf.WriteByte(byte(f))
	}
}

func readOrder(r *bytes.Reader) (types.Order, error) {
	id, err := readU16(r)
	if err != nil {
		return types.Order{}, types.NewParseError("order: %v", err)
	}
	nContainers, err := readU8(r)
	if err != nil {
		return types.Order{}, types.NewParseError("order: %v", err)
	}
	containers := make([]types.Container, 0, nContainers)
	for i := 0; i < int(nContainers); i++ {
		c, err := readContainer(r)
		if err != nil {
			return types.Order{}, err
		}
		containers = append(containers, c)
	}
	return types.Order{ID: id, Containers: containers}, nil
}

func readContainer(r *bytes.Reader) (types.Container, error) {
	size, err := readU16(r)
	if err != nil {
		return types.Container{}, types.NewParseError("container: %v", err)
	}
	nFlavours, err := readU8(r)
	if err != nil {
		return types.Container{}, types.NewParseError("container: %v", err)
	}
	flavours := make([]types.Flavour, 0, nFlavours)
	for i := 0; i < int(nFlavours); i++ {
		b, err := readU8(r)
		if err != nil {
			return types.Container{}, types.NewParseError("container: %v", err)
		}
		flavours = append(flavours, types.Flavour(b))
	}
	return types.Container{Size: size, Flavours: flavours}, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU8(r *bytes.Reader) (uint8, error) {
	return r.ReadByte()
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
