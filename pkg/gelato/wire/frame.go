// Package wire implements the length-prefixed binary protocol shared
// by Screens, Robot peers, and Payments: every frame on the wire is
// `id: u8 | length: u16 big-endian | payload: length bytes`, where
// length counts only the payload.
package wire

import "github.com/jabolina/gelato/pkg/gelato/types"

// ID identifies a frame kind on the wire.
type ID uint8

const (
	IDNewOrder ID = iota
	IDCapturePayment
	IDFinishPayment
	IDCancelPayment
	IDPaymentAccepted
	IDPaymentDeclined
	IDFlavourReleased
	IDElection
	IDCoordinator
	IDNewLeader
	IDNewPendingOrder
	IDOrderDone
	IDPing
)

// Frame is the closed tagged variant every wire message belongs to.
// Handlers type-switch on the concrete frame; there is no runtime type
// registration.
type Frame interface {
	FrameID() ID
}

// NewOrder is sent Screen->Leader for a fresh order, and
// Leader->Follower (or Leader->Leader-successor) to dispatch work.
type NewOrder struct {
	Order types.Order
}

func (NewOrder) FrameID() ID { return IDNewOrder }

// CapturePayment asks Payments to authorize an order.
type CapturePayment struct {
	Order types.Order
}

func (CapturePayment) FrameID() ID { return IDCapturePayment }

// FinishPayment reports that Port successfully prepared OrderID; it
// flows Follower->Leader->Payments. The Leader does not relay it to
// the other Followers.
type FinishPayment struct {
	OrderID uint16
	Port    types.Port
}

func (FinishPayment) FrameID() ID { return IDFinishPayment }

// CancelPayment reports that Port could not prepare OrderID for lack
// of stock; same routing as FinishPayment.
type CancelPayment struct {
	OrderID uint16
	Port    types.Port
}

func (CancelPayment) FrameID() ID { return IDCancelPayment }

// PaymentAccepted is Payments' reply authorizing Order.
type PaymentAccepted struct {
	Order types.Order
}

func (PaymentAccepted) FrameID() ID { return IDPaymentAccepted }

// PaymentDeclined is Payments' reply rejecting Order.
type PaymentDeclined struct {
	Order types.Order
}

func (PaymentDeclined) FrameID() ID { return IDPaymentDeclined }

// FlavourReleased is the token: possession grants exclusive right to
// deduct from Stock while it is held.
type FlavourReleased struct {
	Stock types.FlavoursStock
}

func (FlavourReleased) FrameID() ID { return IDFlavourReleased }

// Election carries the accumulated list of ids seen so far on one
// traversal of the ring.
type Election struct {
	IDs []types.Port
}

func (Election) FrameID() ID { return IDElection }

// Coordinator announces the winning (maximum) id of a completed
// election round.
type Coordinator struct {
	MaxID types.Port
}

func (Coordinator) FrameID() ID { return IDCoordinator }

// NewLeader announces a new Leader and its current ring successor.
type NewLeader struct {
	LeaderPort types.Port
	LeaderNext types.Port
}

func (NewLeader) FrameID() ID { return IDNewLeader }

// NewPendingOrder mirrors ownership: Owner now (or still) owns Order,
// so every peer can take over if Owner dies.
type NewPendingOrder struct {
	Owner types.Port
	Order types.Order
}

func (NewPendingOrder) FrameID() ID { return IDNewPendingOrder }

// OrderDone is Payments' reply to FinishPayment/CancelPayment.
type OrderDone struct {
	OrderID uint16
}

func (OrderDone) FrameID() ID { return IDOrderDone }

// Ping carries no payload; a Leader emits it to probe liveness. It is
// never acknowledged explicitly — the detection signal is a write
// failure on the connection it was sent over.
type Ping struct{}

func (Ping) FrameID() ID { return IDPing }
