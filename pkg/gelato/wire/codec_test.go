package wire

import (
	"testing"

	"github.com/jabolina/gelato/pkg/gelato/types"
	"github.com/stretchr/testify/require"
)

func sampleOrder() types.Order {
	return types.Order{
		ID: 42,
		Containers: []types.Container{
			{Size: 500, Flavours: []types.Flavour{types.Vanilla, types.Chocolate}},
			{Size: 250, Flavours: []types.Flavour{types.Cookies}},
		},
	}
}

func roundTrip(t *testing.T, f Frame) Frame {
	t.Helper()
	encoded, err := Encode(f)
	require.NoError(t, err)

	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.NotNil(t, decoded)
	return decoded
}

func TestRoundTrip_NewOrder(t *testing.T) {
	got := roundTrip(t, NewOrder{Order: sampleOrder()})
	require.Equal(t, NewOrder{Order: sampleOrder()}, got)
}

func TestRoundTrip_CapturePayment(t *testing.T) {
	got := roundTrip(t, CapturePayment{Order: sampleOrder()})
	require.Equal(t, CapturePayment{Order: sampleOrder()}, got)
}

func TestRoundTrip_FinishPayment(t *testing.T) {
	got := roundTrip(t, FinishPayment{OrderID: 7, Port: 5001})
	require.Equal(t, FinishPayment{OrderID: 7, Port: 5001}, got)
}

func TestRoundTrip_CancelPayment(t *testing.T) {
	got := roundTrip(t, CancelPayment{OrderID: 7, Port: 5001})
	require.Equal(t, CancelPayment{OrderID: 7, Port: 5001}, got)
}

func TestRoundTrip_PaymentAcceptedDeclined(t *testing.T) {
	require.Equal(t, PaymentAccepted{Order: sampleOrder()}, roundTrip(t, PaymentAccepted{Order: sampleOrder()}))
	require.Equal(t, PaymentDeclined{Order: sampleOrder()}, roundTrip(t, PaymentDeclined{Order: sampleOrder()}))
}

func TestRoundTrip_FlavourReleased(t *testing.T) {
	stock := types.InitialStock()
	stock[types.Vanilla] = 9750
	got := roundTrip(t, FlavourReleased{Stock: stock})
	require.Equal(t, stock, got.(FlavourReleased).Stock)
}

func TestRoundTrip_Election(t *testing.T) {
	got := roundTrip(t, Election{IDs: []types.Port{5000, 5001, 5002}})
	require.Equal(t, Election{IDs: []types.Port{5000, 5001, 5002}}, got)
}

func TestRoundTrip_ElectionEmpty(t *testing.T) {
	got := roundTrip(t, Election{IDs: nil})
	require.Equal(t, 0, len(got.(Election).IDs))
}

func TestRoundTrip_Coordinator(t *testing.T) {
	require.Equal(t, Coordinator{MaxID: 5002}, roundTrip(t, Coordinator{MaxID: 5002}))
}

func TestRoundTrip_NewLeader(t *testing.T) {
	require.Equal(t, NewLeader{LeaderPort: 5002, LeaderNext: 5000}, roundTrip(t, NewLeader{LeaderPort: 5002, LeaderNext: 5000}))
}

func TestRoundTrip_NewPendingOrder(t *testing.T) {
	got := roundTrip(t, NewPendingOrder{Owner: 5001, Order: sampleOrder()})
	require.Equal(t, NewPendingOrder{Owner: 5001, Order: sampleOrder()}, got)
}

func TestRoundTrip_OrderDone(t *testing.T) {
	require.Equal(t, OrderDone{OrderID: 99}, roundTrip(t, OrderDone{OrderID: 99}))
}

func TestRoundTrip_Ping(t *testing.T) {
	got := roundTrip(t, Ping{})
	require.Equal(t, Ping{}, got)
}

func TestDecode_ShortBufferReturnsNil(t *testing.T) {
	encoded, err := Encode(NewOrder{Order: sampleOrder()})
	require.NoError(t, err)

	for i := 0; i < len(encoded); i++ {
		frame, n, err := Decode(encoded[:i])
		require.NoError(t, err)
		require.Nil(t, frame)
		require.Equal(t, 0, n)
	}
}

func TestDecode_UnknownFrameID(t *testing.T) {
	buf := []byte{0xFF, 0x00, 0x00}
	frame, n, err := Decode(buf)
	require.Error(t, err)
	require.Nil(t, frame)
	require.Equal(t, 3, n)
}

func TestDecode_DoesNotOverconsume(t *testing.T) {
	one, err := Encode(Ping{})
	require.NoError(t, err)
	two, err := Encode(OrderDone{OrderID: 5})
	require.NoError(t, err)
	buf := append(append([]byte{}, one...), two...)

	f1, n1, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, Ping{}, f1)
	require.Equal(t, len(one), n1)

	f2, n2, err := Decode(buf[n1:])
	require.NoError(t, err)
	require.Equal(t, OrderDone{OrderID: 5}, f2)
	require.Equal(t, len(two), n2)
}
