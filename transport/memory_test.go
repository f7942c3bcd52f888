package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointOpenLatch(t *testing.T) {
	n := NewNetwork()
	e := n.Endpoint("alice")

	var gotID string
	e.OnOpen(func(id string) { gotID = id })

	assert.Equal(t, "alice", gotID, "open handler must fire immediately on a live endpoint")
	assert.Equal(t, "alice", e.ID())
}

func TestConnectDelivery(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("alice")
	b := n.Endpoint("bob")

	var accepted Conn
	b.OnConnection(func(c Conn) { accepted = c })

	conn, err := a.Connect("bob")
	require.NoError(t, err)
	require.NotNil(t, accepted, "bob must see the inbound connection")

	assert.Equal(t, "bob", conn.Peer())
	assert.Equal(t, "alice", accepted.Peer())
	assert.True(t, conn.IsOpen())
	assert.True(t, accepted.IsOpen())

	var got [][]byte
	accepted.OnData(func(p []byte) { got = append(got, p) })

	require.NoError(t, conn.Send([]byte("one")))
	require.NoError(t, conn.Send([]byte("two")))
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, got, "delivery must be in order")

	// Reverse direction.
	var back []byte
	conn.OnData(func(p []byte) { back = p })
	require.NoError(t, accepted.Send([]byte("reply")))
	assert.Equal(t, []byte("reply"), back)
}

func TestDataReplayBeforeHandler(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("alice")
	b := n.Endpoint("bob")

	var accepted Conn
	b.OnConnection(func(c Conn) { accepted = c })

	conn, err := a.Connect("bob")
	require.NoError(t, err)

	// Payloads sent before bob registers a data handler are replayed.
	require.NoError(t, conn.Send([]byte("early")))

	var got [][]byte
	accepted.OnData(func(p []byte) { got = append(got, p) })
	require.Equal(t, [][]byte{[]byte("early")}, got)
}

func TestConnectionReplayBeforeHandler(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("alice")
	b := n.Endpoint("bob")

	_, err := a.Connect("bob")
	require.NoError(t, err)

	var accepted Conn
	b.OnConnection(func(c Conn) { accepted = c })
	require.NotNil(t, accepted, "connections arriving before registration are replayed")
}

func TestClosePropagates(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("alice")
	b := n.Endpoint("bob")

	var accepted Conn
	b.OnConnection(func(c Conn) { accepted = c })

	conn, err := a.Connect("bob")
	require.NoError(t, err)

	var localClosed, remoteClosed bool
	conn.OnClose(func() { localClosed = true })
	accepted.OnClose(func() { remoteClosed = true })

	require.NoError(t, conn.Close())
	assert.True(t, localClosed)
	assert.True(t, remoteClosed)
	assert.False(t, conn.IsOpen())
	assert.False(t, accepted.IsOpen())

	assert.ErrorIs(t, conn.Send([]byte("late")), ErrConnClosed)
	assert.NoError(t, conn.Close(), "double close is a no-op")
}

func TestConnectFailures(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("alice")

	_, err := a.Connect("nobody")
	assert.ErrorIs(t, err, ErrPeerUnavailable)

	require.NoError(t, a.Close())
	_, err = a.Connect("nobody")
	assert.ErrorIs(t, err, ErrEndpointClosed)
}

func TestEndpointCloseClosesConns(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("alice")
	b := n.Endpoint("bob")
	b.OnConnection(func(Conn) {})

	conn, err := a.Connect("bob")
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.False(t, conn.IsOpen())
}

func TestInjectError(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("alice")
	b := n.Endpoint("bob")
	b.OnConnection(func(Conn) {})

	var epErr error
	a.OnError(func(err error) { epErr = err })
	a.InjectError(errors.New("signaling lost"))
	assert.EqualError(t, epErr, "signaling lost")

	conn, err := a.Connect("bob")
	require.NoError(t, err)

	var connErr error
	conn.(*MemoryConn).OnError(func(err error) { connErr = err })
	conn.(*MemoryConn).InjectError(errors.New("ice failed"))
	assert.EqualError(t, connErr, "ice failed")
}
