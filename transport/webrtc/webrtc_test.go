package webrtc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/peerchat/transport"
)

func TestMemorySignaler(t *testing.T) {
	s := NewMemorySignaler()

	var got SignalMessage
	require.NoError(t, s.Register("bob", func(msg SignalMessage) { got = msg }))

	msg := SignalMessage{Kind: SignalOffer, From: "alice", To: "bob", SDP: "sdp-blob"}
	require.NoError(t, s.Send(msg))
	assert.Equal(t, msg, got)

	err := s.Send(SignalMessage{Kind: SignalOffer, From: "alice", To: "nobody"})
	assert.Error(t, err, "sending to an unregistered peer must fail")
}

func TestEndpointOpenLatch(t *testing.T) {
	s := NewMemorySignaler()
	e, err := NewEndpoint("alice", s, Config{})
	require.NoError(t, err)
	defer e.Close()

	var gotID string
	e.OnOpen(func(id string) { gotID = id })
	assert.Equal(t, "alice", gotID)
	assert.Equal(t, "alice", e.ID())
}

func TestSignalingHandshake(t *testing.T) {
	s := NewMemorySignaler()

	a, err := NewEndpoint("alice", s, Config{})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewEndpoint("bob", s, Config{})
	require.NoError(t, err)
	defer b.Close()

	var mu sync.Mutex
	var inbound transport.Conn
	b.OnConnection(func(c transport.Conn) {
		mu.Lock()
		inbound = c
		mu.Unlock()
	})

	conn, err := a.Connect("bob")
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "bob", conn.Peer())

	// The memory signaler delivers synchronously, so the offer/answer round
	// trip has completed by the time Connect returns.
	mu.Lock()
	got := inbound
	mu.Unlock()
	require.NotNil(t, got, "bob must have been offered a connection")
	assert.Equal(t, "alice", got.Peer())
}

func TestDataChannelEndToEnd(t *testing.T) {
	s := NewMemorySignaler()

	a, err := NewEndpoint("alice", s, Config{})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewEndpoint("bob", s, Config{})
	require.NoError(t, err)
	defer b.Close()

	var mu sync.Mutex
	var inbound transport.Conn
	b.OnConnection(func(c transport.Conn) {
		mu.Lock()
		inbound = c
		mu.Unlock()
	})

	conn, err := a.Connect("bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return conn.IsOpen() },
		15*time.Second, 50*time.Millisecond, "data channel never opened")

	mu.Lock()
	accepted := inbound
	mu.Unlock()
	require.NotNil(t, accepted)
	require.Eventually(t, func() bool { return accepted.IsOpen() },
		15*time.Second, 50*time.Millisecond)

	var received [][]byte
	accepted.OnData(func(p []byte) {
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
	})

	require.NoError(t, conn.Send([]byte("over the channel")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && string(received[0]) == "over the channel"
	}, 15*time.Second, 50*time.Millisecond)

	var closed bool
	accepted.OnClose(func() {
		mu.Lock()
		closed = true
		mu.Unlock()
	})
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return closed
	}, 15*time.Second, 50*time.Millisecond)

	assert.ErrorIs(t, conn.Send([]byte("late")), transport.ErrConnClosed)
}

func TestClosedConnRemovedFromEndpoint(t *testing.T) {
	s := NewMemorySignaler()

	a, err := NewEndpoint("alice", s, Config{})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewEndpoint("bob", s, Config{})
	require.NoError(t, err)
	defer b.Close()

	b.OnConnection(func(transport.Conn) {})

	first, err := a.Connect("bob")
	require.NoError(t, err)
	require.Same(t, first.(*Conn), a.lookup("bob"))

	require.NoError(t, first.Close())
	assert.Nil(t, a.lookup("bob"), "closed connection must leave the peer map")

	second, err := a.Connect("bob")
	require.NoError(t, err)
	require.Same(t, second.(*Conn), a.lookup("bob"),
		"reconnect must resolve signals to the fresh handle")

	// Closing the stale handle again must not evict its replacement.
	require.NoError(t, first.Close())
	assert.Same(t, second.(*Conn), a.lookup("bob"))
}
