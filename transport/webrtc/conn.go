package webrtc

import (
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/opd-ai/peerchat/transport"
)

// Conn is a transport.Conn backed by one pion data channel.
type Conn struct {
	mu         sync.Mutex
	peer       string
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	open       bool
	closed     bool
	remoteSet  bool
	candidates []webrtc.ICECandidateInit
	pending    [][]byte
	onOpen     func()
	onData     func([]byte)
	onClose    func()
	onError    func(error)

	// cleanup detaches the conn from its endpoint once it closes, so a
	// reconnect to the same peer never resolves to a dead handle.
	cleanup func()
}

func newConn(peer string, pc *webrtc.PeerConnection) *Conn {
	return &Conn{peer: peer, pc: pc}
}

// bind attaches the data channel once it exists: immediately for the offering
// side, on the OnDataChannel event for the answering side.
func (c *Conn) bind(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		c.open = true
		handler := c.onOpen
		c.mu.Unlock()
		if handler != nil {
			handler()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		handler := c.onData
		if handler == nil {
			c.pending = append(c.pending, msg.Data)
		}
		c.mu.Unlock()
		if handler != nil {
			handler(msg.Data)
		}
	})
	dc.OnClose(func() {
		c.closedByPeer()
	})
	dc.OnError(func(err error) {
		c.fail(err)
	})
}

// Peer returns the remote peer's identifier.
func (c *Conn) Peer() string { return c.peer }

// IsOpen reports whether the data channel is open.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Send transmits a payload over the data channel.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	if !c.open || c.dc == nil {
		c.mu.Unlock()
		return transport.ErrConnClosed
	}
	dc := c.dc
	c.mu.Unlock()

	return dc.Send(payload)
}

// Close tears down the data channel and the peer connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	dc := c.dc
	pc := c.pc
	handler := c.onClose
	cleanup := c.cleanup
	c.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	err := pc.Close()
	if handler != nil {
		handler()
	}
	if cleanup != nil {
		cleanup()
	}
	return err
}

// OnOpen registers the open handler; fires immediately when already open.
func (c *Conn) OnOpen(handler func()) {
	c.mu.Lock()
	c.onOpen = handler
	open := c.open
	c.mu.Unlock()

	if handler != nil && open {
		handler()
	}
}

// OnData registers the data handler, replaying payloads that arrived before
// registration in order.
func (c *Conn) OnData(handler func(payload []byte)) {
	c.mu.Lock()
	c.onData = handler
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if handler != nil {
		for _, p := range pending {
			handler(p)
		}
	}
}

// OnClose registers the close handler.
func (c *Conn) OnClose(handler func()) {
	c.mu.Lock()
	c.onClose = handler
	c.mu.Unlock()
}

// OnError registers the error handler.
func (c *Conn) OnError(handler func(err error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

// setRemote installs the remote session description and flushes ICE
// candidates that arrived before it.
func (c *Conn) setRemote(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	c.mu.Lock()
	c.remoteSet = true
	buffered := c.candidates
	c.candidates = nil
	c.mu.Unlock()

	for _, candidate := range buffered {
		if err := c.pc.AddICECandidate(candidate); err != nil {
			return err
		}
	}
	return nil
}

// addCandidate applies a remote ICE candidate, buffering it when the remote
// description is not set yet.
func (c *Conn) addCandidate(candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	if !c.remoteSet {
		c.candidates = append(c.candidates, candidate)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.pc.AddICECandidate(candidate)
}

func (c *Conn) closedByPeer() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	handler := c.onClose
	cleanup := c.cleanup
	c.mu.Unlock()

	if handler != nil {
		handler()
	}
	if cleanup != nil {
		cleanup()
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	handler := c.onError
	c.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}
