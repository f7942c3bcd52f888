package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Network is an in-process transport: endpoints register under an identifier
// and connect to each other directly. Delivery is synchronous and in-order,
// which keeps lifecycle tests deterministic. The demo binary runs two peers
// on one Network the same way.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*MemoryEndpoint
}

// NewNetwork creates an empty in-memory network.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*MemoryEndpoint)}
}

// Endpoint registers a new endpoint under id, replacing any previous
// registration for the same identifier.
func (n *Network) Endpoint(id string) *MemoryEndpoint {
	e := &MemoryEndpoint{network: n, id: id}

	n.mu.Lock()
	n.endpoints[id] = e
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Endpoint",
		"id":       id,
	}).Debug("Registered memory endpoint")

	return e
}

// Factory returns a Factory that registers endpoints on this network.
func (n *Network) Factory() Factory {
	return func(id string) (Endpoint, error) {
		return n.Endpoint(id), nil
	}
}

func (n *Network) lookup(id string) *MemoryEndpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.endpoints[id]
}

// MemoryEndpoint is the in-memory Endpoint implementation. It is usable
// immediately after registration.
type MemoryEndpoint struct {
	network *Network
	id      string

	mu           sync.Mutex
	closed       bool
	conns        []*MemoryConn
	pendingConns []*MemoryConn
	onOpen       func(string)
	onConnection func(Conn)
	onError      func(error)
}

// ID returns the identifier the endpoint is registered under.
func (e *MemoryEndpoint) ID() string { return e.id }

// Connect wires a connection pair between this endpoint and the target's.
// Both halves are open on return; the remote endpoint's connection handler
// sees its half before Connect returns.
func (e *MemoryEndpoint) Connect(target string) (Conn, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEndpointClosed
	}
	e.mu.Unlock()

	remote := e.network.lookup(target)
	if remote == nil {
		return nil, ErrPeerUnavailable
	}
	remote.mu.Lock()
	if remote.closed {
		remote.mu.Unlock()
		return nil, ErrPeerUnavailable
	}
	remote.mu.Unlock()

	local := &MemoryConn{peer: target, open: true}
	far := &MemoryConn{peer: e.id, open: true}
	local.remote = far
	far.remote = local

	e.track(local)
	remote.track(far)
	remote.accept(far)

	return local, nil
}

// Close shuts the endpoint down, closing every connection it produced.
func (e *MemoryEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := e.conns
	e.conns = nil
	e.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return nil
}

// OnOpen registers the endpoint-ready handler. Memory endpoints are usable
// from the moment of registration, so the handler fires immediately.
func (e *MemoryEndpoint) OnOpen(handler func(id string)) {
	e.mu.Lock()
	e.onOpen = handler
	closed := e.closed
	e.mu.Unlock()

	if handler != nil && !closed {
		handler(e.id)
	}
}

// OnConnection registers the inbound connection handler and replays any
// connections that arrived before registration.
func (e *MemoryEndpoint) OnConnection(handler func(conn Conn)) {
	e.mu.Lock()
	e.onConnection = handler
	pending := e.pendingConns
	e.pendingConns = nil
	e.mu.Unlock()

	if handler != nil {
		for _, c := range pending {
			handler(c)
		}
	}
}

// OnError registers the endpoint-level error handler.
func (e *MemoryEndpoint) OnError(handler func(err error)) {
	e.mu.Lock()
	e.onError = handler
	e.mu.Unlock()
}

// InjectError invokes the endpoint's error handler, simulating an
// endpoint-level transport failure. Test helper.
func (e *MemoryEndpoint) InjectError(err error) {
	e.mu.Lock()
	handler := e.onError
	e.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}

func (e *MemoryEndpoint) track(c *MemoryConn) {
	e.mu.Lock()
	e.conns = append(e.conns, c)
	e.mu.Unlock()
}

func (e *MemoryEndpoint) accept(c *MemoryConn) {
	e.mu.Lock()
	handler := e.onConnection
	if handler == nil {
		e.pendingConns = append(e.pendingConns, c)
	}
	e.mu.Unlock()

	if handler != nil {
		handler(c)
	}
}

// MemoryConn is one half of an in-memory connection pair.
type MemoryConn struct {
	mu      sync.Mutex
	peer    string
	open    bool
	remote  *MemoryConn
	pending [][]byte
	onOpen  func()
	onData  func([]byte)
	onClose func()
	onError func(error)
}

// Peer returns the remote peer's identifier.
func (c *MemoryConn) Peer() string { return c.peer }

// IsOpen reports whether the connection is open.
func (c *MemoryConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Send delivers the payload to the remote half, in order.
func (c *MemoryConn) Send(payload []byte) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrConnClosed
	}
	remote := c.remote
	c.mu.Unlock()

	remote.deliver(payload)
	return nil
}

// Close closes both halves of the pair. The remote half's close handler fires
// after the local one.
func (c *MemoryConn) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	remote := c.remote
	handler := c.onClose
	c.mu.Unlock()

	if handler != nil {
		handler()
	}
	if remote != nil {
		remote.closedByPeer()
	}
	return nil
}

// OnOpen registers the open handler; memory connections are open on creation,
// so it fires immediately unless the connection already closed.
func (c *MemoryConn) OnOpen(handler func()) {
	c.mu.Lock()
	c.onOpen = handler
	open := c.open
	c.mu.Unlock()

	if handler != nil && open {
		handler()
	}
}

// OnData registers the data handler and replays payloads received before
// registration, in arrival order.
func (c *MemoryConn) OnData(handler func(payload []byte)) {
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
func (c *MemoryConn) OnClose(handler func()) {
	c.mu.Lock()
	c.onClose = handler
	c.mu.Unlock()
}

// OnError registers the error handler.
func (c *MemoryConn) OnError(handler func(err error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

// InjectError invokes the connection's error handler, simulating a
// transport-level connection failure. Test helper.
func (c *MemoryConn) InjectError(err error) {
	c.mu.Lock()
	handler := c.onError
	c.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}

func (c *MemoryConn) deliver(payload []byte) {
	c.mu.Lock()
	handler := c.onData
	if handler == nil {
		c.pending = append(c.pending, payload)
	}
	c.mu.Unlock()

	if handler != nil {
		handler(payload)
	}
}

func (c *MemoryConn) closedByPeer() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	handler := c.onClose
	c.mu.Unlock()

	if handler != nil {
		handler()
	}
}
