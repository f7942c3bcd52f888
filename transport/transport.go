// Package transport defines the peer connection contract consumed by the
// lifecycle controller, and provides an in-memory implementation of it used
// by tests and the demo binary.
//
// The contract mirrors a WebRTC-style data-channel library: an endpoint is
// addressed by an identifier string, emits open/connection/error events, and
// hands out connection handles with open/data/close/error events of their
// own. Signaling, NAT traversal, and delivery guarantees are the concern of
// the implementation behind the interface, never of the caller.
package transport

import "errors"

var (
	// ErrEndpointClosed is returned by operations on a closed endpoint.
	ErrEndpointClosed = errors.New("endpoint is closed")
	// ErrPeerUnavailable is returned when a connection attempt cannot even
	// start because the target is unknown to the transport.
	ErrPeerUnavailable = errors.New("peer unavailable")
	// ErrConnClosed is returned when sending on a connection that is not open.
	ErrConnClosed = errors.New("connection is not open")
)

// Conn is a single peer connection handle.
//
// Handler registration is latched: registering OnOpen on an already-open
// connection invokes the handler immediately, and data received before an
// OnData handler was registered is replayed to it in order. Implementations
// invoke handlers sequentially.
type Conn interface {
	// Peer returns the remote peer's identifier.
	Peer() string

	// IsOpen reports whether the connection is currently open.
	IsOpen() bool

	// Send transmits a payload to the remote peer.
	Send(payload []byte) error

	// Close tears the connection down. Closing an already-closed connection
	// is a no-op.
	Close() error

	OnOpen(handler func())
	OnData(handler func(payload []byte))
	OnClose(handler func())
	OnError(handler func(err error))
}

// Endpoint is the local end of the transport, registered under a chosen
// identifier.
type Endpoint interface {
	// ID returns the identifier this endpoint is registered under.
	ID() string

	// Connect initiates a connection to the peer registered under target.
	// An error means the attempt never yielded a connection handle; there is
	// nothing to wait for and no events will follow.
	Connect(target string) (Conn, error)

	// Close shuts the endpoint down along with any connections it produced.
	Close() error

	// OnOpen registers a handler invoked once the endpoint is usable,
	// carrying the endpoint's identifier. Latched like Conn handlers.
	OnOpen(handler func(id string))

	// OnConnection registers a handler for inbound peer connections.
	OnConnection(handler func(conn Conn))

	// OnError registers a handler for endpoint-level failures.
	OnError(handler func(err error))
}

// Factory constructs an endpoint registered under the given identifier.
// The controller derives the identifier from the local identity and then
// builds its endpoint through one of these.
type Factory func(id string) (Endpoint, error)
