package peerchat

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerchat/codec"
	"github.com/opd-ai/peerchat/transport"
)

// State is the lifecycle state of the single tracked peer connection.
type State uint8

const (
	// StateIdle means no local endpoint is ready yet.
	StateIdle State = iota
	// StateEndpointReady means the local identity is registered with the
	// transport; the controller can initiate or accept a connection.
	StateEndpointReady
	// StateConnecting means a connection is being established.
	StateConnecting
	// StateOpen means sending and receiving are permitted.
	StateOpen
	// StateClosed is terminal for one connection instance; the controller
	// immediately returns to StateEndpointReady.
	StateClosed
	// StateErrored is the same reset path as StateClosed, reached through a
	// transport error with a surfaced reason.
	StateErrored
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEndpointReady:
		return "endpoint-ready"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// eventKind enumerates the closed set of transition messages the transport
// feeds into the state machine. Keeping the set typed and small lets the
// machine be tested without a real transport.
type eventKind uint8

const (
	evEndpointOpen eventKind = iota
	evEndpointError
	evIncomingConn
	evConnOpen
	evConnData
	evConnClose
	evConnError
)

type event struct {
	kind    eventKind
	conn    transport.Conn
	payload []byte
	err     error
}

// dispatch routes one transition event into the state machine. Transport
// callbacks all funnel through here.
func (c *Controller) dispatch(ev event) {
	switch ev.kind {
	case evEndpointOpen:
		c.handleEndpointOpen()
	case evEndpointError:
		c.handleEndpointError(ev.err)
	case evIncomingConn:
		c.adoptConn(ev.conn)
	case evConnOpen:
		c.handleConnOpen(ev.conn)
	case evConnData:
		c.handleConnData(ev.conn, ev.payload)
	case evConnClose:
		c.handleConnClose(ev.conn)
	case evConnError:
		c.handleConnError(ev.conn, ev.err)
	}
}

func (c *Controller) handleEndpointOpen() {
	c.mu.Lock()
	c.endpointReady = true
	var changed []State
	if c.state == StateIdle {
		c.state = StateEndpointReady
		changed = append(changed, StateEndpointReady)
	}
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleEndpointOpen",
		"local_id": c.localID,
	}).Info("Endpoint ready")

	c.notifyStates(changed)
}

func (c *Controller) handleEndpointError(err error) {
	c.mu.Lock()
	old := c.active
	c.active = nil
	c.remoteID = ""
	c.state = StateErrored
	resting := StateIdle
	if c.endpointReady {
		resting = StateEndpointReady
	}
	c.mu.Unlock()

	c.advise("transport error: " + err.Error())
	if old != nil {
		old.Close()
	}
	c.notifyStates([]State{StateErrored})
	c.restoreState(resting)
}

// adoptConn installs a new active connection, evicting and closing any prior
// one first. The single-active-connection invariant lives here: the slot is
// an explicit evict-and-replace register, shared by outgoing requests and
// inbound offers.
func (c *Controller) adoptConn(conn transport.Conn) {
	c.mu.Lock()
	old := c.active
	c.active = conn
	c.remoteID = conn.Peer()
	c.state = StateConnecting
	c.mu.Unlock()

	if old != nil {
		logrus.WithFields(logrus.Fields{
			"function": "adoptConn",
			"old_peer": old.Peer(),
			"new_peer": conn.Peer(),
		}).Info("Evicting prior connection")
		old.Close()
	}

	c.notifyStates([]State{StateConnecting})
	c.wireConn(conn)
}

func (c *Controller) wireConn(conn transport.Conn) {
	conn.OnOpen(func() { c.dispatch(event{kind: evConnOpen, conn: conn}) })
	conn.OnData(func(p []byte) { c.dispatch(event{kind: evConnData, conn: conn, payload: p}) })
	conn.OnClose(func() { c.dispatch(event{kind: evConnClose, conn: conn}) })
	conn.OnError(func(err error) { c.dispatch(event{kind: evConnError, conn: conn, err: err}) })
}

func (c *Controller) handleConnOpen(conn transport.Conn) {
	c.mu.Lock()
	if conn != c.active {
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	c.remoteID = conn.Peer()
	c.mu.Unlock()

	c.notifyStates([]State{StateOpen})
	c.advise("connected to " + conn.Peer())
}

func (c *Controller) handleConnData(conn transport.Conn, payload []byte) {
	c.mu.Lock()
	if conn != c.active {
		c.mu.Unlock()
		return
	}
	expected := c.remoteID
	beginVerify := c.beginVerify
	c.mu.Unlock()

	d := codec.Decode(payload)
	switch d.Kind {
	case codec.KindLegacy:
		c.emitEntry(newEntry(SenderRemote, d.Text, VerdictUnverified))
	case codec.KindMalformed:
		logrus.WithFields(logrus.Fields{
			"function": "handleConnData",
			"peer":     expected,
			"size":     len(payload),
		}).Warn("Received malformed payload, displaying as opaque text")
		c.emitEntry(newEntry(SenderRemote, d.Text, VerdictUnverified))
	case codec.KindEnvelope:
		outcome := beginVerify(d.Envelope, expected)
		env := d.Envelope
		go func() {
			res := outcome.Wait()
			verdict := VerdictUnverified
			if res.Trusted {
				verdict = VerdictVerified
			}
			c.emitEntry(newEntry(SenderRemote, env.Text, verdict))
			if res.IdentityMismatch {
				c.advise("fingerprint mismatch: signer does not match peer " + expected)
			}
		}()
	}
}

func (c *Controller) handleConnClose(conn transport.Conn) {
	c.mu.Lock()
	if conn != c.active {
		c.mu.Unlock()
		return
	}
	peer := c.remoteID
	c.active = nil
	c.remoteID = ""
	c.state = StateClosed
	resting := StateIdle
	if c.endpointReady {
		resting = StateEndpointReady
	}
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleConnClose",
		"peer":     peer,
	}).Info("Connection closed")

	c.notifyStates([]State{StateClosed})
	c.advise("connection closed")
	c.restoreState(resting)
}

func (c *Controller) handleConnError(conn transport.Conn, err error) {
	c.mu.Lock()
	if conn != c.active {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.remoteID = ""
	c.state = StateErrored
	resting := StateIdle
	if c.endpointReady {
		resting = StateEndpointReady
	}
	c.mu.Unlock()

	c.advise("connection error: " + err.Error())
	conn.Close()
	c.notifyStates([]State{StateErrored})
	c.restoreState(resting)
}

// restoreState moves the machine back to its resting state after a Closed or
// Errored transition, unless a newer connection already took the slot.
func (c *Controller) restoreState(resting State) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return
	}
	c.state = resting
	c.mu.Unlock()

	c.notifyStates([]State{resting})
}
