// Package peerchat implements authenticated one-to-one text messaging over a
// direct peer-to-peer transport.
//
// Each participant generates an in-memory Ed25519 signing identity at
// startup; its fingerprint doubles as the peer's transport address. Outgoing
// messages are signed, inbound envelopes are verified against the embedded
// public key, and the signer is cross-checked against the connection's
// expected remote identifier. Messages are authenticated, not encrypted.
//
// Example:
//
//	network := transport.NewNetwork()
//
//	ctrl, err := peerchat.New(peerchat.NewOptions(), network.Factory())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctrl.OnEntry(func(e peerchat.Entry) {
//	    fmt.Printf("[%s/%s] %s\n", e.Sender, e.Verdict, e.Text)
//	})
//	ctrl.OnAdvisory(func(msg string) {
//	    fmt.Println("status:", msg)
//	})
//
//	ctrl.Start()
//	ctrl.RequestConnect(remoteFingerprint)
//	ctrl.Send("hello")
package peerchat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerchat/codec"
	"github.com/opd-ai/peerchat/crypto"
	"github.com/opd-ai/peerchat/transport"
	"github.com/opd-ai/peerchat/verify"
)

// Options contains configuration for creating a controller.
type Options struct {
	// Label is the display label attached to the generated identity.
	Label string
}

// NewOptions returns Options with default values.
func NewOptions() *Options {
	return &Options{Label: "peerchat user"}
}

// generateIdentity is swapped by tests to exercise the key-setup failure
// path, which cannot be triggered through the real generator.
var generateIdentity = crypto.GenerateIdentity

// Controller tracks one active peer connection, governs which operations are
// permitted per lifecycle state, and reacts to transport events. Exactly one
// connection is active at a time; acquiring a new one, outgoing or inbound,
// evicts and closes the previous one.
type Controller struct {
	mu            sync.Mutex
	identity      *crypto.Identity
	localID       string
	endpoint      transport.Endpoint
	endpointReady bool
	started       bool
	state         State
	active        transport.Conn
	remoteID      string

	onStateChange     func(State)
	onEntry           func(Entry)
	onAdvisory        func(string)
	pendingEntries    []Entry
	pendingAdvisories []string

	// beginVerify is swapped by tests to inject delayed or out-of-order
	// verification completions.
	beginVerify func(env *codec.Envelope, expectedID string) *verify.Outcome
}

// New creates a controller: it generates the session identity, derives the
// local identifier, and constructs the transport endpoint through factory.
//
// A key setup failure is not fatal to the session. The controller falls back
// to a random identifier, surfaces a persistent advisory, and keeps receiving
// and displaying unauthenticated payloads; only signing is lost. Endpoint
// construction failure is fatal and returned as an error.
func New(options *Options, factory transport.Factory) (*Controller, error) {
	if options == nil {
		options = NewOptions()
	}

	c := &Controller{
		state:       StateIdle,
		beginVerify: verify.Begin,
	}

	id, err := generateIdentity(options.Label)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    err.Error(),
		}).Error("Identity generation failed, session cannot sign")
		c.localID = "anon-" + uuid.NewString()
		c.advise("signing identity unavailable; outgoing messages cannot be signed")
	} else {
		c.identity = id
		c.localID = id.Fingerprint
	}

	endpoint, err := factory(c.localID)
	if err != nil {
		return nil, fmt.Errorf("constructing transport endpoint: %w", err)
	}
	c.endpoint = endpoint

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"local_id": c.localID,
	}).Info("Controller created")

	return c, nil
}

// Start registers the controller with its transport endpoint. Callbacks
// should be registered before Start so no early events are missed.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	endpoint := c.endpoint
	c.mu.Unlock()

	endpoint.OnOpen(func(string) { c.dispatch(event{kind: evEndpointOpen}) })
	endpoint.OnConnection(func(conn transport.Conn) { c.dispatch(event{kind: evIncomingConn, conn: conn}) })
	endpoint.OnError(func(err error) { c.dispatch(event{kind: evEndpointError, err: err}) })
}

// SelfIdentifier returns the local identifier other peers connect to.
func (c *Controller) SelfIdentifier() string {
	return c.localID
}

// Identity returns the local signing identity, or nil when key setup failed.
func (c *Controller) Identity() *crypto.Identity {
	return c.identity
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemotePeer returns the identifier of the currently connected peer, or the
// empty string when no connection is active.
func (c *Controller) RemotePeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteID
}

// RequestConnect initiates a connection to the target identifier. When the
// endpoint is not ready or the target is empty, the request is rejected
// locally with an advisory and no transport call is made. An attempt that
// fails to yield a connection handle surfaces a "failed to start" advisory
// and leaves the controller ready for another attempt.
func (c *Controller) RequestConnect(target string) {
	c.mu.Lock()
	ready := c.endpointReady
	endpoint := c.endpoint
	c.mu.Unlock()

	if !ready {
		c.advise("not ready to connect yet")
		return
	}
	if strings.TrimSpace(target) == "" {
		c.advise("connect target must not be empty")
		return
	}

	conn, err := endpoint.Connect(target)
	if err != nil || conn == nil {
		logrus.WithFields(logrus.Fields{
			"function": "RequestConnect",
			"target":   target,
		}).Warn("Connection attempt produced no handle")
		c.advise("failed to start connection to " + target)
		return
	}

	c.adoptConn(conn)
}

// Disconnect closes the active connection, if any. The resulting close event
// drives the state machine back to EndpointReady.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	conn := c.active
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send signs text, wraps it in a wire envelope, and transmits it to the
// connected peer. Outside the Open state this is a silent no-op. A signing
// failure drops that single message with a transient advisory; the connection
// stays open.
func (c *Controller) Send(text string) {
	c.mu.Lock()
	if c.state != StateOpen || c.active == nil {
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"state":    c.state.String(),
		}).Debug("Send ignored, no open connection")
		return
	}
	conn := c.active
	id := c.identity
	c.mu.Unlock()

	env, err := codec.Encode(text, id)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"error":    err.Error(),
		}).Error("Signing failed, dropping message")
		c.advise("could not sign message; it was not sent")
		return
	}

	raw, err := env.Marshal()
	if err != nil {
		c.advise("could not serialize message; it was not sent")
		return
	}

	if err := conn.Send(raw); err != nil {
		c.advise("send failed: " + err.Error())
		return
	}

	c.emitEntry(newEntry(SenderLocal, text, VerdictNone))
}

// OnStateChange registers the state transition callback.
func (c *Controller) OnStateChange(handler func(State)) {
	c.mu.Lock()
	c.onStateChange = handler
	c.mu.Unlock()
}

// OnEntry registers the chat entry callback. Entries produced before
// registration are replayed in order.
func (c *Controller) OnEntry(handler func(Entry)) {
	c.mu.Lock()
	c.onEntry = handler
	pending := c.pendingEntries
	c.pendingEntries = nil
	c.mu.Unlock()

	if handler != nil {
		for _, e := range pending {
			handler(e)
		}
	}
}

// OnAdvisory registers the status advisory callback. Advisories produced
// before registration, including a key setup failure from New, are replayed
// in order.
func (c *Controller) OnAdvisory(handler func(string)) {
	c.mu.Lock()
	c.onAdvisory = handler
	pending := c.pendingAdvisories
	c.pendingAdvisories = nil
	c.mu.Unlock()

	if handler != nil {
		for _, msg := range pending {
			handler(msg)
		}
	}
}

func (c *Controller) notifyStates(states []State) {
	if len(states) == 0 {
		return
	}
	c.mu.Lock()
	handler := c.onStateChange
	c.mu.Unlock()

	if handler != nil {
		for _, s := range states {
			handler(s)
		}
	}
}

func (c *Controller) emitEntry(e Entry) {
	c.mu.Lock()
	handler := c.onEntry
	if handler == nil {
		c.pendingEntries = append(c.pendingEntries, e)
	}
	c.mu.Unlock()

	if handler != nil {
		handler(e)
	}
}

func (c *Controller) advise(msg string) {
	logrus.WithFields(logrus.Fields{
		"function": "advise",
		"local_id": c.localID,
	}).Info(msg)

	c.mu.Lock()
	handler := c.onAdvisory
	if handler == nil {
		c.pendingAdvisories = append(c.pendingAdvisories, msg)
	}
	c.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
}
