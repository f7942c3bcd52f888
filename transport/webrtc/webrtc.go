// Package webrtc adapts pion data channels to the peerchat transport
// contract. Each peer connection carries a single data channel labeled
// "chat"; session setup goes through a pluggable Signaler.
package webrtc

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerchat/transport"
)

const dataChannelLabel = "chat"

// Config carries endpoint construction options.
type Config struct {
	// ICEServers lists STUN/TURN URLs. Empty means host candidates only,
	// which is enough for same-machine and LAN peers.
	ICEServers []string
}

func (c Config) webrtcConfiguration() webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(c.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: c.ICEServers}}
	}
	return cfg
}

// Factory returns a transport.Factory that builds endpoints on the given
// signaler.
func Factory(signaler Signaler, cfg Config) transport.Factory {
	return func(id string) (transport.Endpoint, error) {
		return NewEndpoint(id, signaler, cfg)
	}
}

// Endpoint is a WebRTC-backed transport endpoint.
type Endpoint struct {
	id       string
	signaler Signaler
	cfg      webrtc.Configuration

	mu           sync.Mutex
	closed       bool
	conns        map[string]*Conn
	pendingConns []*Conn
	onOpen       func(string)
	onConnection func(transport.Conn)
	onError      func(error)
}

// NewEndpoint registers id with the signaler and returns the endpoint. The
// endpoint is usable as soon as registration succeeds.
func NewEndpoint(id string, signaler Signaler, cfg Config) (*Endpoint, error) {
	e := &Endpoint{
		id:       id,
		signaler: signaler,
		cfg:      cfg.webrtcConfiguration(),
		conns:    make(map[string]*Conn),
	}
	if err := signaler.Register(id, e.handleSignal); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewEndpoint",
		"id":       id,
	}).Info("WebRTC endpoint registered")

	return e, nil
}

// ID returns the identifier the endpoint registered under.
func (e *Endpoint) ID() string { return e.id }

// Connect creates a peer connection to target, opens the chat data channel,
// and sends the offer through the signaler. The returned connection opens
// asynchronously once ICE completes.
func (e *Endpoint) Connect(target string) (transport.Conn, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, transport.ErrEndpointClosed
	}
	e.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, err
	}

	conn := newConn(target, pc)
	conn.cleanup = func() { e.forget(target, conn) }
	e.watchPeerConnection(conn, pc, target)

	// Register before the offer goes out; a synchronous signaler can route
	// the answer back during Send.
	e.mu.Lock()
	e.conns[target] = conn
	e.mu.Unlock()

	fail := func(err error) (transport.Conn, error) {
		e.forget(target, conn)
		pc.Close()
		return nil, err
	}

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return fail(err)
	}
	conn.bind(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail(err)
	}
	if err := e.signaler.Send(SignalMessage{
		Kind: SignalOffer,
		From: e.id,
		To:   target,
		SDP:  offer.SDP,
	}); err != nil {
		return fail(err)
	}

	return conn, nil
}

// Close shuts the endpoint down along with all its connections.
func (e *Endpoint) Close() error {
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

// OnOpen registers the endpoint-ready handler; the endpoint is ready as soon
// as signaler registration succeeded, so the handler fires immediately.
func (e *Endpoint) OnOpen(handler func(id string)) {
	e.mu.Lock()
	e.onOpen = handler
	closed := e.closed
	e.mu.Unlock()

	if handler != nil && !closed {
		handler(e.id)
	}
}

// OnConnection registers the inbound connection handler, replaying any
// connections offered before registration.
func (e *Endpoint) OnConnection(handler func(conn transport.Conn)) {
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
func (e *Endpoint) OnError(handler func(err error)) {
	e.mu.Lock()
	e.onError = handler
	e.mu.Unlock()
}

func (e *Endpoint) handleSignal(msg SignalMessage) {
	switch msg.Kind {
	case SignalOffer:
		e.handleOffer(msg)
	case SignalAnswer:
		e.handleAnswer(msg)
	case SignalCandidate:
		e.handleCandidate(msg)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleSignal",
			"kind":     string(msg.Kind),
			"from":     msg.From,
		}).Warn("Dropping signal of unknown kind")
	}
}

func (e *Endpoint) handleOffer(msg SignalMessage) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		e.fail(err)
		return
	}

	conn := newConn(msg.From, pc)
	conn.cleanup = func() { e.forget(msg.From, conn) }
	e.watchPeerConnection(conn, pc, msg.From)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		conn.bind(dc)
	})

	// Same ordering concern as Connect: the remote side may start sending
	// candidates as soon as the answer lands.
	e.mu.Lock()
	e.conns[msg.From] = conn
	e.mu.Unlock()

	bail := func(err error) {
		e.forget(msg.From, conn)
		pc.Close()
		e.fail(err)
	}

	if err := conn.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}); err != nil {
		bail(err)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		bail(err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		bail(err)
		return
	}
	if err := e.signaler.Send(SignalMessage{
		Kind: SignalAnswer,
		From: e.id,
		To:   msg.From,
		SDP:  answer.SDP,
	}); err != nil {
		bail(err)
		return
	}

	e.mu.Lock()
	handler := e.onConnection
	if handler == nil {
		e.pendingConns = append(e.pendingConns, conn)
	}
	e.mu.Unlock()

	if handler != nil {
		handler(conn)
	}
}

func (e *Endpoint) handleAnswer(msg SignalMessage) {
	conn := e.lookup(msg.From)
	if conn == nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleAnswer",
			"from":     msg.From,
		}).Warn("Answer for unknown connection")
		return
	}
	if err := conn.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
		conn.fail(err)
	}
}

func (e *Endpoint) handleCandidate(msg SignalMessage) {
	conn := e.lookup(msg.From)
	if conn == nil || msg.Candidate == nil {
		return
	}
	conn.addCandidate(*msg.Candidate)
}

// forget drops the conn from the peer map once it closes. A newer handle for
// the same peer is left alone.
func (e *Endpoint) forget(peer string, conn *Conn) {
	e.mu.Lock()
	if e.conns != nil && e.conns[peer] == conn {
		delete(e.conns, peer)
	}
	e.mu.Unlock()
}

func (e *Endpoint) lookup(peer string) *Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[peer]
}

// watchPeerConnection forwards local ICE candidates to the remote side and
// maps connection-state failures onto the conn's error handler.
func (e *Endpoint) watchPeerConnection(conn *Conn, pc *webrtc.PeerConnection, peer string) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if err := e.signaler.Send(SignalMessage{
			Kind:      SignalCandidate,
			From:      e.id,
			To:        peer,
			Candidate: &init,
		}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "watchPeerConnection",
				"peer":     peer,
				"error":    err.Error(),
			}).Warn("Failed to forward ICE candidate")
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed:
			conn.fail(transport.ErrConnClosed)
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			conn.closedByPeer()
		}
	})
}

func (e *Endpoint) fail(err error) {
	logrus.WithFields(logrus.Fields{
		"function": "fail",
		"id":       e.id,
		"error":    err.Error(),
	}).Error("Endpoint-level failure")

	e.mu.Lock()
	handler := e.onError
	e.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}
