package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
)

// SignalKind identifies a signaling message.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// SignalMessage is one offer, answer, or ICE candidate exchanged between two
// endpoints during connection setup.
type SignalMessage struct {
	Kind      SignalKind               `json:"kind"`
	From      string                   `json:"from"`
	To        string                   `json:"to"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Signaler carries signaling messages between endpoints, keyed by identifier.
// The mechanism behind it (a websocket broker, copy-paste, anything that moves
// small blobs) is outside this package's concern.
type Signaler interface {
	// Register announces an endpoint under id and installs its receive
	// handler. Registration failure means the endpoint never becomes usable.
	Register(id string, recv func(SignalMessage)) error

	// Send delivers a message to the endpoint registered under msg.To.
	Send(msg SignalMessage) error
}

// MemorySignaler is an in-process Signaler for tests and same-process demos.
type MemorySignaler struct {
	mu       sync.Mutex
	handlers map[string]func(SignalMessage)
}

// NewMemorySignaler creates an empty in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{handlers: make(map[string]func(SignalMessage))}
}

// Register installs the receive handler for id.
func (s *MemorySignaler) Register(id string, recv func(SignalMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[id] = recv
	return nil
}

// Send invokes the registered handler for msg.To.
func (s *MemorySignaler) Send(msg SignalMessage) error {
	s.mu.Lock()
	handler := s.handlers[msg.To]
	s.mu.Unlock()

	if handler == nil {
		return fmt.Errorf("no endpoint registered as %q", msg.To)
	}
	handler(msg)
	return nil
}
