package bridge

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Envelope is one message on the channel. Origin is the session token both
// endpoints of a bridge share; envelopes carrying any other origin are
// forged and dropped.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Err     string          `json:"error,omitempty"`
}

// Channel carries envelopes between two isolated contexts. The in-process
// Loopback pair serves tests and single-process embedding; production
// channels relay over whatever medium separates the contexts.
type Channel interface {
	Send(Envelope) error
	Receive() <-chan Envelope
	Close() error
}

// Loopback returns two connected in-process channel endpoints: what one
// side sends, the other receives.
func Loopback(buffer int) (Channel, Channel) {
	if buffer <= 0 {
		buffer = 64
	}
	ab := make(chan Envelope, buffer)
	ba := make(chan Envelope, buffer)
	a := &loopEnd{send: ab, recv: ba}
	b := &loopEnd{send: ba, recv: ab}
	a.peer, b.peer = b, a
	return a, b
}

type loopEnd struct {
	mu     sync.Mutex
	send   chan Envelope
	recv   chan Envelope
	peer   *loopEnd
	closed bool
}

func (l *loopEnd) Send(env Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("bridge: channel closed")
	}
	select {
	case l.send <- env:
		return nil
	default:
		return fmt.Errorf("bridge: channel full")
	}
}

func (l *loopEnd) Receive() <-chan Envelope { return l.recv }

func (l *loopEnd) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	// Closing one end also stops the peer's inbound stream.
	l.peer.mu.Lock()
	if !l.peer.closed {
		close(l.send)
	}
	l.peer.mu.Unlock()
	return nil
}
