// Package bridge provides symmetric request/response RPC between two
// isolated execution contexts over an untrusted channel: per-request
// correlation ids, a pending-resolver table, hard timeouts resolving to
// well-formed fallbacks, and an origin check against forged envelopes.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/pagelens/internal/clock"
)

// DefaultTimeout is the hard per-request deadline.
const DefaultTimeout = 30 * time.Second

// responseSuffix marks reply envelope types: a request of type T is always
// answered by exactly one envelope of type T+responseSuffix with the same
// id.
const responseSuffix = ":response"

// Handler processes one request kind. A handler error still produces a
// reply, degraded but well-formed, so the caller's pending table always
// clears.
type Handler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Result is the outcome of a Call. Degraded results carry an empty payload
// and a diagnostic reason instead of an error: timeouts and remote
// failures are expected states, not exceptions.
type Result struct {
	Payload  json.RawMessage
	Degraded bool
	Reason   string
}

// Config for creating a Bridge.
type Config struct {
	Channel Channel
	// Origin is the shared session token. Envelopes with any other origin
	// are rejected, the same-window check of the underlying transport.
	Origin  string
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Bridge is one endpoint of the RPC pair. Both ends are symmetric: each
// can Call and each can Handle.
type Bridge struct {
	cfg Config

	mu       sync.Mutex
	pending  map[string]chan Result
	handlers map[string]Handler

	done chan struct{}
	once sync.Once
}

// New creates a Bridge endpoint. Call Start to begin receiving.
func New(cfg Config) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		cfg:      cfg,
		pending:  make(map[string]chan Result),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// Handle registers the handler for one request kind. Exactly one handler
// per kind; a repeat registration replaces the previous one.
func (b *Bridge) Handle(reqType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[reqType] = h
}

// Start runs the receive loop until Close or channel shutdown.
func (b *Bridge) Start() { go b.receive() }

// Close stops the bridge and resolves nothing further; in-flight Calls
// run into their timeouts.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// Call sends a request and blocks until the correlated response, the
// timeout, or ctx cancellation. It never returns an error: degraded
// outcomes are Results with a reason.
func (b *Bridge) Call(ctx context.Context, reqType string, payload json.RawMessage) Result {
	id := b.correlationID()
	ch := make(chan Result, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	if err := b.cfg.Channel.Send(Envelope{
		Type:    reqType,
		ID:      id,
		Origin:  b.cfg.Origin,
		Payload: payload,
	}); err != nil {
		b.take(id)
		return Result{Degraded: true, Reason: fmt.Sprintf("send failed: %v", err)}
	}

	// The timeout resolver races the response; take() guarantees exactly
	// one of them wins, so the pending entry can never leak.
	timer := b.cfg.Clock.AfterFunc(b.cfg.Timeout, func() {
		if waiter := b.take(id); waiter != nil {
			waiter <- Result{Degraded: true,
				Reason: fmt.Sprintf("timeout after %s waiting for %s", b.cfg.Timeout, reqType)}
		}
	})
	defer timer.Stop()

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		b.take(id)
		return Result{Degraded: true, Reason: fmt.Sprintf("cancelled: %v", ctx.Err())}
	case <-b.done:
		b.take(id)
		return Result{Degraded: true, Reason: "bridge closed"}
	}
}

// Pending reports the number of unresolved requests.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// take removes and returns the pending resolver for id, nil when already
// resolved. Removal-before-delivery is what makes duplicate responses
// no-ops.
func (b *Bridge) take(id string) chan Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := b.pending[id]
	delete(b.pending, id)
	return ch
}

func (b *Bridge) receive() {
	for {
		select {
		case <-b.done:
			return
		case env, ok := <-b.cfg.Channel.Receive():
			if !ok {
				return
			}
			b.dispatch(env)
		}
	}
}

func (b *Bridge) dispatch(env Envelope) {
	if env.Origin != b.cfg.Origin {
		b.cfg.Logger.Warn("bridge: rejected envelope with foreign origin",
			"type", env.Type, "origin", env.Origin)
		return
	}

	if strings.HasSuffix(env.Type, responseSuffix) {
		waiter := b.take(env.ID)
		if waiter == nil {
			// Already resolved (timeout raced it) or a duplicate.
			b.cfg.Logger.Debug("bridge: dropped unmatched response", "id", env.ID)
			return
		}
		res := Result{Payload: env.Payload}
		if env.Err != "" {
			res.Degraded = true
			res.Reason = env.Err
		}
		waiter <- res
		return
	}

	b.mu.Lock()
	h := b.handlers[env.Type]
	b.mu.Unlock()

	go b.respond(env, h)
}

// respond runs the handler and always sends a reply, degraded on failure,
// so the caller's pending entry is cleared no matter what.
func (b *Bridge) respond(env Envelope, h Handler) {
	reply := Envelope{
		Type:   env.Type + responseSuffix,
		ID:     env.ID,
		Origin: b.cfg.Origin,
	}

	switch {
	case h == nil:
		reply.Err = fmt.Sprintf("no handler for %s", env.Type)
	default:
		payload, err := h(context.Background(), env.Payload)
		if err != nil {
			b.cfg.Logger.Warn("bridge: handler failed", "type", env.Type, "error", err)
			reply.Err = err.Error()
		} else {
			reply.Payload = payload
		}
	}

	if err := b.cfg.Channel.Send(reply); err != nil {
		b.cfg.Logger.Warn("bridge: send reply failed", "type", reply.Type, "error", err)
	}
}

// correlationID builds a time+random composite unique token.
func (b *Bridge) correlationID() string {
	return fmt.Sprintf("%d-%s", b.cfg.Clock.Now().UnixMilli(), uuid.NewString()[:8])
}
