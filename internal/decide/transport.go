package decide

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/bridge"
)

// RequestType is the bridge message kind for decision round-trips.
const RequestType = "decide"

// Provider is the external decision-maker boundary. Implementations may
// error, hang, or return nothing; the core always has a local fallback.
type Provider interface {
	Decide(ctx context.Context, req Request) ([]capture.HighlightInstruction, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) ([]capture.HighlightInstruction, error)

func (f ProviderFunc) Decide(ctx context.Context, req Request) ([]capture.HighlightInstruction, error) {
	return f(ctx, req)
}

// Direct builds a Transport that calls the provider in-process.
func Direct(p Provider, build RequestBuilder) Transport {
	if build == nil {
		build = func(snap *capture.Snapshot) Request {
			return BuildRequest(snap, "", "")
		}
	}
	return func(ctx context.Context, snap *capture.Snapshot) (capture.DecisionResult, error) {
		instrs, err := p.Decide(ctx, build(snap))
		if err != nil {
			return capture.DecisionResult{}, fmt.Errorf("decide: provider: %w", err)
		}
		return newResult(instrs, capture.SourceProvider, ""), nil
	}
}

// Bridged builds a Transport that relays the request across the message
// bridge to whichever context holds the network-capable provider. Bridge
// degradation (timeout, remote failure) comes back as a well-formed empty
// result with a reason, not an error.
func Bridged(b *bridge.Bridge, build RequestBuilder) Transport {
	if build == nil {
		build = func(snap *capture.Snapshot) Request {
			return BuildRequest(snap, "", "")
		}
	}
	return func(ctx context.Context, snap *capture.Snapshot) (capture.DecisionResult, error) {
		payload, err := json.Marshal(build(snap))
		if err != nil {
			return capture.DecisionResult{}, fmt.Errorf("decide: marshal request: %w", err)
		}

		res := b.Call(ctx, RequestType, payload)
		if res.Degraded {
			return newResult(nil, capture.SourceTimeout, res.Reason), nil
		}

		var resp Response
		if err := json.Unmarshal(res.Payload, &resp); err != nil {
			return newResult(nil, capture.SourceTimeout,
				fmt.Sprintf("malformed provider response: %v", err)), nil
		}
		return newResult(resp.Instructions, capture.SourceProvider, ""), nil
	}
}

// HandleProvider registers p as the bridge-side handler for decision
// requests, the privileged-context half of the Bridged transport.
func HandleProvider(b *bridge.Bridge, p Provider, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	b.Handle(RequestType, func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decide: unmarshal request: %w", err)
		}
		instrs, err := p.Decide(ctx, req)
		if err != nil {
			logger.Warn("decide: provider failed", "url", req.URL, "error", err)
			return nil, err
		}
		return json.Marshal(Response{Instructions: instrs})
	})
}

func newResult(instrs []capture.HighlightInstruction, src capture.DecisionSource, reason string) capture.DecisionResult {
	for i := range instrs {
		instrs[i].Normalize()
	}
	return capture.DecisionResult{
		Instructions: instrs,
		Source:       src,
		Reason:       reason,
		Timestamp:    capture.Now(),
	}
}
