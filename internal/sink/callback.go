package sink

import (
	"context"

	"github.com/hazyhaar/pagelens/capture"
)

// SnapshotFunc is called for each snapshot (in-process, zero
// serialisation).
type SnapshotFunc func(ctx context.Context, snap *capture.Snapshot) error

// DecisionFunc is called for each decision result.
type DecisionFunc func(ctx context.Context, dec capture.DecisionResult) error

// Callback delivers results via Go function calls, the path for hosts
// that embed the engine in the same binary and want snapshots as
// in-memory values, no encoding in between.
type Callback struct {
	onSnapshot SnapshotFunc
	onDecision DecisionFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onSnapshot SnapshotFunc, onDecision DecisionFunc) *Callback {
	return &Callback{onSnapshot: onSnapshot, onDecision: onDecision}
}

func (c *Callback) SendSnapshot(ctx context.Context, snap *capture.Snapshot) error {
	if c.onSnapshot != nil {
		return c.onSnapshot(ctx, snap)
	}
	return nil
}

func (c *Callback) SendDecision(ctx context.Context, dec capture.DecisionResult) error {
	if c.onDecision != nil {
		return c.onDecision(ctx, dec)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
