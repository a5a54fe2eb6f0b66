// Package sink defines output backends for page snapshots and highlight
// decisions.
package sink

import (
	"context"

	"github.com/hazyhaar/pagelens/capture"
)

// Sink is the output interface. Implementations deliver observation
// results to different backends (stdout, webhook, sqlite, in-process
// callback).
type Sink interface {
	SendSnapshot(ctx context.Context, snap *capture.Snapshot) error
	SendDecision(ctx context.Context, dec capture.DecisionResult) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
