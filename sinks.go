package pagelens

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/config"
	"github.com/hazyhaar/pagelens/internal/sink"
)

// Sink is the output interface for snapshots and decisions.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) (Sink, error) {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink for embedded hosts:
// zero serialisation, snapshots delivered as in-memory values.
func NewCallbackSink(
	onSnapshot func(ctx context.Context, snap *capture.Snapshot) error,
	onDecision func(ctx context.Context, dec capture.DecisionResult) error,
) Sink {
	return sink.NewCallback(onSnapshot, onDecision)
}

// BuildSinks constructs sinks from configuration. The returned db, when
// non-nil, is the SQLite handle backing a store sink; the caller owns
// closing it after the sinks.
func BuildSinks(cfgs []config.SinkConfig, logger *slog.Logger) ([]sink.Sink, *sql.DB, error) {
	var out []sink.Sink
	var db *sql.DB

	for i, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			out = append(out, sink.NewStdout(nil))
		case "webhook":
			w, err := sink.NewWebhook(sc.URL, sink.WithWebhookLogger(logger))
			if err != nil {
				return nil, nil, fmt.Errorf("pagelens: sinks[%d]: %w", i, err)
			}
			out = append(out, w)
		case "sqlite":
			d, err := sink.OpenDB(sc.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("pagelens: sinks[%d]: %w", i, err)
			}
			st := sink.NewStore(d, logger)
			if err := st.Init(); err != nil {
				d.Close()
				return nil, nil, fmt.Errorf("pagelens: sinks[%d]: init schema: %w", i, err)
			}
			out = append(out, st)
			db = d
		default:
			return nil, nil, fmt.Errorf("pagelens: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}
	return out, db, nil
}
