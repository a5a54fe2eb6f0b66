// Package debugapi serves a local HTTP inspection surface over a running
// engine: current snapshot, history, active highlights, forced refresh.
// It is an operator tool, bound to loopback in the daemon.
package debugapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/kit"
)

// Engine is the slice of the orchestrator the API reads and pokes.
type Engine interface {
	Snapshot() *capture.Snapshot
	History() []capture.Snapshot
	Highlights() []string
	LastDecision() *capture.DecisionResult
	Refresh()
	ApplyGuide([]capture.HighlightInstruction)
}

// New builds the router.
func New(eng Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, eng.Snapshot().Clone())
	})

	r.Get("/history", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, eng.History())
	})

	r.Get("/highlights", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{
			"selectors": eng.Highlights(),
			"decision":  eng.LastDecision(),
		})
	})

	r.Post("/refresh", func(w http.ResponseWriter, _ *http.Request) {
		eng.Refresh()
		writeJSON(w, 200, map[string]string{"status": "refreshed"})
	})

	r.Post("/highlights", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Instructions []capture.HighlightInstruction `json:"instructions"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, 400, err)
			return
		}
		eng.ApplyGuide(body.Instructions)
		logger.Info("debugapi: highlight set replaced",
			"count", len(body.Instructions), "request_id", kit.GetRequestID(req.Context()))
		writeJSON(w, 200, map[string]any{"applied": len(body.Instructions)})
	})

	return r
}

// requestID tags each request so log lines correlate.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		next.ServeHTTP(w, r.WithContext(kit.WithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
