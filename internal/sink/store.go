package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagelens/capture"
)

// Schema for the observation tables. Store.Init applies it; apply
// manually when migrations are managed elsewhere.
const Schema = `
CREATE TABLE IF NOT EXISTS page_snapshots (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL,
	viewport     TEXT NOT NULL,
	elements     TEXT NOT NULL,
	interactions TEXT NOT NULL,
	timestamp    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_page_snapshots_ts ON page_snapshots(timestamp);
CREATE INDEX IF NOT EXISTS idx_page_snapshots_url ON page_snapshots(url);

CREATE TABLE IF NOT EXISTS highlight_decisions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source       TEXT NOT NULL,
	reason       TEXT,
	instructions TEXT NOT NULL,
	timestamp    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_highlight_decisions_ts ON highlight_decisions(timestamp);
`

// OpenDB opens an SQLite database with the production pragmas applied
// via EXEC: WAL journaling, busy_timeout 10s, synchronous NORMAL,
// foreign_keys on. Parent directories are created as needed.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sink: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sink: %s: %w", p, err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: ping: %w", err)
	}
	return db, nil
}

type storeItem struct {
	snap *capture.Snapshot
	dec  *capture.DecisionResult
}

// Store persists snapshots and decisions to SQLite asynchronously.
// Writes are queued and flushed in batches; a full queue drops rather
// than backpressure the observation loop.
type Store struct {
	db   *sql.DB
	ch   chan storeItem
	done chan struct{}
	once sync.Once

	logger *slog.Logger
}

// NewStore creates a store over an open database and starts its flush
// goroutine.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		ch:     make(chan storeItem, 1024),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.flushLoop()
	return s
}

// Init creates the observation tables if they don't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

func (s *Store) SendSnapshot(_ context.Context, snap *capture.Snapshot) error {
	c := snap.Clone()
	select {
	case s.ch <- storeItem{snap: &c}:
	default:
		// queue full, drop rather than stall the observer
	}
	return nil
}

func (s *Store) SendDecision(_ context.Context, dec capture.DecisionResult) error {
	select {
	case s.ch <- storeItem{dec: &dec}:
	default:
	}
	return nil
}

// Close drains the queue and stops the flush goroutine. The database
// itself is the caller's to close.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]storeItem, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case it, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, it)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []storeItem) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("sink: store begin tx", "error", err)
		return
	}

	for _, it := range batch {
		switch {
		case it.snap != nil:
			err = insertSnapshot(tx, it.snap)
		case it.dec != nil:
			err = insertDecision(tx, it.dec)
		}
		if err != nil {
			tx.Rollback()
			s.logger.Error("sink: store insert", "error", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sink: store commit", "error", err)
	}
}

func insertSnapshot(tx *sql.Tx, snap *capture.Snapshot) error {
	vp, err := json.Marshal(snap.Viewport)
	if err != nil {
		return err
	}
	els, err := json.Marshal(snap.Elements)
	if err != nil {
		return err
	}
	ints, err := json.Marshal(snap.Interactions)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO page_snapshots (url, viewport, elements, interactions, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		snap.URL, string(vp), string(els), string(ints), snap.Timestamp)
	return err
}

func insertDecision(tx *sql.Tx, dec *capture.DecisionResult) error {
	instrs, err := json.Marshal(dec.Instructions)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO highlight_decisions (source, reason, instructions, timestamp)
		VALUES (?, ?, ?, ?)`,
		string(dec.Source), dec.Reason, string(instrs), dec.Timestamp)
	return err
}
