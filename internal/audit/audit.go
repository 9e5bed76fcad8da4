// Package audit keeps an append-only journal of reconciliation activity:
// snapshots, applied stream events, and the outcome of every bulk
// operation sent to the server.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal entry kinds.
const (
	KindSnapshot      = "snapshot"
	KindEventCreate   = "event.create"
	KindEventUpdate   = "event.update"
	KindEventDelete   = "event.delete"
	KindEventDropped  = "event.dropped"
	KindDeleteAll     = "delete.confirmed"
	KindDeletePartial = "delete.partial"
	KindDeleteFailed  = "delete.failed"
	KindEdit          = "edit"
	KindResync        = "resync"
)

type entry struct {
	Timestamp string  `json:"timestamp"`
	Kind      string  `json:"kind"`
	Detail    string  `json:"detail,omitempty"`
	IDs       []int64 `json:"ids,omitempty"`
}

var (
	mu           sync.Mutex
	file         *os.File
	db           *sql.DB
	failureCount atomic.Int64
)

// Init opens the journal file under homeDir/logs. Safe to call more
// than once.
func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// OpenDB opens (creating if needed) the sqlite journal database at
// homeDir/audit.db and ensures the audit_log table exists.
func OpenDB(homeDir string) (*sql.DB, error) {
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, err
	}
	d, err := sql.Open("sqlite3", filepath.Join(homeDir, "audit.db"))
	if err != nil {
		return nil, err
	}
	_, err = d.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			kind      TEXT NOT NULL,
			detail    TEXT,
			ids       TEXT
		);
	`)
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// SetDB configures an optional database sink alongside the JSONL file.
func SetDB(d *sql.DB) {
	mu.Lock()
	defer mu.Unlock()
	db = d
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// FailureCount returns the number of failed server operations recorded
// since startup.
func FailureCount() int64 {
	return failureCount.Load()
}

// Record appends one journal entry. ids may be nil.
func Record(kind, detail string, ids []int64) {
	if kind == KindDeleteFailed {
		failureCount.Add(1)
	}

	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		ev := entry{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Kind:      kind,
			Detail:    detail,
			IDs:       ids,
		}
		b, err := json.Marshal(ev)
		if err == nil {
			_, _ = file.Write(append(b, '\n'))
		}
	}

	if db != nil {
		idsJSON, _ := json.Marshal(ids)
		_, _ = db.ExecContext(context.Background(), `
			INSERT INTO audit_log (timestamp, kind, detail, ids)
			VALUES (?, ?, ?, ?);
		`, time.Now().UTC().Format(time.RFC3339Nano), kind, detail, string(idsJSON))
	}
}
