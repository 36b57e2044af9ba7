package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Cooldown is a persisted rate-limit window. User is empty for the global scope.
type Cooldown struct {
	Key   string    `json:"key"`
	User  string    `json:"user,omitempty"`
	Until time.Time `json:"until"`
}

// AuditEntry records one executed command dispatch.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time
	ReqID   string
	Channel string
	Command string
	User    string
	Outcome string
	Error   string
	TookMS  int64
}
