package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "twitchbot/pkg/logx"
)

// Store is the minimal persistence API used by the cooldown tracker and app.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	PutCooldown(ctx context.Context, c Cooldown) error
	// LoadCooldowns returns every window still open at now.
	LoadCooldowns(ctx context.Context, now time.Time) ([]Cooldown, error)
	// PruneCooldowns drops windows that closed before now and reports how many.
	PruneCooldowns(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func cooldownID(key, user string) string { return key + "\x00" + user }
