package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "twitchbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl            (append-only JSON Lines)
//   - <prefix>.cooldown.snapshot.json (periodic snapshot)
//   - <prefix>.cooldown.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	cooldowns    map[string]cooldownRecord

	writes       int
	compactEvery int
}

type cooldownRecord struct {
	Key   string `json:"key"`
	User  string `json:"user,omitempty"`
	Until int64  `json:"until"` // unix milli
}

func (r cooldownRecord) toCooldown() Cooldown {
	return Cooldown{Key: r.Key, User: r.User, Until: time.UnixMilli(r.Until)}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".cooldown.snapshot.json"
	journalPath := prefix + ".cooldown.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	cooldowns := map[string]cooldownRecord{}
	if err := loadSnapshot(snapPath, cooldowns); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("cooldown snapshot unreadable", logx.Err(err))
	}
	if err := replayJournal(journalPath, cooldowns); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("cooldown journal unreadable", logx.Err(err))
	}
	pruneExpired(cooldowns, time.Now())

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		journalFile:  jf,
		cooldowns:    cooldowns,
		compactEvery: 1000,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.journalFile != nil {
		if err := s.compactLocked(time.Now()); err != nil {
			s.log.Debug("cooldown compact on close failed", logx.Err(err))
		}
	}
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.journalFile != nil {
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) PutCooldown(ctx context.Context, c Cooldown) error {
	_ = ctx
	key := strings.TrimSpace(c.Key)
	if key == "" {
		return nil
	}
	rec := cooldownRecord{Key: key, User: c.User, Until: c.Until.UnixMilli()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("cooldown journal closed")
	}
	s.cooldowns[cooldownID(rec.Key, rec.User)] = rec

	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(time.Now()); err != nil {
			s.log.Debug("cooldown compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) LoadCooldowns(ctx context.Context, now time.Time) ([]Cooldown, error) {
	_ = ctx
	nowMS := now.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cooldown, 0, len(s.cooldowns))
	for _, r := range s.cooldowns {
		if r.Until > nowMS {
			out = append(out, r.toCooldown())
		}
	}
	return out, nil
}

func (s *fileStore) PruneCooldowns(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	n := pruneExpired(s.cooldowns, now)
	if n == 0 || s.journalFile == nil {
		return n, nil
	}
	return n, s.compactLocked(now)
}

func (s *fileStore) compactLocked(now time.Time) error {
	pruneExpired(s.cooldowns, now)

	recs := make([]cooldownRecord, 0, len(s.cooldowns))
	for _, r := range s.cooldowns {
		recs = append(recs, r)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]cooldownRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var recs []cooldownRecord
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		return err
	}
	for _, r := range recs {
		if r.Key != "" {
			out[cooldownID(r.Key, r.User)] = r
		}
	}
	return nil
}

func replayJournal(path string, out map[string]cooldownRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r cooldownRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[cooldownID(r.Key, r.User)] = r
	}
	return sc.Err()
}

func pruneExpired(m map[string]cooldownRecord, now time.Time) int {
	cut := now.UnixMilli()
	n := 0
	for k, r := range m {
		if r.Until <= cut {
			delete(m, k)
			n++
		}
	}
	return n
}
