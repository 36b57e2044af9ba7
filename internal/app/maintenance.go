package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "twitchbot/pkg/logx"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// maintenance runs the cooldown prune job on a cron schedule that can be
// swapped on reload.
type maintenance struct {
	mu    sync.Mutex
	log   logx.Logger
	prune func(ctx context.Context) int

	c    *cron.Cron
	spec string
}

func newMaintenance(log logx.Logger, prune func(ctx context.Context) int) *maintenance {
	return &maintenance{log: log, prune: prune}
}

// Apply (re)schedules the prune job. An unchanged spec is a no-op.
func (m *maintenance) Apply(spec string) error {
	spec = strings.TrimSpace(spec)
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("maintenance.prune_schedule: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil && spec == m.spec {
		return nil
	}
	if m.c != nil {
		<-m.c.Stop().Done()
	}
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(m.run))
	c.Start()
	m.c, m.spec = c, spec
	m.log.Debug("maintenance scheduled", logx.String("prune_schedule", spec))
	return nil
}

func (m *maintenance) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start := time.Now()
	n := m.prune(ctx)
	m.log.Debug("cooldowns pruned", logx.Int("removed", n), logx.Duration("took", time.Since(start)))
}

func (m *maintenance) Stop(ctx context.Context) {
	m.mu.Lock()
	c := m.c
	m.c, m.spec = nil, ""
	m.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
