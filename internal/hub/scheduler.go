package hub

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/park285/omok-server/internal/obslog"
)

// Start schedules the turn-timeout sweep and, when configured, the periodic
// stats log. Overlapping runs of the same job are skipped.
func (h *Hub) Start() error {
	if h.sched != nil {
		return nil
	}
	cl := obslog.NewCronLogger(h.logger)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(h.sweepSpec, h.sweep); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", h.sweepSpec, err)
	}
	if h.statsSpec != "" {
		if _, err := c.AddFunc(h.statsSpec, h.logStats); err != nil {
			return fmt.Errorf("schedule stats %q: %w", h.statsSpec, err)
		}
	}
	c.Start()
	h.sched = c
	h.logger.Info("scheduler_started", zap.String("sweep", h.sweepSpec), zap.String("stats", h.statsSpec))
	return nil
}

// Stop halts the scheduler and waits for running jobs or ctx.
func (h *Hub) Stop(ctx context.Context) error {
	if h.sched == nil {
		return nil
	}
	done := h.sched.Stop()
	h.sched = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one timeout pass and returns how many turns were skipped.
func (h *Hub) Sweep() int { return h.rooms.Sweep() }

func (h *Hub) sweep() {
	if n := h.rooms.Sweep(); n > 0 {
		h.logger.Debug("sweep_timeouts", zap.Int("count", n))
	}
}

func (h *Hub) logStats() {
	s := h.Stats()
	h.logger.Info("server_stats",
		zap.Int("connections", s.Connections),
		zap.Int("authenticated", s.Authenticated),
		zap.Int("rooms", s.Rooms),
		zap.Int("accounts", s.Accounts),
	)
}
