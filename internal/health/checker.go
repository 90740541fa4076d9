// Package health provides periodic health checks with the generic
// check/recover framework the teacher's daemon uses, retargeted from
// SQLite/model-directory checks to this core's own shared resources: the
// Postgres pool (§5 "the DB connection pool is the only shared
// resource") and per-device heartbeat staleness (§4.3 step 1).
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ehmo/sovi/internal/domain"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn    func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// pinger is the subset of *store.DB the "database" check depends on.
type pinger interface {
	Ping(ctx context.Context) error
}

// deviceLister is the subset of *store.DB the "device_heartbeats" check
// depends on — it flags devices whose heartbeat has gone stale without
// the scheduler itself having marked them disconnected yet.
type deviceLister interface {
	ListActiveDevices(ctx context.Context) ([]domain.Device, error)
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker builds the standard checker for this core: a DB ping and a
// device-heartbeat staleness sweep. staleAfter is how long a device may
// go without a heartbeat (§4.3 step 1 touches it every iteration) before
// the check reports it unhealthy — callers typically pass a small
// multiple of the idle+cooldown intervals.
func NewChecker(db pinger, devices deviceLister, staleAfter time.Duration) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "database",
				CheckFn: func(ctx context.Context) error {
					return db.Ping(ctx)
				},
			},
			{
				Name: "device_heartbeats",
				CheckFn: func(ctx context.Context) error {
					return checkDeviceHeartbeats(ctx, devices, staleAfter)
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass (vacuously true before the
// first run).
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func checkDeviceHeartbeats(ctx context.Context, devices deviceLister, staleAfter time.Duration) error {
	active, err := devices.ListActiveDevices(ctx)
	if err != nil {
		return fmt.Errorf("list active devices: %w", err)
	}
	now := time.Now()
	var stale []string
	for _, d := range active {
		if d.HeartbeatAt.IsZero() || now.Sub(d.HeartbeatAt) > staleAfter {
			stale = append(stale, d.ID)
		}
	}
	if len(stale) > 0 {
		return fmt.Errorf("%d device(s) with stale heartbeat: %v", len(stale), stale)
	}
	return nil
}
