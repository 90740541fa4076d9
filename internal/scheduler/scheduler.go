// Package scheduler runs one independent worker goroutine per active
// device (§4.3), claiming warming or creation tasks and handing them to
// the session/creation runners, with per-worker failure isolation and a
// shared graceful-shutdown signal.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehmo/sovi/internal/automation"
	"github.com/ehmo/sovi/internal/creation"
	"github.com/ehmo/sovi/internal/domain"
	"github.com/ehmo/sovi/internal/eventlog"
	"github.com/ehmo/sovi/internal/session"
)

// schedulerStore is the subset of *store.DB the scheduler depends on
// directly (claim + heartbeat + device status; account/niche/warming
// reads live behind session.Runner and creation.Runner instead).
type schedulerStore interface {
	ListActiveDevices(ctx context.Context) ([]domain.Device, error)
	TouchHeartbeat(ctx context.Context, deviceID string) error
	SetDeviceStatus(ctx context.Context, deviceID string, status domain.DeviceStatus) error
	ClaimWarmingTask(ctx context.Context, deviceID string, platforms []domain.Platform, startOfDay time.Time) (domain.Account, error)
}

// Budgets controls the scheduler's own timing knobs (§4.3), independent
// of the session runner's internal budgets (§4.4).
type Budgets struct {
	IdleInterval        time.Duration // no claimable task: sleep this long
	CooldownInterval    time.Duration // after any task: sleep this long
	SessionTotalBudget  time.Duration // hard ceiling on one session runner invocation
	ShutdownGrace       time.Duration // in-flight work allowed to finish after stop fires
	ProbeBackoffInitial time.Duration
	ProbeBackoffMax     time.Duration
	ErrorBackoff        time.Duration // §4.3 "Failure isolation": 60s after an unhandled worker error
}

func DefaultBudgets() Budgets {
	return Budgets{
		IdleInterval:        30 * time.Second,
		CooldownInterval:    30 * time.Second,
		SessionTotalBudget:  45 * time.Minute,
		ShutdownGrace:       30 * time.Second,
		ProbeBackoffInitial: 60 * time.Second,
		ProbeBackoffMax:     15 * time.Minute,
		ErrorBackoff:        60 * time.Second,
	}
}

// Scheduler owns one worker per active device.
type Scheduler struct {
	store    schedulerStore
	events   *eventlog.Log
	sessions *session.Runner
	creator  *creation.Runner
	clients  func(domain.Device) *automation.Client
	budgets  Budgets
	log      *zap.Logger

	mu            sync.Mutex
	sessionsToday map[string]int
	statuses      map[string]WorkerStatus
}

// WorkerStatus is one worker's current task description, published so
// external observers (the dashboard, §4.3 "Workers publish their
// current task description") can render live status without querying
// the store's transactional claim state directly.
type WorkerStatus struct {
	DeviceID    string
	TaskID      string // correlation id for one loop iteration, for log/status cross-referencing
	Description string
	UpdatedAt   time.Time
}

func New(store schedulerStore, events *eventlog.Log, sessions *session.Runner, creator *creation.Runner,
	clientFactory func(domain.Device) *automation.Client, budgets Budgets, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		events:        events,
		sessions:      sessions,
		creator:       creator,
		clients:       clientFactory,
		budgets:       budgets,
		log:           log,
		sessionsToday: make(map[string]int),
		statuses:      make(map[string]WorkerStatus),
	}
}

// Statuses returns a snapshot of every worker's last-published task
// description.
func (s *Scheduler) Statuses() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkerStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) publish(deviceID, taskID, description string) {
	s.mu.Lock()
	s.statuses[deviceID] = WorkerStatus{DeviceID: deviceID, TaskID: taskID, Description: description, UpdatedAt: time.Now()}
	s.mu.Unlock()
}

// Run queries the active device set and blocks, running one worker
// goroutine per device, until stop fires or ctx is cancelled. It returns
// once every worker has exited; Run itself puts no time limit on that
// wait (Daemon.Start bounds its own wait on Run by the shutdown grace).
func (s *Scheduler) Run(ctx context.Context, stop <-chan struct{}) error {
	devices, err := s.store.ListActiveDevices(ctx)
	if err != nil {
		return fmt.Errorf("list active devices: %w", err)
	}
	if len(devices) == 0 {
		s.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityWarning, domain.EventSchedulerNoDevices,
			"no active devices at startup", "", "", nil)
	}

	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func(d domain.Device) {
			defer wg.Done()
			s.runWorker(ctx, d, stop)
		}(d)
	}
	wg.Wait()
	return nil
}

// runWorker is the per-device loop (§4.3 steps 1-7), wrapped in failure
// isolation: a panic or returned error in one iteration never halts
// other workers, and this worker resumes after ErrorBackoff.
func (s *Scheduler) runWorker(ctx context.Context, d domain.Device, stop <-chan struct{}) {
	client := s.clients(d)
	backoff := s.budgets.ProbeBackoffInitial

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker panic: %v", r)
				}
			}()
			return s.runIteration(ctx, d, client, &backoff)
		}()
		if err != nil {
			s.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityError, domain.EventSchedulerDeviceLoopError,
				"unhandled worker error, resuming after backoff", d.ID, "", eventlog.Fields{"error": err.Error()})
			if !sleepOrStop(ctx, stop, s.budgets.ErrorBackoff) {
				return
			}
			continue
		}
	}
}

// runIteration runs one pass of steps 1-7. A non-nil error here is
// caught by runWorker's failure-isolation wrapper; expected "nothing to
// do" conditions (probe failure, no task) are handled internally and
// never surface as an error.
func (s *Scheduler) runIteration(ctx context.Context, d domain.Device, client *automation.Client, backoff *time.Duration) error {
	taskID := uuid.NewString()
	s.publish(d.ID, taskID, "heartbeat + health probe")

	// Step 1: heartbeat.
	if err := s.store.TouchHeartbeat(ctx, d.ID); err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}

	// Step 2: health probe, with capped exponential backoff on failure.
	if err := client.Probe(ctx); err != nil || client.BreakerOpen() {
		s.publish(d.ID, taskID, "backing off: automation endpoint unreachable")
		// Warning per failed probe; critical once the breaker has tripped.
		severity := domain.SeverityWarning
		if client.BreakerOpen() {
			severity = domain.SeverityCritical
		}
		s.events.Emit(ctx, domain.CategoryDevice, severity, domain.EventDeviceDisconnected,
			"device automation endpoint unreachable", d.ID, "", nil)
		if setErr := s.store.SetDeviceStatus(ctx, d.ID, domain.DeviceDisconnected); setErr != nil {
			s.log.Warn("failed to mark device disconnected", zap.String("device_id", d.ID), zap.Error(setErr))
		}
		wait := *backoff
		*backoff = min(*backoff*2, s.budgets.ProbeBackoffMax)
		return sleepOrStopErr(ctx, wait)
	}
	*backoff = s.budgets.ProbeBackoffInitial

	// Step 3: claim a warming task.
	s.publish(d.ID, taskID, "claiming task")
	startOfDay := time.Now().Truncate(24 * time.Hour)
	account, err := s.store.ClaimWarmingTask(ctx, d.ID, domain.ActivePlatforms, startOfDay)
	switch {
	case err == nil:
		s.publish(d.ID, taskID, fmt.Sprintf("warming session for account %s", account.ID))
		s.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityInfo, domain.EventSchedulerWarmingStarted,
			"warming session starting", d.ID, account.ID, nil)
		sessCtx, cancel := context.WithTimeout(ctx, s.budgets.SessionTotalBudget)
		_, runErr := s.sessions.Run(sessCtx, d, account, client)
		cancel()
		if runErr != nil {
			return fmt.Errorf("session run: %w", runErr)
		}
	case isNoEligibleAccount(err):
		// Step 5 (fallback): attempt a creation task. A nil creator means
		// §9 Open Question 1's collaborators were absent at startup —
		// skip without treating it as an error (spec.md §4.7 "Safety").
		if s.creator == nil {
			s.publish(d.ID, taskID, "idle: no warming task, creation disabled")
			s.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityWarning, domain.EventSchedulerCreationSkipped,
				"no warming task and no creation collaborators configured", d.ID, "", nil)
			return sleepOrStopErr(ctx, s.budgets.IdleInterval)
		}
		s.publish(d.ID, taskID, "creating account")
		s.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityInfo, domain.EventSchedulerCreationStarted,
			"attempting account creation", d.ID, "", nil)
		if _, creationErr := s.creator.Run(ctx, d, client); creationErr != nil {
			s.log.Warn("creation attempt failed", zap.String("device_id", d.ID), zap.Error(creationErr))
		}
	default:
		return fmt.Errorf("claim warming task: %w", err)
	}

	// Step 6: bookkeeping.
	s.mu.Lock()
	s.sessionsToday[d.ID]++
	count := s.sessionsToday[d.ID]
	s.mu.Unlock()
	s.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityInfo, domain.EventSchedulerIterationComplete,
		"worker completed an iteration", d.ID, "", eventlog.Fields{"sessions_today": count})

	// Step 7: cooldown.
	s.publish(d.ID, taskID, "cooldown")
	return sleepOrStopErr(ctx, s.budgets.CooldownInterval)
}

func isNoEligibleAccount(err error) bool {
	return errors.Is(err, domain.ErrNoEligibleAccount)
}

func sleepOrStopErr(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleepOrStop(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
