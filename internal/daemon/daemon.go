// Package daemon wires every Device Orchestration Core subsystem into a
// single process: store, codec, event log, automation client factory,
// warming engine, session runner, creation runner, scheduler, health
// checker, and the ops HTTP surface. Model follows the teacher's
// internal/daemon/daemon.go (constructed object, Start/Stop owned by the
// process entry-point, signal-driven graceful shutdown) — generalized
// to this core's own component set rather than the teacher's model
// runtime (spec.md §9 "Singletons").
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ehmo/sovi/internal/automation"
	"github.com/ehmo/sovi/internal/config"
	"github.com/ehmo/sovi/internal/creation"
	"github.com/ehmo/sovi/internal/domain"
	"github.com/ehmo/sovi/internal/eventlog"
	"github.com/ehmo/sovi/internal/health"
	"github.com/ehmo/sovi/internal/notify"
	"github.com/ehmo/sovi/internal/opsapi"
	"github.com/ehmo/sovi/internal/scheduler"
	"github.com/ehmo/sovi/internal/security"
	"github.com/ehmo/sovi/internal/session"
	"github.com/ehmo/sovi/internal/store"
	"github.com/ehmo/sovi/internal/warming"
)

// Daemon is the orchestration core's runtime. It owns the store
// connection, the scheduler, and the ops HTTP surface.
type Daemon struct {
	Config    *config.Config
	Store     *store.DB
	Events    *eventlog.Log
	Scheduler *scheduler.Scheduler
	Health    *health.Checker
	ops       *opsapi.Server
	log       *zap.Logger

	stop   chan struct{}
	cancel context.CancelFunc
}

// New loads configuration from the environment, opens the store,
// decrypts nothing yet (the codec is stateless), and wires the full
// component graph. A non-nil error here is always a fatal startup
// failure per spec.md §6.4.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds a Daemon from an already-loaded configuration —
// split out from New so a caller can supply a Config directly.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := store.Open(ctx, store.Config{
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	codec, err := security.NewCodecFromEnv("SOVI_MASTER_KEY")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load credential codec: %w", err)
	}

	// Built as a plain nil interface (not a typed-nil *notify.Notifier)
	// when Slack isn't configured, so eventlog's "if l.sink != nil" guard
	// actually skips it rather than calling a method on a nil receiver.
	var events *eventlog.Log
	if cfg.HasSlack() {
		events = eventlog.New(db, notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, log), log)
	} else {
		events = eventlog.New(db, nil, log)
	}

	clientCfg := automation.Config{
		GestureTimeout: time.Duration(cfg.GestureTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
	}
	clientFactory := func(d domain.Device) *automation.Client {
		return automation.New(d.Endpoint(), clientCfg, d.ID)
	}

	engine := warming.NewEngine()
	sessionBudgets := session.Budgets{
		InstallLogin: time.Duration(cfg.InstallLoginBudget) * time.Second,
		Warming:      time.Duration(cfg.WarmingBudget) * time.Second,
		Cleanup:      30 * time.Second,
	}
	sessionRunner := session.New(db, events, codec, engine, session.InstallSources(cfg.InstallSources()), sessionBudgets, log)

	// §4.7 "Safety" / §9 Open Question 1: absent CAPTCHA/IMAP/SMS
	// collaborators disable the creation runner entirely rather than
	// failing startup — the scheduler treats a nil creator as
	// "creation_skipped" (warning), never fatal. See DESIGN.md.
	var creator *creation.Runner
	if cfg.HasCreationCollaborators() {
		collaborators := creation.NewCollaborators(
			cfg.CaptchaAPIURL, cfg.CaptchaAPIKey,
			cfg.IMAPHost, cfg.IMAPPort, cfg.IMAPUser, cfg.IMAPPassword,
			cfg.SMSAPIURL, cfg.SMSAPIKey,
		)
		creator = creation.New(db, events, codec, collaborators, cfg.InstallSources(), log)
	} else {
		log.Warn("creation collaborators not fully configured; account creation disabled")
	}

	budgets := scheduler.Budgets{
		IdleInterval:        time.Duration(cfg.IdleInterval) * time.Second,
		CooldownInterval:    time.Duration(cfg.CooldownInterval) * time.Second,
		SessionTotalBudget:  time.Duration(cfg.SessionBudget) * time.Second,
		ShutdownGrace:       time.Duration(cfg.ShutdownGrace) * time.Second,
		ProbeBackoffInitial: time.Duration(cfg.ProbeBackoffInitial) * time.Second,
		ProbeBackoffMax:     time.Duration(cfg.ProbeBackoffMax) * time.Second,
		ErrorBackoff:        60 * time.Second,
	}
	sched := scheduler.New(db, events, sessionRunner, creator, clientFactory, budgets, log)

	staleAfter := time.Duration(cfg.HeartbeatStaleAfterSeconds) * time.Second
	checker := health.NewChecker(db, db, staleAfter)

	d := &Daemon{
		Config:    cfg,
		Store:     db,
		Events:    events,
		Scheduler: sched,
		Health:    checker,
		ops:       opsapi.New(checker, db),
		log:       log,
		stop:      make(chan struct{}),
	}
	return d, nil
}

// Start runs the scheduler and the ops HTTP surface, and blocks until a
// SIGINT/SIGTERM, ctx cancellation, or Stop() triggers graceful
// shutdown. Mirrors the teacher's Serve — signal channel plus
// http.Server plus context cancellation — generalized to this core's
// worker-pool shutdown (§4.3 "Cancellation & shutdown") instead of an
// inference server drain.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	httpServer := &http.Server{
		Addr:         d.Config.OpsAddr(),
		Handler:      d.ops.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	d.Events.Emit(ctx, domain.CategoryScheduler, domain.SeverityInfo, domain.EventSchedulerStarted,
		"device orchestration core starting", "", "", nil)

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- d.Scheduler.Run(ctx, d.stop)
	}()

	d.log.Info("sovi orchestration core listening", zap.String("ops_addr", d.Config.OpsAddr()))

	select {
	case <-sigCh:
		d.log.Info("signal received, shutting down")
	case <-ctx.Done():
	case err := <-errCh:
		d.log.Error("ops http server error", zap.Error(err))
	}

	d.Events.Emit(context.WithoutCancel(ctx), domain.CategoryScheduler, domain.SeverityInfo, domain.EventSchedulerStopping,
		"device orchestration core stopping", "", "", nil)

	close(d.stop)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), d.shutdownGrace())
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		d.log.Warn("scheduler did not finish within shutdown grace period")
	}

	d.Events.Emit(context.Background(), domain.CategoryScheduler, domain.SeverityInfo, domain.EventSchedulerStopped,
		"device orchestration core stopped", "", "", nil)

	return d.Close()
}

// Stop signals a graceful shutdown without waiting for it to complete;
// Start's caller observes completion when Start returns.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) shutdownGrace() time.Duration {
	grace := time.Duration(d.Config.ShutdownGrace) * time.Second
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return grace
}

// Close releases the store connection. Safe to call after Start
// returns or independently if Start was never called.
func (d *Daemon) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl
	return cfg.Build()
}
