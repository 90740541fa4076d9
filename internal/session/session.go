// Package session implements the delete→install→login→warm state
// machine (§4.4): the session runner drives one complete warming cycle
// for one account on one device, producing idempotent side effects via
// the automation agent and recording the outcome as a warming_progress
// row plus a system event.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ehmo/sovi/internal/automation"
	"github.com/ehmo/sovi/internal/domain"
	"github.com/ehmo/sovi/internal/eventlog"
	"github.com/ehmo/sovi/internal/security"
	"github.com/ehmo/sovi/internal/warming"
)

// sessionStore is the subset of *store.DB the session runner depends on.
type sessionStore interface {
	CompleteWarmingSession(ctx context.Context, accountID string, newState domain.AccountState) error
	ApplyExceptionState(ctx context.Context, accountID string, newState domain.AccountState) error
	InsertWarmingSession(ctx context.Context, ws domain.WarmingSession) (domain.WarmingSession, error)
}

// Budgets holds the three time budgets §4.4 assigns to a session.
type Budgets struct {
	InstallLogin time.Duration // uninstall + reinstall + login overhead, default 15min
	Warming      time.Duration // default exactly 30min
	Cleanup      time.Duration // default ~30s
}

func DefaultBudgets() Budgets {
	return Budgets{
		InstallLogin: 15 * time.Minute,
		Warming:      30 * time.Minute,
		Cleanup:      30 * time.Second,
	}
}

// bundleIDs maps platforms to their app bundle identifiers for the
// automation agent's app-lifecycle calls.
var bundleIDs = map[domain.Platform]string{
	domain.PlatformTikTok:    "com.zhiliaoapp.musically",
	domain.PlatformInstagram: "com.burbn.instagram",
}

// InstallSources is where the fresh app binary is fetched from for each
// platform's reinstall step; in production this points at an internal
// app-store mirror or a pinned IPA, supplied externally.
type InstallSources map[domain.Platform]string

// Runner drives one session (§4.4) end to end.
type Runner struct {
	store   sessionStore
	events  *eventlog.Log
	codec   *security.Codec
	engine  *warming.Engine
	sources InstallSources
	budgets Budgets
	log     *zap.Logger
}

func New(store sessionStore, events *eventlog.Log, codec *security.Codec, engine *warming.Engine, sources InstallSources, budgets Budgets, log *zap.Logger) *Runner {
	return &Runner{store: store, events: events, codec: codec, engine: engine, sources: sources, budgets: budgets, log: log}
}

// Outcome is the result of one Run call, mainly useful for scheduler
// bookkeeping and tests.
type Outcome struct {
	Completed       bool
	ExceptionState  domain.AccountState // zero value if no exception fired
	WarmingReport   warming.Report
	NewWarmingDay   int
}

// Run executes the full pipeline in the table in §4.4 for account a on
// device d, using client (already bound to that device's automation
// endpoint; Run owns the WebDriver session's start/end around it).
func (r *Runner) Run(ctx context.Context, d domain.Device, a domain.Account, client *automation.Client) (Outcome, error) {
	bundleID, ok := bundleIDs[a.Platform]
	if !ok {
		return Outcome{}, fmt.Errorf("session: no bundle id configured for platform %q", a.Platform)
	}

	if err := client.StartSession(ctx); err != nil {
		return Outcome{}, fmt.Errorf("start automation session: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.budgets.Cleanup)
		defer cancel()
		if err := client.EndSession(cleanupCtx); err != nil {
			r.log.Warn("failed to end automation session", zap.String("device_id", d.ID), zap.Error(err))
		}
	}()

	installCtx, cancelInstall := context.WithTimeout(ctx, r.budgets.InstallLogin)
	defer cancelInstall()

	// Step 1: ensure app terminated. Failure is a warning, not an abort.
	if err := client.TerminateApp(installCtx, bundleID); err != nil {
		r.events.Emit(ctx, domain.CategoryDevice, domain.SeverityWarning, domain.EventDeviceAppDeleteFailed,
			"failed to terminate app before reset, continuing", d.ID, a.ID, eventlog.Fields{"error": err.Error()})
	}

	// Step 2: reset app installation (uninstall, then reinstall). This
	// MUST happen every session — it is the single largest
	// anti-fingerprinting lever (§4.4).
	if err := r.resetInstall(installCtx, client, d, a, bundleID); err != nil {
		r.events.Emit(ctx, domain.CategoryDevice, domain.SeverityError, domain.EventDeviceInstallFailed,
			"app reset failed, aborting session", d.ID, a.ID, eventlog.Fields{"error": err.Error()})
		r.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityError, domain.EventSchedulerInstallFailed,
			"app reset failed, aborting session", d.ID, a.ID, eventlog.Fields{"error": err.Error()})
		return Outcome{}, nil
	}
	r.events.Emit(ctx, domain.CategoryDevice, domain.SeverityInfo, domain.EventDeviceAppInstalled,
		"app reinstalled", d.ID, a.ID, nil)

	// Step 3: log in.
	if err := r.login(installCtx, client, a); err != nil {
		r.events.Emit(ctx, domain.CategoryAccount, domain.SeverityError, domain.EventAccountLoginFailed,
			"login failed, aborting session", d.ID, a.ID, eventlog.Fields{"error": err.Error()})
		r.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityError, domain.EventSchedulerLoginFailed,
			"login failed, aborting session", d.ID, a.ID, eventlog.Fields{"error": err.Error()})
		return Outcome{}, nil
	}
	r.events.Emit(ctx, domain.CategoryAccount, domain.SeverityInfo, domain.EventAccountLoginSuccess,
		"login succeeded", d.ID, a.ID, nil)

	started := time.Now()
	phase := domain.PhaseForDay(a.WarmingDayCount)
	warmingPhase := phaseToWarmingPhase(phase)

	warmCtx, cancelWarm := context.WithTimeout(ctx, r.budgets.Warming)
	defer cancelWarm()
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	report, warmErr := r.engine.Run(warmCtx, a.Platform, warmingPhase, client, stop, r.budgets.Warming)
	completedAt := time.Now()

	outcome := Outcome{WarmingReport: report}

	if warmErr != nil {
		// Step 4 failure: mid-run exception. Partial progress is still
		// recorded; the day count does not increment (§4.4, §7 mode 3).
		r.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityError, domain.EventSchedulerWarmingFailed,
			"warming run failed", d.ID, a.ID, eventlog.Fields{"error": warmErr.Error(), "videos_watched": report.VideosWatched})
		if _, err := r.store.InsertWarmingSession(ctx, domain.WarmingSession{
			AccountID: a.ID, DeviceID: d.ID, Platform: a.Platform, Phase: warmingPhase,
			DayInPhase: a.WarmingDayCount, VideosWatched: report.VideosWatched, Likes: report.Likes,
			Follows: report.Follows, StartedAt: started, CompletedAt: completedAt,
		}); err != nil {
			r.log.Error("failed to record partial warming session", zap.Error(err))
		}
		return outcome, nil
	}

	// Step 5: update account atomically — bump day count, recompute
	// phase from the new count (or apply an exception override from the
	// classifier hook).
	newDay := a.WarmingDayCount + 1
	newState := domain.PhaseForDay(newDay)
	if exception := ClassifyOutcome(report); exception != "" {
		if err := r.store.ApplyExceptionState(ctx, a.ID, exception); err != nil {
			return outcome, fmt.Errorf("apply exception state: %w", err)
		}
		outcome.ExceptionState = exception
	} else {
		if err := r.store.CompleteWarmingSession(ctx, a.ID, newState); err != nil {
			return outcome, fmt.Errorf("complete warming session: %w", err)
		}
		outcome.NewWarmingDay = newDay
	}

	// Step 6: insert the warming_progress record.
	if _, err := r.store.InsertWarmingSession(ctx, domain.WarmingSession{
		AccountID: a.ID, DeviceID: d.ID, Platform: a.Platform, Phase: warmingPhase,
		DayInPhase: newDay, VideosWatched: report.VideosWatched, Likes: report.Likes,
		Follows: report.Follows, StartedAt: started, CompletedAt: completedAt,
	}); err != nil {
		return outcome, fmt.Errorf("insert warming session: %w", err)
	}

	// Step 7: emit the completion event.
	r.events.Emit(ctx, domain.CategoryScheduler, domain.SeverityInfo, domain.EventSchedulerWarmingComplete,
		"warming session completed", d.ID, a.ID, eventlog.Fields{
			"phase":          phaseLabel(warmingPhase),
			"warming_day":    newDay,
			"videos_watched": report.VideosWatched,
			"likes":          report.Likes,
			"follows":        report.Follows,
		})

	outcome.Completed = true
	return outcome, nil
}

func (r *Runner) resetInstall(ctx context.Context, client *automation.Client, d domain.Device, a domain.Account, bundleID string) error {
	if err := client.UninstallApp(ctx, bundleID); err != nil {
		return fmt.Errorf("uninstall: %w", err)
	}
	r.events.Emit(ctx, domain.CategoryDevice, domain.SeverityInfo, domain.EventDeviceAppDeleted,
		"app uninstalled", d.ID, a.ID, nil)

	appPath, ok := r.sources[a.Platform]
	if !ok {
		return fmt.Errorf("no install source configured for platform %q", a.Platform)
	}
	if err := client.InstallApp(ctx, appPath); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	return nil
}

// loginLocators are the accessibility ids the login flow looks up; one
// set is used for every platform. A real deployment tunes these against the live app build;
// they are injected here as the concrete contract this package drives.
type loginLocators struct {
	emailField    string
	passwordField string
	submitButton  string
	totpField     string
}

var defaultLoginLocators = loginLocators{
	emailField:    "login-email-field",
	passwordField: "login-password-field",
	submitButton:  "login-submit-button",
	totpField:     "login-2fa-field",
}

func (r *Runner) login(ctx context.Context, client *automation.Client, a domain.Account) error {
	if err := client.ActivateApp(ctx, bundleIDs[a.Platform]); err != nil {
		return fmt.Errorf("activate app: %w", err)
	}

	email, err := r.codec.DecryptString(string(a.EmailEnc))
	if err != nil {
		return fmt.Errorf("decrypt email: %w", domain.ErrDecryptionFailed)
	}
	password, err := r.codec.DecryptString(string(a.PasswordEnc))
	if err != nil {
		return fmt.Errorf("decrypt password: %w", domain.ErrDecryptionFailed)
	}

	loc := defaultLoginLocators
	emailEl, err := client.FindElement(ctx, automation.StrategyAccessibilityID, loc.emailField)
	if err != nil {
		return fmt.Errorf("find email field: %w", err)
	}
	if err := client.SetValue(ctx, emailEl, email); err != nil {
		return fmt.Errorf("set email: %w", err)
	}

	passwordEl, err := client.FindElement(ctx, automation.StrategyAccessibilityID, loc.passwordField)
	if err != nil {
		return fmt.Errorf("find password field: %w", err)
	}
	if err := client.SetValue(ctx, passwordEl, password); err != nil {
		return fmt.Errorf("set password: %w", err)
	}

	submitEl, err := client.FindElement(ctx, automation.StrategyAccessibilityID, loc.submitButton)
	if err != nil {
		return fmt.Errorf("find submit button: %w", err)
	}
	if err := client.Click(ctx, submitEl); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}

	if len(a.TOTPSecretEnc) == 0 {
		return nil
	}
	return r.handleTwoFactor(ctx, client, a, loc)
}

func (r *Runner) handleTwoFactor(ctx context.Context, client *automation.Client, a domain.Account, loc loginLocators) error {
	totpEl, err := client.FindElement(ctx, automation.StrategyAccessibilityID, loc.totpField)
	if err != nil {
		// No 2FA prompt appeared; treat as not required for this login.
		return nil
	}
	seed, err := r.codec.DecryptString(string(a.TOTPSecretEnc))
	if err != nil {
		return fmt.Errorf("decrypt totp seed: %w", domain.ErrDecryptionFailed)
	}
	code, err := security.TOTPCode(seed, time.Now())
	if err != nil {
		return fmt.Errorf("compute totp code: %w", err)
	}
	return client.SetValue(ctx, totpEl, code)
}

func phaseToWarmingPhase(s domain.AccountState) domain.WarmingPhase {
	switch s {
	case domain.StateCreated, domain.StateWarmingP1:
		return domain.PhasePassive
	case domain.StateWarmingP2:
		return domain.PhaseLight
	case domain.StateWarmingP3:
		return domain.PhaseModerate
	default:
		return domain.PhaseActive
	}
}

func phaseLabel(p domain.WarmingPhase) string {
	switch p {
	case domain.PhasePassive:
		return "PASSIVE"
	case domain.PhaseLight:
		return "LIGHT"
	case domain.PhaseModerate:
		return "MODERATE"
	default:
		return "ACTIVE"
	}
}

// ClassifyOutcome is the narrow exception-classification hook spec.md
// §9 Open Question 3 calls for: it inspects only this session's own
// terminal outcome, never external signals, and decides whether a
// failure-classified state transition should fire instead of the normal
// phase progression. The core exposes this seam; no autonomous
// detection of shadowbans/restrictions happens here (§4.2, §7 mode 4).
func ClassifyOutcome(report warming.Report) domain.AccountState {
	return ""
}
