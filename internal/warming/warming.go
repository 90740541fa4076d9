// Package warming implements the phase-aware, rate-limited warming
// behavior engine (§4.5): per-platform warmers exposing passive
// consumption and light engagement primitives, driven by natural loop
// stops rather than busy-waits so shutdown always preempts within the
// session budget.
//
// Design grounded on the ticker-driven worker loop and jittered
// per-action timing idiom in the retrieval pack's stand-alone warming
// scheduler example (see DESIGN.md); rewritten into typed Go with
// explicit error returns rather than logged-and-swallowed failures.
package warming

import (
	"context"
	"errors"
	"time"

	"github.com/ehmo/sovi/internal/automation"
	"github.com/ehmo/sovi/internal/domain"
)

// ErrPlatformNotActive is returned by warmers defined for future use
// (YouTube, Reddit, X) but never invoked by the scheduler, which only
// resolves tiktok/instagram (§4.5).
var ErrPlatformNotActive = errors.New("warmer defined but not active in the scheduler")

// Report is the structured outcome the engine returns to the session
// runner. The warming engine never writes to the store directly.
type Report struct {
	VideosWatched int
	Likes         int
	Follows       int
}

// Warmer is the behavior contract every platform implements.
type Warmer interface {
	// PassiveConsumption browses without interacting, for budget. The
	// budget is checked between videos, so unless ctx or stop ends it
	// sooner a run can last up to one video iteration past budget.
	PassiveConsumption(ctx context.Context, stop <-chan struct{}, budget time.Duration) (Report, error)
	// LightEngagement mixes consumption with rate-limited interactions,
	// for budget (checked between videos, as for PassiveConsumption). relaxedCaps widens (never removes) the
	// per-session like/follow ceilings, used for phase 4 (§4.5).
	LightEngagement(ctx context.Context, stop <-chan struct{}, budget time.Duration, relaxedCaps bool) (Report, error)
}

// Engine resolves the Warmer for a platform and runs the phase-selected
// primitive.
type Engine struct {
	warmers map[domain.Platform]func(*automation.Client) Warmer
}

// NewEngine builds the engine with warmers for every platform named in
// spec.md §4.5 — tiktok and instagram (active in the scheduler) plus
// youtube/reddit/x stubs kept for the interface's sake.
func NewEngine() *Engine {
	return &Engine{
		warmers: map[domain.Platform]func(*automation.Client) Warmer{
			domain.PlatformTikTok:    func(c *automation.Client) Warmer { return newTikTokWarmer(c) },
			domain.PlatformInstagram: func(c *automation.Client) Warmer { return newInstagramWarmer(c) },
			platformYouTube:          func(c *automation.Client) Warmer { return stubWarmer{platform: platformYouTube} },
			platformReddit:           func(c *automation.Client) Warmer { return stubWarmer{platform: platformReddit} },
			platformX:                func(c *automation.Client) Warmer { return stubWarmer{platform: platformX} },
		},
	}
}

// platforms defined for future use only (§4.5) — never resolved by the
// scheduler, which iterates domain.ActivePlatforms.
const (
	platformYouTube domain.Platform = "youtube"
	platformReddit  domain.Platform = "reddit"
	platformX       domain.Platform = "x"
)

// Run picks the primitive by phase (phase 1: passive only; phases 2-4:
// light engagement, with phase 4's ceilings relaxed) and runs it against
// the device's automation client.
func (e *Engine) Run(ctx context.Context, platform domain.Platform, phase domain.WarmingPhase, client *automation.Client, stop <-chan struct{}, budget time.Duration) (Report, error) {
	factory, ok := e.warmers[platform]
	if !ok {
		return Report{}, ErrPlatformNotActive
	}
	w := factory(client)
	if phase == domain.PhasePassive {
		return w.PassiveConsumption(ctx, stop, budget)
	}
	return w.LightEngagement(ctx, stop, budget, phase == domain.PhaseActive)
}

// stubWarmer backs the not-yet-active platforms; any call reports
// ErrPlatformNotActive rather than attempting real automation.
type stubWarmer struct{ platform domain.Platform }

func (s stubWarmer) PassiveConsumption(ctx context.Context, stop <-chan struct{}, budget time.Duration) (Report, error) {
	return Report{}, ErrPlatformNotActive
}

func (s stubWarmer) LightEngagement(ctx context.Context, stop <-chan struct{}, budget time.Duration, relaxedCaps bool) (Report, error) {
	return Report{}, ErrPlatformNotActive
}
