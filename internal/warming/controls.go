package warming

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ehmo/sovi/internal/automation"
)

// controls bundles the rate-limit/probability contract values from
// spec.md §4.5. Every value is redrawn per call from newRand(), never
// reused across sessions.
type controls struct {
	r *rand.Rand
}

func newControls() *controls { return &controls{r: newRand()} }

// watchTime returns how long to "watch" one video: uniform(5,25)s, with
// a 30% chance of a longer uniform(20,60)s watch instead.
func (c *controls) watchTime() time.Duration {
	if chance(c.r, 0.30) {
		return uniformSeconds(c.r, 20, 60)
	}
	return uniformSeconds(c.r, 5, 25)
}

func (c *controls) swipeDuration() time.Duration  { return uniformSeconds(c.r, 0.3, 0.8) }
func (c *controls) settleDelay() time.Duration    { return uniformSeconds(c.r, 0.5, 1.5) }
func (c *controls) zoneOutChance() bool           { return chance(c.r, 0.05+c.r.Float64()*0.10) } // 5-15%
func (c *controls) zoneOutDuration() time.Duration { return uniformSeconds(c.r, 5, 30) }
func (c *controls) alertCheckCadence() int        { return uniformInt(c.r, 5, 8) }
func (c *controls) likeCap() int                  { return uniformInt(c.r, 5, 10) }
func (c *controls) followCap(instagram bool) int {
	if instagram {
		return uniformInt(c.r, 3, 5)
	}
	return uniformInt(c.r, 3, 7)
}
func (c *controls) likeChance() bool   { return chance(c.r, 0.12+c.r.Float64()*0.03) } // 12-15%
func (c *controls) followChance() bool { return chance(c.r, 0.06) }                    // ~6%
func (c *controls) gapAfterLike() time.Duration   { return uniformSeconds(c.r, 30, 90) }
func (c *controls) gapAfterFollow() time.Duration { return uniformSeconds(c.r, 30, 60) }

// deadline returns a channel closed when budget has elapsed since now,
// used alongside the stop signal in every warmer's select loop so
// natural stops, never busy-waits, bound the run.
func deadline(budget time.Duration) <-chan time.Time {
	return time.After(budget)
}

// sleepOrStop blocks for d, or returns early (with ok=false) if stop
// fires or the context is cancelled — the mechanism that lets shutdown
// preempt a warmer mid-action within the §5 30s grace period.
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

// checkAlert issues a lightweight "is there an alert?" probe and
// dismisses it if present. Heavy UI-tree searches are forbidden in tight
// loops (§4.5) — this is the one cheap check warmers are allowed.
func checkAlert(ctx context.Context, client *automation.Client) {
	text, err := client.AlertText(ctx)
	if err != nil || text == "" {
		return
	}
	_ = client.DismissAlert(ctx)
}
