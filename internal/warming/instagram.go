package warming

import (
	"context"
	"time"

	"github.com/ehmo/sovi/internal/automation"
)

const instagramBundleID = "com.burbn.instagram"

// instagramWarmer mixes the classic feed and Reels (§4.5: 40% classic
// feed / 60% Reels per video), and follows via a text-labeled control
// rather than an icon.
type instagramWarmer struct {
	client *automation.Client
}

func newInstagramWarmer(c *automation.Client) *instagramWarmer {
	return &instagramWarmer{client: c}
}

func (w *instagramWarmer) PassiveConsumption(ctx context.Context, stop <-chan struct{}, budget time.Duration) (Report, error) {
	return w.run(ctx, stop, budget, false, false)
}

func (w *instagramWarmer) LightEngagement(ctx context.Context, stop <-chan struct{}, budget time.Duration, relaxedCaps bool) (Report, error) {
	return w.run(ctx, stop, budget, true, relaxedCaps)
}

func (w *instagramWarmer) run(ctx context.Context, stop <-chan struct{}, budget time.Duration, engage, relaxedCaps bool) (Report, error) {
	c := newControls()
	end := deadline(budget)
	var report Report

	likeCap := c.likeCap()
	followCap := c.followCap(true)
	if relaxedCaps {
		likeCap += likeCap / 2
		followCap += followCap / 2
	}

	nextAlertCheck := c.alertCheckCadence()
	videosSinceAlertCheck := 0

	for {
		select {
		case <-end:
			return report, nil
		case <-stop:
			return report, nil
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		inReels := chance(c.r, 0.60)

		if !sleepOrStop(ctx, stop, c.watchTime()) {
			return report, nil
		}
		report.VideosWatched++
		videosSinceAlertCheck++

		if videosSinceAlertCheck >= nextAlertCheck {
			checkAlert(ctx, w.client)
			videosSinceAlertCheck = 0
			nextAlertCheck = c.alertCheckCadence()
		}

		if engage {
			if report.Likes < likeCap && c.likeChance() {
				if err := w.likeCurrentPost(ctx); err == nil {
					report.Likes++
					if !sleepOrStop(ctx, stop, c.gapAfterLike()) {
						return report, nil
					}
				}
			}
			if report.Follows < followCap && c.followChance() {
				if err := w.followCurrentAccount(ctx); err == nil {
					report.Follows++
					if !sleepOrStop(ctx, stop, c.gapAfterFollow()) {
						return report, nil
					}
				}
			}
		}

		if c.zoneOutChance() {
			if !sleepOrStop(ctx, stop, c.zoneOutDuration()) {
				return report, nil
			}
		}

		if !sleepOrStop(ctx, stop, c.settleDelay()) {
			return report, nil
		}
		var advErr error
		if inReels {
			advErr = w.advanceReel(ctx)
		} else {
			advErr = w.advanceFeed(ctx)
		}
		if advErr != nil {
			return report, advErr
		}
		if !sleepOrStop(ctx, stop, c.swipeDuration()) {
			return report, nil
		}
	}
}

func (w *instagramWarmer) advanceReel(ctx context.Context) error {
	return w.client.PerformActions(ctx, []automation.Action{
		{Type: "pointerMove", Duration: 0, X: 200, Y: 1400},
		{Type: "pointerDown"},
		{Type: "pointerMove", Duration: 300, X: 200, Y: 400},
		{Type: "pointerUp"},
	})
}

func (w *instagramWarmer) advanceFeed(ctx context.Context) error {
	return w.client.PerformActions(ctx, []automation.Action{
		{Type: "pointerMove", Duration: 0, X: 200, Y: 1200},
		{Type: "pointerDown"},
		{Type: "pointerMove", Duration: 300, X: 200, Y: 500},
		{Type: "pointerUp"},
	})
}

func (w *instagramWarmer) likeCurrentPost(ctx context.Context) error {
	el, err := w.client.FindElement(ctx, automation.StrategyAccessibilityID, "like-button")
	if err != nil {
		return err
	}
	return w.client.Click(ctx, el)
}

// followCurrentAccount uses the text-labeled "Follow" control (§4.5),
// looked up by predicate string rather than an icon accessibility id.
func (w *instagramWarmer) followCurrentAccount(ctx context.Context) error {
	el, err := w.client.FindElement(ctx, automation.StrategyPredicateString, `label == "Follow"`)
	if err != nil {
		return err
	}
	return w.client.Click(ctx, el)
}
