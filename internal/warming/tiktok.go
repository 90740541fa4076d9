package warming

import (
	"context"
	"time"

	"github.com/ehmo/sovi/internal/automation"
)

const tiktokBundleID = "com.zhiliaoapp.musically"

// tiktokWarmer drives the TikTok video feed via swipe-up gestures.
type tiktokWarmer struct {
	client *automation.Client
}

func newTikTokWarmer(c *automation.Client) *tiktokWarmer {
	return &tiktokWarmer{client: c}
}

func (w *tiktokWarmer) PassiveConsumption(ctx context.Context, stop <-chan struct{}, budget time.Duration) (Report, error) {
	return w.run(ctx, stop, budget, false, false)
}

func (w *tiktokWarmer) LightEngagement(ctx context.Context, stop <-chan struct{}, budget time.Duration, relaxedCaps bool) (Report, error) {
	return w.run(ctx, stop, budget, true, relaxedCaps)
}

func (w *tiktokWarmer) run(ctx context.Context, stop <-chan struct{}, budget time.Duration, engage, relaxedCaps bool) (Report, error) {
	c := newControls()
	end := deadline(budget)
	var report Report

	likeCap := c.likeCap()
	followCap := c.followCap(false)
	if relaxedCaps {
		likeCap += likeCap / 2
		followCap += followCap / 2
	}

	nextAlertCheck := c.alertCheckCadence()
	videosSinceAlertCheck := 0
	videosSinceHashtagSearch := 0

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

		if !sleepOrStop(ctx, stop, c.watchTime()) {
			return report, nil
		}
		report.VideosWatched++
		videosSinceAlertCheck++
		videosSinceHashtagSearch++

		if videosSinceAlertCheck >= nextAlertCheck {
			checkAlert(ctx, w.client)
			videosSinceAlertCheck = 0
			nextAlertCheck = c.alertCheckCadence()
		}

		if engage {
			if report.Likes < likeCap && c.likeChance() {
				if err := w.likeCurrentVideo(ctx); err == nil {
					report.Likes++
					if !sleepOrStop(ctx, stop, c.gapAfterLike()) {
						return report, nil
					}
				}
			}
			if report.Follows < followCap && c.followChance() {
				if err := w.followCurrentCreator(ctx); err == nil {
					report.Follows++
					if !sleepOrStop(ctx, stop, c.gapAfterFollow()) {
						return report, nil
					}
				}
			}
			// Every 20 videos, tap the search button (searchNicheHashtag).
			// No hashtag is entered and the account's niche is not used,
			// so this does not steer the feed toward a niche.
			if videosSinceHashtagSearch >= 20 {
				_ = w.searchNicheHashtag(ctx)
				videosSinceHashtagSearch = 0
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
		if err := w.swipeUp(ctx); err != nil {
			return report, err
		}
		if !sleepOrStop(ctx, stop, c.swipeDuration()) {
			return report, nil
		}
	}
}

func (w *tiktokWarmer) swipeUp(ctx context.Context) error {
	return w.client.PerformActions(ctx, []automation.Action{
		{Type: "pointerMove", Duration: 0, X: 200, Y: 1400},
		{Type: "pointerDown"},
		{Type: "pointerMove", Duration: 300, X: 200, Y: 400},
		{Type: "pointerUp"},
	})
}

func (w *tiktokWarmer) likeCurrentVideo(ctx context.Context) error {
	el, err := w.client.FindElement(ctx, automation.StrategyAccessibilityID, "like-icon")
	if err != nil {
		return err
	}
	return w.client.Click(ctx, el)
}

func (w *tiktokWarmer) followCurrentCreator(ctx context.Context) error {
	el, err := w.client.FindElement(ctx, automation.StrategyAccessibilityID, "follow-icon")
	if err != nil {
		return err
	}
	return w.client.Click(ctx, el)
}

func (w *tiktokWarmer) searchNicheHashtag(ctx context.Context) error {
	el, err := w.client.FindElement(ctx, automation.StrategyAccessibilityID, "search-button")
	if err != nil {
		return err
	}
	return w.client.Click(ctx, el)
}
