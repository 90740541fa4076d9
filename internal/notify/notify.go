// Package notify provides the out-of-band critical-event sink (§4.8): a
// Slack notifier that fires when an event write fails or when a
// critical-severity event is emitted, so operators get paged even if the
// dashboard's SSE stream is down.
package notify

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ehmo/sovi/internal/domain"
)

// Notifier posts critical alerts to a Slack channel. If no bot token is
// configured it is a logging no-op, matching the optional-component
// pattern used for other external collaborators in this core.
type Notifier struct {
	client  *goslack.Client
	channel string
	log     *zap.Logger
}

// New builds a Notifier. botToken and channel both empty means disabled.
func New(botToken, channel string, log *zap.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, log: log}
}

// IsEnabled reports whether this notifier will actually post to Slack.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyEvent posts an alert for a critical system event. Non-critical
// events are dropped silently; this is not a general audit feed.
func (n *Notifier) NotifyEvent(ctx context.Context, e domain.SystemEvent) {
	if e.Severity != domain.SeverityCritical {
		return
	}
	if !n.IsEnabled() {
		n.log.Warn("critical event (notifier disabled)",
			zap.String("event_type", e.EventType), zap.String("message", e.Message))
		return
	}
	text := fmt.Sprintf(":rotating_light: [%s/%s] %s", e.Category, e.EventType, e.Message)
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.log.Error("failed to post slack alert", zap.Error(err))
	}
}

// NotifyWriteFailure reports that the store itself failed to persist an
// event — the out-of-band path §4.8 requires for that case.
func (n *Notifier) NotifyWriteFailure(ctx context.Context, attempted domain.SystemEvent, writeErr error) {
	msg := fmt.Sprintf(":warning: event log write failed for %s/%s: %v", attempted.Category, attempted.EventType, writeErr)
	if !n.IsEnabled() {
		n.log.Error("event write failure (notifier disabled)", zap.Error(writeErr))
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(msg, false)); err != nil {
		n.log.Error("failed to post slack alert for write failure", zap.Error(err))
	}
}
