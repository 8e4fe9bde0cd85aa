// Package notify pushes operator alerts for trading events over Telegram
// and Discord. Delivery is best-effort: a failed send never blocks the
// control loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// Event types that can be filtered via configuration.
const (
	EventOrderFilled    = "order_filled"
	EventOrderFailed    = "order_failed"
	EventPositionClosed = "position_closed"
	EventKillSwitch     = "kill_switch"
	EventRollover       = "rollover"
	EventError          = "error"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to all configured senders, filtered by event
// type. An empty allow-list lets every event through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers title/message to every sender when event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		return
	}
	n.dispatch(ctx, title, message)
}

// OrderFilled announces a fill.
func (n *Notifier) OrderFilled(ctx context.Context, rep domain.ExecutionReport) {
	intent := rep.Request.Intent
	n.Notify(ctx, EventOrderFilled, "Order filled",
		fmt.Sprintf("%s %s %s %.1f shares @ %.3f ($%.2f)",
			intent.Side, intent.Outcome, intent.TokenID[:min(8, len(intent.TokenID))],
			rep.FilledSize, rep.FilledPrice, rep.FilledSize*rep.FilledPrice))
}

// PositionClosed announces a realized exit.
func (n *Notifier) PositionClosed(ctx context.Context, pos domain.Position, exitPrice, pnl float64) {
	n.Notify(ctx, EventPositionClosed, "Position closed",
		fmt.Sprintf("%s %.1f shares, entry %.3f exit %.3f, PnL $%.2f",
			pos.Outcome, pos.Shares, pos.EntryPrice, exitPrice, pnl))
}

// KillSwitch announces a kill switch state change.
func (n *Notifier) KillSwitch(ctx context.Context, active bool, reason string) {
	state := "deactivated"
	if active {
		state = "ACTIVATED"
	}
	n.Notify(ctx, EventKillSwitch, "Kill switch "+state, reason)
}

// Rollover announces a window change.
func (n *Notifier) Rollover(ctx context.Context, inst domain.Instrument) {
	n.Notify(ctx, EventRollover, "Rolled to next window",
		fmt.Sprintf("%s (expires %s)", inst.Slug, inst.ExpiryTime.Format(time.Kitchen)))
}

// dispatch fans out to every sender, logging failures instead of returning
// them.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("notification failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}
