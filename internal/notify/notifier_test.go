package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

type recordingSender struct {
	titles   []string
	messages []string
	err      error
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func newTestNotifier(sender Sender, events []string) *Notifier {
	return NewNotifier([]Sender{sender}, events, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyRespectsAllowList(t *testing.T) {
	rec := &recordingSender{}
	n := newTestNotifier(rec, []string{EventKillSwitch})

	n.Notify(context.Background(), EventOrderFilled, "Order filled", "ignored")
	n.Notify(context.Background(), EventKillSwitch, "Kill switch ACTIVATED", "drawdown")

	require.Len(t, rec.titles, 1)
	assert.Equal(t, "Kill switch ACTIVATED", rec.titles[0])
}

func TestNotifyEmptyAllowListPassesEverything(t *testing.T) {
	rec := &recordingSender{}
	n := newTestNotifier(rec, nil)

	n.Notify(context.Background(), EventOrderFilled, "a", "x")
	n.Notify(context.Background(), EventRollover, "b", "y")

	assert.Len(t, rec.titles, 2)
}

func TestSenderFailureDoesNotPanic(t *testing.T) {
	bad := &recordingSender{err: errors.New("webhook down")}
	n := newTestNotifier(bad, nil)

	n.Notify(context.Background(), EventError, "Error", "boom")
	assert.Empty(t, bad.titles)
}

func TestOrderFilledMessage(t *testing.T) {
	rec := &recordingSender{}
	n := newTestNotifier(rec, nil)

	rep := domain.ExecutionReport{
		Request: domain.OrderRequest{Intent: domain.TradeIntent{
			Side:    domain.SideBuy,
			Outcome: domain.OutcomeYes,
			TokenID: "0123456789abcdef",
		}},
		FilledSize:  50,
		FilledPrice: 0.44,
	}
	n.OrderFilled(context.Background(), rep)

	require.Len(t, rec.messages, 1)
	assert.Contains(t, rec.messages[0], "BUY YES 01234567")
	assert.Contains(t, rec.messages[0], "@ 0.440")
}

func TestPositionClosedMessage(t *testing.T) {
	rec := &recordingSender{}
	n := newTestNotifier(rec, nil)

	pos := domain.Position{Outcome: domain.OutcomeNo, Shares: 100, EntryPrice: 0.40}
	n.PositionClosed(context.Background(), pos, 0.46, 6)

	require.Len(t, rec.messages, 1)
	assert.Contains(t, rec.messages[0], "PnL $6.00")
}

func TestRolloverMessage(t *testing.T) {
	rec := &recordingSender{}
	n := newTestNotifier(rec, nil)

	n.Rollover(context.Background(), domain.Instrument{
		Slug:       "bitcoin-up-or-down-august-30-4pm-et",
		ExpiryTime: time.Date(2026, 8, 30, 17, 0, 0, 0, time.UTC),
	})

	require.Len(t, rec.titles, 1)
	assert.Equal(t, "Rolled to next window", rec.titles[0])
	assert.Contains(t, rec.messages[0], "bitcoin-up-or-down-august-30-4pm-et")
}
