package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// fakeOrderAPI scripts submission and status responses.
type fakeOrderAPI struct {
	mu         sync.Mutex
	submitErr  error
	statuses   []string
	statusIdx  int
	cancelled  []string
	bulkCalled bool
}

func (f *fakeOrderAPI) Submit(context.Context, domain.OrderRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "ord-1", nil
}

func (f *fakeOrderAPI) Status(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusIdx >= len(f.statuses) {
		return "live", nil
	}
	s := f.statuses[f.statusIdx]
	f.statusIdx++
	return s, nil
}

func (f *fakeOrderAPI) Cancel(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeOrderAPI) CancelAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalled = true
	return nil
}

func newTestService(api OrderAPI, dryRun bool) *Service {
	cfg := config.Defaults().Execution
	cfg.DryRun = dryRun
	cfg.DryRunLatency.Duration = time.Millisecond
	cfg.OrderTimeout.Duration = 50 * time.Millisecond
	cfg.PollInterval.Duration = 5 * time.Millisecond
	return NewService(cfg, api, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Intent: domain.TradeIntent{
			ID:      "intent-1",
			Action:  domain.ActionEnter,
			TokenID: "yes-tok",
			Side:    domain.SideBuy,
			Price:   0.44,
			Size:    50,
		},
		ApprovedSize: 50,
		ApprovedAt:   time.Now(),
	}
}

func TestExecuteDryRunFillsAtIntentPrice(t *testing.T) {
	svc := newTestService(nil, true)

	rep := svc.Execute(context.Background(), testRequest())

	assert.Equal(t, domain.OrderFilled, rep.Status)
	assert.Equal(t, 0.44, rep.FilledPrice)
	assert.Equal(t, 50.0, rep.FilledSize)
	assert.NotEmpty(t, rep.OrderID)
	assert.False(t, rep.FilledAt.IsZero())

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Filled)
	assert.Equal(t, 1.0, stats.FillRate())
}

func TestExecuteDryRunCancelledContext(t *testing.T) {
	svc := newTestService(nil, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := svc.Execute(ctx, testRequest())
	assert.Equal(t, domain.OrderCancelled, rep.Status)
	assert.NotEmpty(t, rep.Error)
}

func TestExecuteLiveSubmitErrorRejects(t *testing.T) {
	api := &fakeOrderAPI{submitErr: errors.New("insufficient balance")}
	svc := newTestService(api, false)

	rep := svc.Execute(context.Background(), testRequest())

	assert.Equal(t, domain.OrderRejected, rep.Status)
	assert.Contains(t, rep.Error, "insufficient balance")
	assert.Equal(t, int64(1), svc.Stats().Rejected)
	assert.Equal(t, 0, svc.PendingCount())
}

func TestExecuteLiveFill(t *testing.T) {
	api := &fakeOrderAPI{statuses: []string{"live", "matched"}}
	svc := newTestService(api, false)

	rep := svc.Execute(context.Background(), testRequest())

	assert.Equal(t, domain.OrderFilled, rep.Status)
	assert.Equal(t, "ord-1", rep.OrderID)
	assert.Equal(t, 0.44, rep.FilledPrice)
	assert.Equal(t, 0, svc.PendingCount())
}

func TestExecuteLiveTimeoutCancels(t *testing.T) {
	api := &fakeOrderAPI{}
	svc := newTestService(api, false)

	rep := svc.Execute(context.Background(), testRequest())

	assert.Equal(t, domain.OrderCancelled, rep.Status)
	assert.Contains(t, rep.Error, domain.ErrOrderTimeout.Error())
	assert.Contains(t, api.cancelled, "ord-1")
	assert.Equal(t, 0, svc.PendingCount())
	assert.Equal(t, int64(1), svc.Stats().Cancelled)
}

func TestExecuteLiveExchangeCancel(t *testing.T) {
	api := &fakeOrderAPI{statuses: []string{"cancelled"}}
	svc := newTestService(api, false)

	rep := svc.Execute(context.Background(), testRequest())
	assert.Equal(t, domain.OrderCancelled, rep.Status)
	assert.Contains(t, rep.Error, "by exchange")
}

func TestCancelAllDrainsPending(t *testing.T) {
	api := &fakeOrderAPI{}
	svc := newTestService(api, false)

	// Seed pending directly to exercise the drain path.
	svc.mu.Lock()
	svc.pending["ord-a"] = testRequest()
	svc.pending["ord-b"] = testRequest()
	svc.mu.Unlock()

	n := svc.CancelAll(context.Background())
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, svc.PendingCount())
	assert.Len(t, api.cancelled, 2)
	assert.True(t, api.bulkCalled)
}

func TestCancelAllDryRunSkipsExchange(t *testing.T) {
	svc := newTestService(nil, true)

	svc.mu.Lock()
	svc.pending["ord-a"] = testRequest()
	svc.mu.Unlock()

	assert.Equal(t, 1, svc.CancelAll(context.Background()))
	assert.Equal(t, 0, svc.PendingCount())
}

func TestFillRateZeroSubmissions(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.FillRate())
	assert.Equal(t, 0.5, Stats{Submitted: 4, Filled: 2}.FillRate())
}
