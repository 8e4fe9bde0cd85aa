// Package execution drives approved orders through their lifecycle against
// the exchange, in either simulated or live mode.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// OrderAPI is the exchange surface the live path needs. Implemented by the
// CLOB client and by test doubles.
type OrderAPI interface {
	Submit(ctx context.Context, req domain.OrderRequest) (orderID string, err error)
	Status(ctx context.Context, orderID string) (string, error)
	Cancel(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context) error
}

// Stats counts terminal order outcomes.
type Stats struct {
	Submitted int64
	Filled    int64
	Cancelled int64
	Rejected  int64
}

// FillRate is the fraction of submitted orders that filled.
func (s Stats) FillRate() float64 {
	if s.Submitted == 0 {
		return 0
	}
	return float64(s.Filled) / float64(s.Submitted)
}

// Service executes approved order requests. Errors from the exchange never
// propagate to the caller; every outcome is a terminal ExecutionReport.
type Service struct {
	cfg    config.ExecutionConfig
	api    OrderAPI
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]domain.OrderRequest
	stats   Stats
}

// NewService creates a Service. api may be nil when cfg.DryRun is set.
func NewService(cfg config.ExecutionConfig, api OrderAPI, logger *slog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		api:     api,
		logger:  logger.With(slog.String("component", "execution")),
		now:     time.Now,
		pending: map[string]domain.OrderRequest{},
	}
}

// Execute runs the order to a terminal state and reports it. In dry-run mode
// the fill is synthesized at the requested price after a fixed latency; in
// live mode the order is submitted and polled until fill, cancel, or timeout.
func (s *Service) Execute(ctx context.Context, req domain.OrderRequest) domain.ExecutionReport {
	s.mu.Lock()
	s.stats.Submitted++
	s.mu.Unlock()

	if s.cfg.DryRun {
		return s.executeDryRun(ctx, req)
	}
	return s.executeLive(ctx, req)
}

func (s *Service) executeDryRun(ctx context.Context, req domain.OrderRequest) domain.ExecutionReport {
	select {
	case <-ctx.Done():
		return s.terminal(domain.ExecutionReport{
			Request: req,
			Status:  domain.OrderCancelled,
			Error:   ctx.Err().Error(),
		})
	case <-time.After(s.cfg.DryRunLatency.Duration):
	}

	now := s.now()
	orderID := fmt.Sprintf("sim-%d", now.UnixNano())
	s.logger.Info("simulated fill",
		slog.String("order_id", orderID),
		slog.String("side", string(req.Intent.Side)),
		slog.Float64("price", req.Intent.Price),
		slog.Float64("size", req.ApprovedSize),
	)
	return s.terminal(domain.ExecutionReport{
		OrderID:     orderID,
		Request:     req,
		Status:      domain.OrderFilled,
		FilledSize:  req.ApprovedSize,
		FilledPrice: req.Intent.Price,
		FilledAt:    now,
	})
}

func (s *Service) executeLive(ctx context.Context, req domain.OrderRequest) domain.ExecutionReport {
	orderID, err := s.api.Submit(ctx, req)
	if err != nil {
		// Submission failures surface as REJECTED, never as an error.
		s.logger.Warn("order submission failed", slog.String("error", err.Error()))
		return s.terminal(domain.ExecutionReport{
			Request: req,
			Status:  domain.OrderRejected,
			Error:   err.Error(),
		})
	}

	s.mu.Lock()
	s.pending[orderID] = req
	s.mu.Unlock()

	s.logger.Info("order submitted",
		slog.String("order_id", orderID),
		slog.String("side", string(req.Intent.Side)),
		slog.Float64("price", req.Intent.Price),
		slog.Float64("size", req.ApprovedSize),
	)

	deadline := s.now().Add(s.cfg.OrderTimeout.Duration)
	for {
		if s.now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			_ = s.api.Cancel(context.WithoutCancel(ctx), orderID)
			return s.finish(orderID, domain.ExecutionReport{
				OrderID: orderID,
				Request: req,
				Status:  domain.OrderCancelled,
				Error:   ctx.Err().Error(),
			})
		case <-time.After(s.cfg.PollInterval.Duration):
		}

		status, err := s.api.Status(ctx, orderID)
		if err != nil {
			s.logger.Warn("order status check failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		switch strings.ToLower(status) {
		case "matched", "filled":
			return s.finish(orderID, domain.ExecutionReport{
				OrderID:     orderID,
				Request:     req,
				Status:      domain.OrderFilled,
				FilledSize:  req.ApprovedSize,
				FilledPrice: req.Intent.Price,
				FilledAt:    s.now(),
			})
		case "cancelled", "canceled", "expired":
			return s.finish(orderID, domain.ExecutionReport{
				OrderID: orderID,
				Request: req,
				Status:  domain.OrderCancelled,
				Error:   "order " + status + " by exchange",
			})
		case "rejected":
			return s.finish(orderID, domain.ExecutionReport{
				OrderID: orderID,
				Request: req,
				Status:  domain.OrderRejected,
				Error:   "order rejected by exchange",
			})
		}
	}

	// Unfilled at the deadline: cancel and report a timeout.
	if err := s.api.Cancel(ctx, orderID); err != nil {
		s.logger.Warn("cancel after timeout failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
	return s.finish(orderID, domain.ExecutionReport{
		OrderID: orderID,
		Request: req,
		Status:  domain.OrderCancelled,
		Error:   fmt.Sprintf("order timed out after %s: %s", s.cfg.OrderTimeout.Duration, domain.ErrOrderTimeout),
	})
}

// finish removes the order from the pending table and records the outcome.
func (s *Service) finish(orderID string, rep domain.ExecutionReport) domain.ExecutionReport {
	s.mu.Lock()
	delete(s.pending, orderID)
	s.mu.Unlock()
	return s.terminal(rep)
}

func (s *Service) terminal(rep domain.ExecutionReport) domain.ExecutionReport {
	rep.Timestamp = s.now()
	s.mu.Lock()
	switch rep.Status {
	case domain.OrderFilled:
		s.stats.Filled++
	case domain.OrderCancelled:
		s.stats.Cancelled++
	case domain.OrderRejected:
		s.stats.Rejected++
	}
	s.mu.Unlock()
	return rep
}

// CancelAll cancels every pending order individually, then attempts a bulk
// cancel as a best-effort fallback. Partial failures are logged, not
// returned. Reports how many orders were pending.
func (s *Service) CancelAll(ctx context.Context) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = map[string]domain.OrderRequest{}
	s.mu.Unlock()

	if s.cfg.DryRun || s.api == nil {
		return len(ids)
	}
	for _, id := range ids {
		if err := s.api.Cancel(ctx, id); err != nil {
			s.logger.Warn("cancel failed", slog.String("order_id", id), slog.String("error", err.Error()))
		}
	}
	if err := s.api.CancelAll(ctx); err != nil {
		s.logger.Warn("bulk cancel failed", slog.String("error", err.Error()))
	}
	return len(ids)
}

// PendingCount reports how many orders are in flight.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stats returns a copy of the outcome counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
