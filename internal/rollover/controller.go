// Package rollover decides when the bot must move from the expiring hourly
// instrument to the next one.
package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/config"
	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// InstrumentResolver finds the instrument instance that is active (or about
// to be active) at a given time. Implemented by the Gamma discovery client
// and by sim-mode synthesizers.
type InstrumentResolver interface {
	Resolve(ctx context.Context, at time.Time) (domain.Instrument, error)
}

// Controller checks once per tick whether the active instrument is close
// enough to expiry to roll. It only decides; the engine performs the port
// swap and inventory handling.
type Controller struct {
	cfg      config.RolloverConfig
	resolver InstrumentResolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewController creates a Controller.
func NewController(cfg config.RolloverConfig, resolver InstrumentResolver, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "rollover")),
		now:      time.Now,
	}
}

// Check returns the next instrument when a roll is due, or nil when the
// current instrument should keep running. Resolving the same instrument
// again is a normal no-op: the schedule has not advanced yet.
func (c *Controller) Check(ctx context.Context, current domain.Instrument) (*domain.Instrument, error) {
	now := c.now()
	if current.ExpiryTime.Sub(now) > c.cfg.LeadTime.Duration {
		return nil, nil
	}

	// Resolve the window the current one rolls into, not "now": inside the
	// lead window "now" still maps to the expiring instrument.
	next, err := c.resolver.Resolve(ctx, current.ExpiryTime.Add(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("rollover: resolve next instrument: %w", err)
	}
	if next.Slug == current.Slug {
		return nil, nil
	}

	c.logger.Info("rollover due",
		slog.String("from", current.Slug),
		slog.String("to", next.Slug),
		slog.Duration("until_expiry", current.ExpiryTime.Sub(now)),
	)
	return &next, nil
}
