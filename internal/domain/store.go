package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists open positions so a restart can resume them.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice, realizedPnL float64, closedAt time.Time) error
	Delete(ctx context.Context, id string) error
	ListOpen(ctx context.Context) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListRecent(ctx context.Context, limit int) ([]Trade, error)
	ListByToken(ctx context.Context, tokenID string, opts ListOpts) ([]Trade, error)
	SumRealizedPnL(ctx context.Context, since time.Time) (float64, error)
}

// SnapshotStore persists throttled market snapshots for later analysis.
type SnapshotStore interface {
	Insert(ctx context.Context, snap MarketSnapshot) error
	ListByToken(ctx context.Context, tokenID string, opts ListOpts) ([]MarketSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
