package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a snapshot store backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectQuery = `
	SELECT token_id, outcome, best_bid, best_ask, mid_price, spread_pct,
		bid_liquidity, ask_liquidity, oracle_asset, oracle_price,
		strike_price, flow_imbalance, dist_to_strike_pct,
		minutes_since_open, minutes_until_close, session, taken_at
	FROM market_snapshots`

func scanSnapshotRows(rows pgx.Rows) ([]domain.MarketSnapshot, error) {
	var snaps []domain.MarketSnapshot
	for rows.Next() {
		var snap domain.MarketSnapshot
		var outcome, session string

		if err := rows.Scan(
			&snap.TokenID, &outcome,
			&snap.BestBid, &snap.BestAsk, &snap.MidPrice, &snap.SpreadPct,
			&snap.BidLiquidity, &snap.AskLiquidity,
			&snap.OracleAsset, &snap.OraclePrice,
			&snap.StrikePrice, &snap.OrderFlowImbalance, &snap.DistanceToStrikePct,
			&snap.MinutesSinceOpen, &snap.MinutesUntilClose,
			&session, &snap.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snap.Outcome = domain.Outcome(outcome)
		snap.Session = domain.MarketSession(session)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Insert persists one throttled market snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.MarketSnapshot) error {
	const query = `
		INSERT INTO market_snapshots (
			token_id, outcome, best_bid, best_ask, mid_price, spread_pct,
			bid_liquidity, ask_liquidity, oracle_asset, oracle_price,
			strike_price, flow_imbalance, dist_to_strike_pct,
			minutes_since_open, minutes_until_close, session, taken_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		snap.TokenID, string(snap.Outcome),
		snap.BestBid, snap.BestAsk, snap.MidPrice, snap.SpreadPct,
		snap.BidLiquidity, snap.AskLiquidity,
		snap.OracleAsset, snap.OraclePrice,
		snap.StrikePrice, snap.OrderFlowImbalance, snap.DistanceToStrikePct,
		snap.MinutesSinceOpen, snap.MinutesUntilClose,
		string(snap.Session), snap.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.TokenID, err)
	}
	return nil
}

// ListByToken returns snapshots for one token, newest first.
func (s *SnapshotStore) ListByToken(ctx context.Context, tokenID string, opts domain.ListOpts) ([]domain.MarketSnapshot, error) {
	query := snapshotSelectQuery + ` WHERE token_id = $1`
	args := []any{tokenID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND taken_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND taken_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY taken_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots for %s: %w", tokenID, err)
	}
	defer rows.Close()

	return scanSnapshotRows(rows)
}

// ListBefore returns all snapshots taken strictly before the cutoff, oldest
// first. Used by the archiver.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		snapshotSelectQuery+` WHERE taken_at < $1 ORDER BY taken_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before %s: %w", before, err)
	}
	defer rows.Close()

	return scanSnapshotRows(rows)
}

// DeleteBefore removes snapshots taken before cutoff and returns the number
// of rows deleted. The archiver calls this after uploading the aged rows.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM market_snapshots WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
