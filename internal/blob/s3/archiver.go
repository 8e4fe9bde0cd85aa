package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// SnapshotArchiveStore provides read access to aged snapshots.
type SnapshotArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.MarketSnapshot, error)
}

// TradeArchiveStore provides read access to aged trades.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// Archiver implements domain.Archiver by querying the stores for rows older
// than a cutoff, serialising them to JSONL, and uploading to object storage.
//
// Deleting the archived rows from the primary store is a separate, explicit
// step taken by the caller after the upload succeeds.
type Archiver struct {
	writer    domain.BlobWriter
	snapshots SnapshotArchiveStore
	trades    TradeArchiveStore
	logger    *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an archiver writing through the given blob writer.
func NewArchiver(writer domain.BlobWriter, snapshots SnapshotArchiveStore, trades TradeArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		snapshots: snapshots,
		trades:    trades,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSnapshots uploads all snapshots taken before the cutoff to
// archive/snapshots/YYYY-MM-DD.jsonl and returns the row count.
func (a *Archiver) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snapshots.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := archivePath("snapshots", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	a.logger.Info("snapshots archived",
		slog.String("path", path),
		slog.Int("count", len(snaps)),
	)
	return int64(len(snaps)), nil
}

// ArchiveTrades uploads all trades executed before the cutoff to
// archive/trades/YYYY-MM-DD.jsonl and returns the row count.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	a.logger.Info("trades archived",
		slog.String("path", path),
		slog.Int("count", len(trades)),
	)
	return int64(len(trades)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// day of the cutoff, e.g. archive/snapshots/2026-08-30.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
