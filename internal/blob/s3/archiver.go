package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// BlobWriter is the narrow upload capability the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver copies each UTC day's execution records out of the primary store
// into object storage as JSONL. The primary store keeps its rows: the
// archive is an off-box audit copy, not a purge.
type Archiver struct {
	writer BlobWriter
	execs  domain.ExecutionStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, execs domain.ExecutionStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		execs:  execs,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay uploads all executions started on the given UTC day to
// archive/executions/YYYY-MM-DD.jsonl and returns the record count. A day
// with no executions uploads nothing.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int64, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	records, err := a.execs.ListSince(ctx, dayStart)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	inDay := records[:0:0]
	for _, rec := range records {
		if rec.StartedAt.Before(dayEnd) {
			inDay = append(inDay, rec)
		}
	}
	if len(inDay) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(inDay)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := fmt.Sprintf("archive/executions/%s.jsonl", dayStart.Format("2006-01-02"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.Info("archived executions",
		slog.String("path", path),
		slog.Int("count", len(inDay)))
	return int64(len(inDay)), nil
}

// Run archives the previous UTC day shortly after each midnight until ctx
// is cancelled. Failures are logged and retried on the next day boundary;
// the store still holds the rows.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 5, 0, 0, time.UTC).Add(24 * time.Hour)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		if _, err := a.ArchiveDay(ctx, time.Now().UTC().Add(-24*time.Hour)); err != nil {
			a.logger.Error("daily archive failed", slog.Any("error", err))
		}
	}
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
