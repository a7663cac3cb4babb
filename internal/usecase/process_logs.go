package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/logrelay/internal/adapter/metrics"
	"github.com/V4T54L/logrelay/internal/domain"
)

const (
	defaultBatchSize    = 500
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
)

// ProcessLogsUseCase drains mirrored records from the stream buffer into the
// archive database.
type ProcessLogsUseCase struct {
	buffer       domain.RecordBuffer
	sink         domain.ArchiveRepository
	metrics      *metrics.IngestMetrics
	logger       *slog.Logger
	group        string
	consumer     string
	batchSize    int
	retryCount   int
	retryBackoff time.Duration
}

// NewProcessLogsUseCase creates a new use case for archiving records. m may be nil.
func NewProcessLogsUseCase(buffer domain.RecordBuffer, sink domain.ArchiveRepository, m *metrics.IngestMetrics, logger *slog.Logger, group, consumer string, retryCount int, retryBackoff time.Duration) *ProcessLogsUseCase {
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	return &ProcessLogsUseCase{
		buffer:       buffer,
		sink:         sink,
		metrics:      m,
		logger:       logger.With("component", "process_logs", "consumer", consumer),
		group:        group,
		consumer:     consumer,
		batchSize:    defaultBatchSize,
		retryCount:   retryCount,
		retryBackoff: retryBackoff,
	}
}

// ProcessBatch reads a batch of records, writes it to the archive and
// acknowledges it. A batch that keeps failing is moved to the dead-letter
// stream and acknowledged so it does not block the group.
func (uc *ProcessLogsUseCase) ProcessBatch(ctx context.Context) (n int, err error) {
	ctx, span := otel.Tracer("process-logs").Start(ctx, "ProcessBatch")
	defer func() {
		span.SetAttributes(attribute.Int("records.archived", n))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch not archived")
		}
		span.End()
	}()

	records, err := uc.buffer.ReadRecordBatch(ctx, uc.group, uc.consumer, uc.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read record batch: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("records.read", len(records)))
	uc.logger.Debug("read record batch", "count", len(records))

	messageIDs := make([]string, len(records))
	for i, rec := range records {
		messageIDs[i] = rec.StreamMessageID
	}

	writeErr := uc.writeWithRetry(ctx, records)
	if writeErr != nil {
		if ctx.Err() != nil {
			// Left pending; the next run re-reads them.
			return 0, writeErr
		}
		uc.logger.Error("archive write failed after retries, moving batch to DLQ", "count", len(records), "error", writeErr)
		if err := uc.buffer.MoveToDLQ(ctx, records); err != nil {
			return 0, fmt.Errorf("failed to move batch to DLQ: %w (write error: %v)", err, writeErr)
		}
	}

	if err := uc.buffer.AcknowledgeRecords(ctx, uc.group, messageIDs...); err != nil {
		// The archive upsert ignores duplicates, so a re-delivery is safe.
		return 0, fmt.Errorf("failed to acknowledge records: %w", err)
	}

	if writeErr != nil {
		return 0, fmt.Errorf("failed to archive record batch: %w", writeErr)
	}

	if uc.metrics != nil {
		uc.metrics.ArchivedRecords.Add(float64(len(records)))
	}
	uc.logger.Info("archived record batch", "count", len(records))
	return len(records), nil
}

func (uc *ProcessLogsUseCase) writeWithRetry(ctx context.Context, records []domain.LogRecord) error {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		err := uc.sink.WriteRecordBatch(ctx, records)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write batch to archive, retrying", "attempt", i+1, "error", err)
		if i == uc.retryCount-1 {
			break
		}
		select {
		case <-time.After(uc.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
