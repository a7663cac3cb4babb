package domain

import (
	"context"
	"time"
)

// RateLimiter decides whether a client may submit another log record.
type RateLimiter interface {
	// Admit records a submission at now and reports whether the client is
	// still within its quota. It never fails; backends that can fail must
	// pick a decision themselves.
	Admit(ctx context.Context, clientID string, now time.Time) bool
}

// LogStore appends rendered lines to the log file for a given day.
type LogStore interface {
	// Append writes line to the file for date. Each call is atomic with
	// respect to other Append calls.
	Append(ctx context.Context, date time.Time, line string) error
}

// RecordPublisher mirrors accepted records to a downstream buffer.
type RecordPublisher interface {
	Publish(ctx context.Context, record LogRecord) error
}

// RecordBuffer is the consumer side of the mirror buffer.
type RecordBuffer interface {
	// ReadRecordBatch reads up to count unacknowledged records for consumer.
	ReadRecordBatch(ctx context.Context, group, consumer string, count int) ([]LogRecord, error)

	// AcknowledgeRecords marks records as archived.
	AcknowledgeRecords(ctx context.Context, group string, messageIDs ...string) error

	// MoveToDLQ parks records that could not be archived.
	MoveToDLQ(ctx context.Context, records []LogRecord) error
}

// ArchiveRepository is the durable sink the consumer writes records to.
type ArchiveRepository interface {
	WriteRecordBatch(ctx context.Context, records []LogRecord) error
}

// StreamAdminRepository exposes operational views of the mirror stream.
type StreamAdminRepository interface {
	GetGroupInfo(ctx context.Context, stream string) ([]ConsumerGroupInfo, error)
	GetPendingSummary(ctx context.Context, stream, group string) (*PendingMessageSummary, error)
	TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error)
}
