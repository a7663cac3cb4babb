package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/logrelay/internal/adapter/repository/spool"
	"github.com/V4T54L/logrelay/internal/domain"
)

const payloadField = "payload"

// ErrRedisNotAvailable is returned while the health check considers Redis down.
var ErrRedisNotAvailable = errors.New("redis is not available")

// RecordRepository mirrors accepted log records into a Redis Stream and
// serves them back to archive consumers.
type RecordRepository struct {
	client       *redis.Client
	logger       *slog.Logger
	streamKey    string
	dlqStreamKey string
	readBlock    time.Duration
	spool        *spool.Spool
	isAvailable  atomic.Bool
}

// NewRecordRepository creates a new Redis-backed RecordRepository. When sp is
// non-nil, records published while Redis is unreachable are held there and
// forwarded by the health check once it recovers.
func NewRecordRepository(client *redis.Client, logger *slog.Logger, streamKey, dlqStreamKey string, sp *spool.Spool) *RecordRepository {
	repo := &RecordRepository{
		client:       client,
		logger:       logger.With("component", "redis_record_repository", "stream", streamKey),
		streamKey:    streamKey,
		dlqStreamKey: dlqStreamKey,
		readBlock:    2 * time.Second,
		spool:        sp,
	}
	repo.isAvailable.Store(true) // Assume available initially
	return repo
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (r *RecordRepository) EnsureGroup(ctx context.Context, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, r.streamKey, group, "0").Err()
	if err != nil && !isRedisBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// StartHealthCheck pings Redis every interval and flips availability so
// publishing fails fast while Redis is down. While Redis is up, spooled
// records are forwarded to the stream.
func (r *RecordRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Starting Redis health check")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			if err := r.client.Ping(ctx).Err(); err != nil {
				if r.isAvailable.CompareAndSwap(true, false) {
					r.logger.Error("Redis connection lost", "error", err)
				}
				continue
			}
			if r.isAvailable.CompareAndSwap(false, true) {
				r.logger.Info("Redis connection recovered")
			}
			r.drainSpool(ctx)
		}
	}
}

// Publish appends record to the stream, or to the spool while Redis is down.
func (r *RecordRepository) Publish(ctx context.Context, record domain.LogRecord) error {
	if !r.isAvailable.Load() {
		return r.spoolOrFail(ctx, record, ErrRedisNotAvailable)
	}

	if err := r.xadd(ctx, record); err != nil {
		if isNetworkError(err) {
			if r.isAvailable.CompareAndSwap(true, false) {
				r.logger.Error("Redis connection lost during publish", "error", err)
			}
			return r.spoolOrFail(ctx, record, err)
		}
		return err
	}
	return nil
}

func (r *RecordRepository) xadd(ctx context.Context, record domain.LogRecord) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: r.streamKey,
		Values: map[string]interface{}{payloadField: payload},
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return nil
}

func (r *RecordRepository) spoolOrFail(ctx context.Context, record domain.LogRecord, cause error) error {
	if r.spool == nil {
		return cause
	}
	if err := r.spool.Write(ctx, record); err != nil {
		return errors.Join(cause, err)
	}
	return nil
}

// drainSpool forwards spooled records to the stream. A failure leaves the
// rest spooled for the next health check tick.
func (r *RecordRepository) drainSpool(ctx context.Context) {
	if r.spool == nil || !r.spool.Pending() {
		return
	}
	n, err := r.spool.Drain(ctx, func(record domain.LogRecord) error {
		return r.xadd(ctx, record)
	})
	if err != nil {
		r.logger.Warn("Spool drain interrupted", "forwarded", n, "error", err)
		return
	}
	r.logger.Info("Forwarded spooled records to stream", "count", n)
}

// ReadRecordBatch reads a batch of records for consumer. Entries already
// delivered to this consumer but never acknowledged are returned first, so a
// restarted archiver picks up where it stopped.
func (r *RecordRepository) ReadRecordBatch(ctx context.Context, group, consumer string, count int) ([]domain.LogRecord, error) {
	records, err := r.readGroup(ctx, group, consumer, count, "0", -1)
	if err != nil || len(records) > 0 {
		return records, err
	}
	return r.readGroup(ctx, group, consumer, count, ">", r.readBlock)
}

// readGroup runs XREADGROUP from id. A negative block omits BLOCK.
func (r *RecordRepository) readGroup(ctx context.Context, group, consumer string, count int, id string, block time.Duration) ([]domain.LogRecord, error) {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.streamKey, id},
		Count:    int64(count),
		Block:    block,
	}

	streams, err := r.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XREADGROUP from redis: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	records := make([]domain.LogRecord, 0, len(streams[0].Messages))
	var unreadable []string
	for _, msg := range streams[0].Messages {
		record, err := decodeMessage(msg)
		if err != nil {
			r.logger.Warn("Dropping unreadable stream message", "message_id", msg.ID, "error", err)
			unreadable = append(unreadable, msg.ID)
			continue
		}
		records = append(records, record)
	}
	if len(unreadable) > 0 {
		if err := r.AcknowledgeRecords(ctx, group, unreadable...); err != nil {
			r.logger.Error("Failed to acknowledge unreadable messages", "error", err)
		}
	}
	return records, nil
}

// AcknowledgeRecords acknowledges archived messages in the stream.
func (r *RecordRepository) AcknowledgeRecords(ctx context.Context, group string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, r.streamKey, group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to XACK messages in redis: %w", err)
	}
	return nil
}

// MoveToDLQ copies records that could not be archived to the dead-letter stream.
func (r *RecordRepository) MoveToDLQ(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, record := range records {
		payload, err := encodeRecord(record)
		if err != nil {
			r.logger.Error("Failed to marshal record for DLQ", "record_id", record.ID, "error", err)
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.dlqStreamKey,
			Values: map[string]interface{}{
				payloadField:      payload,
				"original_stream": r.streamKey,
				"original_msg_id": record.StreamMessageID,
				"failed_at":       time.Now().UTC().Format(time.RFC3339),
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute DLQ pipeline: %w", err)
	}
	r.logger.Warn("Moved records to DLQ", "count", len(records))
	return nil
}

func encodeRecord(record domain.LogRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal log record: %w", err)
	}
	return string(payload), nil
}

func decodeMessage(msg redis.XMessage) (domain.LogRecord, error) {
	var record domain.LogRecord
	payload, ok := msg.Values[payloadField].(string)
	if !ok {
		return record, fmt.Errorf("message has no %q field", payloadField)
	}
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return record, fmt.Errorf("failed to unmarshal log record: %w", err)
	}
	record.StreamMessageID = msg.ID
	return record, nil
}

func isRedisBusyGroupError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
