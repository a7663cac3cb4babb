package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/logrelay/internal/adapter/repository/spool"
	"github.com/V4T54L/logrelay/internal/domain"
)

func TestEncodeDecodeRecord(t *testing.T) {
	record := domain.LogRecord{
		ID:         "3f1c",
		ReceivedAt: time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC),
		ClientIP:   "10.0.0.5",
		ClientPort: 5151,
		Level:      "WARN",
		Message:    "low memory",
		Tags:       []string{"mem"},
		Format:     domain.FormatCSV,
		Line:       "x,y\n",
	}
	payload, err := encodeRecord(record)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	got, err := decodeMessage(redis.XMessage{ID: "1700000000000-0", Values: map[string]interface{}{payloadField: payload}})
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.StreamMessageID != "1700000000000-0" {
		t.Errorf("StreamMessageID = %q", got.StreamMessageID)
	}
	if got.ID != record.ID || got.Line != record.Line || got.ClientPort != record.ClientPort || !got.ReceivedAt.Equal(record.ReceivedAt) {
		t.Errorf("decoded record mismatch: %+v", got)
	}
}

func TestDecodeMessage_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"Missing payload", map[string]interface{}{"data": "{}"}},
		{"Not JSON", map[string]interface{}{payloadField: "not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeMessage(redis.XMessage{ID: "1-0", Values: tt.values}); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

func TestPublish_FailsFastWhenUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	repo := NewRecordRepository(client, logger, "log_records", "log_records_dlq", nil)
	repo.isAvailable.Store(false)

	err := repo.Publish(context.Background(), domain.LogRecord{ID: "1"})
	if !errors.Is(err, ErrRedisNotAvailable) {
		t.Fatalf("expected ErrRedisNotAvailable, got %v", err)
	}
}

func TestPublish_SpoolsWhileUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Nothing listens on port 1, so every command fails quickly.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	sp, err := spool.New(t.TempDir(), 1024, 64*1024, logger)
	if err != nil {
		t.Fatalf("failed to create spool: %v", err)
	}
	defer sp.Close()

	repo := NewRecordRepository(client, logger, "log_records", "log_records_dlq", sp)

	t.Run("Network Error Spools And Marks Unavailable", func(t *testing.T) {
		if err := repo.Publish(context.Background(), domain.LogRecord{ID: "1", Line: "a\n"}); err != nil {
			t.Fatalf("expected record to be spooled, got %v", err)
		}
		if repo.isAvailable.Load() {
			t.Error("expected repository to be marked unavailable")
		}
	})

	t.Run("Unavailable Spools Without Calling Redis", func(t *testing.T) {
		if err := repo.Publish(context.Background(), domain.LogRecord{ID: "2", Line: "b\n"}); err != nil {
			t.Fatalf("expected record to be spooled, got %v", err)
		}
		if !sp.Pending() {
			t.Fatal("expected spooled records")
		}
	})

	t.Run("Failed Drain Keeps Records", func(t *testing.T) {
		repo.drainSpool(context.Background())
		if !sp.Pending() {
			t.Error("records must stay spooled while redis is unreachable")
		}
	})
}

func TestIsRedisBusyGroupError(t *testing.T) {
	if !isRedisBusyGroupError(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("expected BUSYGROUP error to be recognised")
	}
	if isRedisBusyGroupError(errors.New("ERR something else")) || isRedisBusyGroupError(nil) {
		t.Error("unexpected match")
	}
}
