package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/V4T54L/logrelay/internal/adapter/metrics"
	"github.com/V4T54L/logrelay/internal/domain"
	"github.com/V4T54L/logrelay/internal/domain/mocks"
)

func TestProcessLogsUseCase_ProcessBatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	testRecords := []domain.LogRecord{
		{ID: "1", StreamMessageID: "msg1", Message: "record 1"},
		{ID: "2", StreamMessageID: "msg2", Message: "record 2"},
	}

	t.Run("Successful Processing", func(t *testing.T) {
		buffer := &mocks.MockRecordBuffer{ReadBatchResult: testRecords}
		sink := &mocks.MockArchiveRepository{}
		m := metrics.NewIngestMetrics(prometheus.NewRegistry())
		uc := NewProcessLogsUseCase(buffer, sink, m, logger, "group", "consumer", 3, time.Millisecond)

		count, err := uc.ProcessBatch(context.Background())

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if count != len(testRecords) {
			t.Errorf("expected processed count to be %d, got %d", len(testRecords), count)
		}
		if len(sink.WrittenRecords) != 2 {
			t.Errorf("expected 2 records written to sink, got %d", len(sink.WrittenRecords))
		}
		if len(buffer.AckedMessageIDs) != 2 || buffer.AckedMessageIDs[0] != "msg1" {
			t.Errorf("expected msg1 and msg2 to be acked, got %v", buffer.AckedMessageIDs)
		}
		if len(buffer.DLQRecords) != 0 {
			t.Errorf("expected 0 records in DLQ, got %d", len(buffer.DLQRecords))
		}
		if got := testutil.ToFloat64(m.ArchivedRecords); got != 2 {
			t.Errorf("expected archived counter 2, got %v", got)
		}
	})

	t.Run("Sink Failure with Retry and DLQ", func(t *testing.T) {
		buffer := &mocks.MockRecordBuffer{ReadBatchResult: testRecords}
		sink := &mocks.MockArchiveRepository{WriteErr: errors.New("database is down")}
		uc := NewProcessLogsUseCase(buffer, sink, nil, logger, "group", "consumer", 2, time.Millisecond)

		count, err := uc.ProcessBatch(context.Background())

		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if count != 0 {
			t.Errorf("expected processed count to be 0, got %d", count)
		}
		if sink.WriteCalls != 2 {
			t.Errorf("expected 2 write attempts, got %d", sink.WriteCalls)
		}
		if len(buffer.DLQRecords) != 2 {
			t.Errorf("expected 2 records in DLQ, got %d", len(buffer.DLQRecords))
		}
		// Messages are acked once they are parked in the DLQ.
		if len(buffer.AckedMessageIDs) != 2 {
			t.Errorf("expected 2 messages to be acked, got %d", len(buffer.AckedMessageIDs))
		}
	})

	t.Run("DLQ Failure Leaves Records Pending", func(t *testing.T) {
		buffer := &mocks.MockRecordBuffer{ReadBatchResult: testRecords, DLQErr: errors.New("redis down")}
		sink := &mocks.MockArchiveRepository{WriteErr: errors.New("database is down")}
		uc := NewProcessLogsUseCase(buffer, sink, nil, logger, "group", "consumer", 1, time.Millisecond)

		if _, err := uc.ProcessBatch(context.Background()); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if len(buffer.AckedMessageIDs) != 0 {
			t.Errorf("expected nothing acked, got %v", buffer.AckedMessageIDs)
		}
	})

	t.Run("Buffer Read Error", func(t *testing.T) {
		buffer := &mocks.MockRecordBuffer{ReadErr: errors.New("redis connection failed")}
		sink := &mocks.MockArchiveRepository{}
		uc := NewProcessLogsUseCase(buffer, sink, nil, logger, "group", "consumer", 3, time.Millisecond)

		count, err := uc.ProcessBatch(context.Background())

		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if count != 0 {
			t.Errorf("expected processed count to be 0, got %d", count)
		}
		if sink.WriteCalls != 0 {
			t.Errorf("expected sink to be untouched, got %d calls", sink.WriteCalls)
		}
	})

	t.Run("Empty Batch", func(t *testing.T) {
		buffer := &mocks.MockRecordBuffer{}
		sink := &mocks.MockArchiveRepository{}
		uc := NewProcessLogsUseCase(buffer, sink, nil, logger, "group", "consumer", 3, time.Millisecond)

		count, err := uc.ProcessBatch(context.Background())
		if err != nil || count != 0 {
			t.Errorf("expected (0, nil), got (%d, %v)", count, err)
		}
		if sink.WriteCalls != 0 {
			t.Errorf("expected no writes for an empty batch, got %d", sink.WriteCalls)
		}
	})

	t.Run("Ack Error After Successful Write", func(t *testing.T) {
		buffer := &mocks.MockRecordBuffer{ReadBatchResult: testRecords, AckErr: errors.New("ack failed")}
		sink := &mocks.MockArchiveRepository{}
		uc := NewProcessLogsUseCase(buffer, sink, nil, logger, "group", "consumer", 3, time.Millisecond)

		if _, err := uc.ProcessBatch(context.Background()); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if len(sink.WrittenRecords) != 2 {
			t.Errorf("expected records to reach the sink, got %d", len(sink.WrittenRecords))
		}
	})
}

func TestProcessLogsUseCase_ProcessBatchSpans(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	records := []domain.LogRecord{{ID: "1", StreamMessageID: "msg1"}}

	ok := NewProcessLogsUseCase(&mocks.MockRecordBuffer{ReadBatchResult: records}, &mocks.MockArchiveRepository{}, nil, logger, "group", "consumer", 1, time.Millisecond)
	if _, err := ok.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	failing := NewProcessLogsUseCase(&mocks.MockRecordBuffer{ReadBatchResult: records}, &mocks.MockArchiveRepository{WriteErr: errors.New("database is down")}, nil, logger, "group", "consumer", 1, time.Millisecond)
	if _, err := failing.ProcessBatch(context.Background()); err == nil {
		t.Fatal("expected an error, got nil")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "ProcessBatch" {
			t.Errorf("span name = %q, want ProcessBatch", s.Name())
		}
	}

	var archived int64 = -1
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "records.archived" {
			archived = kv.Value.AsInt64()
		}
	}
	if archived != 1 {
		t.Errorf("records.archived = %d, want 1", archived)
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("successful batch should not be marked as an error")
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("failed batch status = %v, want Error", spans[1].Status().Code)
	}
}
