package postgres

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/V4T54L/logrelay/internal/domain"
)

func TestArchiveRepository_Integration(t *testing.T) {
	dsn := os.Getenv("LOGRELAY_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("LOGRELAY_TEST_POSTGRES_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}

	repo := NewArchiveRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	level, msg := "INFO", "archived"
	records := make([]domain.LogRecord, 0, 10)
	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		records = append(records, domain.LogRecord{
			ID: id, ReceivedAt: time.Now().UTC(), ClientIP: "127.0.0.1", ClientPort: 5000,
			Timestamp: "2025-02-20T10:00:00", Level: level, Message: msg, FileName: "a.go", FileLine: i,
			Tags: []string{"t"}, Format: domain.FormatText, Line: "line\n",
		})
	}
	t.Cleanup(func() {
		for _, id := range ids {
			db.Exec(`DELETE FROM log_records WHERE record_id = $1`, id)
		}
	})

	count := func() int {
		var n int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_records WHERE message = $1 AND record_id = ANY($2::uuid[])`, msg, pq.Array(ids)).Scan(&n)
		if err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		return n
	}

	if err := repo.WriteRecordBatch(ctx, records); err != nil {
		t.Fatalf("WriteRecordBatch failed: %v", err)
	}
	if got := count(); got != 10 {
		t.Fatalf("expected 10 rows, got %d", got)
	}

	// Re-delivery of the same batch must not duplicate rows.
	if err := repo.WriteRecordBatch(ctx, records); err != nil {
		t.Fatalf("second WriteRecordBatch failed: %v", err)
	}
	if got := count(); got != 10 {
		t.Fatalf("idempotency failed: expected 10 rows, got %d", got)
	}
}
