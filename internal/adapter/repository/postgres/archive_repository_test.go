package postgres

import (
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/V4T54L/logrelay/internal/domain"
)

func TestCopyRow(t *testing.T) {
	received := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)

	t.Run("Structured record", func(t *testing.T) {
		row := copyRow(domain.LogRecord{
			ID: "a", ReceivedAt: received, ClientIP: "10.0.0.1", ClientPort: 9,
			Timestamp: "ts", Level: "INFO", Message: "m", FileName: "f.go", FileLine: 3,
			Tags: []string{"x", "y"}, Format: "json", Line: "{}\n",
		})
		if len(row) != len(archiveColumns) {
			t.Fatalf("row has %d values, want %d", len(row), len(archiveColumns))
		}
		tags, ok := row[9].(pq.StringArray)
		if !ok || len(tags) != 2 {
			t.Errorf("tags column = %#v", row[9])
		}
		if row[11] != "{}\n" || row[12] != false {
			t.Errorf("line/raw columns = %v, %v", row[11], row[12])
		}
	})

	t.Run("Raw record", func(t *testing.T) {
		row := copyRow(domain.LogRecord{ID: "b", ReceivedAt: received, ClientIP: "10.0.0.1", Line: "plain\n", Raw: true})
		if len(row) != len(archiveColumns) {
			t.Fatalf("row has %d values, want %d", len(row), len(archiveColumns))
		}
		for i := 4; i <= 10; i++ {
			if row[i] != nil {
				t.Errorf("column %s = %v, want NULL for raw lines", archiveColumns[i], row[i])
			}
		}
		if row[12] != true {
			t.Errorf("raw column = %v", row[12])
		}
	})
}
