package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/logrelay/internal/domain"
)

const (
	archiveTableName = "log_records"
	stagingTableName = "log_records_staging"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS log_records (
	record_id   UUID PRIMARY KEY,
	received_at TIMESTAMPTZ NOT NULL,
	client_ip   TEXT NOT NULL,
	client_port INTEGER NOT NULL,
	timestamp   TEXT,
	level       TEXT,
	message     TEXT,
	file_name   TEXT,
	file_line   INTEGER,
	tags        TEXT[],
	format      TEXT,
	line        TEXT NOT NULL,
	raw         BOOLEAN NOT NULL DEFAULT FALSE,
	redacted    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS log_records_received_at_idx ON log_records (received_at);
`

var archiveColumns = []string{
	"record_id", "received_at", "client_ip", "client_port", "timestamp", "level",
	"message", "file_name", "file_line", "tags", "format", "line", "raw", "redacted",
}

// ArchiveRepository writes mirrored log records into PostgreSQL.
type ArchiveRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewArchiveRepository creates a new PostgreSQL archive repository.
func NewArchiveRepository(db *sql.DB, logger *slog.Logger) *ArchiveRepository {
	return &ArchiveRepository{db: db, logger: logger.With("component", "postgres_archive")}
}

// EnsureSchema creates the archive table if it does not exist.
func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// WriteRecordBatch loads records with COPY into a staging table and merges
// them into the archive. Re-delivered records are ignored by record_id, so
// replays after a failed acknowledgement are harmless.
func (r *ArchiveRepository) WriteRecordBatch(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+stagingTableName+` (LIKE `+archiveTableName+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(stagingTableName, archiveColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare COPY: %w", err)
	}

	for _, rec := range records {
		_, err = stmt.ExecContext(ctx, copyRow(rec)...)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to stage record %s: %w", rec.ID, err)
		}
	}

	// An empty Exec flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush COPY: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close COPY: %w", err)
	}

	_, err = txn.ExecContext(ctx, `
		INSERT INTO `+archiveTableName+`
		SELECT * FROM `+stagingTableName+`
		ON CONFLICT (record_id) DO NOTHING;`)
	if err != nil {
		return fmt.Errorf("failed to merge staged records: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive batch: %w", err)
	}
	r.logger.Debug("archived record batch", "count", len(records))
	return nil
}

// copyRow orders a record's values to match archiveColumns. Raw lines carry
// no structured fields, so those columns are NULL.
func copyRow(rec domain.LogRecord) []interface{} {
	row := []interface{}{rec.ID, rec.ReceivedAt, rec.ClientIP, rec.ClientPort}
	if rec.Raw {
		row = append(row, nil, nil, nil, nil, nil, nil, nil)
	} else {
		row = append(row, rec.Timestamp, rec.Level, rec.Message, rec.FileName, rec.FileLine, pq.StringArray(rec.Tags), rec.Format)
	}
	return append(row, rec.Line, rec.Raw, rec.Redacted)
}
