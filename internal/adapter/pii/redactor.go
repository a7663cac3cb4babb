package pii

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/V4T54L/logrelay/internal/domain"
	"github.com/V4T54L/logrelay/internal/format"
)

// RedactedPlaceholder replaces the value of every scrubbed field.
const RedactedPlaceholder = "[REDACTED]"

// Fields a Redactor can scrub, named after their archive columns.
const (
	FieldClientIP  = "client_ip"
	FieldTimestamp = "timestamp"
	FieldLevel     = "level"
	FieldMessage   = "message"
	FieldFileName  = "file_name"
	FieldTags      = "tags"
)

var knownFields = map[string]struct{}{
	FieldClientIP: {}, FieldTimestamp: {}, FieldLevel: {}, FieldMessage: {}, FieldFileName: {}, FieldTags: {},
}

// Redactor scrubs sensitive fields from records before they leave the host.
// The daily log file is never touched; only mirrored copies are redacted.
type Redactor struct {
	fieldsToRedact map[string]struct{}
	logger         *slog.Logger
}

// NewRedactor creates a Redactor for the given archive column names.
func NewRedactor(fields []string, logger *slog.Logger) (*Redactor, error) {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(strings.ToLower(field))
		if field == "" {
			continue
		}
		if _, ok := knownFields[field]; !ok {
			return nil, fmt.Errorf("cannot redact unknown field %q", field)
		}
		fieldSet[field] = struct{}{}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger.With("component", "pii_redactor"),
	}, nil
}

// Redact replaces the configured fields of record in place and reports
// whether anything changed. Structured records get their rendered line
// rebuilt so the line never carries a redacted value. Raw lines are opaque
// and keep their text.
func (r *Redactor) Redact(record *domain.LogRecord) bool {
	if len(r.fieldsToRedact) == 0 {
		return false
	}

	redacted := false
	scrub := func(field string, value *string) {
		if _, ok := r.fieldsToRedact[field]; ok && *value != "" {
			*value = RedactedPlaceholder
			redacted = true
		}
	}

	scrub(FieldClientIP, &record.ClientIP)
	if record.Raw {
		record.Redacted = record.Redacted || redacted
		return redacted
	}

	scrub(FieldTimestamp, &record.Timestamp)
	scrub(FieldLevel, &record.Level)
	scrub(FieldMessage, &record.Message)
	scrub(FieldFileName, &record.FileName)
	if _, ok := r.fieldsToRedact[FieldTags]; ok && len(record.Tags) > 0 {
		record.Tags = []string{RedactedPlaceholder}
		redacted = true
	}

	if !redacted {
		return false
	}
	record.Redacted = true

	line, err := format.Render(parametersOf(record), domain.Peer{IP: record.ClientIP, Port: record.ClientPort})
	if err != nil {
		// Fall back to dropping the line rather than leaking it.
		r.logger.Error("failed to re-render redacted record", "record_id", record.ID, "error", err)
		line = RedactedPlaceholder + "\n"
	}
	record.Line = line
	return true
}

func parametersOf(record *domain.LogRecord) *domain.LogParameters {
	tags := append([]string{}, record.Tags...)
	return &domain.LogParameters{
		Timestamp: &record.Timestamp,
		Level:     &record.Level,
		Message:   &record.Message,
		FileName:  &record.FileName,
		FileLine:  &record.FileLine,
		Tags:      &tags,
		Format:    &record.Format,
	}
}
