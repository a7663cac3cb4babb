package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionLog is the only request action the service acts on.
const ActionLog = "Log"

// Supported on-disk encodings of a log record.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrMissingField is returned when a log request lacks a required parameter.
var ErrMissingField = errors.New("missing required field")

// LogRequest is the structured request a client sends over the wire.
type LogRequest struct {
	Action     string         `json:"Action"`
	Parameters *LogParameters `json:"Parameters"`
}

// LogParameters carries the record fields of a "Log" request. Pointer fields
// let validation tell an absent field from a zero value.
type LogParameters struct {
	Timestamp *string   `json:"Timestamp"`
	Level     *string   `json:"Level"`
	Message   *string   `json:"Message"`
	FileName  *string   `json:"FileName"`
	FileLine  *int      `json:"FileLine"`
	Tags      *[]string `json:"Tags"`
	Format    *string   `json:"Format,omitempty"`
}

// Validate reports the first required field that is absent.
func (p *LogParameters) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: Parameters", ErrMissingField)
	}
	switch {
	case p.Timestamp == nil:
		return fmt.Errorf("%w: Timestamp", ErrMissingField)
	case p.Level == nil:
		return fmt.Errorf("%w: Level", ErrMissingField)
	case p.Message == nil:
		return fmt.Errorf("%w: Message", ErrMissingField)
	case p.FileName == nil:
		return fmt.Errorf("%w: FileName", ErrMissingField)
	case p.FileLine == nil:
		return fmt.Errorf("%w: FileLine", ErrMissingField)
	case p.Tags == nil:
		return fmt.Errorf("%w: Tags", ErrMissingField)
	}
	return nil
}

// ResolvedFormat returns the lower-cased format, falling back to text for
// anything missing or unknown.
func (p *LogParameters) ResolvedFormat() string {
	if p == nil || p.Format == nil {
		return FormatText
	}
	switch f := strings.ToLower(*p.Format); f {
	case FormatText, FormatJSON, FormatCSV:
		return f
	default:
		return FormatText
	}
}

// Peer identifies the remote end of a client connection.
type Peer struct {
	IP   string
	Port int
}

func (p Peer) String() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// LogRecord is an accepted, rendered log line as mirrored to the archive.
type LogRecord struct {
	ID              string    `json:"record_id"`
	ReceivedAt      time.Time `json:"received_at"`
	ClientIP        string    `json:"client_ip"`
	ClientPort      int       `json:"client_port"`
	Timestamp       string    `json:"timestamp,omitempty"`
	Level           string    `json:"level,omitempty"`
	Message         string    `json:"message,omitempty"`
	FileName        string    `json:"file_name,omitempty"`
	FileLine        int       `json:"file_line,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Format          string    `json:"format,omitempty"`
	Line            string    `json:"line"`
	Raw             bool      `json:"raw,omitempty"`
	Redacted        bool      `json:"redacted,omitempty"`
	StreamMessageID string    `json:"-"`
}
