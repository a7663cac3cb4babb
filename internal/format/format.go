// Package format renders validated log parameters into the line encodings
// written to the daily log files.
package format

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/V4T54L/logrelay/internal/domain"
)

// Tag separators differ per encoding and are part of the file format.
const (
	textTagSeparator = ", "
	csvTagSeparator  = ";"
)

type jsonLine struct {
	Timestamp  string   `json:"timestamp"`
	ClientIP   string   `json:"clientIp"`
	ClientPort int      `json:"clientPort"`
	Level      string   `json:"level"`
	Message    string   `json:"message"`
	FileName   string   `json:"fileName"`
	FileLine   int      `json:"fileLine"`
	Tags       []string `json:"tags"`
}

// Render returns the newline-terminated line for params in its resolved
// format. It fails with domain.ErrMissingField when a required field is absent.
func Render(params *domain.LogParameters, peer domain.Peer) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	switch params.ResolvedFormat() {
	case domain.FormatJSON:
		return renderJSON(params, peer)
	case domain.FormatCSV:
		return renderCSV(params, peer)
	default:
		return renderText(params, peer), nil
	}
}

func renderText(p *domain.LogParameters, peer domain.Peer) string {
	return fmt.Sprintf("%s %s:%d [%s] - %s (%s:%d)[%s]\n",
		*p.Timestamp,
		peer.IP,
		peer.Port,
		*p.Level,
		*p.Message,
		*p.FileName,
		*p.FileLine,
		strings.Join(*p.Tags, textTagSeparator),
	)
}

func renderJSON(p *domain.LogParameters, peer domain.Peer) (string, error) {
	tags := *p.Tags
	if tags == nil {
		tags = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode terminates the value with '\n'.
	err := enc.Encode(jsonLine{
		Timestamp:  *p.Timestamp,
		ClientIP:   peer.IP,
		ClientPort: peer.Port,
		Level:      *p.Level,
		Message:    *p.Message,
		FileName:   *p.FileName,
		FileLine:   *p.FileLine,
		Tags:       tags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode json log line: %w", err)
	}
	return buf.String(), nil
}

func renderCSV(p *domain.LogParameters, peer domain.Peer) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	err := w.Write([]string{
		*p.Timestamp,
		peer.IP,
		strconv.Itoa(peer.Port),
		*p.Level,
		*p.Message,
		*p.FileName,
		strconv.Itoa(*p.FileLine),
		strings.Join(*p.Tags, csvTagSeparator),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode csv log line: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to encode csv log line: %w", err)
	}
	return buf.String(), nil
}
