package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/V4T54L/logrelay/internal/domain"
)

const responseBufferSize = 4096

var defaultTags = []string{"test", "client", "logging"}

// newLogRequest builds a "Log" request the way an application logger would.
func newLogRequest(level, message, format string, now time.Time) domain.LogRequest {
	timestamp := now.Format("2006-01-02T15:04:05.000000")
	fileName := "load-tester"
	fileLine := 5
	tags := append([]string(nil), defaultTags...)
	return domain.LogRequest{
		Action: domain.ActionLog,
		Parameters: &domain.LogParameters{
			Timestamp: &timestamp,
			Level:     &level,
			Message:   &message,
			FileName:  &fileName,
			FileLine:  &fileLine,
			Tags:      &tags,
			Format:    &format,
		},
	}
}

// client sends one frame per write on a single TCP connection and reads one
// response per frame.
type client struct {
	conn    net.Conn
	timeout time.Duration
}

func dial(ctx context.Context, addr string, timeout time.Duration) (*client, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &client{conn: conn, timeout: timeout}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

// SendRequest marshals req and returns the server's decoded response.
func (c *client) SendRequest(req domain.LogRequest) (domain.Response, error) {
	frame, err := json.Marshal(req)
	if err != nil {
		return domain.Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.SendFrame(frame)
}

// SendFrame writes frame as is; plain text is stored verbatim by the server.
func (c *client) SendFrame(frame []byte) (domain.Response, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return domain.Response{}, err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return domain.Response{}, fmt.Errorf("failed to send frame: %w", err)
	}

	buf := make([]byte, responseBufferSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return domain.Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	var resp domain.Response
	if err := json.Unmarshal(buf[:n], &resp); err != nil {
		return domain.Response{}, fmt.Errorf("failed to decode response %q: %w", buf[:n], err)
	}
	return resp, nil
}
