package main

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/V4T54L/logrelay/internal/domain"
)

func TestNewLogRequest(t *testing.T) {
	req := newLogRequest("WARN", "disk low", domain.FormatCSV, time.Date(2025, 2, 20, 9, 30, 0, 0, time.UTC))

	if err := req.Parameters.Validate(); err != nil {
		t.Fatalf("request should be complete, got %v", err)
	}
	if req.Action != domain.ActionLog {
		t.Errorf("expected action %q, got %q", domain.ActionLog, req.Action)
	}
	if got := *req.Parameters.Timestamp; got != "2025-02-20T09:30:00.000000" {
		t.Errorf("unexpected timestamp %q", got)
	}
	if req.Parameters.ResolvedFormat() != domain.FormatCSV {
		t.Errorf("unexpected format %q", req.Parameters.ResolvedFormat())
	}
}

func TestClientSendRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	received := make(chan domain.LogRequest, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		var req domain.LogRequest
		_ = json.Unmarshal(buf[:n], &req)
		received <- req
		conn.Write([]byte(`{"code":"-1","message":"Rate limit exceeded. Try again later."}`))
	}()

	c, err := dial(context.Background(), ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer c.Close()

	resp, err := c.SendRequest(newLogRequest("INFO", "hello", domain.FormatText, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Code != domain.CodeFailure || resp.Message != domain.MsgRateLimitExceeded {
		t.Errorf("unexpected response %+v", resp)
	}

	req := <-received
	if req.Parameters == nil || *req.Parameters.Message != "hello" {
		t.Errorf("server got unexpected request %+v", req)
	}
}
