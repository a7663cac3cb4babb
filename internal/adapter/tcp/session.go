package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/V4T54L/logrelay/internal/domain"
)

// FrameHandler turns one received frame into the response for the client.
type FrameHandler interface {
	Handle(ctx context.Context, peer domain.Peer, frame []byte) domain.Response
}

// Session serves one client connection. Each read is one frame; frames are
// handled and answered strictly in the order they arrive.
type Session struct {
	conn         net.Conn
	peer         domain.Peer
	handler      FrameHandler
	maxFrameSize int
	idleTimeout  time.Duration
	logger       *slog.Logger
}

// NewSession wraps conn. The session owns conn from here on and closes it
// when Serve returns.
func NewSession(conn net.Conn, handler FrameHandler, maxFrameSize int, idleTimeout time.Duration, logger *slog.Logger) *Session {
	peer := PeerFromAddr(conn.RemoteAddr())
	return &Session{
		conn:         conn,
		peer:         peer,
		handler:      handler,
		maxFrameSize: maxFrameSize,
		idleTimeout:  idleTimeout,
		logger:       logger.With("remote_addr", peer.String()),
	}
}

// Serve reads and answers frames until the peer disconnects, a transport
// error occurs or ctx is cancelled. Read timeouts only restart the read.
func (s *Session) Serve(ctx context.Context) {
	defer s.conn.Close()
	// Cancelling ctx unblocks a pending Read by closing the connection.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.logger.Info("connection established")
	buf := make([]byte, s.maxFrameSize)

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			s.logger.Warn("failed to set read deadline, closing session", "error", err)
			return
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			// A frame that was read is always answered, even during shutdown.
			resp := s.handler.Handle(context.WithoutCancel(ctx), s.peer, buf[:n])
			s.respond(resp)
		}
		if err == nil {
			continue
		}

		switch {
		case isTimeout(err) && ctx.Err() == nil:
			continue
		case errors.Is(err, io.EOF):
			s.logger.Info("connection closed by peer")
		case ctx.Err() != nil:
			s.logger.Info("session closed on shutdown")
		default:
			s.logger.Warn("connection error, closing session", "error", err)
		}
		return
	}
}

// respond writes resp to the client. Write failures are logged and the
// session keeps reading; a broken connection surfaces on the next read.
func (s *Session) respond(resp domain.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.idleTimeout)); err != nil {
		s.logger.Warn("failed to set write deadline", "error", err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// PeerFromAddr extracts the client IP and port from a remote address.
func PeerFromAddr(addr net.Addr) domain.Peer {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return domain.Peer{IP: tcpAddr.IP.String(), Port: tcpAddr.Port}
	}
	if addr == nil {
		return domain.Peer{}
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return domain.Peer{IP: addr.String()}
	}
	port, _ := strconv.Atoi(portStr)
	return domain.Peer{IP: host, Port: port}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
