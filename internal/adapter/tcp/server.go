package tcp

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/V4T54L/logrelay/internal/adapter/metrics"
)

const (
	// DefaultAddr is used when NewServer is given an empty address.
	DefaultAddr = "127.0.0.1:8089"

	// DefaultMaxFrameSize is the default number of bytes read per frame.
	DefaultMaxFrameSize = 4096

	// DefaultIdleTimeout is the default per-read idle timeout.
	DefaultIdleTimeout = 5 * time.Second

	acceptBackoff = 50 * time.Millisecond
)

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	MaxFrameSize int
	IdleTimeout  time.Duration
	// MaxConnections optionally caps concurrent sessions; zero, the default,
	// means unbounded. Idle sessions keep their slot, so with a cap set a
	// client that connects while every slot is held waits until one closes.
	MaxConnections int64
}

// Server accepts TCP connections and runs one Session per connection.
type Server struct {
	listener     net.Listener
	addr         string
	handler      FrameHandler
	maxFrameSize int
	idleTimeout  time.Duration
	slots        *semaphore.Weighted
	metrics      *metrics.IngestMetrics
	logger       *slog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewServer creates a new TCP server. m may be nil.
func NewServer(addr string, handler FrameHandler, m *metrics.IngestMetrics, logger *slog.Logger, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	maxFrameSize := DefaultMaxFrameSize
	idleTimeout := DefaultIdleTimeout
	var slots *semaphore.Weighted
	if len(conf) > 0 {
		if conf[0].MaxFrameSize > 0 {
			maxFrameSize = conf[0].MaxFrameSize
		}
		if conf[0].IdleTimeout > 0 {
			idleTimeout = conf[0].IdleTimeout
		}
		if conf[0].MaxConnections > 0 {
			slots = semaphore.NewWeighted(conf[0].MaxConnections)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:         addr,
		handler:      handler,
		maxFrameSize: maxFrameSize,
		idleTimeout:  idleTimeout,
		slots:        slots,
		metrics:      m,
		logger:       logger.With("component", "tcp_server"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(s.ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("listening for log submissions", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		if s.slots != nil {
			if err := s.slots.Acquire(s.ctx, 1); err != nil {
				return
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.release()
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn("accept failed", "error", err)
				time.Sleep(acceptBackoff)
				continue
			}
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer s.release()

	if s.metrics != nil {
		s.metrics.SessionsTotal.Inc()
		s.metrics.SessionsActive.Inc()
		defer s.metrics.SessionsActive.Dec()
	}

	logger := s.logger.With("session_id", uuid.NewString())
	NewSession(conn, s.handler, s.maxFrameSize, s.idleTimeout, logger).Serve(s.ctx)
}

func (s *Server) release() {
	if s.slots != nil {
		s.slots.Release(1)
	}
}

// Stop closes the listener, ends all sessions and waits for them to return.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
