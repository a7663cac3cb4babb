package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/logrelay/internal/adapter/metrics"
	"github.com/V4T54L/logrelay/internal/domain"
	"github.com/V4T54L/logrelay/internal/format"
)

// envelope is the outer shape of a structured request. Action stays raw so a
// non-string action is reported as invalid rather than as undecodable.
type envelope struct {
	Action     json.RawMessage `json:"Action"`
	Parameters json.RawMessage `json:"Parameters"`
}

// IngestLogUseCase handles one frame received from a client.
type IngestLogUseCase struct {
	limiter   domain.RateLimiter
	store     domain.LogStore
	publisher domain.RecordPublisher
	metrics   *metrics.IngestMetrics
	logger    *slog.Logger
	now       func() time.Time
	redactor  RecordRedactor
}

// RecordRedactor scrubs a record before it is mirrored.
type RecordRedactor interface {
	Redact(record *domain.LogRecord) bool
}

// NewIngestLogUseCase creates a new IngestLogUseCase. publisher and m may be nil.
func NewIngestLogUseCase(limiter domain.RateLimiter, store domain.LogStore, publisher domain.RecordPublisher, m *metrics.IngestMetrics, logger *slog.Logger) *IngestLogUseCase {
	return &IngestLogUseCase{
		limiter:   limiter,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "ingest_usecase"),
		now:       time.Now,
	}
}

// WithClock replaces the wall clock used for rate limiting and file selection.
func (uc *IngestLogUseCase) WithClock(now func() time.Time) *IngestLogUseCase {
	uc.now = now
	return uc
}

// WithRedactor scrubs mirrored records with r. The daily file is unaffected.
func (uc *IngestLogUseCase) WithRedactor(r RecordRedactor) *IngestLogUseCase {
	uc.redactor = r
	return uc
}

// Handle processes a single frame from peer and returns the response to send
// back. It never fails: every error becomes a code -1 response.
func (uc *IngestLogUseCase) Handle(ctx context.Context, peer domain.Peer, frame []byte) domain.Response {
	env, ok := decodeEnvelope(frame)
	if !ok {
		return uc.handlePreformatted(ctx, peer, frame)
	}

	var action string
	if err := json.Unmarshal(env.Action, &action); err != nil || action != domain.ActionLog {
		uc.count(metrics.StatusInvalidAction)
		return domain.Failure(domain.MsgInvalidAction)
	}

	params, err := decodeParameters(env.Parameters)
	if err != nil {
		uc.count(metrics.StatusInvalidParams)
		uc.logger.Debug("rejected log request", "peer", peer.String(), "error", err)
		return domain.Failure(fmt.Sprintf("Invalid parameters: %v", err))
	}

	return uc.handleLog(ctx, peer, params)
}

func (uc *IngestLogUseCase) handleLog(ctx context.Context, peer domain.Peer, params *domain.LogParameters) domain.Response {
	now := uc.now()

	// Quota is spent here even if the append below fails.
	if !uc.limiter.Admit(ctx, peer.IP, now) {
		uc.count(metrics.StatusRateLimited)
		uc.logger.Info("rate limit exceeded", "client_ip", peer.IP)
		return domain.Failure(domain.MsgRateLimitExceeded)
	}

	line, err := format.Render(params, peer)
	if err != nil {
		uc.count(metrics.StatusInvalidParams)
		return domain.Failure(fmt.Sprintf("Invalid parameters: %v", err))
	}

	if err := uc.store.Append(ctx, now, line); err != nil {
		uc.count(metrics.StatusStoreError)
		uc.logger.Error("failed to append log line", "peer", peer.String(), "error", err)
		return domain.Failure(fmt.Sprintf("Error writing log: %v", err))
	}
	uc.count(metrics.StatusAccepted)
	uc.addBytes(len(line))

	uc.mirror(ctx, domain.LogRecord{
		ID:         uuid.NewString(),
		ReceivedAt: now.UTC(),
		ClientIP:   peer.IP,
		ClientPort: peer.Port,
		Timestamp:  *params.Timestamp,
		Level:      *params.Level,
		Message:    *params.Message,
		FileName:   *params.FileName,
		FileLine:   *params.FileLine,
		Tags:       *params.Tags,
		Format:     params.ResolvedFormat(),
		Line:       line,
	})

	return domain.Success(strconv.Itoa(len(line)))
}

// handlePreformatted stores frames that are not structured requests
// verbatim, followed by a newline, even if the frame already ends with one.
// These bypass validation and the rate limiter.
func (uc *IngestLogUseCase) handlePreformatted(ctx context.Context, peer domain.Peer, frame []byte) domain.Response {
	now := uc.now()
	line := string(frame) + "\n"

	if err := uc.store.Append(ctx, now, line); err != nil {
		uc.count(metrics.StatusStoreError)
		uc.logger.Error("failed to append pre-formatted line", "peer", peer.String(), "error", err)
		return domain.Failure(fmt.Sprintf("Error writing log: %v", err))
	}
	uc.count(metrics.StatusPassthrough)
	uc.addBytes(len(line))

	uc.mirror(ctx, domain.LogRecord{
		ID:         uuid.NewString(),
		ReceivedAt: now.UTC(),
		ClientIP:   peer.IP,
		ClientPort: peer.Port,
		Line:       line,
		Raw:        true,
	})

	return domain.Success(domain.MsgPreformatted)
}

// mirror forwards an appended record downstream. Failures never change the
// client's response; the daily file already holds the line.
func (uc *IngestLogUseCase) mirror(ctx context.Context, record domain.LogRecord) {
	if uc.publisher == nil {
		return
	}
	if uc.redactor != nil {
		uc.redactor.Redact(&record)
	}
	if err := uc.publisher.Publish(ctx, record); err != nil {
		if uc.metrics != nil {
			uc.metrics.MirrorFailures.Inc()
		}
		uc.logger.Warn("failed to mirror log record", "record_id", record.ID, "error", err)
	}
}

func (uc *IngestLogUseCase) count(status string) {
	if uc.metrics != nil {
		uc.metrics.RequestsTotal.WithLabelValues(status).Inc()
	}
}

func (uc *IngestLogUseCase) addBytes(n int) {
	if uc.metrics != nil {
		uc.metrics.BytesTotal.Add(float64(n))
	}
}

// decodeEnvelope reports whether frame is a JSON object. Anything else,
// including valid JSON scalars and arrays, is treated as a raw line.
func decodeEnvelope(frame []byte) (envelope, bool) {
	var env envelope
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, false
	}
	return env, true
}

func decodeParameters(raw json.RawMessage) (*domain.LogParameters, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: Parameters", domain.ErrMissingField)
	}
	var params domain.LogParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("malformed Parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}
