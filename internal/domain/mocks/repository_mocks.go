package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/logrelay/internal/domain"
)

// MockRateLimiter returns a fixed decision and records every call.
type MockRateLimiter struct {
	mu     sync.Mutex
	Allow  bool
	Calls  []string
	Clocks []time.Time
}

func (m *MockRateLimiter) Admit(ctx context.Context, clientID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, clientID)
	m.Clocks = append(m.Clocks, now)
	return m.Allow
}

// MockLogStore is an in-memory domain.LogStore.
type MockLogStore struct {
	mu        sync.Mutex
	Lines     []string
	Dates     []time.Time
	AppendErr error
}

func (m *MockLogStore) Append(ctx context.Context, date time.Time, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Lines = append(m.Lines, line)
	m.Dates = append(m.Dates, date)
	return nil
}

// MockRecordPublisher captures published records.
type MockRecordPublisher struct {
	mu         sync.Mutex
	Published  []domain.LogRecord
	PublishErr error
}

func (m *MockRecordPublisher) Publish(ctx context.Context, record domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, record)
	return nil
}

// MockRecordBuffer is a mock implementation of domain.RecordBuffer.
type MockRecordBuffer struct {
	mu              sync.Mutex
	ReadBatchResult []domain.LogRecord
	AckedMessageIDs []string
	DLQRecords      []domain.LogRecord
	ReadErr         error
	AckErr          error
	DLQErr          error
}

func (m *MockRecordBuffer) ReadRecordBatch(ctx context.Context, group, consumer string, count int) ([]domain.LogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.ReadBatchResult, nil
}

func (m *MockRecordBuffer) AcknowledgeRecords(ctx context.Context, group string, messageIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.AckedMessageIDs = append(m.AckedMessageIDs, messageIDs...)
	return nil
}

func (m *MockRecordBuffer) MoveToDLQ(ctx context.Context, records []domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DLQErr != nil {
		return m.DLQErr
	}
	m.DLQRecords = append(m.DLQRecords, records...)
	return nil
}

// MockArchiveRepository is a mock implementation of domain.ArchiveRepository.
type MockArchiveRepository struct {
	mu             sync.Mutex
	WrittenRecords []domain.LogRecord
	WriteErr       error
	WriteCalls     int
}

func (m *MockArchiveRepository) WriteRecordBatch(ctx context.Context, records []domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteCalls++
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.WrittenRecords = append(m.WrittenRecords, records...)
	return nil
}

// MockStreamAdminRepository is a mock implementation of domain.StreamAdminRepository.
type MockStreamAdminRepository struct {
	mu         sync.Mutex
	Groups     []domain.ConsumerGroupInfo
	Pending    *domain.PendingMessageSummary
	Trimmed    int64
	TrimMaxLen []int64
	Err        error
}

func (m *MockStreamAdminRepository) GetGroupInfo(ctx context.Context, stream string) ([]domain.ConsumerGroupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Groups, m.Err
}

func (m *MockStreamAdminRepository) GetPendingSummary(ctx context.Context, stream, group string) (*domain.PendingMessageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pending, m.Err
}

func (m *MockStreamAdminRepository) TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TrimMaxLen = append(m.TrimMaxLen, maxLen)
	return m.Trimmed, m.Err
}
