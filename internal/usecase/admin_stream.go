package usecase

import (
	"context"
	"errors"

	"github.com/V4T54L/logrelay/internal/domain"
)

// ErrInvalidMaxLen is returned when a trim request would empty the stream.
var ErrInvalidMaxLen = errors.New("max_len must be positive")

// AdminStreamUseCase provides operational views of the mirror stream.
type AdminStreamUseCase struct {
	repo   domain.StreamAdminRepository
	stream string
}

// NewAdminStreamUseCase creates a new AdminStreamUseCase bound to stream.
func NewAdminStreamUseCase(repo domain.StreamAdminRepository, stream string) *AdminStreamUseCase {
	return &AdminStreamUseCase{repo: repo, stream: stream}
}

func (uc *AdminStreamUseCase) GetGroupInfo(ctx context.Context) ([]domain.ConsumerGroupInfo, error) {
	return uc.repo.GetGroupInfo(ctx, uc.stream)
}

func (uc *AdminStreamUseCase) GetPendingSummary(ctx context.Context, group string) (*domain.PendingMessageSummary, error) {
	return uc.repo.GetPendingSummary(ctx, uc.stream, group)
}

func (uc *AdminStreamUseCase) TrimStream(ctx context.Context, maxLen int64) (int64, error) {
	if maxLen <= 0 {
		return 0, ErrInvalidMaxLen
	}
	return uc.repo.TrimStream(ctx, uc.stream, maxLen)
}
