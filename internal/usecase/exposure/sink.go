package exposure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"profile-feed/internal/domain"
)

// QueueSink публикует фиксацию показов как задачу в очередь: сервис ленты
// не знает о транспорте, воркер применяет запись батчем позже.
type QueueSink struct {
	queue domain.ExposureQueue
	cause domain.ExposureCause
}

// NewQueueSink создаёт sink поверх очереди.
func NewQueueSink(queue domain.ExposureQueue, cause domain.ExposureCause) *QueueSink {
	return &QueueSink{queue: queue, cause: cause}
}

// MarkShown ставит задачу в очередь.
func (s *QueueSink) MarkShown(ctx context.Context, profileIDs []int64, now time.Time) error {
	if len(profileIDs) == 0 {
		return nil
	}
	job := domain.ExposureJob{
		ID:         uuid.New().String(),
		ProfileIDs: profileIDs,
		ShownAt:    now,
		Cause:      s.cause,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка задачи показов: %w", err)
	}
	return nil
}
