package exposure

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"profile-feed/internal/domain"
	"profile-feed/internal/infra/metrics"
)

const retryBackoff = 500 * time.Millisecond

// Worker применяет задачи фиксации показов: читает очередь и батчем
// обновляет lastShownAt. Семантика минимум один раз: повторная доставка
// лишь переустанавливает отметку времени.
type Worker struct {
	queue      domain.ExposureQueue
	sink       domain.ExposureSink
	maxRetries int
	log        zerolog.Logger
}

// NewWorker создаёт воркер.
func NewWorker(queue domain.ExposureQueue, sink domain.ExposureSink, maxRetries int, logger zerolog.Logger) *Worker {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Worker{queue: queue, sink: sink, maxRetries: maxRetries, log: logger}
}

// Run обрабатывает задачи до отмены контекста.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.log.Error().Err(err).Msg("exposure: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryBackoff):
			}
			continue
		}
		w.handle(ctx, job, ack)
	}
}

func (w *Worker) handle(ctx context.Context, job domain.ExposureJob, ack domain.ExposureAckFunc) {
	ids := dedupe(job.ProfileIDs)
	if len(ids) == 0 {
		w.finish(job, ack, true)
		return
	}
	var err error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		err = w.sink.MarkShown(ctx, ids, job.ShownAt)
		if err == nil {
			break
		}
		w.log.Warn().Err(err).Str("job", job.ID).Int("attempt", attempt).Msg("exposure: запись показов не прошла")
		select {
		case <-ctx.Done():
			// Запись не откатываем: задача вернётся в очередь и доедет позже.
			w.finish(job, ack, false)
			return
		case <-time.After(retryBackoff):
		}
	}
	if err != nil {
		metrics.IncExposureError()
		w.finish(job, ack, false)
		return
	}
	w.finish(job, ack, true)
}

func (w *Worker) finish(job domain.ExposureJob, ack domain.ExposureAckFunc, success bool) {
	status := "done"
	if !success {
		status = "requeued"
	}
	metrics.IncExposureJob(status)
	if ack == nil {
		return
	}
	if err := ack(success); err != nil {
		w.log.Error().Err(err).Str("job", job.ID).Msg("exposure: не удалось подтвердить задачу")
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
