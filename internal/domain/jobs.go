package domain

import (
	"context"
	"time"
)

// ExposureCause описывает источник задачи на фиксацию показов.
type ExposureCause string

const (
	// ExposureCauseFeed — показы страницы общей ленты.
	ExposureCauseFeed ExposureCause = "feed"
	// ExposureCauseSearch — показы ранжированной страницы поиска.
	ExposureCauseSearch ExposureCause = "search"
)

// ExposureJob содержит батч анкет, показанных одной страницей.
type ExposureJob struct {
	ID         string        `json:"job_id"`
	ProfileIDs []int64       `json:"profile_ids"`
	ShownAt    time.Time     `json:"shown_at"`
	Cause      ExposureCause `json:"cause"`
}

// ExposureAckFunc подтверждает успешную обработку или возвращает задачу в очередь.
type ExposureAckFunc func(success bool) error

// ExposureQueue описывает очередь задач на фиксацию показов.
type ExposureQueue interface {
	Enqueue(ctx context.Context, job ExposureJob) error
	Receive(ctx context.Context) (ExposureJob, ExposureAckFunc, error)
}
