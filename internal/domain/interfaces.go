package domain

import (
	"context"
	"time"
)

// ProfileRepo выбирает кандидатов по плану отбора.
type ProfileRepo interface {
	FindEligibleProfiles(ctx context.Context, q CandidateQuery) ([]Profile, error)
}

// DefinitionSource отдаёт справочники тарифов и усилений одним батчем.
type DefinitionSource interface {
	LoadDefinitions(ctx context.Context) (Definitions, error)
}

// FeatureGroupRegistry сопоставляет имя группы характеристик её идентификатору.
type FeatureGroupRegistry interface {
	GroupIDByName(ctx context.Context, name string) (int64, bool, error)
}

// ExposureSink фиксирует факт показа анкет: lastShownAt = now.
// Обновление батчевое и идемпотентное, повторная доставка безопасна.
type ExposureSink interface {
	MarkShown(ctx context.Context, profileIDs []int64, now time.Time) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
