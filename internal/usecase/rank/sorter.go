package rank

import (
	"sort"
	"time"

	"profile-feed/internal/domain"
)

// Sort упорядочивает снимок по строгому полному порядку:
// уровень по возрастанию, баллы по убыванию, lastShownAt по возрастанию
// (никогда не показанные — первыми), createdAt по возрастанию, ID как
// последний ключ. Последний ключ уникален, поэтому порядок детерминирован
// и повторная сортировка того же снимка даёт тот же результат.
func Sort(items []domain.RankedProfile) {
	sort.Slice(items, func(i, j int) bool {
		return Less(items[i], items[j])
	})
}

// Less сравнивает две анкеты в порядке выдачи.
func Less(a, b domain.RankedProfile) bool {
	if a.EffectiveLevel != b.EffectiveLevel {
		return a.EffectiveLevel < b.EffectiveLevel
	}
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	as, bs := lastShown(a.Profile), lastShown(b.Profile)
	if !as.Equal(bs) {
		return as.Before(bs)
	}
	if !a.Profile.CreatedAt.Equal(b.Profile.CreatedAt) {
		return a.Profile.CreatedAt.Before(b.Profile.CreatedAt)
	}
	return a.Profile.ID < b.Profile.ID
}

// lastShown трактует отсутствие отметки показа как нулевое время:
// непоказанные анкеты встают в начало своей группы.
func lastShown(p domain.Profile) time.Time {
	if p.LastShownAt == nil {
		return time.Time{}
	}
	return *p.LastShownAt
}
