package rank

import (
	"testing"
	"time"

	"profile-feed/internal/domain"
)

func ranked(id int64, level int, score float64, shown *time.Time, created time.Time) domain.RankedProfile {
	return domain.RankedProfile{
		Profile:        domain.Profile{ID: id, LastShownAt: shown, CreatedAt: created},
		EffectiveLevel: level,
		PriorityScore:  score,
	}
}

func ids(items []domain.RankedProfile) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.Profile.ID
	}
	return out
}

func TestSortPrecedence(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	shown := created.Add(24 * time.Hour)
	items := []domain.RankedProfile{
		ranked(1, 2, 100, nil, created),
		ranked(2, 1, 5, nil, created),
		ranked(3, 1, 50, &shown, created),
		ranked(4, 1, 50, nil, created),
	}
	Sort(items)
	want := []int64{4, 3, 2, 1}
	for i, id := range ids(items) {
		if id != want[i] {
			t.Fatalf("ожидали порядок %v, получили %v", want, ids(items))
		}
	}
}

func TestSortNeverShownComesFirst(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dayAgo := created.Add(-24 * time.Hour)
	items := []domain.RankedProfile{
		ranked(2, 3, 10, &dayAgo, created), // показана день назад
		ranked(1, 3, 10, nil, created),     // не показана ни разу
	}
	Sort(items)
	if items[0].Profile.ID != 1 || items[1].Profile.ID != 2 {
		t.Fatalf("непоказанная анкета должна идти первой, получили %v", ids(items))
	}
}

func TestSortCreatedAtThenIDTieBreak(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	items := []domain.RankedProfile{
		ranked(9, 1, 0, nil, late),
		ranked(7, 1, 0, nil, early),
		ranked(8, 1, 0, nil, early),
	}
	Sort(items)
	want := []int64{7, 8, 9}
	for i, id := range ids(items) {
		if id != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, ids(items))
		}
	}
}

func TestSortDeterministic(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	build := func() []domain.RankedProfile {
		return []domain.RankedProfile{
			ranked(5, 2, 10, nil, created),
			ranked(3, 1, 10, nil, created),
			ranked(4, 1, 10, nil, created),
			ranked(1, 1, 20, nil, created),
			ranked(2, 3, 0, nil, created),
		}
	}
	first := build()
	Sort(first)
	second := build()
	Sort(second)
	Sort(second) // повторный прогон не должен ничего менять
	for i := range first {
		if first[i].Profile.ID != second[i].Profile.ID {
			t.Fatalf("сортировка недетерминирована: %v против %v", ids(first), ids(second))
		}
	}
}

func TestLessIsStrict(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := ranked(1, 1, 10, nil, created)
	b := ranked(2, 1, 10, nil, created)
	if Less(a, b) == Less(b, a) {
		t.Fatal("две разные анкеты не должны сравниваться как равные")
	}
}
