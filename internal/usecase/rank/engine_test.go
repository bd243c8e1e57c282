package rank

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"profile-feed/internal/domain"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }

func testDefs() domain.Definitions {
	return domain.NewDefinitions(
		[]domain.PlanDefinition{
			{Code: "gold", Level: 1, Variants: []domain.PlanVariant{{Days: 30, DurationRank: 30}, {Days: 7, DurationRank: 10}}},
			{Code: "basic", Level: 3, Variants: []domain.PlanVariant{{Days: 30, DurationRank: 5}}},
		},
		[]domain.UpgradeDefinition{
			{Code: "top", Effect: &domain.UpgradeEffect{SetLevelTo: intPtr(1), PriorityBonus: floatPtr(50)}},
			{Code: "lift", Effect: &domain.UpgradeEffect{LevelDelta: intPtr(-1)}},
			{Code: "sink", Effect: &domain.UpgradeEffect{LevelDelta: intPtr(10)}},
			{Code: "back", Effect: &domain.UpgradeEffect{PositionRule: domain.PositionRuleBack}},
			{Code: "noop"},
		},
	)
}

func activeUpgrade(code string) domain.Upgrade {
	return domain.Upgrade{Code: code, StartAt: testNow.Add(-time.Hour), EndAt: testNow.Add(time.Hour)}
}

func newTestEngine() *Engine {
	return NewEngine(Config{}, zerolog.Nop())
}

func TestResolveLevelWithoutPlan(t *testing.T) {
	e := newTestEngine()
	if got := e.ResolveLevel(domain.Profile{ID: 1}, testDefs(), testNow); got != domain.MaxLevel {
		t.Fatalf("ожидали уровень %d без тарифа, получили %d", domain.MaxLevel, got)
	}
}

func TestResolveLevelUnknownPlanCode(t *testing.T) {
	e := newTestEngine()
	p := domain.Profile{ID: 1, Plan: &domain.PlanAssignment{Code: "ghost"}}
	if got := e.ResolveLevel(p, testDefs(), testNow); got != domain.MaxLevel {
		t.Fatalf("неизвестный тариф должен давать уровень %d, получили %d", domain.MaxLevel, got)
	}
}

func TestResolveLevelAppliesEffectsInOrder(t *testing.T) {
	e := newTestEngine()
	p := domain.Profile{
		ID:       1,
		Plan:     &domain.PlanAssignment{Code: "basic", DurationDays: 30},
		Upgrades: []domain.Upgrade{activeUpgrade("lift"), activeUpgrade("top")},
	}
	// basic=3, lift: 3-1=2, top: перезапись в 1.
	if got := e.ResolveLevel(p, testDefs(), testNow); got != 1 {
		t.Fatalf("ожидали уровень 1, получили %d", got)
	}
}

func TestResolveLevelClamped(t *testing.T) {
	e := newTestEngine()
	p := domain.Profile{
		ID:       1,
		Plan:     &domain.PlanAssignment{Code: "basic", DurationDays: 30},
		Upgrades: []domain.Upgrade{activeUpgrade("sink")},
	}
	if got := e.ResolveLevel(p, testDefs(), testNow); got != domain.MaxLevel {
		t.Fatalf("уровень должен быть обрезан до %d, получили %d", domain.MaxLevel, got)
	}
}

func TestResolveLevelIgnoresInactiveAndUnknownUpgrades(t *testing.T) {
	e := newTestEngine()
	expired := domain.Upgrade{Code: "top", StartAt: testNow.Add(-2 * time.Hour), EndAt: testNow.Add(-time.Hour)}
	p := domain.Profile{
		ID:       1,
		Plan:     &domain.PlanAssignment{Code: "basic", DurationDays: 30},
		Upgrades: []domain.Upgrade{expired, activeUpgrade("ghost"), activeUpgrade("noop")},
	}
	if got := e.ResolveLevel(p, testDefs(), testNow); got != 3 {
		t.Fatalf("ожидали базовый уровень 3, получили %d", got)
	}
}

func TestScoreVariantAndRecency(t *testing.T) {
	e := newTestEngine()
	p := domain.Profile{
		ID:   1,
		Plan: &domain.PlanAssignment{Code: "gold", DurationDays: 30, StartedAt: testNow.Add(-10 * 24 * time.Hour)},
	}
	got := e.Score(p, testDefs(), testNow)
	want := 30.0 + 90.0 // ранг варианта + (100 - 10 дней)
	if got != want {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
}

func TestScoreRecencyFlooredAtZero(t *testing.T) {
	e := newTestEngine()
	p := domain.Profile{
		ID:   1,
		Plan: &domain.PlanAssignment{Code: "gold", DurationDays: 30, StartedAt: testNow.Add(-200 * 24 * time.Hour)},
	}
	if got := e.Score(p, testDefs(), testNow); got != 30 {
		t.Fatalf("бонус свежести старше окна должен быть нулевым, получили %v", got)
	}
}

func TestScoreUnknownPlanSkipsVariantTerm(t *testing.T) {
	e := newTestEngine()
	p := domain.Profile{
		ID:   1,
		Plan: &domain.PlanAssignment{Code: "ghost", DurationDays: 30, StartedAt: testNow.Add(-40 * 24 * time.Hour)},
	}
	if got := e.Score(p, testDefs(), testNow); got != 60 {
		t.Fatalf("ожидали только бонус свежести 60, получили %v", got)
	}
}

func TestScoreUpgradeBonus(t *testing.T) {
	e := newTestEngine()
	p := domain.Profile{ID: 1, Upgrades: []domain.Upgrade{activeUpgrade("top")}}
	if got := e.Score(p, testDefs(), testNow); got != 50 {
		t.Fatalf("ожидали бонус усиления 50, получили %v", got)
	}
}

func TestScoreBackPenaltyDominates(t *testing.T) {
	e := newTestEngine()
	demoted := domain.Profile{
		ID:       1,
		Plan:     &domain.PlanAssignment{Code: "gold", DurationDays: 30, StartedAt: testNow},
		Upgrades: []domain.Upgrade{activeUpgrade("top"), activeUpgrade("back")},
	}
	plain := domain.Profile{ID: 2}
	if e.Score(demoted, testDefs(), testNow) >= e.Score(plain, testDefs(), testNow) {
		t.Fatal("анкета с правилом back обязана набирать строго меньше любой обычной")
	}
}

func TestAnnotateKeepsInputOrderAndLength(t *testing.T) {
	e := newTestEngine()
	profiles := []domain.Profile{{ID: 3}, {ID: 1}, {ID: 2}}
	items := e.Annotate(profiles, testDefs(), testNow)
	if len(items) != 3 {
		t.Fatalf("ожидали 3 элемента, получили %d", len(items))
	}
	for i, it := range items {
		if it.Profile.ID != profiles[i].ID {
			t.Fatalf("Annotate не должен менять порядок входа")
		}
		if it.EffectiveLevel < domain.MinLevel || it.EffectiveLevel > domain.MaxLevel {
			t.Fatalf("уровень %d вне [1,5]", it.EffectiveLevel)
		}
	}
}
