package rank

import (
	"time"

	"github.com/rs/zerolog"

	"profile-feed/internal/domain"
	"profile-feed/internal/infra/metrics"
)

// Значения по умолчанию для констант скоринга. Штраф за отправку в конец
// уровня должен превышать сумму ранга варианта, бонусов усилений и окна
// свежести, иначе правило back перестаёт быть безусловным.
const (
	DefaultRecencyWindowDays = 100
	DefaultBackPenalty       = 1000
)

// Engine вычисляет эффективный уровень и приоритетные баллы анкеты.
// Не держит состояния между вызовами: результат — чистая функция от
// (анкета, справочники, now).
type Engine struct {
	recencyWindowDays float64
	backPenalty       float64
	log               zerolog.Logger
}

// Config задаёт настраиваемые константы скоринга.
type Config struct {
	RecencyWindowDays float64
	BackPenalty       float64
}

// NewEngine создаёт движок ранжирования.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.RecencyWindowDays <= 0 {
		cfg.RecencyWindowDays = DefaultRecencyWindowDays
	}
	if cfg.BackPenalty <= 0 {
		cfg.BackPenalty = DefaultBackPenalty
	}
	return &Engine{recencyWindowDays: cfg.RecencyWindowDays, backPenalty: cfg.BackPenalty, log: logger}
}

// ResolveLevel вычисляет эффективный уровень видимости анкеты в [1..5].
// Анкета без тарифа или с неизвестным кодом тарифа падает на нижний ярус.
func (e *Engine) ResolveLevel(p domain.Profile, defs domain.Definitions, now time.Time) int {
	level := domain.MaxLevel
	if p.Plan != nil {
		plan, ok := defs.PlanByCode(p.Plan.Code)
		if ok {
			level = plan.Level
		} else {
			metrics.IncDefinitionMiss("plan")
			e.log.Warn().Int64("profile", p.ID).Str("plan", p.Plan.Code).Msg("rank: неизвестный код тарифа, уровень по умолчанию")
		}
	}
	for _, u := range p.Upgrades {
		if !u.ActiveAt(now) {
			continue
		}
		def, ok := defs.UpgradeByCode(u.Code)
		if !ok || def.Effect == nil {
			continue
		}
		switch {
		case def.Effect.SetLevelTo != nil:
			level = *def.Effect.SetLevelTo
		case def.Effect.LevelDelta != nil:
			level += *def.Effect.LevelDelta
		}
	}
	if level < domain.MinLevel {
		level = domain.MinLevel
	}
	if level > domain.MaxLevel {
		level = domain.MaxLevel
	}
	return level
}

// Score вычисляет приоритетные баллы анкеты внутри её уровня.
func (e *Engine) Score(p domain.Profile, defs domain.Definitions, now time.Time) float64 {
	score := 0.0
	if p.Plan != nil {
		if plan, ok := defs.PlanByCode(p.Plan.Code); ok {
			if variant, ok := plan.VariantByDays(p.Plan.DurationDays); ok {
				score += variant.DurationRank
			}
		}
		if !p.Plan.StartedAt.IsZero() {
			days := now.Sub(p.Plan.StartedAt).Hours() / 24
			if bonus := e.recencyWindowDays - days; bonus > 0 {
				score += bonus
			}
		}
	}
	demoted := false
	for _, u := range p.Upgrades {
		if !u.ActiveAt(now) {
			continue
		}
		def, ok := defs.UpgradeByCode(u.Code)
		if !ok || def.Effect == nil {
			continue
		}
		if def.Effect.PriorityBonus != nil {
			score += *def.Effect.PriorityBonus
		}
		if def.Effect.PositionRule == domain.PositionRuleBack {
			demoted = true
		}
	}
	if demoted {
		score -= e.backPenalty
	}
	return score
}

// Annotate вычисляет уровень и баллы для всего снимка кандидатов.
func (e *Engine) Annotate(profiles []domain.Profile, defs domain.Definitions, now time.Time) []domain.RankedProfile {
	items := make([]domain.RankedProfile, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, domain.RankedProfile{
			Profile:        p,
			EffectiveLevel: e.ResolveLevel(p, defs, now),
			PriorityScore:  e.Score(p, defs, now),
		})
	}
	return items
}
