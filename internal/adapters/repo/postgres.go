package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"profile-feed/internal/domain"
	"profile-feed/internal/infra/metrics"
)

// Postgres реализует репозитории каталога на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool

	defs   *definitionCache
	groups *groupCache
}

var _ domain.ProfileRepo = (*Postgres)(nil)
var _ domain.DefinitionSource = (*Postgres)(nil)
var _ domain.FeatureGroupRegistry = (*Postgres)(nil)
var _ domain.ExposureSink = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД. cacheTTL задаёт срок жизни внутренних
// кэшей справочников и групп характеристик.
func NewPostgres(pool *pgxpool.Pool, cacheTTL time.Duration) *Postgres {
	return &Postgres{
		pool:   pool,
		defs:   &definitionCache{ttl: cacheTTL},
		groups: &groupCache{ttl: cacheTTL},
	}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// FindEligibleProfiles выбирает кандидатов по плану отбора. Базовый
// инвариант (видимость, не удалена, тариф не истёк) накладывается всегда,
// что бы ни пришло в плане.
func (p *Postgres) FindEligibleProfiles(ctx context.Context, q domain.CandidateQuery) ([]domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	where := []string{
		"p.visible",
		"NOT p.is_deleted",
		"(p.plan_code IS NULL OR p.plan_expires_at > $1)",
	}
	args := []any{now}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Category != "" {
		where = append(where, "p.category = "+arg(q.Category))
	}
	if q.City != "" {
		where = append(where, "p.city = "+arg(q.City))
	}
	if q.District != "" {
		where = append(where, "p.district = "+arg(q.District))
	}
	if q.PriceMin != nil {
		where = append(where, "p.price >= "+arg(*q.PriceMin))
	}
	if q.PriceMax != nil {
		where = append(where, "p.price <= "+arg(*q.PriceMax))
	}
	if q.AgeMin != nil {
		where = append(where, "p.age >= "+arg(*q.AgeMin))
	}
	if q.AgeMax != nil {
		where = append(where, "p.age <= "+arg(*q.AgeMax))
	}
	if q.Verified != nil {
		where = append(where, "p.verified = "+arg(*q.Verified))
	}
	if q.HasVideo != nil {
		where = append(where, "p.has_video = "+arg(*q.HasVideo))
	}
	for _, f := range q.Features {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM profile_features pf WHERE pf.profile_id = p.id AND pf.group_id = %s AND pf.value = ANY(%s))",
			arg(f.GroupID), arg(f.Values)))
	}
	if a := q.Availability; a != nil {
		conds := []string{"pa.profile_id = p.id"}
		if len(a.Days) > 0 {
			conds = append(conds, "pa.day = ANY("+arg(a.Days)+")")
		}
		if a.From != "" {
			conds = append(conds, "pa.until_time > "+arg(a.From))
		}
		if a.To != "" {
			conds = append(conds, "pa.from_time < "+arg(a.To))
		}
		where = append(where, "EXISTS (SELECT 1 FROM profile_availability pa WHERE "+strings.Join(conds, " AND ")+")")
	}

	query := `
SELECT p.id, p.name, p.category, p.city, p.district, p.age, p.price,
       p.verified, p.has_video, p.visible, p.is_deleted,
       p.plan_code, p.plan_duration_days, p.plan_started_at, p.plan_expires_at,
       p.last_shown_at, p.created_at, p.updated_at
FROM profiles p
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY p.id`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "profiles_select", "profiles", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка анкет: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var (
			profile      domain.Profile
			city         sql.NullString
			district     sql.NullString
			planCode     sql.NullString
			planDays     sql.NullInt64
			planStarted  sql.NullTime
			planExpires  sql.NullTime
			lastShownAt  sql.NullTime
		)
		if err := rows.Scan(&profile.ID, &profile.Name, &profile.Category, &city, &district,
			&profile.Age, &profile.Price, &profile.Verified, &profile.HasVideo,
			&profile.Visible, &profile.IsDeleted,
			&planCode, &planDays, &planStarted, &planExpires,
			&lastShownAt, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
			return nil, fmt.Errorf("чтение анкеты: %w", err)
		}
		profile.City = city.String
		profile.District = district.String
		if planCode.Valid {
			assignment := domain.PlanAssignment{Code: planCode.String, DurationDays: int(planDays.Int64)}
			if planStarted.Valid {
				assignment.StartedAt = planStarted.Time
			}
			if planExpires.Valid {
				assignment.ExpiresAt = planExpires.Time
			}
			profile.Plan = &assignment
		}
		if lastShownAt.Valid {
			ts := lastShownAt.Time
			profile.LastShownAt = &ts
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход анкет: %w", err)
	}
	if err := p.attachUpgrades(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// attachUpgrades подгружает усиления всех кандидатов одним запросом.
func (p *Postgres) attachUpgrades(ctx context.Context, profiles []domain.Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	ids := make([]int64, len(profiles))
	index := make(map[int64]int, len(profiles))
	for i := range profiles {
		ids[i] = profiles[i].ID
		index[profiles[i].ID] = i
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT profile_id, code, start_at, end_at, purchased_at
FROM profile_upgrades
WHERE profile_id = ANY($1)
ORDER BY profile_id, purchased_at, id`, ids)
	metrics.ObserveNetworkRequest("postgres", "upgrades_select", "profile_upgrades", start, err)
	if err != nil {
		return fmt.Errorf("выборка усилений: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			profileID int64
			upgrade   domain.Upgrade
		)
		if err := rows.Scan(&profileID, &upgrade.Code, &upgrade.StartAt, &upgrade.EndAt, &upgrade.PurchasedAt); err != nil {
			return fmt.Errorf("чтение усиления: %w", err)
		}
		if i, ok := index[profileID]; ok {
			profiles[i].Upgrades = append(profiles[i].Upgrades, upgrade)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("обход усилений: %w", err)
	}
	return nil
}

// LoadDefinitions отдаёт справочники тарифов и усилений. Таблицы малы и
// читаются целиком тремя запросами; результат живёт в процессном кэше,
// чтобы горячий цикл ранжирования не ходил в БД по каждой анкете.
func (p *Postgres) LoadDefinitions(ctx context.Context) (domain.Definitions, error) {
	if defs, ok := p.defs.get(); ok {
		return defs, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	plans, err := p.loadPlans(ctx)
	if err != nil {
		return domain.Definitions{}, err
	}
	upgrades, err := p.loadUpgradeDefinitions(ctx)
	if err != nil {
		return domain.Definitions{}, err
	}
	defs := domain.NewDefinitions(plans, upgrades)
	p.defs.set(defs)
	return defs, nil
}

func (p *Postgres) loadPlans(ctx context.Context) ([]domain.PlanDefinition, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT code, level FROM plans`)
	metrics.ObserveNetworkRequest("postgres", "plans_select", "plans", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка тарифов: %w", err)
	}
	defer rows.Close()

	byCode := make(map[string]*domain.PlanDefinition)
	var order []string
	for rows.Next() {
		var plan domain.PlanDefinition
		if err := rows.Scan(&plan.Code, &plan.Level); err != nil {
			return nil, fmt.Errorf("чтение тарифа: %w", err)
		}
		byCode[plan.Code] = &plan
		order = append(order, plan.Code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход тарифов: %w", err)
	}

	start = time.Now()
	variantRows, err := p.pool.Query(ctx, `SELECT plan_code, days, duration_rank FROM plan_variants ORDER BY plan_code, days`)
	metrics.ObserveNetworkRequest("postgres", "plan_variants_select", "plan_variants", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка вариантов тарифов: %w", err)
	}
	defer variantRows.Close()
	for variantRows.Next() {
		var (
			code    string
			variant domain.PlanVariant
		)
		if err := variantRows.Scan(&code, &variant.Days, &variant.DurationRank); err != nil {
			return nil, fmt.Errorf("чтение варианта тарифа: %w", err)
		}
		if plan, ok := byCode[code]; ok {
			plan.Variants = append(plan.Variants, variant)
		}
	}
	if err := variantRows.Err(); err != nil {
		return nil, fmt.Errorf("обход вариантов тарифов: %w", err)
	}

	plans := make([]domain.PlanDefinition, 0, len(order))
	for _, code := range order {
		plans = append(plans, *byCode[code])
	}
	return plans, nil
}

func (p *Postgres) loadUpgradeDefinitions(ctx context.Context) ([]domain.UpgradeDefinition, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT code, set_level_to, level_delta, priority_bonus, position_rule
FROM upgrade_definitions`)
	metrics.ObserveNetworkRequest("postgres", "upgrade_definitions_select", "upgrade_definitions", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка усилений: %w", err)
	}
	defer rows.Close()

	var defs []domain.UpgradeDefinition
	for rows.Next() {
		var (
			def          domain.UpgradeDefinition
			setLevelTo   sql.NullInt64
			levelDelta   sql.NullInt64
			priorityBonus sql.NullFloat64
			positionRule sql.NullString
		)
		if err := rows.Scan(&def.Code, &setLevelTo, &levelDelta, &priorityBonus, &positionRule); err != nil {
			return nil, fmt.Errorf("чтение усиления: %w", err)
		}
		if setLevelTo.Valid || levelDelta.Valid || priorityBonus.Valid || positionRule.String != "" {
			effect := domain.UpgradeEffect{PositionRule: positionRule.String}
			if setLevelTo.Valid {
				v := int(setLevelTo.Int64)
				effect.SetLevelTo = &v
			}
			if levelDelta.Valid {
				v := int(levelDelta.Int64)
				effect.LevelDelta = &v
			}
			if priorityBonus.Valid {
				v := priorityBonus.Float64
				effect.PriorityBonus = &v
			}
			def.Effect = &effect
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход усилений: %w", err)
	}
	return defs, nil
}

// GroupIDByName возвращает идентификатор группы характеристик по
// нормализованному имени. Реестр мал и кэшируется целиком.
func (p *Postgres) GroupIDByName(ctx context.Context, name string) (int64, bool, error) {
	groups, ok := p.groups.get()
	if !ok {
		ctx, cancel := p.connCtxWithParent(ctx)
		defer cancel()
		start := time.Now()
		rows, err := p.pool.Query(ctx, `SELECT id, lower(name) FROM feature_groups`)
		metrics.ObserveNetworkRequest("postgres", "feature_groups_select", "feature_groups", start, err)
		if err != nil {
			return 0, false, fmt.Errorf("выборка групп характеристик: %w", err)
		}
		defer rows.Close()
		groups = make(map[string]int64)
		for rows.Next() {
			var (
				id       int64
				grpName  string
			)
			if err := rows.Scan(&id, &grpName); err != nil {
				return 0, false, fmt.Errorf("чтение группы характеристик: %w", err)
			}
			groups[grpName] = id
		}
		if err := rows.Err(); err != nil {
			return 0, false, fmt.Errorf("обход групп характеристик: %w", err)
		}
		p.groups.set(groups)
	}
	id, found := groups[name]
	if !found {
		metrics.IncDefinitionMiss("feature_group")
	}
	return id, found, nil
}

// MarkShown батчем проставляет отметку показа. Обновление идемпотентно:
// повторная доставка того же батча лишь переустановит отметку.
func (p *Postgres) MarkShown(ctx context.Context, profileIDs []int64, now time.Time) error {
	if len(profileIDs) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE profiles SET last_shown_at = $2 WHERE id = ANY($1)`, profileIDs, now)
	metrics.ObserveNetworkRequest("postgres", "profiles_mark_shown", "profiles", start, err)
	if err != nil {
		return fmt.Errorf("отметка показов: %w", err)
	}
	return nil
}
