package domain

import (
	"math"
	"time"
)

// Уровни видимости: 1 — самый заметный, 5 — базовый нижний ярус.
const (
	MinLevel = 1
	MaxLevel = 5
)

// PositionRuleBack отправляет анкету в конец своего уровня независимо от баллов.
const PositionRuleBack = "back"

// PlanAssignment описывает действующий тариф анкеты.
type PlanAssignment struct {
	Code         string
	DurationDays int
	StartedAt    time.Time
	ExpiresAt    time.Time
}

// Expired сообщает, истёк ли тариф к моменту now.
func (a PlanAssignment) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !a.ExpiresAt.After(now)
}

// Upgrade хранит купленное усиление анкеты с окном действия.
type Upgrade struct {
	Code        string
	StartAt     time.Time
	EndAt       time.Time
	PurchasedAt time.Time
}

// ActiveAt сообщает, действует ли усиление в момент now (полуинтервал [StartAt, EndAt)).
func (u Upgrade) ActiveAt(now time.Time) bool {
	return !u.StartAt.After(now) && now.Before(u.EndAt)
}

// Profile представляет анкету в каталоге.
type Profile struct {
	ID          int64
	Name        string
	Category    string
	City        string
	District    string
	Age         int
	Price       int64
	Verified    bool
	HasVideo    bool
	Visible     bool
	IsDeleted   bool
	Plan        *PlanAssignment
	Upgrades    []Upgrade
	LastShownAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Eligible проверяет базовый инвариант попадания в выдачу.
func (p Profile) Eligible(now time.Time) bool {
	if !p.Visible || p.IsDeleted {
		return false
	}
	if p.Plan != nil && p.Plan.Expired(now) {
		return false
	}
	return true
}

// PlanVariant описывает вариант тарифа по длительности.
type PlanVariant struct {
	Days         int
	DurationRank float64
}

// PlanDefinition описывает тариф: базовый уровень и варианты длительности.
type PlanDefinition struct {
	Code     string
	Level    int
	Variants []PlanVariant
}

// VariantByDays возвращает вариант с указанной длительностью.
func (d PlanDefinition) VariantByDays(days int) (PlanVariant, bool) {
	for _, v := range d.Variants {
		if v.Days == days {
			return v, true
		}
	}
	return PlanVariant{}, false
}

// UpgradeEffect описывает влияние усиления на уровень и баллы.
type UpgradeEffect struct {
	SetLevelTo    *int
	LevelDelta    *int
	PriorityBonus *float64
	PositionRule  string
}

// UpgradeDefinition описывает усиление; Effect может отсутствовать.
type UpgradeDefinition struct {
	Code   string
	Effect *UpgradeEffect
}

// Definitions — неизменяемый индекс справочников тарифов и усилений,
// загруженный одним батчем перед проходом ранжирования.
type Definitions struct {
	plans    map[string]PlanDefinition
	upgrades map[string]UpgradeDefinition
}

// NewDefinitions строит индекс по кодам.
func NewDefinitions(plans []PlanDefinition, upgrades []UpgradeDefinition) Definitions {
	d := Definitions{
		plans:    make(map[string]PlanDefinition, len(plans)),
		upgrades: make(map[string]UpgradeDefinition, len(upgrades)),
	}
	for _, p := range plans {
		d.plans[p.Code] = p
	}
	for _, u := range upgrades {
		d.upgrades[u.Code] = u
	}
	return d
}

// PlanByCode возвращает тариф по коду.
func (d Definitions) PlanByCode(code string) (PlanDefinition, bool) {
	p, ok := d.plans[code]
	return p, ok
}

// UpgradeByCode возвращает усиление по коду.
func (d Definitions) UpgradeByCode(code string) (UpgradeDefinition, bool) {
	u, ok := d.upgrades[code]
	return u, ok
}

// RankedProfile — анкета с вычисленным уровнем и баллами. Живёт один проход.
type RankedProfile struct {
	Profile        Profile
	EffectiveLevel int
	PriorityScore  float64
}

// LevelSeparator отмечает, где внутри страницы начинается очередной уровень.
type LevelSeparator struct {
	Level      int `json:"level"`
	StartIndex int `json:"startIndex"`
	Count      int `json:"count"`
}

// Pagination описывает страницу выдачи.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// FeedPage — результат сборки ленты.
type FeedPage struct {
	Items           []RankedProfile
	Pagination      Pagination
	LevelSeparators []LevelSeparator
}

// TotalPages считает количество страниц выдачи.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}
