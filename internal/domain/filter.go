package domain

import "time"

// Поля сортировки, разрешённые в POST /filters.
const (
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByName      = "name"
	SortByPrice     = "price"
)

// Направления сортировки.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// NumericRange задаёт границы диапазона; nil означает «не ограничено с этой стороны».
type NumericRange struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// AvailabilityFilter описывает окно доступности: дни недели и интервал времени.
type AvailabilityFilter struct {
	Days []string `json:"days,omitempty"`
	From string   `json:"from,omitempty"`
	To   string   `json:"to,omitempty"`
}

// FilterRequest — закрытый набор распознаваемых фильтров каталога.
// Всё вне этого набора отбрасывается на этапе планирования.
type FilterRequest struct {
	Category     string              `json:"category,omitempty"`
	City         string              `json:"city,omitempty"`
	District     string              `json:"district,omitempty"`
	PriceRange   *NumericRange       `json:"priceRange,omitempty"`
	AgeRange     *NumericRange       `json:"ageRange,omitempty"`
	Features     map[string][]string `json:"features,omitempty"`
	Availability *AvailabilityFilter `json:"availability,omitempty"`
	Verified     *bool               `json:"verified,omitempty"`
	HasVideo     *bool               `json:"hasVideo,omitempty"`

	Page      int    `json:"page,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	SortBy    string `json:"sortBy,omitempty"`
	SortOrder string `json:"sortOrder,omitempty"`
}

// FeaturePredicate — группа характеристик: значения внутри группы объединяются по ИЛИ.
type FeaturePredicate struct {
	GroupID int64
	Values  []string
}

// CandidateQuery — план отбора кандидатов, построенный планировщиком.
// Базовый инвариант (visible, not deleted, тариф не истёк) репозиторий
// накладывает всегда, независимо от содержимого плана.
type CandidateQuery struct {
	Category     string
	City         string
	District     string
	PriceMin     *int64
	PriceMax     *int64
	AgeMin       *int64
	AgeMax       *int64
	Features     []FeaturePredicate
	Availability *AvailabilityFilter
	Verified     *bool
	HasVideo     *bool
	Now          time.Time
}

// SearchPage — результат POST /filters.
type SearchPage struct {
	Profiles    []RankedProfile
	CurrentPage int
	TotalPages  int
	TotalCount  int
	HasNextPage bool
	HasPrevPage bool
	Limit       int
}
