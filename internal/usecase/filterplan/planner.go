package filterplan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"profile-feed/internal/domain"
)

// ErrInvalidRange возвращается при перевёрнутом или отрицательном диапазоне.
var ErrInvalidRange = errors.New("некорректный диапазон")

// ErrInvalidSort возвращается при неизвестном поле или направлении сортировки.
var ErrInvalidSort = errors.New("некорректная сортировка")

// ErrInvalidAvailability возвращается при неразборчивом окне доступности.
var ErrInvalidAvailability = errors.New("некорректное окно доступности")

var validDays = map[string]struct{}{
	"mon": {}, "tue": {}, "wed": {}, "thu": {}, "fri": {}, "sat": {}, "sun": {},
}

// Planner превращает структурированный запрос фильтров в план отбора
// кандидатов. Ранжирование его не касается: план описывает только «кого
// брать», а не «в каком порядке показывать».
type Planner struct {
	groups domain.FeatureGroupRegistry
	log    zerolog.Logger
}

// NewPlanner создаёт планировщик.
func NewPlanner(groups domain.FeatureGroupRegistry, logger zerolog.Logger) *Planner {
	return &Planner{groups: groups, log: logger}
}

// Validate проверяет запрос до каких-либо обращений к хранилищу.
// Ошибки валидации — это ответ 400, а не повод что-то молча исправлять.
func (p *Planner) Validate(req domain.FilterRequest) error {
	if err := validateRange(req.PriceRange, "priceRange"); err != nil {
		return err
	}
	if err := validateRange(req.AgeRange, "ageRange"); err != nil {
		return err
	}
	if req.SortBy != "" {
		switch req.SortBy {
		case domain.SortByCreatedAt, domain.SortByUpdatedAt, domain.SortByName, domain.SortByPrice:
		default:
			return fmt.Errorf("%w: sortBy=%q", ErrInvalidSort, req.SortBy)
		}
	}
	if req.SortOrder != "" && req.SortOrder != domain.SortAsc && req.SortOrder != domain.SortDesc {
		return fmt.Errorf("%w: sortOrder=%q", ErrInvalidSort, req.SortOrder)
	}
	if req.Availability != nil {
		if err := validateAvailability(*req.Availability); err != nil {
			return err
		}
	}
	return nil
}

// Plan строит план отбора кандидатов. Неизвестные группы характеристик
// отбрасываются с записью в лог: частичный фильтр полезнее пустой ошибки.
func (p *Planner) Plan(ctx context.Context, req domain.FilterRequest, now time.Time) (domain.CandidateQuery, error) {
	if err := p.Validate(req); err != nil {
		return domain.CandidateQuery{}, err
	}
	q := domain.CandidateQuery{
		Category: strings.TrimSpace(req.Category),
		City:     strings.TrimSpace(req.City),
		District: strings.TrimSpace(req.District),
		Verified: req.Verified,
		HasVideo: req.HasVideo,
		Now:      now,
	}
	if req.PriceRange != nil {
		q.PriceMin, q.PriceMax = req.PriceRange.Min, req.PriceRange.Max
	}
	if req.AgeRange != nil {
		q.AgeMin, q.AgeMax = req.AgeRange.Min, req.AgeRange.Max
	}
	if req.Availability != nil {
		q.Availability = normalizeAvailability(*req.Availability)
	}

	names := make([]string, 0, len(req.Features))
	for name := range req.Features {
		names = append(names, name)
	}
	sort.Strings(names) // стабильный план при одинаковом запросе
	for _, name := range names {
		normalized := normalizeToken(name)
		if normalized == "" {
			continue
		}
		values := normalizeValues(req.Features[name])
		if len(values) == 0 {
			continue
		}
		groupID, ok, err := p.groups.GroupIDByName(ctx, normalized)
		if err != nil {
			return domain.CandidateQuery{}, fmt.Errorf("группа характеристик %q: %w", normalized, err)
		}
		if !ok {
			p.log.Warn().Str("group", normalized).Msg("filterplan: неизвестная группа характеристик, условие отброшено")
			continue
		}
		q.Features = append(q.Features, domain.FeaturePredicate{GroupID: groupID, Values: values})
	}
	return q, nil
}

func validateRange(r *domain.NumericRange, field string) error {
	if r == nil {
		return nil
	}
	if r.Min != nil && *r.Min < 0 {
		return fmt.Errorf("%w: %s.min < 0", ErrInvalidRange, field)
	}
	if r.Max != nil && *r.Max < 0 {
		return fmt.Errorf("%w: %s.max < 0", ErrInvalidRange, field)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%w: %s.min > %s.max", ErrInvalidRange, field, field)
	}
	return nil
}

func validateAvailability(a domain.AvailabilityFilter) error {
	for _, d := range a.Days {
		if _, ok := validDays[normalizeToken(d)]; !ok {
			return fmt.Errorf("%w: день %q", ErrInvalidAvailability, d)
		}
	}
	for _, v := range []string{a.From, a.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: время %q", ErrInvalidAvailability, v)
		}
	}
	return nil
}

func normalizeAvailability(a domain.AvailabilityFilter) *domain.AvailabilityFilter {
	out := domain.AvailabilityFilter{From: strings.TrimSpace(a.From), To: strings.TrimSpace(a.To)}
	for _, d := range a.Days {
		out.Days = append(out.Days, normalizeToken(d))
	}
	if len(out.Days) == 0 && out.From == "" && out.To == "" {
		return nil
	}
	return &out
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		normalized := normalizeToken(v)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
