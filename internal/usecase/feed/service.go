package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"profile-feed/internal/domain"
	"profile-feed/internal/infra/metrics"
	"profile-feed/internal/usecase/filterplan"
	"profile-feed/internal/usecase/rank"
)

// ErrInvalidPage возвращается при page < 1.
var ErrInvalidPage = errors.New("номер страницы должен быть не меньше 1")

// ErrInvalidPageSize возвращается при размере страницы вне допустимого диапазона.
var ErrInvalidPageSize = errors.New("размер страницы вне допустимого диапазона")

// DefaultMaxPageSize ограничивает размер страницы сверху.
const DefaultMaxPageSize = 100

const defaultSearchLimit = 20

const exposureDispatchTimeout = 10 * time.Second

// Service собирает ленту: отбор кандидатов, ранжирование, нарезка страниц,
// метки уровней и фоновая фиксация показов.
type Service struct {
	profiles    domain.ProfileRepo
	defs        domain.DefinitionSource
	planner     *filterplan.Planner
	engine      *rank.Engine
	sink        domain.ExposureSink
	cache       domain.Cache
	cacheTTL    time.Duration
	maxPageSize int
	log         zerolog.Logger
}

// NewService создаёт сервис ленты. sink и cache могут быть nil:
// без sink показы не фиксируются, без cache результаты не кэшируются.
func NewService(profiles domain.ProfileRepo, defs domain.DefinitionSource, planner *filterplan.Planner, engine *rank.Engine, sink domain.ExposureSink, cache domain.Cache, cacheTTL time.Duration, maxPageSize int, logger zerolog.Logger) *Service {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &Service{
		profiles:    profiles,
		defs:        defs,
		planner:     planner,
		engine:      engine,
		sink:        sink,
		cache:       cache,
		cacheTTL:    cacheTTL,
		maxPageSize: maxPageSize,
		log:         logger,
	}
}

// BuildFeed собирает страницу ранжированной ленты на момент now.
func (s *Service) BuildFeed(ctx context.Context, page, pageSize int, now time.Time) (domain.FeedPage, error) {
	if page < 1 {
		return domain.FeedPage{}, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > s.maxPageSize {
		return domain.FeedPage{}, ErrInvalidPageSize
	}
	start := time.Now()
	metrics.IncFeedRequest()

	ordered, err := s.rankedCandidates(ctx, domain.CandidateQuery{Now: now}, now)
	if err != nil {
		return domain.FeedPage{}, err
	}

	separators := levelSeparators(ordered)
	items := slicePage(ordered, page, pageSize)
	result := domain.FeedPage{
		Items:           items,
		LevelSeparators: pageSeparators(separators, (page-1)*pageSize, len(items)),
		Pagination: domain.Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      len(ordered),
			TotalPages: domain.TotalPages(len(ordered), pageSize),
		},
	}

	s.dispatchExposure(items, now, domain.ExposureCauseFeed)
	metrics.FeedBuildSeconds.Observe(time.Since(start).Seconds())
	return result, nil
}

// Search выполняет POST /filters: планирование, отбор, упорядочивание и
// нарезка страницы. Без явной сортировки действует ранжирование ленты и
// фиксируются показы; явная сортировка — это витрина каталога, ротацию
// она не сдвигает.
func (s *Service) Search(ctx context.Context, req domain.FilterRequest, now time.Time) (domain.SearchPage, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = defaultSearchLimit
	}
	if req.Page < 1 {
		return domain.SearchPage{}, ErrInvalidPage
	}
	if req.Limit < 1 || req.Limit > s.maxPageSize {
		return domain.SearchPage{}, ErrInvalidPageSize
	}

	query, err := s.planner.Plan(ctx, req, now)
	if err != nil {
		return domain.SearchPage{}, err
	}
	metrics.IncFilterRequest()

	key := searchCacheKey(query, req)
	if s.cache != nil {
		if raw, err := s.cache.Get(key); err == nil && len(raw) > 0 {
			var cached domain.SearchPage
			if err := json.Unmarshal(raw, &cached); err == nil {
				metrics.IncResultCache(true)
				return cached, nil
			}
		}
		metrics.IncResultCache(false)
	}

	var ordered []domain.RankedProfile
	ranked := req.SortBy == ""
	if ranked {
		ordered, err = s.rankedCandidates(ctx, query, now)
		if err != nil {
			return domain.SearchPage{}, err
		}
	} else {
		candidates, err := s.profiles.FindEligibleProfiles(ctx, query)
		if err != nil {
			return domain.SearchPage{}, fmt.Errorf("отбор кандидатов: %w", err)
		}
		defs, err := s.defs.LoadDefinitions(ctx)
		if err != nil {
			return domain.SearchPage{}, fmt.Errorf("загрузка справочников: %w", err)
		}
		ordered = s.engine.Annotate(candidates, defs, now)
		sortExplicit(ordered, req.SortBy, req.SortOrder)
	}

	items := slicePage(ordered, req.Page, req.Limit)
	totalPages := domain.TotalPages(len(ordered), req.Limit)
	result := domain.SearchPage{
		Profiles:    items,
		CurrentPage: req.Page,
		TotalPages:  totalPages,
		TotalCount:  len(ordered),
		HasNextPage: req.Page < totalPages,
		HasPrevPage: req.Page > 1,
		Limit:       req.Limit,
	}

	if ranked {
		s.dispatchExposure(items, now, domain.ExposureCauseSearch)
	}
	if s.cache != nil && s.cacheTTL > 0 {
		if raw, err := json.Marshal(result); err == nil {
			if err := s.cache.Set(key, raw, s.cacheTTL); err != nil {
				s.log.Warn().Err(err).Msg("feed: не удалось сохранить результат в кэш")
			}
		}
	}
	return result, nil
}

// rankedCandidates загружает снимок кандидатов и упорядочивает его движком.
// Ранжирование идёт по снимку целиком: границы страниц режутся по готовой
// последовательности, без отдельного счётного запроса.
func (s *Service) rankedCandidates(ctx context.Context, query domain.CandidateQuery, now time.Time) ([]domain.RankedProfile, error) {
	candidates, err := s.profiles.FindEligibleProfiles(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("отбор кандидатов: %w", err)
	}
	defs, err := s.defs.LoadDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка справочников: %w", err)
	}
	items := s.engine.Annotate(candidates, defs, now)
	rank.Sort(items)
	return items, nil
}

// dispatchExposure в фоне помечает показанные анкеты. Ответ клиенту не
// ждёт записи; отказ записи — предмет лога, а не ответа. Отмена запроса
// запись не откатывает: воркер живёт на собственном контексте.
func (s *Service) dispatchExposure(items []domain.RankedProfile, now time.Time, cause domain.ExposureCause) {
	if s.sink == nil || len(items) == 0 {
		return
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.Profile.ID
	}
	metrics.ObserveExposureBatch(len(ids))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), exposureDispatchTimeout)
		defer cancel()
		if err := s.sink.MarkShown(ctx, ids, now); err != nil {
			metrics.IncExposureError()
			s.log.Error().Err(err).Str("cause", string(cause)).Ints64("profiles", ids).Msg("feed: не удалось зафиксировать показы")
		}
	}()
}

// levelSeparators считает по полной последовательности, где начинается
// каждый присутствующий уровень и сколько анкет он даёт.
func levelSeparators(items []domain.RankedProfile) []domain.LevelSeparator {
	var out []domain.LevelSeparator
	for i, it := range items {
		if len(out) == 0 || out[len(out)-1].Level != it.EffectiveLevel {
			out = append(out, domain.LevelSeparator{Level: it.EffectiveLevel, StartIndex: i})
		}
		out[len(out)-1].Count++
	}
	return out
}

// pageSeparators переводит глобальные метки уровней в координаты страницы:
// пересечение с окном, старт в пределах страницы, пустые пересечения
// отбрасываются.
func pageSeparators(separators []domain.LevelSeparator, offset, pageLen int) []domain.LevelSeparator {
	var out []domain.LevelSeparator
	for _, sep := range separators {
		from := sep.StartIndex
		if from < offset {
			from = offset
		}
		to := sep.StartIndex + sep.Count
		if to > offset+pageLen {
			to = offset + pageLen
		}
		if to <= from {
			continue
		}
		out = append(out, domain.LevelSeparator{Level: sep.Level, StartIndex: from - offset, Count: to - from})
	}
	return out
}

func slicePage(items []domain.RankedProfile, page, pageSize int) []domain.RankedProfile {
	from := (page - 1) * pageSize
	if from >= len(items) {
		return nil
	}
	to := from + pageSize
	if to > len(items) {
		to = len(items)
	}
	return items[from:to]
}

// sortExplicit применяет сортировку, запрошенную клиентом. Направление по
// умолчанию — по убыванию (свежие первыми).
func sortExplicit(items []domain.RankedProfile, sortBy, sortOrder string) {
	asc := sortOrder == domain.SortAsc
	sort.SliceStable(items, func(i, j int) bool {
		c := compareBy(sortBy, items[i].Profile, items[j].Profile)
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareBy(sortBy string, a, b domain.Profile) int {
	switch sortBy {
	case domain.SortByName:
		return strings.Compare(a.Name, b.Name)
	case domain.SortByPrice:
		switch {
		case a.Price < b.Price:
			return -1
		case a.Price > b.Price:
			return 1
		}
		return 0
	case domain.SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// searchCacheKey строит ключ кэша по нормализованному запросу. Момент now
// в ключ не входит, иначе кэш никогда бы не попадал.
func searchCacheKey(query domain.CandidateQuery, req domain.FilterRequest) string {
	query.Now = time.Time{}
	payload, _ := json.Marshal(struct {
		Query     domain.CandidateQuery
		Page      int
		Limit     int
		SortBy    string
		SortOrder string
	}{query, req.Page, req.Limit, req.SortBy, req.SortOrder})
	sum := sha256.Sum256(payload)
	return "feed:search:" + hex.EncodeToString(sum[:])
}
