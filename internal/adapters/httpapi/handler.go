package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"profile-feed/internal/domain"
	"profile-feed/internal/usecase/feed"
	"profile-feed/internal/usecase/filterplan"
)

// FeedService описывает операции ленты, нужные HTTP-слою.
type FeedService interface {
	BuildFeed(ctx context.Context, page, pageSize int, now time.Time) (domain.FeedPage, error)
	Search(ctx context.Context, req domain.FilterRequest, now time.Time) (domain.SearchPage, error)
}

// Handler обслуживает GET /feed и POST /filters.
type Handler struct {
	service FeedService
	log     zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(service FeedService, logger zerolog.Logger) *Handler {
	return &Handler{service: service, log: logger}
}

// Register вешает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Get("/feed", h.Feed)
	r.Post("/filters", h.Filters)
}

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// Feed отдаёт страницу ранжированной ленты.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", defaultPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "параметр page должен быть целым числом")
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "параметр pageSize должен быть целым числом")
		return
	}

	result, err := h.service.BuildFeed(r.Context(), page, pageSize, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, err, "feed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"profiles":   profilesDTO(result.Items),
			"pagination": result.Pagination,
			"metadata": map[string]any{
				"levelSeparators": separatorsDTO(result.LevelSeparators),
			},
		},
	})
}

// Filters выполняет фильтрованный поиск по каталогу.
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req domain.FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}

	result, err := h.service.Search(r.Context(), req, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, err, "filters")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"profiles":    profilesDTO(result.Profiles),
			"currentPage": result.CurrentPage,
			"totalPages":  result.TotalPages,
			"totalCount":  result.TotalCount,
			"hasNextPage": result.HasNextPage,
			"hasPrevPage": result.HasPrevPage,
			"limit":       result.Limit,
		},
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, feed.ErrInvalidPage),
		errors.Is(err, feed.ErrInvalidPageSize),
		errors.Is(err, filterplan.ErrInvalidRange),
		errors.Is(err, filterplan.ErrInvalidSort),
		errors.Is(err, filterplan.ErrInvalidAvailability):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("op", op).Msg("httpapi: внутренняя ошибка")
		writeError(w, http.StatusInternalServerError, "внутренняя ошибка сервиса")
	}
}

type profileDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	City     string `json:"city,omitempty"`
	District string `json:"district,omitempty"`
	Age      int    `json:"age"`
	Price    int64  `json:"price"`
	Verified bool   `json:"verified"`
	HasVideo bool   `json:"hasVideo"`
	Level    int    `json:"level"`
}

func profilesDTO(items []domain.RankedProfile) []profileDTO {
	out := make([]profileDTO, 0, len(items))
	for _, it := range items {
		out = append(out, profileDTO{
			ID:       it.Profile.ID,
			Name:     it.Profile.Name,
			Category: it.Profile.Category,
			City:     it.Profile.City,
			District: it.Profile.District,
			Age:      it.Profile.Age,
			Price:    it.Profile.Price,
			Verified: it.Profile.Verified,
			HasVideo: it.Profile.HasVideo,
			Level:    it.EffectiveLevel,
		})
	}
	return out
}

func separatorsDTO(separators []domain.LevelSeparator) []domain.LevelSeparator {
	if separators == nil {
		return []domain.LevelSeparator{}
	}
	return separators
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
