package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"profile-feed/internal/domain"
	"profile-feed/internal/usecase/feed"
	"profile-feed/internal/usecase/filterplan"
)

type stubService struct {
	feedPage   domain.FeedPage
	searchPage domain.SearchPage
	feedErr    error
	searchErr  error

	gotPage     int
	gotPageSize int
	gotFilter   domain.FilterRequest
}

func (s *stubService) BuildFeed(_ context.Context, page, pageSize int, _ time.Time) (domain.FeedPage, error) {
	s.gotPage, s.gotPageSize = page, pageSize
	if s.feedErr != nil {
		return domain.FeedPage{}, s.feedErr
	}
	return s.feedPage, nil
}

func (s *stubService) Search(_ context.Context, req domain.FilterRequest, _ time.Time) (domain.SearchPage, error) {
	s.gotFilter = req
	if s.searchErr != nil {
		return domain.SearchPage{}, s.searchErr
	}
	return s.searchPage, nil
}

func newTestRouter(s *stubService) chi.Router {
	r := chi.NewRouter()
	NewHandler(s, zerolog.Nop()).Register(r)
	return r
}

func TestFeedSuccessShape(t *testing.T) {
	svc := &stubService{feedPage: domain.FeedPage{
		Items: []domain.RankedProfile{
			{Profile: domain.Profile{ID: 1, Name: "Анна"}, EffectiveLevel: 2, PriorityScore: 10},
		},
		Pagination:      domain.Pagination{Page: 1, PageSize: 20, Total: 1, TotalPages: 1},
		LevelSeparators: []domain.LevelSeparator{{Level: 2, StartIndex: 0, Count: 1}},
	}}
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed?page=1&pageSize=20", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Profiles   []profileDTO      `json:"profiles"`
			Pagination domain.Pagination `json:"pagination"`
			Metadata   struct {
				LevelSeparators []domain.LevelSeparator `json:"levelSeparators"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("не разобрали ответ: %v", err)
	}
	if !body.Success {
		t.Fatal("ожидали success=true")
	}
	if len(body.Data.Profiles) != 1 || body.Data.Profiles[0].Level != 2 {
		t.Fatalf("неожиданные профили: %+v", body.Data.Profiles)
	}
	if len(body.Data.Metadata.LevelSeparators) != 1 {
		t.Fatalf("ожидали один разделитель уровней, получили %+v", body.Data.Metadata)
	}
}

func TestFeedDefaults(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if svc.gotPage != 1 || svc.gotPageSize != 20 {
		t.Fatalf("ожидали значения по умолчанию 1/20, получили %d/%d", svc.gotPage, svc.gotPageSize)
	}
}

func TestFeedNonNumericPage(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed?page=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("нечисловой page должен давать 400, получили %d", rec.Code)
	}
}

func TestFeedValidationErrorMapsTo400(t *testing.T) {
	svc := &stubService{feedErr: feed.ErrInvalidPageSize}
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed?page=1&pageSize=500", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Fatalf("ожидали поле error в теле: %s", rec.Body.String())
	}
}

func TestFiltersSuccessShape(t *testing.T) {
	svc := &stubService{searchPage: domain.SearchPage{
		Profiles:    []domain.RankedProfile{{Profile: domain.Profile{ID: 7, Price: 5000}, EffectiveLevel: 1}},
		CurrentPage: 2,
		TotalPages:  3,
		TotalCount:  41,
		HasNextPage: true,
		HasPrevPage: true,
		Limit:       20,
	}}
	body := `{"priceRange":{"min":50000},"page":2,"limit":20,"sortBy":"price","sortOrder":"asc"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/filters", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newTestRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if svc.gotFilter.PriceRange == nil || *svc.gotFilter.PriceRange.Min != 50000 {
		t.Fatalf("фильтр не дошёл до сервиса: %+v", svc.gotFilter)
	}
	var resp struct {
		Data struct {
			CurrentPage int  `json:"currentPage"`
			TotalCount  int  `json:"totalCount"`
			HasNextPage bool `json:"hasNextPage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("не разобрали ответ: %v", err)
	}
	if resp.Data.CurrentPage != 2 || resp.Data.TotalCount != 41 || !resp.Data.HasNextPage {
		t.Fatalf("неожиданная пагинация: %+v", resp.Data)
	}
}

func TestFiltersMalformedBody(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/filters", strings.NewReader("{not json"))
	newTestRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestFiltersInvalidSortMapsTo400(t *testing.T) {
	svc := &stubService{searchErr: filterplan.ErrInvalidSort}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/filters", strings.NewReader(`{"sortBy":"rating"}`))
	newTestRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestFiltersRepoFailureMapsTo500(t *testing.T) {
	svc := &stubService{searchErr: context.DeadlineExceeded}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/filters", strings.NewReader(`{}`))
	newTestRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидали 500, получили %d", rec.Code)
	}
}
