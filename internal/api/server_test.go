package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/economizaja/cotador/internal/collect"
	"github.com/economizaja/cotador/internal/models"
	"github.com/economizaja/cotador/internal/quote"
	"github.com/economizaja/cotador/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	st := store.New(db)

	registry, err := collect.NewRegistry([]collect.Source{
		{Name: "mercado a", Kind: collect.KindMock},
		{Name: "mercado b", Kind: collect.KindMock},
	}, collect.SiteRule{}, nil)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	set := collect.NewSet()
	set.Register(collect.KindMock, collect.NewMockCollector())

	normalizer, err := quote.LoadNormalizer("")
	if err != nil {
		t.Fatalf("load normalizer: %v", err)
	}

	pipeline := quote.NewPipeline(st, registry, set, normalizer, quote.Config{})
	return NewServer(st, registry, pipeline), st
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" || body["service"] != "cotador" {
		t.Fatalf("body = %v", body)
	}
}

func TestQuoteLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/cotar/", `{"itens":["arroz","café"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /cotar/ status = %d, body %s", rec.Code, rec.Body.String())
	}

	var q models.Quote
	decode(t, rec, &q)
	if q.ID == "" || q.Currency != "BRL" || q.Source != "mock" {
		t.Fatalf("quote = %+v", q)
	}
	want := map[string]float64{"mercado a": 43.0, "mercado b": 43.0}
	if !reflect.DeepEqual(q.Totals, want) {
		t.Fatalf("totals = %v, want %v", q.Totals, want)
	}

	rec = doJSON(t, s, http.MethodGet, "/cotacoes_summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /cotacoes_summary status = %d", rec.Code)
	}
	var summaries struct {
		Count int                     `json:"count"`
		Items []models.HistorySummary `json:"items"`
	}
	decode(t, rec, &summaries)
	if summaries.Count != 1 || len(summaries.Items) != 1 || summaries.Items[0].ID != q.ID {
		t.Fatalf("summaries = %+v", summaries)
	}

	rec = doJSON(t, s, http.MethodGet, "/cotacoes/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /cotacoes/latest status = %d", rec.Code)
	}
	var latest models.Quote
	decode(t, rec, &latest)
	if latest.ID != q.ID {
		t.Fatalf("latest = %s, want %s", latest.ID, q.ID)
	}

	rec = doJSON(t, s, http.MethodGet, "/cotacoes/"+q.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /cotacoes/:id status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/cotacoes/", "")
	var listing struct {
		Count int      `json:"count"`
		IDs   []string `json:"ids"`
	}
	decode(t, rec, &listing)
	if listing.Count != 1 || listing.IDs[0] != q.ID {
		t.Fatalf("listing = %+v", listing)
	}

	rec = doJSON(t, s, http.MethodDelete, "/cotacoes/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /cotacoes/ status = %d", rec.Code)
	}
	var cleared map[string]int
	decode(t, rec, &cleared)
	if cleared["deleted"] != 1 {
		t.Fatalf("cleared = %v", cleared)
	}

	if rec = doJSON(t, s, http.MethodGet, "/cotacoes/latest", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("latest after clear status = %d", rec.Code)
	}
}

func TestQuoteEndpoint_EmptyList(t *testing.T) {
	s, _ := newTestServer(t)

	for _, body := range []string{`{"itens":[]}`, `{"itens":["  ",""]}`, `{}`} {
		rec := doJSON(t, s, http.MethodPost, "/cotar/", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST /cotar/ %s status = %d, want 400", body, rec.Code)
		}
	}
}

func TestQuoteEndpoint_MalformedBody(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/cotar/", `{"itens":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetQuote_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/cotacoes/cotacao_inexistente", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] == "" {
		t.Fatalf("body = %v, want an error payload", body)
	}
}

func TestRefreshPrices(t *testing.T) {
	s, st := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/atualizar_precos/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var stats struct {
		UpdatedMarkets int `json:"updated_markets"`
		Entries        int `json:"entries"`
		Errors         int `json:"errors"`
	}
	decode(t, rec, &stats)

	catalog := len(collect.DefaultMockCatalog())
	if stats.UpdatedMarkets != 2 || stats.Entries != 2*catalog || stats.Errors != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	counts, err := st.CountByMarket(context.Background())
	if err != nil {
		t.Fatalf("CountByMarket: %v", err)
	}
	if counts["mercado a"] != catalog || counts["mercado b"] != catalog {
		t.Fatalf("counts = %v", counts)
	}
}

func TestRefreshPrices_CustomSources(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/atualizar_precos/", `{"sources":[{"name":"extra","kind":"mock"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var stats struct {
		UpdatedMarkets int `json:"updated_markets"`
		Entries        int `json:"entries"`
	}
	decode(t, rec, &stats)
	if stats.UpdatedMarkets != 1 || stats.Entries != len(collect.DefaultMockCatalog()) {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRefreshPrices_RejectsInvalidSource(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/atualizar_precos/", `{"sources":[{"name":"quebrada","kind":"warp"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAPIKeyGuard(t *testing.T) {
	t.Setenv("COTADOR_API_KEY", "segredo")
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/cotacoes/", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/cotacoes/", nil)
	req.Header.Set(headerAPIKey, "segredo")
	out := httptest.NewRecorder()
	s.Echo.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("with key: status = %d, want 200", out.Code)
	}

	if rec := doJSON(t, s, http.MethodGet, "/", ""); rec.Code != http.StatusOK {
		t.Fatalf("health must stay open: status = %d", rec.Code)
	}
}

func TestShoppingListEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/lista/", `{"itens":[" arroz ","feijão"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /lista/ status = %d, body %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	decode(t, rec, &saved)
	if !strings.HasPrefix(saved.ID, "lista_") || saved.Count != 2 {
		t.Fatalf("saved = %+v", saved)
	}

	rec = doJSON(t, s, http.MethodGet, "/listas/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /listas/ status = %d", rec.Code)
	}
	var listing struct {
		Count int                   `json:"count"`
		Items []models.ShoppingList `json:"items"`
	}
	decode(t, rec, &listing)
	if listing.Count != 1 || !reflect.DeepEqual(listing.Items[0].Items, []string{"arroz", "feijão"}) {
		t.Fatalf("listing = %+v", listing)
	}

	if rec := doJSON(t, s, http.MethodPost, "/lista/", `{"itens":["   "]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank list status = %d, want 400", rec.Code)
	}
}

func TestSummariesLimit(t *testing.T) {
	s, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, s, http.MethodPost, "/cotar/", fmt.Sprintf(`{"itens":["arroz %d"]}`, i))
		if rec.Code != http.StatusOK {
			t.Fatalf("seed quote %d: status = %d", i, rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/cotacoes_summary?limit=2", "")
	var summaries struct {
		Count int `json:"count"`
	}
	decode(t, rec, &summaries)
	if summaries.Count != 2 {
		t.Fatalf("count = %d, want 2", summaries.Count)
	}
}
