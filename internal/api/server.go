package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/economizaja/cotador/internal/collect"
	"github.com/economizaja/cotador/internal/quote"
	"github.com/economizaja/cotador/internal/store"
)

// Server wires the HTTP surface over the quote pipeline and the store.
type Server struct {
	Echo     *echo.Echo
	store    *store.Store
	registry *collect.Registry
	pipeline *quote.Pipeline
}

func NewServer(st *store.Store, registry *collect.Registry, pipeline *quote.Pipeline) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerAPIKey},
	}))
	e.Use(rateLimiter())
	e.Use(apiKeyCheck())

	s := &Server{Echo: e, store: st, registry: registry, pipeline: pipeline}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/", s.handleHealth)
	s.Echo.POST("/cotar/", s.handleQuote)
	s.Echo.GET("/cotacoes_summary", s.handleSummaries)
	s.Echo.GET("/cotacoes/", s.handleListQuotes)
	s.Echo.GET("/cotacoes/latest", s.handleLatestQuote)
	s.Echo.GET("/cotacoes/:id", s.handleGetQuote)
	s.Echo.DELETE("/cotacoes/", s.handleClearQuotes)
	s.Echo.POST("/atualizar_precos/", s.handleRefreshPrices)
	s.Echo.POST("/lista/", s.handleSaveList)
	s.Echo.GET("/listas/", s.handleListLists)
}

// Start begins serving on addr and blocks.
func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "cotador",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type quoteRequest struct {
	Itens []string `json:"itens"`
}

func (s *Server) handleQuote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorPayload("corpo da requisição inválido"))
	}

	q, err := s.pipeline.Run(c.Request().Context(), req.Itens)
	if err != nil {
		if errors.Is(err, quote.ErrEmptyList) {
			return c.JSON(http.StatusBadRequest, errorPayload("lista de itens vazia"))
		}
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao gerar cotação"))
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) handleSummaries(c echo.Context) error {
	limit := queryInt(c, "limit", 10)
	if limit > 100 {
		limit = 100
	}

	summaries, err := s.store.ListSummaries(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao listar cotações"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(summaries),
		"items": summaries,
	})
}

func (s *Server) handleListQuotes(c echo.Context) error {
	ids, err := s.store.ListQuoteIDs(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao listar cotações"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(ids),
		"ids":   ids,
	})
}

func (s *Server) handleLatestQuote(c echo.Context) error {
	q, err := s.store.LatestQuote(c.Request().Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorPayload("nenhuma cotação armazenada"))
		}
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao carregar cotação"))
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) handleGetQuote(c echo.Context) error {
	q, err := s.store.GetQuote(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorPayload("cotação não encontrada"))
		}
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao carregar cotação"))
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) handleClearQuotes(c echo.Context) error {
	deleted, err := s.store.ClearQuotes(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao limpar histórico"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": deleted})
}

type refreshRequest struct {
	Sources []collect.Source `json:"sources"`
}

func (s *Server) handleRefreshPrices(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorPayload("corpo da requisição inválido"))
	}

	sources := s.registry.Sources()
	if len(req.Sources) > 0 {
		applied := make([]collect.Source, 0, len(req.Sources))
		for _, src := range req.Sources {
			validated, err := s.registry.Apply(src)
			if err != nil {
				return c.JSON(http.StatusBadRequest, errorPayload(err.Error()))
			}
			applied = append(applied, validated)
		}
		sources = applied
	}

	stats := s.pipeline.Populate(c.Request().Context(), sources, nil)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"updated_markets": stats.Markets,
		"entries":         stats.Entries,
		"errors":          stats.Errors,
	})
}

type listRequest struct {
	Itens []string `json:"itens"`
}

func (s *Server) handleSaveList(c echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorPayload("corpo da requisição inválido"))
	}

	var items []string
	for _, item := range req.Itens {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return c.JSON(http.StatusBadRequest, errorPayload("lista de itens vazia"))
	}

	list, err := s.store.SaveList(c.Request().Context(), items)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao salvar lista"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":    list.ID,
		"count": len(list.Items),
	})
}

func (s *Server) handleListLists(c echo.Context) error {
	limit := queryInt(c, "limit", 10)
	if limit > 100 {
		limit = 100
	}

	lists, err := s.store.ListLists(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorPayload("falha ao listar listas"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(lists),
		"items": lists,
	})
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func corsOrigins() []string {
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		if origins := splitCSV(env); len(origins) > 0 {
			return origins
		}
	}
	return []string{"*"}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
