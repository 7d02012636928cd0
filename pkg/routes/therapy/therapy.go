package therapy

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/query"
)

// Handler serves the therapy lookup endpoints.
type Handler struct {
	service *query.Service
}

func NewHandler(service *query.Service) *Handler {
	return &Handler{service: service}
}

// Register registers therapy routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/search", h.Search)
	g.GET("/normalize", h.Normalize)
	g.GET("/sources", h.Sources)
}

// Search answers a per-source query. Sources are passed comma-separated,
// e.g. ?q=cisplatin&sources=rxnorm,drugbank.
func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()

	q := c.QueryParam("q")
	sources, err := parseSources(c.QueryParam("sources"))
	if err != nil {
		return err
	}

	resp, err := h.service.Search(ctx, q, sources)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	return c.JSON(http.StatusOK, resp)
}

// Normalize answers a merged-group query.
func (h *Handler) Normalize(c echo.Context) error {
	ctx := c.Request().Context()

	resp, err := h.service.Normalize(ctx, c.QueryParam("q"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "normalize failed")
	}

	return c.JSON(http.StatusOK, resp)
}

// Sources lists the release and license metadata of every loaded catalog.
func (h *Handler) Sources(c echo.Context) error {
	ctx := c.Request().Context()

	metas, err := h.service.ListSources(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sources")
	}

	return c.JSON(http.StatusOK, metas)
}

func parseSources(raw string) ([]models.SourceName, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var sources []models.SourceName
	for _, part := range strings.Split(raw, ",") {
		src := models.SourceName(strings.ToLower(strings.TrimSpace(part)))
		if src == "" {
			continue
		}
		if !src.Valid() {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source %q", part)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
