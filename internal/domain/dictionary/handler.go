package dictionary

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

// Handler provides REST endpoints for the MKB-10 dictionary.
type Handler struct {
	svc         *Service
	syncTimeout time.Duration
}

// NewHandler creates a new dictionary handler. syncTimeout bounds a manually
// triggered sync independently of the request deadline.
func NewHandler(svc *Service, syncTimeout time.Duration) *Handler {
	return &Handler{svc: svc, syncTimeout: syncTimeout}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dictionary")
	g.GET("", h.Search)
	g.GET("/status", h.Status)
	g.POST("/update", h.Update)
	g.GET("/:code", h.GetByCode)
}

// Search handles GET /api/v1/dictionary?query=&page=&size=&sort=
func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		query = c.QueryParam("search")
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.Search(c.Request().Context(), query, pg)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg))
}

// GetByCode handles GET /api/v1/dictionary/:code
func (h *Handler) GetByCode(c echo.Context) error {
	e, err := h.svc.GetByCode(c.Request().Context(), c.Param("code"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "diagnosis code not found")
	}
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, e)
}

// UpdateResponse acknowledges a manual sync.
type UpdateResponse struct {
	Outcome Outcome    `json:"outcome"`
	Updated int        `json:"updated"`
	Origin  Origin     `json:"origin,omitempty"`
	Parse   ParseStats `json:"parse"`
}

// Update handles POST /api/v1/dictionary/update. The sync keeps running if
// the client disconnects.
func (h *Handler) Update(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.syncTimeout)
	defer cancel()

	res, err := h.svc.SyncNow(ctx)
	if err != nil {
		return syncHTTPError(err)
	}
	return c.JSON(http.StatusOK, UpdateResponse{
		Outcome: res.Outcome,
		Updated: res.Updated,
		Origin:  res.Origin,
		Parse:   res.Parse,
	})
}

// Status handles GET /api/v1/dictionary/status
func (h *Handler) Status(c echo.Context) error {
	st, err := h.svc.Status(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func syncHTTPError(err error) error {
	if errors.Is(err, ErrSyncInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.Stage == StageStore {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dictionary store unavailable").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
}

func storeError(err error) error {
	return echo.NewHTTPError(http.StatusServiceUnavailable, "dictionary store unavailable").SetInternal(err)
}
