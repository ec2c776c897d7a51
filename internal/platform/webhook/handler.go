package webhook

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/palu-ci/palu/internal/platform/auth"
)

// Handler exposes the delivery log and a test send to administrators.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/webhooks", auth.RequireRole(auth.RoleAdmin))
	g.GET("/deliveries", h.ListDeliveries)
	g.POST("/test", h.Test)
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, h.dispatcher.Deliveries(limit))
}

// Test sends a ping event to every endpoint once, synchronously.
func (h *Handler) Test(c echo.Context) error {
	if h.dispatcher.Endpoints() == 0 {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no webhook endpoints configured")
	}
	ev, err := NewEvent(EventTest, "", map[string]string{"message": "test delivery"})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.dispatcher.Probe(c.Request().Context(), ev))
}
