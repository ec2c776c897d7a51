package consultation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/palu-ci/palu/internal/platform/auth"
	"github.com/palu-ci/palu/internal/platform/extraction"
	"github.com/palu-ci/palu/internal/platform/external"
	"github.com/palu-ci/palu/internal/platform/spreadsheet"
	"github.com/palu-ci/palu/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleAgent))
	staff.GET("/consultations", h.List)
	staff.GET("/consultations/:id", h.Get)
	staff.POST("/consultations", h.Create)
	staff.POST("/consultations/classify", h.Classify)
	staff.POST("/imports", h.Import)
	staff.POST("/extractions", h.Extract)
	staff.POST("/notes", h.ExtractNote)
	staff.GET("/extractions/health", h.ExtractionHealth)
	staff.POST("/external/sync", h.SyncExternal)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/consultations/:id", h.Delete)

	// Reachable without a token; see auth.AuthSkipper.
	api.POST("/self-reports", h.SelfReport)
	api.GET("/external/simulation", h.Simulation)
}

// httpError translates service errors into HTTP errors.
func httpError(err error) error {
	var invalidJSON *extraction.InvalidJSONError
	var upstream *extraction.UpstreamError
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "consultation not found")
	case errors.Is(err, ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &invalidJSON):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]string{
			"message":      "extraction did not return valid JSON",
			"raw_response": invalidJSON.Raw,
		})
	case errors.As(err, &upstream):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, extraction.ErrNotConfigured), errors.Is(err, ErrSourceNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Create(c echo.Context) error {
	var r Record
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = uuid.Nil
	if err := h.svc.Create(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

// Classify returns the verdict for the posted record without storing it.
func (h *Handler) Classify(c echo.Context) error {
	var r Record
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.Classify(&r))
}

// Get accepts either the record UUID or its consultation_id.
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		r   *Record
		err error
	)
	if id, perr := uuid.Parse(c.Param("id")); perr == nil {
		r, err = h.svc.Get(ctx, id)
	} else {
		r, err = h.svc.GetByConsultationID(ctx, c.Param("id"))
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// List returns consultations newest first. With patient_id it is limited to
// that patient; with view=patients it returns the per-patient summaries.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	if c.QueryParam("view") == "patients" {
		sums, err := h.svc.Summaries(ctx)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, sums)
	}

	p := pagination.FromContext(c)
	var (
		items []*Record
		total int
		err   error
	)
	if pid := c.QueryParam("patient_id"); pid != "" {
		items, total, err = h.svc.ListByPatient(ctx, pid, p.Limit, p.Offset)
	} else {
		items, total, err = h.svc.List(ctx, p.Limit, p.Offset)
	}
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Record{}
	}
	resp := pagination.NewResponse(items, total, p.Limit, p.Offset).WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Import stores the rows of an uploaded .xlsx or .csv file sent as the
// multipart field "file".
func (h *Handler) Import(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		// Body limit failures surface here while the form is parsed.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	rows, err := spreadsheet.Read(f, fh.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sum, err := h.svc.Import(c.Request().Context(), rows)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

type textRequest struct {
	Text string `json:"text"`
}

func (h *Handler) Extract(c echo.Context) error {
	return h.extract(c, SourcePDF)
}

func (h *Handler) ExtractNote(c echo.Context) error {
	return h.extract(c, SourceMarkdown)
}

func (h *Handler) extract(c echo.Context, source string) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.CreateFromExtraction(c.Request().Context(), req.Text, source)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ExtractionHealth(c echo.Context) error {
	res, err := h.svc.CheckExtraction(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "ok",
		"model":      res.Model,
		"latency_ms": strconv.FormatInt(res.Latency.Milliseconds(), 10),
		"reply":      res.Reply,
	})
}

func (h *Handler) SyncExternal(c echo.Context) error {
	sum, err := h.svc.SyncExternal(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrSourceNotConfigured) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

// Simulation serves a fixed partner payload so a deployment can point
// EXTERNAL_SOURCE_URL at itself.
func (h *Handler) Simulation(c echo.Context) error {
	return c.JSON(http.StatusOK, external.Simulation())
}

func (h *Handler) SelfReport(c echo.Context) error {
	var sr SelfReport
	if err := c.Bind(&sr); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.SelfReport(c.Request().Context(), sr)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"consultation_id": r.ConsultationID,
		"severity_level":  r.SeverityLevel,
		"is_severe":       r.IsSevere,
		"alerts":          r.Alerts,
	})
}
