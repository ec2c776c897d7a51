package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/palu-ci/palu/internal/platform/auth"
)

// MeasureDefinition defines a surveillance measure with its SQL query. Every
// query takes $1 (since, timestamptz or NULL) and $2 (region, text or NULL).
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"-"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

const filter = `($1::timestamptz IS NULL OR consultation_date >= $1) AND ($2::text IS NULL OR region = $2)`

var commonParams = []string{"since", "region"}

// PredefinedMeasures is the list of available measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "severity-distribution",
		Name:        "Severity Distribution",
		Description: "Consultations grouped by severity level and classification",
		SQL: `SELECT severity_level, classification, COUNT(*) AS total FROM consultation WHERE ` + filter +
			` GROUP BY severity_level, classification ORDER BY total DESC`,
		Parameters: commonParams,
	},
	{
		ID:          "rdt-positivity",
		Name:        "RDT Positivity",
		Description: "Consultations with a recorded rapid test and how many were positive",
		SQL: `SELECT COUNT(*) AS tested, COALESCE(SUM(CASE WHEN malaria_positive THEN 1 ELSE 0 END), 0) AS positive
FROM consultation WHERE COALESCE(rdt_result, '') <> '' AND ` + filter,
		Parameters: commonParams,
	},
	{
		ID:          "cases-by-region",
		Name:        "Cases by Region",
		Description: "Consultation and severe case counts per region",
		SQL: `SELECT COALESCE(region, 'unknown') AS region, COUNT(*) AS total,
COALESCE(SUM(CASE WHEN is_severe THEN 1 ELSE 0 END), 0) AS severe
FROM consultation WHERE ` + filter + ` GROUP BY 1 ORDER BY total DESC`,
		Parameters: commonParams,
	},
	{
		ID:          "intake-by-source",
		Name:        "Intake by Source",
		Description: "Consultations per intake channel and data quality status",
		SQL: `SELECT source_type, COALESCE(data_quality_status, 'unknown') AS data_quality_status, COUNT(*) AS total
FROM consultation WHERE ` + filter + ` GROUP BY 1, 2 ORDER BY total DESC`,
		Parameters: commonParams,
	},
	{
		ID:          "mortality",
		Name:        "Mortality",
		Description: "Recorded deaths by severity level",
		SQL: `SELECT severity_level, COUNT(*) AS total,
COALESCE(SUM(CASE WHEN outcome_death THEN 1 ELSE 0 END), 0) AS deaths
FROM consultation WHERE ` + filter + ` GROUP BY severity_level ORDER BY severity_level`,
		Parameters: commonParams,
	},
}

// Runner executes a measure query and returns its rows as maps.
type Runner interface {
	Run(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
}

type pgRunner struct {
	pool *pgxpool.Pool
}

// NewRunner returns a Runner backed by the connection pool.
func NewRunner(pool *pgxpool.Pool) Runner {
	return &pgRunner{pool: pool}
}

func (r *pgRunner) Run(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	runner Runner
	now    func() time.Time
}

func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAdmin, auth.RoleClinician))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure runs a measure. since accepts YYYY-MM-DD or RFC 3339.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	var since, region interface{}
	if v, ok := params["since"]; ok {
		t, err := parseSince(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid since %q", v))
		}
		since = t
	}
	if v, ok := params["region"]; ok {
		region = v
	}

	results, err := h.runner.Run(c.Request().Context(), measure.SQL, since, region)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: h.now().UTC(),
		Results:     results,
		Parameters:  params,
	})
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
