package flatten

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fhirtab/fhirtab/internal/platform/fhir"
)

// Handler exposes the flattening pipeline over HTTP.
type Handler struct {
	logger   zerolog.Logger
	maxBatch int
}

// NewHandler creates a flatten handler. maxBatch caps request batch
// sizes; zero disables the cap.
func NewHandler(logger zerolog.Logger, maxBatch int) *Handler {
	return &Handler{logger: logger, maxBatch: maxBatch}
}

// RegisterRoutes registers the flatten routes on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/Observation/$flatten", h.FlattenBatch)
	g.GET("/$flatten-schema/:type", h.Schema)
	g.GET("/$flatten-schema/:type/$sql", h.SchemaSQL)
}

// FlattenBatch accepts a JSON array of resources, flattens it, validates
// the result, and renders it as JSON objects, CSV, or NDJSON per the
// _format query parameter. _count caps the returned row count.
func (h *Handler) FlattenBatch(c echo.Context) error {
	var resources []fhir.Resource
	if err := json.NewDecoder(c.Request().Body).Decode(&resources); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid request body: "+err.Error()))
	}
	if h.maxBatch > 0 && len(resources) > h.maxBatch {
		return c.JSON(http.StatusRequestEntityTooLarge, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeTooCostly,
			fmt.Sprintf("batch of %d resources exceeds limit of %d", len(resources), h.maxBatch)))
	}

	frame, err := FlattenResources(resources)
	if err != nil {
		return h.flattenError(c, err)
	}
	if frame == nil {
		return c.JSON(http.StatusOK, fhir.InfoOutcome("no resources provided"))
	}

	if err := frame.ValidateColumns(); err != nil {
		h.logger.Error().Err(err).Msg("flattened frame failed validation")
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("flattened output failed validation: "+err.Error()))
	}

	table := frame.Table()
	if countParam := c.QueryParam("_count"); countParam != "" {
		if n, err := strconv.Atoi(countParam); err == nil && n > 0 {
			table = table.Head(n)
		}
	}

	switch c.QueryParam("_format") {
	case "csv":
		return c.Blob(http.StatusOK, "text/csv", []byte(table.ToCSV()))
	case "ndjson":
		return c.Blob(http.StatusOK, "application/x-ndjson", []byte(table.ToNDJSON()))
	default:
		return c.JSON(http.StatusOK, table.ToJSON())
	}
}

// Schema returns the registered column set for a resource type.
func (h *Handler) Schema(c echo.Context) error {
	rt := ResourceType(c.Param("type"))
	columns, err := RequiredColumns(rt)
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeNotSupported, err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"resourceType": rt,
		"columns":      columns,
	})
}

// SchemaSQL returns the generated CREATE VIEW statement for a resource
// type's flattened shape.
func (h *Handler) SchemaSQL(c echo.Context) error {
	rt := ResourceType(c.Param("type"))
	stmt, err := GenerateSQL(rt)
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeNotSupported, err.Error()))
	}
	return c.String(http.StatusOK, stmt)
}

func (h *Handler) flattenError(c echo.Context, err error) error {
	var unsupported *UnsupportedTypeError
	if errors.As(err, &unsupported) {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeNotSupported, err.Error()))
	}
	var fieldMissing *FieldMissingError
	if errors.As(err, &fieldMissing) {
		outcome := fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeRequired, err.Error())
		outcome.Issue[0].Expression = []string{fieldMissing.Field}
		return c.JSON(http.StatusUnprocessableEntity, outcome)
	}
	h.logger.Error().Err(err).Msg("flatten failed")
	return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
}
