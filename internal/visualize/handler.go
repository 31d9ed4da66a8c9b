package visualize

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fhirtab/fhirtab/internal/flatten"
	"github.com/fhirtab/fhirtab/internal/platform/fhir"
)

// Handler exposes chart rendering over HTTP. It flattens the posted
// resources itself so callers send raw FHIR, not pre-built tables.
type Handler struct {
	logger   zerolog.Logger
	defaults Options
}

// NewHandler creates a chart handler. defaults supplies server-level
// chart settings (Y bounds, DPI) that per-request query parameters
// override.
func NewHandler(logger zerolog.Logger, defaults Options) *Handler {
	defaults.applyDefaults()
	return &Handler{logger: logger, defaults: defaults}
}

// RegisterRoutes registers the chart routes on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/observation", h.ChartObservations)
}

// ChartObservations flattens a posted batch of Observation resources
// and renders bar charts. A combined chart returns image/png directly;
// separate charts return a JSON manifest with base64 PNG payloads.
// The library's skip conditions (non-date first cell, multiple LOINC
// codes) map to 422 here since an HTTP caller needs a definite answer.
func (h *Handler) ChartObservations(c echo.Context) error {
	var resources []fhir.Resource
	if err := json.NewDecoder(c.Request().Body).Decode(&resources); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid request body: "+err.Error()))
	}

	opts, err := h.requestOptions(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeValue, err.Error()))
	}

	frame, err := flatten.FlattenResources(resources)
	if err != nil {
		var unsupported *flatten.UnsupportedTypeError
		if errors.As(err, &unsupported) {
			return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
				fhir.IssueSeverityError, fhir.IssueTypeNotSupported, err.Error()))
		}
		var fieldMissing *flatten.FieldMissingError
		if errors.As(err, &fieldMissing) {
			return c.JSON(http.StatusUnprocessableEntity, fhir.NewOperationOutcome(
				fhir.IssueSeverityError, fhir.IssueTypeRequired, err.Error()))
		}
		h.logger.Error().Err(err).Msg("flatten for chart failed")
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	if frame == nil {
		return c.JSON(http.StatusUnprocessableEntity, fhir.InfoOutcome("no resources provided"))
	}

	charts, err := New(h.logger, opts).CreateStaticPlot(frame)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, fhir.ErrorOutcome(err.Error()))
	}
	if len(charts) == 0 {
		return c.JSON(http.StatusUnprocessableEntity,
			fhir.ErrorOutcome("input not plottable: requires date-typed EffectiveDateTime, a single LoincCode, and matching rows"))
	}

	if opts.combined() {
		return c.Blob(http.StatusOK, "image/png", charts[0].PNG)
	}
	return c.JSON(http.StatusOK, charts)
}

// requestOptions merges query parameters over the server defaults.
// Dates use the 2006-01-02 layout; open-ended ranges are allowed.
func (h *Handler) requestOptions(c echo.Context) (Options, error) {
	opts := h.defaults

	if s := c.QueryParam("start"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return opts, errors.New("start must be formatted as YYYY-MM-DD")
		}
		opts.StartDate = &t
	}
	if s := c.QueryParam("end"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return opts, errors.New("end must be formatted as YYYY-MM-DD")
		}
		opts.EndDate = &t
	}
	if s := c.QueryParam("users"); s != "" {
		opts.UserIDs = strings.Split(s, ",")
	}
	if s := c.QueryParam("y_lower"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return opts, errors.New("y_lower must be numeric")
		}
		opts.YLower = &f
	}
	if s := c.QueryParam("y_upper"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return opts, errors.New("y_upper must be numeric")
		}
		opts.YUpper = &f
	}
	if s := c.QueryParam("dpi"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return opts, errors.New("dpi must be numeric")
		}
		opts.DPI = f
	}
	if s := c.QueryParam("separate"); s != "" {
		combine := s != "true" && s != "1"
		opts.Combine = &combine
	}

	return opts, nil
}
