package visualize

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func chartObservation(userID, effective, loinc string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Observation",
		"effectiveDateTime": effective,
		"code": map[string]interface{}{
			"coding": []interface{}{
				map[string]interface{}{"code": loinc, "display": "Heart rate"},
				map[string]interface{}{"code": "HKQuantityTypeIdentifierHeartRate", "display": "Heart Rate"},
			},
		},
		"subject": map[string]interface{}{"id": userID},
		"valueQuantity": map[string]interface{}{
			"unit":  "beats/minute",
			"value": 72.0,
		},
	}
}

func newChartRequest(t *testing.T, target string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(string(payload)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestChartObservations_CombinedPNG(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Options{})

	body := []interface{}{
		chartObservation("user-1", "2024-01-15T08:00:00Z", "8867-4"),
		chartObservation("user-2", "2024-01-16T08:00:00Z", "8867-4"),
	}
	c, rec := newChartRequest(t, "/charts/observation?start=2024-01-01&end=2024-02-01", body)

	if err := h.ChartObservations(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}
}

func TestChartObservations_SeparateManifest(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Options{})

	body := []interface{}{
		chartObservation("user-1", "2024-01-15T08:00:00Z", "8867-4"),
		chartObservation("user-2", "2024-01-16T08:00:00Z", "8867-4"),
	}
	c, rec := newChartRequest(t, "/charts/observation?separate=true", body)

	if err := h.ChartObservations(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var charts []Chart
	if err := json.Unmarshal(rec.Body.Bytes(), &charts); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(charts) != 2 {
		t.Fatalf("expected 2 charts, got %d", len(charts))
	}
	for _, chart := range charts {
		if chart.UserID == "" || len(chart.PNG) == 0 {
			t.Errorf("incomplete chart entry: %+v", chart.Title)
		}
	}
}

func TestChartObservations_MultipleLoincCodes(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Options{})

	body := []interface{}{
		chartObservation("user-1", "2024-01-15T08:00:00Z", "8867-4"),
		chartObservation("user-1", "2024-01-16T08:00:00Z", "8480-6"),
	}
	c, rec := newChartRequest(t, "/charts/observation", body)

	if err := h.ChartObservations(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestChartObservations_EmptyBatch(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Options{})
	c, rec := newChartRequest(t, "/charts/observation", []interface{}{})

	if err := h.ChartObservations(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no resources provided") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestChartObservations_BadDateParam(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Options{})
	c, rec := newChartRequest(t, "/charts/observation?start=15-01-2024", []interface{}{
		chartObservation("user-1", "2024-01-15T08:00:00Z", "8867-4"),
	})

	if err := h.ChartObservations(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChartObservations_UnsupportedType(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Options{})
	c, rec := newChartRequest(t, "/charts/observation", []interface{}{
		map[string]interface{}{"resourceType": "QuestionnaireResponse"},
	})

	if err := h.ChartObservations(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRequestOptions_ZeroLowerBound(t *testing.T) {
	h := NewHandler(zerolog.Nop(), Options{})
	c, _ := newChartRequest(t, "/charts/observation?y_lower=0&y_upper=200", nil)

	opts, err := h.requestOptions(c)
	if err != nil {
		t.Fatalf("requestOptions: %v", err)
	}
	if opts.YLower == nil || *opts.YLower != 0 {
		t.Errorf("YLower = %v, a requested zero bound must not fall back to the default", opts.YLower)
	}
	if opts.YUpper == nil || *opts.YUpper != 200 {
		t.Errorf("YUpper = %v, want 200", opts.YUpper)
	}
}
