package revenue

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/balances/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter() *gin.Engine {
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	a := NewAggregator(&fakeSource{payments: samplePayments()}, WithClock(func() time.Time { return now }))
	r := gin.New()
	NewHandler(a).RegisterRoutes(r.Group("/v1"))
	return r
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_GetRevenue(t *testing.T) {
	r := newTestRouter()

	w := serve(r, "/v1/reports/revenue?from=2024-03-01&to=2024-03-31")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		From    string            `json:"from"`
		To      string            `json:"to"`
		Revenue map[string]string `json:"revenue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "45.00", resp.Revenue["Hosting"])
	assert.Equal(t, "20.00", resp.Revenue["Support"])
}

func TestHandler_GetRevenueErrors(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		path string
		code int
		err  string
	}{
		{"/v1/reports/revenue?from=2024-03-01", http.StatusBadRequest, "validation_error"},
		{"/v1/reports/revenue?from=03/01/2024&to=2024-03-31", http.StatusBadRequest, "validation_error"},
		{"/v1/reports/revenue?from=2024-03-31&to=2024-03-01", http.StatusBadRequest, "invalid_period"},
		{"/v1/reports/revenue?from=2023-01-01&to=2023-01-31", http.StatusNotFound, "no_revenue_in_period"},
	}
	for _, tc := range tests {
		w := serve(r, tc.path)
		assert.Equal(t, tc.code, w.Code, tc.path)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.err, resp["error"], tc.path)
	}
}

func TestHandler_GetMonthlyReport(t *testing.T) {
	r := newTestRouter()

	w := serve(r, "/v1/reports/monthly?year=2024&month=3")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report_2024-3.csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Service Name,Total Revenue in the period (YYYY-MM) 2024-3", lines[0])
	assert.Equal(t, "Hosting,45.00", lines[1])

	w = serve(r, "/v1/reports/monthly?year=2020&month=3")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, "/v1/reports/monthly?year=2025&month=1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, "/v1/reports/monthly?year=2024&month=may")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, "/v1/reports/monthly?year=2024&month=5")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_SourceFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewWriter(&logs, "debug", "json")

	a := NewAggregator(&fakeSource{err: errors.New("connection refused")})
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))
		c.Next()
	})
	NewHandler(a).RegisterRoutes(r.Group("/v1"))

	w := serve(r, "/v1/reports/revenue?from=2024-03-01&to=2024-03-31")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Contains(t, logs.String(), "revenue request failed")
	assert.Contains(t, logs.String(), "connection refused")
}
