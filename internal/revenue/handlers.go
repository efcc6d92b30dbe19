package revenue

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/balances/internal/logging"
	"github.com/mbd888/balances/internal/metrics"
	"github.com/mbd888/balances/internal/money"
	"github.com/mbd888/balances/internal/validation"
)

// Handler provides HTTP endpoints for revenue reports.
type Handler struct {
	aggregator *Aggregator
}

// NewHandler creates a new revenue handler.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

// RegisterRoutes sets up the report routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reports/revenue", h.GetRevenue)
	r.GET("/reports/monthly", h.GetMonthlyReport)
}

// GetRevenue handles GET /v1/reports/revenue?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetRevenue(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if errs := validation.Validate(
		validation.Required("from", from),
		validation.Required("to", to),
		validation.ValidDate("from", from),
		validation.ValidDate("to", to),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	start, _ := time.Parse(time.DateOnly, from)
	end, _ := time.Parse(time.DateOnly, to)

	totals, err := h.aggregator.RevenueByService(c.Request.Context(), start, end)
	observeReport("range", err)
	if err != nil {
		respondError(c, err)
		return
	}

	revenue := make(map[string]string, len(totals))
	for name, total := range totals {
		revenue[name] = money.Format(total)
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    from,
		"to":      to,
		"revenue": revenue,
	})
}

// GetMonthlyReport handles GET /v1/reports/monthly?year=YYYY&month=M and
// returns the report as a CSV attachment.
func (h *Handler) GetMonthlyReport(c *gin.Context) {
	year, yerr := strconv.Atoi(c.Query("year"))
	month, merr := strconv.Atoi(c.Query("month"))
	if yerr != nil || merr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "year and month must be integers",
		})
		return
	}

	report, err := h.aggregator.MonthlyReport(c.Request.Context(), year, time.Month(month))
	observeReport("monthly", err)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.Filename()+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := WriteCSV(c.Writer, report); err != nil {
		_ = c.Error(err)
	}
}

func observeReport(kind string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoRevenueInPeriod):
		result = "empty"
	case errors.Is(err, ErrInvalidPeriod):
		result = "invalid"
	default:
		result = "error"
	}
	metrics.ReportsTotal.WithLabelValues(kind, result).Inc()
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoRevenueInPeriod):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_revenue_in_period", "message": err.Error()})
	case errors.Is(err, ErrInvalidPeriod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_period", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("revenue request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}
}
