package query

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/logging"
	"github.com/mbd888/balances/internal/pagination"
	"github.com/mbd888/balances/internal/validation"
)

// Handler provides HTTP endpoints for account and transaction lookups.
type Handler struct {
	service *Service
}

// NewHandler creates a new query handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the read-only user routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users/:id", validation.IDParamMiddleware())
	users.GET("/accounts", h.GetAccounts)
	users.GET("/transactions", h.ListTransactions)
}

// GetAccounts handles GET /v1/users/:id/accounts
func (h *Handler) GetAccounts(c *gin.Context) {
	userID, _ := validation.ParseID(c.Param("id"))

	accts, err := h.service.AccountsOf(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":   userID,
		"accounts": accts,
	})
}

// ListTransactions handles GET /v1/users/:id/transactions
//
// Query parameters: page (1-based; omitted returns every row), sort_by
// (comma-separated date,amount; repeatable), and the boolean shorthands
// sort_by_date and sort_by_amount.
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, _ := validation.ParseID(c.Param("id"))

	page, err := pagination.Parse(c.Query("page"))
	if err != nil {
		errs := validation.ValidationErrors{{Field: "page", Message: "must be an integer of at least 1"}}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	req := ListRequest{Page: page, SortBy: c.QueryArray("sort_by")}
	for _, key := range []SortKey{SortDate, SortAmount} {
		if on, _ := strconv.ParseBool(c.Query("sort_by_" + string(key))); on {
			req.SortBy = append(req.SortBy, string(key))
		}
	}

	txns, err := h.service.TransactionsOf(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"userId":       userID,
		"transactions": txns,
		"count":        len(txns),
	}
	if req.Page > 0 {
		resp["page"] = req.Page
		resp["pageSize"] = h.service.PageSize()
	}
	c.JSON(http.StatusOK, resp)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, accounts.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found", "message": err.Error()})
	case errors.Is(err, accounts.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account_not_found", "message": err.Error()})
	case errors.Is(err, ErrPageOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": "page_out_of_range", "message": err.Error()})
	case errors.Is(err, ErrUnsupportedSortField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_sort_field", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("query request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}
}
