package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/money"
	"github.com/mbd888/balances/internal/orders"
	"github.com/mbd888/balances/internal/validation"
)

// Handler provides HTTP endpoints for ledger operations
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes sets up ledger routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	txns := r.Group("/transactions")
	txns.POST("/deposit", h.Deposit)
	txns.POST("/transfer", h.Transfer)
	txns.POST("/reserve", h.Reserve)
	txns.POST("/reserve-refund", h.ReserveRefund)
	txns.POST("/payment", h.PaymentToCompany)
}

// Deposit handles POST /v1/transactions/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context) (*Transaction, error) {
		return h.engine.Deposit(ctx, req)
	})
}

// Transfer handles POST /v1/transactions/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context) (*Transaction, error) {
		return h.engine.Transfer(ctx, req)
	})
}

// Reserve handles POST /v1/transactions/reserve
func (h *Handler) Reserve(c *gin.Context) {
	var req OrderRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context) (*Transaction, error) {
		return h.engine.Reserve(ctx, req)
	})
}

// ReserveRefund handles POST /v1/transactions/reserve-refund
func (h *Handler) ReserveRefund(c *gin.Context) {
	var req OrderRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context) (*Transaction, error) {
		return h.engine.ReserveRefund(ctx, req)
	})
}

// PaymentToCompany handles POST /v1/transactions/payment
func (h *Handler) PaymentToCompany(c *gin.Context) {
	var req PaymentRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, func(ctx context.Context) (*Transaction, error) {
		return h.engine.PaymentToCompany(ctx, req)
	})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		errs := validation.FromBindError(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, op func(ctx context.Context) (*Transaction, error)) {
	txn, err := op(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var statusErr *orders.StatusError
	switch {
	case errors.As(err, &statusErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "incorrect_order_status",
			"message":         err.Error(),
			"actual_status":   statusErr.Actual,
			"expected_status": statusErr.Expected,
		})
	case errors.Is(err, accounts.ErrNegativeBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "negative_balance", "message": err.Error()})
	case errors.Is(err, ErrSenderRecipientSame):
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_recipient_same", "message": err.Error()})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, money.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
	case errors.Is(err, accounts.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found", "message": err.Error()})
	case errors.Is(err, accounts.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account_not_found", "message": err.Error()})
	case errors.Is(err, accounts.ErrCompanyAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "company_account_not_found", "message": err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found", "message": err.Error()})
	case errors.Is(err, ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction_not_found", "message": err.Error()})
	default:
		h.logger.Error("ledger request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}
}
