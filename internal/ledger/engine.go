package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/logging"
	"github.com/mbd888/balances/internal/money"
	"github.com/mbd888/balances/internal/orders"
	"github.com/mbd888/balances/internal/traces"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultCompanyAccountID is the seeded company account.
const DefaultCompanyAccountID int64 = 1

const (
	opDeposit          = "deposit"
	opTransfer         = "transfer"
	opReserve          = "reserve"
	opReserveRefund    = "reserve_refund"
	opPaymentToCompany = "payment_to_company"
)

// DepositRequest credits external funds to a user.
type DepositRequest struct {
	ToUserID int64           `json:"toUserId" binding:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount" binding:"amount"`
}

// TransferRequest moves funds between two users' Regular accounts.
type TransferRequest struct {
	FromUserID int64           `json:"fromUserId" binding:"required,gt=0"`
	ToUserID   int64           `json:"toUserId" binding:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount" binding:"amount"`
}

// OrderRequest names the order a Reserve or ReserveRefund acts on.
type OrderRequest struct {
	OrderID int64 `json:"orderId" binding:"required,gt=0"`
}

// PaymentRequest pays an order's reserved amount to a company account.
// A zero CompanyAccountID selects the engine's default.
type PaymentRequest struct {
	OrderID          int64 `json:"orderId" binding:"required,gt=0"`
	CompanyAccountID int64 `json:"toCompanyAccount" binding:"omitempty,gt=0"`
}

// Engine executes ledger operations against a Store.
type Engine struct {
	store            Store
	now              func() time.Time
	logger           *slog.Logger
	companyAccountID int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the source of transaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the engine's fallback logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCompanyAccount sets the account PaymentToCompany credits by default.
func WithCompanyAccount(id int64) Option {
	return func(e *Engine) {
		e.companyAccountID = id
	}
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		now:              time.Now,
		logger:           slog.Default(),
		companyAccountID: DefaultCompanyAccountID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deposit credits amount to the recipient's Regular account, creating the
// recipient's account pair if needed.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (*Transaction, error) {
	attrs := []attribute.KeyValue{traces.UserID(req.ToUserID), traces.Amount(req.Amount.String())}

	return e.run(ctx, opDeposit, attrs, validAmount(req.Amount), func(ctx context.Context, tx Tx) (*Transaction, error) {
		am := accounts.NewManager(tx)

		recipient, err := e.ensureRecipientAccounts(ctx, am, req.ToUserID)
		if err != nil {
			return nil, err
		}
		if err := e.transferFunds(ctx, am, nil, recipient, req.Amount); err != nil {
			return nil, err
		}

		return e.record(ctx, tx, &Transaction{
			Kind:     KindDeposit,
			Amount:   req.Amount,
			ToUserID: ref(req.ToUserID),
		})
	})
}

// Transfer moves amount from the sender's Regular account to the
// recipient's, creating the recipient's account pair if needed.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	attrs := []attribute.KeyValue{
		traces.FromUserID(req.FromUserID),
		traces.UserID(req.ToUserID),
		traces.Amount(req.Amount.String()),
	}

	pre := validAmount(req.Amount)
	if pre == nil && req.FromUserID == req.ToUserID {
		pre = fmt.Errorf("%w: user %d", ErrSenderRecipientSame, req.FromUserID)
	}

	return e.run(ctx, opTransfer, attrs, pre, func(ctx context.Context, tx Tx) (*Transaction, error) {
		am := accounts.NewManager(tx)

		sender, recipient, err := e.lockTransferPair(ctx, am, req.FromUserID, req.ToUserID)
		if err != nil {
			return nil, err
		}
		if err := e.transferFunds(ctx, am, sender, recipient, req.Amount); err != nil {
			return nil, err
		}

		return e.record(ctx, tx, &Transaction{
			Kind:       KindTransfer,
			Amount:     req.Amount,
			FromUserID: ref(req.FromUserID),
			ToUserID:   ref(req.ToUserID),
		})
	})
}

// Reserve moves the order's total from the owner's Regular account to the
// Reserve account and marks the order in progress. The total becomes the
// amount of record for the order's later refund or payment.
func (e *Engine) Reserve(ctx context.Context, req OrderRequest) (*Transaction, error) {
	attrs := []attribute.KeyValue{traces.OrderID(req.OrderID)}

	return e.run(ctx, opReserve, attrs, nil, func(ctx context.Context, tx Tx) (*Transaction, error) {
		am := accounts.NewManager(tx)
		om := orders.NewManager(tx)

		order, err := om.Get(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if err := orders.Expect(order, orders.StatusNotSubmitted); err != nil {
			return nil, err
		}

		regular, err := am.Get(ctx, order.UserID, accounts.KindRegular)
		if err != nil {
			return nil, err
		}
		reserve, err := am.Get(ctx, order.UserID, accounts.KindReserve)
		if err != nil {
			return nil, err
		}

		total := order.Total()
		if err := e.transferFunds(ctx, am, regular, reserve, total); err != nil {
			return nil, err
		}
		if err := om.Transition(ctx, order, orders.StatusNotSubmitted, orders.StatusInProgress); err != nil {
			return nil, err
		}

		return e.record(ctx, tx, &Transaction{
			Kind:       KindReserve,
			Amount:     total,
			FromUserID: ref(order.UserID),
			OrderID:    ref(order.ID),
		})
	})
}

// ReserveRefund returns the order's reserved amount to the owner's Regular
// account and cancels the order.
func (e *Engine) ReserveRefund(ctx context.Context, req OrderRequest) (*Transaction, error) {
	attrs := []attribute.KeyValue{traces.OrderID(req.OrderID)}

	return e.run(ctx, opReserveRefund, attrs, nil, func(ctx context.Context, tx Tx) (*Transaction, error) {
		am := accounts.NewManager(tx)
		om := orders.NewManager(tx)

		order, amount, err := e.reservedOrder(ctx, tx, om, req.OrderID)
		if err != nil {
			return nil, err
		}

		regular, err := am.Get(ctx, order.UserID, accounts.KindRegular)
		if err != nil {
			return nil, err
		}
		reserve, err := am.Get(ctx, order.UserID, accounts.KindReserve)
		if err != nil {
			return nil, err
		}

		if err := e.transferFunds(ctx, am, reserve, regular, amount); err != nil {
			return nil, err
		}
		if err := om.Transition(ctx, order, orders.StatusInProgress, orders.StatusCancelled); err != nil {
			return nil, err
		}

		return e.record(ctx, tx, &Transaction{
			Kind:       KindReserveRefund,
			Amount:     amount,
			FromUserID: ref(order.UserID),
			OrderID:    ref(order.ID),
		})
	})
}

// PaymentToCompany pays the order's reserved amount from the owner's
// Reserve account to a company account and completes the order.
func (e *Engine) PaymentToCompany(ctx context.Context, req PaymentRequest) (*Transaction, error) {
	companyID := req.CompanyAccountID
	if companyID == 0 {
		companyID = e.companyAccountID
	}
	attrs := []attribute.KeyValue{traces.OrderID(req.OrderID), attribute.Int64("company_account.id", companyID)}

	return e.run(ctx, opPaymentToCompany, attrs, nil, func(ctx context.Context, tx Tx) (*Transaction, error) {
		am := accounts.NewManager(tx)
		om := orders.NewManager(tx)

		order, amount, err := e.reservedOrder(ctx, tx, om, req.OrderID)
		if err != nil {
			return nil, err
		}

		reserve, err := am.Get(ctx, order.UserID, accounts.KindReserve)
		if err != nil {
			return nil, err
		}
		company, err := am.GetCompany(ctx, companyID)
		if err != nil {
			return nil, err
		}

		if err := e.transferFunds(ctx, am, reserve, company, amount); err != nil {
			return nil, err
		}
		if err := om.Transition(ctx, order, orders.StatusInProgress, orders.StatusCompleted); err != nil {
			return nil, err
		}

		return e.record(ctx, tx, &Transaction{
			Kind:             KindPaymentToCompany,
			Amount:           amount,
			FromUserID:       ref(order.UserID),
			OrderID:          ref(order.ID),
			ToCompanyAccount: ref(companyID),
		})
	})
}

// reservedOrder loads an in-progress order together with the amount of
// record from its Reserve transaction.
func (e *Engine) reservedOrder(ctx context.Context, tx Tx, om *orders.Manager, orderID int64) (*orders.Order, decimal.Decimal, error) {
	order, err := om.Get(ctx, orderID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if err := orders.Expect(order, orders.StatusInProgress); err != nil {
		return nil, decimal.Zero, err
	}

	reserved, err := tx.FindOrderTransaction(ctx, order.ID, KindReserve)
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, decimal.Zero, fmt.Errorf("%w: no reserve transaction for order %d", ErrTransactionNotFound, order.ID)
	}
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to find reserve transaction for order %d: %w", order.ID, err)
	}
	return order, reserved.Amount, nil
}

// ensureRecipientAccounts confirms the recipient user exists and returns
// their Regular account, creating the Regular and Reserve pair if absent.
func (e *Engine) ensureRecipientAccounts(ctx context.Context, am *accounts.Manager, userID int64) (*accounts.Account, error) {
	return am.GetOrCreateRegularAndReserve(ctx, userID)
}

// lockTransferPair locks the sender's and recipient's Regular accounts in
// ascending user id order so opposite transfers between the same users
// queue behind each other instead of deadlocking.
func (e *Engine) lockTransferPair(ctx context.Context, am *accounts.Manager, fromUserID, toUserID int64) (sender, recipient *accounts.Account, err error) {
	lockSender := func() error {
		sender, err = am.Get(ctx, fromUserID, accounts.KindRegular)
		return err
	}
	lockRecipient := func() error {
		recipient, err = e.ensureRecipientAccounts(ctx, am, toUserID)
		return err
	}

	steps := []func() error{lockSender, lockRecipient}
	if toUserID < fromUserID {
		steps[0], steps[1] = lockRecipient, lockSender
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, nil, err
		}
	}
	return sender, recipient, nil
}

// transferFunds debits sender (if any) and credits recipient. A debit that
// would overdraw the sender fails before anything is written.
func (e *Engine) transferFunds(ctx context.Context, am *accounts.Manager, sender, recipient *accounts.Account, amount decimal.Decimal) error {
	if sender != nil {
		if err := am.ApplyDelta(ctx, sender, amount.Neg()); err != nil {
			return err
		}
	}
	return am.ApplyDelta(ctx, recipient, amount)
}

// record stamps, describes and appends t.
func (e *Engine) record(ctx context.Context, tx Tx, t *Transaction) (*Transaction, error) {
	t.CreatedAt = e.now().UTC().Truncate(time.Microsecond)
	t.Description = Describe(t)
	if err := tx.Append(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to record %s transaction: %w", t.Kind, err)
	}
	return t, nil
}

// run executes fn in one unit of work with tracing, metrics and logging.
// A non-nil pre error fails the operation before any storage access.
func (e *Engine) run(ctx context.Context, op string, attrs []attribute.KeyValue, pre error,
	fn func(ctx context.Context, tx Tx) (*Transaction, error)) (*Transaction, error) {

	ctx, span := traces.StartSpan(ctx, "ledger."+op, attrs...)
	defer span.End()
	done := observeOp(op)

	err := pre
	var out *Transaction
	if err == nil {
		err = e.store.WithTx(ctx, func(tx Tx) error {
			t, err := fn(ctx, tx)
			if err != nil {
				return err
			}
			out = t
			return nil
		})
	}
	done(err)

	logger := e.log(ctx)
	if err != nil {
		traces.Fail(span, err)
		if IsRejection(err) {
			logger.Warn("ledger operation rejected", "op", op, "error", err)
		} else {
			logger.Error("ledger operation failed", "op", op, "error", err)
		}
		return nil, err
	}

	span.SetAttributes(traces.TransactionID(out.ID))
	observeAmount(out.Kind, out.Amount)
	logger.Info("ledger operation committed",
		"op", op,
		"transaction_id", out.ID,
		"amount", out.Amount.String(),
	)
	return out, nil
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	if logging.HasLogger(ctx) {
		return logging.L(ctx)
	}
	return e.logger
}

func validAmount(amount decimal.Decimal) error {
	if !money.Valid(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return nil
}
