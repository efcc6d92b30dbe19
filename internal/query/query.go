// Package query serves read-only lookups: a user's accounts and the
// transactions that involve them.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/pagination"
	"github.com/mbd888/balances/internal/traces"
)

// DefaultPageSize is the number of transactions per listing page.
const DefaultPageSize = 5

var (
	ErrPageOutOfRange       = errors.New("page out of range")
	ErrUnsupportedSortField = errors.New("unsupported sort field")
)

// ListOptions is a validated listing request passed to a Source.
type ListOptions struct {
	SortBy []SortKey
	Page   pagination.Page
}

// Source provides non-locking reads over accounts and the transaction log.
type Source interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	// FindAccount returns accounts.ErrAccountNotFound when absent.
	FindAccount(ctx context.Context, userID int64, kind accounts.Kind) (*accounts.Account, error)
	// ListTransactions returns transactions where the user is the sender,
	// the recipient or the owner of the referenced order.
	ListTransactions(ctx context.Context, userID int64, opts ListOptions) ([]*ledger.Transaction, error)
}

// ListRequest is a caller's listing request. Page 0 returns every row.
type ListRequest struct {
	Page   int
	SortBy []string
}

// Service answers account and transaction lookups.
type Service struct {
	source   Source
	pageSize int
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a query service over source.
func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source:   source,
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PageSize returns the configured listing page size.
func (s *Service) PageSize() int {
	return s.pageSize
}

// AccountsOf returns the user's Regular and Reserve accounts, in that order.
func (s *Service) AccountsOf(ctx context.Context, userID int64) ([]*accounts.Account, error) {
	ctx, span := traces.StartSpan(ctx, "query.AccountsOf", traces.UserID(userID))
	defer span.End()

	if err := s.requireUser(ctx, userID); err != nil {
		traces.Fail(span, err)
		return nil, err
	}

	out := make([]*accounts.Account, 0, 2)
	for _, kind := range []accounts.Kind{accounts.KindRegular, accounts.KindReserve} {
		acct, err := s.source.FindAccount(ctx, userID, kind)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			err = fmt.Errorf("%w: user %d has no %s account", accounts.ErrAccountNotFound, userID, kind)
		} else if err != nil {
			err = fmt.Errorf("failed to find %s account of user %d: %w", kind, userID, err)
		}
		if err != nil {
			traces.Fail(span, err)
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// TransactionsOf lists transactions involving the user. The user must
// exist and hold accounts. A page with no rows is ErrPageOutOfRange.
func (s *Service) TransactionsOf(ctx context.Context, userID int64, req ListRequest) ([]*ledger.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "query.TransactionsOf", traces.UserID(userID))
	defer span.End()

	txns, err := s.transactionsOf(ctx, userID, req)
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}
	return txns, nil
}

func (s *Service) transactionsOf(ctx context.Context, userID int64, req ListRequest) ([]*ledger.Transaction, error) {
	keys, err := ParseSort(req.SortBy...)
	if err != nil {
		return nil, err
	}
	page, err := pagination.New(req.Page, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d", ErrPageOutOfRange, req.Page)
	}

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.source.FindAccount(ctx, userID, accounts.KindRegular); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: user %d has no accounts", accounts.ErrAccountNotFound, userID)
		}
		return nil, fmt.Errorf("failed to find accounts of user %d: %w", userID, err)
	}

	txns, err := s.source.ListTransactions(ctx, userID, ListOptions{SortBy: keys, Page: page})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of user %d: %w", userID, err)
	}
	if page.Enabled() && len(txns) == 0 {
		return nil, fmt.Errorf("%w: page %d", ErrPageOutOfRange, page.Number)
	}
	if txns == nil {
		txns = []*ledger.Transaction{}
	}

	s.logger.Debug("listed transactions", "user_id", userID, "page", page.Number, "count", len(txns))
	return txns, nil
}

func (s *Service) requireUser(ctx context.Context, userID int64) error {
	exists, err := s.source.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check user %d: %w", userID, err)
	}
	if !exists {
		return fmt.Errorf("%w: user %d", accounts.ErrUserNotFound, userID)
	}
	return nil
}
