// Package memory is an in-memory implementation of every balances store,
// for development mode and tests.
//
// A single RWMutex serializes units of work: WithTx holds the write lock
// for the whole callback and reads take the read lock, so no reader ever
// observes a half-applied operation.
//
// Operations on disjoint accounts therefore run one after another rather
// than concurrently. That is acceptable for development and tests; the
// postgres store locks per account row and lets them proceed in parallel.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/orders"
	"github.com/shopspring/decimal"
)

// ErrUnknownService is returned when seeding references a missing catalog entry.
var ErrUnknownService = errors.New("unknown service")

type accountKey struct {
	userID int64
	kind   accounts.Kind
}

type service struct {
	id    int64
	name  string
	price decimal.Decimal
}

// OrderLine is a seeded order line.
type OrderLine struct {
	ServiceID int64
	Quantity  int
}

type order struct {
	id     int64
	userID int64
	status orders.Status
	lines  []OrderLine
}

// Store holds every table in memory.
type Store struct {
	mu sync.RWMutex

	users     map[int64]bool
	accounts  map[accountKey]*accounts.Account
	companies map[int64]*accounts.Account
	services  map[int64]*service
	orders    map[int64]*order
	txns      []*ledger.Transaction

	nextAccountID int64
	nextTxID      int64
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for account update times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store holding the default company account.
func New(opts ...Option) *Store {
	s := &Store{
		users:     make(map[int64]bool),
		accounts:  make(map[accountKey]*accounts.Account),
		companies: make(map[int64]*accounts.Account),
		services:  make(map[int64]*service),
		orders:    make(map[int64]*order),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.addCompanyAccount(ledger.DefaultCompanyAccountID)
	return s
}

// AddUser registers a user. Users start without accounts.
func (s *Store) AddUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = true
}

// AddService adds a catalog entry.
func (s *Store) AddService(id int64, name string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[id] = &service{id: id, name: name, price: price}
}

// SetServicePrice changes a catalog price. Orders read afterwards are
// valued at the new price.
func (s *Store) SetServicePrice(id int64, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownService, id)
	}
	svc.price = price
	return nil
}

// AddOrder creates a not-submitted order for userID.
func (s *Store) AddOrder(id, userID int64, lines ...OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.users[userID] {
		return fmt.Errorf("%w: user %d", accounts.ErrUserNotFound, userID)
	}
	for _, line := range lines {
		if _, ok := s.services[line.ServiceID]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownService, line.ServiceID)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("order %d: quantity must be positive", id)
		}
	}
	s.orders[id] = &order{
		id:     id,
		userID: userID,
		status: orders.StatusNotSubmitted,
		lines:  append([]OrderLine(nil), lines...),
	}
	return nil
}

// AddCompanyAccount provisions a zero-balance company account.
func (s *Store) AddCompanyAccount(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCompanyAccount(id)
}

func (s *Store) addCompanyAccount(id int64) {
	if _, ok := s.companies[id]; ok {
		return
	}
	s.companies[id] = &accounts.Account{
		ID:        id,
		Kind:      accounts.KindCompany,
		Balance:   decimal.Zero,
		UpdatedAt: s.now().UTC(),
	}
}

// items joins an order's lines with the current catalog. Callers hold mu.
func (s *Store) items(o *order) []orders.Item {
	items := make([]orders.Item, 0, len(o.lines))
	for _, line := range o.lines {
		svc := s.services[line.ServiceID]
		items = append(items, orders.Item{
			ServiceID:   svc.id,
			ServiceName: svc.name,
			UnitPrice:   svc.price,
			Quantity:    line.Quantity,
		})
	}
	return items
}

func (s *Store) toOrder(o *order) *orders.Order {
	return &orders.Order{
		ID:     o.id,
		UserID: o.userID,
		Status: o.status,
		Items:  s.items(o),
	}
}
