// Package memory is an in-process store used for local runs and tests.
// Every operation runs under one mutex, so the ledger's check-and-increment
// is atomic. WithTx does not roll back; callers compensate on failure.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/google/uuid"
)

var errDuplicateToken = errors.New("duplicate pass token")

type Store struct {
	mu    sync.Mutex
	clock clock.Clock

	events       map[string]domain.Event
	ticketTypes  map[string]domain.TicketType
	reservations map[string]domain.Reservation
	transactions map[string]domain.Transaction
	orderCodes   map[string]string
	passes       map[string][]domain.TicketPass
	tokens       map[string]struct{}
}

func NewStore(clk clock.Clock) *Store {
	return &Store{
		clock:        clk,
		events:       make(map[string]domain.Event),
		ticketTypes:  make(map[string]domain.TicketType),
		reservations: make(map[string]domain.Reservation),
		transactions: make(map[string]domain.Transaction),
		orderCodes:   make(map[string]string),
		passes:       make(map[string][]domain.TicketPass),
		tokens:       make(map[string]struct{}),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Ledger

func (s *Store) Reserve(ctx context.Context, ticketTypeID string, quantity int) (domain.Reservation, error) {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return domain.Reservation{}, domain.ErrTicketTypeNotFound
	}
	if quantity > tt.Available() {
		return domain.Reservation{}, &domain.InsufficientInventoryError{Available: tt.Available()}
	}

	now := s.clock.Now()
	tt.Sold += quantity
	tt.UpdatedAt = now
	s.ticketTypes[ticketTypeID] = tt

	res := domain.Reservation{
		ID:           uuid.NewString(),
		TicketTypeID: ticketTypeID,
		EventID:      tt.EventID,
		Quantity:     quantity,
		Status:       domain.ReservationHeld,
		CreatedAt:    now,
	}
	s.reservations[res.ID] = res
	return res, nil
}

func (s *Store) Commit(ctx context.Context, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[reservationID]
	if !ok || res.Status != domain.ReservationHeld {
		return domain.ErrReservationNotHeld
	}
	res.Status = domain.ReservationCommitted
	s.reservations[reservationID] = res
	return nil
}

func (s *Store) Release(ctx context.Context, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked(reservationID)
	return nil
}

func (s *Store) ReleaseStale(ctx context.Context, heldBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for id, res := range s.reservations {
		if res.Status == domain.ReservationHeld && res.CreatedAt.Before(heldBefore) {
			released += s.releaseLocked(id)
		}
	}
	return released, nil
}

func (s *Store) releaseLocked(reservationID string) int {
	res, ok := s.reservations[reservationID]
	if !ok || res.Status == domain.ReservationReleased {
		return 0
	}
	res.Status = domain.ReservationReleased
	s.reservations[reservationID] = res

	if tt, ok := s.ticketTypes[res.TicketTypeID]; ok {
		tt.Sold -= res.Quantity
		if tt.Sold < 0 {
			tt.Sold = 0
		}
		tt.UpdatedAt = s.clock.Now()
		s.ticketTypes[res.TicketTypeID] = tt
	}
	return res.Quantity
}

// Reservation exposes a reservation's state, mainly for tests.
func (s *Store) Reservation(id string) (domain.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	return res, ok
}

// Transactions

func (s *Store) CreateTransaction(ctx context.Context, txn domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orderCodes[txn.OrderCode]; ok {
		return domain.ErrOrderCodeConflict
	}
	s.transactions[txn.ID] = txn
	s.orderCodes[txn.OrderCode] = txn.ID
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *Store) GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error) {
	return s.GetTransaction(ctx, id)
}

func (s *Store) FindTransactionByOrderCode(ctx context.Context, orderCode string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.orderCodes[orderCode]
	if !ok {
		return nil, nil
	}
	txn := s.transactions[id]
	return &txn, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]domain.Transaction, 0)
	for _, txn := range s.transactions {
		if filter.UserID != "" && txn.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}
		if search != "" && !s.matchesLocked(txn, search) {
			continue
		}
		matched = append(matched, txn)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []domain.Transaction{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

// matchesLocked reports whether search hits the order code, the customer
// or the names of the event and ticket type sold.
func (s *Store) matchesLocked(txn domain.Transaction, search string) bool {
	fields := []string{txn.OrderCode, txn.CustomerName}
	if event, ok := s.events[txn.EventID]; ok {
		fields = append(fields, event.Name)
	}
	if tt, ok := s.ticketTypes[txn.TicketTypeID]; ok {
		fields = append(fields, tt.Name)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	txn.Status = status
	txn.UpdatedAt = at
	s.transactions[id] = txn
	return nil
}

// DeleteTransaction also drops the transaction's passes.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	s.deletePassesLocked(id)
	delete(s.orderCodes, txn.OrderCode)
	delete(s.transactions, id)
	return nil
}

// Passes

func (s *Store) InsertPasses(ctx context.Context, passes []domain.TicketPass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(passes))
	for _, p := range passes {
		if _, ok := s.transactions[p.TransactionID]; !ok {
			return domain.ErrTransactionNotFound
		}
		if _, ok := s.tokens[p.Token]; ok {
			return errDuplicateToken
		}
		if _, ok := batch[p.Token]; ok {
			return errDuplicateToken
		}
		batch[p.Token] = struct{}{}
	}

	for _, p := range passes {
		s.passes[p.TransactionID] = append(s.passes[p.TransactionID], p)
		s.tokens[p.Token] = struct{}{}
	}
	return nil
}

func (s *Store) ListPassesByTransaction(ctx context.Context, transactionID string) ([]domain.TicketPass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TicketPass, len(s.passes[transactionID]))
	copy(out, s.passes[transactionID])
	return out, nil
}

func (s *Store) DeletePassesByTransaction(ctx context.Context, transactionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletePassesLocked(transactionID), nil
}

func (s *Store) deletePassesLocked(transactionID string) int {
	passes := s.passes[transactionID]
	for _, p := range passes {
		delete(s.tokens, p.Token)
	}
	delete(s.passes, transactionID)
	return len(passes)
}

// CountPasses returns the number of stored passes across all transactions.
func (s *Store) CountPasses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Catalog

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events, nil
}

func (s *Store) UpdateEvent(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; !ok {
		return domain.ErrEventNotFound
	}
	s.events[event.ID] = event
	return nil
}

// DeleteEvent removes the event with its ticket types and their
// reservations. Events with recorded transactions are kept.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return domain.ErrEventNotFound
	}
	for _, txn := range s.transactions {
		if txn.EventID == id {
			return domain.ErrEventInUse
		}
	}
	for ttID, tt := range s.ticketTypes {
		if tt.EventID != id {
			continue
		}
		for rid, res := range s.reservations {
			if res.TicketTypeID == ttID {
				delete(s.reservations, rid)
			}
		}
		delete(s.ticketTypes, ttID)
	}
	delete(s.events, id)
	return nil
}

func (s *Store) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[tt.EventID]; !ok {
		return domain.ErrEventNotFound
	}
	if s.nameTakenLocked(tt.EventID, tt.Name, tt.ID) {
		return domain.ErrTicketTypeAlreadyExists
	}
	s.ticketTypes[tt.ID] = tt
	return nil
}

func (s *Store) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tt, ok := s.ticketTypes[id]
	if !ok {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (s *Store) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TicketType, 0)
	for _, tt := range s.ticketTypes {
		if tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateTicketType(ctx context.Context, tt domain.TicketType) (domain.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ticketTypes[tt.ID]
	if !ok {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	if tt.Quota < current.Sold {
		return domain.TicketType{}, domain.ErrQuotaBelowSold
	}
	if s.nameTakenLocked(current.EventID, tt.Name, tt.ID) {
		return domain.TicketType{}, domain.ErrTicketTypeAlreadyExists
	}

	current.Name = tt.Name
	current.Description = tt.Description
	current.Price = tt.Price
	current.Quota = tt.Quota
	current.UpdatedAt = tt.UpdatedAt
	s.ticketTypes[tt.ID] = current
	return current, nil
}

func (s *Store) DeleteTicketType(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ticketTypes[id]; !ok {
		return domain.ErrTicketTypeNotFound
	}
	for _, txn := range s.transactions {
		if txn.TicketTypeID == id {
			return domain.ErrTicketTypeInUse
		}
	}
	for rid, res := range s.reservations {
		if res.TicketTypeID == id {
			delete(s.reservations, rid)
		}
	}
	delete(s.ticketTypes, id)
	return nil
}

func (s *Store) nameTakenLocked(eventID, name, exceptID string) bool {
	for _, other := range s.ticketTypes {
		if other.ID != exceptID && other.EventID == eventID && other.Name == name {
			return true
		}
	}
	return false
}
