package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/NavanKen/Eventify/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

var customer = domain.Actor{UserID: "user-1", Name: "Ana", Role: domain.RoleCustomer}

// seedTicketType creates an event with one ticket type and then sells `sold`
// units through the ledger so the counter matches committed reservations.
func seedTicketType(t *testing.T, store *memory.Store, quota, sold int) domain.TicketType {
	t.Helper()
	ctx := context.Background()

	event := domain.Event{ID: newUUID(), Name: "Concert", StartsAt: testNow.Add(48 * time.Hour)}
	require.NoError(t, store.CreateEvent(ctx, event))

	tt := domain.TicketType{
		ID:        newUUID(),
		EventID:   event.ID,
		Name:      "General",
		Price:     decimal.RequireFromString("25.00"),
		Quota:     quota,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, store.CreateTicketType(ctx, tt))

	if sold > 0 {
		res, err := store.Reserve(ctx, tt.ID, sold)
		require.NoError(t, err)
		require.NoError(t, store.Commit(ctx, res.ID))
	}
	return tt
}

func soldOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	tt, err := store.GetTicketType(context.Background(), id)
	require.NoError(t, err)
	return tt.Sold
}

func newPurchaseFixture(t *testing.T, quota, sold int) (*memory.Store, domain.TicketType, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(testNow)
	store := memory.NewStore(clk)
	return store, seedTicketType(t, store, quota, sold), clk
}

func buy(ticketTypeID string, qty int) PurchaseInput {
	return PurchaseInput{
		TicketTypeID: ticketTypeID,
		Quantity:     qty,
		TotalPrice:   decimal.NewFromInt(int64(25 * qty)),
		Actor:        customer,
	}
}

// faultyTxns wraps the memory store and fails chosen transaction writes.
type faultyTxns struct {
	*memory.Store
	createErr error
	onCreate  func()
}

func (f *faultyTxns) CreateTransaction(ctx context.Context, txn domain.Transaction) error {
	if f.onCreate != nil {
		f.onCreate()
	}
	if f.createErr != nil {
		return f.createErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Store.CreateTransaction(ctx, txn)
}

type faultyPasses struct {
	*memory.Store
	insertErr error
}

func (f *faultyPasses) InsertPasses(ctx context.Context, passes []domain.TicketPass) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Store.InsertPasses(ctx, passes)
}

type faultyLedger struct {
	*memory.Store
	commitErr  error
	releaseErr error
}

func (f *faultyLedger) Commit(ctx context.Context, reservationID string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.Store.Commit(ctx, reservationID)
}

func (f *faultyLedger) Release(ctx context.Context, reservationID string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	return f.Store.Release(ctx, reservationID)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(ctx context.Context, evt domain.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type stubLocker struct {
	lockErr  error
	unlocked []string
}

func (l *stubLocker) Lock(ctx context.Context, orderCode string) (string, error) {
	if l.lockErr != nil {
		return "", l.lockErr
	}
	return "token-" + orderCode, nil
}

func (l *stubLocker) Unlock(ctx context.Context, orderCode, token string) error {
	l.unlocked = append(l.unlocked, orderCode)
	return nil
}

// counterValue sums every series of a counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

type sequenceTokens struct {
	tokens []string
	next   int
}

func (s *sequenceTokens) NewToken() (string, error) {
	if s.next >= len(s.tokens) {
		return "", errors.New("token source exhausted")
	}
	tok := s.tokens[s.next]
	s.next++
	return tok, nil
}
