package memory

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func newStoreWithTicketType(t *testing.T, quota, sold int) (*Store, domain.TicketType) {
	t.Helper()
	ctx := context.Background()
	store := NewStore(clock.NewManual(testNow))

	event := domain.Event{ID: "event-1", Name: "Concert", StartsAt: testNow}
	require.NoError(t, store.CreateEvent(ctx, event))
	tt := domain.TicketType{ID: "tt-1", EventID: event.ID, Name: "General", Quota: quota}
	require.NoError(t, store.CreateTicketType(ctx, tt))
	if sold > 0 {
		res, err := store.Reserve(ctx, tt.ID, sold)
		require.NoError(t, err)
		require.NoError(t, store.Commit(ctx, res.ID))
	}
	return store, tt
}

func soldOf(t *testing.T, store *Store, id string) int {
	t.Helper()
	tt, err := store.GetTicketType(context.Background(), id)
	require.NoError(t, err)
	return tt.Sold
}

func TestStore_Reserve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("out of range quantities leave sold untouched", func(t *testing.T) {
		store, tt := newStoreWithTicketType(t, 5, 1)

		for _, qty := range []int{0, -3, math.MaxInt, domain.MaxQuantity + 1} {
			_, err := store.Reserve(ctx, tt.ID, qty)
			assert.ErrorIs(t, err, domain.ErrInvalidQuantity, "quantity %d", qty)
		}
		assert.Equal(t, 1, soldOf(t, store, tt.ID))

		_, err := store.Reserve(ctx, tt.ID, 100)
		var short *domain.InsufficientInventoryError
		require.ErrorAs(t, err, &short)
		assert.Equal(t, 4, short.Available)
	})

	t.Run("check does not overflow at the quota limit", func(t *testing.T) {
		store, tt := newStoreWithTicketType(t, domain.MaxQuantity, 10)

		_, err := store.Reserve(ctx, tt.ID, domain.MaxQuantity)
		var short *domain.InsufficientInventoryError
		require.ErrorAs(t, err, &short)
		assert.Equal(t, domain.MaxQuantity-10, short.Available)

		_, err = store.Reserve(ctx, tt.ID, domain.MaxQuantity-10)
		require.NoError(t, err)
		assert.Equal(t, domain.MaxQuantity, soldOf(t, store, tt.ID))
	})

	t.Run("concurrent reserves never exceed quota", func(t *testing.T) {
		store, tt := newStoreWithTicketType(t, 7, 0)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Reserve(ctx, tt.ID, 1)
			}()
		}
		wg.Wait()
		assert.Equal(t, 7, soldOf(t, store, tt.ID))
	})
}

func TestStore_ListTransactionsSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, tt := newStoreWithTicketType(t, 5, 0)

	require.NoError(t, store.CreateTransaction(ctx, domain.Transaction{
		ID:           "txn-1",
		OrderCode:    "ORD-1",
		CustomerName: "Ana",
		EventID:      tt.EventID,
		TicketTypeID: tt.ID,
		Quantity:     1,
		Status:       domain.TransactionCompleted,
		CreatedAt:    testNow,
	}))

	for _, search := range []string{"ord-1", "ana", "concert", "GENERAL"} {
		_, total, err := store.ListTransactions(ctx, domain.TransactionFilter{Search: search})
		require.NoError(t, err)
		assert.Equal(t, 1, total, "search %q", search)
	}
	_, total, err := store.ListTransactions(ctx, domain.TransactionFilter{Search: "festival"})
	require.NoError(t, err)
	assert.Zero(t, total)
}
