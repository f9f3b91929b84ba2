package postgres

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/NavanKen/Eventify/internal/testutil"
)

func TestLedger(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	clk := clock.NewManual(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	ledger := NewLedger(pool, clk)

	t.Run("Reserve increments sold and records a held reservation", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", 10, 0)

		res, err := ledger.Reserve(ctx, ttID, 3)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if res.EventID != eventID || res.Quantity != 3 || res.Status != domain.ReservationHeld {
			t.Fatalf("unexpected reservation: %+v", res)
		}
		if sold := testutil.Sold(t, ctx, pool, ttID); sold != 3 {
			t.Fatalf("expected sold 3, got %d", sold)
		}
	})

	t.Run("Reserve reports availability when short", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", 5, 4)

		_, err := ledger.Reserve(ctx, ttID, 3)
		var short *domain.InsufficientInventoryError
		if !errors.As(err, &short) {
			t.Fatalf("expected InsufficientInventoryError, got %v", err)
		}
		if short.Available != 1 {
			t.Fatalf("expected 1 available, got %d", short.Available)
		}
		if sold := testutil.Sold(t, ctx, pool, ttID); sold != 4 {
			t.Fatalf("expected sold unchanged at 4, got %d", sold)
		}
	})

	t.Run("Reserve rejects quantities the columns cannot hold", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", 5, 1)

		for _, qty := range []int{3_000_000_000, math.MaxInt} {
			if _, err := ledger.Reserve(ctx, ttID, qty); err != domain.ErrInvalidQuantity {
				t.Fatalf("quantity %d: expected ErrInvalidQuantity, got %v", qty, err)
			}
		}
		if sold := testutil.Sold(t, ctx, pool, ttID); sold != 1 {
			t.Fatalf("expected sold unchanged at 1, got %d", sold)
		}
	})

	t.Run("Reserve near the integer limit reports a shortfall", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", domain.MaxQuantity, 10)

		_, err := ledger.Reserve(ctx, ttID, domain.MaxQuantity)
		var short *domain.InsufficientInventoryError
		if !errors.As(err, &short) {
			t.Fatalf("expected InsufficientInventoryError, got %v", err)
		}
		if short.Available != domain.MaxQuantity-10 {
			t.Fatalf("expected %d available, got %d", domain.MaxQuantity-10, short.Available)
		}
		if sold := testutil.Sold(t, ctx, pool, ttID); sold != 10 {
			t.Fatalf("expected sold unchanged at 10, got %d", sold)
		}
	})

	t.Run("Reserve unknown ticket type", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if _, err := ledger.Reserve(ctx, "00000000-0000-0000-0000-000000000001", 1); err != domain.ErrTicketTypeNotFound {
			t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
		}
		if _, err := ledger.Reserve(ctx, "not-a-uuid", 1); err != domain.ErrTicketTypeNotFound {
			t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
		}
	})

	t.Run("concurrent reserves never exceed quota", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		const quota, buyers = 20, 60
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", quota, 0)

		var (
			mu      sync.Mutex
			granted int
			wg      sync.WaitGroup
		)
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.Reserve(ctx, ttID, 1)
				if err == nil {
					mu.Lock()
					granted++
					mu.Unlock()
					return
				}
				if !errors.Is(err, domain.ErrInsufficientInventory) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if granted != quota {
			t.Fatalf("expected %d granted, got %d", quota, granted)
		}
		if sold := testutil.Sold(t, ctx, pool, ttID); sold != quota {
			t.Fatalf("expected sold %d, got %d", quota, sold)
		}
	})

	t.Run("Release is keyed by reservation and runs once", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", 10, 0)

		first, err := ledger.Reserve(ctx, ttID, 2)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if _, err := ledger.Reserve(ctx, ttID, 3); err != nil {
			t.Fatalf("reserve: %v", err)
		}

		for i := 0; i < 3; i++ {
			if err := ledger.Release(ctx, first.ID); err != nil {
				t.Fatalf("release %d: %v", i, err)
			}
		}
		if sold := testutil.Sold(t, ctx, pool, ttID); sold != 3 {
			t.Fatalf("expected sold 3 after releasing 2 once, got %d", sold)
		}

		if err := ledger.Release(ctx, "00000000-0000-0000-0000-000000000009"); err != nil {
			t.Fatalf("release unknown: %v", err)
		}
	})

	t.Run("Commit only succeeds for held reservations", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		ttID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", 10, 0)

		res, err := ledger.Reserve(ctx, ttID, 1)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := ledger.Commit(ctx, res.ID); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if err := ledger.Commit(ctx, res.ID); err != domain.ErrReservationNotHeld {
			t.Fatalf("expected ErrReservationNotHeld on second commit, got %v", err)
		}

		swept, err := ledger.Reserve(ctx, ttID, 1)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := ledger.Release(ctx, swept.ID); err != nil {
			t.Fatalf("release: %v", err)
		}
		if err := ledger.Commit(ctx, swept.ID); err != domain.ErrReservationNotHeld {
			t.Fatalf("expected ErrReservationNotHeld after release, got %v", err)
		}
	})

	t.Run("ReleaseStale only touches old held reservations", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Concert")
		ttA := testutil.InsertTicketType(t, ctx, pool, eventID, "A", 10, 0)
		ttB := testutil.InsertTicketType(t, ctx, pool, eventID, "B", 10, 0)

		for _, r := range []struct {
			tt  string
			qty int
		}{{ttA, 1}, {ttA, 2}, {ttB, 4}} {
			if _, err := ledger.Reserve(ctx, r.tt, r.qty); err != nil {
				t.Fatalf("reserve: %v", err)
			}
		}
		committed, err := ledger.Reserve(ctx, ttA, 1)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := ledger.Commit(ctx, committed.ID); err != nil {
			t.Fatalf("commit: %v", err)
		}

		clk.Advance(time.Hour)
		if _, err := ledger.Reserve(ctx, ttB, 1); err != nil {
			t.Fatalf("reserve fresh: %v", err)
		}

		released, err := ledger.ReleaseStale(ctx, clk.Now().Add(-30*time.Minute))
		if err != nil {
			t.Fatalf("release stale: %v", err)
		}
		if released != 7 {
			t.Fatalf("expected 7 units released, got %d", released)
		}
		if sold := testutil.Sold(t, ctx, pool, ttA); sold != 1 {
			t.Fatalf("expected ttA sold 1, got %d", sold)
		}
		if sold := testutil.Sold(t, ctx, pool, ttB); sold != 1 {
			t.Fatalf("expected ttB sold 1, got %d", sold)
		}
	})
}
