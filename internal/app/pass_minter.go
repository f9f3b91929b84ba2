package app

import (
	"context"
	"fmt"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
)

// PassMinter issues the redeemable passes of a transaction.
type PassMinter struct {
	store  PassStore
	tokens TokenSource
	clock  clock.Clock
}

func NewPassMinter(store PassStore, tokens TokenSource, clk clock.Clock) *PassMinter {
	if tokens == nil {
		tokens = RandomTokens()
	}
	return &PassMinter{
		store:  store,
		tokens: tokens,
		clock:  clk,
	}
}

// Mint creates exactly quantity passes and stores them in one write. Either
// all passes are stored or none are.
func (m *PassMinter) Mint(ctx context.Context, transactionID, ticketTypeID string, quantity int) ([]domain.TicketPass, error) {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	now := m.clock.Now()
	passes := make([]domain.TicketPass, 0, quantity)
	seen := make(map[string]struct{}, quantity)
	for len(passes) < quantity {
		token, err := m.tokens.NewToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		if _, dup := seen[token]; dup {
			return nil, fmt.Errorf("generate token: duplicate within batch")
		}
		seen[token] = struct{}{}
		passes = append(passes, domain.TicketPass{
			ID:            newUUID(),
			TransactionID: transactionID,
			TicketTypeID:  ticketTypeID,
			Token:         token,
			CreatedAt:     now,
		})
	}

	if err := m.store.InsertPasses(ctx, passes); err != nil {
		return nil, err
	}
	return passes, nil
}
