package app

import (
	"context"
	"strings"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/shopspring/decimal"
)

// CatalogStore persists events and ticket types. UpdateTicketType never
// touches Sold and must refuse a quota below the current Sold atomically.
type CatalogStore interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, event domain.Event) error
	DeleteEvent(ctx context.Context, id string) error
	CreateTicketType(ctx context.Context, tt domain.TicketType) error
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
	ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error)
	UpdateTicketType(ctx context.Context, tt domain.TicketType) (domain.TicketType, error)
	DeleteTicketType(ctx context.Context, id string) error
}

type AdminService struct {
	repo  CatalogStore
	clock clock.Clock
}

func NewAdminService(repo CatalogStore, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateEventInput struct {
	Name     string
	StartsAt *time.Time
}

func (s *AdminService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	startsAt := s.clock.Now()
	if in.StartsAt != nil {
		startsAt = in.StartsAt.UTC()
	}

	event := domain.Event{
		ID:       newUUID(),
		Name:     name,
		StartsAt: startsAt,
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *AdminService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

// UpdateEventInput is a partial update; nil fields keep their value.
type UpdateEventInput struct {
	ID       string
	Name     *string
	StartsAt *time.Time
}

func (s *AdminService) UpdateEvent(ctx context.Context, in UpdateEventInput) (domain.Event, error) {
	if in.ID == "" {
		return domain.Event{}, domain.ErrEventNotFound
	}
	event, err := s.repo.GetEvent(ctx, in.ID)
	if err != nil {
		return domain.Event{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.Event{}, domain.ErrEventNameRequired
		}
		event.Name = name
	}
	if in.StartsAt != nil {
		event.StartsAt = in.StartsAt.UTC()
	}

	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

// DeleteEvent removes an event and its ticket types. It fails with
// ErrEventInUse once any transaction was recorded for the event.
func (s *AdminService) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrEventNotFound
	}
	return s.repo.DeleteEvent(ctx, id)
}

type CreateTicketTypeInput struct {
	EventID     string
	Name        string
	Description string
	Price       decimal.Decimal
	Quota       int
}

func (s *AdminService) CreateTicketType(ctx context.Context, in CreateTicketTypeInput) (domain.TicketType, error) {
	if in.EventID == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.TicketType{}, domain.ErrTicketNameRequired
	}
	if in.Price.IsNegative() {
		return domain.TicketType{}, domain.ErrInvalidPrice
	}
	if in.Quota < 0 || in.Quota > domain.MaxQuantity {
		return domain.TicketType{}, domain.ErrInvalidQuota
	}

	now := s.clock.Now()
	tt := domain.TicketType{
		ID:          newUUID(),
		EventID:     in.EventID,
		Name:        name,
		Description: in.Description,
		Price:       in.Price,
		Quota:       in.Quota,
		Sold:        0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateTicketType(ctx, tt); err != nil {
		return domain.TicketType{}, err
	}
	return tt, nil
}

// UpdateTicketTypeInput carries a partial update; nil fields are left as is.
type UpdateTicketTypeInput struct {
	ID          string
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quota       *int
}

func (s *AdminService) UpdateTicketType(ctx context.Context, in UpdateTicketTypeInput) (domain.TicketType, error) {
	if in.ID == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	current, err := s.repo.GetTicketType(ctx, in.ID)
	if err != nil {
		return domain.TicketType{}, err
	}

	next := current
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.TicketType{}, domain.ErrTicketNameRequired
		}
		next.Name = name
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return domain.TicketType{}, domain.ErrInvalidPrice
		}
		next.Price = *in.Price
	}
	if in.Quota != nil {
		if *in.Quota < 0 || *in.Quota > domain.MaxQuantity {
			return domain.TicketType{}, domain.ErrInvalidQuota
		}
		next.Quota = *in.Quota
	}
	next.UpdatedAt = s.clock.Now()

	return s.repo.UpdateTicketType(ctx, next)
}

func (s *AdminService) DeleteTicketType(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrInvalidID
	}
	return s.repo.DeleteTicketType(ctx, id)
}

func (s *AdminService) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	if id == "" {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	return s.repo.GetTicketType(ctx, id)
}

func (s *AdminService) ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.repo.ListTicketTypesByEvent(ctx, eventID)
}
