package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrInvalidPrice            = errors.New("invalid price")
	ErrTicketTypeNotFound      = errors.New("ticket type not found")
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrSoldOut                 = errors.New("sold out")
	ErrPersistenceFailed       = errors.New("persistence failed")
	ErrPassGenerationFailed    = errors.New("pass generation failed")
	ErrOrderCodeConflict       = errors.New("order code conflict")
	ErrPurchaseInProgress      = errors.New("purchase in progress")
	ErrReservationNotHeld      = errors.New("reservation not held")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrForbidden               = errors.New("forbidden")
	ErrEventNotFound           = errors.New("event not found")
	ErrEventNameRequired       = errors.New("event name required")
	ErrEventInUse              = errors.New("event in use")
	ErrTicketNameRequired      = errors.New("ticket name required")
	ErrInvalidQuota            = errors.New("invalid quota")
	ErrQuotaBelowSold          = errors.New("quota below sold")
	ErrTicketTypeInUse         = errors.New("ticket type in use")
	ErrTicketTypeAlreadyExists = errors.New("ticket type already exists")
	ErrInvalidID               = errors.New("invalid id")
)

// InsufficientInventoryError is returned by the ledger when a reservation
// would push sold above quota.
type InsufficientInventoryError struct {
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: %d available", e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// SoldOutError is the purchase-level view of InsufficientInventoryError.
// Available is the remaining quantity at the moment of the atomic check.
type SoldOutError struct {
	Available int
}

func (e *SoldOutError) Error() string {
	return fmt.Sprintf("sold out: %d available", e.Available)
}

func (e *SoldOutError) Is(target error) bool {
	return target == ErrSoldOut
}
