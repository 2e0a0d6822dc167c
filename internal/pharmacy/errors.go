package pharmacy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/care-coordination/internal/authz"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrItemNotFound      = errors.New("inventory item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid pharmacy request")

	ErrUnauthorized = authz.ErrUnauthorized
)

// InsufficientStockError lists the line items the pharmacy cannot cover.
type InsufficientStockError struct {
	OrderID      string
	MissingItems []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for order %s: %s", e.OrderID, strings.Join(e.MissingItems, ", "))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type TransitionError struct {
	ID   string
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
